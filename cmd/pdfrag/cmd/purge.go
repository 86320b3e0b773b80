package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var purgeSource string

var purgeCmd = &cobra.Command{
	Use:   "purge --source <file>",
	Short: "Delete every stored record of a source file",
	Args:  cobra.NoArgs,
	RunE:  runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().StringVar(&purgeSource, "source", "", "Source file name as stored (base name of the ingested file)")
	_ = purgeCmd.MarkFlagRequired("source")
}

func runPurge(cmd *cobra.Command, args []string) error {
	if purgeSource == "" {
		return errors.New("--source must not be empty")
	}
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.svc.Purge(cmd.Context(), purgeSource)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records of %s\n", n, purgeSource)
	return nil
}
