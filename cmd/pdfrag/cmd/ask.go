package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pdfrag/internal/service"
)

var (
	askLimit       int
	askShowSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the stored documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().IntVarP(&askLimit, "limit", "k", 0, "Number of context chunks (defaults to retriever.limit)")
	askCmd.Flags().BoolVar(&askShowSources, "sources", false, "Print the retrieved chunks after the answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	ans, err := a.svc.Ask(cmd.Context(), strings.Join(args, " "), limitOrDefault(a, askLimit))
	if errors.Is(err, service.ErrNoContext) {
		fmt.Fprintln(out, "No relevant documents found.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(out, ans.Text)
	if askShowSources {
		fmt.Fprintln(out)
		printResults(out, ans.Contexts)
	}
	return nil
}
