package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pdfrag/internal/vectorstore"
	"pdfrag/internal/vectorstore/postgres"
)

var schemaPrint bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the vector store schema",
	Long: `Schema creates the tables, collection or search function the configured
store needs. With --print the Postgres DDL is written to stdout instead.`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().BoolVar(&schemaPrint, "print", false, "Print the Postgres schema without connecting")
}

func runSchema(cmd *cobra.Command, args []string) error {
	if schemaPrint {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		lists := 0
		if cfg.VectorStore.Postgres != nil {
			lists = cfg.VectorStore.Postgres.IVFFlatLists
		}
		fmt.Fprint(cmd.OutOrStdout(), postgres.SchemaSQL(cfg.Embedder.Dimension, lists))
		return nil
	}

	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()
	if err := vectorstore.EnsureSchema(cmd.Context(), a.store, a.cfg.Embedder.Dimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema ready (dimension %d)\n", a.cfg.VectorStore.Type, a.cfg.Embedder.Dimension)
	return nil
}
