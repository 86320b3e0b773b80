package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pdfrag/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [path]...",
	Short: "Browse search results interactively",
	Long: `Tui opens an interactive query browser. Paths given as arguments are
ingested first.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.close()

	subtitle := fmt.Sprintf("%s embedder, %s store", a.cfg.Embedder.Type, a.cfg.VectorStore.Type)
	if len(args) > 0 {
		rep, err := a.svc.Ingest(cmd.Context(), args)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		subtitle = fmt.Sprintf("Ingested %d/%d files, %d records. %s", rep.Succeeded(), len(rep.Files), rep.Written(), subtitle)
	}

	m := tui.New(cmd.Context(), a.svc, a.cfg.Retriever.Limit, subtitle)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
