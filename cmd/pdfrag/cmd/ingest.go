package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pdfrag/internal/service"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Chunk, embed and store documents",
	Long: `Ingest loads every .pdf and .txt file named by the arguments. Directories
are walked and glob patterns expanded. A file that cannot be read is
reported and skipped.

Examples:
  pdfrag ingest ./policies
  pdfrag ingest "handbook/*.pdf" notes.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := a.svc.Ingest(cmd.Context(), args)
	printIngestReport(cmd.OutOrStdout(), rep)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	return nil
}

func printIngestReport(w io.Writer, rep service.IngestReport) {
	for _, f := range rep.Files {
		if f.Err != nil && f.Pages == 0 {
			fmt.Fprintf(w, "FAIL %s: %v\n", f.Path, f.Err)
			continue
		}
		status := "ok  "
		if !f.OK() {
			status = "PART"
		}
		fmt.Fprintf(w, "%s %s: %d pages, %d chunks, %d embedded, %d written\n",
			status, f.Path, f.Pages, f.Chunks, f.Embedded, f.Written)
		for _, s := range f.Skipped {
			fmt.Fprintf(w, "     skipped chunk %d: %v\n", s.Chunk.Index, s.Err)
		}
		for _, fl := range f.Failed {
			fmt.Fprintf(w, "     failed record %s: %v\n", fl.Record.ID, fl.Err)
		}
	}
	fmt.Fprintf(w, "%d/%d files stored, %d records written\n", rep.Succeeded(), len(rep.Files), rep.Written())
}
