package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"pdfrag/internal/domain"
)

const previewRunes = 300

var (
	searchLimit  int
	outputFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the stored chunks most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 0, "Number of results (defaults to retriever.limit)")
	searchCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.svc.Search(cmd.Context(), strings.Join(args, " "), limitOrDefault(a, searchLimit))
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	switch outputFormat {
	case "json":
		return printJSON(cmd.OutOrStdout(), results)
	case "text":
		printResults(cmd.OutOrStdout(), results)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", outputFormat)
	}
}

func limitOrDefault(a *app, n int) int {
	if n > 0 {
		return n
	}
	return a.cfg.Retriever.Limit
}

type jsonResult struct {
	ID         string         `json:"id"`
	SourceFile string         `json:"source_file"`
	Similarity float64        `json:"similarity"`
	Tier       domain.Tier    `json:"tier"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func printJSON(w io.Writer, results []domain.ScoredResult) error {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			ID:         r.Record.ID,
			SourceFile: r.Record.SourceFile,
			Similarity: r.Similarity,
			Tier:       r.Tier,
			Content:    r.Record.Content,
			Metadata:   r.Record.Metadata,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printResults(w io.Writer, results []domain.ScoredResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s", i+1, r.Record.SourceFile)
		if page, ok := r.Record.Metadata["page"]; ok {
			fmt.Fprintf(w, " (page %v)", page)
		}
		fmt.Fprintf(w, "  similarity=%.4f  tier=%s\n", r.Similarity, r.Tier)
		fmt.Fprintf(w, "   %s\n\n", preview(r.Record.Content, previewRunes))
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
