package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/rag"
)

// previewLen is the number of characters shown per passage without --full.
const previewLen = 300

// newSearchCmd constructs the `docrag search` command.
func newSearchCmd(a *app) *cobra.Command {
	var n int
	var full bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find the passages most similar to a query",
		Long: `Embed the query and print the closest passages of the collection, best
match first, with their cosine similarity.

Examples:
  docrag search "What is machine learning?"
  docrag search -n 5 --full "How do I configure the store?"
  docrag search --json "vector databases" | jq '.[0].text'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if strings.TrimSpace(query) == "" {
				return errors.New("search: query must not be empty")
			}

			c, err := a.open()
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer c.Close()

			ret, err := c.retriever()
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			passages, err := ret.Retrieve(cmd.Context(), query, n)
			if errors.Is(err, rag.ErrCollectionNotFound) {
				return fmt.Errorf("search: %w (run `docrag ingest` first)", err)
			}
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(passages)
			}
			printPassages(cmd.OutOrStdout(), query, passages, full)
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "n-results", "n", 0, "Number of passages to return (default: TOP_K)")
	cmd.Flags().BoolVar(&full, "full", false, "Print whole passages instead of previews")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

// printPassages writes a numbered, ranked listing of passages.
func printPassages(w io.Writer, query string, passages []rag.Passage, full bool) {
	fmt.Fprintf(w, "Searching for: %s\n", query)
	if len(passages) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	fmt.Fprintln(w, "Search results:")
	for i, p := range passages {
		text := p.Text
		if !full {
			text = preview(text, previewLen)
		}
		fmt.Fprintf(w, "  %d. [%.3f] %s\n", i+1, p.Similarity, text)
		if p.Source != "" {
			fmt.Fprintf(w, "     source: %s (%s)\n", p.Source, p.ID)
		}
	}
}

// preview returns the first n characters of text, with "..." appended when
// anything was cut.
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
