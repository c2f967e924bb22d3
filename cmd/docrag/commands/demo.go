package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/ingestion"
)

// demoQueries are the sample questions asked after ingestion.
var demoQueries = []string{
	"What is machine learning?",
	"How to use Python?",
	"What is ChromaDB?",
	"Tell me about LangChain",
}

// demoResults is the number of passages printed per demo query.
const demoResults = 2

// newDemoCmd constructs the `docrag demo` command: ingest, then run the
// sample queries.
func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Ingest the documents folder and run sample queries",
		Long: `Rebuild the collection from the documents folder, then search it with a
fixed set of sample questions and print the top two passages of each.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			c, err := a.open()
			if err != nil {
				return fmt.Errorf("demo: %w", err)
			}
			defer c.Close()

			fmt.Fprintln(out, "Step 1: processing documents")
			rep, err := runIngest(cmd, c, a.settings.Documents.Dir)
			if errors.Is(err, ingestion.ErrNoDocuments) {
				fmt.Fprintln(out, "No documents processed. Exiting.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("demo: %w", err)
			}
			printIngestSummary(out, c, rep)

			fmt.Fprintln(out, "\nStep 2: testing search")
			ret, err := c.retriever()
			if err != nil {
				return fmt.Errorf("demo: %w", err)
			}
			for _, q := range demoQueries {
				fmt.Fprintf(out, "\n--- Testing: %s ---\n", q)
				passages, err := ret.Retrieve(cmd.Context(), q, demoResults)
				if err != nil {
					return fmt.Errorf("demo: %w", err)
				}
				printPassages(out, q, passages, false)
			}

			fmt.Fprintln(out, "\nDemo completed.")
			return nil
		},
	}
}
