package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/ingestion"
	"github.com/54b3r/docrag/internal/metrics"
)

// newIngestCmd constructs the `docrag ingest` command, which rebuilds the
// collection from the documents folder.
func newIngestCmd(a *app) *cobra.Command {
	var dir string
	var textfile string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the vector collection from the documents folder",
		Long: `Load every .txt, .md and .pdf file under the documents folder, split the
text into overlapping windows, embed them and replace the collection.

The previous collection is deleted first. A folder without loadable documents
leaves the existing collection untouched.

Examples:
  docrag ingest
  docrag ingest --dir ./handbook
  docrag ingest --metrics-textfile /var/lib/node_exporter/docrag.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.open()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer c.Close()

			if dir == "" {
				dir = a.settings.Documents.Dir
			}
			rep, err := runIngest(cmd, c, dir)
			if textfile != "" {
				if werr := metrics.WriteTextfile(c.registry, textfile); werr != nil {
					a.log.Warn("ingest: metrics textfile not written", slog.Any("error", werr))
				}
			}
			if errors.Is(err, ingestion.ErrNoDocuments) {
				return nil
			}
			if err != nil {
				return err
			}
			printIngestSummary(cmd.OutOrStdout(), c, rep)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Documents folder (default: DOCUMENTS_DIR)")
	cmd.Flags().StringVar(&textfile, "metrics-textfile", "", "Write ingestion metrics to this file in Prometheus text format")

	return cmd
}

// runIngest runs the pipeline over dir. An empty folder is reported on
// stdout and returned as ingestion.ErrNoDocuments.
func runIngest(cmd *cobra.Command, c *components, dir string) (ingestion.Report, error) {
	p, err := c.pipeline(dir)
	if err != nil {
		return ingestion.Report{}, fmt.Errorf("ingest: %w", err)
	}
	rep, err := p.Run(cmd.Context())
	if errors.Is(err, ingestion.ErrNoDocuments) {
		fmt.Fprintf(cmd.OutOrStdout(), "No documents found in %s; the collection was left unchanged.\n", dir)
		fmt.Fprintln(cmd.OutOrStdout(), "Add .txt, .md or .pdf files and run ingest again.")
	}
	return rep, err
}

func printIngestSummary(w io.Writer, c *components, rep ingestion.Report) {
	fmt.Fprintln(w, "Document processing completed.")
	fmt.Fprintf(w, "  Documents loaded: %d\n", rep.Documents)
	if rep.Skipped > 0 {
		fmt.Fprintf(w, "  Files skipped:    %d\n", rep.Skipped)
	}
	fmt.Fprintf(w, "  Chunks created:   %d\n", rep.Chunks)
	fmt.Fprintf(w, "  Collection name:  %s\n", rep.Collection)
	fmt.Fprintf(w, "  Store:            %s\n", c.describeStore())
	fmt.Fprintf(w, "  Duration:         %s\n", rep.Duration.Round(time.Millisecond))
}
