package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/version"
)

// newVersionCmd constructs the `docrag version` subcommand. It needs no
// configuration.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the docrag version, git commit, and build date",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
