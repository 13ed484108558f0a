package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmueller/voxstudio/internal/platform"
	"github.com/fmueller/voxstudio/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		// Printing the version needs neither a logger nor a config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "voxstudio v%s (%s, %s)\n",
				version.Resolve(), version.Revision(), platform.CurrentRuntime())
			return nil
		},
	}
}
