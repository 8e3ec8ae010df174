package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			return write(cmd.OutOrStdout(), rootOpts.Format, info,
				fmt.Sprintf("marksync %s (commit=%s, built=%s, go=%s)",
					info.Version, info.Commit, info.BuildDate, info.GoVersion))
		},
	}
}
