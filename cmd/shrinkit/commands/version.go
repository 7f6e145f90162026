package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/dunamismax/shrinkit/cmd/shrinkit/commands.version=..."
var (
	version = "dev"
	commit  = "none"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shrinkit %s (%s) %s/%s\n", version, commit, runtime.GOOS, runtime.GOARCH)
		},
	}
}
