package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. Flags are bound to a fresh viper
// instance so SHRINKIT_* variables can stand in for them.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SHRINKIT")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "shrinkit",
		Short:         "Resize and compress images",
		Long:          `Resizes and recompresses images to JPEG, optionally removing the background first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	_ = v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(newProcessCmd(v), newVersionCmd())
	return root
}
