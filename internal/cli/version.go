package cli

import (
	"github.com/spf13/cobra"

	"github.com/snaillabs/snailmarket/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the snailmarketd version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(version.String())
	},
}

//nolint:gochecknoinits // Cobra command registration
func init() {
	rootCmd.AddCommand(versionCmd)
}
