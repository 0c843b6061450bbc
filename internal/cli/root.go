// Package cli wires the ropequiz binary's subcommands, grounded on the
// teacher's internal/cli package (root.go's persistent-flag wiring plus
// one cobra.Command per subcommand).
package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ropequiz",
		Short: "Real-time classroom tug-of-war trivia server",
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	return cmd
}
