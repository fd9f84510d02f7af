package modelpick

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	command := &cobra.Command{
		Use:           rootCommandUse,
		Short:         rootCommandShort,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	command.AddCommand(newServeCommand())
	command.AddCommand(newCatalogCommand())
	command.AddCommand(newAnalyzeCommand())
	return command
}

// Execute runs the CLI and returns the failure, if any, to the caller.
func Execute() error {
	return newRootCommand().Execute()
}
