package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "xmlbridge",
		Short: "Parse XML in the foreign runtime and report what the documents declare",
		Long: `xmlbridge parses XML documents inside the foreign runtime, keeps them
pinned while they are in use and reports the encoding each one declares.`,
		SilenceUsage: true,
	}
	opts.bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newParseCmd(opts))
	rootCmd.AddCommand(newInspectCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
