package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var campaignFile string

	rootCmd := &cobra.Command{
		Use:           "enroller",
		Short:         "Enrolls contact lists into size-capped messaging groups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&campaignFile, "campaign", "", "campaign file (overrides CAMPAIGN_FILE)")

	rootCmd.AddCommand(serveCommand(&campaignFile))
	rootCmd.AddCommand(runBatchCommand(&campaignFile))
	rootCmd.AddCommand(migrateCommand())

	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
