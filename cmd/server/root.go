package main

import (
	"fmt"

	"github.com/Lantsov/middleman/internal/platform/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "middleman",
	Short: "Middleman - weighing device snapshot aggregator",
	Long: `Middleman keeps a websocket link to every configured weighing device,
merges their readings into one snapshot and pushes it to subscribers every tick.
Settings are read from the environment and an optional .env file.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aggregator",
	Long:  `Connect to every device in WEIGHT_SERVICES and serve subscribers on PORT.`,
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
