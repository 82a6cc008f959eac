package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "covercast",
	Short: "Demand prediction for restaurant services",
	Long: `Covercast predicts how many covers a restaurant service will do,
recommends staffing against the usual headcount, and explains each
prediction from similar historical services.

The server runs locally and keeps all data on this machine. Start it with
"covercast start", then ask for a forecast with "covercast predict".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the covercast version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("covercast %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print raw JSON on read commands")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(forecastCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(accuracyCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(restaurantCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
