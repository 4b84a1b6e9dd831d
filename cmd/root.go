package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel string // Log verbosity level
	envFile  string // Optional .env file loaded before reading configuration
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "trainguard",
	Short: "Safety-gated closed-loop controller for distributed training workloads",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				logrus.Fatalf("unable to load env file %s: %v", envFile, err)
			}
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file loaded before reading configuration")
}
