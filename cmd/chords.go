package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trainguard/trainguard/policy"
)

var chordFile string // Catalog file to validate

var chordsCmd = &cobra.Command{
	Use:   "chords",
	Short: "Inspect and validate chord catalogs",
}

// chordsValidateCmd prints the chords_validate.v0 report for a catalog file.
var chordsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a chord catalog file",
	Run: func(cmd *cobra.Command, args []string) {
		if chordFile == "" {
			logrus.Fatalf("--file is required")
		}
		report := policy.ValidateCatalogFile(chordFile)
		printJSON(report)
		if !report.OK {
			os.Exit(blockedExitCode)
		}
	},
}

func init() {
	chordsValidateCmd.Flags().StringVar(&chordFile, "file", "", "Catalog file (JSON)")

	chordsCmd.AddCommand(chordsValidateCmd)
	rootCmd.AddCommand(chordsCmd)
}
