package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trainguard/trainguard/knobs"
	"github.com/trainguard/trainguard/passport"
	"github.com/trainguard/trainguard/policy"
)

var passportFile string // Passport file to validate

var passportCmd = &cobra.Command{
	Use:   "passport",
	Short: "Inspect and validate operating profiles",
}

var passportValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a passport file against the actuator registry and catalog",
	Run: func(cmd *cobra.Command, args []string) {
		if passportFile == "" {
			logrus.Fatalf("--file is required")
		}
		raw, err := os.ReadFile(passportFile)
		if err != nil {
			logrus.Fatalf("unable to read passport: %v", err)
		}
		var p passport.Passport
		if err := yaml.Unmarshal(raw, &p); err != nil {
			logrus.Fatalf("invalid passport YAML: %v", err)
		}
		errs := p.Validate(knobs.DefaultRegistry(), policy.DefaultCatalog())
		printJSON(map[string]any{
			"ok":       len(errs) == 0,
			"passport": p.Name,
			"errors":   errs,
		})
		if len(errs) > 0 {
			os.Exit(blockedExitCode)
		}
	},
}

func init() {
	passportValidateCmd.Flags().StringVar(&passportFile, "file", "", "Passport file (YAML)")

	passportCmd.AddCommand(passportValidateCmd)
	rootCmd.AddCommand(passportCmd)
}
