package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trainguard/trainguard/control"
	"github.com/trainguard/trainguard/policy"
)

// observeCmd runs one analysis tick without touching the cluster.
var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Analyze one telemetry window and print the decision without applying anything",
	Run: func(cmd *cobra.Command, args []string) {
		loop, err := buildLoop(false)
		if err != nil {
			logrus.Fatalf("unable to set up observation: %v", err)
		}
		outcome, err := loop.RunOnce(cmd.Context())
		if err != nil {
			logrus.Fatalf("observation failed: %v", err)
		}
		writeRunReport(control.ModeObserveOnly, outcome)
		printJSON(outcome)
		if outcome.BlockedReason != "" {
			os.Exit(blockedExitCode)
		}
	},
}

func init() {
	observeCmd.Flags().StringVar(&sourceKind, "source", "synthetic", "Telemetry source (synthetic, file)")
	observeCmd.Flags().StringVar(&scenario, "scenario", "stable", "Synthetic scenario (stable, drift, burst, straggler, gpu)")
	observeCmd.Flags().StringVar(&inputPath, "input", "", "Telemetry file (.jsonl or .csv) for --source file")
	observeCmd.Flags().Int64Var(&sourceSeed, "seed", 42, "Seed for synthetic telemetry")
	observeCmd.Flags().Int64Var(&durationMS, "duration-ms", 60000, "Synthetic telemetry window in milliseconds")
	observeCmd.Flags().StringVar(&policyName, "policy", policy.PolicyChord, "Planning policy (chord, scalar)")
	observeCmd.Flags().StringVar(&passportPath, "passport", "", "Operating profile file; default is the observe-max profile")
	observeCmd.Flags().StringVar(&catalogPath, "catalog", "", "Chord catalog file; default is the built-in catalog")
	observeCmd.Flags().StringVar(&outDir, "out", "out", "Output directory for plans, traces and reports")
	observeCmd.Flags().StringVar(&namespaceFlag, "namespace", "default", "Target namespace")
	observeCmd.Flags().StringVar(&deploymentFlag, "deployment", "trainer", "Target deployment")

	rootCmd.AddCommand(observeCmd)
}
