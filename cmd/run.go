package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trainguard/trainguard/policy"
)

var applyChanges bool // Apply gated changes instead of dry-running them

// runCmd executes one closed-loop tick, applying gated changes when --apply
// is set and every gate is green.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one closed-loop tick against the target deployment",
	Run: func(cmd *cobra.Command, args []string) {
		loop, err := buildLoop(applyChanges)
		if err != nil {
			logrus.Fatalf("unable to set up run: %v", err)
		}
		outcome, err := loop.RunOnce(cmd.Context())
		if err != nil {
			logrus.Fatalf("run failed: %v", err)
		}
		writeRunReport(loop.Mode, outcome)
		printJSON(outcome)
		if outcome.BlockedReason != "" {
			logrus.Warnf("run blocked: %s", outcome.BlockedReason)
			os.Exit(blockedExitCode)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&sourceKind, "source", "synthetic", "Telemetry source (synthetic, file)")
	runCmd.Flags().StringVar(&scenario, "scenario", "stable", "Synthetic scenario (stable, drift, burst, straggler, gpu)")
	runCmd.Flags().StringVar(&inputPath, "input", "", "Telemetry file (.jsonl or .csv) for --source file")
	runCmd.Flags().Int64Var(&sourceSeed, "seed", 42, "Seed for synthetic telemetry")
	runCmd.Flags().Int64Var(&durationMS, "duration-ms", 60000, "Synthetic telemetry window in milliseconds")
	runCmd.Flags().StringVar(&policyName, "policy", policy.PolicyChord, "Planning policy (chord, scalar)")
	runCmd.Flags().StringVar(&passportPath, "passport", "", "Operating profile file; default is the observe-max profile")
	runCmd.Flags().StringVar(&catalogPath, "catalog", "", "Chord catalog file; default is the built-in catalog")
	runCmd.Flags().StringVar(&outDir, "out", "out", "Output directory for plans, traces and reports")
	runCmd.Flags().StringVar(&namespaceFlag, "namespace", "default", "Target namespace")
	runCmd.Flags().StringVar(&deploymentFlag, "deployment", "trainer", "Target deployment")
	runCmd.Flags().BoolVar(&applyChanges, "apply", false, "Apply gated changes; default is a dry run")
	runCmd.Flags().BoolVar(&approveAdvanced, "approve-advanced", false, "Approve advanced-tier chords for this run")

	rootCmd.AddCommand(runCmd)
}
