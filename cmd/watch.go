package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trainguard/trainguard/control"
	"github.com/trainguard/trainguard/policy"
)

var (
	watchIterations int    // Number of iterations; 0 runs until interrupted
	watchInterval   string // Pause between iterations ("30s" or bare seconds)
)

// watchCmd runs the loop repeatedly, one output directory per iteration.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the loop repeatedly until the iteration budget or an interrupt",
	Run: func(cmd *cobra.Command, args []string) {
		interval, err := control.ParseDuration(watchInterval)
		if err != nil {
			logrus.Fatalf("invalid --interval: %v", err)
		}
		loop, err := buildLoop(applyChanges)
		if err != nil {
			logrus.Fatalf("unable to set up watch: %v", err)
		}
		summary, err := control.RunWatch(cmd.Context(), control.WatchOptions{
			Loop:       *loop,
			Iterations: watchIterations,
			Interval:   interval,
			OutDir:     outDir,
		})
		if err != nil {
			logrus.Fatalf("watch failed: %v", err)
		}
		writeRunReport(loop.Mode, summary)
		printJSON(summary)
		if summary.Blocked > 0 && summary.Applied == 0 {
			os.Exit(blockedExitCode)
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&sourceKind, "source", "synthetic", "Telemetry source (synthetic, file)")
	watchCmd.Flags().StringVar(&scenario, "scenario", "stable", "Synthetic scenario (stable, drift, burst, straggler, gpu)")
	watchCmd.Flags().StringVar(&inputPath, "input", "", "Telemetry file (.jsonl or .csv) for --source file")
	watchCmd.Flags().Int64Var(&sourceSeed, "seed", 42, "Seed for synthetic telemetry")
	watchCmd.Flags().Int64Var(&durationMS, "duration-ms", 60000, "Synthetic telemetry window in milliseconds")
	watchCmd.Flags().StringVar(&policyName, "policy", policy.PolicyChord, "Planning policy (chord, scalar)")
	watchCmd.Flags().StringVar(&passportPath, "passport", "", "Operating profile file; default is the observe-max profile")
	watchCmd.Flags().StringVar(&catalogPath, "catalog", "", "Chord catalog file; default is the built-in catalog")
	watchCmd.Flags().StringVar(&outDir, "out", "out", "Output directory for plans, traces and reports")
	watchCmd.Flags().StringVar(&namespaceFlag, "namespace", "default", "Target namespace")
	watchCmd.Flags().StringVar(&deploymentFlag, "deployment", "trainer", "Target deployment")
	watchCmd.Flags().BoolVar(&applyChanges, "apply", false, "Apply gated changes; default is a dry run")
	watchCmd.Flags().BoolVar(&approveAdvanced, "approve-advanced", false, "Approve advanced-tier chords for this run")
	watchCmd.Flags().IntVar(&watchIterations, "iterations", 0, "Number of iterations; 0 runs until interrupted")
	watchCmd.Flags().StringVar(&watchInterval, "interval", "30s", "Pause between iterations (Go duration or bare seconds)")

	rootCmd.AddCommand(watchCmd)
}
