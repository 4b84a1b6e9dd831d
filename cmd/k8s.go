package cmd

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trainguard/trainguard/audit"
	"github.com/trainguard/trainguard/config"
	"github.com/trainguard/trainguard/control"
	"github.com/trainguard/trainguard/guards"
	"github.com/trainguard/trainguard/kube"
	"github.com/trainguard/trainguard/license"
	"github.com/trainguard/trainguard/policy"
)

var (
	planPath   string   // Change plan file for verify/apply
	renderSets []string // knob=value pairs for render
)

var k8sCmd = &cobra.Command{
	Use:   "k8s",
	Short: "Verify, apply or render deployment change plans",
}

func loadPlanFile() []kube.PlanItem {
	raw, err := os.ReadFile(planPath)
	if err != nil {
		logrus.Fatalf("unable to read plan: %v", err)
	}
	items, err := kube.NormalizePlan(raw)
	if err != nil {
		logrus.Fatalf("invalid plan: %v", err)
	}
	return items
}

// k8sOutcome is the report payload for the standalone verify and apply
// commands. Blocked invocations still produce one, with the gate that
// stopped them.
type k8sOutcome struct {
	BlockedReason string             `json:"blocked_reason,omitempty"`
	License       *license.Verdict   `json:"license,omitempty"`
	Verify        *kube.VerifyReport `json:"verify,omitempty"`
	Apply         *kube.ApplyReport  `json:"apply,omitempty"`
}

func openExplainLog() *audit.ExplainLog {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		logrus.Fatalf("unable to create output dir: %v", err)
	}
	return &audit.ExplainLog{Path: filepath.Join(outDir, "explain.jsonl")}
}

func writeGateReport(mode control.Mode, prefix string, payload any) {
	report := control.NewReport(mode)
	report.Finish(payload)
	if path, err := report.Write(outDir, prefix); err != nil {
		logrus.Warnf("unable to write report: %v", err)
	} else {
		logrus.Infof("report written to %s", path)
	}
}

// k8sVerifyCmd proves a plan could land without mutating anything. Every
// invocation writes a report pair and an explain entry.
var k8sVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a change plan with server-side dry-run, mutating nothing",
	Run: func(cmd *cobra.Command, args []string) {
		items := loadPlanFile()
		env := config.Default()
		explain := openExplainLog()
		client := kube.NewKubectl(env.KubectlBin)
		report := kube.VerifyPlan(cmd.Context(), client, items)
		explain.MustEmit(audit.EventDryRun, map[string]any{
			"command": "k8s_verify",
			"ok":      report.OK,
			"items":   len(items),
			"blocker": report.Blocker,
		})
		writeGateReport(control.ModeObserveOnly, "verify", report)
		printJSON(report)
		if !report.OK {
			os.Exit(blockedExitCode)
		}
	},
}

// k8sApplyCmd verifies and then lands a plan. The kill switch and license
// gate both apply here exactly as in the closed loop, and blocked attempts
// leave the same artifact trail as successful ones.
var k8sApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Verify and apply a change plan",
	Run: func(cmd *cobra.Command, args []string) {
		items := loadPlanFile()
		env := config.Default()
		explain := openExplainLog()
		var outcome k8sOutcome

		finish := func() {
			writeGateReport(control.ModeClosedLoop, "apply", outcome)
			printJSON(outcome)
			if outcome.BlockedReason != "" {
				logrus.Errorf("apply blocked: %s", outcome.BlockedReason)
				os.Exit(blockedExitCode)
			}
		}

		if ks := env.EvaluateKillSwitch(); ks.Active {
			outcome.BlockedReason = guards.ReasonKillSwitch
			explain.MustEmit(audit.EventBlocked, map[string]any{
				"command": "k8s_apply",
				"reason":  guards.ReasonKillSwitch,
				"signal":  ks.Signal,
			})
			finish()
			return
		}
		client := kube.NewKubectl(env.KubectlBin)
		verdict := resolveLicenseVerdict(cmd, env, client)
		outcome.License = &verdict
		if reason := control.ApplyGateReason(verdict); reason != "" {
			outcome.BlockedReason = reason
			explain.MustEmit(audit.EventBlocked, map[string]any{
				"command":      "k8s_apply",
				"reason":       reason,
				"failure_code": verdict.FailureCode,
			})
			finish()
			return
		}

		verify := kube.VerifyPlan(cmd.Context(), client, items)
		outcome.Verify = &verify
		explain.MustEmit(audit.EventDryRun, map[string]any{
			"command": "k8s_apply",
			"ok":      verify.OK,
			"items":   len(items),
			"blocker": verify.Blocker,
		})
		if !verify.OK {
			outcome.BlockedReason = verify.Blocker.Kind
			finish()
			return
		}
		report := kube.ApplyPlan(cmd.Context(), client, items)
		outcome.Apply = &report
		explain.MustEmit(audit.EventApplied, map[string]any{
			"command": "k8s_apply",
			"ok":      report.OK,
			"blocker": report.Blocker,
		})
		if !report.OK {
			outcome.BlockedReason = report.Blocker.Kind
		}
		finish()
	},
}

// k8sRenderCmd builds a plan from explicit knob targets, without telemetry.
var k8sRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a change plan from knob=value pairs",
	Run: func(cmd *cobra.Command, args []string) {
		if len(renderSets) == 0 {
			logrus.Fatalf("at least one --set knob=value is required")
		}
		sort.Strings(renderSets)
		var actions []policy.Action
		for _, pair := range renderSets {
			name, value, ok := strings.Cut(pair, "=")
			if !ok {
				logrus.Fatalf("invalid --set %q, expected knob=value", pair)
			}
			target, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				logrus.Fatalf("invalid value in --set %q: %v", pair, err)
			}
			actions = append(actions, policy.Action{
				Knob: strings.TrimSpace(name), Target: target, Reason: "render",
			})
		}
		plan := kube.BuildPlan(namespaceFlag, deploymentFlag, actions)
		printJSON(plan)
	},
}

func resolveLicenseVerdict(cmd *cobra.Command, env config.Config, client kube.Client) license.Verdict {
	opts := licenseOptionsFromEnv(env)
	opts.CurrentContext = func() (string, error) { return client.CurrentContext(cmd.Context()) }
	if env.LicensePath == "" {
		return license.Verdict{
			SchemaVersion: license.VerdictSchemaVersion,
			Reason:        "no credential path configured",
			ReasonCode:    license.ReasonInvalid,
			FailureCode:   license.FailUnreadable,
			Entitlements:  []string{},
		}
	}
	return license.VerifyFile(env.LicensePath, opts)
}

func init() {
	k8sVerifyCmd.Flags().StringVar(&planPath, "plan", "", "Change plan file (JSON)")
	k8sVerifyCmd.Flags().StringVar(&outDir, "out", "out", "Output directory for reports and the explain log")
	k8sApplyCmd.Flags().StringVar(&planPath, "plan", "", "Change plan file (JSON)")
	k8sApplyCmd.Flags().StringVar(&outDir, "out", "out", "Output directory for reports and the explain log")
	k8sRenderCmd.Flags().StringArrayVar(&renderSets, "set", nil, "Knob target as knob=value; repeatable")
	k8sRenderCmd.Flags().StringVar(&namespaceFlag, "namespace", "default", "Target namespace")
	k8sRenderCmd.Flags().StringVar(&deploymentFlag, "deployment", "trainer", "Target deployment")

	k8sCmd.AddCommand(k8sVerifyCmd, k8sApplyCmd, k8sRenderCmd)
	rootCmd.AddCommand(k8sCmd)
}
