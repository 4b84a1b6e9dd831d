package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/trainguard/trainguard/audit"
	"github.com/trainguard/trainguard/config"
	"github.com/trainguard/trainguard/control"
	"github.com/trainguard/trainguard/guards"
	"github.com/trainguard/trainguard/knobs"
	"github.com/trainguard/trainguard/kube"
	"github.com/trainguard/trainguard/license"
	"github.com/trainguard/trainguard/passport"
	"github.com/trainguard/trainguard/policy"
	"github.com/trainguard/trainguard/telemetry"
)

// blockedExitCode signals a run that completed but was blocked by a gate.
const blockedExitCode = 2

var (
	// Telemetry flags shared by observe, run and watch
	sourceKind string // Telemetry source: synthetic or file
	scenario   string // Synthetic scenario name
	inputPath  string // Telemetry file (.jsonl or .csv) for the file source
	sourceSeed int64  // Seed for synthetic telemetry
	durationMS int64  // Synthetic telemetry duration in milliseconds

	// Planning and gating flags
	policyName      string // Planning policy: chord or scalar
	passportPath    string // Operating profile; empty means observe-max
	catalogPath     string // Chord catalog override; empty means built-in
	outDir          string // Output directory for plans, traces and reports
	namespaceFlag   string // Target namespace
	deploymentFlag  string // Target deployment
	approveAdvanced bool   // Approve advanced-tier chords for mutating runs
)

func buildSource() (telemetry.Source, error) {
	switch sourceKind {
	case "synthetic":
		return &telemetry.SyntheticSource{
			Scenario:   scenario,
			DurationMS: durationMS,
			Seed:       sourceSeed,
		}, nil
	case "file":
		if inputPath == "" {
			return nil, fmt.Errorf("--input is required with --source file")
		}
		return &telemetry.FileSource{Path: inputPath}, nil
	default:
		return nil, fmt.Errorf("unknown source %q (expected synthetic or file)", sourceKind)
	}
}

func loadCatalog() (*policy.Catalog, error) {
	if catalogPath == "" {
		return policy.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return policy.ParseCatalog(data, catalogPath)
}

func loadPassport(registry *knobs.Registry, catalog *policy.Catalog) (passport.Passport, error) {
	if passportPath == "" {
		return passport.ObserveMax(), nil
	}
	return passport.Load(passportPath, registry, catalog)
}

// buildLoop assembles the full tick wiring from flags and the environment.
func buildLoop(applyChanges bool) (*control.LoopOptions, error) {
	source, err := buildSource()
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	registry := knobs.DefaultRegistry()
	pass, err := loadPassport(registry, catalog)
	if err != nil {
		return nil, err
	}
	if applyChanges && pass.Mode != string(control.ModeClosedLoop) {
		return nil, fmt.Errorf("passport %q is %s; a CLOSED_LOOP passport is required to apply changes", pass.Name, pass.Mode)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	explain := &audit.ExplainLog{Path: filepath.Join(outDir, "explain.jsonl")}
	trace := &audit.DecisionTraceWriter{Path: filepath.Join(outDir, "decision_trace.jsonl")}

	env := config.Default()
	gcfg := pass.GuardConfig()
	g := guards.New(registry, explain, gcfg)

	mode := control.ModeObserveOnly
	if applyChanges {
		mode = control.ModeClosedLoop
	}

	opts := &control.LoopOptions{
		Source:          source,
		Planner:         &policy.PlannerState{StableIntervalsRequired: pass.Limits.RelockStableIntervals},
		Policy:          policyName,
		Guards:          g,
		Catalog:         catalog,
		Explain:         explain,
		Trace:           trace,
		Namespace:       namespaceFlag,
		Deployment:      deploymentFlag,
		Mode:            mode,
		ApplyChanges:    applyChanges,
		ApproveAdvanced: approveAdvanced,
		ChordAllowed:    pass.ChordAllowed,
		Env:             env,
		OutDir:          outDir,
		Log:             logrus.StandardLogger(),
	}
	if applyChanges {
		opts.Client = kube.NewKubectl(env.KubectlBin)
		opts.LicenseOpts = licenseOptionsFromEnv(env)
	}
	return opts, nil
}

func licenseOptionsFromEnv(env config.Config) license.Options {
	opts := license.Options{}
	if env.PublicKeysPath != "" {
		if ring, err := license.LoadKeyring(env.PublicKeysPath); err == nil {
			opts.Keyring = ring
		} else {
			logrus.Warnf("unable to load public keys: %v", err)
		}
	}
	return opts
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logrus.Fatalf("unable to encode output: %v", err)
	}
	fmt.Println(string(data))
}

func writeRunReport(mode control.Mode, payload any) {
	report := control.NewReport(mode)
	report.Finish(payload)
	if path, err := report.Write(outDir, "report"); err != nil {
		logrus.Warnf("unable to write report: %v", err)
	} else {
		logrus.Infof("report written to %s", path)
	}
}
