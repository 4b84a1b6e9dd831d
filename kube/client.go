// Package kube talks to the cluster exclusively through the kubectl binary:
// read-only queries, server-side dry-run patches for the verify gate, and
// real merge patches for apply. No client-go; the operator's kubectl carries
// the auth context.
package kube

import "context"

// Result error classifications.
const (
	ErrNone     = ""
	ErrNotFound = "not_found"
	ErrTimeout  = "timeout"
)

// Result captures one kubectl invocation.
type Result struct {
	Argv     []string `json:"argv"`
	OK       bool     `json:"ok"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
	// Err is "", "not_found" (binary missing) or "timeout".
	Err string `json:"err,omitempty"`
}

// Client is the narrow cluster surface the verify and apply gates need.
type Client interface {
	// RunQuery runs a read-only kubectl command (get, config view).
	RunQuery(ctx context.Context, args ...string) Result
	// RunDryRunPatch issues a server-side dry-run merge patch.
	RunDryRunPatch(ctx context.Context, namespace, deployment string, patch []byte) Result
	// RunPatch issues a real merge patch.
	RunPatch(ctx context.Context, namespace, deployment string, patch []byte) Result
	// CurrentContext resolves the active kubeconfig context.
	CurrentContext(ctx context.Context) (string, error)
}
