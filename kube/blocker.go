package kube

import (
	"strconv"
	"strings"
)

// ClassifyDryRunFailure names why a server-side dry-run patch was rejected.
// RBAC denials dominate; a NotFound at this stage means the resource went
// away between the existence check and the patch.
func ClassifyDryRunFailure(res Result) string {
	stderr := strings.ToLower(res.Stderr)
	switch {
	case strings.Contains(stderr, "forbidden") || strings.Contains(stderr, "cannot patch"):
		return BlockRBACDenied
	case strings.Contains(stderr, "notfound") || strings.Contains(stderr, "not found"):
		if strings.Contains(stderr, "namespace") {
			return BlockNamespaceMissing
		}
		return BlockDeploymentMissing
	case stderr == "":
		return BlockUnknown
	default:
		return BlockDryRunFailed
	}
}

// summarize condenses a failed invocation to one diagnostic line, preferring
// stderr over stdout.
func summarize(res Result) string {
	if s := firstLine(res.Stderr); s != "" {
		return s
	}
	if s := firstLine(res.Stdout); s != "" {
		return s
	}
	if res.ExitCode != 0 {
		return "exit code " + strconv.Itoa(res.ExitCode)
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 300
	if len(s) > max {
		s = s[:max]
	}
	return s
}
