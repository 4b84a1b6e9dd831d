package kube

import (
	"context"
	"strings"
)

// fakeClient scripts kubectl behavior for tests. Namespaces and deployments
// are looked up by name; dry-run and patch outcomes can be forced per
// deployment.
type fakeClient struct {
	namespaces  map[string]bool
	deployments map[string]bool // "namespace/name"
	context     string

	dryRunStderr map[string]string // forced dry-run failure by "namespace/name"
	patchStderr  map[string]string // forced patch failure by "namespace/name"
	binaryGone   bool

	calls []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		namespaces:   map[string]bool{"ml-prod": true},
		deployments:  map[string]bool{"ml-prod/trainer": true},
		context:      "prod-cluster",
		dryRunStderr: map[string]string{},
		patchStderr:  map[string]string{},
	}
}

func (f *fakeClient) record(kind, key string) {
	f.calls = append(f.calls, kind+" "+key)
}

func (f *fakeClient) notFoundResult(args []string) Result {
	return Result{Argv: args, ExitCode: 127, Err: ErrNotFound, Stderr: "kubectl: command not found"}
}

func (f *fakeClient) RunQuery(ctx context.Context, args ...string) Result {
	if f.binaryGone {
		return f.notFoundResult(args)
	}
	joined := strings.Join(args, " ")
	switch {
	case strings.HasPrefix(joined, "get namespace "):
		ns := args[2]
		f.record("get-ns", ns)
		if f.namespaces[ns] {
			return Result{Argv: args, OK: true}
		}
		return Result{Argv: args, ExitCode: 1,
			Stderr: `Error from server (NotFound): namespaces "` + ns + `" not found`}
	case strings.Contains(joined, "get deployment "):
		key := args[1] + "/" + args[4]
		f.record("get-deploy", key)
		if f.deployments[key] {
			return Result{Argv: args, OK: true}
		}
		return Result{Argv: args, ExitCode: 1,
			Stderr: `Error from server (NotFound): deployments.apps "` + args[4] + `" not found`}
	default:
		return Result{Argv: args, OK: true}
	}
}

func (f *fakeClient) RunDryRunPatch(ctx context.Context, namespace, deployment string, patch []byte) Result {
	if f.binaryGone {
		return f.notFoundResult(nil)
	}
	key := namespace + "/" + deployment
	f.record("dry-run", key)
	if stderr, forced := f.dryRunStderr[key]; forced {
		return Result{ExitCode: 1, Stderr: stderr}
	}
	return Result{OK: true, Stdout: "deployment.apps/" + deployment + " patched (server dry run)"}
}

func (f *fakeClient) RunPatch(ctx context.Context, namespace, deployment string, patch []byte) Result {
	if f.binaryGone {
		return f.notFoundResult(nil)
	}
	key := namespace + "/" + deployment
	f.record("patch", key)
	if stderr, forced := f.patchStderr[key]; forced {
		return Result{ExitCode: 1, Stderr: stderr}
	}
	return Result{OK: true, Stdout: "deployment.apps/" + deployment + " patched"}
}

func (f *fakeClient) CurrentContext(ctx context.Context) (string, error) {
	return f.context, nil
}
