package kube

import (
	"context"
	"fmt"
)

// Blocker kinds, most specific first.
const (
	BlockKubectlMissing    = "kubectl_missing"
	BlockNamespaceMissing  = "namespace_missing"
	BlockDeploymentMissing = "deployment_missing"
	BlockRBACDenied        = "rbac_denied"
	BlockDryRunFailed      = "dry_run_failed"
	BlockTimeout           = "timeout"
	BlockUnknown           = "unknown"
)

// Blocker names the single most actionable reason the plan cannot land.
type Blocker struct {
	Kind      string `json:"kind"`
	Index     *int   `json:"index,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ItemCheck records the verification steps run for one plan item. Steps not
// reached stay nil.
type ItemCheck struct {
	Index        int     `json:"index"`
	Namespace    string  `json:"namespace"`
	Name         string  `json:"name"`
	NamespaceOK  *bool   `json:"namespace_ok,omitempty"`
	DeploymentOK *bool   `json:"deployment_ok,omitempty"`
	DryRunOK     *bool   `json:"dry_run_ok,omitempty"`
	DryRun       *Result `json:"dry_run,omitempty"`
}

// VerifyReport is the outcome of the pre-apply cluster gate.
type VerifyReport struct {
	OK      bool           `json:"ok"`
	Items   []ItemCheck    `json:"items"`
	Blocker *Blocker       `json:"blocker,omitempty"`
	RBAC    *ForbiddenInfo `json:"rbac,omitempty"`
}

// VerifyPlan proves each item can land before anything mutates: namespace
// exists, deployment exists, then a server-side dry-run of the exact patch.
// It fails fast at the first failing item so the blocker points at one
// concrete fix.
func VerifyPlan(ctx context.Context, client Client, items []PlanItem) VerifyReport {
	report := VerifyReport{}
	for i, item := range items {
		check := ItemCheck{Index: i, Namespace: item.Namespace, Name: item.Name}

		nsRes := client.RunQuery(ctx, "get", "namespace", item.Namespace)
		if blocker := commandBlocker(nsRes, i, item); blocker != nil {
			report.Items = append(report.Items, check)
			report.Blocker = blocker
			return report
		}
		nsOK := nsRes.OK
		check.NamespaceOK = &nsOK
		if !nsOK {
			report.Items = append(report.Items, check)
			report.Blocker = &Blocker{
				Kind: BlockNamespaceMissing, Index: intPtr(i),
				Namespace: item.Namespace, Name: item.Name,
				Detail: summarize(nsRes),
			}
			return report
		}

		depRes := client.RunQuery(ctx, "-n", item.Namespace, "get", "deployment", item.Name)
		if blocker := commandBlocker(depRes, i, item); blocker != nil {
			report.Items = append(report.Items, check)
			report.Blocker = blocker
			return report
		}
		depOK := depRes.OK
		check.DeploymentOK = &depOK
		if !depOK {
			report.Items = append(report.Items, check)
			report.Blocker = &Blocker{
				Kind: BlockDeploymentMissing, Index: intPtr(i),
				Namespace: item.Namespace, Name: item.Name,
				Detail: summarize(depRes),
			}
			return report
		}

		patch, err := item.PatchJSON()
		if err != nil {
			report.Items = append(report.Items, check)
			report.Blocker = &Blocker{
				Kind: BlockUnknown, Index: intPtr(i),
				Namespace: item.Namespace, Name: item.Name,
				Detail: err.Error(),
			}
			return report
		}
		dryRes := client.RunDryRunPatch(ctx, item.Namespace, item.Name, patch)
		if blocker := commandBlocker(dryRes, i, item); blocker != nil {
			report.Items = append(report.Items, check)
			report.Blocker = blocker
			return report
		}
		dryOK := dryRes.OK
		check.DryRunOK = &dryOK
		check.DryRun = &dryRes
		report.Items = append(report.Items, check)
		if !dryOK {
			kind := ClassifyDryRunFailure(dryRes)
			report.Blocker = &Blocker{
				Kind: kind, Index: intPtr(i),
				Namespace: item.Namespace, Name: item.Name,
				Detail: summarize(dryRes),
			}
			if kind == BlockRBACDenied {
				if info, ok := ParseForbidden(dryRes.Stderr); ok {
					report.RBAC = &info
				}
			}
			return report
		}
	}
	report.OK = true
	return report
}

// commandBlocker maps subprocess-level failures (missing binary, timeout)
// that preempt any cluster answer.
func commandBlocker(res Result, index int, item PlanItem) *Blocker {
	switch res.Err {
	case ErrNotFound:
		return &Blocker{Kind: BlockKubectlMissing, Detail: res.Stderr}
	case ErrTimeout:
		return &Blocker{
			Kind: BlockTimeout, Index: intPtr(index),
			Namespace: item.Namespace, Name: item.Name,
			Detail: fmt.Sprintf("%v: %s", res.Argv, res.Stderr),
		}
	}
	return nil
}

func intPtr(i int) *int { return &i }
