package kube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainguard/trainguard/policy"
)

func testPlan() []PlanItem {
	return BuildPlan("ml-prod", "trainer", []policy.Action{
		{Knob: "concurrency", Target: 4, Reason: "latency_burst"},
	})
}

func TestVerifyPlan_AllChecksPass(t *testing.T) {
	client := newFakeClient()

	report := VerifyPlan(context.Background(), client, testPlan())

	require.True(t, report.OK)
	assert.Nil(t, report.Blocker)
	require.Len(t, report.Items, 1)
	assert.True(t, *report.Items[0].NamespaceOK)
	assert.True(t, *report.Items[0].DeploymentOK)
	assert.True(t, *report.Items[0].DryRunOK)
}

func TestVerifyPlan_MissingNamespace_NoDryRunAttempted(t *testing.T) {
	// GIVEN a plan against a namespace that does not exist
	client := newFakeClient()
	plan := BuildPlan("nowhere", "trainer", []policy.Action{
		{Knob: "concurrency", Target: 4},
	})

	report := VerifyPlan(context.Background(), client, plan)

	// THEN the blocker is namespace_missing and no dry-run ran
	require.False(t, report.OK)
	require.NotNil(t, report.Blocker)
	assert.Equal(t, BlockNamespaceMissing, report.Blocker.Kind)
	assert.Equal(t, "nowhere", report.Blocker.Namespace)
	for _, call := range client.calls {
		assert.NotContains(t, call, "dry-run")
	}
}

func TestVerifyPlan_MissingDeployment(t *testing.T) {
	client := newFakeClient()
	plan := BuildPlan("ml-prod", "ghost", []policy.Action{
		{Knob: "concurrency", Target: 4},
	})

	report := VerifyPlan(context.Background(), client, plan)

	require.NotNil(t, report.Blocker)
	assert.Equal(t, BlockDeploymentMissing, report.Blocker.Kind)
	assert.Equal(t, "ghost", report.Blocker.Name)
}

func TestVerifyPlan_RBACDenied_ParsedIntoReport(t *testing.T) {
	client := newFakeClient()
	client.dryRunStderr["ml-prod/trainer"] = `Error from server (Forbidden): deployments.apps "trainer" is forbidden: ` +
		`User "system:serviceaccount:ml-prod:tg" cannot patch resource "deployments" in API group "apps" in the namespace "ml-prod"`

	report := VerifyPlan(context.Background(), client, testPlan())

	require.NotNil(t, report.Blocker)
	assert.Equal(t, BlockRBACDenied, report.Blocker.Kind)
	require.NotNil(t, report.RBAC)
	assert.Equal(t, "system:serviceaccount:ml-prod:tg", report.RBAC.User)
	assert.Equal(t, "patch", report.RBAC.Verb)
}

func TestVerifyPlan_KubectlMissing(t *testing.T) {
	client := newFakeClient()
	client.binaryGone = true

	report := VerifyPlan(context.Background(), client, testPlan())

	require.NotNil(t, report.Blocker)
	assert.Equal(t, BlockKubectlMissing, report.Blocker.Kind)
}

func TestVerifyPlan_FailsFastAtFirstBadItem(t *testing.T) {
	// GIVEN two items where the first one targets a missing deployment
	client := newFakeClient()
	client.deployments["ml-prod/second"] = true
	plan := append(
		BuildPlan("ml-prod", "ghost", []policy.Action{{Knob: "concurrency", Target: 4}}),
		BuildPlan("ml-prod", "second", []policy.Action{{Knob: "concurrency", Target: 4}})...)

	report := VerifyPlan(context.Background(), client, plan)

	// THEN verification stops at the first item
	require.NotNil(t, report.Blocker)
	require.NotNil(t, report.Blocker.Index)
	assert.Equal(t, 0, *report.Blocker.Index)
	assert.Len(t, report.Items, 1)
	for _, call := range client.calls {
		assert.NotContains(t, call, "second")
	}
}

func TestApplyPlan_PatchesSequentially(t *testing.T) {
	client := newFakeClient()

	report := ApplyPlan(context.Background(), client, testPlan())

	require.True(t, report.OK)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].OK)
}

func TestApplyPlan_FailureStopsAndReports(t *testing.T) {
	client := newFakeClient()
	client.deployments["ml-prod/second"] = true
	client.patchStderr["ml-prod/trainer"] = `Error from server (Forbidden): cannot patch resource "deployments"`
	plan := append(testPlan(),
		BuildPlan("ml-prod", "second", []policy.Action{{Knob: "concurrency", Target: 4}})...)

	report := ApplyPlan(context.Background(), client, plan)

	require.False(t, report.OK)
	require.NotNil(t, report.Blocker)
	assert.Equal(t, BlockRBACDenied, report.Blocker.Kind)
	// The second item was never attempted
	assert.Len(t, report.Items, 1)
}
