package kube

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainguard/trainguard/policy"
)

func TestBuildPlan_AnnotatesDeploymentAndPodTemplate(t *testing.T) {
	actions := []policy.Action{
		{Knob: "concurrency", Target: 4},
		{Knob: "microbatch_size", Target: 16},
	}

	plan := BuildPlan("ml-prod", "trainer", actions)

	require.Len(t, plan, 1)
	item := plan[0]
	assert.Equal(t, "apps/v1", item.APIVersion)
	assert.Equal(t, "Deployment", item.Kind)
	assert.Equal(t, "ml-prod", item.Namespace)
	assert.Equal(t, "trainer", item.Name)

	meta := item.Patch["metadata"].(map[string]any)["annotations"].(map[string]any)
	assert.Equal(t, "4", meta[AnnotationPrefix+"concurrency"])
	assert.Equal(t, "16", meta[AnnotationPrefix+"microbatch_size"])

	tmpl := item.Patch["spec"].(map[string]any)["template"].(map[string]any)
	tmplMeta := tmpl["metadata"].(map[string]any)["annotations"].(map[string]any)
	assert.Equal(t, meta, tmplMeta)
}

func TestBuildPlan_LastTargetWinsPerKnob(t *testing.T) {
	actions := []policy.Action{
		{Knob: "concurrency", Target: 4},
		{Knob: "concurrency", Target: 2},
	}

	plan := BuildPlan("ml-prod", "trainer", actions)

	require.Len(t, plan, 1)
	meta := plan[0].Patch["metadata"].(map[string]any)["annotations"].(map[string]any)
	assert.Equal(t, "2", meta[AnnotationPrefix+"concurrency"])
}

func TestBuildPlan_NoActions_NoItems(t *testing.T) {
	assert.Nil(t, BuildPlan("ml-prod", "trainer", nil))
}

func TestNormalizePlan_List(t *testing.T) {
	items, err := NormalizePlan([]byte(`[
		{"namespace": "a", "name": "x", "patch": {"metadata": {}}},
		{"namespace": "b", "name": "y", "patch": {"metadata": {}}}
	]`))
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestNormalizePlan_Envelope(t *testing.T) {
	items, err := NormalizePlan([]byte(`{"items": [
		{"namespace": "a", "name": "x", "patch": {"metadata": {}}}
	]}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestNormalizePlan_SingleBareItem(t *testing.T) {
	items, err := NormalizePlan([]byte(`{"namespace": "a", "name": "x", "patch": {"metadata": {}}}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Namespace)
}

func TestNormalizePlan_EmptyPatch_Accepted(t *testing.T) {
	items, err := NormalizePlan([]byte(`[{"namespace": "a", "name": "x", "patch": {}}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotNil(t, items[0].Patch)
	assert.Empty(t, items[0].Patch)
}

func TestNormalizePlan_MissingPatch_CoercedToEmpty(t *testing.T) {
	items, err := NormalizePlan([]byte(`{"namespace": "a", "name": "x"}`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotNil(t, items[0].Patch)
	assert.Empty(t, items[0].Patch)
}

func TestNormalizePlan_NonObjectPatch_Rejected(t *testing.T) {
	_, err := NormalizePlan([]byte(`[{"namespace": "a", "name": "x", "patch": 5}]`))
	assert.Error(t, err)
}

func TestNormalizePlan_MissingFields_ReportIndex(t *testing.T) {
	_, err := NormalizePlan([]byte(`[
		{"namespace": "a", "name": "x", "patch": {"metadata": {}}},
		{"namespace": "b", "patch": {"metadata": {}}}
	]`))
	require.Error(t, err)
	var planErr *PlanError
	require.True(t, errors.As(err, &planErr))
	assert.Equal(t, 1, planErr.Index)
}

func TestNormalizePlan_UnsupportedKind(t *testing.T) {
	_, err := NormalizePlan([]byte(`{"kind": "StatefulSet", "namespace": "a", "name": "x", "patch": {"metadata": {}}}`))
	assert.Error(t, err)
}

func TestNormalizePlan_EmptyList(t *testing.T) {
	_, err := NormalizePlan([]byte(`[]`))
	assert.Error(t, err)
}

func TestNormalizePlan_NotJSON(t *testing.T) {
	_, err := NormalizePlan([]byte(`nope`))
	assert.Error(t, err)
}

func TestPatchJSON_CompactWithoutHTMLEscape(t *testing.T) {
	item := PlanItem{Namespace: "a", Name: "x", Patch: map[string]any{
		"metadata": map[string]any{"annotations": map[string]any{AnnotationPrefix + "concurrency": "4"}},
	}}
	data, err := item.PatchJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"metadata":{"annotations":{"trainguard/knob.concurrency":"4"}}}`, string(data))
}
