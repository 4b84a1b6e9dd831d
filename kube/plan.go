package kube

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/trainguard/trainguard/policy"
)

// AnnotationPrefix namespaces knob values in deployment annotations. An
// in-cluster agent watches these annotations and applies the values to the
// training process.
const AnnotationPrefix = "trainguard/knob."

// PlanItem is one deployment patch in a change plan.
type PlanItem struct {
	APIVersion string         `json:"apiVersion,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	Namespace  string         `json:"namespace"`
	Name       string         `json:"name"`
	Patch      map[string]any `json:"patch"`
	Reason     string         `json:"reason,omitempty"`
}

// PatchJSON renders the item's patch as compact JSON for kubectl.
func (p PlanItem) PatchJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p.Patch); err != nil {
		return nil, fmt.Errorf("encode patch for %s/%s: %w", p.Namespace, p.Name, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// BuildPlan coalesces applied-or-allowed actions into a single-item plan
// against one deployment. Knob values become annotations on both the
// deployment and its pod template, written in knob name order.
func BuildPlan(namespace, deployment string, actions []policy.Action) []PlanItem {
	if len(actions) == 0 {
		return nil
	}
	annotations := map[string]any{}
	names := make([]string, 0, len(actions))
	targets := make(map[string]int, len(actions))
	for _, a := range actions {
		if _, seen := targets[a.Knob]; !seen {
			names = append(names, a.Knob)
		}
		targets[a.Knob] = a.Target
	}
	sort.Strings(names)
	for _, name := range names {
		annotations[AnnotationPrefix+name] = fmt.Sprintf("%d", targets[name])
	}

	patch := map[string]any{
		"metadata": map[string]any{"annotations": annotations},
		"spec": map[string]any{
			"template": map[string]any{
				"metadata": map[string]any{"annotations": annotations},
			},
		},
	}
	return []PlanItem{{
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Namespace:  namespace,
		Name:       deployment,
		Patch:      patch,
	}}
}

// PlanError locates a malformed plan item.
type PlanError struct {
	Index  int
	Reason string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan item %d: %s", e.Index, e.Reason)
}

// NormalizePlan accepts the three accepted plan layouts -- a JSON list of
// items, an envelope {"items": [...]}, or a single bare item -- and returns
// the item list. Validation failures carry the offending index.
func NormalizePlan(raw []byte) ([]PlanItem, error) {
	var anyDoc any
	if err := json.Unmarshal(raw, &anyDoc); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	var items []PlanItem
	switch doc := anyDoc.(type) {
	case []any:
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("parse plan list: %w", err)
		}
	case map[string]any:
		if _, hasItems := doc["items"]; hasItems {
			var envelope struct {
				Items []PlanItem `json:"items"`
			}
			if err := json.Unmarshal(raw, &envelope); err != nil {
				return nil, fmt.Errorf("parse plan envelope: %w", err)
			}
			items = envelope.Items
		} else {
			var item PlanItem
			if err := json.Unmarshal(raw, &item); err != nil {
				return nil, fmt.Errorf("parse plan item: %w", err)
			}
			items = []PlanItem{item}
		}
	default:
		return nil, fmt.Errorf("parse plan: expected object or list, got %T", anyDoc)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("plan contains no items")
	}
	for i, item := range items {
		if item.Namespace == "" {
			return nil, &PlanError{Index: i, Reason: "missing namespace"}
		}
		if item.Name == "" {
			return nil, &PlanError{Index: i, Reason: "missing name"}
		}
		if item.Patch == nil {
			items[i].Patch = map[string]any{}
		}
		if item.Kind != "" && item.Kind != "Deployment" {
			return nil, &PlanError{Index: i, Reason: fmt.Sprintf("unsupported kind %q", item.Kind)}
		}
	}
	return items, nil
}
