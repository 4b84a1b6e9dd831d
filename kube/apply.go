package kube

import "context"

// ItemApply records the patch attempt for one plan item.
type ItemApply struct {
	Index     int    `json:"index"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Result    Result `json:"result"`
}

// ApplyReport is the outcome of landing a verified plan.
type ApplyReport struct {
	OK      bool        `json:"ok"`
	Items   []ItemApply `json:"items"`
	Blocker *Blocker    `json:"blocker,omitempty"`
}

// ApplyPlan lands the plan with real merge patches, sequentially and
// fail-fast. Callers must have run VerifyPlan first; a failure mid-plan
// leaves earlier patches in place, which the report makes visible.
func ApplyPlan(ctx context.Context, client Client, items []PlanItem) ApplyReport {
	report := ApplyReport{}
	for i, item := range items {
		patch, err := item.PatchJSON()
		if err != nil {
			report.Blocker = &Blocker{
				Kind: BlockUnknown, Index: intPtr(i),
				Namespace: item.Namespace, Name: item.Name,
				Detail: err.Error(),
			}
			return report
		}
		res := client.RunPatch(ctx, item.Namespace, item.Name, patch)
		report.Items = append(report.Items, ItemApply{
			Index: i, Namespace: item.Namespace, Name: item.Name,
			OK: res.OK, Result: res,
		})
		if !res.OK {
			if blocker := commandBlocker(res, i, item); blocker != nil {
				report.Blocker = blocker
			} else {
				kind := ClassifyDryRunFailure(res)
				report.Blocker = &Blocker{
					Kind: kind, Index: intPtr(i),
					Namespace: item.Namespace, Name: item.Name,
					Detail: summarize(res),
				}
			}
			return report
		}
	}
	report.OK = true
	return report
}
