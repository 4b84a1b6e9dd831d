package policy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Catalog schema tags.
const (
	CatalogSchemaVersion  = "chord_catalog.v1"
	ValidateSchemaVersion = "chords_validate.v0"
)

// RiskTierAdvanced marks chords that require explicit approval when mutating.
const RiskTierAdvanced = "advanced"

var requiredChordKeys = []string{
	"id", "intent", "risk_tier", "required_signals", "invariants", "knobs_touched",
}

var allowedChordKeys = map[string]bool{
	"id": true, "intent": true, "risk_tier": true, "required_signals": true,
	"invariants": true, "knobs_touched": true, "cooldown_ms": true, "budget": true,
}

// ChordSpec is one catalog entry.
type ChordSpec struct {
	ID              string         `json:"id"`
	Intent          string         `json:"intent"`
	RiskTier        string         `json:"risk_tier"`
	RequiredSignals []string       `json:"required_signals"`
	Invariants      []string       `json:"invariants"`
	KnobsTouched    []string       `json:"knobs_touched"`
	CooldownMS      *int64         `json:"cooldown_ms,omitempty"`
	Budget          map[string]any `json:"budget,omitempty"`
}

// Catalog is the validated chord catalog.
type Catalog struct {
	SchemaVersion string      `json:"schema_version"`
	Chords        []ChordSpec `json:"chords"`
}

// Index returns chord specs keyed by id.
func (c *Catalog) Index() map[string]ChordSpec {
	index := make(map[string]ChordSpec, len(c.Chords))
	for _, spec := range c.Chords {
		index[spec.ID] = spec
	}
	return index
}

// ValidationReport is the chords_validate.v0 payload.
type ValidationReport struct {
	SchemaVersion string   `json:"schema_version"`
	OK            bool     `json:"ok"`
	Errors        []string `json:"errors"`
	ChordCount    int      `json:"chord_count"`
	ChordIDs      []string `json:"chord_ids"`
}

// ValidateCatalogMap checks an already-decoded catalog document and returns
// every schema violation found, prefixed with source for attribution.
func ValidateCatalogMap(catalog map[string]any, source string) []string {
	var errs []string

	var topUnknown []string
	for key := range catalog {
		if key != "schema_version" && key != "chords" {
			topUnknown = append(topUnknown, key)
		}
	}
	sort.Strings(topUnknown)
	for _, key := range topUnknown {
		errs = append(errs, fmt.Sprintf("%s: unknown top-level field '%s'", source, key))
	}

	if catalog["schema_version"] != CatalogSchemaVersion {
		errs = append(errs, fmt.Sprintf("%s: schema_version must be '%s'", source, CatalogSchemaVersion))
	}

	chords, ok := catalog["chords"].([]any)
	if !ok {
		errs = append(errs, fmt.Sprintf("%s: chords must be an array", source))
		return errs
	}

	seen := make(map[string]bool)
	for index, raw := range chords {
		path := fmt.Sprintf("%s: chords[%d]", source, index)
		item, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, path+" must be an object")
			continue
		}

		var unknown []string
		for key := range item {
			if !allowedChordKeys[key] {
				unknown = append(unknown, key)
			}
		}
		sort.Strings(unknown)
		for _, key := range unknown {
			errs = append(errs, fmt.Sprintf("%s: unknown field '%s'", path, key))
		}

		for _, key := range requiredChordKeys {
			if _, present := item[key]; !present {
				errs = append(errs, fmt.Sprintf("%s: missing required field '%s'", path, key))
			}
		}

		if id, ok := item["id"].(string); ok {
			if seen[id] {
				errs = append(errs, fmt.Sprintf("%s: duplicate chord id '%s'", path, id))
			}
			seen[id] = true
		} else {
			errs = append(errs, path+": id must be string")
		}

		if _, ok := item["intent"].(string); !ok {
			errs = append(errs, path+": intent must be string")
		}
		if _, ok := item["risk_tier"].(string); !ok {
			errs = append(errs, path+": risk_tier must be string")
		}
		for _, key := range []string{"required_signals", "invariants", "knobs_touched"} {
			if !isStringList(item[key]) {
				errs = append(errs, fmt.Sprintf("%s: %s must be array of strings", path, key))
			}
		}
		if v, present := item["cooldown_ms"]; present && !isJSONInt(v) {
			errs = append(errs, path+": cooldown_ms must be int")
		}
		if v, present := item["budget"]; present {
			if _, ok := v.(map[string]any); !ok {
				errs = append(errs, path+": budget must be object")
			}
		}
	}
	return errs
}

// ParseCatalog decodes and validates a catalog document.
func ParseCatalog(data []byte, source string) (*Catalog, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON: %w", source, err)
	}
	if errs := ValidateCatalogMap(raw, source); len(errs) > 0 {
		return nil, fmt.Errorf("%s", joinErrors(errs))
	}
	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("%s: invalid catalog: %w", source, err)
	}
	return &catalog, nil
}

// ValidateCatalogFile builds the chords_validate.v0 report for a catalog
// file. File and JSON errors are reported, never returned.
func ValidateCatalogFile(path string) ValidationReport {
	report := ValidationReport{
		SchemaVersion: ValidateSchemaVersion,
		Errors:        []string{},
		ChordIDs:      []string{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: file not found", path))
		return report
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: invalid JSON: %v", path, err))
		return report
	}

	if chords, ok := raw["chords"].([]any); ok {
		report.ChordCount = len(chords)
		ids := make(map[string]bool)
		for _, item := range chords {
			if m, ok := item.(map[string]any); ok {
				if id, ok := m["id"].(string); ok {
					ids[id] = true
				}
			}
		}
		for id := range ids {
			report.ChordIDs = append(report.ChordIDs, id)
		}
		sort.Strings(report.ChordIDs)
	}

	report.Errors = append(report.Errors, ValidateCatalogMap(raw, path)...)
	report.OK = len(report.Errors) == 0
	return report
}

//go:embed catalog_v1.json
var defaultCatalogJSON []byte

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog returns the embedded v1 catalog. The embedded document is
// validated once; a schema error there is a build defect and panics.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		catalog, err := ParseCatalog(defaultCatalogJSON, "catalog_v1.json")
		if err != nil {
			panic(err)
		}
		defaultCatalog = catalog
	})
	return defaultCatalog
}

func isStringList(v any) bool {
	list, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if _, ok := item.(string); !ok {
			return false
		}
	}
	return true
}

// isJSONInt accepts a JSON number with no fractional part.
func isJSONInt(v any) bool {
	f, ok := v.(float64)
	return ok && f == float64(int64(f))
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}
