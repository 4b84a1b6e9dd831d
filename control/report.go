package control

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Report is the envelope written at the end of each run.
type Report struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Payload    any       `json:"payload"`
}

// NewReport stamps a fresh run id and start time.
func NewReport(mode Mode) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Mode:      string(mode),
		StartedAt: time.Now().UTC(),
	}
}

// Finish sets the payload and end time.
func (r *Report) Finish(payload any) {
	r.Payload = payload
	r.FinishedAt = time.Now().UTC()
}

// Write stores the report twice under dir: a timestamped file that is never
// overwritten and a <prefix>_latest.json pointer for scripts. Returns the
// timestamped path.
func (r *Report) Write(dir, prefix string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	stamp := r.FinishedAt
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	stamped := filepath.Join(dir, fmt.Sprintf("%s_%s.json", prefix, stamp.Format("20060102T150405Z")))
	if err := os.WriteFile(stamped, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	latest := filepath.Join(dir, prefix+"_latest.json")
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return "", fmt.Errorf("write latest report: %w", err)
	}
	return stamped, nil
}
