// Package audit provides the append-only explain log and the decision trace.
// Every guardrail decision and every verify/apply attempt — blocked or not —
// leaves a record here; callers never silently discard a blocked attempt.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Explain event kinds emitted by the guardrail and gate layers.
const (
	EventDecision = "decision"
	EventBlocked  = "blocked"
	EventApplied  = "applied"
	EventDryRun   = "dry_run"
	EventRollback = "rollback"
)

// ExplainLog appends human-readable decision records to a JSONL file.
// A nil *ExplainLog discards events, so optional wiring stays one-liner.
type ExplainLog struct {
	Path string

	clock func() time.Time
}

// NewExplainLog creates an explain log writing to path.
func NewExplainLog(path string) *ExplainLog {
	return &ExplainLog{Path: path}
}

// Emit appends one event record. Errors are returned so the caller can
// surface artifact I/O failures; a nil receiver is a no-op.
func (l *ExplainLog) Emit(event string, payload map[string]any) error {
	if l == nil {
		return nil
	}
	now := time.Now().UTC()
	if l.clock != nil {
		now = l.clock()
	}
	record := map[string]any{
		"ts":      now.Format(time.RFC3339Nano),
		"event":   event,
		"payload": payload,
	}
	return appendJSONLine(l.Path, record)
}

// MustEmit is Emit for call sites where an explain failure must not mask the
// decision being explained; the error is dropped.
func (l *ExplainLog) MustEmit(event string, payload map[string]any) {
	_ = l.Emit(event, payload)
}

func appendJSONLine(path string, record any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding log record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending log record: %w", err)
	}
	return nil
}
