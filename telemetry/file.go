package telemetry

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// IngestStats counts records dropped while reading a telemetry file.
// Dropped records never abort the read; they are reported alongside the
// surviving samples so the caller can judge window quality.
type IngestStats struct {
	DroppedInvalidJSON   int `json:"dropped_invalid_json"`
	DroppedInvalidShape  int `json:"dropped_invalid_shape"`
	DroppedMissingFields int `json:"dropped_missing_fields"`
}

// DroppedTotal sums all drop counters.
func (s IngestStats) DroppedTotal() int {
	return s.DroppedInvalidJSON + s.DroppedInvalidShape + s.DroppedMissingFields
}

// FileSource reads telemetry samples from a .jsonl or .csv file.
// RowsRead and Ingest are populated after Read returns.
type FileSource struct {
	Path     string
	RowsRead int
	Ingest   IngestStats
}

// Read parses the file according to its extension.
func (f *FileSource) Read() ([]Sample, error) {
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".jsonl":
		return f.readJSONL()
	case ".csv":
		return f.readCSV()
	default:
		return nil, fmt.Errorf("unsupported telemetry file type: %s", f.Path)
	}
}

func (f *FileSource) readJSONL() ([]Sample, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry file: %w", err)
	}
	defer file.Close()

	var samples []Sample
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		f.RowsRead++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			f.Ingest.DroppedInvalidJSON++
			continue
		}
		if record == nil {
			f.Ingest.DroppedInvalidShape++
			continue
		}
		sample, err := recordToSample(record)
		if err != nil {
			f.Ingest.DroppedMissingFields++
			continue
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading telemetry file: %w", err)
	}
	return samples, nil
}

func (f *FileSource) readCSV() ([]Sample, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading telemetry csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	var samples []Sample
	for _, row := range rows[1:] {
		f.RowsRead++
		record := make(map[string]any, len(header))
		for i, key := range header {
			if i < len(row) {
				record[key] = row[i]
			}
		}
		sample, err := recordToSample(record)
		if err != nil {
			f.Ingest.DroppedMissingFields++
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func recordToSample(record map[string]any) (Sample, error) {
	ts, ok := record["ts"]
	if !ok || ts == nil {
		return Sample{}, fmt.Errorf("missing ts field")
	}
	timestampMS, err := parseTimestampMS(ts)
	if err != nil {
		return Sample{}, err
	}

	stepTime := record["step_time_ms"]
	if stepTime == nil || stepTime == "" {
		return Sample{}, fmt.Errorf("missing step_time_ms field")
	}
	latencyMS, ok := toFloat(stepTime)
	if !ok {
		return Sample{}, fmt.Errorf("invalid step_time_ms field")
	}

	workers := parseWorkerLatencies(record["worker_latencies_ms"])
	if workers == nil {
		workers = []float64{latencyMS}
	}

	sample := Sample{
		TimestampMS:       timestampMS,
		LatencyMS:         latencyMS,
		WorkerLatenciesMS: workers,
		Node:              pickText(record, "node", "node_name"),
		GPUModel:          pickText(record, "gpu_model", "gpu_name"),
	}
	if loss, ok := toFloat(record["loss"]); ok {
		sample.Loss = &loss
	}
	if util, ok := toFloat(pick(record, "gpu_util_pct", "gpu_util", "gpu_usage_pct", "gpu_usage")); ok {
		sample.GPUUtilPct = &util
	}
	if mem, ok := toFloat(pick(record, "gpu_mem_util_pct", "gpu_mem_util", "gpu_mem_pct")); ok {
		sample.GPUMemUtilPct = &mem
	} else {
		// Derive from raw memory counters when only those are reported.
		used, okUsed := toFloat(pick(record, "gpu_mem_used_mb", "gpu_mem_used", "gpu_mem_used_mib"))
		total, okTotal := toFloat(pick(record, "gpu_mem_total_mb", "gpu_mem_total", "gpu_mem_total_mib"))
		if okUsed && okTotal && total > 0 {
			derived := used / total * 100.0
			sample.GPUMemUtilPct = &derived
		}
	}
	return sample, nil
}

var numericTimestampRE = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)$`)

// parseTimestampMS accepts epoch seconds, epoch milliseconds (numbers above
// 1e11 are treated as milliseconds), or an RFC3339/ISO8601 string.
func parseTimestampMS(value any) (int64, error) {
	switch v := value.(type) {
	case float64:
		return epochToMS(v), nil
	case int64:
		return epochToMS(float64(v)), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, fmt.Errorf("empty ts")
		}
		if numericTimestampRE.MatchString(s) {
			parsed, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid ts: %q", s)
			}
			return epochToMS(parsed), nil
		}
		normalized := strings.Replace(s, " ", "T", 1)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, normalized); err == nil {
				return t.UTC().UnixMilli(), nil
			}
		}
		return 0, fmt.Errorf("invalid ts: %q", s)
	default:
		return 0, fmt.Errorf("invalid ts type %T", value)
	}
}

func epochToMS(v float64) int64 {
	if v > 1e11 {
		return int64(v)
	}
	return int64(v * 1000)
}

func parseWorkerLatencies(value any) []float64 {
	switch v := value.(type) {
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return nil
			}
			out = append(out, f)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		fields := strings.Split(strings.Trim(strings.TrimSpace(v), "[]"), ";")
		out := make([]float64, 0, len(fields))
		for _, field := range fields {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			f, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil
			}
			out = append(out, f)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

func pick(record map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := record[key]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func pickText(record map[string]any, keys ...string) string {
	v := pick(record, keys...)
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
