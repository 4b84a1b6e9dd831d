// Package knobs holds the actuator registry: the bounded, steppable integer
// configuration values the controller is allowed to adjust. The registry is
// reconstructed with fixed defaults at process start; knob state is never
// persisted across invocations.
package knobs

import (
	"sort"
	"time"
)

// Knob is a bounded integer actuator. Min and Max are inclusive.
type Knob struct {
	Name          string
	Min           int
	Max           int
	Step          int
	Value         int
	LastChangedAt time.Time // zero until the first Apply
}

// Clamp limits target to the knob bounds.
func (k *Knob) Clamp(target int) int {
	if target < k.Min {
		return k.Min
	}
	if target > k.Max {
		return k.Max
	}
	return target
}

// Apply clamps and sets the value, stamping LastChangedAt.
func (k *Knob) Apply(target int, now time.Time) int {
	k.Value = k.Clamp(target)
	k.LastChangedAt = now
	return k.Value
}

// Registry maps knob names to their current state. It is owned by a single
// control-loop goroutine; no locking.
type Registry struct {
	knobs map[string]*Knob
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{knobs: make(map[string]*Knob)}
}

// Register adds or replaces a knob.
func (r *Registry) Register(k Knob) {
	copied := k
	r.knobs[k.Name] = &copied
}

// Get returns the knob with the given name, or nil.
func (r *Registry) Get(name string) *Knob {
	return r.knobs[name]
}

// Names returns all registered knob names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.knobs))
	for name := range r.knobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot captures current knob values by name.
func (r *Registry) Snapshot() map[string]int {
	snapshot := make(map[string]int, len(r.knobs))
	for name, k := range r.knobs {
		snapshot[name] = k.Value
	}
	return snapshot
}

// Restore sets values from a snapshot. Unknown names are ignored; bounds and
// LastChangedAt are untouched.
func (r *Registry) Restore(snapshot map[string]int) {
	for name, value := range snapshot {
		if k, ok := r.knobs[name]; ok {
			k.Value = value
		}
	}
}

// DefaultRegistry builds the fixed training-knob set every invocation
// starts from.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Knob{Name: "dataloader_num_workers", Min: 1, Max: 16, Step: 1, Value: 4})
	r.Register(Knob{Name: "dataloader_prefetch_factor", Min: 1, Max: 8, Step: 1, Value: 2})
	r.Register(Knob{Name: "grad_accum_steps", Min: 1, Max: 64, Step: 1, Value: 4})
	r.Register(Knob{Name: "microbatch_size", Min: 1, Max: 256, Step: 1, Value: 32})
	r.Register(Knob{Name: "comm_bucket_mb", Min: 16, Max: 512, Step: 16, Value: 128})
	r.Register(Knob{Name: "timeout_ms", Min: 1000, Max: 60000, Step: 500, Value: 5000})
	r.Register(Knob{Name: "concurrency", Min: 1, Max: 64, Step: 1, Value: 8})
	return r
}
