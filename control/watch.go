package control

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatchOptions configures a multi-iteration run.
type WatchOptions struct {
	Loop LoopOptions
	// Iterations bounds the run; 0 means run until the context is
	// cancelled or an interrupt arrives.
	Iterations int
	Interval   time.Duration
	// OutDir receives one iter_NNNN subdirectory per iteration plus the
	// run summary.
	OutDir string
}

// WatchSummary totals a watch run.
type WatchSummary struct {
	Iterations int            `json:"iterations"`
	Applied    int            `json:"applied"`
	Blocked    int            `json:"blocked"`
	Incidents  int            `json:"incidents"`
	Blocks     map[string]int `json:"blocks"`
	Stopped    string         `json:"stopped"`
}

// RunWatch runs the loop repeatedly. Each iteration writes into its own
// subdirectory; a change to the kill-switch file wakes the loop early so
// the switch takes effect on the next tick rather than after a full
// interval. The current iteration always finishes before the loop stops.
func RunWatch(ctx context.Context, opts WatchOptions) (*WatchSummary, error) {
	log := opts.Loop.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	wake := make(chan struct{}, 1)
	if opts.Loop.Env.KillSwitchFile != "" {
		watcher, err := watchKillSwitchFile(opts.Loop.Env.KillSwitchFile, wake, log)
		if err != nil {
			log.WithError(err).Warn("kill-switch file watch unavailable, polling only")
		} else {
			defer watcher.Close()
		}
	}

	summary := &WatchSummary{Blocks: map[string]int{}, Stopped: "completed"}
	for i := 0; opts.Iterations == 0 || i < opts.Iterations; i++ {
		iter := opts.Loop
		iter.Tick = i
		if opts.OutDir != "" {
			iter.OutDir = filepath.Join(opts.OutDir, fmt.Sprintf("iter_%04d", i))
		}

		// Each iteration runs on a detached context so an interrupt never
		// cancels an in-flight kubectl mutation; the signal is honored at
		// the select below, after artifacts are written.
		outcome, err := iter.RunOnce(context.WithoutCancel(ctx))
		if err != nil {
			return summary, fmt.Errorf("iteration %d: %w", i, err)
		}
		summary.Iterations++
		if outcome.Signals.Incident {
			summary.Incidents++
		}
		if outcome.BlockedReason != "" {
			summary.Blocked++
			summary.Blocks[outcome.BlockedReason]++
		}
		for _, r := range outcome.Results {
			if r.Applied {
				summary.Applied++
			}
		}
		log.WithFields(logrus.Fields{
			"iteration": i, "blocked": outcome.BlockedReason, "actions": len(outcome.Actions),
		}).Info("iteration finished")

		if opts.Iterations != 0 && i == opts.Iterations-1 {
			break
		}
		select {
		case <-ctx.Done():
			summary.Stopped = "interrupted"
			return summary, nil
		case <-wake:
			log.Info("kill-switch file changed, evaluating immediately")
		case <-time.After(opts.Interval):
		}
	}
	return summary, nil
}

// watchKillSwitchFile watches the kill-switch file's directory, since the
// file itself may not exist yet and may be replaced atomically.
func watchKillSwitchFile(path string, wake chan<- struct{}, log *logrus.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("kill-switch file watch error")
			}
		}
	}()
	return watcher, nil
}
