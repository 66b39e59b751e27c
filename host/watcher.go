package host

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bpowers/go-modelcontext/internal/logging"
)

// DefaultSettle is how long the manifest directory must be quiet before it
// is reloaded. Editors and package tools often write a file in several steps.
const DefaultSettle = 200 * time.Millisecond

// Watcher reloads a Registry whenever its manifest directory changes and
// reports the resulting install, update and removal events.
type Watcher struct {
	dir      string
	registry *Registry
	settle   time.Duration
}

// NewWatcher watches dir, which must be the directory registry reads.
func NewWatcher(dir string, registry *Registry) *Watcher {
	return &Watcher{dir: dir, registry: registry, settle: DefaultSettle}
}

// SetSettle overrides DefaultSettle.
func (w *Watcher) SetSettle(d time.Duration) {
	w.settle = d
}

// Watch starts watching. The returned channel is closed once ctx ends.
func (w *Watcher) Watch(ctx context.Context) (<-chan Event, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch manifests: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", w.dir, err)
	}

	out := make(chan Event)
	go w.loop(ctx, fw, out)
	return out, nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, out chan<- Event) {
	log := logging.For("host")
	defer close(out)
	defer fw.Close()

	timer := time.NewTimer(w.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !isManifest(ev.Name) {
				continue
			}
			log.Debug("manifest changed", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(w.settle)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warn("manifest watch error", "error", err)
		case <-timer.C:
			events, err := w.registry.Load()
			if err != nil {
				log.Warn("manifest reload failed", "error", err)
				continue
			}
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
