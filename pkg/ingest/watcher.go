package ingest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/anggasct/junction/pkg/logging"
)

// Watch starts a goroutine that marks the ingestor dirty whenever the arrival
// file is written or created. Once watching, Poll skips the file while it is
// clean. The goroutine stops when ctx is cancelled.
func (i *Ingestor) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create arrival watcher: %w", err)
	}

	logger := logging.FromContext(ctx).
		WithName("ingest-watcher").
		WithValues("path", i.path)
	traceLogger := logger.V(logging.TRACE)

	// Watch the directory so the file may be created after we start.
	target := filepath.Clean(i.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(target), err)
	}

	i.dirty.Store(true)
	i.watching.Store(true)

	go func() {
		defer w.Close()
		defer i.watching.Store(false)

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				traceLogger.Info("Arrival file changed", "event", ev)
				i.dirty.Store(true)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error(err, "Arrival watcher failed")
				// Events may have been lost.
				i.dirty.Store(true)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Watching reports whether a watcher goroutine is running
func (i *Ingestor) Watching() bool {
	return i.watching.Load()
}
