// Package watcher reloads the service manifest when it changes on disk.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event represents a manifest file event.
type Event struct {
	Path      string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called when the manifest changes.
type Handler func(ctx context.Context, event Event) error

// pendingEvent holds a debounced event with its operation.
type pendingEvent struct {
	timestamp time.Time
	op        Operation
}

// Watcher watches the service manifest file for changes. The manifest's
// parent directory is watched rather than the file itself, so the watch
// survives editors that save by renaming a temp file over the target.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	manifest  string
	debounce  time.Duration
	mu        sync.Mutex
	pending   *pendingEvent
}

// Config holds watcher configuration.
type Config struct {
	Path     string
	Debounce time.Duration
}

// New creates a manifest watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	manifest, err := filepath.Abs(cfg.Path)
	if err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		manifest:  manifest,
		debounce:  cfg.Debounce,
	}, nil
}

// Start begins watching the manifest's directory.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.manifest)
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching manifest", "path", w.manifest)

	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// eventLoop processes fsnotify events.
func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent records a single fsnotify event for debouncing. Events for
// other files in the manifest's directory are ignored.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.manifest {
		return
	}

	w.logger.Debug("manifest event", "path", event.Name, "op", event.Op.String())

	op := fsnotifyOpToOperation(event.Op)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil {
		w.pending = &pendingEvent{timestamp: time.Now(), op: op}
		return
	}

	w.pending.timestamp = time.Now()
	w.pending.op = collapseOp(w.pending.op, op)
}

// collapseOp merges a new operation into a pending one. A delete followed by
// a create is the rename dance editors do on save, so it reads as a create;
// a fresh delete always wins.
func collapseOp(existing, next Operation) Operation {
	switch {
	case existing == OpDelete && next == OpCreate:
		return OpCreate
	case next == OpDelete:
		return OpDelete
	default:
		return existing
	}
}

// debounceLoop fires the handler once the manifest has been quiet long
// enough.
func (w *Watcher) debounceLoop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending fires the handler for a settled pending event.
func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil || time.Since(w.pending.timestamp) < w.debounce {
		return
	}

	event := Event{Path: w.manifest, Operation: w.pending.op}
	w.pending = nil

	w.logger.Info("manifest changed",
		"path", event.Path,
		"operation", event.Operation.String(),
	)

	// Call handler in goroutine to not block the debounce loop
	go func() {
		if err := w.handler(ctx, event); err != nil {
			w.logger.Error("manifest reload failed",
				"path", event.Path,
				"operation", event.Operation.String(),
				"error", err,
			)
		}
	}()
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove):
		return OpDelete
	case op.Has(fsnotify.Rename):
		// Rename means the file is gone from its original location
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		// Write, Chmod, etc. are treated as modify
		return OpModify
	}
}
