package watch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/c360studio/ontogate/loader"
)

// Reloader applies watch events to the store through the loader.
//
// A new file is loaded on its own. A change to or removal of an already
// loaded file rebuilds the store from the registry, since the engine
// cannot retract one file's triples.
type Reloader struct {
	loader  *loader.Loader
	logger  *slog.Logger
	reloads atomic.Int64
}

// NewReloader creates a reloader. A nil logger uses slog.Default.
func NewReloader(l *loader.Loader, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{loader: l, logger: logger}
}

// Seed records the digests of already loaded files so that the first
// unchanged write does not trigger a reload.
func (r *Reloader) Seed(w *Watcher) {
	for _, entry := range r.loader.Store().Files() {
		w.SetHash(entry.Path, entry.Digest)
	}
}

// Run handles events until the channel closes or ctx is done.
func (r *Reloader) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := r.Handle(ctx, ev); err != nil {
				r.logger.Warn("Reload failed", "path", ev.Path, "op", ev.Operation, "error", err)
			}
		}
	}
}

// Reloads returns how many events changed the store.
func (r *Reloader) Reloads() int64 {
	return r.reloads.Load()
}

// Handle applies one event.
func (r *Reloader) Handle(ctx context.Context, ev Event) error {
	_, known := r.loader.Store().File(ev.Path)

	switch {
	case ev.Operation == OpDelete && !known:
		return nil
	case ev.Operation == OpDelete:
		r.logger.Info("Loaded file removed, rebuilding store", "path", ev.Path)
		return r.rebuild(ctx, ev.Path)
	case known:
		r.logger.Info("Loaded file changed, rebuilding store", "path", ev.Path)
		return r.rebuild(ctx, "")
	default:
		res, err := r.loader.LoadFile(ctx, ev.Path, loader.DefaultOptions())
		if err != nil {
			return err
		}
		r.reloads.Add(1)
		r.logger.Info("Loaded new file", "path", ev.Path, "triples", res.Triples)
		return nil
	}
}

// rebuild clears the store and reloads every registered file except skip.
func (r *Reloader) rebuild(ctx context.Context, skip string) error {
	var paths []string
	for _, p := range r.loader.Store().FilePaths() {
		if p != skip {
			paths = append(paths, p)
		}
	}

	if _, err := r.loader.Clear(ctx); err != nil {
		return err
	}
	r.reloads.Add(1)
	if len(paths) == 0 {
		return nil
	}

	outcome, err := r.loader.LoadFiles(ctx, paths, loader.Options{Validate: true, ContinueOnError: true, Force: true})
	if err != nil {
		return err
	}
	if len(outcome.Failed) > 0 {
		r.logger.Warn("Some files failed during rebuild", "failed", outcome.FailedPaths())
	}
	return nil
}
