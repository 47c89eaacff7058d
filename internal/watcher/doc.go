// Package watcher keeps a project's index current while files change.
//
// A Watcher follows the project with fsnotify, falling back to polling when
// fsnotify cannot be set up (network mounts, some container volumes).
// Events pass the same ignore rules as the scanner and are debounced into
// batches, so an editor save or a git checkout becomes one batch. A Trigger
// turns each batch into an incremental reindex.
//
//	w, err := watcher.New(watcher.Options{Debounce: cfg.DebounceDuration()})
//	if err != nil {
//	    return err
//	}
//	t := watcher.NewTrigger(w, func(ctx context.Context) error {
//	    _, err := engine.Reindex(ctx, root)
//	    return err
//	})
//	return t.Run(ctx, root)
package watcher
