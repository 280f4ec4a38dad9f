package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// Watcher reports content files that disappear from the content directory.
type Watcher struct {
	dir     *Dir
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching the content directory.
func NewWatcher(dir *Dir) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fsw.Add(dir.Root()); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", dir.Root())
	}
	return &Watcher{dir: dir, watcher: fsw}, nil
}

// Run calls onRemoved for every removed or renamed file until ctx is done.
func (w *Watcher) Run(ctx context.Context, onRemoved func(path string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				zlog.Debug().Msgf("storage: content file gone: path=%s op=%s", event.Name, event.Op)
				onRemoved(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zlog.Warn().Err(err).Msg("storage: watcher error")
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
