package session

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch invalidates h when the session file behind store disappears, e.g.
// after `storyline logout` in another terminal. It blocks until ctx is done.
func Watch(ctx context.Context, h *Holder, store SessionStore, log zerolog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: the file itself is replaced on every save.
	dir := filepath.Dir(store.Path())
	if err := w.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(store.Path()) {
				continue
			}
			if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if _, err := store.Load(); errors.Is(err, ErrNoSession) {
				log.Info().Str("path", ev.Name).Msg("session file removed, invalidating")
				h.set(nil)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("session watch error")
		}
	}
}
