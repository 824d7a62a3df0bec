package tokenstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/widgetctl/internal/tokenfile"
)

// FileStore persists the session to a JSON file. The file is read lazily on
// first access; afterwards reads are served from memory and every mutation
// is written through.
type FileStore struct {
	path   string
	logger *slog.Logger

	once sync.Once
	mu   sync.RWMutex
	s    session
}

// NewFileStore returns a store backed by the session file at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Token() (AuthToken, bool) {
	f.once.Do(f.load)

	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.s.token()
}

func (f *FileStore) Profile() (Profile, bool) {
	f.once.Do(f.load)

	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.s.profile()
}

func (f *FileStore) SetToken(tok AuthToken, profile *Profile) {
	f.once.Do(f.load)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.s.apply(tok, profile)

	if err := tokenfile.Save(f.path, f.s); err != nil {
		f.logger.Warn("failed to persist session",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
	}
}

func (f *FileStore) ClearToken() {
	f.once.Do(f.load)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.s = session{}

	if err := tokenfile.Remove(f.path); err != nil {
		f.logger.Warn("failed to remove session file",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
	}
}

// load reads the file into the cache. A missing or corrupt file yields an
// empty session; corruption is logged so the user knows to log in again.
// The read and the assignment happen under f.mu so a concurrent SetToken
// is never overwritten by the file contents it replaced.
func (f *FileStore) load() {
	f.mu.Lock()
	defer f.mu.Unlock()

	var s session

	found, err := tokenfile.Load(f.path, &s)
	if err != nil {
		f.logger.Warn("ignoring unreadable session file",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
	}

	if !found || err != nil || s.Token == nil || s.Token.Value == "" {
		s = session{}
	}

	f.s = s

	f.logger.Debug("session file loaded",
		slog.String("path", f.path),
		slog.Bool("has_token", s.Token != nil),
	)
}

// Watch reloads the cache whenever the session file is changed by another
// process (for example a concurrent `widgetctl login` or `logout`). It blocks
// until ctx is canceled. The parent directory is watched because atomic
// saves replace the file via rename.
func (f *FileStore) Watch(ctx context.Context) error {
	f.once.Do(f.load)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tokenstore: creating watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("tokenstore: watching %s: %w", dir, err)
	}

	name := filepath.Clean(f.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != name {
				continue
			}

			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
				ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				f.logger.Debug("session file changed, reloading",
					slog.String("path", f.path),
					slog.String("op", ev.Op.String()),
				)
				f.load()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}

			f.logger.Warn("session watcher error", slog.String("error", werr.Error()))
		}
	}
}
