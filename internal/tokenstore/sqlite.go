package tokenstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tonimelisma/widgetctl/internal/tokenfile"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dbTimeout bounds every statement; the Store contract has no context.
const dbTimeout = 5 * time.Second

const (
	sqlLoadSession = `SELECT access_token, refresh_token, obtained_at, expires_at, profile_json
		FROM session WHERE id = 1`
	sqlUpsertSession = `INSERT INTO session (id, access_token, refresh_token, obtained_at, expires_at, profile_json)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			obtained_at = excluded.obtained_at,
			expires_at = excluded.expires_at,
			profile_json = excluded.profile_json`
	sqlDeleteSession = `DELETE FROM session WHERE id = 1`
)

// SQLiteStore persists the session in a single-row SQLite table. Like
// FileStore it loads lazily and serves reads from memory.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	once sync.Once
	mu   sync.RWMutex
	s    session
}

// OpenSQLite opens (or creates) the database at dbPath and applies pending
// migrations.
func OpenSQLite(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), tokenfile.DirPerms); err != nil {
		return nil, fmt.Errorf("tokenstore: creating directory for %s: %w", dbPath, err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("session database ready", slog.String("db_path", dbPath))

	return &SQLiteStore{db: db, logger: logger}, nil
}

// runMigrations applies the embedded schema with the goose Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("tokenstore: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("tokenstore: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("tokenstore: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Token() (AuthToken, bool) {
	s.once.Do(s.load)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.s.token()
}

func (s *SQLiteStore) Profile() (Profile, bool) {
	s.once.Do(s.load)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.s.profile()
}

func (s *SQLiteStore) SetToken(tok AuthToken, profile *Profile) {
	s.once.Do(s.load)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.s.apply(tok, profile)

	if err := s.persist(); err != nil {
		s.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}
}

func (s *SQLiteStore) ClearToken() {
	s.once.Do(s.load)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.s = session{}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, sqlDeleteSession); err != nil {
		s.logger.Warn("failed to delete session row", slog.String("error", err.Error()))
	}
}

// persist writes the cached session. Caller holds s.mu.
func (s *SQLiteStore) persist() error {
	var profileJSON sql.NullString

	if s.s.Profile != nil {
		data, err := json.Marshal(s.s.Profile)
		if err != nil {
			return fmt.Errorf("tokenstore: encoding profile: %w", err)
		}

		profileJSON = sql.NullString{String: string(data), Valid: true}
	}

	tok := s.s.Token

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, sqlUpsertSession,
		tok.Value, tok.RefreshToken, unixNano(tok.ObtainedAt), unixNano(tok.ExpiresAt), profileJSON)
	if err != nil {
		return fmt.Errorf("tokenstore: writing session: %w", err)
	}

	return nil
}

func (s *SQLiteStore) load() {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	var (
		tok              AuthToken
		obtained, expiry int64
		profileJSON      sql.NullString
	)

	err := s.db.QueryRowContext(ctx, sqlLoadSession).
		Scan(&tok.Value, &tok.RefreshToken, &obtained, &expiry, &profileJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return
	}

	if err != nil {
		s.logger.Warn("ignoring unreadable session row", slog.String("error", err.Error()))
		return
	}

	tok.ObtainedAt = fromUnixNano(obtained)
	tok.ExpiresAt = fromUnixNano(expiry)

	loaded := session{Token: &tok}

	if profileJSON.Valid {
		var p Profile
		if jerr := json.Unmarshal([]byte(profileJSON.String), &p); jerr != nil {
			s.logger.Warn("ignoring corrupt cached profile", slog.String("error", jerr.Error()))
		} else {
			loaded.Profile = &p
		}
	}

	s.mu.Lock()
	s.s = loaded
	s.mu.Unlock()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}
