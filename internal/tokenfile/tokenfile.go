// Package tokenfile reads and writes session files: small JSON documents
// holding an access token and the cached user profile. Writes are atomic
// (temp file + rename) with owner-only permissions. The package is a leaf so
// both tokenstore/ and the CLI can use it without import cycles.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// FilePerms restricts session files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the session directory.
const DirPerms = 0o700

// ErrInsecurePermissions is returned by Load when the session file can be
// read by other users. The file is not decoded.
var ErrInsecurePermissions = errors.New("tokenfile: session file is accessible by other users")

// Load decodes the session file at path into v. Returns (false, nil) if the
// file does not exist, leaving v untouched.
func Load(path string, v any) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("tokenfile: stat %s: %w", path, err)
	}

	// Windows reports synthetic permission bits.
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		return false, fmt.Errorf("%w: %s has mode %04o", ErrInsecurePermissions, path, info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	return true, nil
}

// Save encodes v and atomically replaces path with it. Token values are
// never logged or included in errors.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	if err := fill(tmp, data); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("tokenfile: replacing %s: %w", path, err)
	}

	return nil
}

// fill writes data to f with owner-only permissions, flushes it to disk
// and closes it. f is closed on every path.
func fill(f *os.File, data []byte) error {
	steps := []struct {
		what string
		run  func() error
	}{
		{"setting permissions", func() error { return f.Chmod(FilePerms) }},
		{"writing", func() error { _, err := f.Write(data); return err }},
		// A crash before rename must not leave a partial file behind.
		{"syncing", f.Sync},
	}

	for _, s := range steps {
		if err := s.run(); err != nil {
			f.Close()
			return fmt.Errorf("tokenfile: %s: %w", s.what, err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	return nil
}

// Remove deletes the session file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
