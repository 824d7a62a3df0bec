package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	configFilePerms = 0o644
	configDirPerms  = 0o755
)

// ErrConfigExists is returned by WriteTemplate when path exists and force
// is not set.
var ErrConfigExists = errors.New("config file already exists")

// configTemplate lists every setting with its default commented out, so
// users can discover options without reading docs. Only base_url is live.
const configTemplate = `# widgetctl configuration
# Uncomment and modify to override defaults.

[api]
base_url = %q
# transport  = "live"    # live | mock
# timeout    = "30s"
# user_agent = ""
# tenant_id  = ""

[auth]
# store            = "file"        # file | sqlite | memory
# token_path       = ""            # default: data dir/session.json
# db_path          = ""            # default: data dir/session.db
# refresh_mode     = "endpoint"    # endpoint | oauth2
# refresh_endpoint = "/auth/refresh"
# refresh_timeout  = "15s"
# oauth2_token_url = ""
# oauth2_client_id = ""

[logging]
# log_level  = "info"  # debug | info | warn | error
# log_format = "auto"  # auto | text | json
`

// WriteTemplate writes the commented default config to path with baseURL
// filled in. The write is atomic and parent directories are created.
func WriteTemplate(path, baseURL string, force bool) error {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPerms); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}

	_, werr := fmt.Fprintf(tmp, configTemplate, baseURL)
	cerr := tmp.Close()

	if err := errors.Join(werr, cerr, os.Chmod(tmp.Name(), configFilePerms)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing config template: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("renaming config file: %w", err)
	}

	return nil
}
