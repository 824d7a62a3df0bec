//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	stdout, stderr, err := runCLIAllowFail(t, args...)
	if err != nil {
		t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout, stderr)
	}

	return stdout, stderr
}

func runCLIAllowFail(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

func TestE2E_SessionRoundTrip(t *testing.T) {
	t.Cleanup(func() {
		// Best-effort: never leave a session behind.
		_, _, _ = runCLIAllowFail(t, "logout")
	})

	t.Run("not_logged_in", func(t *testing.T) {
		_, stderr, err := runCLIAllowFail(t, "users", "list")
		require.Error(t, err)
		assert.Contains(t, stderr, "widgetctl login")
	})

	t.Run("login", func(t *testing.T) {
		_, stderr := runCLI(t, "login", "--email", backend.Email, "--password", backend.Password)
		assert.Contains(t, stderr, "Logged in as")
		assert.FileExists(t, tokenPath)
	})

	t.Run("whoami_json", func(t *testing.T) {
		stdout, _ := runCLI(t, "whoami", "--json")

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Contains(t, out, "user")
		assert.Equal(t, backend.BaseURL, out["base_url"])
	})

	t.Run("list_collections", func(t *testing.T) {
		for _, collection := range []string{"users", "roles", "permissions", "chats", "models", "widgets", "notifications"} {
			stdout, _ := runCLI(t, collection, "list", "--json", "--per-page", "5")

			var items []json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(stdout), &items), collection)
		}
	})

	t.Run("stale_token_refreshes", func(t *testing.T) {
		// Corrupt the access token but keep the refresh token; the next call
		// must refresh transparently and persist the new token.
		data, err := os.ReadFile(tokenPath)
		require.NoError(t, err)

		var saved map[string]map[string]any
		require.NoError(t, json.Unmarshal(data, &saved))

		saved["token"]["value"] = "stale-access-token"

		data, err = json.Marshal(saved)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(tokenPath, data, 0o600))

		runCLI(t, "users", "list")

		data, err = os.ReadFile(tokenPath)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &saved))
		assert.NotEqual(t, "stale-access-token", saved["token"]["value"])
	})

	t.Run("logout", func(t *testing.T) {
		_, stderr := runCLI(t, "logout")
		assert.Contains(t, stderr, "Logged out.")
		assert.NoFileExists(t, tokenPath)
	})
}
