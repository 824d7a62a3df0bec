package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/widgetctl/internal/api"
	"github.com/tonimelisma/widgetctl/internal/config"
)

// setupMockCLI points the CLI at a temp config using the in-process mock
// backend and a file session store. It returns the session file path.
func setupMockCLI(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "session.json")
	cfgPath := filepath.Join(dir, "config.toml")

	cfg := `[api]
base_url = "https://mock.invalid/v1"
transport = "mock"

[auth]
store = "file"
token_path = "` + filepath.ToSlash(tokenPath) + `"

[logging]
log_level = "error"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	t.Setenv(config.EnvConfig, cfgPath)
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvTransport, "")
	t.Setenv(config.EnvTenant, "")
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))

	return tokenPath
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(bytes.NewReader(nil))

	err = cmd.Execute()

	return out.String(), errOut.String(), err
}

func TestCLI_MockSessionLifecycle(t *testing.T) {
	tokenPath := setupMockCLI(t)

	_, stderr, err := runCLI(t, "login", "--email", " Admin@Example.com ", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged in as Mock Admin <admin@example.com>.")
	assert.FileExists(t, tokenPath)

	stdout, _, err := runCLI(t, "users", "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, stdout)

	stdout, _, err = runCLI(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Mock Admin <admin@example.com>")
	assert.Contains(t, stdout, "Roles:    owner")
	assert.Contains(t, stdout, "(mock)")

	stdout, _, err = runCLI(t, "whoami", "-o", "json")
	require.NoError(t, err)

	var who whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &who))
	assert.Equal(t, "mock-user", who.User.ID)
	assert.Equal(t, "https://mock.invalid/v1", who.BaseURL)
	assert.False(t, who.ExpiresAt.IsZero())
	assert.False(t, who.Expired)

	_, stderr, err = runCLI(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged out.")
	assert.NoFileExists(t, tokenPath)

	_, _, err = runCLI(t, "whoami")
	require.ErrorIs(t, err, api.ErrNotLoggedIn)

	_, stderr, err = runCLI(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Not logged in.")
}

func TestCLI_ListTable(t *testing.T) {
	setupMockCLI(t)

	_, _, err := runCLI(t, "login", "--email", "admin@example.com", "--password", "secret")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "widgets", "list", "--page", "2")
	require.NoError(t, err)
	assert.Equal(t, "ID  NAME  MODEL  ACTIVE  CREATED\n", stdout)
}

func TestCLI_LoginMissingPassword(t *testing.T) {
	setupMockCLI(t)

	// Stdin is empty, so the password prompt reads nothing.
	_, _, err := runCLI(t, "login", "--email", "admin@example.com")
	require.Error(t, err)
}

func TestCLI_NotLoggedIn(t *testing.T) {
	setupMockCLI(t)

	_, _, err := runCLI(t, "chats", "list")
	require.ErrorIs(t, err, api.ErrNotLoggedIn)

	var buf bytes.Buffer
	printError(&buf, err)
	assert.Contains(t, buf.String(), "Run 'widgetctl login' to sign in.")
}

func TestCLI_ConfigShow(t *testing.T) {
	setupMockCLI(t)

	stdout, _, err := runCLI(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "https://mock.invalid/v1")
	assert.Contains(t, stdout, "session.json")

	stdout, _, err = runCLI(t, "config", "show", "--api-url", "https://admin.example.com/api", "-o", "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))

	apiSection, ok := got["api"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://admin.example.com/api", apiSection["base_url"])
	assert.Equal(t, "mock", apiSection["transport"])
}

func TestCLI_InvalidOutput(t *testing.T) {
	setupMockCLI(t)

	_, _, err := runCLI(t, "config", "show", "--output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid --output "xml"`)
}

func TestCLI_CreateRejectsInvalidData(t *testing.T) {
	setupMockCLI(t)

	_, _, err := runCLI(t, "login", "--email", "admin@example.com", "--password", "secret")
	require.NoError(t, err)

	_, _, err = runCLI(t, "widgets", "create", "--data", "[1,2]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--data must be a JSON object")
}

func TestCLI_GetUnknownIsNotFound(t *testing.T) {
	setupMockCLI(t)

	_, _, err := runCLI(t, "login", "--email", "admin@example.com", "--password", "secret")
	require.NoError(t, err)

	_, _, err = runCLI(t, "users", "get", "u-404")
	require.ErrorIs(t, err, api.ErrNotFound)
}

func TestCLI_ConfigInit(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "widgetctl.toml")

	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvTransport, "")
	t.Setenv(config.EnvTenant, "")
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	_, stderr, err := runCLI(t, "--config", cfgPath, "--api-url", "https://admin.example.com/api", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Wrote "+cfgPath)

	stdout, _, err := runCLI(t, "--config", cfgPath, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, cfgPath+"\n", stdout)

	stdout, _, err = runCLI(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, `base_url   = "https://admin.example.com/api"`)

	_, _, err = runCLI(t, "--config", cfgPath, "config", "init")
	require.ErrorIs(t, err, config.ErrConfigExists)
}
