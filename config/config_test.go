package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, env, contents string) string {
	configDir := filepath.Join(dir, "config")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	path := filepath.Join(configDir, env+".toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "development", `
log_level = "debug"
serve_metric_addr = ""
clutch_node_wss_url = "ws://127.0.0.1:8081"
jwt_secret = "secret"
request_timeout = "3s"
`)

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "", c.ServeMetricAddr)
	assert.Equal(t, "ws://127.0.0.1:8081", c.ClutchNodeWSSURL)
	assert.Equal(t, "secret", c.JWTSecret)
	assert.Equal(t, 3*time.Second, c.RequestTimeout)
	assert.Equal(t, "127.0.0.1:8080", c.ListenAddr)
	assert.Equal(t, 24, c.JWTExpirationHours)
	assert.Equal(t, 5*time.Second, c.ReconnectBackoff)
	assert.Equal(t, path, c.File)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "production", `
clutch_node_wss_url = "ws://127.0.0.1:8081"
jwt_secret = "secret"
`)
	t.Setenv("APP_CLUTCH_NODE_WSS_URL", "wss://node.example.com")
	t.Setenv("APP_RECONNECT_BACKOFF", "1s")

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://node.example.com", c.ClutchNodeWSSURL)
	assert.Equal(t, time.Second, c.ReconnectBackoff)
}

func TestLoadSearchesUp(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, "staging", `
clutch_node_wss_url = "ws://127.0.0.1:8081"
jwt_secret = "secret"
`)
	nested := filepath.Join(root, "cmd", "hub")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { os.Chdir(wd) })

	c, err := Load("staging")
	require.NoError(t, err)
	want, err := os.Stat(path)
	require.NoError(t, err)
	got, err := os.Stat(c.File)
	require.NoError(t, err)
	assert.True(t, os.SameFile(want, got))
}

func TestLoadWithoutFileUsesEnvironment(t *testing.T) {
	t.Setenv("APP_CLUTCH_NODE_WSS_URL", "ws://127.0.0.1:8081")
	t.Setenv("APP_JWT_SECRET", "secret")

	c, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8081", c.ClutchNodeWSSURL)
	assert.Equal(t, "", c.File)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		expErr   string
	}{
		{
			name:     "missing node URL",
			contents: `jwt_secret = "secret"`,
			expErr:   "clutch_node_wss_url is required",
		},
		{
			name:     "missing secret",
			contents: `clutch_node_wss_url = "ws://x"`,
			expErr:   "jwt_secret is required",
		},
		{
			name: "negative timeout",
			contents: `clutch_node_wss_url = "ws://x"
jwt_secret = "secret"
request_timeout = "-1s"`,
			expErr: "request_timeout must be positive",
		},
		{
			name: "cert without key",
			contents: `clutch_node_wss_url = "wss://x"
jwt_secret = "secret"
clutch_node_cert_file = "client.pem"`,
			expErr: "must be set together",
		},
		{
			name:     "malformed file",
			contents: `this is [not toml`,
			expErr:   "reading config file",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "test", c.contents)
			_, err := LoadFile(path)
			require.ErrorContains(t, err, c.expErr)
		})
	}
}
