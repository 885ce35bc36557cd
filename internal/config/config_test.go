package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCommand builds a command carrying every flag group, parsed from args.
func newCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd)
	RegisterServeFlags(cmd)
	RegisterIndexFlags(cmd)
	RegisterExtractFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 100, cfg.MaxDepth)
	assert.Equal(t, []string{"date"}, cfg.RequiredFields)
	assert.False(t, cfg.HTMLToText)
	assert.GreaterOrEqual(t, cfg.Workers, 2)
	assert.Equal(t, "messages.db", filepath.Base(cfg.DBPath))
	assert.NoError(t, cfg.Validate())
}

func TestAddressAndURL(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: "9000"}
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
	assert.Equal(t, "http://127.0.0.1:9000", cfg.URL())
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(newCommand(t))
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
	assert.Equal(t, []string{"date"}, cfg.RequiredFields)
}

func TestLoad_Flags(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(newCommand(t,
		"--port", "9090",
		"--max-depth", "20",
		"--required", "date,subject",
		"--html-to-text",
		"--workers", "3",
		"-o", "out",
	))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 20, cfg.MaxDepth)
	assert.Equal(t, []string{"date", "subject"}, cfg.RequiredFields)
	assert.True(t, cfg.HTMLToText)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "out", cfg.OutputDir)
}

func TestLoad_Env(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("EMLX_PORT", "7070")
	t.Setenv("EMLX_LOG_FORMAT", "json")

	cfg, err := Load(newCommand(t))
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "json", cfg.LogFormat)

	// Flags win over the environment.
	cfg, err = Load(newCommand(t, "--port", "6060"))
	require.NoError(t, err)
	assert.Equal(t, "6060", cfg.Port)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "custom.yaml")
	content := "port: \"5050\"\nemails_path: /srv/mail\nrequired_fields: []\nmax_depth: 12\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(newCommand(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "5050", cfg.Port)
	assert.Equal(t, "/srv/mail", cfg.EmailsPath)
	assert.Equal(t, 12, cfg.MaxDepth)
	assert.Empty(t, cfg.RequiredFields)
}

func TestLoad_DefaultFileName(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "emlx.yaml"), []byte("host: 0.0.0.0\n"), 0o644))

	cfg, err := Load(newCommand(t))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load(newCommand(t, "--config", "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"zero message size", func(c *Config) { c.MaxMessageBytes = 0 }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it afterwards (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
