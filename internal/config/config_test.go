package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.yaml")
	doc := []byte(`
storage:
  driver: sqlite
  sqlite_path: /var/lib/ws.db
blob:
  driver: s3
  s3:
    bucket: components
    use_path_style: true
log_level: debug
`)
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	cfg, err := LoadWith(env(map[string]string{
		EnvConfigFile:    path,
		EnvStorageDriver: "badger",
		EnvS3Region:      "eu-west-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/ws.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.Equal(t, "components", cfg.Blob.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Blob.S3.Region)
	assert.True(t, cfg.Blob.S3.UsePathStyle)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadWith(env(map[string]string{EnvConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}))
	require.Error(t, err)

	_, err = LoadWith(env(map[string]string{EnvBadgerInMemory: "perhaps"}))
	require.ErrorContains(t, err, EnvBadgerInMemory)

	_, err = Parse([]byte("storage: [unterminated"))
	require.Error(t, err)
}

func TestLevels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for name, want := range cases {
		assert.Equal(t, want, Config{LogLevel: name}.Level(), name)
	}
}
