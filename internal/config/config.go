// Package config resolves runtime settings for the workspace binaries. An
// optional YAML file named by WORKSPACE_CONFIG is read first; WORKSPACE_*
// environment variables override it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvConfigFile      = "WORKSPACE_CONFIG"
	EnvStorageDriver   = "WORKSPACE_STORAGE_DRIVER"
	EnvSQLitePath      = "WORKSPACE_SQLITE_PATH"
	EnvPostgresDSN     = "WORKSPACE_POSTGRES_DSN"
	EnvBadgerPath      = "WORKSPACE_BADGER_PATH"
	EnvBadgerInMemory  = "WORKSPACE_BADGER_IN_MEMORY"
	EnvBlobDriver      = "WORKSPACE_BLOB_DRIVER"
	EnvBlobFSRoot      = "WORKSPACE_BLOB_FS_ROOT"
	EnvS3Bucket        = "WORKSPACE_BLOB_S3_BUCKET"
	EnvS3Region        = "WORKSPACE_BLOB_S3_REGION"
	EnvS3Endpoint      = "WORKSPACE_BLOB_S3_ENDPOINT"
	EnvS3Prefix        = "WORKSPACE_BLOB_S3_PREFIX"
	EnvS3AccessKeyID   = "WORKSPACE_BLOB_S3_ACCESS_KEY_ID"
	EnvS3SecretKey     = "WORKSPACE_BLOB_S3_SECRET_ACCESS_KEY"
	EnvS3UsePathStyle  = "WORKSPACE_BLOB_S3_PATH_STYLE"
	EnvLogLevel        = "WORKSPACE_LOG_LEVEL"
	defaultSQLitePath  = "workspace.db"
	defaultBadgerPath  = "workspace.badger"
	defaultBlobFSRoot  = "./componentdata"
	defaultS3Region    = "us-east-1"
	defaultStorageKind = "memory"
)

// Config is the resolved runtime configuration.
type Config struct {
	Storage  Storage `yaml:"storage"`
	Blob     Blob    `yaml:"blob"`
	LogLevel string  `yaml:"log_level"`
}

// Storage selects and configures the persistent store.
type Storage struct {
	Driver         string `yaml:"driver"`
	SQLitePath     string `yaml:"sqlite_path"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	BadgerPath     string `yaml:"badger_path"`
	BadgerInMemory bool   `yaml:"badger_in_memory"`
}

// Blob selects and configures the blob store used for component files.
type Blob struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fs_root"`
	S3     S3     `yaml:"s3"`
}

// S3 holds S3 / MinIO settings.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Default returns the built-in configuration: in-memory storage, filesystem
// blobs and info logging.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver:     defaultStorageKind,
			SQLitePath: defaultSQLitePath,
			BadgerPath: defaultBadgerPath,
		},
		Blob: Blob{
			Driver: "fs",
			FSRoot: defaultBlobFSRoot,
			S3:     S3{Region: defaultS3Region},
		},
		LogLevel: "info",
	}
}

// Load resolves the configuration from the process environment.
func Load() (Config, error) {
	return LoadWith(os.LookupEnv)
}

// LoadWith resolves the configuration using lookup for environment access.
func LoadWith(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path, ok := lookup(EnvConfigFile); ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str(EnvStorageDriver, &c.Storage.Driver)
	str(EnvSQLitePath, &c.Storage.SQLitePath)
	str(EnvPostgresDSN, &c.Storage.PostgresDSN)
	str(EnvBadgerPath, &c.Storage.BadgerPath)
	if err := boolean(EnvBadgerInMemory, &c.Storage.BadgerInMemory); err != nil {
		return err
	}
	str(EnvBlobDriver, &c.Blob.Driver)
	str(EnvBlobFSRoot, &c.Blob.FSRoot)
	str(EnvS3Bucket, &c.Blob.S3.Bucket)
	str(EnvS3Region, &c.Blob.S3.Region)
	str(EnvS3Endpoint, &c.Blob.S3.Endpoint)
	str(EnvS3Prefix, &c.Blob.S3.Prefix)
	str(EnvS3AccessKeyID, &c.Blob.S3.AccessKeyID)
	str(EnvS3SecretKey, &c.Blob.S3.SecretAccessKey)
	if err := boolean(EnvS3UsePathStyle, &c.Blob.S3.UsePathStyle); err != nil {
		return err
	}
	str(EnvLogLevel, &c.LogLevel)
	return nil
}

// Level maps LogLevel onto a slog level. Unknown names fall back to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds a text logger writing to stderr at the configured level.
func (c Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.Level()}))
}
