package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFile - утилита записи временного файла конфигурации.
func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

// chdir - смена текущего рабочего каталога с авто-возвратом.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const sampleYAML = `
env: "prod"
api:
  base_url: "https://agricare.example.com"
  timeout: "10s"
  user_agent: "agricare-test"
credentials:
  backend: "redis"
  redis_url: "redis://cache:6379/2"
  redis_prefix: "t:"
  profile: "farmer"
storage:
  sqlite_path: "/tmp/history.db"
weather:
  api_key: "k-123"
s3:
  endpoint: "http://minio:9000"
  bucket: "sync"
metrics:
  port: "9091"
`

const brokenYAML = `
env: [unclosed
`

func TestLoad_WithExplicitPath_OK(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "https://agricare.example.com", cfg.API.BaseURL)
	require.Equal(t, 10*time.Second, cfg.API.Timeout)
	require.Equal(t, "agricare-test", cfg.API.UserAgent)
	require.Equal(t, CredentialsRedis, cfg.Credentials.Backend)
	require.Equal(t, "redis://cache:6379/2", cfg.Credentials.RedisURL)
	require.Equal(t, "t:", cfg.Credentials.RedisPrefix)
	require.Equal(t, "farmer", cfg.Credentials.Profile)
	require.Equal(t, "/tmp/history.db", cfg.Storage.SQLitePath)
	require.Equal(t, "k-123", cfg.Weather.APIKey)
	require.Equal(t, "https://api.openweathermap.org/data/2.5", cfg.Weather.BaseURL)
	require.True(t, cfg.S3.Enabled())
	require.Equal(t, "sync", cfg.S3.Bucket)
	require.Equal(t, "127.0.0.1:9091", cfg.Metrics.Addr())
	require.NoError(t, cfg.Validate())
}

func TestLoad_Defaults_FromMinimalFile(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, t.TempDir(), "min.yaml", "env: \"dev\"\n")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, 30*time.Second, cfg.API.Timeout)
	require.Equal(t, CredentialsFile, cfg.Credentials.Backend)
	require.False(t, cfg.S3.Enabled())
	require.Empty(t, cfg.Metrics.Port)
}

func TestLoad_WithExplicitPath_BrokenYAML(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, t.TempDir(), "broken.yaml", brokenYAML)

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_WithExplicitPath_Missing(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stat failed")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	t.Setenv("API_BASE_URL", "http://override:8000")
	t.Setenv("API_TIMEOUT", "45s")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "http://override:8000", cfg.API.BaseURL)
	require.Equal(t, 45*time.Second, cfg.API.Timeout)
}

func TestLoad_WithCONFIG_PATH_OK(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "from_env.yaml", "env: \"stage\"\n")
	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "stage", cfg.Env)
}

func TestLoad_WithLocalYAML_OK(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, ".", "local.yaml", sampleYAML)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
}

func TestLoad_EnvOnly(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ENV", "dev")
	t.Setenv("CREDENTIALS_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, CredentialsMemory, cfg.Credentials.Backend)
	require.NoError(t, cfg.Validate())
}

func TestValidate_Table(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			API:         APIConfig{BaseURL: "http://x", Timeout: time.Second},
			Credentials: CredentialsConfig{Backend: CredentialsFile, Passphrase: "p"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "empty_base_url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: "base_url"},
		{name: "zero_timeout", mutate: func(c *Config) { c.API.Timeout = 0 }, wantErr: "timeout"},
		{name: "file_without_passphrase", mutate: func(c *Config) { c.Credentials.Passphrase = "" }, wantErr: "passphrase"},
		{name: "unknown_backend", mutate: func(c *Config) { c.Credentials.Backend = "keychain" }, wantErr: "unknown credentials backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}
