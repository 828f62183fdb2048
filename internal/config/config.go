// config - источник загрузки конфигурации клиента AgriCare.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
//
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Бэкенды хранилища учётных данных.
const (
	CredentialsMemory = "memory"
	CredentialsFile   = "file"
	CredentialsRedis  = "redis"
)

type Config struct {
	Env         string            `yaml:"env" env:"ENV" env-default:"local"`
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Storage     StorageConfig     `yaml:"storage"`
	Weather     WeatherConfig     `yaml:"weather"`
	S3          S3Config          `yaml:"s3"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// APIConfig - адрес бэкенда и параметры исходящих запросов.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"   env:"API_BASE_URL"   env-default:"http://127.0.0.1:8000"`
	Timeout   time.Duration `yaml:"timeout"    env:"API_TIMEOUT"    env-default:"30s"`
	UserAgent string        `yaml:"user_agent" env:"API_USER_AGENT" env-default:"agricare-cli"`
}

// CredentialsConfig - где хранится пара токенов.
type CredentialsConfig struct {
	Backend     string `yaml:"backend"      env:"CREDENTIALS_BACKEND"      env-default:"file"`
	FilePath    string `yaml:"file_path"    env:"CREDENTIALS_FILE"         env-default:".agricare/credentials.sealed"`
	Passphrase  string `yaml:"passphrase"   env:"CREDENTIALS_PASSPHRASE"`
	RedisURL    string `yaml:"redis_url"    env:"CREDENTIALS_REDIS_URL"    env-default:"redis://127.0.0.1:6379/0"`
	RedisPrefix string `yaml:"redis_prefix" env:"CREDENTIALS_REDIS_PREFIX" env-default:"agricare:cred:"`
	Profile     string `yaml:"profile"      env:"CREDENTIALS_PROFILE"      env-default:"default"`
}

// StorageConfig - локальная история диагнозов и чатов.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path" env:"STORAGE_SQLITE_PATH" env-default:".agricare/history.db"`
}

// WeatherConfig - OpenWeatherMap.
type WeatherConfig struct {
	BaseURL string `yaml:"base_url" env:"WEATHER_BASE_URL" env-default:"https://api.openweathermap.org/data/2.5"`
	APIKey  string `yaml:"api_key"  env:"WEATHER_API_KEY"`
}

// S3Config - архив для синхронизации истории; пустой Endpoint отключает синхронизацию.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"   env:"S3_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	Bucket    string `yaml:"bucket"     env:"S3_BUCKET" env-default:"agricare-sync"`
	Prefix    string `yaml:"prefix"     env:"S3_PREFIX" env-default:"devices/default"`
}

// Enabled сообщает, сконфигурирован ли архив.
func (s S3Config) Enabled() bool { return s.Endpoint != "" }

// MetricsConfig - опциональный HTTP для Prometheus (пустой Port отключает).
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"127.0.0.1"`
	Port string `yaml:"port" env:"METRICS_PORT"`
}

func (m MetricsConfig) Addr() string { return net.JoinHostPort(m.Host, m.Port) }

// Validate проверяет значения, которые cleanenv не может проверить тегами.
func (c *Config) Validate() error {
	const op = "config.Validate"

	if c.API.BaseURL == "" {
		return fmt.Errorf("%s: api.base_url is empty", op)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("%s: api.timeout must be positive, got %s", op, c.API.Timeout)
	}

	switch c.Credentials.Backend {
	case CredentialsMemory, CredentialsRedis:
	case CredentialsFile:
		if c.Credentials.Passphrase == "" {
			return fmt.Errorf("%s: credentials.passphrase is required for the file backend", op)
		}
	default:
		return fmt.Errorf("%s: unknown credentials backend %q", op, c.Credentials.Backend)
	}

	return nil
}

// MustLoad - паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
