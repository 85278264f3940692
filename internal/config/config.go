package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Logging    LoggingConfig    `json:"logging"`
	Redis      RedisConfig      `json:"redis"`
	Metrics    MetricsConfig    `json:"metrics"`
	Enforcer   EnforcerConfig   `json:"enforcer"`
	Changefeed ChangefeedConfig `json:"changefeed"`
}

type ServerConfig struct {
	BindAddr        string `json:"bindAddr"`
	RequestTimeout  string `json:"requestTimeout"`  // e.g. "60s"
	ShutdownTimeout string `json:"shutdownTimeout"` // e.g. "15s"
}

type DatabaseConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	User            string `json:"user"`
	Password        string `json:"password"`
	DBName          string `json:"dbname"`
	SSLMode         string `json:"sslmode"`
	MaxOpenConns    int    `json:"maxOpenConns"`
	MaxIdleConns    int    `json:"maxIdleConns"`
	ConnMaxLifetime string `json:"connMaxLifetime"`
}

// GetDSN 生成 lib/pq 连接串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type LoggingConfig struct {
	Level string `json:"level"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type EnforcerConfig struct {
	ProfilesFile string `json:"profilesFile"`
	RunTimeout   string `json:"runTimeout"` // e.g. "2m"
	RunOnStart   bool   `json:"runOnStart"`
}

type ChangefeedConfig struct {
	MaxEntries int    `json:"maxEntries"`
	TTL        string `json:"ttl"` // e.g. "168h"
}

// Load reads .env, the environment and the optional -f config file.
func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()
	return LoadFrom(*configFile)
}

// LoadFrom is Load without flag parsing. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg := &Config{
		Server: ServerConfig{
			BindAddr:        getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
			RequestTimeout:  getEnv("SERVER_REQUEST_TIMEOUT", "60s"),
			ShutdownTimeout: getEnv("SERVER_SHUTDOWN_TIMEOUT", "15s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "rhqadmin"),
			Password:        getEnv("DB_PASSWORD", "rhqadmin"),
			DBName:          getEnv("DB_NAME", "rhq"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnv("DB_CONN_MAX_LIFETIME", "30m"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Enforcer: EnforcerConfig{
			ProfilesFile: getEnv("SCHEDSYNC_PROFILES_FILE", ""),
			RunTimeout:   getEnv("SCHEDSYNC_RUN_TIMEOUT", "2m"),
			RunOnStart:   getEnvBool("SCHEDSYNC_RUN_ON_START", false),
		},
		Changefeed: ChangefeedConfig{
			MaxEntries: getEnvInt("CHANGEFEED_MAX_ENTRIES", 100),
			TTL:        getEnv("CHANGEFEED_TTL", "168h"),
		},
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			log.Err(err).Msg("load config file failed")
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Server.RequestTimeout == "" {
		cfg.Server.RequestTimeout = "60s"
	}
	if cfg.Server.ShutdownTimeout == "" {
		cfg.Server.ShutdownTimeout = "15s"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Enforcer.RunTimeout == "" {
		cfg.Enforcer.RunTimeout = "2m"
	}
	if cfg.Changefeed.MaxEntries == 0 {
		cfg.Changefeed.MaxEntries = 100
	}
	if cfg.Changefeed.TTL == "" {
		cfg.Changefeed.TTL = "168h"
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

// ParseDuration returns d when s is empty or invalid.
func ParseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
