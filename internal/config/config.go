package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendREST     = "rest"
)

type AppConfig struct {
	ListenAddr string

	StoreBackend string
	DatabaseURL  string
	SQLitePath   string
	RedisURL     string

	BaaSURL     string
	BaaSAnonKey string

	AuthJWTSecret string

	HoldDelayMs       int
	RefreshIntervalMs int
	HistoryCap        int
	ScrambleLength    int

	MessagesDir string

	DiscordBotToken  string
	DiscordChannelID string

	ProfileCacheTTLSec int
}

func (c *AppConfig) HoldDelay() time.Duration {
	return time.Duration(c.HoldDelayMs) * time.Millisecond
}

func (c *AppConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

func (c *AppConfig) ProfileCacheTTL() time.Duration {
	return time.Duration(c.ProfileCacheTTLSec) * time.Second
}

// fileConfig is the optional TOML file; keys mirror the env names in lower case.
type fileConfig struct {
	ListenAddr         string `toml:"listen_addr"`
	StoreBackend       string `toml:"store_backend"`
	DatabaseURL        string `toml:"database_url"`
	SQLitePath         string `toml:"sqlite_path"`
	RedisURL           string `toml:"redis_url"`
	BaaSURL            string `toml:"baas_url"`
	BaaSAnonKey        string `toml:"baas_anon_key"`
	AuthJWTSecret      string `toml:"auth_jwt_secret"`
	HoldDelayMs        int    `toml:"hold_delay_ms"`
	RefreshIntervalMs  int    `toml:"refresh_interval_ms"`
	HistoryCap         int    `toml:"history_cap"`
	ScrambleLength     int    `toml:"scramble_length"`
	MessagesDir        string `toml:"messages_dir"`
	DiscordBotToken    string `toml:"discord_bot_token"`
	DiscordChannelID   string `toml:"discord_channel_id"`
	ProfileCacheTTLSec int    `toml:"profile_cache_ttl_sec"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:         ":8080",
		StoreBackend:       BackendMemory,
		SQLitePath:         "cubetimer.db",
		HoldDelayMs:        500,
		RefreshIntervalMs:  10,
		HistoryCap:         10000,
		ScrambleLength:     20,
		ProfileCacheTTLSec: int((6 * time.Hour).Seconds()),
	}
}

// Load reads .env (if present), then the TOML file named by CUBETIMER_CONFIG,
// then the environment. Later sources win.
func Load() (*AppConfig, error) {
	// .env is optional; real env vars are never overwritten
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CUBETIMER_CONFIG")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.StoreBackend, fc.StoreBackend)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.SQLitePath, fc.SQLitePath)
	setString(&cfg.RedisURL, fc.RedisURL)
	setString(&cfg.BaaSURL, fc.BaaSURL)
	setString(&cfg.BaaSAnonKey, fc.BaaSAnonKey)
	setString(&cfg.AuthJWTSecret, fc.AuthJWTSecret)
	setString(&cfg.MessagesDir, fc.MessagesDir)
	setString(&cfg.DiscordBotToken, fc.DiscordBotToken)
	setString(&cfg.DiscordChannelID, fc.DiscordChannelID)
	setInt(&cfg.HoldDelayMs, fc.HoldDelayMs)
	setInt(&cfg.RefreshIntervalMs, fc.RefreshIntervalMs)
	setInt(&cfg.HistoryCap, fc.HistoryCap)
	setInt(&cfg.ScrambleLength, fc.ScrambleLength)
	setInt(&cfg.ProfileCacheTTLSec, fc.ProfileCacheTTLSec)
	return nil
}

func applyEnv(cfg *AppConfig) error {
	setString(&cfg.ListenAddr, os.Getenv("LISTEN_ADDR"))
	setString(&cfg.StoreBackend, os.Getenv("STORE_BACKEND"))
	setString(&cfg.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&cfg.SQLitePath, os.Getenv("SQLITE_PATH"))
	setString(&cfg.RedisURL, os.Getenv("REDIS_URL"))
	setString(&cfg.BaaSURL, os.Getenv("BAAS_URL"))
	setString(&cfg.BaaSAnonKey, os.Getenv("BAAS_ANON_KEY"))
	setString(&cfg.AuthJWTSecret, os.Getenv("AUTH_JWT_SECRET"))
	setString(&cfg.MessagesDir, os.Getenv("MESSAGES_DIR"))
	setString(&cfg.DiscordBotToken, os.Getenv("DISCORD_BOT_TOKEN"))
	setString(&cfg.DiscordChannelID, os.Getenv("DISCORD_CHANNEL_ID"))

	ints := []struct {
		key string
		dst *int
	}{
		{"HOLD_DELAY_MS", &cfg.HoldDelayMs},
		{"REFRESH_INTERVAL_MS", &cfg.RefreshIntervalMs},
		{"HISTORY_CAP", &cfg.HistoryCap},
		{"SCRAMBLE_LENGTH", &cfg.ScrambleLength},
		{"PROFILE_CACHE_TTL_SEC", &cfg.ProfileCacheTTLSec},
	}
	for _, it := range ints {
		v := strings.TrimSpace(os.Getenv(it.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", it.key, v)
		}
		*it.dst = n
	}
	return nil
}

func (c *AppConfig) validate() error {
	c.StoreBackend = strings.ToLower(c.StoreBackend)
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendREST:
		if c.BaaSURL == "" || c.BaaSAnonKey == "" {
			return errors.New("BAAS_URL and BAAS_ANON_KEY are required for the rest backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.AuthJWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if (c.DiscordBotToken == "") != (c.DiscordChannelID == "") {
		return errors.New("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	return nil
}

// ExampleTOML renders the defaults as a starting config file.
func ExampleTOML() ([]byte, error) {
	d := defaults()
	fc := fileConfig{
		ListenAddr:         d.ListenAddr,
		StoreBackend:       d.StoreBackend,
		SQLitePath:         d.SQLitePath,
		AuthJWTSecret:      "CHANGE_ME",
		HoldDelayMs:        d.HoldDelayMs,
		RefreshIntervalMs:  d.RefreshIntervalMs,
		HistoryCap:         d.HistoryCap,
		ScrambleLength:     d.ScrambleLength,
		ProfileCacheTTLSec: d.ProfileCacheTTLSec,
	}
	data, err := toml.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode config example: %w", err)
	}
	return data, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
