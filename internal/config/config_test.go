package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CUBETIMER_CONFIG", "LISTEN_ADDR", "STORE_BACKEND", "DATABASE_URL", "SQLITE_PATH",
		"REDIS_URL", "BAAS_URL", "BAAS_ANON_KEY", "AUTH_JWT_SECRET", "HOLD_DELAY_MS",
		"REFRESH_INTERVAL_MS", "HISTORY_CAP", "SCRAMBLE_LENGTH", "MESSAGES_DIR",
		"DISCORD_BOT_TOKEN", "DISCORD_CHANNEL_ID", "PROFILE_CACHE_TTL_SEC",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendMemory || cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.HoldDelay() != 500*time.Millisecond || cfg.RefreshInterval() != 10*time.Millisecond {
		t.Fatalf("unexpected timer defaults %v %v", cfg.HoldDelay(), cfg.RefreshInterval())
	}
	if cfg.ProfileCacheTTL() != 6*time.Hour || cfg.HistoryCap != 10000 {
		t.Fatalf("unexpected cache/history defaults")
	}
}

func TestFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cubetimer.toml")
	body := `
listen_addr = ":9000"
store_backend = "sqlite"
sqlite_path = "/tmp/solves.db"
auth_jwt_secret = "from-file"
hold_delay_ms = 300
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CUBETIMER_CONFIG", path)
	t.Setenv("HOLD_DELAY_MS", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.StoreBackend != BackendSQLite || cfg.SQLitePath != "/tmp/solves.db" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.AuthJWTSecret != "from-file" {
		t.Fatalf("secret from file expected")
	}
	if cfg.HoldDelayMs != 250 {
		t.Fatalf("env should win over file, got %d", cfg.HoldDelayMs)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "AUTH_JWT_SECRET"},
		{"postgres without dsn", map[string]string{"AUTH_JWT_SECRET": "x", "STORE_BACKEND": "postgres"}, "DATABASE_URL"},
		{"rest without key", map[string]string{"AUTH_JWT_SECRET": "x", "STORE_BACKEND": "rest", "BAAS_URL": "https://db.example"}, "BAAS_ANON_KEY"},
		{"unknown backend", map[string]string{"AUTH_JWT_SECRET": "x", "STORE_BACKEND": "mongo"}, "unknown STORE_BACKEND"},
		{"bad int", map[string]string{"AUTH_JWT_SECRET": "x", "HISTORY_CAP": "lots"}, "HISTORY_CAP"},
		{"half discord", map[string]string{"AUTH_JWT_SECRET": "x", "DISCORD_BOT_TOKEN": "t"}, "DISCORD_CHANNEL_ID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestExampleTOML(t *testing.T) {
	data, err := ExampleTOML()
	if err != nil {
		t.Fatalf("ExampleTOML: %v", err)
	}
	if !strings.Contains(string(data), "hold_delay_ms = 500") {
		t.Fatalf("example should carry the defaults:\n%s", data)
	}
}
