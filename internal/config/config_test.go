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
		"HYDRO_CONFIG", "HYDRO_BASE_URL", "HYDRO_READING_PATH", "HYDRO_READING_PERIOD",
		"HYDRO_RANKING_PERIOD", "HYDRO_RANKING_LIMIT", "HYDRO_REQUEST_TIMEOUT",
		"HYDRO_NOTIFICATION_CAPACITY", "HYDRO_HISTORY_SIZE", "HYDRO_HTTP_ADDR",
		"HYDRO_LOG_LEVEL", "HYDRO_LOG_FILE", "HYDRO_LOG_PRETTY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HYDRO_BASE_URL", "https://example.ngrok-free.app")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReadingPath != "/api/dados" || cfg.ReadingPeriod != 5*time.Second || cfg.RankingPeriod != 30*time.Second {
		t.Errorf("defaults: %+v", cfg)
	}
	if cfg.RankingLimit != 5 || cfg.NotificationCapacity != 5 || cfg.HistorySize != 720 {
		t.Errorf("defaults: %+v", cfg)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "HYDRO_BASE_URL") {
		t.Fatalf("expected missing base url error, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HYDRO_BASE_URL", "http://127.0.0.1:5000")
	t.Setenv("HYDRO_READING_PATH", "/api/latest")
	t.Setenv("HYDRO_READING_PERIOD", "2s")
	t.Setenv("HYDRO_RANKING_LIMIT", "10")
	t.Setenv("HYDRO_LOG_PRETTY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReadingPath != "/api/latest" || cfg.ReadingPeriod != 2*time.Second || cfg.RankingLimit != 10 || !cfg.Log.Pretty {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"HYDRO_READING_PERIOD", "soon", "HYDRO_READING_PERIOD"},
		{"HYDRO_HISTORY_SIZE", "many", "HYDRO_HISTORY_SIZE"},
		{"HYDRO_NOTIFICATION_CAPACITY", "0", "HYDRO_NOTIFICATION_CAPACITY"},
		{"HYDRO_BASE_URL", "not a url", "HYDRO_BASE_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("HYDRO_BASE_URL", "http://127.0.0.1:5000")
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error mentioning %s", err, tt.want)
			}
		})
	}
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "hydro.yaml")
	data := `base_url: https://tank.example.com
reading_path: /api/latest
ranking_period: 1m
ranking_limit: 3
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("HYDRO_CONFIG", path)
	t.Setenv("HYDRO_RANKING_LIMIT", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://tank.example.com" || cfg.ReadingPath != "/api/latest" {
		t.Errorf("file values: %+v", cfg)
	}
	if cfg.RankingPeriod != time.Minute {
		t.Errorf("ranking period: got %v", cfg.RankingPeriod)
	}
	if cfg.RankingLimit != 8 {
		t.Errorf("env should override file: got %d", cfg.RankingLimit)
	}
	if cfg.Log.Level != "debug" || cfg.ReadingPeriod != 5*time.Second {
		t.Errorf("merge: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HYDRO_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
