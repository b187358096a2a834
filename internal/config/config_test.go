package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	if err := os.Setenv("WORKER_POLL_INTERVAL", "250ms"); err != nil {
		t.Fatalf("Failed to set WORKER_POLL_INTERVAL: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
		_ = os.Unsetenv("WORKER_POLL_INTERVAL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Postgres.Host != "testhost" {
		t.Errorf("Postgres.Host = %v, want %v", cfg.Postgres.Host, "testhost")
	}

	if cfg.Worker.PollInterval != 250*time.Millisecond {
		t.Errorf("Worker.PollInterval = %v, want %v", cfg.Worker.PollInterval, 250*time.Millisecond)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Covalent.BaseURL != "https://api.covalenthq.com/v1" {
		t.Errorf("Covalent.BaseURL = %v, want default", cfg.Covalent.BaseURL)
	}
	if cfg.Covalent.PageSize != 100 {
		t.Errorf("Covalent.PageSize = %v, want 100", cfg.Covalent.PageSize)
	}
	if cfg.Covalent.MaxPages != 10 {
		t.Errorf("Covalent.MaxPages = %v, want 10", cfg.Covalent.MaxPages)
	}
	if cfg.Worker.Concurrency != 5 {
		t.Errorf("Worker.Concurrency = %v, want 5", cfg.Worker.Concurrency)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{
			name:  "zero page size",
			key:   "COVALENT_PAGE_SIZE",
			value: "0",
		},
		{
			name:  "excessive page size",
			key:   "COVALENT_PAGE_SIZE",
			value: "5000",
		},
		{
			name:  "zero max pages",
			key:   "COVALENT_MAX_PAGES",
			value: "0",
		},
		{
			name:  "zero worker concurrency",
			key:   "WORKER_CONCURRENCY",
			value: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.Setenv(tt.key, tt.value); err != nil {
				t.Fatalf("Failed to set %s: %v", tt.key, err)
			}
			defer func() {
				_ = os.Unsetenv(tt.key)
			}()

			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() accepted %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	if err := os.Setenv("TEST_FLOAT", "2.5"); err != nil {
		t.Fatalf("Failed to set TEST_FLOAT: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("TEST_FLOAT")
	}()

	if got := getEnvAsFloat("TEST_FLOAT", 1.0); got != 2.5 {
		t.Errorf("getEnvAsFloat() = %v, want 2.5", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT_MISSING", 4.0); got != 4.0 {
		t.Errorf("getEnvAsFloat() = %v, want default 4.0", got)
	}
}
