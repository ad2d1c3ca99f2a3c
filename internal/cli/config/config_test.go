package config

import (
	"os"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("INGEST_API_URL", "https://registry.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Registry.URL != "https://registry.example.org" {
		t.Errorf("expected registry url from environment, got %s", cfg.Registry.URL)
	}
	if cfg.Upload.APIVersion != "v1" {
		t.Errorf("expected default api version 'v1', got %s", cfg.Upload.APIVersion)
	}
	if cfg.Store.Replica != "aws" {
		t.Errorf("expected default replica 'aws', got %s", cfg.Store.Replica)
	}
	if cfg.Staging.WaitTimeMillis != 250 {
		t.Errorf("expected default wait time 250, got %d", cfg.Staging.WaitTimeMillis)
	}
	if cfg.Staging.WaitAttempts != 5 {
		t.Errorf("expected default wait attempts 5, got %d", cfg.Staging.WaitAttempts)
	}
	if interval := cfg.StagingWaitInterval(); interval != 250*time.Millisecond {
		t.Errorf("expected 250ms wait interval, got %v", interval)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	chdirTemp(t)

	configContent := `
registry:
  url: https://registry.example.org
  token: sesame
upload:
  url: https://upload.example.org
  api_version: v2
  api_key: upload-key
store:
  url: https://store.example.org
  replica: gcp
schema:
  base_url: https://schema.example.org
  migrations_url: https://schema.example.org/property_migrations
staging:
  wait_time_millis: 500
  wait_attempts: 10
  redis_url: redis://localhost:6379/0
`
	os.WriteFile("biobroker.yml", []byte(configContent), 0644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.Registry.Token != "sesame" {
		t.Errorf("expected token 'sesame', got %s", cfg.Registry.Token)
	}
	if cfg.Upload.APIVersion != "v2" {
		t.Errorf("expected api version 'v2', got %s", cfg.Upload.APIVersion)
	}
	if cfg.Store.Replica != "gcp" {
		t.Errorf("expected replica 'gcp', got %s", cfg.Store.Replica)
	}
	if cfg.Schema.MigrationsURL != "https://schema.example.org/property_migrations" {
		t.Errorf("unexpected migrations url %s", cfg.Schema.MigrationsURL)
	}
	if cfg.Staging.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("unexpected redis url %s", cfg.Staging.RedisURL)
	}
	if interval := cfg.StagingWaitInterval(); interval != 500*time.Millisecond {
		t.Errorf("expected 500ms wait interval, got %v", interval)
	}
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	chdirTemp(t)

	configContent := `
registry:
  url: https://file.example.org
store:
  url: https://file-store.example.org
`
	os.WriteFile("biobroker.yml", []byte(configContent), 0644)
	t.Setenv("INGEST_API_URL", "https://env.example.org")
	t.Setenv("DSS_API_URL", "https://env-store.example.org")
	t.Setenv("STAGING_WAIT_ATTEMPTS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.Registry.URL != "https://env.example.org" {
		t.Errorf("expected environment to win, got %s", cfg.Registry.URL)
	}
	if cfg.Store.URL != "https://env-store.example.org" {
		t.Errorf("expected environment to win, got %s", cfg.Store.URL)
	}
	if cfg.Staging.WaitAttempts != 7 {
		t.Errorf("expected wait attempts 7, got %d", cfg.Staging.WaitAttempts)
	}
}

func TestLoadRequiresRegistryURL(t *testing.T) {
	chdirTemp(t)

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error when no registry url is configured")
	}
}
