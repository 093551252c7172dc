package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearOverrides(t *testing.T) {
	t.Helper()
	t.Setenv(EnvSite, "")
	t.Setenv(EnvScriptName, "")
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	clearOverrides(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Path != "" {
		t.Fatalf("expected no source path, got %q", cfg.Path)
	}
	if cfg.ShotGrid.Site != defaultSite || cfg.ShotGrid.ScriptName != defaultScriptName {
		t.Fatalf("unexpected shotgrid defaults: %+v", cfg.ShotGrid)
	}
	if cfg.ShotGrid.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.ShotGrid.Timeout)
	}
	if cfg.SupervisorTier.ID != 190 || cfg.SupervisorTier.Name != "Supervisor" {
		t.Fatalf("unexpected tier: %+v", cfg.SupervisorTier)
	}
	if cfg.Pipeline.PluginIDs != "basic.*" {
		t.Fatalf("unexpected plugin ids %q", cfg.Pipeline.PluginIDs)
	}
	if cfg.LogsDir() == "" {
		t.Fatalf("expected a log dir")
	}
}

func TestLoadParsesYaml(t *testing.T) {
	clearOverrides(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := strings.TrimSpace(`
version: 1
shotgrid:
  site: https://studio.example.com/
  script_name: creator
  api_key_env: STUDIO_KEY
  timeout: 5s
pipeline:
  repository: https://example.com/config.git
supervisor_tier:
  id: 12
  name: Lead
log_dir: logs
`)
	if err := os.WriteFile(path, []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Path != path {
		t.Fatalf("expected path %s, got %s", path, cfg.Path)
	}
	if cfg.ShotGrid.Site != "https://studio.example.com" {
		t.Fatalf("trailing slash not trimmed: %s", cfg.ShotGrid.Site)
	}
	if cfg.ShotGrid.ScriptName != "creator" || cfg.ShotGrid.APIKeyEnv != "STUDIO_KEY" {
		t.Fatalf("unexpected shotgrid config: %+v", cfg.ShotGrid)
	}
	if cfg.ShotGrid.Timeout != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", cfg.ShotGrid.Timeout)
	}
	if cfg.Pipeline.Repository != "https://example.com/config.git" || cfg.Pipeline.PluginIDs != "basic.*" {
		t.Fatalf("unexpected pipeline config: %+v", cfg.Pipeline)
	}
	if cfg.SupervisorTier.ID != 12 || cfg.SupervisorTier.Name != "Lead" {
		t.Fatalf("unexpected tier: %+v", cfg.SupervisorTier)
	}
	if cfg.LogDir != "logs" {
		t.Fatalf("unexpected log dir %q", cfg.LogDir)
	}
}

func TestLoadValidation(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := strings.TrimSpace(`
shotgrid:
  site: studio.example.com
`)
	if err := os.WriteFile(path, []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error but got none")
	}

	configYAML = strings.TrimSpace(`
supervisor_tier:
  name: Lead
`)
	if err := os.WriteFile(path, []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.HasPrefix(err.Error(), "config:") {
		t.Fatalf("expected tier validation error, got %v", err)
	}
}

func TestEnvironmentOverridesAndDotEnv(t *testing.T) {
	t.Setenv(EnvSite, "https://override.example.com")
	t.Setenv(EnvScriptName, "")
	t.Setenv("SHOTGRID_API_KEY", "")
	os.Unsetenv("SHOTGRID_API_KEY")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("SHOTGRID_API_KEY=secret\nPROJECT_CREATOR_SCRIPT_NAME=from_env_file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), envFile, filepath.Join(dir, "absent.env"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ShotGrid.Site != "https://override.example.com" {
		t.Fatalf("site override ignored: %s", cfg.ShotGrid.Site)
	}
	// already set (to empty) so the .env value does not win
	if cfg.ShotGrid.ScriptName != defaultScriptName {
		t.Fatalf("script name should fall back to default, got %s", cfg.ShotGrid.ScriptName)
	}
	key, err := cfg.APIKey()
	if err != nil || key != "secret" {
		t.Fatalf("APIKey = %q, %v", key, err)
	}
}

func TestAPIKeyMissing(t *testing.T) {
	clearOverrides(t)
	t.Setenv("PROJECT_CREATOR_TEST_KEY", "")
	cfg := Default()
	cfg.ShotGrid.APIKeyEnv = "PROJECT_CREATOR_TEST_KEY"
	if _, err := cfg.APIKey(); err == nil || !strings.Contains(err.Error(), "PROJECT_CREATOR_TEST_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestEnsureFileWritesOnce(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	wrote, err := EnsureFile(path)
	if err != nil || !wrote {
		t.Fatalf("EnsureFile = %v, %v", wrote, err)
	}
	wrote, err = EnsureFile(path)
	if err != nil || wrote {
		t.Fatalf("second EnsureFile = %v, %v", wrote, err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("default file does not load: %v", err)
	}
	if cfg.ShotGrid.Site != defaultSite || cfg.SupervisorTier.ID != defaultTierID {
		t.Fatalf("default file differs from defaults: %+v", cfg)
	}
}
