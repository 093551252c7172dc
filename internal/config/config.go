// internal/config/config.go
//
// This package loads the project creator settings: a YAML file, an optional
// .env file for secrets and a couple of environment overrides.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// AppDir is the directory name used under the user config and cache dirs.
	AppDir = "project-creator"

	// EnvSite and EnvScriptName override the matching shotgrid keys.
	EnvSite       = "PROJECT_CREATOR_SITE"
	EnvScriptName = "PROJECT_CREATOR_SCRIPT_NAME"

	defaultSite       = "https://nfa.shotgunstudio.com"
	defaultScriptName = "project_creation_V2"
	defaultAPIKeyEnv  = "SHOTGRID_API_KEY"
	defaultTimeout    = 30 * time.Second
	defaultRepository = "https://github.com/nfa-vfxim/nfa-shotgun-configuration.git"
	defaultPluginIDs  = "basic.*"
	defaultTierID     = 190
	defaultTierName   = "Supervisor"
)

const defaultConfigYAML = `# project creator configuration
version: 1

shotgrid:
  site: https://nfa.shotgunstudio.com
  script_name: project_creation_V2
  # The script key is read from this environment variable (or a .env file).
  api_key_env: SHOTGRID_API_KEY
  timeout: 30s

# Pipeline configuration attached to every new project.
pipeline:
  repository: https://github.com/nfa-vfxim/nfa-shotgun-configuration.git
  plugin_ids: basic.*

# Permission rule set given to supervisors who are still artists.
supervisor_tier:
  id: 190
  name: Supervisor

# Leave empty to use the user cache directory.
log_dir: ""
`

// ShotGridConfig selects the site and script credentials.
type ShotGridConfig struct {
	Site       string        `yaml:"site"`
	ScriptName string        `yaml:"script_name"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
}

// MarshalYAML writes the timeout as a duration string.
func (s ShotGridConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Site       string `yaml:"site"`
		ScriptName string `yaml:"script_name"`
		APIKeyEnv  string `yaml:"api_key_env"`
		Timeout    string `yaml:"timeout"`
	}{s.Site, s.ScriptName, s.APIKeyEnv, s.Timeout.String()}, nil
}

// PipelineConfig describes the pipeline configuration record.
type PipelineConfig struct {
	Repository string `yaml:"repository"`
	PluginIDs  string `yaml:"plugin_ids"`
}

// TierConfig names a ShotGrid permission rule set.
type TierConfig struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// Config models config.yaml.
type Config struct {
	Version        int            `yaml:"version"`
	ShotGrid       ShotGridConfig `yaml:"shotgrid"`
	Pipeline       PipelineConfig `yaml:"pipeline"`
	SupervisorTier TierConfig     `yaml:"supervisor_tier"`
	LogDir         string         `yaml:"log_dir"`

	// Path is the file the config was read from, empty when defaults were used.
	Path string `yaml:"-"`
}

// DefaultPath returns $XDG_CONFIG_HOME/project-creator/config.yaml or the
// platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate user config dir: %w", err)
	}
	return filepath.Join(dir, AppDir, "config.yaml"), nil
}

// Default returns the built-in settings.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config at path. A missing file yields the defaults. Each
// envFile that exists is loaded into the environment first; variables that
// are already set win.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// EnsureFile writes the commented default config to path unless a file is
// already there. It reports whether a file was written.
func EnsureFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("config: ensure config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return false, fmt.Errorf("config: write %s: %w", path, err)
	}
	return true, nil
}

// APIKey reads the script key from the configured environment variable.
func (c *Config) APIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(c.ShotGrid.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("config: environment variable %s is not set", c.ShotGrid.APIKeyEnv)
	}
	return key, nil
}

// LogsDir returns where the logbook is written.
func (c *Config) LogsDir() string {
	return c.LogDir
}

func loadEnvFiles(files []string) error {
	for _, file := range files {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvSite)); v != "" {
		c.ShotGrid.Site = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvScriptName)); v != "" {
		c.ShotGrid.ScriptName = v
	}
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if strings.TrimSpace(c.ShotGrid.Site) == "" {
		c.ShotGrid.Site = defaultSite
	}
	if strings.TrimSpace(c.ShotGrid.ScriptName) == "" {
		c.ShotGrid.ScriptName = defaultScriptName
	}
	if strings.TrimSpace(c.ShotGrid.APIKeyEnv) == "" {
		c.ShotGrid.APIKeyEnv = defaultAPIKeyEnv
	}
	if c.ShotGrid.Timeout == 0 {
		c.ShotGrid.Timeout = defaultTimeout
	}
	if strings.TrimSpace(c.Pipeline.Repository) == "" {
		c.Pipeline.Repository = defaultRepository
	}
	if strings.TrimSpace(c.Pipeline.PluginIDs) == "" {
		c.Pipeline.PluginIDs = defaultPluginIDs
	}
	if c.SupervisorTier.ID == 0 && strings.TrimSpace(c.SupervisorTier.Name) == "" {
		c.SupervisorTier = TierConfig{ID: defaultTierID, Name: defaultTierName}
	}
	if strings.TrimSpace(c.LogDir) == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			c.LogDir = filepath.Join(dir, AppDir)
		} else {
			c.LogDir = filepath.Join(os.TempDir(), AppDir)
		}
	}
}

func (c *Config) normalize() {
	c.ShotGrid.Site = strings.TrimRight(strings.TrimSpace(c.ShotGrid.Site), "/")
	c.ShotGrid.ScriptName = strings.TrimSpace(c.ShotGrid.ScriptName)
	c.ShotGrid.APIKeyEnv = strings.TrimSpace(c.ShotGrid.APIKeyEnv)
	c.Pipeline.Repository = strings.TrimSpace(c.Pipeline.Repository)
	c.Pipeline.PluginIDs = strings.TrimSpace(c.Pipeline.PluginIDs)
	c.SupervisorTier.Name = strings.TrimSpace(c.SupervisorTier.Name)
	c.LogDir = filepath.Clean(strings.TrimSpace(c.LogDir))
}

func (c *Config) validate() error {
	if c.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if !strings.HasPrefix(c.ShotGrid.Site, "https://") && !strings.HasPrefix(c.ShotGrid.Site, "http://") {
		return fmt.Errorf("shotgrid.site must be an http(s) URL, got %q", c.ShotGrid.Site)
	}
	if c.ShotGrid.Timeout < 0 {
		return fmt.Errorf("shotgrid.timeout must not be negative")
	}
	if c.SupervisorTier.ID <= 0 || c.SupervisorTier.Name == "" {
		return fmt.Errorf("supervisor_tier needs both id and name")
	}
	return nil
}
