// Package config loads blobcache configuration from JSONC files and flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
)

// Error variables for configuration loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDirEmpty           = errors.New("dir cannot be empty")
	ErrLogLevelInvalid    = errors.New("invalid log_level (want debug, info, warn or error)")
)

// FileName is the project config file looked up in the working directory.
const FileName = ".blobcache.json"

// Config holds all configuration options.
type Config struct {
	// Dir is the cache directory as configured, possibly relative.
	Dir string

	// SyncDir enables fsync of the cache directory after each save.
	SyncDir bool

	// LogLevel is the minimum level logged to stderr.
	LogLevel slog.Level

	// EffectiveCwd is the absolute working directory (from -C or os.Getwd).
	EffectiveCwd string

	// DirAbs is Dir resolved against EffectiveCwd.
	DirAbs string

	// Sources tracks which config files were loaded (for diagnostics).
	Sources Sources
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// fileConfig is the on-disk shape. Pointers distinguish "absent" from
// "explicitly set to the zero value".
type fileConfig struct {
	Dir      *string `json:"dir"`
	SyncDir  *bool   `json:"sync_dir"`
	LogLevel *string `json:"log_level"`
}

// Default returns the default configuration (before path resolution).
func Default() Config {
	return Config{
		Dir:      ".blobcache",
		SyncDir:  true,
		LogLevel: slog.LevelWarn,
	}
}

// Input holds the inputs for [Load].
type Input struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DirOverride     string            // -d/--dir flag value; empty means no override
	Verbose         bool              // -v/--verbose forces debug logging
	Env             map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/blobcache/config.json or ~/.config/blobcache/config.json)
// 3. Project config file in the working directory (.blobcache.json, if exists)
// 4. Explicit config file via ConfigPath (replaces 3, must exist)
// 5. CLI overrides.
//
// Dir is resolved to an absolute path in DirAbs.
func Load(input Input) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
	}

	cfg := Default()

	if globalPath := globalConfigPath(input.Env); globalPath != "" {
		loaded, err := loadFile(globalPath, false, &cfg)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = globalPath
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false

	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		if _, statErr := os.Stat(projectPath); statErr != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}
	}

	loaded, err := loadFile(projectPath, mustExist, &cfg)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
	}

	if input.DirOverride != "" {
		cfg.Dir = input.DirOverride
	}

	if input.Verbose {
		cfg.LogLevel = slog.LevelDebug
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.Dir) {
		cfg.DirAbs = filepath.Clean(cfg.Dir)
	} else {
		cfg.DirAbs = filepath.Join(workDir, cfg.Dir)
	}

	return cfg, nil
}

// Format renders cfg as key=value lines followed by its sources.
func Format(cfg Config) string {
	var b strings.Builder

	b.WriteString("effective_cwd=" + cfg.EffectiveCwd + "\n")
	b.WriteString("dir=" + cfg.DirAbs + "\n")
	b.WriteString("sync_dir=" + strconv.FormatBool(cfg.SyncDir) + "\n")
	b.WriteString("log_level=" + strings.ToLower(cfg.LogLevel.String()) + "\n")
	b.WriteString("\n# sources\n")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		b.WriteString("(defaults only)\n")

		return b.String()
	}

	if cfg.Sources.Global != "" {
		b.WriteString("global_config=" + cfg.Sources.Global + "\n")
	}

	if cfg.Sources.Project != "" {
		b.WriteString("project_config=" + cfg.Sources.Project + "\n")
	}

	return b.String()
}

// globalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/blobcache/config.json if set, otherwise
// ~/.config/blobcache/config.json. Returns empty string if neither is known.
func globalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "blobcache", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "blobcache", "config.json")
	}

	return ""
}

// loadFile merges the config file at path into cfg. If mustExist is false,
// a missing file is not an error. Reports whether the file was loaded.
func loadFile(path string, mustExist bool, cfg *Config) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return false, nil
		}

		return false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
	}

	fc, err := parse(data)
	if err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	err = merge(cfg, fc)
	if err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return true, nil
}

func parse(data []byte) (fileConfig, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig

	err = json.Unmarshal(standardized, &fc)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return fc, nil
}

func merge(cfg *Config, fc fileConfig) error {
	if fc.Dir != nil {
		if *fc.Dir == "" {
			return ErrDirEmpty
		}

		cfg.Dir = *fc.Dir
	}

	if fc.SyncDir != nil {
		cfg.SyncDir = *fc.SyncDir
	}

	if fc.LogLevel != nil {
		var level slog.Level

		err := level.UnmarshalText([]byte(*fc.LogLevel))
		if err != nil {
			return fmt.Errorf("%w: %q", ErrLogLevelInvalid, *fc.LogLevel)
		}

		cfg.LogLevel = level
	}

	return nil
}
