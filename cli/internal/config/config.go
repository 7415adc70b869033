// Package config provides codexreview configuration with a defined load order:
// CLI flags > environment variables > repo config > global config > defaults.
//
// Paths:
//   - Repo: .codexreview/config.toml (relative to repo root)
//   - Global: XDG config dir, e.g. ~/.config/codexreview/config.toml (see os.UserConfigDir)
//
// Environment variables (override config files when set):
//   - CODEXREVIEW_STATE_DIR, CODEXREVIEW_LOG_LEVEL (debug, info, warn, error),
//   - CODEXREVIEW_WRITE_CAP, CODEXREVIEW_HISTORY_MAX_RECORDS (non-negative integers),
//   - CODEXREVIEW_TIMEOUT (Go duration string or integer seconds; 0 = no timeout),
//   - CODEXREVIEW_USE_GIT_NUMSTAT (1/true/yes/on = true, 0/false/no/off = false).
//
// CODEXREVIEW_AGENT_CMD is read by package agentcmd and outranks agent_cmd here.
package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"codexreview/cli/internal/erruser"
)

// DirName is the per-repository directory holding config and state.
const DirName = ".codexreview"

// Config holds all codexreview configuration. Empty StateDir means
// repoRoot/.codexreview.
type Config struct {
	StateDir string
	// WriteCap bounds the lines credited to a single whole-file write. Must be
	// positive. Default 200.
	WriteCap int
	// Timeout bounds one review agent run (0 = no timeout). Default 10m.
	Timeout  time.Duration
	LogLevel string
	// HistoryMaxRecords is the active history.jsonl size before rotation (0 = never rotate). Default 200.
	HistoryMaxRecords int
	// UseGitNumstat replaces the line estimate with git diff totals at stop time. Default true.
	UseGitNumstat bool
	// AgentCmd overrides the packaged agent; JSON array or shell-quoted string.
	AgentCmd string
}

// Overrides represents optional CLI flag overrides. Non-nil pointer means
// "override with this value".
type Overrides struct {
	StateDir          *string
	WriteCap          *int
	Timeout           *time.Duration
	LogLevel          *string
	HistoryMaxRecords *int
	UseGitNumstat     *bool
	AgentCmd          *string
}

// LoadOptions configures Load. All fields are optional.
type LoadOptions struct {
	// RepoRoot is the repository root; if set, repo config is RepoRoot/.codexreview/config.toml.
	RepoRoot string
	// GlobalConfigPath is the global config file path; if empty, XDG path is used.
	GlobalConfigPath string
	// Env is the environment key=value slice; if nil, os.Environ() is used.
	Env []string
	// Overrides are applied last (highest precedence).
	Overrides *Overrides
}

const (
	_defaultWriteCap          = 200
	_defaultTimeout           = 10 * time.Minute
	_defaultLogLevel          = "info"
	_defaultHistoryMaxRecords = 200
)

var validLogLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "error": {},
}

// validateLogLevel normalizes s (trim, lowercase) and returns it if valid.
func validateLogLevel(s string) (string, error) {
	norm := strings.TrimSpace(strings.ToLower(s))
	if norm == "warning" {
		norm = "warn"
	}
	if _, ok := validLogLevels[norm]; !ok {
		return "", erruser.New("Invalid log level; use debug, info, warn, or error.", nil)
	}
	return norm, nil
}

// errIntOverflow is returned when an int64 value does not fit in int (e.g. on 32-bit or huge TOML/env values).
var errIntOverflow = errors.New("value out of range for int")

func int64ToInt(n int64) (int, error) {
	if n < int64(math.MinInt) || n > int64(math.MaxInt) {
		return 0, errIntOverflow
	}
	return int(n), nil
}

// DefaultConfig returns the default configuration (no I/O).
func DefaultConfig() Config {
	return Config{
		WriteCap:          _defaultWriteCap,
		Timeout:           _defaultTimeout,
		LogLevel:          _defaultLogLevel,
		HistoryMaxRecords: _defaultHistoryMaxRecords,
		UseGitNumstat:     true,
	}
}

// EffectiveStateDir returns the directory used for state, lock, history, and
// log files. An absolute StateDir is returned as-is, a relative one is
// resolved against repoRoot, and an empty one yields repoRoot/.codexreview.
func (c Config) EffectiveStateDir(repoRoot string) string {
	switch {
	case c.StateDir == "":
		return filepath.Join(repoRoot, DirName)
	case filepath.IsAbs(c.StateDir):
		return c.StateDir
	default:
		return filepath.Join(repoRoot, c.StateDir)
	}
}

// GlobalConfigPath returns the default global config file path.
func GlobalConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", erruser.New("Could not determine config directory.", err)
	}
	return filepath.Join(dir, "codexreview", "config.toml"), nil
}

// Load loads configuration with precedence: defaults < global file < repo file < env < overrides.
// Missing config files are ignored. Invalid TOML or invalid env values return an error.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	cfg := DefaultConfig()

	globalPath := opts.GlobalConfigPath
	if globalPath == "" {
		p, err := GlobalConfigPath()
		if err != nil {
			return nil, err
		}
		globalPath = p
	}
	if err := mergeFile(&cfg, globalPath); err != nil {
		return nil, err
	}

	if opts.RepoRoot != "" {
		repoPath := filepath.Join(opts.RepoRoot, DirName, "config.toml")
		if err := mergeFile(&cfg, repoPath); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, opts.Env); err != nil {
		return nil, err
	}

	if err := applyOverrides(&cfg, opts.Overrides); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile reads path and merges into cfg. Only keys present in the file
// are applied. Missing file is skipped (no error).
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return erruser.New("Could not read configuration file.", err)
	}
	var file struct {
		StateDir          *string `toml:"state_dir"`
		WriteCap          *int64  `toml:"write_cap"`
		Timeout           *string `toml:"timeout"`
		LogLevel          *string `toml:"log_level"`
		HistoryMaxRecords *int64  `toml:"history_max_records"`
		UseGitNumstat     *bool   `toml:"use_git_numstat"`
		AgentCmd          *string `toml:"agent_cmd"`
	}
	if _, err := toml.Decode(string(data), &file); err != nil {
		return erruser.Newf(err, "Invalid configuration in %s.", path)
	}
	if file.StateDir != nil {
		cfg.StateDir = *file.StateDir
	}
	if file.WriteCap != nil {
		v, err := positive(*file.WriteCap)
		if err != nil {
			return erruser.New("Configuration write_cap must be a positive integer.", err)
		}
		cfg.WriteCap = v
	}
	if file.Timeout != nil && *file.Timeout != "" {
		d, err := parseDuration(*file.Timeout)
		if err != nil {
			return erruser.New("Configuration timeout is invalid.", err)
		}
		cfg.Timeout = d
	}
	if file.LogLevel != nil && *file.LogLevel != "" {
		lvl, err := validateLogLevel(*file.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = lvl
	}
	if file.HistoryMaxRecords != nil {
		v, err := nonNegative(*file.HistoryMaxRecords)
		if err != nil {
			return erruser.New("Configuration history_max_records must be a non-negative integer.", err)
		}
		cfg.HistoryMaxRecords = v
	}
	if file.UseGitNumstat != nil {
		cfg.UseGitNumstat = *file.UseGitNumstat
	}
	if file.AgentCmd != nil {
		cfg.AgentCmd = *file.AgentCmd
	}
	return nil
}

func positive(n int64) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("value %d is not positive", n)
	}
	return int64ToInt(n)
}

func nonNegative(n int64) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return int64ToInt(n)
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	// Try Go duration first (e.g. "5m", "30s")
	d, err := time.ParseDuration(s)
	if err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return d, nil
	}
	// Try integer seconds
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return time.Duration(n) * time.Second, nil
}

// env key names for config
const (
	envStateDir          = "CODEXREVIEW_STATE_DIR"
	envWriteCap          = "CODEXREVIEW_WRITE_CAP"
	envTimeout           = "CODEXREVIEW_TIMEOUT"
	envLogLevel          = "CODEXREVIEW_LOG_LEVEL"
	envHistoryMaxRecords = "CODEXREVIEW_HISTORY_MAX_RECORDS"
	envUseGitNumstat     = "CODEXREVIEW_USE_GIT_NUMSTAT"
)

func applyEnv(cfg *Config, env []string) error {
	vals := make(map[string]string)
	for _, e := range env {
		idx := strings.Index(e, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(e[:idx])
		val := strings.TrimSpace(e[idx+1:])
		vals[key] = val
	}
	if v, ok := vals[envStateDir]; ok {
		cfg.StateDir = v
	}
	if v, ok := vals[envWriteCap]; ok && v != "" {
		n, err := parsePositive(v)
		if err != nil {
			return erruser.New(envWriteCap+" must be a positive integer.", err)
		}
		cfg.WriteCap = n
	}
	if v, ok := vals[envTimeout]; ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return erruser.New(envTimeout+" must be a valid duration.", err)
		}
		cfg.Timeout = d
	}
	if v, ok := vals[envLogLevel]; ok && v != "" {
		lvl, err := validateLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = lvl
	}
	if v, ok := vals[envHistoryMaxRecords]; ok && v != "" {
		n, err := parseNonNegative(v)
		if err != nil {
			return erruser.New(envHistoryMaxRecords+" must be a non-negative integer.", err)
		}
		cfg.HistoryMaxRecords = n
	}
	if v, ok := vals[envUseGitNumstat]; ok && v != "" {
		b, err := parseBool(v)
		if err != nil {
			return erruser.New(envUseGitNumstat+" must be a boolean (1/0, true/false, yes/no, on/off).", err)
		}
		cfg.UseGitNumstat = b
	}
	return nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return positive(n)
}

func parseNonNegative(s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return nonNegative(n)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

func applyOverrides(cfg *Config, o *Overrides) error {
	if o == nil {
		return nil
	}
	if o.StateDir != nil {
		cfg.StateDir = *o.StateDir
	}
	if o.WriteCap != nil {
		if *o.WriteCap <= 0 {
			return erruser.New("--write-cap must be positive.", nil)
		}
		cfg.WriteCap = *o.WriteCap
	}
	if o.Timeout != nil {
		if *o.Timeout < 0 {
			return erruser.New("--timeout must be non-negative.", nil)
		}
		cfg.Timeout = *o.Timeout
	}
	if o.LogLevel != nil && *o.LogLevel != "" {
		lvl, err := validateLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = lvl
	}
	if o.HistoryMaxRecords != nil {
		if *o.HistoryMaxRecords < 0 {
			return erruser.New("--history-max-records must be non-negative.", nil)
		}
		cfg.HistoryMaxRecords = *o.HistoryMaxRecords
	}
	if o.UseGitNumstat != nil {
		cfg.UseGitNumstat = *o.UseGitNumstat
	}
	if o.AgentCmd != nil {
		cfg.AgentCmd = *o.AgentCmd
	}
	return nil
}
