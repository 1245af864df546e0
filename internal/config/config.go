// Package config loads, validates, persists, and derives paths from the
// daemon's configuration document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/lexsync/isync-adapter/internal/logging"
)

// ErrorKind classifies a Config error per spec's error taxonomy.
type ErrorKind string

const (
	// KindInvalidConfig marks a structural or semantic validation failure. Fatal at startup.
	KindInvalidConfig ErrorKind = "invalid-config"
	// KindCloudUnavailable marks a missing cloud-mount path. Non-fatal.
	KindCloudUnavailable ErrorKind = "cloud-unavailable"
)

// Error is the typed error returned by this package.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func invalidConfigf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidConfig, Message: fmt.Sprintf(format, args...)}
}

// validLogLevels mirrors the levels internal/logging accepts.
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// cloudMountSubpath is the fixed, OS-provided location of the cloud-synced
// directory tree, relative to the user's home directory.
const cloudMountSubpath = "Library/Mobile Documents/com~apple~CloudDocs"

// Config is the daemon's persistent configuration document (spec §3).
type Config struct {
	CloudRoot            string `json:"cloudRoot"`
	LocalRoot            string `json:"localRoot"`
	SweepIntervalSeconds int    `json:"sweepIntervalSeconds"`
	LogLevel             string `json:"logLevel"`
	BackupEnabled        bool   `json:"backupEnabled"`
}

// Default returns a configuration with real, current-user paths — never
// placeholders. The installer is responsible for shipping a config like
// this for a specific user; the daemon is responsible for never emitting
// one that isn't.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return &Config{
		CloudRoot:            "cases",
		LocalRoot:            filepath.Join(home, "isync-adapter", "cases"),
		SweepIntervalSeconds: 30,
		LogLevel:             "info",
		BackupEnabled:        false,
	}, nil
}

// Load loads configuration from path. If the file does not exist, a
// default configuration is constructed, persisted to path, and returned
// with a warning logged. Otherwise the file is read, decoded, and
// validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg, derr := Default()
		if derr != nil {
			return nil, derr
		}
		logging.L().Warn("config file missing, writing default", "path", path)
		if serr := cfg.Save(path); serr != nil {
			logging.L().Warn("failed to persist default config", "path", path, "error", serr.Error())
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, invalidConfigf("malformed config document: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants spec §3 requires. It returns the first
// offending field as an invalid-config Error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CloudRoot) == "" {
		return invalidConfigf("cloudRoot must not be empty")
	}
	if strings.TrimSpace(c.LocalRoot) == "" {
		return invalidConfigf("localRoot must not be empty")
	}
	if containsPlaceholderSegment(c.LocalRoot) {
		return invalidConfigf("localRoot %q still contains a placeholder \"username\" segment; the installer must substitute the real user before shipping this config", c.LocalRoot)
	}
	if c.SweepIntervalSeconds < 1 {
		return invalidConfigf("sweepIntervalSeconds must be >= 1, got %d", c.SweepIntervalSeconds)
	}
	if !validLogLevels[c.LogLevel] {
		return invalidConfigf("logLevel %q is not one of debug, info, warn, error", c.LogLevel)
	}
	info, err := os.Stat(c.LocalRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return invalidConfigf("localRoot %q does not exist", c.LocalRoot)
		}
		return invalidConfigf("localRoot %q: %v", c.LocalRoot, err)
	}
	if !info.IsDir() {
		return invalidConfigf("localRoot %q is not a directory", c.LocalRoot)
	}
	if !isWritableDir(c.LocalRoot) {
		return invalidConfigf("localRoot %q is not writable", c.LocalRoot)
	}
	return nil
}

func containsPlaceholderSegment(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == "username" {
			return true
		}
	}
	return false
}

func isWritableDir(dir string) bool {
	probe := filepath.Join(dir, ".isync-adapter-writetest")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// Save serializes cfg with stable field order and indentation, writing
// atomically so a crash mid-write never leaves a corrupt file that a
// later restart would mistake for valid configuration.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// CloudPath returns the absolute path to the cloud root:
// <home>/<fixed OS cloud-mount subpath>/<cloudRoot>. Returns a
// cloud-unavailable Error if the fixed mount subpath does not exist
// (cloud service disabled on the host) — this is not fatal to callers.
func (c *Config) CloudPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	mount := filepath.Join(home, filepath.FromSlash(cloudMountSubpath))
	if _, err := os.Stat(mount); err != nil {
		return "", &Error{Kind: KindCloudUnavailable, Message: fmt.Sprintf("cloud mount %q not present", mount)}
	}
	return filepath.Join(mount, c.CloudRoot), nil
}

// OutputPath derives the sibling "outputs" tree from localRoot by
// ascending two directory levels (by spec convention: the
// configured localRoot is, by convention, a nested "cases" subdirectory
// of a larger workspace) and appending "outputs".
func (c *Config) OutputPath() string {
	return DerivePath(c.LocalRoot, 2, "outputs")
}

// DerivePath ascends levels directories from root and appends name. This
// is exposed as a standalone function (spec §9 Open Question: whether the
// two-level ascent is intentional generality or a workspace-layout
// artifact) so a future caller can parameterize the ascent count without
// touching OutputPath's call sites.
func DerivePath(root string, levels int, name string) string {
	p := root
	for i := 0; i < levels; i++ {
		p = filepath.Dir(p)
	}
	return filepath.Join(p, name)
}
