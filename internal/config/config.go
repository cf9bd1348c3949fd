// Package config assembles the run configuration from defaults, config
// files, the environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load.
// A double underscore nests: CODETIDE_PARSE__MAX_CONCURRENCY.
const EnvPrefix = "CODETIDE_"

// ErrInvalidRoot is returned when the project root is missing or not a directory.
var ErrInvalidRoot = errors.New("invalid project root")

// Config is the complete configuration of one run.
type Config struct {
	Root      string          `koanf:"-"`
	CacheDir  string          `koanf:"cache_dir"`
	Languages []string        `koanf:"languages"`
	Encoding  string          `koanf:"encoding"`
	Parse     ParseConfig     `koanf:"parse"`
	Cache     CacheConfig     `koanf:"cache"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Watch     WatchConfig     `koanf:"watch"`
}

// ParseConfig controls discovery and the parse worker pool.
type ParseConfig struct {
	MaxConcurrency  int      `koanf:"max_concurrency"`
	MaxFileSize     int64    `koanf:"max_file_size"`
	ExcludePatterns []string `koanf:"exclude_patterns"`
	UseGitignore    bool     `koanf:"use_gitignore"`
}

type CacheConfig struct {
	Enabled          bool `koanf:"enabled"`
	IncludeCachedIDs bool `koanf:"include_cached_ids"`
	// Gitignore appends the cache directory to the project .gitignore.
	Gitignore bool `koanf:"gitignore"`
}

type RetrievalConfig struct {
	DefaultDegree  int `koanf:"default_degree"`
	MaxSuggestions int `koanf:"max_suggestions"`
	MaxDistance    int `koanf:"max_distance"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
	MaxWait  time.Duration `koanf:"max_wait"`
}

// CachePath returns the cache directory, resolved against Root when relative.
func (c *Config) CachePath() string {
	if filepath.IsAbs(c.CacheDir) {
		return c.CacheDir
	}
	return filepath.Join(c.Root, c.CacheDir)
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"cache_dir": ".codetide",
		"languages": []string{},
		"encoding":  "utf-8",
		"parse": map[string]interface{}{
			"max_concurrency":  8,
			"max_file_size":    int64(5 * 1024 * 1024),
			"exclude_patterns": []string{},
			"use_gitignore":    true,
		},
		"cache": map[string]interface{}{
			"enabled":            true,
			"include_cached_ids": false,
			"gitignore":          true,
		},
		"retrieval": map[string]interface{}{
			"default_degree":  1,
			"max_suggestions": 10,
			"max_distance":    2,
		},
		"log": map[string]interface{}{
			"level":  "info",
			"format": "text",
		},
		"server": map[string]interface{}{
			"addr": "127.0.0.1:8765",
		},
		"watch": map[string]interface{}{
			"debounce": "300ms",
			"max_wait": "2s",
		},
	}
}

// Default returns the built-in configuration for root without reading any
// file, variable or flag.
func Default(root string) (*Config, error) {
	return LoadFrom(root, Sources{})
}

// DefaultGlobalPath returns the per-user config file path.
func DefaultGlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".codetide", "config.yaml")
}

// Sources names the optional layers LoadFrom reads on top of the defaults.
type Sources struct {
	// GlobalFile is a per-user YAML or TOML file. Empty skips it.
	GlobalFile string
	// Env enables CODETIDE_* environment variables.
	Env bool
	// Flags are applied last. Only flags the user changed override.
	Flags *pflag.FlagSet
}

// Load reads the full stack for root: defaults, the global file, the
// project file, the environment and flags.
// Priority: Flags > Env > Project file > Global file > Defaults
func Load(root string, flags *pflag.FlagSet) (*Config, error) {
	return LoadFrom(root, Sources{GlobalFile: DefaultGlobalPath(), Env: true, Flags: flags})
}

// LoadFrom is Load with explicit sources.
func LoadFrom(root string, src Sources) (*Config, error) {
	abs, err := validateRoot(root)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(makeMapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if src.GlobalFile != "" {
		if err := loadFile(k, src.GlobalFile); err != nil {
			return nil, err
		}
	}
	if path := ProjectFile(abs); path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	if src.Env {
		if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
			return nil, fmt.Errorf("load env vars: %w", err)
		}
	}

	if src.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(src.Flags, ".", k, flagKey(src.Flags)), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Root = abs
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Parse.MaxConcurrency < 1 {
		return fmt.Errorf("parse.max_concurrency must be positive, got %d", c.Parse.MaxConcurrency)
	}
	if c.Retrieval.DefaultDegree < 0 {
		return fmt.Errorf("retrieval.default_degree must not be negative, got %d", c.Retrieval.DefaultDegree)
	}
	if c.CacheDir == "" {
		return errors.New("cache_dir must not be empty")
	}
	return nil
}

func validateRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	return abs, nil
}

// ProjectFile returns the first project config file present in root, or "".
func ProjectFile(root string) string {
	for _, name := range []string{".codetide.yaml", ".codetide.yml", ".codetide.toml"} {
		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// loadFile merges a YAML or TOML file. A missing file is not an error.
func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	var parser koanf.Parser = YAML()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parser = toml.Parser()
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	return nil
}

// listKeys are split on commas when read from the environment.
var listKeys = map[string]bool{
	"languages":              true,
	"parse.exclude_patterns": true,
}

func envKey(key, value string) (string, interface{}) {
	k := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
	if listKeys[k] {
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		return k, items
	}
	return k, value
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"cache-dir":          "cache_dir",
	"languages":          "languages",
	"encoding":           "encoding",
	"max-concurrency":    "parse.max_concurrency",
	"max-file-size":      "parse.max_file_size",
	"exclude":            "parse.exclude_patterns",
	"no-gitignore":       "parse.use_gitignore",
	"no-cache":           "cache.enabled",
	"include-cached-ids": "cache.include_cached_ids",
	"degree":             "retrieval.default_degree",
	"max-suggestions":    "retrieval.max_suggestions",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"addr":               "server.addr",
	"debounce":           "watch.debounce",
}

func flagKey(fs *pflag.FlagSet) func(f *pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		val := posflag.FlagVal(fs, f)
		if strings.HasPrefix(f.Name, "no-") {
			if b, ok := val.(bool); ok {
				val = !b
			}
		}
		return key, val
	}
}

// LoadDotenv loads .env files into the process environment. Variables that
// are already set win. Missing files are skipped.
func LoadDotenv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Helper to use a map as a provider.
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("not implemented")
}
