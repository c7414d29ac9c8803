package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stage names accepted in Config.Stages.
const (
	StageWhitespaceStrip = "whitespace_strip"
	StageSmartUnwrap     = "smart_unwrap"
	StageRemote          = "remote"
)

// Config holds application configuration.
type Config struct {
	// PollIntervalMs is how often the clipboard change counter is re-read.
	PollIntervalMs int `json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// PollJitterMs adds up to this much random delay to each tick so idle
	// polling does not wake the CPU on an exact cadence.
	PollJitterMs int `json:"poll_jitter_ms" yaml:"poll_jitter_ms"`

	// GraceDelayMs is the wait between seeing a counter change and reading the
	// content, giving promised/lazy writers time to populate every type.
	GraceDelayMs int `json:"grace_delay_ms" yaml:"grace_delay_ms"`

	// TimeoutMs is the wall-clock budget for a whole pipeline run.
	TimeoutMs int `json:"timeout_ms" yaml:"timeout_ms"`

	// AutoTransform runs the pipeline on every processable clipboard change.
	// When false, changes are only logged and transforms need an explicit trigger.
	AutoTransform bool `json:"auto_transform,omitempty" yaml:"auto_transform,omitempty"`

	// Stages is the ordered list of pipeline stages.
	// Known names: whitespace_strip, smart_unwrap, remote.
	Stages []string `json:"stages,omitempty" yaml:"stages,omitempty"`

	Strip  StripConfig  `json:"strip" yaml:"strip"`
	Unwrap UnwrapConfig `json:"unwrap" yaml:"unwrap"`
	Code   CodeConfig   `json:"code" yaml:"code"`
	Remote RemoteConfig `json:"remote" yaml:"remote"`

	// HistoryEnabled controls whether runs are recorded to SQLite.
	HistoryEnabled *bool `json:"history_enabled,omitempty" yaml:"history_enabled,omitempty"`

	// HistoryRetentionDays bounds `history purge` when no age is given.
	HistoryRetentionDays int `json:"history_retention_days,omitempty" yaml:"history_retention_days,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "text", "clipboard", "history".
	DisabledTypes []string `json:"disabled_types,omitempty" yaml:"disabled_types,omitempty"`

	// WebBind and WebPort configure the local HTTP API.
	WebBind string `json:"web_bind,omitempty" yaml:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty" yaml:"web_port,omitempty"`
}

// StripConfig tunes WhitespaceStrip.
type StripConfig struct {
	// MaxStripWidth caps how many columns of common indent are removed. 0 = no cap.
	MaxStripWidth int `json:"max_strip_width,omitempty" yaml:"max_strip_width,omitempty"`
	// TabWidth is the column width a leading tab counts for.
	TabWidth             int   `json:"tab_width,omitempty" yaml:"tab_width,omitempty"`
	TrimTrailing         *bool `json:"trim_trailing,omitempty" yaml:"trim_trailing,omitempty"`
	NormalizeLineEndings *bool `json:"normalize_line_endings,omitempty" yaml:"normalize_line_endings,omitempty"`
}

// UnwrapConfig tunes SmartUnwrap.
type UnwrapConfig struct {
	MinConsecutiveLines int     `json:"min_consecutive_lines,omitempty" yaml:"min_consecutive_lines,omitempty"`
	MinLineLength       int     `json:"min_line_length,omitempty" yaml:"min_line_length,omitempty"`
	MaxLineLength       int     `json:"max_line_length,omitempty" yaml:"max_line_length,omitempty"`
	LengthTolerance     float64 `json:"length_tolerance,omitempty" yaml:"length_tolerance,omitempty"`
	// PerParagraphCodeCheck also consults the code detector for each paragraph.
	PerParagraphCodeCheck *bool `json:"per_paragraph_code_check,omitempty" yaml:"per_paragraph_code_check,omitempty"`
}

// CodeConfig holds the code-detector thresholds.
type CodeConfig struct {
	SkipThreshold         float64 `json:"skip_threshold,omitempty" yaml:"skip_threshold,omitempty"`
	ConservativeThreshold float64 `json:"conservative_threshold,omitempty" yaml:"conservative_threshold,omitempty"`
}

// RemoteConfig configures the optional HTTP remote stage.
type RemoteConfig struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// APIKeyEnv names the environment variable holding the bearer token.
	// The key itself never lives in config files.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PollIntervalMs: 500,
		PollJitterMs:   50,
		GraceDelayMs:   100,
		TimeoutMs:      30000,
		Stages:         []string{StageWhitespaceStrip, StageSmartUnwrap},
		Strip: StripConfig{
			TabWidth:             4,
			TrimTrailing:         boolPtr(true),
			NormalizeLineEndings: boolPtr(true),
		},
		Unwrap: UnwrapConfig{
			MinConsecutiveLines:   3,
			MinLineLength:         60,
			MaxLineLength:         80,
			LengthTolerance:       0.25,
			PerParagraphCodeCheck: boolPtr(true),
		},
		Code: CodeConfig{
			SkipThreshold:         0.8,
			ConservativeThreshold: 0.5,
		},
		Remote: RemoteConfig{
			TimeoutMs: 20000,
		},
		HistoryEnabled:       boolPtr(true),
		HistoryRetentionDays: 30,
		WebBind:              "127.0.0.1",
		WebPort:              7321,
	}
}

// PollInterval returns PollIntervalMs as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// PollJitter returns PollJitterMs as a duration.
func (c *Config) PollJitter() time.Duration {
	return time.Duration(c.PollJitterMs) * time.Millisecond
}

// GraceDelay returns GraceDelayMs as a duration.
func (c *Config) GraceDelay() time.Duration {
	return time.Duration(c.GraceDelayMs) * time.Millisecond
}

// Timeout returns TimeoutMs as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// History reports whether run history is recorded.
func (c *Config) History() bool {
	return boolValue(c.HistoryEnabled, true)
}

// Load loads configuration from baseDir/config.json, falling back to
// baseDir/config.yaml. Returns default config if neither exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.clipflow.
func Load(baseDir string) (*Config, error) {
	return loadFile(configPathIn(baseDir))
}

// LoadWithRepo loads configuration from both global (~/.clipflow) and repo (.clipflow) directories.
// Repo config is found by walking upward from startDir.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(configPathIn(globalDir))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest
// .clipflow/config.json (or config.yaml).
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		for _, name := range []string{"config.json", "config.yaml"} {
			configPath := filepath.Join(dir, ".clipflow", name)
			if _, err := os.Stat(configPath); err == nil {
				return configPath
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// configPathIn picks config.json, or config.yaml when only that exists.
func configPathIn(dir string) string {
	jsonPath := filepath.Join(dir, "config.json")
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath
	}
	yamlPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	return jsonPath
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated,
// except Stages which the overlay replaces wholesale because order matters.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.PollIntervalMs = firstInt(overlay.PollIntervalMs, base.PollIntervalMs)
	result.PollJitterMs = firstInt(overlay.PollJitterMs, base.PollJitterMs)
	result.GraceDelayMs = firstInt(overlay.GraceDelayMs, base.GraceDelayMs)
	result.TimeoutMs = firstInt(overlay.TimeoutMs, base.TimeoutMs)
	result.HistoryRetentionDays = firstInt(overlay.HistoryRetentionDays, base.HistoryRetentionDays)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.WebPort = firstInt(overlay.WebPort, base.WebPort)
	result.WebBind = firstString(overlay.WebBind, base.WebBind)

	// Booleans: overlay wins if true, else base
	result.AutoTransform = base.AutoTransform || overlay.AutoTransform
	result.HistoryEnabled = firstBool(overlay.HistoryEnabled, base.HistoryEnabled)

	result.Stages = base.Stages
	if len(overlay.Stages) > 0 {
		result.Stages = cleanStrings(overlay.Stages)
	}

	result.Strip = StripConfig{
		MaxStripWidth:        firstInt(overlay.Strip.MaxStripWidth, base.Strip.MaxStripWidth),
		TabWidth:             firstInt(overlay.Strip.TabWidth, base.Strip.TabWidth),
		TrimTrailing:         firstBool(overlay.Strip.TrimTrailing, base.Strip.TrimTrailing),
		NormalizeLineEndings: firstBool(overlay.Strip.NormalizeLineEndings, base.Strip.NormalizeLineEndings),
	}
	result.Unwrap = UnwrapConfig{
		MinConsecutiveLines:   firstInt(overlay.Unwrap.MinConsecutiveLines, base.Unwrap.MinConsecutiveLines),
		MinLineLength:         firstInt(overlay.Unwrap.MinLineLength, base.Unwrap.MinLineLength),
		MaxLineLength:         firstInt(overlay.Unwrap.MaxLineLength, base.Unwrap.MaxLineLength),
		LengthTolerance:       firstFloat(overlay.Unwrap.LengthTolerance, base.Unwrap.LengthTolerance),
		PerParagraphCodeCheck: firstBool(overlay.Unwrap.PerParagraphCodeCheck, base.Unwrap.PerParagraphCodeCheck),
	}
	result.Code = CodeConfig{
		SkipThreshold:         firstFloat(overlay.Code.SkipThreshold, base.Code.SkipThreshold),
		ConservativeThreshold: firstFloat(overlay.Code.ConservativeThreshold, base.Code.ConservativeThreshold),
	}
	result.Remote = RemoteConfig{
		URL:       firstString(overlay.Remote.URL, base.Remote.URL),
		APIKeyEnv: firstString(overlay.Remote.APIKeyEnv, base.Remote.APIKeyEnv),
		Model:     firstString(overlay.Remote.Model, base.Remote.Model),
		TimeoutMs: firstInt(overlay.Remote.TimeoutMs, base.Remote.TimeoutMs),
	}

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// Validate reports configuration that cannot produce a working pipeline.
func (c *Config) Validate() error {
	if c.Unwrap.MinLineLength > c.Unwrap.MaxLineLength {
		return errors.New("unwrap.min_line_length must not exceed unwrap.max_line_length")
	}
	if c.Code.ConservativeThreshold > c.Code.SkipThreshold {
		return errors.New("code.conservative_threshold must not exceed code.skip_threshold")
	}
	for _, s := range c.Stages {
		switch s {
		case StageWhitespaceStrip, StageSmartUnwrap:
		case StageRemote:
			if c.Remote.URL == "" {
				return errors.New("stage \"remote\" requires remote.url")
			}
		default:
			return errors.New("unknown stage: " + s)
		}
	}
	return nil
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func firstFloat(overlay, base float64) float64 {
	if overlay != 0 {
		return overlay
	}
	return base
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func firstBool(overlay, base *bool) *bool {
	if overlay != nil {
		return overlay
	}
	return base
}

// BoolValue dereferences b, returning def when b is nil.
func BoolValue(b *bool, def bool) bool {
	return boolValue(b, def)
}

func boolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func boolPtr(b bool) *bool {
	return &b
}

// cleanStrings trims entries and drops empties, keeping order and duplicates.
func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
