// Package config carries every tunable of a hostguard run in a single
// Config struct, loads it from layered sources (defaults, config file,
// environment, flags) and validates it for internal consistency before any
// scanning starts.
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/hostguard/hostguard/pkg/report"
)

// Config is constructed once, validated by Validate, possibly mutated by
// ApplyFastScanOptimizations, and then treated as read-only for the rest of
// the run.
type Config struct {
	Log      LogConfig       `koanf:"log"`
	Output   OutputConfig    `koanf:"output"`
	Filter   FilterConfig    `koanf:"filter"`
	Scanners ScannersConfig  `koanf:"scanners"`
	Lists    ListsConfig     `koanf:"lists"`
	Rules    RulesConfig     `koanf:"rules"`
	Priv     PrivilegeConfig `koanf:"privilege"`
	Privacy  PrivacyConfig   `koanf:"privacy"`

	// FastScan forces a reduced-cost profile (see ApplyFastScanOptimizations).
	FastScan bool `koanf:"fast_scan"`

	// Canonical requests deterministic ordering of serialized output.
	Canonical bool `koanf:"canonical"`

	// HistoryDir is the workspace directory for the local run index.
	// Empty disables history recording.
	HistoryDir string `koanf:"history_dir"`

	// Derived fields, populated by Validate and LoadExternalFiles.
	MinSeverity      report.Severity `koanf:"-"`
	FailSeverity     report.Severity `koanf:"-"`
	AllowList        []string        `koanf:"-"`
	ExpectedBinaries []string        `koanf:"-"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// OutputConfig selects the report target and wire format. The format flags
// are not mutually exclusive; precedence among them is resolved by the
// writer, not here.
type OutputConfig struct {
	// File is the report destination. Empty means standard output.
	File string `koanf:"file"`

	Pretty  bool `koanf:"pretty"`
	Compact bool `koanf:"compact"`
	JSONL   bool `koanf:"jsonl"`
	SARIF   bool `koanf:"sarif"`

	// EnvFile, when non-empty, is where the CI key-value integrity file is
	// written after a successful report write.
	EnvFile string `koanf:"env_file"`
}

// FilterConfig holds the severity thresholds as raw tokens; Validate parses
// them into Config.MinSeverity / Config.FailSeverity.
type FilterConfig struct {
	MinSeverity    string `koanf:"min_severity"`
	FailOnSeverity string `koanf:"fail_on_severity"`
}

// ScannersConfig selects which scanners run and their cost knobs.
// Non-positive limits mean unlimited; they are never a crash condition.
type ScannersConfig struct {
	Enable  []string `koanf:"enable"`
	Disable []string `koanf:"disable"`

	MaxProcs    int `koanf:"max_procs"`
	MaxSockets  int `koanf:"max_sockets"`
	MaxPackages int `koanf:"max_packages"`

	// Feature toggles subject to the fast-scan optimizer.
	Integrity          bool `koanf:"integrity"`
	IOCExecTrace       bool `koanf:"ioc_exec_trace"`
	ModulesSummaryOnly bool `koanf:"modules_summary_only"`
	ProcessHash        bool `koanf:"process_hash"`
}

// ListsConfig references external list files loaded by LoadExternalFiles.
// Empty paths mean "no list".
type ListsConfig struct {
	AllowListFile        string `koanf:"allowlist_file"`
	ExpectedBinariesFile string `koanf:"expected_binaries_file"`
}

// RulesConfig configures the external rule engine.
type RulesConfig struct {
	Enable      bool   `koanf:"enable"`
	Dir         string `koanf:"dir"`
	AllowLegacy bool   `koanf:"allow_legacy"`

	// StrictPermissions promotes the insecure-permission warning to a hard
	// failure (hardened deployments).
	StrictPermissions bool `koanf:"strict_permissions"`
}

// PrivilegeConfig holds privilege/sandboxing toggles consumed by the
// scanner-execution layer.
type PrivilegeConfig struct {
	DropPrivileges bool `koanf:"drop"`
	Sandbox        bool `koanf:"sandbox"`
}

// PrivacyConfig selects PII suppression applied before serialization.
type PrivacyConfig struct {
	NoUserMeta     bool `koanf:"no_user_meta"`
	NoCmdlineMeta  bool `koanf:"no_cmdline_meta"`
	NoHostnameMeta bool `koanf:"no_hostname_meta"`
}

// SanitizeOptions translates the privacy flags into the report package's
// suppression options.
func (c *Config) SanitizeOptions() report.SanitizeOptions {
	return report.SanitizeOptions{
		NoUserMeta:     c.Privacy.NoUserMeta,
		NoCmdlineMeta:  c.Privacy.NoCmdlineMeta,
		NoHostnameMeta: c.Privacy.NoHostnameMeta,
	}
}

// DefaultConfig returns a Config populated with the baseline values used
// when no other source overrides them.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Filter: FilterConfig{
			MinSeverity:    "info",
			FailOnSeverity: "high",
		},
		Scanners: ScannersConfig{
			MaxProcs:     -1,
			MaxSockets:   -1,
			MaxPackages:  -1,
			Integrity:    true,
			IOCExecTrace: true,
		},
		Rules: RulesConfig{
			Dir: "/etc/hostguard/rules.d",
		},
	}
}

// DefaultConfigAsMap flattens DefaultConfig into koanf keys for the confmap
// provider, so every known key exists before higher-priority sources merge.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"output.file":     def.Output.File,
		"output.pretty":   def.Output.Pretty,
		"output.compact":  def.Output.Compact,
		"output.jsonl":    def.Output.JSONL,
		"output.sarif":    def.Output.SARIF,
		"output.env_file": def.Output.EnvFile,

		"filter.min_severity":     def.Filter.MinSeverity,
		"filter.fail_on_severity": def.Filter.FailOnSeverity,

		"scanners.enable":               def.Scanners.Enable,
		"scanners.disable":              def.Scanners.Disable,
		"scanners.max_procs":            def.Scanners.MaxProcs,
		"scanners.max_sockets":          def.Scanners.MaxSockets,
		"scanners.max_packages":         def.Scanners.MaxPackages,
		"scanners.integrity":            def.Scanners.Integrity,
		"scanners.ioc_exec_trace":       def.Scanners.IOCExecTrace,
		"scanners.modules_summary_only": def.Scanners.ModulesSummaryOnly,
		"scanners.process_hash":         def.Scanners.ProcessHash,

		"lists.allowlist_file":         def.Lists.AllowListFile,
		"lists.expected_binaries_file": def.Lists.ExpectedBinariesFile,

		"rules.enable":             def.Rules.Enable,
		"rules.dir":                def.Rules.Dir,
		"rules.allow_legacy":       def.Rules.AllowLegacy,
		"rules.strict_permissions": def.Rules.StrictPermissions,

		"privilege.drop":    def.Priv.DropPrivileges,
		"privilege.sandbox": def.Priv.Sandbox,

		"privacy.no_user_meta":     def.Privacy.NoUserMeta,
		"privacy.no_cmdline_meta":  def.Privacy.NoCmdlineMeta,
		"privacy.no_hostname_meta": def.Privacy.NoHostnameMeta,

		"fast_scan":   def.FastScan,
		"canonical":   def.Canonical,
		"history_dir": def.HistoryDir,
	}
}

// Manager handles loading and accessing the application configuration.
type Manager struct {
	k       *koanf.Koanf
	current Config
	mu      sync.RWMutex
}

// NewManager creates a Manager with a fresh koanf instance.
func NewManager() *Manager {
	return &Manager{k: koanf.New(".")}
}

// Load loads configuration from the default source chain.
//
// Precedence (highest to lowest):
//  1. Command-line flags (--output.file=report.json)
//  2. Environment variables (HOSTGUARD_OUTPUT_FILE=report.json)
//  3. Config file (YAML)
//  4. Default values
func (m *Manager) Load(flags *pflag.FlagSet, configFilePath string) error {
	return m.LoadWithSources(DefaultSources(configFilePath, flags))
}

// LoadWithSources loads configuration from the provided sources in priority
// order (lowest first), then unmarshals the merged result.
func (m *Manager) LoadWithSources(sources []Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	for _, src := range sources {
		if err := src.Load(m.k); err != nil {
			return fmt.Errorf("loading config from %s: %w", src.Name(), err)
		}
	}

	var cfg Config
	if err := m.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("unmarshaling merged config: %w", err)
	}
	m.current = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// GetValue retrieves a raw configuration value by key path, nil if absent.
func (m *Manager) GetValue(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.k.Get(key)
}
