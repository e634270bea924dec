// Package configuration loads and validates the typed configuration
// snapshot consumed by the ingestion pipeline (see of the
// specification). Loading itself - merging a YAML file, environment
// variables, and CLI flags - is an ambient concern external to the core
// pipeline, so it follows the conventions visible across the example
// corpus (spf13/viper + spf13/pflag, as used for templar's and TaskWing's
// configuration layers) rather than anything pipeline-specific.
package configuration

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Snapshot is the immutable, typed configuration consumed by the ingestion
// pipeline for a single run.
type Snapshot struct {
	WatchRoots []string `yaml:"watch_roots" mapstructure:"watch_roots" validate:"required,min=1,dive,required"`

	IncludeExtensions     []string `yaml:"include_extensions" mapstructure:"include_extensions"`
	ExcludePatterns       []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
	ExcludeDirectoryNames []string `yaml:"exclude_directory_names" mapstructure:"exclude_directory_names"`
	MaxFileSizeBytes      uint64   `yaml:"max_file_size_bytes" mapstructure:"max_file_size_bytes"`
	AdmitHidden           bool     `yaml:"admit_hidden" mapstructure:"admit_hidden"`

	DebounceDelayMS  uint32 `yaml:"debounce_delay_ms" mapstructure:"debounce_delay_ms"`
	MaxPendingEvents uint32 `yaml:"max_pending_events" mapstructure:"max_pending_events"`
	BatchIntervalMS  uint32 `yaml:"batch_interval_ms" mapstructure:"batch_interval_ms"`
	MaxBatchSize     uint32 `yaml:"max_batch_size" mapstructure:"max_batch_size"`

	ContentParsingEnabled bool   `yaml:"content_parsing_enabled" mapstructure:"content_parsing_enabled"`
	MaxContentLength      uint32 `yaml:"max_content_length" mapstructure:"max_content_length"`

	IndexScanIntervalHours uint32 `yaml:"index_scan_interval_hours" mapstructure:"index_scan_interval_hours"`
	MDSCPUPercentCeiling   uint8  `yaml:"mds_cpu_percent_ceiling" mapstructure:"mds_cpu_percent_ceiling" validate:"lte=100"`
}

// DefaultExcludeDirectoryNames is the default set of basename tokens any
// ancestor matching which causes a path to be rejected
var DefaultExcludeDirectoryNames = []string{
	".git", "node_modules", "__pycache__", "build", "dist", "target", ".idea", ".vscode", ".DS_Store",
}

// Defaults returns a Snapshot populated with every default value, with no
// watch roots set (the caller must supply at least one).
func Defaults() Snapshot {
	return Snapshot{
		ExcludeDirectoryNames:  append([]string(nil), DefaultExcludeDirectoryNames...),
		MaxFileSizeBytes:       50 * 1024 * 1024,
		AdmitHidden:            false,
		DebounceDelayMS:        100,
		MaxPendingEvents:       1000,
		BatchIntervalMS:        300,
		MaxBatchSize:           256,
		MaxContentLength:       50_000,
		IndexScanIntervalHours: 24,
		MDSCPUPercentCeiling:   50,
	}
}

// DebounceDelay returns DebounceDelayMS as a time.Duration.
func (s Snapshot) DebounceDelay() time.Duration {
	return time.Duration(s.DebounceDelayMS) * time.Millisecond
}

// BatchInterval returns BatchIntervalMS as a time.Duration.
func (s Snapshot) BatchInterval() time.Duration {
	return time.Duration(s.BatchIntervalMS) * time.Millisecond
}

// IndexScanInterval returns IndexScanIntervalHours as a time.Duration.
func (s Snapshot) IndexScanInterval() time.Duration {
	return time.Duration(s.IndexScanIntervalHours) * time.Hour
}

var validate = validator.New()

// ErrConfigurationRejected is the sentinel wrapped by every validation
// failure, so callers can match with errors.Is regardless of the specific
// message.
var ErrConfigurationRejected = fmt.Errorf("configuration rejected")

// Validate enforces the structural requirements a Snapshot must satisfy
// before the Orchestrator will start: surfaced to the embedder, no partial
// start.
func (s Snapshot) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationRejected, err)
	}
	for _, root := range s.WatchRoots {
		if !strings.HasPrefix(root, "/") && !isWindowsAbs(root) {
			return fmt.Errorf("%w: watch root %q is not absolute", ErrConfigurationRejected, root)
		}
	}
	if s.MaxPendingEvents == 0 {
		return fmt.Errorf("%w: max_pending_events must be positive", ErrConfigurationRejected)
	}
	return nil
}

func isWindowsAbs(p string) bool {
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

// canonicalForm produces a stable JSON encoding of the snapshot (sorted
// slices, so that field order the user happened to write them in doesn't
// change the fingerprint) for use by Fingerprint.
func (s Snapshot) canonicalForm() []byte {
	sorted := s
	sorted.WatchRoots = sortedCopy(s.WatchRoots)
	sorted.IncludeExtensions = sortedCopy(s.IncludeExtensions)
	sorted.ExcludePatterns = sortedCopy(s.ExcludePatterns)
	sorted.ExcludeDirectoryNames = sortedCopy(s.ExcludeDirectoryNames)

	data, err := json.Marshal(sorted)
	if err != nil {
		// Snapshot contains only primitives and string slices, so marshaling
		// cannot fail; a failure here indicates a programming error.
		panic(fmt.Sprintf("configuration: unable to marshal canonical form: %v", err))
	}
	return data
}

func sortedCopy(in []string) []string {
	if in == nil {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// Fingerprint computes the 32-byte config_fingerprint referenced by
// Checkpoint.
// Two snapshots that are semantically identical (same watch roots and
// filtering/scan parameters, irrespective of slice order) produce the same
// fingerprint.
func (s Snapshot) Fingerprint() [32]byte {
	return sha256.Sum256(s.canonicalForm())
}

// Loader builds a Snapshot from a YAML file, a .env file, environment
// variables (FSOBSERVE_ prefixed), and CLI flags, in increasing order of
// precedence - matching the layering used by the example corpus's
// viper-based configuration packages.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader seeded with the documented defaults.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("FSOBSERVE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	defaults := Defaults()
	v.SetDefault("exclude_directory_names", defaults.ExcludeDirectoryNames)
	v.SetDefault("max_file_size_bytes", defaults.MaxFileSizeBytes)
	v.SetDefault("admit_hidden", defaults.AdmitHidden)
	v.SetDefault("debounce_delay_ms", defaults.DebounceDelayMS)
	v.SetDefault("max_pending_events", defaults.MaxPendingEvents)
	v.SetDefault("batch_interval_ms", defaults.BatchIntervalMS)
	v.SetDefault("max_batch_size", defaults.MaxBatchSize)
	v.SetDefault("max_content_length", defaults.MaxContentLength)
	v.SetDefault("index_scan_interval_hours", defaults.IndexScanIntervalHours)
	v.SetDefault("mds_cpu_percent_ceiling", defaults.MDSCPUPercentCeiling)

	return &Loader{v: v}
}

// LoadDotEnv merges a .env file (if present) into the process environment
// before Load runs, so FSOBSERVE_* variables defined there take effect. A
// missing file is not an error.
func (l *Loader) LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !isNotExist(err) {
		return fmt.Errorf("unable to load .env file: %w", err)
	}
	return nil
}

// BindFlags binds a pflag.FlagSet (typically cobra's command-level flags)
// so that CLI flags take precedence over the config file and environment.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	return l.v.BindPFlags(flags)
}

// Load reads configFile (if non-empty) and unmarshals the merged result
// into a Snapshot, then validates it.
func (l *Loader) Load(configFile string) (Snapshot, error) {
	if configFile != "" {
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return Snapshot{}, fmt.Errorf("%w: unable to read %s: %v", ErrConfigurationRejected, configFile, err)
		}
	}

	var snapshot Snapshot
	if err := l.v.Unmarshal(&snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrConfigurationRejected, err)
	}

	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}

func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "no such file") || strings.Contains(err.Error(), "cannot find the file")
}
