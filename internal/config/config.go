// Package config provides configuration loading and management for the configuration client daemon.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/globalconf-client/internal/httpclient"
	"github.com/stacklok/globalconf-client/internal/telemetry"
	"github.com/stacklok/globalconf-client/internal/version"
)

const (
	// EnvPrefix is the prefix of environment variables overriding configuration values
	EnvPrefix = "CONFCLIENT"

	// DefaultAdminAddress is the default listen address of the admin server
	DefaultAdminAddress = "127.0.0.1:5665"

	// DefaultInterval is the default time between two successful runs
	DefaultInterval = time.Minute

	// DefaultStatusFileName is the status file name inside the configuration path
	DefaultStatusFileName = "confclient-status.json"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
	env  *viper.Viper
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// WithEnvironment overrides file values with values from v. Without this option the process
// environment is read with the CONFCLIENT_ prefix.
func WithEnvironment(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		cfg.env = v
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// AnchorFile is the path of the configuration anchor of the primary instance
	AnchorFile string `yaml:"anchorFile"`

	// ConfigurationPath is the directory the global configuration is downloaded into
	ConfigurationPath string `yaml:"configurationPath"`

	// InstanceIdentifier is the instance the client belongs to. Defaults to the anchor's.
	InstanceIdentifier string `yaml:"instanceIdentifier,omitempty"`

	// AllowedFederations is the comma-separated list of partner instances to download, or
	// "all" / "none"
	AllowedFederations string `yaml:"allowedFederations,omitempty"`

	Download  DownloadConfig    `yaml:"download"`
	Schedule  ScheduleConfig    `yaml:"schedule"`
	Admin     AdminConfig       `yaml:"admin"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	// StatusFile is where the diagnostics status is persisted across restarts.
	// Defaults to confclient-status.json inside ConfigurationPath.
	StatusFile string `yaml:"statusFile,omitempty"`
}

// DownloadConfig controls how configuration is fetched
type DownloadConfig struct {
	ReadTimeout        string       `yaml:"readTimeout,omitempty"`
	VersionMode        version.Mode `yaml:"versionMode,omitempty"`
	FixedVersion       int          `yaml:"fixedVersion,omitempty"`
	MinVersion         int          `yaml:"minVersion,omitempty"`
	MaxVersion         int          `yaml:"maxVersion,omitempty"`
	PartnerConcurrency int          `yaml:"partnerConcurrency,omitempty"`
}

// ScheduleConfig controls how often the daemon runs
type ScheduleConfig struct {
	Interval   string `yaml:"interval,omitempty"`
	MaxBackoff string `yaml:"maxBackoff,omitempty"`
}

// AdminConfig configures the admin HTTP server
type AdminConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if loaderCfg.env == nil {
		loaderCfg.env = NewEnvironment()
	}
	config.applyEnvironment(loaderCfg.env)
	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// NewEnvironment returns a viper instance reading CONFCLIENT_ prefixed environment variables
func NewEnvironment() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// New returns a configuration for the given anchor and configuration path with defaults applied.
// Values from env, when not nil, are applied first so the explicit paths always win.
func New(anchorFile, configurationPath string, env *viper.Viper) *Config {
	c := &Config{}
	if env != nil {
		c.applyEnvironment(env)
	}
	c.AnchorFile = anchorFile
	c.ConfigurationPath = configurationPath
	c.setDefaults()
	return c
}

// applyEnvironment overrides the deployment specific values that are commonly set per host
func (c *Config) applyEnvironment(v *viper.Viper) {
	overrides := []struct {
		key    string
		target *string
	}{
		{"anchor_file", &c.AnchorFile},
		{"configuration_path", &c.ConfigurationPath},
		{"instance_identifier", &c.InstanceIdentifier},
		{"allowed_federations", &c.AllowedFederations},
		{"admin.address", &c.Admin.Address},
		{"status_file", &c.StatusFile},
	}
	for _, o := range overrides {
		if s := v.GetString(o.key); s != "" {
			*o.target = s
		}
	}
}

func (c *Config) setDefaults() {
	if c.Download.VersionMode == "" {
		c.Download.VersionMode = version.ModeRange
	}
	if c.Download.MinVersion == 0 {
		c.Download.MinVersion = version.DefaultMinVersion
	}
	if c.Download.MaxVersion == 0 {
		c.Download.MaxVersion = version.DefaultMaxVersion
	}
	if c.Download.PartnerConcurrency == 0 {
		c.Download.PartnerConcurrency = 1
	}
	if c.Admin.Address == "" {
		c.Admin.Address = DefaultAdminAddress
	}
	if c.StatusFile == "" && c.ConfigurationPath != "" {
		c.StatusFile = filepath.Join(c.ConfigurationPath, DefaultStatusFileName)
	}
}

// Validate performs validation on the configuration and returns all problems found
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.AnchorFile == "" {
		errs = append(errs, fmt.Errorf("anchorFile is required"))
	}
	if c.ConfigurationPath == "" {
		errs = append(errs, fmt.Errorf("configurationPath is required"))
	}

	errs = append(errs, c.Download.validate()...)
	errs = append(errs, c.Schedule.validate()...)

	if _, _, err := net.SplitHostPort(c.Admin.Address); c.Admin.Address != "" && err != nil {
		errs = append(errs, fmt.Errorf("admin.address must be host:port: %w", err))
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (d *DownloadConfig) validate() []error {
	var errs []error

	if err := validateDuration(d.ReadTimeout); err != nil {
		errs = append(errs, fmt.Errorf("download.readTimeout %w", err))
	}

	switch d.VersionMode {
	case version.ModeFixed:
		if d.FixedVersion <= 0 {
			errs = append(errs, fmt.Errorf("download.fixedVersion is required when versionMode is %q", version.ModeFixed))
		}
	case version.ModeRange, "":
		if d.MinVersion > d.MaxVersion {
			errs = append(errs, fmt.Errorf("download.minVersion %d is greater than download.maxVersion %d",
				d.MinVersion, d.MaxVersion))
		}
	default:
		errs = append(errs, fmt.Errorf("download.versionMode must be %q or %q, got %q",
			version.ModeFixed, version.ModeRange, d.VersionMode))
	}

	if d.PartnerConcurrency < 0 {
		errs = append(errs, fmt.Errorf("download.partnerConcurrency must not be negative"))
	}

	return errs
}

func (s *ScheduleConfig) validate() []error {
	var errs []error
	if err := validateDuration(s.Interval); err != nil {
		errs = append(errs, fmt.Errorf("schedule.interval %w", err))
	}
	if err := validateDuration(s.MaxBackoff); err != nil {
		errs = append(errs, fmt.Errorf("schedule.maxBackoff %w", err))
	}
	return errs
}

// validateDuration accepts an empty value or a positive duration
func validateDuration(value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a valid duration (e.g., '30s', '5m'): %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", value)
	}
	return nil
}

// GetReadTimeout returns the download read timeout
func (d *DownloadConfig) GetReadTimeout() time.Duration {
	return parseDurationOr(d.ReadTimeout, httpclient.DefaultTimeout)
}

// GetInterval returns the time between two successful runs
func (s *ScheduleConfig) GetInterval() time.Duration {
	return parseDurationOr(s.Interval, DefaultInterval)
}

// GetMaxBackoff returns the retry delay bound after failed runs. Zero lets the coordinator
// default it to the interval.
func (s *ScheduleConfig) GetMaxBackoff() time.Duration {
	return parseDurationOr(s.MaxBackoff, 0)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
