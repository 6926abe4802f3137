package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/globalconf-client/internal/telemetry"
	"github.com/stacklok/globalconf-client/internal/version"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "confclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		yamlContent   string
		env           map[string]string
		wantConfig    *Config
		errorContains []string
	}{
		{
			name: "full_config",
			yamlContent: `anchorFile: /etc/xroad/configuration-anchor.xml
configurationPath: /etc/xroad/globalconf
instanceIdentifier: EE
allowedFederations: FI, LV
download:
  readTimeout: 10s
  versionMode: fixed
  fixedVersion: 3
  partnerConcurrency: 4
schedule:
  interval: 2m
  maxBackoff: 10m
admin:
  address: 0.0.0.0:5665
telemetry:
  enabled: true
  exporter: prometheus
  metrics:
    enabled: true
statusFile: /var/lib/confclient/status.json`,
			wantConfig: &Config{
				AnchorFile:         "/etc/xroad/configuration-anchor.xml",
				ConfigurationPath:  "/etc/xroad/globalconf",
				InstanceIdentifier: "EE",
				AllowedFederations: "FI, LV",
				Download: DownloadConfig{
					ReadTimeout:        "10s",
					VersionMode:        version.ModeFixed,
					FixedVersion:       3,
					MinVersion:         version.DefaultMinVersion,
					MaxVersion:         version.DefaultMaxVersion,
					PartnerConcurrency: 4,
				},
				Schedule: ScheduleConfig{Interval: "2m", MaxBackoff: "10m"},
				Admin:    AdminConfig{Address: "0.0.0.0:5665"},
				Telemetry: &telemetry.Config{
					Enabled:  true,
					Exporter: telemetry.ExporterPrometheus,
					Metrics:  &telemetry.MetricsConfig{Enabled: true},
				},
				StatusFile: "/var/lib/confclient/status.json",
			},
		},
		{
			name: "minimal_config_gets_defaults",
			yamlContent: `anchorFile: /etc/xroad/configuration-anchor.xml
configurationPath: /etc/xroad/globalconf`,
			wantConfig: &Config{
				AnchorFile:        "/etc/xroad/configuration-anchor.xml",
				ConfigurationPath: "/etc/xroad/globalconf",
				Download: DownloadConfig{
					VersionMode:        version.ModeRange,
					MinVersion:         version.DefaultMinVersion,
					MaxVersion:         version.DefaultMaxVersion,
					PartnerConcurrency: 1,
				},
				Admin:      AdminConfig{Address: DefaultAdminAddress},
				StatusFile: filepath.Join("/etc/xroad/globalconf", DefaultStatusFileName),
			},
		},
		{
			name: "environment_overrides_file",
			yamlContent: `anchorFile: /etc/xroad/configuration-anchor.xml
configurationPath: /etc/xroad/globalconf
allowedFederations: none`,
			env: map[string]string{
				"allowed_federations": "all",
				"admin.address":       "127.0.0.1:9000",
				"configuration_path":  "/srv/globalconf",
			},
			wantConfig: &Config{
				AnchorFile:         "/etc/xroad/configuration-anchor.xml",
				ConfigurationPath:  "/srv/globalconf",
				AllowedFederations: "all",
				Download: DownloadConfig{
					VersionMode:        version.ModeRange,
					MinVersion:         version.DefaultMinVersion,
					MaxVersion:         version.DefaultMaxVersion,
					PartnerConcurrency: 1,
				},
				Admin:      AdminConfig{Address: "127.0.0.1:9000"},
				StatusFile: filepath.Join("/srv/globalconf", DefaultStatusFileName),
			},
		},
		{
			name:          "invalid_yaml",
			yamlContent:   "anchorFile: [unterminated",
			errorContains: []string{"failed to parse YAML config"},
		},
		{
			name:          "missing_required_fields",
			yamlContent:   "allowedFederations: all",
			errorContains: []string{"anchorFile is required", "configurationPath is required"},
		},
		{
			name: "invalid_values_are_all_reported",
			yamlContent: `anchorFile: a.xml
configurationPath: conf
download:
  readTimeout: soon
  versionMode: latest
schedule:
  interval: -1m
admin:
  address: nowhere`,
			errorContains: []string{
				"download.readTimeout must be a valid duration",
				`download.versionMode must be "fixed" or "range", got "latest"`,
				"schedule.interval must be positive",
				"admin.address must be host:port",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := viper.New()
			for k, v := range tt.env {
				env.Set(k, v)
			}

			cfg, err := LoadConfig(WithConfigPath(writeConfig(t, tt.yamlContent)), WithEnvironment(env))
			if len(tt.errorContains) > 0 {
				require.Error(t, err)
				for _, s := range tt.errorContains {
					assert.Contains(t, err.Error(), s)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, cfg)
		})
	}
}

func TestLoadConfig_PathErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "path is required")

	_, err = LoadConfig(WithConfigPath(""))
	assert.ErrorContains(t, err, "path is required")

	_, err = LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorContains(t, err, "failed to evaluate symlinks")
}

func TestWithConfigPath_ResolvesSymlinks(t *testing.T) {
	t.Parallel()

	target := writeConfig(t, "anchorFile: a.xml\nconfigurationPath: conf\n")
	link := filepath.Join(t.TempDir(), "link.yaml")
	require.NoError(t, os.Symlink(target, link))

	cfg, err := LoadConfig(WithConfigPath(link), WithEnvironment(viper.New()))
	require.NoError(t, err)
	assert.Equal(t, "a.xml", cfg.AnchorFile)
}

func TestValidate_Download(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		download      DownloadConfig
		errorContains string
	}{
		{
			name:     "range mode",
			download: DownloadConfig{VersionMode: version.ModeRange, MinVersion: 2, MaxVersion: 4},
		},
		{
			name:          "inverted range",
			download:      DownloadConfig{VersionMode: version.ModeRange, MinVersion: 5, MaxVersion: 4},
			errorContains: "download.minVersion 5 is greater than download.maxVersion 4",
		},
		{
			name:          "fixed mode without version",
			download:      DownloadConfig{VersionMode: version.ModeFixed},
			errorContains: "download.fixedVersion is required",
		},
		{
			name:          "negative concurrency",
			download:      DownloadConfig{PartnerConcurrency: -1},
			errorContains: "download.partnerConcurrency must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{AnchorFile: "a.xml", ConfigurationPath: "conf", Download: tt.download}
			err := cfg.Validate()
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errorContains)
		})
	}
}

func TestDurations(t *testing.T) {
	t.Parallel()

	var empty Config
	assert.Equal(t, 30*time.Second, empty.Download.GetReadTimeout())
	assert.Equal(t, DefaultInterval, empty.Schedule.GetInterval())
	assert.Zero(t, empty.Schedule.GetMaxBackoff())

	cfg := Config{
		Download: DownloadConfig{ReadTimeout: "5s"},
		Schedule: ScheduleConfig{Interval: "90s", MaxBackoff: "15m"},
	}
	assert.Equal(t, 5*time.Second, cfg.Download.GetReadTimeout())
	assert.Equal(t, 90*time.Second, cfg.Schedule.GetInterval())
	assert.Equal(t, 15*time.Minute, cfg.Schedule.GetMaxBackoff())
}

func TestValidate_Nil(t *testing.T) {
	t.Parallel()

	var cfg *Config
	assert.EqualError(t, cfg.Validate(), "config cannot be nil")
}

func TestNew(t *testing.T) {
	t.Parallel()

	env := viper.New()
	env.Set("allowed_federations", "all")
	env.Set("anchor_file", "/ignored.xml")

	cfg := New("/etc/xroad/configuration-anchor.xml", "/etc/xroad/globalconf", env)
	assert.Equal(t, "/etc/xroad/configuration-anchor.xml", cfg.AnchorFile)
	assert.Equal(t, "/etc/xroad/globalconf", cfg.ConfigurationPath)
	assert.Equal(t, "all", cfg.AllowedFederations)
	assert.Equal(t, version.ModeRange, cfg.Download.VersionMode)
	assert.Equal(t, filepath.Join("/etc/xroad/globalconf", DefaultStatusFileName), cfg.StatusFile)
	assert.NoError(t, cfg.Validate())

	bare := New("a.xml", "conf", nil)
	assert.Empty(t, bare.AllowedFederations)
	assert.Equal(t, DefaultAdminAddress, bare.Admin.Address)
}
