package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/globalconf-client/internal/versions"
)

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, DefaultServiceName, cfg.GetServiceName())
	assert.Equal(t, versions.GetVersionInfo().Version, cfg.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, cfg.GetEndpoint())
	assert.Equal(t, ExporterOTLP, cfg.GetExporter())
	assert.Equal(t, DefaultSampling, (&TracingConfig{}).GetSampling())

	cfg = &Config{
		ServiceName:    "ss1-confclient",
		ServiceVersion: "1.2.3",
		Endpoint:       "collector:4318",
		Exporter:       ExporterPrometheus,
	}
	assert.Equal(t, "ss1-confclient", cfg.GetServiceName())
	assert.Equal(t, "1.2.3", cfg.GetServiceVersion())
	assert.Equal(t, "collector:4318", cfg.GetEndpoint())
	assert.Equal(t, ExporterPrometheus, cfg.GetExporter())
	assert.Equal(t, 0.25, (&TracingConfig{Sampling: 0.25}).GetSampling())
}

func TestConfig_MetricsEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config *Config
		want   bool
	}{
		{name: "nil config", config: nil, want: false},
		{name: "telemetry disabled", config: &Config{Metrics: &MetricsConfig{Enabled: true}}, want: false},
		{name: "metrics section missing", config: &Config{Enabled: true}, want: false},
		{name: "metrics disabled", config: &Config{Enabled: true, Metrics: &MetricsConfig{}}, want: false},
		{name: "metrics enabled", config: &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.config.MetricsEnabled())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		config        *Config
		errorContains []string
	}{
		{
			name:   "nil config is valid",
			config: nil,
		},
		{
			name:   "disabled config skips validation",
			config: &Config{Exporter: "statsd", Tracing: &TracingConfig{Enabled: true, Sampling: 3}},
		},
		{
			name: "valid prometheus config",
			config: &Config{
				Enabled:  true,
				Exporter: ExporterPrometheus,
				Metrics:  &MetricsConfig{Enabled: true},
				Tracing:  &TracingConfig{Enabled: true, Sampling: 0.5},
			},
		},
		{
			name:          "unknown exporter",
			config:        &Config{Enabled: true, Exporter: "statsd"},
			errorContains: []string{`exporter must be "otlp" or "prometheus", got "statsd"`},
		},
		{
			name:          "sampling out of range",
			config:        &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1.5}},
			errorContains: []string{"tracing: sampling must be between 0.0 and 1.0"},
		},
		{
			name:   "sampling of disabled tracing is ignored",
			config: &Config{Enabled: true, Tracing: &TracingConfig{Sampling: -1}},
		},
		{
			name: "errors are aggregated",
			config: &Config{
				Enabled:  true,
				Exporter: "statsd",
				Tracing:  &TracingConfig{Enabled: true, Sampling: -0.1},
			},
			errorContains: []string{"exporter must be", "tracing: sampling"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if len(tt.errorContains) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			for _, s := range tt.errorContains {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}
