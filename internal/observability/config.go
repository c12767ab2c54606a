// Package observability wires OpenTelemetry traces and metrics around the
// OAuth flow. Disabled by default; enabled via the exporter setting.
package observability

// Config holds OpenTelemetry configuration.
type Config struct {
	// Exporter type: "none", "stdout", or "otlp"
	Exporter string

	// OTLP collector endpoint (for the otlp exporter)
	Endpoint string

	// Service name reported with telemetry
	ServiceName string

	// Trace sampling rate (0.0 to 1.0)
	SampleRate float64

	MetricsEnabled bool
	TracesEnabled  bool
}

// NewConfig returns default configuration.
func NewConfig() *Config {
	return &Config{
		Exporter:       "none",
		Endpoint:       "localhost:4317",
		ServiceName:    "plexgate",
		SampleRate:     0.1,
		MetricsEnabled: false,
		TracesEnabled:  false,
	}
}

// ShouldEnable returns true if OTel should be initialized.
func (c *Config) ShouldEnable() bool {
	return c.Exporter != "none"
}
