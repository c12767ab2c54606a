package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// shutdownTimeout is the maximum time to wait for exporter shutdown.
const shutdownTimeout = 5 * time.Second

// Telemetry holds OTel providers and the flow metric instruments.
type Telemetry struct {
	config         *Config
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metrics        *Metrics
	meterReader    any
	shutdownFunc   func(context.Context) error
	shutdownOnce   sync.Once
}

// Init initializes OpenTelemetry with the given configuration. Returns the
// telemetry manager and a cleanup function for defer.
func Init(ctx context.Context, cfg *Config) (*Telemetry, func(), error) {
	if !cfg.ShouldEnable() {
		return &Telemetry{config: cfg}, func() {}, nil
	}

	tel := &Telemetry{config: cfg}

	if cfg.TracesEnabled {
		tp, err := initTracerProvider(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		tel.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEnabled {
		mp, reader, err := initMeterProvider(ctx, cfg)
		if err != nil {
			tel.shutdownProviders(ctx)
			return nil, nil, err
		}
		tel.meterProvider = mp
		tel.meterReader = reader
		otel.SetMeterProvider(mp)

		metrics, err := InitMetrics(mp)
		if err != nil {
			tel.shutdownProviders(ctx)
			return nil, nil, err
		}
		tel.metrics = metrics
	}

	tel.shutdownFunc = func(ctx context.Context) error {
		return tel.shutdownProviders(ctx)
	}
	return tel, tel.Cleanup, nil
}

func (t *Telemetry) shutdownProviders(ctx context.Context) error {
	var first error
	if tp, ok := t.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		if err := tp.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	// Flush pending metrics before the provider goes away.
	if pr, ok := t.meterReader.(interface{ ForceFlush(context.Context) error }); ok {
		if err := pr.ForceFlush(ctx); err != nil && first == nil {
			first = err
		}
	}
	if mp, ok := t.meterProvider.(interface{ Shutdown(context.Context) error }); ok {
		if err := mp.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// TracerProvider returns the tracer provider (noop if disabled).
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t.tracerProvider != nil {
		return t.tracerProvider
	}
	return trace.NewNoopTracerProvider()
}

// MeterProvider returns the meter provider (global default if disabled).
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t.meterProvider != nil {
		return t.meterProvider
	}
	return otel.GetMeterProvider()
}

// Metrics returns the metric instruments, or nil if metrics are disabled.
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// Shutdown flushes and closes all providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var err error
	t.shutdownOnce.Do(func() {
		if t.shutdownFunc != nil {
			err = t.shutdownFunc(ctx)
		}
	})
	return err
}

// Cleanup is a convenience function for defer cleanup.
func (t *Telemetry) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = t.Shutdown(ctx)
}

// Config returns the telemetry configuration.
func (t *Telemetry) Config() *Config {
	return t.config
}
