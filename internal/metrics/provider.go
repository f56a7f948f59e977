package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Exporter selects where metrics are sent.
type Exporter string

const (
	ExporterNone       Exporter = "none"
	ExporterStdout     Exporter = "stdout"
	ExporterPrometheus Exporter = "prometheus"

	serviceName     = "paycopilot"
	defaultInterval = time.Minute
)

// Provider owns the SDK meter provider and the recorder built on it.
type Provider struct {
	provider *sdkmetric.MeterProvider
	recorder *Recorder
	handler  http.Handler
}

type providerConfig struct {
	writer   io.Writer
	interval time.Duration
	version  string
	readers  []sdkmetric.Reader
}

// ProviderOption configures NewProvider.
type ProviderOption func(*providerConfig)

// WithWriter sets the destination of the stdout exporter.
func WithWriter(w io.Writer) ProviderOption {
	return func(c *providerConfig) { c.writer = w }
}

// WithInterval sets how often the stdout exporter flushes.
func WithInterval(d time.Duration) ProviderOption {
	return func(c *providerConfig) { c.interval = d }
}

// WithServiceVersion tags every series with the build version.
func WithServiceVersion(v string) ProviderOption {
	return func(c *providerConfig) { c.version = v }
}

// WithReader attaches an extra reader, such as a manual reader in tests.
func WithReader(r sdkmetric.Reader) ProviderOption {
	return func(c *providerConfig) { c.readers = append(c.readers, r) }
}

// NewProvider builds a meter provider for the exporter. With ExporterNone
// and no extra readers the recorder is backed by a no-op meter.
func NewProvider(exporter Exporter, opts ...ProviderOption) (*Provider, error) {
	c := &providerConfig{writer: os.Stderr, interval: defaultInterval}
	for _, opt := range opts {
		opt(c)
	}

	p := &Provider{}
	readers := c.readers

	switch exporter {
	case ExporterNone, "":
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(c.writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		interval := c.interval
		if interval <= 0 {
			interval = defaultInterval
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)))
	case ExporterPrometheus:
		registry := prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		readers = append(readers, exp)
		p.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	default:
		return nil, fmt.Errorf("unsupported metrics exporter %q", exporter)
	}

	if len(readers) == 0 {
		p.recorder = New(noop.NewMeterProvider().Meter(meterName))
		return p, nil
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", serviceName)}
	if c.version != "" {
		attrs = append(attrs, attribute.String("service.version", c.version))
	}
	mopts := []sdkmetric.Option{sdkmetric.WithResource(resource.NewSchemaless(attrs...))}
	for _, r := range readers {
		mopts = append(mopts, sdkmetric.WithReader(r))
	}
	p.provider = sdkmetric.NewMeterProvider(mopts...)
	p.recorder = New(p.provider.Meter(meterName))
	return p, nil
}

// Recorder returns the instruments bound to this provider.
func (p *Provider) Recorder() *Recorder {
	return p.recorder
}

// Handler serves the Prometheus scrape endpoint. It is nil for other exporters.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Install makes this provider the global otel meter provider.
func (p *Provider) Install() {
	if p.provider != nil {
		otel.SetMeterProvider(p.provider)
	}
}

// Shutdown flushes pending measurements and stops the readers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
