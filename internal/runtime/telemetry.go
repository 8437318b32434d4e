package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/mohammad-safakhou/lumina/config"
)

// Telemetry owns the tracer and meter providers plus the optional
// standalone metrics listener.
type Telemetry struct {
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	metrics *http.Server
}

// TelemetryOptions configures telemetry initialization.
type TelemetryOptions struct {
	ServiceName    string
	ServiceVersion string
	MetricsPort    int
}

func (o TelemetryOptions) withDefaults(cfg config.TelemetryConfig) TelemetryOptions {
	if o.ServiceName == "" {
		o.ServiceName = cfg.ServiceName
	}
	if o.ServiceName == "" {
		o.ServiceName = "lumina"
	}
	if o.ServiceVersion == "" {
		o.ServiceVersion = "dev"
	}
	if o.MetricsPort == 0 {
		o.MetricsPort = cfg.MetricsPort
	}
	return o
}

// SetupTelemetry initializes tracing and metrics. Otel metrics are always
// exported into registry; spans and metrics are pushed over OTLP/gRPC only
// when an endpoint is configured. A positive metrics port serves registry on
// its own listener in addition to the API's /metrics route.
func SetupTelemetry(ctx context.Context, cfg config.TelemetryConfig, opts TelemetryOptions, registry *prometheus.Registry) (*Telemetry, otelmetric.Meter, trace.Tracer, error) {
	opts = opts.withDefaults(cfg)
	if !cfg.Enabled {
		return &Telemetry{}, otel.Meter(opts.ServiceName), otel.Tracer(opts.ServiceName), nil
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			attribute.String("service.namespace", "lumina"),
			attribute.String("service.version", opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resource init: %w", err)
	}

	dial := otlptracegrpc.WithDialOption(grpc.WithUserAgent(opts.ServiceName + "/" + opts.ServiceVersion))
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
			dial,
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("otlp trace init: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tp)

	promExporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("prom exporter: %w", err)
	}
	meterOpts := []sdkmetric.Option{sdkmetric.WithReader(promExporter), sdkmetric.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithDialOption(grpc.WithUserAgent(opts.ServiceName+"/"+opts.ServiceVersion)),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("otlp metric init: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)
	otel.SetMeterProvider(mp)

	t := &Telemetry{tp: tp, mp: mp}
	if opts.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		t.metrics = &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := t.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	return t, mp.Meter(opts.ServiceName), tp.Tracer(opts.ServiceName), nil
}

// Shutdown stops the metrics listener and flushes both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.metrics != nil {
		errs = append(errs, t.metrics.Shutdown(ctx))
	}
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
