// Package telemetry provides OpenTelemetry setup and the planner's metric
// instruments. Sampling and export cadence are tuned for the planner's
// traffic shape: plan requests are rare and long-running, so every plan is
// traced by default and metrics flush on a slow cadence.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// serviceName identifies the planner in every exported trace and metric.
const serviceName = "fieldroute-planner"

// metricInterval is the export cadence. A plan takes seconds to minutes;
// flushing faster than this just repeats unchanged counters.
const metricInterval = 30 * time.Second

// Config holds configuration for telemetry setup.
type Config struct {
	// Version is the build version stamped on the service resource.
	Version string

	// Environment is the deployment environment (development, production).
	Environment string

	// OTLPEndpoint is the collector address for traces and metrics.
	OTLPEndpoint string

	// Enabled turns exporting on. When false, Init returns a noop-backed
	// provider whose instruments are still safe to record against.
	Enabled bool

	// SampleRatio is the fraction of plan traces to keep, in (0, 1].
	// Zero means sample everything: plans are infrequent enough that
	// dropping traces only loses information.
	SampleRatio float64
}

// Provider holds the initialized telemetry providers and the planner's
// ready-to-use instruments.
type Provider struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Instruments    *Instruments
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Init initializes OpenTelemetry for the planner. When disabled, the
// returned provider is backed by the global noop tracer and meter so
// callers never branch on telemetry being on.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		meter := otel.Meter(serviceName)
		instruments, err := NewInstruments(meter)
		if err != nil {
			return nil, err
		}
		return &Provider{
			Tracer:      otel.Tracer(serviceName),
			Meter:       meter,
			Instruments: instruments,
		}, nil
	}

	res, err := plannerResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(planSampler(cfg.SampleRatio)),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx) //nolint:errcheck // best effort cleanup
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(metricInterval),
		)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	meter := meterProvider.Meter(serviceName)
	instruments, err := NewInstruments(meter)
	if err != nil {
		shutdownCtx := context.WithoutCancel(ctx)
		_ = tracerProvider.Shutdown(shutdownCtx) //nolint:errcheck // best effort cleanup
		_ = meterProvider.Shutdown(shutdownCtx)  //nolint:errcheck // best effort cleanup
		return nil, err
	}

	return &Provider{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		Tracer:         tracerProvider.Tracer(serviceName),
		Meter:          meter,
		Instruments:    instruments,
	}, nil
}

// plannerResource describes this planner instance, including the solver
// pairing, so dashboards can split fast-mode and full-mode fleets.
func plannerResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
			attribute.String("planner.fast_solver", "greedy-savings"),
			attribute.String("planner.full_solver", "alns"),
		),
	)
}

// planSampler keeps every plan trace unless a ratio is configured. Child
// spans always follow their parent's decision so a sampled plan is traced
// end to end.
func planSampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
