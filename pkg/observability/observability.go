// Package observability wires OpenTelemetry metrics and traces around the
// receipt pipeline: signing and verification rates, verification failures,
// and policy-evaluation outcomes, exported over OTLP gRPC.
package observability

import (
	"context"
	"fmt"
	"log/slog"
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
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
	"github.com/sonate-labs/sonate/core/pkg/crypto"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // gRPC, e.g. "localhost:4317"
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "sonate-core",
		ServiceVersion: contracts.ReceiptVersion,
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       false,
	}
}

// Provider owns the trace and metric providers plus the pipeline instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	receiptsSigned   metric.Int64Counter
	receiptsVerified metric.Int64Counter
	verifyFailures   metric.Int64Counter
	violations       metric.Int64Counter
	evalDuration     metric.Float64Histogram
}

// New creates the provider. With Enabled=false it becomes inert: all record
// methods are safe no-ops, which tests rely on.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
			attribute.String("sonate.component", "core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("sonate.core", trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter("sonate.core", metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error
	p.receiptsSigned, err = p.meter.Int64Counter("sonate.receipts.signed.total",
		metric.WithDescription("Receipts signed"),
		metric.WithUnit("{receipt}"),
	)
	if err != nil {
		return err
	}
	p.receiptsVerified, err = p.meter.Int64Counter("sonate.receipts.verified.total",
		metric.WithDescription("Receipts verified"),
		metric.WithUnit("{receipt}"),
	)
	if err != nil {
		return err
	}
	p.verifyFailures, err = p.meter.Int64Counter("sonate.receipts.verify_failures.total",
		metric.WithDescription("Receipts failing verification, by check"),
		metric.WithUnit("{receipt}"),
	)
	if err != nil {
		return err
	}
	p.violations, err = p.meter.Int64Counter("sonate.policy.violations.total",
		metric.WithDescription("Constraint violations, by type and severity"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return err
	}
	p.evalDuration, err = p.meter.Float64Histogram("sonate.policy.evaluate.duration",
		metric.WithDescription("Policy evaluation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	return err
}

// RecordSigned counts one signed receipt.
func (p *Provider) RecordSigned(ctx context.Context, keyVersion string) {
	if p.receiptsSigned == nil {
		return
	}
	p.receiptsSigned.Add(ctx, 1, metric.WithAttributes(attribute.String("key_version", keyVersion)))
}

// RecordVerification counts one verification and its failed checks.
func (p *Provider) RecordVerification(ctx context.Context, res *crypto.VerificationResult) {
	if p.receiptsVerified == nil || res == nil {
		return
	}
	p.receiptsVerified.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", res.Valid)))
	for name, check := range map[string]crypto.CheckResult{
		"structure": res.Structure,
		"signature": res.Signature,
		"chain":     res.Chain,
		"timestamp": res.Timestamp,
	} {
		if !check.Passed {
			p.verifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("check", name)))
		}
	}
}

// RecordEvaluation counts a policy evaluation's violations and duration.
func (p *Provider) RecordEvaluation(ctx context.Context, result *contracts.PolicyEnforcementResult, elapsed time.Duration) {
	if p.violations == nil || result == nil {
		return
	}
	for _, v := range result.Violations {
		p.violations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("violation_type", v.ViolationType),
			attribute.String("severity", string(v.Severity)),
		))
	}
	p.evalDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("status", string(result.Status)),
	))
}

// Tracer exposes the pipeline tracer (nil-safe when disabled).
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
