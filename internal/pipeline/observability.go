package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Observability struct {
	Tracer oteltrace.Tracer
	Meter  metric.Meter

	traceProvider *sdktrace.TracerProvider

	RunCounter       metric.Int64Counter
	ScenarioDuration metric.Int64Histogram
	UploadCounter    metric.Int64Counter
}

func SetupObservability(ctx context.Context, cfg ObservabilityConfig) (*Observability, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentbeats-submit"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if cfg.OTLPEndpoint != "" {
		exporter, exportErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exportErr != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", exportErr)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		slog.Info("otel trace exporter not configured; using local tracer provider")
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	meter := otel.Meter(serviceName)
	tracer := otel.Tracer(serviceName)
	runCounter, _ := meter.Int64Counter("submission_run_total")
	scenarioDuration, _ := meter.Int64Histogram("submission_scenario_duration_ms")
	uploadCounter, _ := meter.Int64Counter("submission_upload_total")
	return &Observability{
		Tracer:           tracer,
		Meter:            meter,
		traceProvider:    tp,
		RunCounter:       runCounter,
		ScenarioDuration: scenarioDuration,
		UploadCounter:    uploadCounter,
	}, nil
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.traceProvider == nil {
		return nil
	}
	return o.traceProvider.Shutdown(ctx)
}

func (o *Observability) MarkRun(ctx context.Context, stage Stage, status UploadStatus) {
	if o == nil {
		return
	}
	o.RunCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("upload_status", string(status)),
	))
}

func (o *Observability) MarkScenario(ctx context.Context, name string, status string, durationMS int64) {
	if o == nil {
		return
	}
	o.ScenarioDuration.Record(ctx, durationMS, metric.WithAttributes(
		attribute.String("scenario", name),
		attribute.String("status", status),
	))
}

func (o *Observability) MarkUpload(ctx context.Context, status UploadStatus) {
	if o == nil {
		return
	}
	o.UploadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
}
