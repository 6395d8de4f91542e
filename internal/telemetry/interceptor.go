package telemetry

import (
	"context"
	"log/slog"
	"time"

	"LlamaChat/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// NewInterceptor records a span, a counter increment and a duration sample
// for every session and registry operation.
func NewInterceptor(tracer trace.Tracer, meter metric.Meter, logger *slog.Logger) (session.Interceptor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	calls, err := meter.Int64Counter(
		"llamachat.operations",
		metric.WithDescription("Session and registry operations by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"llamachat.operation.duration",
		metric.WithDescription("Operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, call session.Call, next func(context.Context) error) error {
		ctx, span := tracer.Start(ctx, call.Op, trace.WithAttributes(
			attribute.String("session.label", call.Label),
		))
		defer span.End()

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("operation failed", "op", call.Op, "label", call.Label, "error", err)
		}

		attrs := metric.WithAttributes(
			attribute.String("op", call.Op),
			attribute.String("outcome", outcome),
		)
		calls.Add(ctx, 1, attrs)
		duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)

		return err
	}, nil
}
