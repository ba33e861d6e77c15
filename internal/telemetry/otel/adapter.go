package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"happyday/backend/internal/telemetry"
)

const instrumentationName = "happyday.auth"

// recordEmitter is the part of otellog.Logger the emitter uses.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that writes auth events as OTel log records
// through provider and counts them on the auth.events counter of meterProvider.
// A nil provider yields a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider, meterProvider metric.MeterProvider) (telemetry.EventEmitter, error) {
	if provider == nil {
		return telemetry.Nop{}, nil
	}
	var counter metric.Int64Counter
	if meterProvider != nil {
		c, err := meterProvider.Meter(instrumentationName).Int64Counter(
			"auth.events",
			metric.WithDescription("Authentication outcomes by action and result."),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, err
		}
		counter = c
	}
	return NewEventEmitterWithLogger(provider.Logger(instrumentationName), counter), nil
}

// NewEventEmitterWithLogger builds an emitter on an arbitrary record sink. counter may be nil.
func NewEventEmitterWithLogger(logger recordEmitter, counter metric.Int64Counter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger, counter: counter}
}

type otelEmitter struct {
	logger  recordEmitter
	counter metric.Int64Counter
}

// Emit converts event into a log record and bumps the counter.
func (e *otelEmitter) Emit(ctx context.Context, event telemetry.AuthEvent) error {
	rec := otellog.Record{}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	rec.SetTimestamp(at)
	rec.SetEventName("auth." + event.Action)
	rec.SetBody(otellog.StringValue("auth." + event.Action + "." + event.Outcome()))
	if event.Success {
		rec.SetSeverity(otellog.SeverityInfo)
	} else {
		rec.SetSeverity(otellog.SeverityWarn)
	}
	rec.AddAttributes(
		otellog.String("action", event.Action),
		otellog.String("outcome", event.Outcome()),
	)
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.Reason != "" {
		rec.AddAttributes(otellog.String("reason", event.Reason))
	}
	if event.Strategy != "" {
		rec.AddAttributes(otellog.String("strategy", event.Strategy))
	}
	if event.TokenFingerprint != "" {
		rec.AddAttributes(otellog.String("token_fingerprint", event.TokenFingerprint))
	}
	e.logger.Emit(ctx, rec)

	if e.counter != nil {
		attrs := []attribute.KeyValue{
			attribute.String("action", event.Action),
			attribute.String("outcome", event.Outcome()),
		}
		if event.Reason != "" {
			attrs = append(attrs, attribute.String("reason", event.Reason))
		}
		e.counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	return nil
}
