package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"happyday/backend/internal/telemetry"
)

type recordCapture struct {
	rec otellog.Record
	n   int
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.rec = rec
	r.n++
}

func TestNewEventEmitter_NilProviderIsNoop(t *testing.T) {
	em, err := NewEventEmitter(nil, nil)
	if err != nil {
		t.Fatalf("NewEventEmitter: %v", err)
	}
	if err := em.Emit(context.Background(), telemetry.AuthEvent{Action: telemetry.ActionLogin}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestNewEventEmitter_WithProviders(t *testing.T) {
	lp := sdklog.NewLoggerProvider()
	defer func() { _ = lp.Shutdown(context.Background()) }()
	em, err := NewEventEmitter(lp, metric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewEventEmitter: %v", err)
	}
	if err := em.Emit(context.Background(), telemetry.AuthEvent{Action: telemetry.ActionRegister, Success: true}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestEmit_RecordMapping(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture, nil)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err := em.Emit(context.Background(), telemetry.AuthEvent{
		Action:           telemetry.ActionLogin,
		UserID:           "u1",
		Reason:           "secret_mismatch",
		Strategy:         "local",
		TokenFingerprint: "abcd",
		At:               at,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if capture.n != 1 {
		t.Fatalf("want 1 record, got %d", capture.n)
	}
	rec := capture.rec
	if !rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v", rec.Timestamp())
	}
	if rec.EventName() != "auth.login" || rec.Body().AsString() != "auth.login.failure" {
		t.Errorf("event %q body %q", rec.EventName(), rec.Body().AsString())
	}
	if rec.Severity() != otellog.SeverityWarn {
		t.Errorf("failure severity = %v", rec.Severity())
	}
	got := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		got[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"action":            "login",
		"outcome":           "failure",
		"user_id":           "u1",
		"reason":            "secret_mismatch",
		"strategy":          "local",
		"token_fingerprint": "abcd",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestEmit_CountsEvents(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	counter, err := mp.Meter("test").Int64Counter("auth.events")
	if err != nil {
		t.Fatalf("Int64Counter: %v", err)
	}
	em := NewEventEmitterWithLogger(&recordCapture{}, counter)
	for range 3 {
		_ = em.Emit(context.Background(), telemetry.AuthEvent{Action: telemetry.ActionVerify, Success: true})
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == "auth.events" {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	if total != 3 {
		t.Errorf("auth.events = %d, want 3", total)
	}
}
