package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		p, err := NewProviders(ctx, endpoint, "test-service", false)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if p.TracerProvider == nil || p.MeterProvider == nil || p.LoggerProvider == nil || p.Shutdown == nil {
			t.Fatalf("NewProviders(%q) returned incomplete providers", endpoint)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := NewProviders(context.Background(), endpoint, "test-service", false); err == nil {
			t.Errorf("NewProviders(%q) should fail", endpoint)
		}
	}
}

func TestExporterTarget(t *testing.T) {
	tests := []struct {
		endpoint  string
		target    string
		plaintext bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://collector:4317/v1/traces", "collector:4317", true},
		{"https://collector:4317", "collector:4317", false},
	}
	for _, tt := range tests {
		target, plaintext, err := exporterTarget(tt.endpoint)
		if err != nil {
			t.Fatalf("exporterTarget(%q): %v", tt.endpoint, err)
		}
		if target != tt.target || plaintext != tt.plaintext {
			t.Errorf("exporterTarget(%q) = %q, %v; want %q, %v", tt.endpoint, target, plaintext, tt.target, tt.plaintext)
		}
	}
}

func TestSetGlobal(t *testing.T) {
	p, err := NewProviders(context.Background(), "", "test-service", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	p.SetGlobal()
	if otel.GetTracerProvider() != p.TracerProvider {
		t.Error("global TracerProvider not set")
	}
	if otel.GetMeterProvider() != p.MeterProvider {
		t.Error("global MeterProvider not set")
	}
}
