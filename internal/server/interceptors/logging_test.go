package interceptors

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var m map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &m); err != nil {
		t.Fatalf("decode log line %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestLoggingUnary(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantMsg   string
		wantLevel string
		wantCode  string
	}{
		{"ok", nil, "grpc.request", "INFO", "OK"},
		{"client error", status.Error(codes.Unauthenticated, "invalid credentials"), "grpc.request.fail", "WARN", "Unauthenticated"},
		{"server error", status.Error(codes.Unavailable, "down"), "grpc.request.fail", "ERROR", "Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := captureLogger()
			interceptor := LoggingUnary(log, nil)
			_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/M"},
				func(context.Context, any) (any, error) { return nil, tt.err })
			if err != tt.err {
				t.Fatalf("error not passed through: %v", err)
			}
			line := lastLine(t, buf)
			if line["msg"] != tt.wantMsg || line["level"] != tt.wantLevel || line["code"] != tt.wantCode {
				t.Errorf("log line = %v", line)
			}
			if line["method"] != "/test.Service/M" {
				t.Errorf("method = %v", line["method"])
			}
		})
	}
}

func TestLoggingUnary_SkipMethod(t *testing.T) {
	log, buf := captureLogger()
	interceptor := LoggingUnary(log, map[string]bool{"/grpc.health.v1.Health/Check": true})
	resp, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(context.Context, any) (any, error) { return "ok", nil })
	if err != nil || resp != "ok" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	if buf.Len() != 0 {
		t.Errorf("skipped method was logged: %s", buf)
	}
}

func TestClientIP(t *testing.T) {
	md := func(kv map[string]string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.New(kv))
	}
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"x-forwarded-for", md(map[string]string{"x-forwarded-for": "192.168.1.1"}), "192.168.1.1"},
		{"x-forwarded-for list", md(map[string]string{"x-forwarded-for": "192.168.1.1, 10.0.0.1"}), "192.168.1.1"},
		{"x-real-ip", md(map[string]string{"x-real-ip": "192.168.1.2"}), "192.168.1.2"},
		{"precedence", md(map[string]string{"x-forwarded-for": "192.168.1.1", "x-real-ip": "192.168.1.2"}), "192.168.1.1"},
		{"whitespace", md(map[string]string{"x-forwarded-for": "  192.168.1.1  "}), "192.168.1.1"},
		{"peer", peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.168.1.3"), Port: 12345}}), "192.168.1.3"},
		{"unknown", context.Background(), "unknown"},
	}
	for _, tt := range tests {
		if got := ClientIP(tt.ctx); got != tt.want {
			t.Errorf("%s: want %q, got %q", tt.name, tt.want, got)
		}
	}
}
