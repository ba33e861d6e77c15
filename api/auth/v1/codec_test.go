package authv1

import (
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	if c == nil {
		t.Fatal("json codec not registered")
	}
	b, err := c.Marshal(&LoginRequest{Email: "jane@example.com", Password: "Secret1!"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got LoginRequest
	if err := c.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Email != "jane@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if err := c.Unmarshal(nil, &RefreshRequest{}); err != nil {
		t.Errorf("empty payload: %v", err)
	}
	if err := c.Unmarshal([]byte("{"), &got); err == nil {
		t.Error("malformed payload should fail")
	}
}

func TestServiceDesc(t *testing.T) {
	if ServiceDesc.ServiceName != "happyday.auth.v1.AuthService" {
		t.Errorf("ServiceName = %q", ServiceDesc.ServiceName)
	}
	if len(ServiceDesc.Methods) != 6 {
		t.Errorf("want 6 methods, got %d", len(ServiceDesc.Methods))
	}
	for _, m := range []string{MethodRefresh, MethodMe} {
		if PublicMethods[m] {
			t.Errorf("%s must not be public", m)
		}
	}
}
