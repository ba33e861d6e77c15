package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestHasher_HashAndVerify(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(4, 2)
	hash, err := h.Hash(ctx, Raw("Str0ng!Pass"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "Str0ng!Pass" {
		t.Fatalf("Hash returned %q", hash)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash is not bcrypt output: %q", hash)
	}
	if !h.Verify(ctx, "Str0ng!Pass", hash) {
		t.Error("Verify with correct password should succeed")
	}
	if h.Verify(ctx, "wrong", hash) {
		t.Error("Verify with wrong password should fail")
	}
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(4, 0)
	a, _ := h.Hash(ctx, Raw("Str0ng!Pass"))
	b, _ := h.Hash(ctx, Raw("Str0ng!Pass"))
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestHasher_HashedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(4, 0)
	digest, err := h.Hash(ctx, Raw("Str0ng!Pass"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	again, err := h.Hash(ctx, Hashed(digest))
	if err != nil {
		t.Fatalf("Hash(Hashed): %v", err)
	}
	if again != digest {
		t.Errorf("Hash(Hashed(d)) want %q, got %q", digest, again)
	}
	if _, err := h.Hash(ctx, Hashed("plaintext")); !errors.Is(err, ErrMalformedHash) {
		t.Errorf("Hashed non-bcrypt want ErrMalformedHash, got %v", err)
	}
}

func TestHasher_RawThatLooksHashedIsStillHashed(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(4, 0)
	digest, _ := h.Hash(ctx, Raw("Str0ng!Pass"))
	// A user whose password happens to look like a digest still gets hashed.
	stored, err := h.Hash(ctx, Raw(digest))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if stored == digest {
		t.Error("raw secret was stored unhashed")
	}
	if !h.Verify(ctx, digest, stored) {
		t.Error("Verify should match the raw digest-shaped password")
	}
}

func TestHasher_VerifyNeverErrors(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(4, 0)
	tests := []struct {
		name, password, hash string
	}{
		{"empty hash", "Str0ng!Pass", ""},
		{"empty password", "", "$2a$04$abcdefghijklmnopqrstuuMXH0bDqAHdc5PVq3ZZqKYhOZ3Cn9h6S"},
		{"malformed hash", "Str0ng!Pass", "not-a-hash"},
	}
	for _, tt := range tests {
		if h.Verify(ctx, tt.password, tt.hash) {
			t.Errorf("%s: Verify should be false", tt.name)
		}
	}
}

func TestHasher_EmptyRaw(t *testing.T) {
	if _, err := NewHasher(4, 0).Hash(context.Background(), Raw("")); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("want ErrEmptySecret, got %v", err)
	}
}

func TestHasher_Cost(t *testing.T) {
	if h := NewHasher(12, 0); h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	if h := NewHasher(0, 0); h.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h.Cost)
	}
	if h := NewHasher(99, 0); h.Cost != 31 {
		t.Errorf("cost should be clamped to MaxCost, got %d", h.Cost)
	}
}

func TestHasher_CancelledWaitFails(t *testing.T) {
	h := NewHasher(4, 1)
	// Hold the only slot.
	if err := h.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Hash(ctx, Raw("Str0ng!Pass")); !errors.Is(err, context.Canceled) {
		t.Errorf("Hash want context.Canceled, got %v", err)
	}
	if h.Verify(ctx, "x", "y") {
		t.Error("Verify should be false when no slot is available")
	}
}

func TestHasher_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(4, 2)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pw := fmt.Sprintf("Str0ng!Pass%d", i)
			hash, err := h.Hash(ctx, Raw(pw))
			if err != nil {
				errs <- err
				return
			}
			if !h.Verify(ctx, pw, hash) {
				errs <- fmt.Errorf("verify failed for %d", i)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestHasher_VerifyDummy(t *testing.T) {
	h := NewHasher(4, 0)
	h.VerifyDummy(context.Background(), "anything")
	h.VerifyDummy(context.Background(), "")
	if len(h.dummy) == 0 {
		t.Error("dummy hash not initialised")
	}
}

func TestSecretDoesNotPrint(t *testing.T) {
	s := Raw("Str0ng!Pass")
	for _, out := range []string{fmt.Sprint(s), fmt.Sprintf("%v", s), fmt.Sprintf("%#v", s)} {
		if strings.Contains(out, "Str0ng") {
			t.Errorf("secret leaked in %q", out)
		}
	}
	if s.IsHashed() || !Hashed("x").IsHashed() {
		t.Error("IsHashed mismatch")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("token-a")
	if len(a) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a))
	}
	if a != Fingerprint("token-a") {
		t.Error("fingerprint not stable")
	}
	if a == Fingerprint("token-b") {
		t.Error("different tokens share a fingerprint")
	}
	if Fingerprint("") != "" {
		t.Error("empty token should have empty fingerprint")
	}
}
