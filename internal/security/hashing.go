package security

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrEmptySecret is returned when Hash receives an empty raw password.
	ErrEmptySecret = errors.New("empty secret")
	// ErrMalformedHash is returned when a Hashed secret is not bcrypt output.
	ErrMalformedHash = errors.New("malformed password hash")
)

// dummySecret seeds the hash used by VerifyDummy. Its value is irrelevant.
const dummySecret = "happyday-dummy-secret"

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
//
// Hash and Verify are CPU-bound; at most MaxConcurrent of them run at once. Waiting
// for a slot honors ctx, the bcrypt computation itself does not.
type Hasher struct {
	Cost int

	sem       *semaphore.Weighted
	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to 4–31. A
// non-positive maxConcurrent leaves hashing unbounded.
func NewHasher(cost, maxConcurrent int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	h := &Hasher{Cost: cost}
	if maxConcurrent > 0 {
		h.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return h
}

// Hash returns the stored form of s. A Hashed secret is returned unchanged after
// checking it is bcrypt output; a Raw secret is hashed with a fresh salt.
func (h *Hasher) Hash(ctx context.Context, s Secret) (string, error) {
	if s.hashed {
		if _, err := bcrypt.Cost([]byte(s.value)); err != nil {
			return "", ErrMalformedHash
		}
		return s.value, nil
	}
	if s.value == "" {
		return "", ErrEmptySecret
	}
	release, err := h.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	b, err := bcrypt.GenerateFromPassword([]byte(s.value), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches hash. Mismatch, an empty input, a
// malformed hash or a cancelled ctx all yield false.
func (h *Hasher) Verify(ctx context.Context, password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	release, err := h.acquire(ctx)
	if err != nil {
		return false
	}
	defer release()
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyDummy spends the same work as a real Verify against a hash that never
// matches. Used when the identifier is unknown so that response time does not
// reveal whether an account exists.
func (h *Hasher) VerifyDummy(ctx context.Context, password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte(dummySecret), h.Cost)
	})
	if password == "" {
		password = dummySecret + "x"
	}
	release, err := h.acquire(ctx)
	if err != nil {
		return
	}
	defer release()
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

func (h *Hasher) acquire(ctx context.Context) (func(), error) {
	if h.sem == nil {
		return func() {}, nil
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { h.sem.Release(1) }, nil
}
