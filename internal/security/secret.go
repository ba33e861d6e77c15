package security

// Secret is a password tagged with its form. Raw secrets are hashed on write;
// Hashed secrets are stored as-is. Callers say which one they hold instead of the
// hasher guessing from the string's shape.
type Secret struct {
	value  string
	hashed bool
}

// Raw wraps a plaintext password.
func Raw(password string) Secret {
	return Secret{value: password}
}

// Hashed wraps an existing bcrypt digest.
func Hashed(digest string) Secret {
	return Secret{value: digest, hashed: true}
}

// IsHashed reports whether s carries a digest.
func (s Secret) IsHashed() bool { return s.hashed }

// Empty reports whether s carries no value.
func (s Secret) Empty() bool { return s.value == "" }

// String never reveals the value, so a Secret is safe to pass to a logger by accident.
func (s Secret) String() string { return "[redacted]" }

func (s Secret) GoString() string { return "security.Secret{[redacted]}" }
