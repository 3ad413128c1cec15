package hash

// Hash is the common contract for one-way hashing implementations.
type Hash interface {
	// Hash returns the hash of the plaintext string.
	Hash(plaintext string) ([]byte, error)
	// Verify reports whether plaintext matches the stored hash.
	Verify(hashed, plaintext string) bool
}
