// Package hash provides keyed and one-way hashing behind one small interface.
//
// Three implementations cover the service's needs: HMAC-SHA256 for one-time
// code digests (keyed, constant-time verify), bcrypt for passwords, and
// argon2id for recovery codes. Callers store only the hash and verify
// plaintext against it.
package hash
