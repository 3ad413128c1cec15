package hash

import "testing"

func TestHMACSHA256(t *testing.T) {
	hasher := NewHMACSHA256("server-side-secret")

	t.Run("verify accepts the original payload", func(t *testing.T) {
		payload := "483920|user-1|login|email"

		hashed, err := hasher.Hash(payload)
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		if !hasher.Verify(string(hashed), payload) {
			t.Fatal("Verify() = false for original payload")
		}
	})

	t.Run("verify rejects a different payload", func(t *testing.T) {
		hashed, err := hasher.Hash("483920|user-1|login|email")
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		if hasher.Verify(string(hashed), "483921|user-1|login|email") {
			t.Fatal("Verify() = true for different code")
		}
		if hasher.Verify(string(hashed), "483920|user-2|login|email") {
			t.Fatal("Verify() = true for different subject")
		}
	})

	t.Run("different keys produce different hashes", func(t *testing.T) {
		other := NewHMACSHA256("another-secret")

		hashed, err := hasher.Hash("483920")
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		if other.Verify(string(hashed), "483920") {
			t.Fatal("Verify() = true across keys")
		}
	})
}
