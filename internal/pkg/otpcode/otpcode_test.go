package otpcode

import (
	"testing"
)

func TestNumericGenerate(t *testing.T) {
	gen := NewNumeric()

	t.Run("returns requested length with digits only", func(t *testing.T) {
		for _, digits := range []int{4, 6, 8, 10} {
			code, err := gen.Generate(digits)
			if err != nil {
				t.Fatalf("Generate(%d) error = %v", digits, err)
			}
			if len(code) != digits {
				t.Fatalf("Generate(%d) length = %d, want %d", digits, len(code), digits)
			}
			for _, c := range code {
				if c < '0' || c > '9' {
					t.Fatalf("Generate(%d) = %q, contains non-digit", digits, code)
				}
			}
		}
	})

	t.Run("falls back to six digits on out of range length", func(t *testing.T) {
		for _, digits := range []int{-1, 0, 3, 11, 100} {
			code, err := gen.Generate(digits)
			if err != nil {
				t.Fatalf("Generate(%d) error = %v", digits, err)
			}
			if len(code) != 6 {
				t.Fatalf("Generate(%d) length = %d, want 6", digits, len(code))
			}
		}
	})

	t.Run("codes vary across calls", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 50 {
			code, err := gen.Generate(6)
			if err != nil {
				t.Fatalf("Generate(6) error = %v", err)
			}
			seen[code] = struct{}{}
		}
		if len(seen) < 2 {
			t.Fatalf("expected varied codes, got %d distinct out of 50", len(seen))
		}
	})
}
