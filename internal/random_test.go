package internal

import (
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}

	encoded := token.String()
	if len(encoded) != 22 {
		t.Fatalf("token encoding length = %d, want 22", len(encoded))
	}

	parsed, err := ParseToken(encoded)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if parsed != token {
		t.Fatal("parsed token differs from original")
	}
}

func TestParseTokenRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "short", "not+base64url!!", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if _, err := ParseToken(input); err == nil {
			t.Errorf("ParseToken(%q) accepted malformed input", input)
		}
	}
}

func TestTokensAreUnique(t *testing.T) {
	seen := make(map[Token]bool, 100)
	for i := 0; i < 100; i++ {
		token, err := NewToken()
		if err != nil {
			t.Fatalf("NewToken failed: %v", err)
		}
		if seen[token] {
			t.Fatal("duplicate token generated")
		}
		seen[token] = true
	}
}

func TestNewCodeShape(t *testing.T) {
	for _, digits := range []int{4, 6, 8, 10} {
		code, err := NewCode(digits)
		if err != nil {
			t.Fatalf("NewCode(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("NewCode(%d) length = %d", digits, len(code))
		}
		for i := 0; i < len(code); i++ {
			if code[i] < '0' || code[i] > '9' {
				t.Fatalf("NewCode(%d) produced non-digit %q", digits, code)
			}
		}
	}

	if _, err := NewCode(0); err == nil {
		t.Fatal("NewCode(0) should fail")
	}
}

func TestHashCodeIsStableAndDistinct(t *testing.T) {
	if HashCode("123456") != HashCode("123456") {
		t.Fatal("hash not deterministic")
	}
	if HashCode("123456") == HashCode("123457") {
		t.Fatal("distinct codes hashed equal")
	}
}
