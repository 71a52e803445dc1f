package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// Token is the 128-bit random identifier used for attempt tokens and session
// IDs. Rendered as unpadded base64url.
type Token [16]byte

func NewToken() (Token, error) {
	var t Token
	_, err := rand.Read(t[:])
	return t, err
}

func (t Token) String() string {
	return base64.RawURLEncoding.EncodeToString(t[:])
}

func ParseToken(s string) (Token, error) {
	var t Token

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return t, err
	}
	if len(raw) != len(t) {
		return t, errors.New("invalid token size")
	}

	copy(t[:], raw)
	return t, nil
}

// NewCode generates a numeric one-time code of the given length. Each digit
// is drawn independently so the leading digit may be zero.
func NewCode(digits int) (string, error) {
	if digits <= 0 {
		return "", errors.New("code digits must be positive")
	}

	var sb strings.Builder
	sb.Grow(digits)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

// HashCode produces the stored digest of a one-time code. Codes are never
// persisted in the clear.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
