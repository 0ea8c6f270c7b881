package models

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// MaxTokenLength bounds accepted bearer tokens.
const MaxTokenLength = 255

// AccessToken is an opaque bearer credential. String and LogValue never
// reveal the secret; Value does.
type AccessToken struct {
	value string
}

// ParseAccessToken validates a token: non-empty printable ASCII, no spaces.
func ParseAccessToken(s string) (AccessToken, error) {
	if s == "" {
		return AccessToken{}, dErrors.New(dErrors.CodeInvalidInput, "token must not be empty")
	}
	if len(s) > MaxTokenLength {
		return AccessToken{}, dErrors.New(dErrors.CodeInvalidInput, "token is too long")
	}
	if !IsPrintable(s) {
		return AccessToken{}, dErrors.New(dErrors.CodeInvalidInput, "token must be printable ASCII without spaces")
	}
	return AccessToken{value: s}, nil
}

// MustAccessToken panics on invalid input. Only for tests and constants.
func MustAccessToken(s string) AccessToken {
	t, err := ParseAccessToken(s)
	if err != nil {
		panic(err)
	}
	return t
}

// IsPrintable reports whether s is printable ASCII without whitespace, the
// alphabet allowed for tokens on the wire.
func IsPrintable(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] >= 0x7f {
			return false
		}
	}
	return true
}

// Value returns the secret itself.
func (t AccessToken) Value() string {
	return t.value
}

// IsZero reports whether the token is absent.
func (t AccessToken) IsZero() bool {
	return t.value == ""
}

// Encode renders the token in the form sent on the wire.
func (t AccessToken) Encode(asBase64 bool) string {
	if asBase64 {
		return base64.StdEncoding.EncodeToString([]byte(t.value))
	}
	return t.value
}

// Digest is the hex blake2b-256 of the token, used as a lookup key in
// persistent storage.
func (t AccessToken) Digest() string {
	sum := blake2b.Sum256([]byte(t.value))
	return hex.EncodeToString(sum[:])
}

// Fingerprint is a short digest prefix that is safe to log.
func (t AccessToken) Fingerprint() string {
	if t.value == "" {
		return ""
	}
	return t.Digest()[:12]
}

func (t AccessToken) String() string {
	return "token:" + t.Fingerprint()
}

// LogValue keeps raw tokens out of structured logs.
func (t AccessToken) LogValue() slog.Value {
	return slog.StringValue(t.Fingerprint())
}

func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *AccessToken) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAccessToken(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TokenKey is the identity of an issued token: the secret plus the encoding
// the holder is expected to use. The same secret under two encodings is two
// different keys.
type TokenKey struct {
	Token  AccessToken
	Base64 bool
}

func (k TokenKey) String() string {
	if k.Base64 {
		return k.Token.String() + "(base64)"
	}
	return k.Token.String() + "(raw)"
}
