package resolver

import (
	"encoding/base64"
	"strings"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
)

// Scheme is the authorization scheme the token arrived in.
type Scheme string

const (
	SchemeNone   Scheme = ""
	SchemeToken  Scheme = "Token"
	SchemeBearer Scheme = "Bearer"
	SchemeBasic  Scheme = "Basic"
)

// Presented is what the caller put in the Authorization header.
type Presented struct {
	Scheme Scheme
	Token  string
	// Code is the one-time code from the Basic password slot, if any.
	Code string
}

// ParseAuthorization splits an Authorization header value. The third
// return value explains why parsing failed when ok is false.
func ParseAuthorization(header string) (Presented, bool, string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Presented{}, false, "no authorization header"
	}
	scheme, rest, found := strings.Cut(header, " ")
	rest = strings.TrimSpace(rest)
	if !found || rest == "" {
		return Presented{}, false, "authorization header has no credentials"
	}
	switch {
	case strings.EqualFold(scheme, string(SchemeToken)):
		return Presented{Scheme: SchemeToken, Token: rest}, true, ""
	case strings.EqualFold(scheme, string(SchemeBearer)):
		return Presented{Scheme: SchemeBearer, Token: rest}, true, ""
	case strings.EqualFold(scheme, string(SchemeBasic)):
		raw, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return Presented{}, false, "malformed basic credentials"
		}
		user, pass, _ := strings.Cut(string(raw), ":")
		if user == "" {
			return Presented{}, false, "basic credentials carry no token"
		}
		return Presented{Scheme: SchemeBasic, Token: user, Code: pass}, true, ""
	default:
		return Presented{}, false, "unsupported authorization scheme"
	}
}

// Candidate is one registry key a presented token may stand for.
type Candidate struct {
	Key      models.TokenKey
	Encoding Encoding
}

// Candidates derives at most two lookup keys from a presented token: the
// literal value bound to raw entries and, when it decodes to printable
// text, its Base64 decoding bound to Base64 entries.
func Candidates(token string) []Candidate {
	var out []Candidate
	if raw, err := models.ParseAccessToken(token); err == nil {
		out = append(out, Candidate{Key: models.TokenKey{Token: raw}, Encoding: EncodingRaw})
	}
	if decoded, ok := decodeBase64(token); ok {
		if tok, err := models.ParseAccessToken(decoded); err == nil {
			out = append(out, Candidate{Key: models.TokenKey{Token: tok, Base64: true}, Encoding: EncodingBase64})
		}
	}
	return out
}

func decodeBase64(s string) (string, bool) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return "", false
		}
	}
	decoded := string(b)
	if !models.IsPrintable(decoded) {
		return "", false
	}
	return decoded, true
}
