package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// Rule describes how a bounded string identifier is validated and normalized.
type Rule struct {
	Name   string
	MinLen int
	MaxLen int
	Upper  bool
	// Allowed reports whether r may appear in the identifier after
	// normalization. Nil allows any printable ASCII except '/' and space.
	Allowed func(r rune) bool
}

// Kind binds a Rule to an identifier type. Kinds are empty structs used only
// as type parameters, so ID[CountryCodeKind] and ID[PartyIDKind] are distinct
// types that cannot be mixed up.
type Kind interface {
	Rule() Rule
}

// ID is a validated, normalized, bounded string identifier.
// The zero value is the "absent" identifier. IDs are comparable and can be
// used as map keys.
type ID[K Kind] struct {
	value string
}

// TryParse normalizes and validates s, returning the reason on failure.
func TryParse[K Kind](s string) (ID[K], bool, string) {
	var k K
	rule := k.Rule()

	v := strings.TrimSpace(s)
	if rule.Upper {
		v = strings.ToUpper(v)
	}
	if !utf8.ValidString(v) {
		return ID[K]{}, false, rule.Name + " must be valid UTF-8"
	}
	n := utf8.RuneCountInString(v)
	if n == 0 {
		return ID[K]{}, false, rule.Name + " must not be empty"
	}
	if n < rule.MinLen || (rule.MaxLen > 0 && n > rule.MaxLen) {
		if rule.MinLen == rule.MaxLen {
			return ID[K]{}, false, fmt.Sprintf("%s must be %d characters", rule.Name, rule.MinLen)
		}
		return ID[K]{}, false, fmt.Sprintf("%s must be %d to %d characters", rule.Name, rule.MinLen, rule.MaxLen)
	}
	allowed := rule.Allowed
	if allowed == nil {
		allowed = printableSegment
	}
	for _, r := range v {
		if !allowed(r) {
			return ID[K]{}, false, fmt.Sprintf("%s contains invalid character %q", rule.Name, r)
		}
	}
	return ID[K]{value: v}, true, ""
}

// Parse is TryParse with the reason turned into an invalid-input error.
func Parse[K Kind](s string) (ID[K], error) {
	id, ok, reason := TryParse[K](s)
	if !ok {
		return ID[K]{}, dErrors.New(dErrors.CodeInvalidInput, reason)
	}
	return id, nil
}

// MustParse panics on invalid input. Only for constants and tests.
func MustParse[K Kind](s string) ID[K] {
	id, err := Parse[K](s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID[K]) String() string {
	return id.value
}

// IsZero reports whether the identifier is absent.
func (id ID[K]) IsZero() bool {
	return id.value == ""
}

// Compare orders identifiers lexically.
func (id ID[K]) Compare(other ID[K]) int {
	return strings.Compare(id.value, other.value)
}

func (id ID[K]) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

func (id *ID[K]) UnmarshalText(b []byte) error {
	parsed, err := Parse[K](string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func printableSegment(r rune) bool {
	return r > ' ' && r < 0x7f && r != '/'
}

func upperLetter(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

func upperAlnum(r rune) bool {
	return upperLetter(r) || (r >= '0' && r <= '9')
}

// Identifier kinds.
type (
	CountryCodeKind struct{}
	PartyIDKind     struct{}
	LocationIDKind  struct{}
	EVSEUIDKind     struct{}
	ConnectorIDKind struct{}
)

func (CountryCodeKind) Rule() Rule {
	return Rule{Name: "country code", MinLen: 2, MaxLen: 2, Upper: true, Allowed: upperLetter}
}

func (PartyIDKind) Rule() Rule {
	return Rule{Name: "party id", MinLen: 3, MaxLen: 3, Upper: true, Allowed: upperAlnum}
}

func (LocationIDKind) Rule() Rule {
	return Rule{Name: "location id", MinLen: 1, MaxLen: 36}
}

func (EVSEUIDKind) Rule() Rule {
	return Rule{Name: "evse uid", MinLen: 1, MaxLen: 36}
}

func (ConnectorIDKind) Rule() Rule {
	return Rule{Name: "connector id", MinLen: 1, MaxLen: 36}
}

type (
	// CountryCode is an ISO 3166-1 alpha-2 country code.
	CountryCode = ID[CountryCodeKind]
	// PartyID is the 3-character party identifier assigned per country.
	PartyID     = ID[PartyIDKind]
	LocationID  = ID[LocationIDKind]
	EVSEUID     = ID[EVSEUIDKind]
	ConnectorID = ID[ConnectorIDKind]
)

func ParseCountryCode(s string) (CountryCode, error) { return Parse[CountryCodeKind](s) }
func ParsePartyID(s string) (PartyID, error)         { return Parse[PartyIDKind](s) }
func ParseLocationID(s string) (LocationID, error)   { return Parse[LocationIDKind](s) }
func ParseEVSEUID(s string) (EVSEUID, error)         { return Parse[EVSEUIDKind](s) }
func ParseConnectorID(s string) (ConnectorID, error) { return Parse[ConnectorIDKind](s) }
