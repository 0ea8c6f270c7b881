package domain

import (
	"strings"

	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// Role is the function a party performs in the roaming network.
type Role string

const (
	RoleCPO   Role = "CPO"
	RoleEMSP  Role = "EMSP"
	RoleHUB   Role = "HUB"
	RoleNAP   Role = "NAP"
	RoleNSP   Role = "NSP"
	RoleSCSP  Role = "SCSP"
	RoleOther Role = "OTHER"
)

// RoleFamily groups roles that share an identity slot during routing.
type RoleFamily int

const (
	FamilyOther RoleFamily = iota
	FamilyCPO
	FamilyEMSP
	FamilyHUB
)

var roleFamilies = map[Role]RoleFamily{
	RoleCPO:   FamilyCPO,
	RoleEMSP:  FamilyEMSP,
	RoleHUB:   FamilyHUB,
	RoleNAP:   FamilyOther,
	RoleNSP:   FamilyOther,
	RoleSCSP:  FamilyOther,
	RoleOther: FamilyOther,
}

// ParseRole validates a role name. Matching is case-insensitive; the result
// is always the canonical upper-case form.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := roleFamilies[r]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+s)
	}
	return r, nil
}

func (r Role) String() string {
	return string(r)
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	_, ok := roleFamilies[r]
	return ok
}

// Family returns the routing family of the role.
func (r Role) Family() RoleFamily {
	return roleFamilies[r]
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (f RoleFamily) String() string {
	switch f {
	case FamilyCPO:
		return "CPO"
	case FamilyEMSP:
		return "EMSP"
	case FamilyHUB:
		return "HUB"
	default:
		return "OTHER"
	}
}
