package domain

import (
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
)

// Version is a protocol revision identifier.
// This is a domain primitive that enforces validity at parse time.
type Version string

// Supported protocol versions.
const (
	Version211 Version = "2.1.1"
	Version22  Version = "2.2"
	Version221 Version = "2.2.1"
	Version230 Version = "2.3.0"
)

// versionOrder defines the ordering of versions for comparison.
// Higher numbers represent newer versions.
var versionOrder = map[Version]int{
	Version211: 1,
	Version22:  2,
	Version221: 3,
	Version230: 4,
}

// ParseVersion validates and returns a Version.
func ParseVersion(s string) (Version, error) {
	v := Version(s)
	if _, ok := versionOrder[v]; !ok {
		return "", dErrors.New(dErrors.CodeUnsupportedVersion, "unsupported version: "+s)
	}
	return v, nil
}

func (v Version) String() string {
	return string(v)
}

// IsKnown reports whether v is one of the versions this build speaks.
func (v Version) IsKnown() bool {
	_, ok := versionOrder[v]
	return ok
}

// IsAtLeast returns true if this version is >= other.
// Unknown versions are treated as lower than any known version.
func (v Version) IsAtLeast(other Version) bool {
	thisOrder, thisOK := versionOrder[v]
	otherOrder, otherOK := versionOrder[other]
	if !thisOK {
		return false
	}
	if !otherOK {
		return true
	}
	return thisOrder >= otherOrder
}

// HasRoles reports whether the version's credentials carry a roles list
// (2.2 and later) rather than a single party identity.
func (v Version) HasRoles() bool {
	return v.IsAtLeast(Version22)
}

// UsesBase64Tokens reports whether tokens travel Base64 encoded in the
// Authorization header (2.2 and later).
func (v Version) UsesBase64Tokens() bool {
	return v.IsAtLeast(Version22)
}

// SupportedVersions returns all versions in ascending order.
func SupportedVersions() []Version {
	return []Version{Version211, Version22, Version221, Version230}
}

// HighestMutual picks the highest version present in both lists. Unknown
// entries in theirs are ignored.
func HighestMutual(ours, theirs []Version) (Version, bool) {
	offered := make(map[Version]struct{}, len(theirs))
	for _, v := range theirs {
		offered[v] = struct{}{}
	}
	var best Version
	for _, v := range ours {
		if _, ok := offered[v]; !ok || !v.IsKnown() {
			continue
		}
		if best == "" || !best.IsAtLeast(v) {
			best = v
		}
	}
	return best, best != ""
}
