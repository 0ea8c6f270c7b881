package patch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Canonical re-encodes JSON with object keys sorted, so two documents that
// differ only in key order or whitespace compare equal.
func Canonical(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// ETag hashes the canonical JSON form of v.
func ETag(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canon, err := Canonical(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// sameJSON compares two raw values semantically.
func sameJSON(a, b string) bool {
	if a == b {
		return true
	}
	ca, errA := Canonical([]byte(a))
	cb, errB := Canonical([]byte(b))
	return errA == nil && errB == nil && string(ca) == string(cb)
}

// escapePath makes an object key safe for use as a gjson/sjson path
// segment.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func join(prefix, segment, sep string) string {
	if prefix == "" {
		return segment
	}
	return prefix + sep + segment
}
