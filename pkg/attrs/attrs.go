// Package attrs reads values back out of slog-style key/value pairs.
package attrs

// ExtractString returns the string stored under key in a flat
// [key1, value1, key2, value2, ...] slice, or "" when absent or not a string.
func ExtractString(pairs []any, key string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := pairs[i+1].(string); ok {
			return v
		}
		if s, ok := pairs[i+1].(interface{ String() string }); ok {
			return s.String()
		}
	}
	return ""
}
