package patch

import "strings"

// Schema tells the engine how an entity may be patched. Field names are
// dotted JSON paths ("coordinates.latitude"); top-level names are plain
// JSON keys.
type Schema struct {
	// Entity names the entity in messages, e.g. "connector".
	Entity string
	// Immutable fields may not appear in a patch at all. The value is the
	// label used in messages.
	Immutable map[string]string
	// Mandatory fields may not be patched to null.
	Mandatory []string
	// Labels maps field names to human readable names for messages.
	Labels map[string]string
	// Timestamp is the last-updated field. An explicit value in the patch is
	// taken verbatim; otherwise it advances only when something changed.
	Timestamp string
}

// Label returns the human readable name of a field. Unlabelled fields use
// their last path segment with underscores turned into spaces.
func (s Schema) Label(field string) string {
	if l, ok := s.Immutable[field]; ok {
		return l
	}
	if l, ok := s.Labels[field]; ok {
		return l
	}
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		if l, ok := s.Labels[field[i+1:]]; ok {
			return l
		}
		field = field[i+1:]
	}
	return strings.ReplaceAll(field, "_", " ")
}

func (s Schema) isMandatory(field string) bool {
	for _, m := range s.Mandatory {
		if m == field {
			return true
		}
	}
	return false
}
