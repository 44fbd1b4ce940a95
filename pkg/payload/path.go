package payload

import "strings"

// SplitPath splits a dot path, trimming surrounding whitespace.
func SplitPath(path string) []string {
	return strings.Split(strings.TrimSpace(path), ".")
}

// Lookup walks object members along path. Arrays are not indexed: any
// non-object on the way, or a missing member, reports false.
func (v Value) Lookup(path ...string) (Value, bool) {
	current := v

	for _, segment := range path {
		next, ok := current.Field(segment)
		if !ok {
			return Value{}, false
		}

		current = next
	}

	return current, true
}
