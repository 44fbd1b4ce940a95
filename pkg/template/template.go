// Package template resolves {{dot.path}} placeholders in action configuration
// against the accumulated run payload.
package template

import (
	"regexp"

	"github.com/dukex/flowrun/pkg/payload"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Resolve replaces every placeholder in s whose path resolves to a non-null
// value. Unresolvable placeholders are kept verbatim.
func Resolve(s string, p payload.Value) string {
	if !HasPlaceholders(s) {
		return s
	}

	return placeholderPattern.ReplaceAllStringFunc(s, func(token string) string {
		match := placeholderPattern.FindStringSubmatch(token)

		value, ok := p.Lookup(payload.SplitPath(match[1])...)
		if !ok || value.IsNull() {
			return token
		}

		return value.String()
	})
}

// ResolveValue walks arrays and objects and resolves every string leaf.
// Other values are returned unchanged.
func ResolveValue(v any, p payload.Value) any {
	switch t := v.(type) {
	case string:
		return Resolve(t, p)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ResolveValue(item, p)
		}

		return out
	case map[string]any:
		return ResolveConfig(t, p)
	default:
		return v
	}
}

// ResolveConfig returns a resolved copy of an action configuration. A nil
// configuration resolves to an empty one.
func ResolveConfig(config map[string]any, p payload.Value) map[string]any {
	out := make(map[string]any, len(config))

	for key, value := range config {
		out[key] = ResolveValue(value, p)
	}

	return out
}

func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}

// Unresolved lists the placeholders still present in a resolved configuration.
func Unresolved(config map[string]any) []string {
	var tokens []string

	var walk func(v any)

	walk = func(v any) {
		switch t := v.(type) {
		case string:
			tokens = append(tokens, placeholderPattern.FindAllString(t, -1)...)
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			for _, item := range t {
				walk(item)
			}
		}
	}

	walk(config)

	return tokens
}
