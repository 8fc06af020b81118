package flow

import (
	"fmt"
	"regexp"
)

// placeholderRe matches {{identifier}} occurrences in text fields
var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Variables is the per-session string environment. Keys are plain
// case-sensitive identifiers; last write wins.
type Variables map[string]string

// Get returns the stored value and whether the key exists
func (v Variables) Get(name string) (string, bool) {
	val, ok := v[name]
	return val, ok
}

// Set stores a value, stringifying non-string inputs
func (v Variables) Set(name string, value any) {
	switch val := value.(type) {
	case string:
		v[name] = val
	case nil:
		v[name] = ""
	default:
		v[name] = fmt.Sprintf("%v", val)
	}
}

// Interpolate replaces every {{name}} occurrence with the stored value.
// Unresolved placeholders pass through verbatim; interpolation never errors.
func (v Variables) Interpolate(template string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		if val, ok := v[name]; ok {
			return val
		}
		return match
	})
}

// Env exposes the variables as a generic map for expression evaluation
func (v Variables) Env() map[string]any {
	env := make(map[string]any, len(v))
	for k, val := range v {
		env[k] = val
	}
	return env
}
