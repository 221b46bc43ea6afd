package state

import (
	"fmt"
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

var exactPlaceholderPattern = regexp.MustCompile(`^\{(\w+)\}$`)

// Render substitutes {field} placeholders in template with snapshot values.
// An unresolvable key renders as an explicit {MISSING:key} marker rather than
// failing, so a malformed template surfaces visibly in the model prompt.
func Render(template string, st *State) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := st.Get(key); ok && v != nil {
			return fmt.Sprint(v)
		}
		return fmt.Sprintf("{MISSING:%s}", key)
	})
}

// RenderValue resolves one input template. A template that is exactly a
// single placeholder passes the raw typed value through, so list and map
// fields survive the trip into a capability's schema-validated arguments;
// anything else is treated as string interpolation.
func RenderValue(template string, st *State) any {
	if m := exactPlaceholderPattern.FindStringSubmatch(template); m != nil {
		if v, ok := st.Get(m[1]); ok {
			return v
		}
		return fmt.Sprintf("{MISSING:%s}", m[1])
	}
	return Render(template, st)
}

// RenderInputs resolves a direct capability task's input templates into an
// argument map.
func RenderInputs(inputs map[string]string, st *State) map[string]any {
	args := make(map[string]any, len(inputs))
	for name, template := range inputs {
		args[name] = RenderValue(template, st)
	}
	return args
}
