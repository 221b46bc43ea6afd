package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseArguments decodes a capability call's raw JSON arguments. Models
// routinely emit slightly broken JSON (trailing commas, single quotes,
// unquoted keys), so a failed decode goes through jsonrepair before giving up.
func ParseArguments(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
		return args, nil
	}

	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return nil, fmt.Errorf("unparseable capability arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("capability arguments invalid after repair: %w", err)
	}
	return args, nil
}

// ResolveArguments returns a call's decoded arguments, parsing RawArguments
// when the provider did not decode them itself.
func ResolveArguments(call CapabilityCall) (map[string]any, error) {
	if call.Arguments != nil {
		return call.Arguments, nil
	}
	return ParseArguments(call.RawArguments)
}
