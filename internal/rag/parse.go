package rag

import (
	"encoding/json"
	"strings"
)

// extractJSONObject returns the first top-level JSON object embedded in raw,
// tolerating code fences and surrounding prose. Returns "" when no balanced
// object is found.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

// parseSelection attempts a strict parse of a source-selection response.
// Both boolean fields must be present and correctly typed; anything less is
// malformed and the caller must substitute its default. The reason field is
// advisory and may be absent.
func parseSelection(raw string) (Selection, bool) {
	obj := extractJSONObject(raw)
	if obj == "" {
		return Selection{}, false
	}
	var wire struct {
		UseBook *bool  `json:"useBook"`
		UseChat *bool  `json:"useChat"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		return Selection{}, false
	}
	if wire.UseBook == nil || wire.UseChat == nil {
		return Selection{}, false
	}
	return Selection{
		UseBook: *wire.UseBook,
		UseChat: *wire.UseChat,
		Reason:  wire.Reason,
	}, true
}
