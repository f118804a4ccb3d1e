package llmtransport

import "strings"

// StripCodeFence removes a surrounding ```json ... ``` or ``` ... ``` fence
// if present, returning the inner content unchanged otherwise. Used by
// agents that ask the LLM for strict JSON but must defend against models
// that wrap it in markdown anyway (spec §4.6, §8: "Parsing \"```json {…}
// ```\" yields the same result as parsing the inner object").
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}

	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		// Drop an optional language tag on the fence's opening line (e.g. "json").
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
