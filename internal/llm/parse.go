package llm

import "strings"

// stripCodeFences removes a surrounding markdown code fence, if present.
// Models occasionally wrap short answers in fences despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimLeft(s, "`")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseYesNo maps model output to a strict boolean.
// Anything that does not clearly start with "yes" is false: the
// conservative default prefers a rewrite or empty-context answer over
// grounding on irrelevant material.
func parseYesNo(s string) bool {
	s = strings.ToLower(stripCodeFences(s))
	s = strings.Trim(s, " \t\n.!'\"")
	return s == "yes" || strings.HasPrefix(s, "yes")
}

// parseDecision maps model output to the closed routing enum.
// Unknown output counts as needing retrieval, which is safer than silently
// skipping it.
func parseDecision(s string) string {
	s = strings.ToUpper(stripCodeFences(s))
	if strings.Contains(s, "ANSWER") && !strings.Contains(s, "RETRIEVE") {
		return "ANSWER"
	}
	return "RETRIEVE"
}

// truncate limits s to max bytes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
