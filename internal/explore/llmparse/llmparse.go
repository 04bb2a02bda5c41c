// Package llmparse extracts candidate caller responses and a terminality
// judgment from raw LLM completion text, tolerating surrounding prose the
// way a production system must when the model doesn't follow formatting
// instructions exactly.
package llmparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Result is the parsed outcome of an LLM completion.
type Result struct {
	Candidates []string
	IsTerminal bool
	Confidence float64
}

// listItem matches a markdown list line: "- text", "* text", or "1. text".
var listItem = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s+(.+?)\s*$`)

// terminalLine matches the "TERMINAL: true|false" directive, case-insensitive.
var terminalLine = regexp.MustCompile(`(?i)^\s*terminal\s*:\s*(true|false)\s*$`)

// Parse extracts candidate list items and the terminal directive from raw
// LLM output. It tolerates wrapping prose before, between, and after the
// list and directive.
//
// On parse failure — no list items found and no terminal directive found —
// Parse returns a zero-value Result with ok=false so the caller can retry
// with a stricter reprompt (see llmprompt.Build's strict mode) up to
// LLM_RETRY_MAX attempts.
func Parse(raw string) (result Result, ok bool) {
	lines := strings.Split(raw, "\n")

	var candidates []string
	foundTerminal := false
	var isTerminal bool

	for _, line := range lines {
		if m := terminalLine.FindStringSubmatch(line); m != nil {
			b, err := strconv.ParseBool(strings.ToLower(m[1]))
			if err == nil {
				isTerminal = b
				foundTerminal = true
			}
			continue
		}
		if m := listItem.FindStringSubmatch(line); m != nil {
			candidates = append(candidates, strings.TrimSpace(m[1]))
		}
	}

	if len(candidates) == 0 && !foundTerminal {
		return Result{}, false
	}

	confidence := 0.5
	if foundTerminal {
		confidence += 0.25
	}
	if len(candidates) > 0 {
		confidence += 0.25
	}

	return Result{
		Candidates: candidates,
		IsTerminal: isTerminal,
		Confidence: confidence,
	}, true
}
