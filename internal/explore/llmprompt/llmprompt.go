// Package llmprompt builds deterministic LLM prompts from a scenario
// description and the dialogue path walked so far, asking the model for
// plausible next caller utterances and a terminality judgment.
package llmprompt

import (
	"fmt"
	"strings"
)

// Turn is one (agent utterance, user response) pair on the path from the
// conversation root to the node currently being expanded.
type Turn struct {
	AgentUtterance string
	UserResponse   string
}

// strictSuffix is appended on a reprompt after a parse failure, asking the
// model to conform exactly to the expected structure.
const strictSuffix = `
Your previous response could not be parsed. Respond with ONLY a markdown
list of candidate caller responses, one per line starting with "- ", and a
final line exactly "TERMINAL: true" or "TERMINAL: false". Do not include any
other prose.`

// Build produces a prompt for the LLM given the persona scenario and the
// path from root to the node under expansion. lastAgentTurn is the final
// agent utterance the caller script needs a response to. When strict is
// true (a retry after a parse failure), Build appends stricter formatting
// instructions.
//
// Build is a pure function of its inputs: the same arguments always
// produce the same prompt text.
func Build(scenario string, path []Turn, lastAgentTurn string, strict bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are role-playing a caller testing an automated phone system.\n")
	fmt.Fprintf(&b, "Scenario: %s\n\n", scenario)
	b.WriteString("Conversation so far:\n")

	for _, t := range path {
		fmt.Fprintf(&b, "Agent: %s\n", t.AgentUtterance)
		fmt.Fprintf(&b, "Caller: %s\n", t.UserResponse)
	}
	fmt.Fprintf(&b, "Agent: %s\n\n", lastAgentTurn)

	b.WriteString("List 2-5 plausible, distinct things the caller could say next in response ")
	b.WriteString("to the scenario above, as a markdown list (one per line, starting with \"- \"). ")
	b.WriteString("Then, on a final line, state whether the agent's last turn is a conversation ")
	b.WriteString("endpoint (e.g. a goodbye, voicemail, or transfer with nothing further to explore) ")
	b.WriteString("as exactly \"TERMINAL: true\" or \"TERMINAL: false\". If it is terminal, the ")
	b.WriteString("candidate list may be empty.\n")

	if strict {
		b.WriteString(strictSuffix)
	}

	return b.String()
}
