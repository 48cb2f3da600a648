package llm

import (
	"fmt"
	"strings"
)

// safePageLimit truncates the page text embedded in a prompt so a single
// snapshot cannot blow the model's context window.
const safePageLimit = 60000

// SystemPrompt teaches the model the command contract the extractor and
// executor enforce.
const SystemPrompt = `You are an autonomous agent driving a web browser.
Each turn you receive the user's goal, the current page state and the
history of previous actions and their observations.

Respond with a SINGLE JSON object describing exactly one action:
{"action": "...", "selector": "...", "value": "...", "x": 0.5, "y": 0.5, "message": "..."}

ACTIONS:
- click: press an element. Target it with "selector" (CSS) OR normalized
  "x"/"y" coordinates in [0,1] relative to the viewport, never both.
- type: put "value" into an input. Same targeting rules as click.
- scroll: scroll the page by "value" pixels (default 500).
- scroll_to_element: bring "selector" into view.
- wait: pause "value" milliseconds (default 1000).
- submit: submit the form containing "selector".
- navigate: load the URL in "value".
- get_text: read the text content of "selector".
- get_value: read the current value of "selector".
- done: the goal is fully achieved. Ends the run.
- answer: the goal asked a question; put the answer in "value". Ends the run.
- error: the goal cannot be achieved; explain in "message". Ends the run.

RULES:
- One action per response. No prose outside the JSON object.
- Use selectors you can actually see in the page state.
- If a previous action failed, read the OBSERVATION and try a different
  approach instead of repeating it.
- Prefer done/answer as soon as the goal is met.`

// PromptInput is the per-turn page context embedded in the user message.
type PromptInput struct {
	Goal     string
	URL      string
	Title    string
	PageText string
}

// BuildUserPrompt renders one planning turn. History is not included here;
// it is replayed as separate conversation turns by the client.
func BuildUserPrompt(in PromptInput) string {
	var sb strings.Builder
	sb.WriteString("GOAL: " + in.Goal + "\n")
	sb.WriteString("URL: " + in.URL + "\n")
	if in.Title != "" {
		sb.WriteString("TITLE: " + in.Title + "\n")
	}

	page := in.PageText
	if len(page) > safePageLimit {
		page = page[:safePageLimit] + "\n...[TRUNCATED]"
	}
	if page != "" {
		sb.WriteString("\nPAGE:\n" + page + "\n")
	}

	sb.WriteString("\nRespond with the single JSON action object.")
	return sb.String()
}

// SummarySystemPrompt drives the optional end-of-run report.
const SummarySystemPrompt = `You are an analysis module for a browser automation agent.
Produce a concise human-readable report explaining:
- Whether the goal was completed
- What the agent did
- Mistakes or loops
- Final state`

// SummaryInput collects what the reporter knows about a finished run.
type SummaryInput struct {
	Goal       string
	ExitReason string
	Duration   string
	FinalURL   string
	Steps      []string
}

// BuildSummaryPrompt renders the user message for a run summary request.
func BuildSummaryPrompt(in SummaryInput) string {
	var sb strings.Builder
	sb.WriteString("GOAL:\n" + in.Goal + "\n\n")
	sb.WriteString("EXIT_REASON:\n" + in.ExitReason + "\n\n")
	sb.WriteString("DURATION:\n" + in.Duration + "\n\n")
	if in.FinalURL != "" {
		sb.WriteString("FINAL_URL:\n" + in.FinalURL + "\n\n")
	}
	if len(in.Steps) > 0 {
		sb.WriteString("STEPS:\n")
		for i, s := range in.Steps {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, s))
		}
	}
	return sb.String()
}
