package agent

import (
	"strings"

	"github.com/vkotenko/go-web-pilot/internal/llm"
	"github.com/vkotenko/go-web-pilot/internal/schema"
)

// ObservationPrefix marks synthesized observation turns so the model can
// tell them apart from its own replies when the history is replayed.
const ObservationPrefix = "OBSERVATION: "

// History is the ordered conversation shared between planning steps.
// Append-only with two writers: the loop appends the raw model reply and
// the observation after each cycle; turns are never mutated in place.
//
// Unbounded by default, which makes prompt size monotonically
// non-decreasing for the life of a run. maxTurns caps it; when the cap is
// hit the oldest reply/observation pair is dropped whole so the replayed
// conversation keeps its shape.
//
// Not safe for concurrent use: the loop serializes stages, so only one
// writer is ever active.
type History struct {
	turns    []llm.Turn
	maxTurns int
}

func NewHistory(maxTurns int) *History {
	return &History{maxTurns: maxTurns}
}

// AddReply appends the raw model reply as an assistant turn.
func (h *History) AddReply(content string) {
	h.append(llm.Turn{Role: llm.RoleAssistant, Content: content})
}

// AddObservation appends the textual record of an outcome, prefixed to
// distinguish it from a direct model reply.
func (h *History) AddObservation(out schema.Outcome) {
	h.append(llm.Turn{Role: llm.RoleAssistant, Content: ObservationPrefix + out.String()})
}

// AddNote appends a synthesized observation that did not come from the
// executor, e.g. an extraction-failure report.
func (h *History) AddNote(note string) {
	if strings.TrimSpace(note) == "" {
		return
	}
	h.append(llm.Turn{Role: llm.RoleAssistant, Content: ObservationPrefix + note})
}

func (h *History) append(t llm.Turn) {
	h.turns = append(h.turns, t)
	if h.maxTurns > 0 {
		for len(h.turns) > h.maxTurns {
			drop := 2
			if drop > len(h.turns) {
				drop = len(h.turns)
			}
			h.turns = h.turns[drop:]
		}
	}
}

// Turns returns a copy of the history for replay into the next prompt.
func (h *History) Turns() []llm.Turn {
	if len(h.turns) == 0 {
		return nil
	}
	out := make([]llm.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int { return len(h.turns) }

// Lines renders the history for the final report.
func (h *History) Lines() []string {
	lines := make([]string, 0, len(h.turns))
	for _, t := range h.turns {
		lines = append(lines, string(t.Role)+": "+t.Content)
	}
	return lines
}

// Reset clears the history at the start of a new run.
func (h *History) Reset() { h.turns = nil }
