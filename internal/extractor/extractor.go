// Package extractor recovers a structured command from free-form model
// output. Models routinely wrap their JSON in prose or markdown fences, so
// extraction is layered: fenced block first, then a direct parse, then the
// outermost brace pair. Anything that parses but lacks an action key is
// rejected rather than guessed at.
package extractor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/vkotenko/go-web-pilot/internal/schema"
)

// contextLimit bounds how much of the raw reply an ExtractionError carries
// for user-facing diagnostics.
const contextLimit = 100

var fenceRegex = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// ExtractionError reports that no parseable command was found in a model
// reply. Context holds the first 100 characters of the original text.
type ExtractionError struct {
	Context string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no parseable command in model reply (starts with %q): %v", e.Context, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func failure(raw string, err error) *ExtractionError {
	excerpt := raw
	if len(excerpt) > contextLimit {
		excerpt = excerpt[:contextLimit]
	}
	return &ExtractionError{Context: excerpt, Err: err}
}

// Extract turns raw model text into a candidate command. The returned
// command has not been validated; callers run schema.Command.Validate
// before execution.
func Extract(raw string) (schema.Command, error) {
	working := strings.TrimSpace(raw)
	if m := fenceRegex.FindStringSubmatch(working); len(m) > 1 {
		working = strings.TrimSpace(m[1])
	}

	cmd, err := parse(working)
	if err == nil {
		return cmd, nil
	}

	open := strings.Index(working, "{")
	close := strings.LastIndex(working, "}")
	if open != -1 && close > open {
		if cmd, innerErr := parse(working[open : close+1]); innerErr == nil {
			return cmd, nil
		}
	}

	return schema.Command{}, failure(raw, err)
}

func parse(text string) (schema.Command, error) {
	var cmd schema.Command
	if err := json.Unmarshal([]byte(text), &cmd); err != nil {
		return schema.Command{}, err
	}
	if cmd.Action == "" {
		return schema.Command{}, fmt.Errorf("parsed object has no %q field", "action")
	}
	return cmd, nil
}
