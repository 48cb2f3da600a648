// Package schema defines the action vocabulary shared by the planner, the
// relay and the executor, plus the validation rules a command must pass
// before it is allowed anywhere near a live page.
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Action string

const (
	ActionClick           Action = "click"
	ActionTypeInput       Action = "type"
	ActionScroll          Action = "scroll"
	ActionScrollToElement Action = "scroll_to_element"
	ActionWait            Action = "wait"
	ActionSubmit          Action = "submit"
	ActionNavigate        Action = "navigate"
	ActionGetText         Action = "get_text"
	ActionGetValue        Action = "get_value"
	ActionDone            Action = "done"
	ActionAnswer          Action = "answer"
	ActionError           Action = "error"
)

// Defaults applied by the executor when the optional value is absent or
// not numeric.
const (
	DefaultScrollPx = 500
	DefaultWaitMs   = 1000
)

// Value accepts both JSON strings and JSON numbers, since models emit
// either for fields like scroll distance or wait duration.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("value must be a string or number: %w", err)
	}
	*v = Value(n.String())
	return nil
}

func (v Value) String() string { return string(v) }

// Int parses the value as an integer, returning def when the value is
// empty or not numeric.
func (v Value) Int(def int) int {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}

// Command is the unit of automation intent. Constructed by the extractor,
// validated once, consumed exactly once by the executor; immutable after
// validation.
type Command struct {
	Action   Action   `json:"action"`
	Selector string   `json:"selector,omitempty"`
	Value    Value    `json:"value,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Message  string   `json:"message,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// Rationale returns the model's free-text explanation, whichever field it
// chose to put it in.
func (c Command) Rationale() string {
	if c.Message != "" {
		return c.Message
	}
	return c.Reason
}

// HasCoordinates reports whether both normalized coordinates are present.
func (c Command) HasCoordinates() bool { return c.X != nil && c.Y != nil }

// Terminal reports whether the action ends the run without touching the
// executor.
func (c Command) Terminal() bool {
	switch c.Action {
	case ActionDone, ActionAnswer, ActionError:
		return true
	}
	return false
}

// ReadOnly reports whether the action observes the page without mutating it.
func (c Command) ReadOnly() bool {
	switch c.Action {
	case ActionGetText, ActionGetValue:
		return true
	}
	return false
}

// ValidationError names the field a command is missing for its action.
// A command that fails validation must never reach the executor.
type ValidationError struct {
	Action Action
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid %q command: %s", e.Action, e.Detail)
	}
	return fmt.Sprintf("invalid %q command: missing required field %q", e.Action, e.Field)
}

func missing(action Action, field string) *ValidationError {
	return &ValidationError{Action: action, Field: field}
}

func invalid(action Action, detail string) *ValidationError {
	return &ValidationError{Action: action, Detail: detail}
}

// Validate enforces the per-action required fields and the exclusive
// targeting invariant: a command targets via selector, via coordinates, or
// not at all, never both.
func (c Command) Validate() error {
	if c.Action == "" {
		return missing(c.Action, "action")
	}

	if c.Selector != "" && (c.X != nil || c.Y != nil) {
		return invalid(c.Action, "selector and coordinates are mutually exclusive")
	}
	if (c.X == nil) != (c.Y == nil) {
		return invalid(c.Action, "coordinate targeting requires both x and y")
	}
	if c.HasCoordinates() {
		if *c.X < 0 || *c.X > 1 || *c.Y < 0 || *c.Y > 1 {
			return invalid(c.Action, "coordinates must be normalized to [0,1]")
		}
	}

	switch c.Action {
	case ActionClick:
		if c.Selector == "" && !c.HasCoordinates() {
			return missing(c.Action, "selector")
		}
	case ActionTypeInput:
		if c.Selector == "" && !c.HasCoordinates() {
			return missing(c.Action, "selector")
		}
		if c.Value == "" {
			return missing(c.Action, "value")
		}
	case ActionScroll, ActionWait, ActionDone:
		// value is optional for scroll and wait; done carries nothing.
	case ActionScrollToElement, ActionSubmit, ActionGetText, ActionGetValue:
		if c.Selector == "" {
			return missing(c.Action, "selector")
		}
	case ActionNavigate:
		if c.Value == "" {
			return missing(c.Action, "value")
		}
	case ActionAnswer:
		if c.Value == "" {
			return missing(c.Action, "value")
		}
	case ActionError:
		if c.Message == "" {
			return missing(c.Action, "message")
		}
	default:
		return invalid(c.Action, fmt.Sprintf("unknown action %q", c.Action))
	}

	return nil
}

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Outcome is the result of applying one command. An error outcome always
// carries a non-empty diagnostic message.
type Outcome struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Action  Action `json:"action,omitempty"`
}

func OK(action Action, message string) Outcome {
	return Outcome{Status: StatusOK, Message: message, Action: action}
}

func Errorf(action Action, format string, args ...any) Outcome {
	msg := fmt.Sprintf(format, args...)
	if msg == "" {
		msg = "unspecified execution error"
	}
	return Outcome{Status: StatusError, Message: msg, Action: action}
}

func (o Outcome) Failed() bool { return o.Status == StatusError }

// String renders the outcome the way it is recorded in conversation history.
func (o Outcome) String() string {
	if o.Message == "" {
		return fmt.Sprintf("%s %s", o.Action, o.Status)
	}
	return fmt.Sprintf("%s %s: %s", o.Action, o.Status, o.Message)
}
