// Package agent drives the action loop: compose a prompt from the goal,
// the conversation history and a fresh page snapshot; obtain a model
// reply; extract and validate a command; deliver it over the relay; record
// the observation; repeat until a terminal action or an unrecoverable
// failure.
package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkotenko/go-web-pilot/internal/browser"
	"github.com/vkotenko/go-web-pilot/internal/config"
	"github.com/vkotenko/go-web-pilot/internal/extractor"
	"github.com/vkotenko/go-web-pilot/internal/llm"
	"github.com/vkotenko/go-web-pilot/internal/schema"
)

// State is the loop's position in one run.
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateDispatching
	StateObserving
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateDispatching:
		return "dispatching"
	case StateObserving:
		return "observing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Termination says why a run ended.
type Termination string

const (
	// TerminationDone: the model signalled the goal is achieved.
	TerminationDone Termination = "done"
	// TerminationAnswer: the model answered the goal's question.
	TerminationAnswer Termination = "answer"
	// TerminationError: the model signalled the goal cannot be achieved.
	TerminationError Termination = "error"
	// TerminationFailure: an infrastructure failure ended the run.
	TerminationFailure Termination = "failure"
	// TerminationInterrupted: a stop request was honored.
	TerminationInterrupted Termination = "interrupted"
	// TerminationMaxSteps: the iteration cap fired.
	TerminationMaxSteps Termination = "max_steps"
)

// Snapshotter captures current page state for a planning step.
type Snapshotter interface {
	Snapshot() (*browser.PageSnapshot, error)
}

// Deliverer moves a command to the execution context. Satisfied by
// relay.Relay.
type Deliverer interface {
	Deliver(ctx context.Context, targetID string, cmd schema.Command) (schema.Outcome, error)
}

// RunSpec describes one automation run.
type RunSpec struct {
	TargetID string
	Goal     string
	Snapshot Snapshotter
}

// RunResult is the record of a finished run.
type RunResult struct {
	RunID       string
	Goal        string
	Termination Termination
	// Message carries the terminal detail: the answer text, the model's
	// error explanation, or the infrastructure failure.
	Message  string
	Steps    int
	Duration time.Duration
	History  []llm.Turn
}

type run struct {
	id      string
	goal    string
	history *History
	state   State
	stopped atomic.Bool
	// failures counts consecutive extraction failures; any extracted
	// command resets it.
	failures int
	steps    int
}

// Loop owns run state per target. One run per target at a time; a second
// goal is rejected, not queued.
type Loop struct {
	client   llm.Client
	relay    Deliverer
	cfg      config.AgentConfig
	stream   bool
	observer Observer
	logger   *zap.Logger

	mu   sync.Mutex
	runs map[string]*run
}

func NewLoop(client llm.Client, deliver Deliverer, cfg config.AgentConfig, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		client: client,
		relay:  deliver,
		cfg:    cfg,
		logger: logger,
		runs:   make(map[string]*run),
	}
}

// SetObserver installs the status/stream callbacks.
func (l *Loop) SetObserver(o Observer) { l.observer = o }

// EnableStreaming forwards incremental model output to the observer.
// Advisory only; extraction still runs on the complete reply.
func (l *Loop) EnableStreaming(on bool) { l.stream = on }

// Stop requests a cooperative stop of the run against targetID. Honored at
// the top of the next loop iteration; in-flight model or relay calls are
// not aborted but their results are discarded.
func (l *Loop) Stop(targetID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.runs[targetID]; ok {
		r.stopped.Store(true)
	}
}

// StopAll stops every active run.
func (l *Loop) StopAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.runs {
		r.stopped.Store(true)
	}
}

// Running reports whether a run is active for targetID.
func (l *Loop) Running(targetID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.runs[targetID]
	return ok && r.state != StateTerminated
}

func (l *Loop) begin(spec RunSpec) (*run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.runs[spec.TargetID]; ok && existing.state != StateTerminated {
		return nil, ErrRunActive
	}
	r := &run{
		id:      uuid.NewString(),
		goal:    spec.Goal,
		history: NewHistory(l.cfg.MaxHistoryTurns),
		state:   StatePlanning,
	}
	l.runs[spec.TargetID] = r
	return r, nil
}

func (l *Loop) end(targetID string, r *run) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r.state = StateTerminated
	delete(l.runs, targetID)
}

// Run executes one automation run to completion. The returned error is
// non-nil only for infrastructure failures (model service, transport,
// caps, interruption); model-signalled terminals, including the error
// action, are reported through RunResult.Termination.
func (l *Loop) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	if spec.Goal == "" {
		return nil, fmt.Errorf("empty goal")
	}
	if spec.Snapshot == nil {
		return nil, fmt.Errorf("run spec has no snapshotter")
	}

	r, err := l.begin(spec)
	if err != nil {
		return nil, err
	}
	defer l.end(spec.TargetID, r)

	rep := newReporter(l.logger)
	start := time.Now()

	result := func(t Termination, msg string) *RunResult {
		res := &RunResult{
			RunID:       r.id,
			Goal:        spec.Goal,
			Termination: t,
			Message:     msg,
			Steps:       r.steps,
			Duration:    time.Since(start).Truncate(time.Millisecond),
			History:     r.history.Turns(),
		}
		rep.finish(res)
		return res
	}

	l.logger.Info("run started",
		zap.String("run_id", r.id),
		zap.String("target", spec.TargetID),
		zap.String("goal", spec.Goal),
	)

	for step := 1; step <= l.cfg.MaxSteps; step++ {
		if r.stopped.Load() || ctx.Err() != nil {
			return result(TerminationInterrupted, "stop requested"), ErrInterrupted
		}
		r.steps = step

		// Planning: fresh snapshot, then one model call.
		r.state = StatePlanning
		snap, err := spec.Snapshot.Snapshot()
		if err != nil {
			msg := fmt.Sprintf("page snapshot failed: %v", err)
			l.observer.status(StatusEvent{Status: schema.StatusError, Message: msg})
			return result(TerminationFailure, msg), err
		}

		reply, err := l.invokeModel(ctx, r, snap)
		if err != nil {
			msg := err.Error()
			l.observer.status(StatusEvent{Status: schema.StatusError, Message: msg})
			return result(TerminationFailure, msg), err
		}
		if r.stopped.Load() {
			// The reply arrived after a stop request; discard it.
			return result(TerminationInterrupted, "stop requested"), ErrInterrupted
		}

		// Dispatching: recover a command from the reply.
		r.state = StateDispatching
		cmd, err := extractor.Extract(reply)
		if err != nil {
			if done, res, runErr := l.handleExtractionFailure(r, reply, err, result); done {
				return res, runErr
			}
			continue
		}
		r.failures = 0
		rep.logDecision(step, snap.URL, cmd)

		// Terminal commands carry required fields too; validate before the
		// terminal branch so a malformed done/answer/error is rejected
		// instead of ending the run with a defaulted message.
		if verr := cmd.Validate(); verr != nil {
			out := schema.Errorf(cmd.Action, "%v", verr)
			if l.observe(r, reply, out, rep, step) {
				return result(TerminationFailure, out.Message), fmt.Errorf("command rejected: %w", verr)
			}
			continue
		}

		if cmd.Terminal() {
			return l.handleTerminal(r, reply, cmd, result)
		}

		out, derr := l.relay.Deliver(ctx, spec.TargetID, cmd)
		if derr != nil {
			// Transport exhausted its budget; fatal for the run.
			r.history.AddReply(reply)
			r.history.AddObservation(out)
			l.observer.status(StatusEvent{Status: out.Status, Message: out.Message, Action: out.Action})
			return result(TerminationFailure, out.Message), derr
		}

		// Observing: record and decide continue/stop.
		if l.observe(r, reply, out, rep, step) {
			return result(TerminationFailure, out.Message), fmt.Errorf("action failed: %s", out.Message)
		}

		if l.cfg.StepDelay > 0 {
			select {
			case <-time.After(l.cfg.StepDelay):
			case <-ctx.Done():
			}
		}
	}

	return result(TerminationMaxSteps, fmt.Sprintf("no terminal action after %d steps", l.cfg.MaxSteps)), ErrMaxSteps
}

func (l *Loop) invokeModel(ctx context.Context, r *run, snap *browser.PageSnapshot) (string, error) {
	req := llm.Request{
		System: llm.SystemPrompt,
		Prompt: llm.BuildUserPrompt(llm.PromptInput{
			Goal:     r.goal,
			URL:      snap.URL,
			Title:    snap.Title,
			PageText: snap.Text,
		}),
		History:  r.history.Turns(),
		ImageB64: snap.ScreenshotB64,
	}

	var resp *llm.Response
	var err error
	if l.stream {
		resp, err = l.client.GenerateStream(ctx, req, l.observer.stream)
	} else {
		resp, err = l.client.Generate(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// handleExtractionFailure records the malformed reply as a failed attempt
// and loops back to planning, bounded by the consecutive-failure cap.
func (l *Loop) handleExtractionFailure(
	r *run, reply string, err error,
	result func(Termination, string) *RunResult,
) (bool, *RunResult, error) {
	r.failures++
	note := fmt.Sprintf("previous reply contained no usable command (%v); respond with a single JSON action object", err)
	r.history.AddReply(reply)
	r.history.AddNote(note)
	l.observer.status(StatusEvent{Status: schema.StatusError, Message: err.Error()})
	l.logger.Warn("extraction failure",
		zap.String("run_id", r.id),
		zap.Int("consecutive", r.failures),
		zap.Error(err),
	)

	if l.cfg.MaxExtractionFailures > 0 && r.failures >= l.cfg.MaxExtractionFailures {
		msg := fmt.Sprintf("%d consecutive unparseable model replies; last: %v", r.failures, err)
		return true, result(TerminationFailure, msg), ErrTooManyExtractionFailures
	}
	return false, nil, nil
}

// handleTerminal ends the run without dispatching to the executor.
func (l *Loop) handleTerminal(
	r *run, reply string, cmd schema.Command,
	result func(Termination, string) *RunResult,
) (*RunResult, error) {
	var t Termination
	var status schema.Status
	var msg string

	switch cmd.Action {
	case schema.ActionDone:
		t, status = TerminationDone, schema.StatusOK
		msg = cmd.Rationale()
		if msg == "" {
			msg = "goal achieved"
		}
	case schema.ActionAnswer:
		t, status = TerminationAnswer, schema.StatusOK
		msg = cmd.Value.String()
	default:
		// Validation guarantees the error action carries a message.
		t, status = TerminationError, schema.StatusError
		msg = cmd.Message
	}

	r.history.AddReply(reply)
	r.history.AddObservation(schema.Outcome{Status: status, Message: msg, Action: cmd.Action})
	l.observer.status(StatusEvent{Status: status, Message: msg, Action: cmd.Action})
	return result(t, msg), nil
}

// observe appends the outcome to history and reports it. Returns true when
// the run must terminate because the outcome failed and halt-on-error is
// configured.
func (l *Loop) observe(r *run, reply string, out schema.Outcome, rep *reporter, step int) bool {
	r.state = StateObserving
	r.history.AddReply(reply)
	r.history.AddObservation(out)
	l.observer.status(StatusEvent{Status: out.Status, Message: out.Message, Action: out.Action})
	rep.logOutcome(step, out)

	return out.Failed() && l.cfg.HaltOnError
}
