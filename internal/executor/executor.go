// Package executor applies validated commands to the live page. It is the
// only component with direct page access; everything it reports crosses
// back over the relay as a tagged outcome, never as a raw fault.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/vkotenko/go-web-pilot/internal/browser"
	"github.com/vkotenko/go-web-pilot/internal/relay"
	"github.com/vkotenko/go-web-pilot/internal/schema"
)

// opTimeout bounds a single page operation so a hung evaluate cannot stall
// the loop forever.
const opTimeout = 15 * time.Second

type Executor struct {
	ctx    context.Context
	logger *zap.Logger
}

var _ relay.Target = (*Executor)(nil)

// New binds an executor to a browser session's tab.
func New(session *browser.Session, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{ctx: session.Ctx(), logger: logger}
}

// agentReply mirrors the {status, message} shape the in-page agent answers
// with.
type agentReply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Establish injects the in-page execution agent. Idempotent: the script is
// a no-op when the agent is already installed.
func (e *Executor) Establish(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(e.ctx, opTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(agentScript, nil)); err != nil {
		return fmt.Errorf("inject execution agent: %w", err)
	}
	return nil
}

// Deliver executes one command against the page. Command-level failures
// (selector not found, no element at point, missing required field) come
// back as error outcomes with a nil error; only transport-level failures
// (agent missing, CDP error) return a non-nil error so the relay can retry.
func (e *Executor) Deliver(ctx context.Context, cmd schema.Command) (out schema.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor panic recovered", zap.Any("panic", r))
			out = schema.Errorf(cmd.Action, "execution fault: %v", r)
			err = nil
		}
	}()

	if verr := cmd.Validate(); verr != nil {
		return schema.Errorf(cmd.Action, "%v", verr), nil
	}
	if cmd.Terminal() {
		return schema.Errorf(cmd.Action, "terminal action %q is not executable", cmd.Action), nil
	}

	switch cmd.Action {
	case schema.ActionWait:
		return e.wait(ctx, cmd)
	case schema.ActionNavigate:
		return e.navigate(cmd), nil
	case schema.ActionScroll:
		return e.callAgent(cmd, map[string]any{
			"action": "scroll",
			"amount": cmd.Value.Int(schema.DefaultScrollPx),
		})
	case schema.ActionClick, schema.ActionTypeInput:
		if cmd.HasCoordinates() {
			return e.coordinateCommand(cmd)
		}
		return e.callAgent(cmd, map[string]any{
			"action":   string(cmd.Action),
			"selector": cmd.Selector,
			"value":    cmd.Value.String(),
		})
	case schema.ActionScrollToElement, schema.ActionSubmit, schema.ActionGetText, schema.ActionGetValue:
		return e.callAgent(cmd, map[string]any{
			"action":   string(cmd.Action),
			"selector": cmd.Selector,
		})
	default:
		return schema.Errorf(cmd.Action, "unknown action %q", cmd.Action), nil
	}
}

// wait suspends the response for the requested duration. This is the one
// action whose outcome is delivered after a delay rather than immediately.
func (e *Executor) wait(ctx context.Context, cmd schema.Command) (schema.Outcome, error) {
	ms := cmd.Value.Int(schema.DefaultWaitMs)
	if ms < 0 {
		ms = schema.DefaultWaitMs
	}
	d := time.Duration(ms) * time.Millisecond
	select {
	case <-time.After(d):
		return schema.OK(cmd.Action, fmt.Sprintf("waited %dms", ms)), nil
	case <-ctx.Done():
		return schema.Errorf(cmd.Action, "wait cancelled: %v", ctx.Err()), nil
	}
}

// navigate replaces the page location. The navigation tears down the
// in-page agent, so the outcome is best-effort: a navigation that started
// is reported ok even if confirmation was lost with the old document.
func (e *Executor) navigate(cmd schema.Command) schema.Outcome {
	url := cmd.Value.String()
	runCtx, cancel := context.WithTimeout(e.ctx, opTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		if runCtx.Err() != nil {
			// The command reached the browser; the load is simply still in
			// flight. Report best-effort success.
			return schema.OK(cmd.Action, fmt.Sprintf("navigation to %s started", url))
		}
		return schema.Errorf(cmd.Action, "navigate to %s: %v", url, err)
	}
	return schema.OK(cmd.Action, fmt.Sprintf("navigated to %s", url))
}

// coordinateCommand denormalizes (x,y) against the live viewport and
// targets the topmost element at that point.
func (e *Executor) coordinateCommand(cmd schema.Command) (schema.Outcome, error) {
	w, h, err := e.viewport()
	if err != nil {
		return schema.Outcome{}, err
	}
	if w <= 0 || h <= 0 {
		return schema.Errorf(cmd.Action, "viewport has no area (%dx%d)", w, h), nil
	}

	px, py := Denormalize(*cmd.X, *cmd.Y, w, h)
	px, py = ClampPoint(px, py, w, h)

	e.logger.Debug("coordinate target resolved",
		zap.Float64("nx", *cmd.X), zap.Float64("ny", *cmd.Y),
		zap.Float64("px", px), zap.Float64("py", py),
	)

	return e.callAgent(cmd, map[string]any{
		"action": string(cmd.Action),
		"px":     px,
		"py":     py,
		"value":  cmd.Value.String(),
	})
}

func (e *Executor) viewport() (int64, int64, error) {
	runCtx, cancel := context.WithTimeout(e.ctx, opTimeout)
	defer cancel()

	var dims []int64
	if err := chromedp.Run(runCtx,
		chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &dims),
	); err != nil {
		return 0, 0, fmt.Errorf("read viewport: %w", err)
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("unexpected viewport response")
	}
	return dims[0], dims[1], nil
}

// callAgent routes one command through the in-page agent. A null reply
// means the agent is not installed, which is the relay's cue to
// re-establish the execution context.
func (e *Executor) callAgent(cmd schema.Command, payload map[string]any) (schema.Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return schema.Outcome{}, fmt.Errorf("encode command: %w", err)
	}
	script := fmt.Sprintf(
		`window.__pilotAgent ? window.__pilotAgent.handle(%s) : null`, string(body))

	runCtx, cancel := context.WithTimeout(e.ctx, opTimeout)
	defer cancel()

	var reply *agentReply
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &reply)); err != nil {
		return schema.Outcome{}, fmt.Errorf("evaluate command: %w", err)
	}
	if reply == nil || reply.Status == "" {
		return schema.Outcome{}, relay.ErrNoListener
	}

	if reply.Status == string(schema.StatusOK) {
		return schema.OK(cmd.Action, reply.Message), nil
	}
	return schema.Errorf(cmd.Action, "%s", reply.Message), nil
}
