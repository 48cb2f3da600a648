// Package relay moves validated commands from the planning side to the
// execution context with at-least-once delivery. Any hop can fail silently
// (the page navigated away, the injected agent is gone), so delivery is
// retried within a bounded budget, with one re-establishment of the
// execution context in between.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vkotenko/go-web-pilot/internal/config"
	"github.com/vkotenko/go-web-pilot/internal/schema"
)

// ErrNoListener is returned by a Target when the execution context has no
// registered command handler (e.g. the page reloaded and lost the injected
// agent).
var ErrNoListener = errors.New("no command listener in execution context")

// ErrDeliveryFailed marks a relay-level failure: the retry budget was
// exhausted without a delivery. Fatal for the current run.
var ErrDeliveryFailed = errors.New("command delivery failed")

// Target is one addressable execution context.
type Target interface {
	// Deliver hands one command to the execution context. A non-nil error
	// is a transport-level failure; command-level failures come back as
	// error outcomes with a nil error.
	Deliver(ctx context.Context, cmd schema.Command) (schema.Outcome, error)
	// Establish (re-)injects the execution capability into the context.
	Establish(ctx context.Context) error
}

// Registry maps target IDs to their execution contexts.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]Target
}

func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]Target)}
}

func (r *Registry) Register(id string, t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[id] = t
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, id)
}

func (r *Registry) Lookup(id string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	return t, ok
}

type Relay struct {
	registry    *Registry
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger
}

func New(registry *Registry, cfg config.RelayConfig, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		registry:    registry,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      logger,
	}
}

// Deliver attempts to hand cmd to the execution context for targetID.
// A missing listener triggers one re-establishment of the context; each
// retry after re-establishment waits the configured delay so the context
// can finish initializing. Budget exhaustion yields a relay-level error
// outcome carrying the last transport diagnostic, paired with
// ErrDeliveryFailed so callers can tell a dead transport from a command
// that executed and failed.
func (r *Relay) Deliver(ctx context.Context, targetID string, cmd schema.Command) (schema.Outcome, error) {
	target, ok := r.registry.Lookup(targetID)
	if !ok {
		return schema.Errorf(cmd.Action, "no execution context registered for target %s", targetID),
			fmt.Errorf("%w: unknown target %s", ErrDeliveryFailed, targetID)
	}

	var lastErr error
	reestablished := false

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		// The delay exists to let a freshly re-injected context finish
		// initializing; retries before any re-establishment go out
		// immediately.
		if attempt > 1 && reestablished {
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return schema.Errorf(cmd.Action, "delivery cancelled: %v", ctx.Err()),
					fmt.Errorf("%w: %v", ErrDeliveryFailed, ctx.Err())
			}
		}

		out, err := target.Deliver(ctx, cmd)
		if err == nil {
			return out, nil
		}
		lastErr = err
		r.logger.Warn("command delivery failed",
			zap.String("target", targetID),
			zap.String("action", string(cmd.Action)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if errors.Is(err, ErrNoListener) && !reestablished {
			if estErr := target.Establish(ctx); estErr != nil {
				lastErr = estErr
				r.logger.Warn("execution context re-establishment failed",
					zap.String("target", targetID), zap.Error(estErr))
			} else {
				r.logger.Info("execution context re-established", zap.String("target", targetID))
			}
			reestablished = true
		}

		if ctx.Err() != nil {
			return schema.Errorf(cmd.Action, "delivery cancelled: %v", ctx.Err()),
				fmt.Errorf("%w: %v", ErrDeliveryFailed, ctx.Err())
		}
	}

	return schema.Errorf(cmd.Action,
			"delivery to target %s failed after %d attempts: %v", targetID, r.maxAttempts, lastErr),
		fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailed, r.maxAttempts, lastErr)
}
