package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vkotenko/go-web-pilot/internal/llm"
	"github.com/vkotenko/go-web-pilot/internal/schema"
)

// reporter mirrors loop decisions onto the debug-log channel.
type reporter struct {
	logger *zap.Logger
}

func newReporter(logger *zap.Logger) *reporter {
	return &reporter{logger: logger}
}

func (r *reporter) logDecision(step int, url string, cmd schema.Command) {
	r.logger.Info("model decision",
		zap.Int("step", step),
		zap.String("url", url),
		zap.String("action", string(cmd.Action)),
		zap.String("selector", cmd.Selector),
		zap.String("value", cmd.Value.String()),
		zap.String("rationale", cmd.Rationale()),
	)
}

func (r *reporter) logOutcome(step int, out schema.Outcome) {
	fields := []zap.Field{
		zap.Int("step", step),
		zap.String("action", string(out.Action)),
		zap.String("status", string(out.Status)),
		zap.String("message", out.Message),
	}
	if out.Failed() {
		r.logger.Warn("action outcome", fields...)
		return
	}
	r.logger.Info("action outcome", fields...)
}

func (r *reporter) finish(res *RunResult) {
	r.logger.Info("run finished",
		zap.String("run_id", res.RunID),
		zap.String("termination", string(res.Termination)),
		zap.String("message", res.Message),
		zap.Int("steps", res.Steps),
		zap.Duration("duration", res.Duration),
	)
}

// Summarize asks the model for a human-readable account of a finished run.
// Best-effort: a summary failure comes back as placeholder text, never as a
// run error.
func Summarize(ctx context.Context, client llm.Client, res *RunResult, finalURL string) string {
	steps := make([]string, 0, len(res.History))
	for _, t := range res.History {
		steps = append(steps, string(t.Role)+": "+t.Content)
	}
	resp, err := client.Generate(ctx, llm.Request{
		System: llm.SummarySystemPrompt,
		Prompt: llm.BuildSummaryPrompt(llm.SummaryInput{
			Goal:       res.Goal,
			ExitReason: string(res.Termination),
			Duration:   res.Duration.String(),
			FinalURL:   finalURL,
			Steps:      steps,
		}),
	})
	if err != nil {
		return fmt.Sprintf("(failed to generate summary: %v)", err)
	}
	return resp.Text
}
