package agent

import (
	"os"
	"os/signal"

	"go.uber.org/zap"
)

// SignalController translates SIGINT into a cooperative stop of every
// active run. A second SIGINT is left to the default handler so a stuck
// run can still be killed.
type SignalController struct {
	ch   chan os.Signal
	done chan struct{}
}

func NewSignalController(loop *Loop, logger *zap.Logger) *SignalController {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})

	go func() {
		select {
		case <-ch:
			logger.Info("interrupt received, stopping runs")
			loop.StopAll()
			signal.Stop(ch)
		case <-done:
		}
	}()

	return &SignalController{ch: ch, done: done}
}

func (s *SignalController) Close() {
	signal.Stop(s.ch)
	close(s.done)
}
