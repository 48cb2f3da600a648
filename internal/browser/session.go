// Package browser owns the Chrome session a run operates against. One
// session is one tab; the session's target ID is the key every other
// component uses to address it.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/vkotenko/go-web-pilot/internal/config"
)

type Session struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	navTimeout  time.Duration
	logger      *zap.Logger
}

func NewSession(cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 800),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Force the browser to start now so a broken Chrome install fails here
	// rather than mid-run.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Session{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		navTimeout:  cfg.NavTimeout,
		logger:      logger,
	}, nil
}

// Ctx returns the chromedp context bound to this session's tab.
func (s *Session) Ctx() context.Context { return s.ctx }

// TargetID identifies the tab for relay addressing.
func (s *Session) TargetID() string {
	if c := chromedp.FromContext(s.ctx); c != nil && c.Target != nil {
		return string(c.Target.TargetID)
	}
	return ""
}

// Navigate loads url and waits for the document to be ready, bounded by the
// configured navigation timeout.
func (s *Session) Navigate(url string) error {
	ctx := s.ctx
	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}
	if err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	s.logger.Debug("navigation complete", zap.String("url", url))
	return nil
}

func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}
