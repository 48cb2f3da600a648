package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// PageSnapshot is the captured page state one planning step works from.
// Viewport dimensions are captured together with the screenshot so that
// coordinate commands planned against this snapshot denormalize against the
// same geometry.
type PageSnapshot struct {
	URL           string
	Title         string
	Text          string
	ScreenshotB64 string
	ViewportW     int64
	ViewportH     int64
}

// pageTextScript renders the visible page as compact text. Interactive
// elements carry a generated CSS selector so the model can target them with
// selector commands.
const pageTextScript = `(() => {
	const interactive = new Set(['a', 'button', 'input', 'textarea', 'select', 'option', 'form']);

	function cssPath(el) {
		if (el.id) return el.tagName.toLowerCase() + '#' + CSS.escape(el.id);
		const name = el.getAttribute('name');
		if (name) return el.tagName.toLowerCase() + '[name="' + name + '"]';
		const parts = [];
		let cur = el;
		while (cur && cur.nodeType === Node.ELEMENT_NODE && parts.length < 4) {
			let part = cur.tagName.toLowerCase();
			if (cur.id) {
				parts.unshift(part + '#' + CSS.escape(cur.id));
				break;
			}
			const parent = cur.parentElement;
			if (parent) {
				const siblings = Array.from(parent.children).filter(c => c.tagName === cur.tagName);
				if (siblings.length > 1) {
					part += ':nth-of-type(' + (siblings.indexOf(cur) + 1) + ')';
				}
			}
			parts.unshift(part);
			cur = parent;
		}
		return parts.join(' > ');
	}

	function visible(el) {
		if (!el.getBoundingClientRect) return false;
		const r = el.getBoundingClientRect();
		if (r.width <= 0 || r.height <= 0) return false;
		const s = window.getComputedStyle(el);
		return s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0';
	}

	function clean(t) {
		t = (t || '').replace(/\s+/g, ' ').trim();
		return t.length > 120 ? t.slice(0, 120) + '...' : t;
	}

	const lines = [];
	for (const el of document.querySelectorAll('h1,h2,h3,h4,p,li,label,a,button,input,textarea,select')) {
		if (!visible(el)) continue;
		const tag = el.tagName.toLowerCase();
		if (interactive.has(tag)) {
			let label = clean(el.innerText || el.value || el.getAttribute('aria-label') || el.getAttribute('placeholder'));
			const type = el.getAttribute('type');
			lines.push('<' + tag + (type ? ' type=' + type : '') + ' selector="' + cssPath(el) + '">' + (label ? ' ' + label : ''));
		} else {
			const text = clean(el.innerText);
			if (text.length > 2) lines.push(text);
		}
		if (lines.length > 800) break;
	}
	return lines.join('\n');
})()`

// Snapshot captures the current page state: URL, title, visible text with
// targeting selectors, a JPEG screenshot and the live viewport size.
func (s *Session) Snapshot() (*PageSnapshot, error) {
	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Second)
	defer cancel()

	snap := &PageSnapshot{}
	var dims []int64
	var shot []byte

	err := chromedp.Run(ctx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.Evaluate(pageTextScript, &snap.Text),
		chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &dims),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			shot, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(70).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("capture snapshot: %w", err)
	}

	if len(dims) == 2 {
		snap.ViewportW, snap.ViewportH = dims[0], dims[1]
	}
	snap.ScreenshotB64 = base64.StdEncoding.EncodeToString(shot)

	s.logger.Debug("snapshot captured",
		zap.String("url", snap.URL),
		zap.Int("text_len", len(snap.Text)),
		zap.Int64("viewport_w", snap.ViewportW),
		zap.Int64("viewport_h", snap.ViewportH),
	)
	return snap, nil
}
