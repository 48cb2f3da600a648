package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkotenko/go-web-pilot/internal/browser"
	"github.com/vkotenko/go-web-pilot/internal/config"
	"github.com/vkotenko/go-web-pilot/internal/relay"
	"github.com/vkotenko/go-web-pilot/internal/schema"
)

const fixturePage = `<!doctype html>
<html>
<head><title>fixture</title></head>
<body style="height:3000px">
	<form id="f"><input id="q" name="q"></form>
	<button id="go" onclick="this.textContent='pressed'">go</button>
	<p id="out">ready</p>
	<script>
		document.getElementById('q').addEventListener('input', () => {
			document.getElementById('out').textContent = 'input seen';
		});
	</script>
</body>
</html>`

func fptr(v float64) *float64 { return &v }

// startFixture boots a headless tab on a local test page and injects the
// execution agent. Skipped when no Chrome install is available.
func startFixture(t *testing.T) (*browser.Session, *Executor) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(fixturePage))
	}))
	t.Cleanup(srv.Close)

	sess, err := browser.NewSession(config.BrowserConfig{Headless: true, NavTimeout: 30 * time.Second}, nil)
	if err != nil {
		t.Skipf("browser unavailable: %v", err)
	}
	t.Cleanup(sess.Close)
	require.NoError(t, sess.Navigate(srv.URL))

	exec := New(sess, nil)
	require.NoError(t, exec.Establish(context.Background()))
	return sess, exec
}

func stubElementFromPoint(t *testing.T, sess *browser.Session, body string) {
	t.Helper()
	script := `(() => { document.elementFromPoint = ` + body + `; })()`
	require.NoError(t, chromedp.Run(sess.Ctx(), chromedp.Evaluate(script, nil)))
}

func pageText(t *testing.T, exec *Executor, selector string) string {
	t.Helper()
	out, err := exec.Deliver(context.Background(), schema.Command{
		Action:   schema.ActionGetText,
		Selector: selector,
	})
	require.NoError(t, err)
	require.False(t, out.Failed(), out.Message)
	return out.Message
}

func TestDeliverCoordinateMiss(t *testing.T) {
	sess, exec := startFixture(t)
	stubElementFromPoint(t, sess, `() => null`)

	out, err := exec.Deliver(context.Background(), schema.Command{
		Action: schema.ActionClick,
		X:      fptr(0.5),
		Y:      fptr(0.5),
	})
	require.NoError(t, err, "a missed point is a command failure, not a transport failure")
	assert.True(t, out.Failed())
	assert.Equal(t, "no element at coordinates", out.Message)
}

func TestDeliverCoordinateClick(t *testing.T) {
	sess, exec := startFixture(t)
	stubElementFromPoint(t, sess, `() => document.getElementById('go')`)

	out, err := exec.Deliver(context.Background(), schema.Command{
		Action: schema.ActionClick,
		X:      fptr(0.5),
		Y:      fptr(0.5),
	})
	require.NoError(t, err)
	require.False(t, out.Failed(), out.Message)
	assert.Equal(t, "pressed", pageText(t, exec, "#go"))
}

func TestDeliverClickBySelector(t *testing.T) {
	_, exec := startFixture(t)

	out, err := exec.Deliver(context.Background(), schema.Command{
		Action:   schema.ActionClick,
		Selector: "#go",
	})
	require.NoError(t, err)
	require.False(t, out.Failed(), out.Message)
	assert.Equal(t, "pressed", pageText(t, exec, "#go"))
}

func TestDeliverTypeFiresInputEvents(t *testing.T) {
	_, exec := startFixture(t)

	out, err := exec.Deliver(context.Background(), schema.Command{
		Action:   schema.ActionTypeInput,
		Selector: "#q",
		Value:    "golang",
	})
	require.NoError(t, err)
	require.False(t, out.Failed(), out.Message)

	val, err := exec.Deliver(context.Background(), schema.Command{
		Action:   schema.ActionGetValue,
		Selector: "#q",
	})
	require.NoError(t, err)
	assert.Equal(t, "golang", val.Message)
	// The page's input listener saw the synthetic event.
	assert.Equal(t, "input seen", pageText(t, exec, "#out"))
}

func TestDeliverSelectorMiss(t *testing.T) {
	_, exec := startFixture(t)

	out, err := exec.Deliver(context.Background(), schema.Command{
		Action:   schema.ActionClick,
		Selector: "#absent",
	})
	require.NoError(t, err)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "#absent")
}

func TestDeliverScroll(t *testing.T) {
	sess, exec := startFixture(t)

	out, err := exec.Deliver(context.Background(), schema.Command{
		Action: schema.ActionScroll,
		Value:  "300",
	})
	require.NoError(t, err)
	require.False(t, out.Failed(), out.Message)

	var y float64
	require.NoError(t, chromedp.Run(sess.Ctx(), chromedp.Evaluate(`window.scrollY`, &y)))
	assert.Greater(t, y, 0.0)
}

func TestDeliverWait(t *testing.T) {
	_, exec := startFixture(t)

	start := time.Now()
	out, err := exec.Deliver(context.Background(), schema.Command{
		Action: schema.ActionWait,
		Value:  "50",
	})
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDeliverTerminalActionRejected(t *testing.T) {
	_, exec := startFixture(t)

	out, err := exec.Deliver(context.Background(), schema.Command{Action: schema.ActionDone})
	require.NoError(t, err)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "not executable")
}

func TestDeliverMissingListenerAfterNavigation(t *testing.T) {
	sess, exec := startFixture(t)

	// A fresh document drops the injected agent.
	require.NoError(t, chromedp.Run(sess.Ctx(), chromedp.Reload()))
	require.NoError(t, chromedp.Run(sess.Ctx(), chromedp.WaitReady("body", chromedp.ByQuery)))

	_, err := exec.Deliver(context.Background(), schema.Command{
		Action:   schema.ActionClick,
		Selector: "#go",
	})
	require.ErrorIs(t, err, relay.ErrNoListener)

	require.NoError(t, exec.Establish(context.Background()))
	out, err := exec.Deliver(context.Background(), schema.Command{
		Action:   schema.ActionClick,
		Selector: "#go",
	})
	require.NoError(t, err)
	assert.False(t, out.Failed(), out.Message)
}
