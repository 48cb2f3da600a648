package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkotenko/go-web-pilot/internal/schema"
)

func TestExtractBareJSON(t *testing.T) {
	cmd, err := Extract(`{"action":"click","selector":"#submit"}`)
	require.NoError(t, err)
	assert.Equal(t, schema.ActionClick, cmd.Action)
	assert.Equal(t, "#submit", cmd.Selector)
}

func TestExtractFencedJSON(t *testing.T) {
	raw := "Here is my next step:\n```json\n{\"action\": \"type\", \"selector\": \"input[name=q]\", \"value\": \"golang\"}\n```\nLet me know how it goes."
	cmd, err := Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, schema.ActionTypeInput, cmd.Action)
	assert.Equal(t, "golang", cmd.Value.String())
}

func TestExtractFenceWithoutLanguageTag(t *testing.T) {
	raw := "```\n{\"action\":\"scroll\",\"value\":500}\n```"
	cmd, err := Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, schema.ActionScroll, cmd.Action)
	assert.Equal(t, 500, cmd.Value.Int(0))
}

func TestExtractProseWrapped(t *testing.T) {
	raw := `I should click the login button now. {"action":"click","selector":".login-btn"} That should open the form.`
	cmd, err := Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, schema.ActionClick, cmd.Action)
	assert.Equal(t, ".login-btn", cmd.Selector)
}

func TestExtractNoJSON(t *testing.T) {
	_, err := Extract("I am not sure what to do next, the page looks empty.")
	require.Error(t, err)
	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.True(t, strings.HasPrefix(xerr.Context, "I am not sure"))
}

func TestExtractMissingAction(t *testing.T) {
	_, err := Extract(`{"selector":"#submit","value":"ok"}`)
	require.Error(t, err)
	var xerr *ExtractionError
	assert.ErrorAs(t, err, &xerr)
}

func TestExtractErrorContextBounded(t *testing.T) {
	raw := strings.Repeat("x", 500)
	_, err := Extract(raw)
	require.Error(t, err)
	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Len(t, xerr.Context, 100)
}

func TestExtractEmptyInput(t *testing.T) {
	_, err := Extract("")
	require.Error(t, err)
	_, err = Extract("   \n\t ")
	require.Error(t, err)
}

func TestExtractNormalizedCoordinates(t *testing.T) {
	cmd, err := Extract(`{"action":"click","x":0.42,"y":0.87}`)
	require.NoError(t, err)
	require.True(t, cmd.HasCoordinates())
	assert.InDelta(t, 0.42, *cmd.X, 1e-9)
	assert.InDelta(t, 0.87, *cmd.Y, 1e-9)
}

func TestExtractTerminalActions(t *testing.T) {
	cmd, err := Extract("```json\n{\"action\":\"answer\",\"value\":\"The price is $42\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, schema.ActionAnswer, cmd.Action)
	assert.Equal(t, "The price is $42", cmd.Value.String())

	cmd, err = Extract(`{"action":"error","message":"blocked by a captcha"}`)
	require.NoError(t, err)
	assert.Equal(t, schema.ActionError, cmd.Action)
}
