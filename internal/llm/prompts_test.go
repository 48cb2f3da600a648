package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkotenko/go-web-pilot/internal/config"
)

func TestBuildUserPrompt(t *testing.T) {
	p := BuildUserPrompt(PromptInput{
		Goal:     "find the pricing page",
		URL:      "https://example.com",
		Title:    "Example",
		PageText: "Welcome to Example",
	})

	assert.Contains(t, p, "GOAL: find the pricing page")
	assert.Contains(t, p, "URL: https://example.com")
	assert.Contains(t, p, "TITLE: Example")
	assert.Contains(t, p, "Welcome to Example")
}

func TestBuildUserPromptTruncatesPageText(t *testing.T) {
	p := BuildUserPrompt(PromptInput{
		Goal:     "g",
		URL:      "u",
		PageText: strings.Repeat("a", safePageLimit+1000),
	})

	assert.Contains(t, p, "[TRUNCATED]")
	assert.Less(t, len(p), safePageLimit+1000)
}

func TestBuildUserPromptOmitsEmptySections(t *testing.T) {
	p := BuildUserPrompt(PromptInput{Goal: "g", URL: "u"})
	assert.NotContains(t, p, "TITLE:")
	assert.NotContains(t, p, "PAGE:")
}

func TestNewClientByProvider(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: "ollama", Endpoint: "http://localhost:11434", Model: "m"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, c)

	c, err = New(config.LLMConfig{Provider: "openai", Endpoint: "", Model: "gpt-4o", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = New(config.LLMConfig{Provider: "anthropic"}, nil)
	require.Error(t, err)
}
