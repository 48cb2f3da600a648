package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerateSingleShot(t *testing.T) {
	var gotPath string
	var gotBody ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"model":    "llama3.1",
			"response": `{"action":"done"}`,
			"done":     true,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1", "", 0, nil)
	resp, err := c.Generate(context.Background(), Request{System: "sys", Prompt: "what next"})
	require.NoError(t, err)

	assert.Equal(t, "/api/generate", gotPath)
	assert.Equal(t, "llama3.1", gotBody.Model)
	assert.Equal(t, "sys", gotBody.System)
	assert.Equal(t, "what next", gotBody.Prompt)
	assert.False(t, gotBody.Stream)
	assert.Equal(t, `{"action":"done"}`, resp.Text)
	assert.Equal(t, "llama3.1", resp.Model)
}

func TestOllamaGenerateWithHistoryUsesChat(t *testing.T) {
	var gotPath string
	var gotBody ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "reply"},
			"done":    true,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1", "", 0, nil)
	resp, err := c.Generate(context.Background(), Request{
		System: "sys",
		Prompt: "current page",
		History: []Turn{
			{Role: RoleAssistant, Content: `{"action":"click","selector":"#a"}`},
			{Role: RoleAssistant, Content: "OBSERVATION: click ok"},
		},
		ImageB64: "aGk=",
	})
	require.NoError(t, err)
	assert.Equal(t, "reply", resp.Text)

	assert.Equal(t, "/api/chat", gotPath)
	require.Len(t, gotBody.Messages, 4)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "assistant", gotBody.Messages[1].Role)
	last := gotBody.Messages[3]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "current page", last.Content)
	assert.Equal(t, []string{"aGk="}, last.Images)
}

func TestOllamaGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"llama3.1","response":"{\"action\":"}` + "\n"))
		w.Write([]byte(`{"response":"\"done\"}"}` + "\n"))
		w.Write([]byte(`{"done":true}` + "\n"))
	}))
	defer srv.Close()

	var chunks []string
	c := NewOllamaClient(srv.URL, "llama3.1", "", 0, nil)
	resp, err := c.GenerateStream(context.Background(), Request{Prompt: "p"}, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)

	assert.Equal(t, `{"action":"done"}`, resp.Text)
	assert.Equal(t, "llama3.1", resp.Model)
	assert.Len(t, chunks, 2)
}

func TestOllamaBearerHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"response": "ok", "done": true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m", "secret-key", 0, nil)
	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}

func TestOllamaStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m", "", 0, nil)
	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ServiceErrorStatus, se.Kind)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Contains(t, se.Detail, "model not found")
	assert.False(t, IsUnreachable(err))
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewOllamaClient(srv.URL, "m", "", 0, nil)
	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.Contains(t, err.Error(), "is the service running?")
}

func TestOllamaInBandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "out of memory"})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m", "", 0, nil)
	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ServiceErrorStatus, se.Kind)
	assert.Contains(t, se.Detail, "out of memory")
}

func TestOllamaListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "llama3.1:latest"},
				{"name": "llava:13b"},
			},
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m", "", 0, nil)
	names, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1:latest", "llava:13b"}, names)
}

func TestOllamaRequestModelOverride(t *testing.T) {
	var gotBody ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"response": "ok", "done": true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "default-model", "", 0, nil)
	_, err := c.Generate(context.Background(), Request{Model: "override", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "override", gotBody.Model)
}
