package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OllamaClient talks to an Ollama-compatible completion endpoint:
// /api/generate for single-shot prompts, /api/chat when history is
// replayed, /api/tags for model discovery. Streaming responses are
// newline-delimited JSON fragments terminated by done:true.
type OllamaClient struct {
	baseURL string
	model   string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

func NewOllamaClient(baseURL, model, apiKey string, timeout time.Duration, logger *zap.Logger) *OllamaClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		timeout: timeout,
		// The per-request bound comes from the context; the transport
		// itself stays unbounded so streaming replies are not cut off.
		client: &http.Client{},
		logger: logger,
	}
}

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	System string   `json:"system,omitempty"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Message  struct {
		Content string `json:"content"`
	} `json:"message"`
	Model string `json:"model"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func (r *ollamaResponse) text() string {
	if r.Response != "" {
		return r.Response
	}
	return r.Message.Content
}

func (c *OllamaClient) Generate(ctx context.Context, req Request) (*Response, error) {
	return c.generate(ctx, req, false, nil)
}

func (c *OllamaClient) GenerateStream(ctx context.Context, req Request, onChunk StreamFunc) (*Response, error) {
	return c.generate(ctx, req, true, onChunk)
}

func (c *OllamaClient) generate(ctx context.Context, req Request, stream bool, onChunk StreamFunc) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	path, body, err := c.buildBody(req, stream)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ServiceError{
			Kind:   ServiceErrorStatus,
			Status: resp.StatusCode,
			Detail: strings.TrimSpace(string(detail)),
		}
	}

	if stream {
		return c.readStream(resp.Body, onChunk)
	}
	return c.readSingle(resp.Body)
}

func (c *OllamaClient) buildBody(req Request, stream bool) (string, []byte, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	if len(req.History) > 0 {
		messages := make([]ollamaChatMessage, 0, len(req.History)+2)
		if req.System != "" {
			messages = append(messages, ollamaChatMessage{Role: "system", Content: req.System})
		}
		for _, t := range req.History {
			messages = append(messages, ollamaChatMessage{Role: string(t.Role), Content: t.Content})
		}
		last := ollamaChatMessage{Role: "user", Content: req.Prompt}
		if req.ImageB64 != "" {
			last.Images = []string{req.ImageB64}
		}
		messages = append(messages, last)

		body, err := json.Marshal(ollamaChatRequest{Model: model, Messages: messages, Stream: stream})
		return "/api/chat", body, err
	}

	greq := ollamaGenerateRequest{Model: model, System: req.System, Prompt: req.Prompt, Stream: stream}
	if req.ImageB64 != "" {
		greq.Images = []string{req.ImageB64}
	}
	body, err := json.Marshal(greq)
	return "/api/generate", body, err
}

func (c *OllamaClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{Kind: ServiceErrorUnreachable, Endpoint: c.baseURL, Err: err}
	}
	return resp, nil
}

func (c *OllamaClient) readSingle(body io.Reader) (*Response, error) {
	var out ollamaResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if out.Error != "" {
		return nil, &ServiceError{Kind: ServiceErrorStatus, Detail: out.Error}
	}
	return &Response{Text: out.text(), Model: out.Model}, nil
}

func (c *OllamaClient) readStream(body io.Reader, onChunk StreamFunc) (*Response, error) {
	var full strings.Builder
	var model string

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frag ollamaResponse
		if err := json.Unmarshal(line, &frag); err != nil {
			c.logger.Debug("skipping malformed stream fragment", zap.ByteString("line", line))
			continue
		}
		if frag.Error != "" {
			return nil, &ServiceError{Kind: ServiceErrorStatus, Detail: frag.Error}
		}
		if txt := frag.text(); txt != "" {
			full.WriteString(txt)
			if onChunk != nil {
				onChunk(txt)
			}
		}
		if frag.Model != "" {
			model = frag.Model
		}
		if frag.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read model stream: %w", err)
	}
	return &Response{Text: full.String(), Model: model}, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{Kind: ServiceErrorUnreachable, Endpoint: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ServiceError{Kind: ServiceErrorStatus, Status: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
