package llm

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient adapts an OpenAI-compatible chat-completions API to the
// Client contract. Rate-limit responses are retried with exponential
// backoff before giving up.
type OpenAIClient struct {
	client   *openai.Client
	endpoint string
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

const rateLimitAttempts = 5

func NewOpenAIClient(baseURL, model, apiKey string, timeout time.Duration, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(cfg),
		endpoint: cfg.BaseURL,
		model:    model,
		timeout:  timeout,
		logger:   logger,
	}
}

func (c *OpenAIClient) buildRequest(req Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, t := range req.History {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	if req.ImageB64 != "" {
		parts := []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/jpeg;base64," + req.ImageB64,
				},
			},
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: parts,
		})
	} else {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
	}

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt < rateLimitAttempts; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, c.buildRequest(req))
		if err == nil {
			break
		}
		if !isRateLimited(err) {
			return nil, c.wrapError(err)
		}
		c.logger.Warn("model rate limited, backing off", zap.Int("attempt", attempt+1))
		select {
		case <-time.After(time.Duration(3*(1<<attempt)) * time.Second):
		case <-ctx.Done():
			return nil, c.wrapError(ctx.Err())
		}
	}
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ServiceError{Kind: ServiceErrorStatus, Detail: "completion returned no choices"}
	}
	return &Response{Text: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}

func (c *OpenAIClient) GenerateStream(ctx context.Context, req Request, onChunk StreamFunc) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	creq := c.buildRequest(req)
	creq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, c.wrapError(err)
	}
	defer stream.Close()

	var full strings.Builder
	var model string
	for {
		frag, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, c.wrapError(recvErr)
		}
		if frag.Model != "" {
			model = frag.Model
		}
		if len(frag.Choices) == 0 {
			continue
		}
		delta := frag.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}
	return &Response{Text: full.String(), Model: model}, nil
}

func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, c.wrapError(err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	sort.Strings(names)
	return names, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return strings.Contains(err.Error(), "429")
}

func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ServiceError{Kind: ServiceErrorStatus, Status: apiErr.HTTPStatusCode, Detail: apiErr.Message, Err: err}
	}
	return &ServiceError{Kind: ServiceErrorUnreachable, Endpoint: c.endpoint, Err: err}
}
