package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var ErrEmptyResponse = errors.New("no response")

// LLM talks to an OpenAI-compatible chat completions server such as LM
// Studio, vLLM or Ollama.
type LLM struct {
	client           *openai.Client
	model            string
	baseURL          string
	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*LLM)(nil)

// New returns a client for the server at the configured base URL.
//
//	llm, err := local.New(
//		local.WithBaseURL("http://localhost:1234/v1"),
//		local.WithModel("Qwen2.5-Coder-14B-Instruct"),
//	)
func New(opts ...Option) (*LLM, error) {
	o := &options{
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	apiKey := o.apiKey
	if apiKey == "" {
		apiKey = placeholderKey
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(o.baseURL, "/")
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}

	return &LLM{
		client:           openai.NewClientWithConfig(cfg),
		model:            o.model,
		baseURL:          cfg.BaseURL,
		CallbacksHandler: o.callbacksHandler,
	}, nil
}

// Model returns the default model name.
func (o *LLM) Model() string {
	return o.model
}

// BaseURL returns the server base URL.
func (o *LLM) BaseURL() string {
	return o.baseURL
}

// Call generates a response from the LLM for the given prompt.
func (o *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := openai.ChatCompletionRequest{
		Model:       o.modelFor(*opts),
		Messages:    toChatMessages(messages),
		Temperature: temperature(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		TopP:        float32(opts.TopP),
		Stop:        opts.StopWords,
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var (
		resp *llms.ContentResponse
		err  error
	)
	if opts.StreamingFunc != nil {
		resp, err = o.stream(ctx, req, opts.StreamingFunc)
	} else {
		resp, err = o.complete(ctx, req)
	}
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}

func (o *LLM) complete(ctx context.Context, req openai.ChatCompletionRequest) (*llms.ContentResponse, error) {
	result, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	resp := &llms.ContentResponse{Choices: make([]*llms.ContentChoice, 0, len(result.Choices))}
	for _, c := range result.Choices {
		resp.Choices = append(resp.Choices, &llms.ContentChoice{
			Content:        c.Message.Content,
			StopReason:     string(c.FinishReason),
			GenerationInfo: usageInfo(result.Usage),
		})
	}
	return resp, nil
}

func (o *LLM) stream(ctx context.Context, req openai.ChatCompletionRequest, fn func(ctx context.Context, chunk []byte) error) (*llms.ContentResponse, error) {
	req.Stream = true
	s, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var (
		content strings.Builder
		reason  openai.FinishReason
	)
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if chunk.Choices[0].FinishReason != "" {
			reason = chunk.Choices[0].FinishReason
		}
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if err := fn(ctx, []byte(delta)); err != nil {
			return nil, err
		}
	}

	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        content.String(),
		StopReason:     string(reason),
		GenerationInfo: map[string]any{},
	}}}, nil
}

// ListModels returns the model IDs served by the endpoint.
func (o *LLM) ListModels(ctx context.Context) ([]string, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (o *LLM) modelFor(opts llms.CallOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return o.model
}

// temperature keeps an explicit zero: go-openai omits a zero value and the
// server would then apply its own default.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func usageInfo(u openai.Usage) map[string]any {
	if u.TotalTokens == 0 {
		return map[string]any{}
	}
	return map[string]any{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}
}

func toChatMessages(messages []llms.MessageContent) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		var role string
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			role = openai.ChatMessageRoleSystem
		case llms.ChatMessageTypeAI:
			role = openai.ChatMessageRoleAssistant
		case llms.ChatMessageTypeTool:
			role = openai.ChatMessageRoleTool
		default:
			role = openai.ChatMessageRoleUser
		}

		var content strings.Builder
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				content.WriteString(text.Text)
			}
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: content.String()})
	}
	return out
}
