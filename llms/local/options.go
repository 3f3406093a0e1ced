package local

import (
	"net/http"

	"github.com/tmc/langchaingo/callbacks"
)

const (
	// DefaultBaseURL is the LM Studio server address.
	DefaultBaseURL = "http://localhost:1234/v1"
	// DefaultModel is used when neither the client nor the call names a model.
	DefaultModel = "Qwen2.5-Coder-14B-Instruct"

	// placeholderKey is sent to servers that do not check keys.
	placeholderKey = "not-needed"
)

type options struct {
	baseURL          string
	apiKey           string
	model            string
	httpClient       *http.Client
	callbacksHandler callbacks.Handler
}

// Option configures the LLM.
type Option func(*options)

// WithBaseURL sets the OpenAI-compatible API base URL, e.g.
// http://localhost:1234/v1 or http://localhost:11434/v1.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithAPIKey sets the API key. Local servers usually ignore it.
func WithAPIKey(apiKey string) Option {
	return func(o *options) {
		o.apiKey = apiKey
	}
}

// WithModel sets the default model name.
func WithModel(model string) Option {
	return func(o *options) {
		o.model = model
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithCallback sets the callbacks handler.
func WithCallback(handler callbacks.Handler) Option {
	return func(o *options) {
		o.callbacksHandler = handler
	}
}
