package chat

import (
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/smallnest/kgqa/llms/local"
)

// Backend names.
const (
	BackendLocal  = "local"
	BackendOpenAI = "openai"
)

// BackendConfig selects and configures a model backend.
type BackendConfig struct {
	Kind       string
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// NewModel builds the llms.Model for cfg.
func NewModel(cfg BackendConfig) (llms.Model, error) {
	switch cfg.Kind {
	case "", BackendLocal:
		opts := []local.Option{local.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, local.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, local.WithModel(cfg.Model))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, local.WithHTTPClient(cfg.HTTPClient))
		}
		return local.New(opts...)
	case BackendOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai backend requires an API key")
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Kind)
	}
}
