package summarize

import (
    "context"
    "net/http"

    openai "github.com/sashabaranov/go-openai"
)

// Client is the part of an OpenAI-compatible API the summarizer needs.
type Client interface {
    CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient builds a client for baseURL, which may point at any
// OpenAI-compatible server. An empty baseURL uses the public endpoint.
func NewOpenAIClient(baseURL, apiKey string, httpClient *http.Client) *openai.Client {
    cfg := openai.DefaultConfig(apiKey)
    if baseURL != "" {
        cfg.BaseURL = baseURL
    }
    if httpClient != nil {
        cfg.HTTPClient = httpClient
    }
    return openai.NewClientWithConfig(cfg)
}
