// Package summarize turns deduplicated newsletter content into a single
// HTML digest, either through a chat model or with a deterministic offline
// renderer.
package summarize

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    openai "github.com/sashabaranov/go-openai"
    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/letterdigest/internal/budget"
    "github.com/hyperifyio/letterdigest/internal/cache"
)

// MaxSecondaryURLs bounds the extra links listed per block.
const MaxSecondaryURLs = 3

// Block is one newsletter's contribution to the digest.
type Block struct {
    Source        string
    Title         string
    Date          time.Time
    Body          string
    PrimaryURL    string
    SecondaryURLs []string
}

// Summarizer produces the digest for a batch of blocks.
type Summarizer interface {
    Summarize(ctx context.Context, blocks []Block) (string, error)
}

var (
    // ErrNoSubstantiveBody indicates the model returned nothing usable.
    ErrNoSubstantiveBody = errors.New("no substantive body")
    // ErrNotConfigured is returned when no client or model is set.
    ErrNotConfigured = errors.New("summarizer not configured")
    // ErrCacheMiss is returned in cache-only mode when no cached summary exists.
    ErrCacheMiss = errors.New("summary not in cache")
)

// LLM summarizes through a chat completion API.
type LLM struct {
    Client Client
    Model  string
    Cache  *cache.SummaryCache
    // ReservedOutputTokens is kept out of the input budget. Defaults to 4096.
    ReservedOutputTokens int
    Temperature          float32
    // SystemPrompt, when non-empty, replaces the default instructions.
    SystemPrompt string
    // CacheOnly fails instead of calling the model on a cache miss.
    CacheOnly bool
    // RetryDelay is waited once before the single retry. Defaults to 100ms.
    RetryDelay time.Duration
}

type cachedSummary struct {
    HTML string `json:"html"`
}

// Summarize builds the prompt, serves it from cache when possible and
// otherwise calls the model, retrying once on error.
func (s *LLM) Summarize(ctx context.Context, blocks []Block) (string, error) {
    if s.Client == nil || strings.TrimSpace(s.Model) == "" {
        return "", ErrNotConfigured
    }
    if len(blocks) == 0 {
        return "", ErrNoSubstantiveBody
    }
    system := systemMessage
    if strings.TrimSpace(s.SystemPrompt) != "" {
        system = s.SystemPrompt
    }
    reserved := s.ReservedOutputTokens
    if reserved <= 0 {
        reserved = 4096
    }
    user := BuildPrompt(blocks, budget.Available(s.Model, reserved, budget.EstimateTokens(system)+budget.EstimateTokens(instructions)))

    key := cache.KeyFor(s.Model, system+"\n\n"+user)
    if s.Cache != nil {
        if raw, ok, _ := s.Cache.Get(ctx, key); ok {
            var out cachedSummary
            if err := json.Unmarshal(raw, &out); err == nil && strings.TrimSpace(out.HTML) != "" {
                log.Debug().Str("model", s.Model).Msg("summary served from cache")
                return out.HTML, nil
            }
        }
    }
    if s.CacheOnly {
        return "", ErrCacheMiss
    }

    req := openai.ChatCompletionRequest{
        Model: s.Model,
        Messages: []openai.ChatCompletionMessage{
            {Role: openai.ChatMessageRoleSystem, Content: system},
            {Role: openai.ChatMessageRoleUser, Content: user},
        },
        MaxTokens:   reserved,
        Temperature: s.Temperature,
        N:           1,
    }
    resp, err := s.Client.CreateChatCompletion(ctx, req)
    if err != nil {
        log.Warn().Err(err).Msg("summary call failed; retrying once")
        delay := s.RetryDelay
        if delay <= 0 {
            delay = 100 * time.Millisecond
        }
        select {
        case <-ctx.Done():
            return "", ctx.Err()
        case <-time.After(delay):
        }
        resp, err = s.Client.CreateChatCompletion(ctx, req)
        if err != nil {
            return "", fmt.Errorf("summary call (after retry): %w", err)
        }
    }
    if len(resp.Choices) == 0 {
        return "", ErrNoSubstantiveBody
    }
    out := stripFence(resp.Choices[0].Message.Content)
    if out == "" {
        return "", ErrNoSubstantiveBody
    }
    if s.Cache != nil {
        payload, _ := json.Marshal(cachedSummary{HTML: out})
        if err := s.Cache.Save(ctx, key, payload); err != nil {
            log.Warn().Err(err).Msg("summary cache save failed")
        }
    }
    return out, nil
}

// stripFence removes a surrounding ```html code fence some models add.
func stripFence(s string) string {
    s = strings.TrimSpace(s)
    if !strings.HasPrefix(s, "```") {
        return s
    }
    s = strings.TrimPrefix(s, "```")
    if i := strings.IndexByte(s, '\n'); i >= 0 {
        s = s[i+1:]
    } else {
        s = ""
    }
    s = strings.TrimSuffix(strings.TrimSpace(s), "```")
    return strings.TrimSpace(s)
}
