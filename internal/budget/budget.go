// Package budget estimates token usage and decides how much of each
// newsletter body fits into a single summarization prompt.
package budget

import (
    "math"
    "strings"
)

// AbbreviationMarker replaces the middle of a body that had to be shortened.
const AbbreviationMarker = "\n\n[...CONTENT ABBREVIATED...]\n\n"

// MinBlockChars is the floor a shortened body never goes below.
const MinBlockChars = 3000

// charsPerToken is the usual English approximation.
const charsPerToken = 4.0

// EstimateTokensFromChars converts a character count into tokens, rounding up.
func EstimateTokensFromChars(charCount int) int {
    if charCount <= 0 {
        return 0
    }
    return int(math.Ceil(float64(charCount) / charsPerToken))
}

// EstimateTokens returns the estimated token count of s.
func EstimateTokens(s string) int {
    return EstimateTokensFromChars(len(s))
}

// ModelContextTokens returns the context window assumed for a model.
// Unknown models get a conservative 8192.
func ModelContextTokens(model string) int {
    name := strings.ToLower(strings.TrimSpace(model))
    if v, ok := knownModelMax[name]; ok {
        return v
    }
    switch {
    case name == "":
        return 8192
    case strings.HasSuffix(name, "1m"):
        return 1_000_000
    case strings.HasSuffix(name, "200k"):
        return 200_000
    case strings.HasSuffix(name, "128k"), strings.Contains(name, "-mini"):
        return 128_000
    }
    return 8192
}

var knownModelMax = map[string]int{
    "gpt-4o":            128_000,
    "gpt-4o-mini":       128_000,
    "gpt-4.1":           1_000_000,
    "gpt-4.1-mini":      1_000_000,
    "gpt-4-turbo":       128_000,
    "gpt-3.5-turbo":     16_384,
    "claude-3-7-sonnet": 200_000,
    "claude-3-5-sonnet": 200_000,
    "llama-3.1":         128_000,
}

// HeadroomTokens is kept free for message framing and tokenizer drift: 5% of
// the window, never below 512.
func HeadroomTokens(model string) int {
    dyn := int(math.Ceil(float64(ModelContextTokens(model)) * 0.05))
    if dyn < 512 {
        return 512
    }
    return dyn
}

// Available returns how many tokens remain for newsletter bodies once the
// output reservation, the headroom and the fixed prompt text are paid for.
func Available(model string, reservedForOutput, promptTokens int) int {
    if reservedForOutput < 0 {
        reservedForOutput = 0
    }
    rem := ModelContextTokens(model) - reservedForOutput - HeadroomTokens(model) - promptTokens
    if rem < 0 {
        return 0
    }
    return rem
}

// ScalingFactor returns the share of the bodies that fits into available
// tokens, or 1 when everything fits.
func ScalingFactor(totalChars, availableTokens int) float64 {
    est := EstimateTokensFromChars(totalChars)
    if est == 0 || est <= availableTokens {
        return 1
    }
    if availableTokens <= 0 {
        return 0
    }
    return float64(availableTokens) / float64(est)
}

// Shorten scales body by factor, keeping the beginning and the end joined by
// AbbreviationMarker. Bodies are never cut below MinBlockChars.
func Shorten(body string, factor float64) (string, bool) {
    if factor >= 1 {
        return body, false
    }
    limit := int(float64(len(body)) * factor)
    if limit < MinBlockChars {
        limit = MinBlockChars
    }
    if len(body) <= limit {
        return body, false
    }
    half := limit / 2
    head := validPrefix(body[:half])
    tail := validSuffix(body[len(body)-half:])
    return head + AbbreviationMarker + tail, true
}

// validPrefix drops a trailing partial UTF-8 sequence.
func validPrefix(s string) string {
    for i := len(s); i > 0 && i > len(s)-4; i-- {
        if strings.ToValidUTF8(s[:i], "") == s[:i] {
            return s[:i]
        }
    }
    return s
}

// validSuffix drops a leading partial UTF-8 sequence.
func validSuffix(s string) string {
    for i := 0; i < len(s) && i < 4; i++ {
        if strings.ToValidUTF8(s[i:], "") == s[i:] {
            return s[i:]
        }
    }
    return s
}
