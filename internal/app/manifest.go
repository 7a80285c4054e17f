package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/hyperifyio/letterdigest/internal/pipeline"
)

// manifestEntry records one newsletter that went into a digest.
type manifestEntry struct {
	MessageID string   `json:"message_id"`
	Subject   string   `json:"subject"`
	Sender    string   `json:"sender"`
	Primary   string   `json:"primary_url,omitempty"`
	Secondary []string `json:"secondary_urls,omitempty"`
	Strategy  string   `json:"strategy"`
	Degraded  bool     `json:"degraded,omitempty"`
	SHA256    string   `json:"sha256"`
	Chars     int      `json:"chars"`
}

// manifestMeta captures run details that aid auditing.
type manifestMeta struct {
	BatchID     string    `json:"batch_id"`
	Model       string    `json:"model"`
	LLMBaseURL  string    `json:"llm_base_url"`
	DryRun      bool      `json:"dry_run"`
	ItemCount   int       `json:"item_count"`
	PageCache   bool      `json:"page_cache"`
	LLMCache    bool      `json:"llm_cache"`
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
}

func computeSHA256Hex(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func buildManifestEntries(items []pipeline.Item) []manifestEntry {
	out := make([]manifestEntry, 0, len(items))
	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		out = append(out, manifestEntry{
			MessageID: it.SourceMessageID,
			Subject:   strings.TrimSpace(it.Title),
			Sender:    strings.TrimSpace(it.Sender),
			Primary:   it.Primary,
			Secondary: it.Secondary,
			Strategy:  it.Strategy,
			Degraded:  it.Degraded,
			SHA256:    computeSHA256Hex(text),
			Chars:     len(text),
		})
	}
	return out
}

// marshalManifestJSON encodes the sidecar manifest.
func marshalManifestJSON(meta manifestMeta, entries []manifestEntry) ([]byte, error) {
	payload := struct {
		Meta  manifestMeta    `json:"meta"`
		Items []manifestEntry `json:"items"`
	}{Meta: meta, Items: entries}
	return json.MarshalIndent(payload, "", "  ")
}

func deriveManifestSidecarPath(outputPath string) string {
	return outputPath + ".manifest.json"
}
