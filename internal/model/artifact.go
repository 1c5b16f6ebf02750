package model

import "time"

// SourceType identifies a scraping source variant.
type SourceType string

const (
	SourceForumThread SourceType = "forum_thread"
	SourceGenericWeb  SourceType = "generic_web"
)

// EnvironmentSignals captures automation-detectable traits observed while a
// session fetched an artifact. Consumed by the authenticity classifier.
type EnvironmentSignals struct {
	HeadlessMarkers    bool      `json:"headless_markers"`
	HoneypotTriggered  bool      `json:"honeypot_triggered"`
	ClientIP           string    `json:"client_ip,omitempty"`
	InteractionGapsMS  []float64 `json:"interaction_gaps_ms,omitempty"`
	UserAgent          string    `json:"user_agent,omitempty"`
	NavigatorWebdriver bool      `json:"navigator_webdriver"`
}

// RawArtifact is a single captured text snapshot from a source. It is
// immutable once captured; the fetch layer owns it until it is handed to the
// normalizer.
type RawArtifact struct {
	ID         string             `json:"id"`
	SourceID   string             `json:"source_id"`
	URL        string             `json:"url"`
	RawText    string             `json:"raw_text"`
	AuthorName string             `json:"author_name,omitempty"`
	AuthorURL  string             `json:"author_url,omitempty"`
	Cursor     int                `json:"cursor"`
	CapturedAt time.Time          `json:"captured_at"`
	Signals    EnvironmentSignals `json:"environment_signals"`
}

// NormalizedText is the cleaned, tokenized form of a RawArtifact's text.
// One-to-one with the artifact it was derived from.
type NormalizedText struct {
	Tokens        []string `json:"tokens"`
	CanonicalText string   `json:"canonical_text"`
	Language      string   `json:"detected_language"`
}
