package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Tier buckets a lead score for sales prioritization.
type Tier string

const (
	TierHot  Tier = "HOT"  // [80,100]
	TierWarm Tier = "WARM" // [50,79]
	TierCold Tier = "COLD" // [0,49]
)

// LeadStatus is the lifecycle stage of a lead.
type LeadStatus string

const (
	StatusMQL      LeadStatus = "MQL"
	StatusSQL      LeadStatus = "SQL"
	StatusRejected LeadStatus = "REJECTED"
)

// Lead is a qualified, contactable prospect derived from a scraped artifact.
// Mutated only by the scoring engine (score/tier/status) and by the
// orchestrator (manual status overrides).
type Lead struct {
	ID             string             `json:"id"`
	Key            string             `json:"key"`
	Contact        ContactSet         `json:"contact"`
	Phase          Phase              `json:"phase"`
	Score          int                `json:"score"`
	Tier           Tier               `json:"tier"`
	Status         LeadStatus         `json:"status"`
	ScoreBreakdown map[string]int     `json:"score_breakdown,omitempty"`
	BotProbability float64            `json:"bot_probability"`
	Language       string             `json:"language,omitempty"`
	SourceID       string             `json:"source_id"`
	SourceURL      string             `json:"source_url,omitempty"`
	ArtifactID     string             `json:"artifact_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// LeadKey derives the deduplication identifier for a contact set found on a
// source. Concurrent writes for the same key must collapse into one lead, so
// the key depends only on the first contact identifier and the source.
func LeadKey(sourceID string, contact ContactSet) string {
	var primary string
	switch {
	case len(contact.Phones) > 0:
		primary = "p:" + contact.Phones[0].Number
	case len(contact.Emails) > 0:
		primary = "e:" + strings.ToLower(contact.Emails[0].Address)
	case len(contact.Usernames) > 0:
		primary = "u:" + strings.ToLower(contact.Usernames[0])
	}
	sum := sha256.Sum256([]byte(sourceID + "|" + primary))
	return hex.EncodeToString(sum[:16])
}

// RejectionReason explains why an artifact did not yield a lead.
type RejectionReason string

const (
	RejectBot       RejectionReason = "bot_probability"
	RejectNoContact RejectionReason = "no_contact"
)

// Rejection is the audit record for an artifact excluded from lead creation.
type Rejection struct {
	ID             string          `json:"id"`
	ArtifactID     string          `json:"artifact_id"`
	SourceID       string          `json:"source_id"`
	URL            string          `json:"url,omitempty"`
	Reason         RejectionReason `json:"reason"`
	BotProbability float64         `json:"bot_probability"`
	CreatedAt      time.Time       `json:"created_at"`
}
