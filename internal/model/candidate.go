package model

import "time"

// CandidateStatus is the curation state of an extracted candidate.
type CandidateStatus string

const (
	CandidateStatusNormalized      CandidateStatus = "normalized"
	CandidateStatusCurated         CandidateStatus = "curated"
	CandidateStatusQualityFiltered CandidateStatus = "quality_filtered"
	CandidateStatusRejected        CandidateStatus = "rejected"
	// CandidateStatusPromoted marks a candidate pushed downstream into a draft.
	CandidateStatusPromoted CandidateStatus = "pushed_to_studio"
)

// MetaExtractionStrategy is the metadata key naming the strategy that produced a candidate.
const MetaExtractionStrategy = "extraction_strategy"

// EvidencePointerKeys lists the metadata keys accepted as proof of where a
// candidate was extracted. At least one must be present and non-empty.
var EvidencePointerKeys = []string{
	"selector_path",
	"listing_url",
	"detail_url",
	"document_region",
	"feed_item_guid",
	"calendar_uid",
}

// TraitHint suggests a taxonomy trait for a candidate.
type TraitHint struct {
	TraitType   string   `json:"trait_type"`
	TraitOption string   `json:"trait_option"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Candidate is a single extracted record prior to curation.
// Candidates are upserted by CandidateKey so identical content collapses
// to one logical row across runs and sources.
type Candidate struct {
	ID            string          `json:"id"`
	RunID         string          `json:"run_id"`
	PageID        string          `json:"page_id"`
	SourceKey     string          `json:"source_key"`
	SourceURL     string          `json:"source_url"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	ReasonSnippet string          `json:"reason_snippet,omitempty"`
	RawExcerpt    string          `json:"raw_excerpt,omitempty"`
	CandidateKey  string          `json:"candidate_key"`
	Status        CandidateStatus `json:"status"`
	QualityScore  float64         `json:"quality_score"`
	QualityFlags  []string        `json:"quality_flags,omitempty"`
	Metadata      map[string]any  `json:"metadata"`
	TraitHints    []TraitHint     `json:"trait_hints,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ExtractionStrategy returns the strategy recorded in the candidate's metadata.
func (c *Candidate) ExtractionStrategy() string {
	if c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata[MetaExtractionStrategy].(string)
	return s
}

// DraftLink ties a downstream curated draft to the candidate it was promoted from.
type DraftLink struct {
	DraftID     string `json:"draft_id"`
	CandidateID string `json:"candidate_id"`
}

// CandidateState is the minimal candidate projection used by reconciliation.
type CandidateState struct {
	ID     string          `json:"id"`
	Status CandidateStatus `json:"status"`
}

// Sync log outcomes.
const (
	SyncOutcomeSuccess = "success"
	SyncOutcomeFailed  = "failed"
)

// SyncLogEntry records a promotion sync from a candidate to a draft.
type SyncLogEntry struct {
	ID          int64     `json:"id,omitempty"`
	CandidateID string    `json:"candidate_id"`
	TargetID    *string   `json:"target_id,omitempty"`
	Outcome     string    `json:"outcome"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReviewDecision is a human curation decision on a candidate.
type ReviewDecision string

const (
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
)

// ReviewCounts aggregates review decisions over a time window.
type ReviewCounts struct {
	Reviewed int `json:"reviewed"`
	Rejected int `json:"rejected"`
}

// RejectionRate returns rejected/reviewed, or 0 when nothing was reviewed.
func (r ReviewCounts) RejectionRate() float64 {
	if r.Reviewed <= 0 {
		return 0
	}
	return float64(r.Rejected) / float64(r.Reviewed)
}
