package models

import (
	"time"

	"github.com/google/uuid"
)

// Verification is one address check as stored for the manual review queue.
// State starts as the engine's recommendation and is overwritten by a
// reviewer's decision.
type Verification struct {
	ID         string                  `json:"id"`
	Source     string                  `json:"source"` // "document", "address" or "batch"
	Extracted  ExtractedAddress        `json:"direccion_extraida"`
	Geocode    GeocodeResult           `json:"geocode"`
	Catalog    CatalogValidationResult `json:"validacion_sepomex"`
	Similarity SimilarityResult        `json:"similitud"`
	Verdict    ValidationVerdict       `json:"verdict"`
	State      DecisionState           `json:"state"`

	ReviewedBy  *string    `json:"reviewed_by,omitempty"`
	ReviewNotes *string    `json:"review_notes,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewVerification builds a record with a fresh ID whose state follows the
// verdict.
func NewVerification(source string, extracted ExtractedAddress, geo GeocodeResult,
	cat CatalogValidationResult, sim SimilarityResult, verdict ValidationVerdict) *Verification {
	now := time.Now().UTC()
	return &Verification{
		ID:         uuid.NewString(),
		Source:     source,
		Extracted:  extracted,
		Geocode:    geo,
		Catalog:    cat,
		Similarity: sim,
		Verdict:    verdict,
		State:      verdict.DecisionState,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Reviewed reports whether a reviewer has decided on the record.
func (v *Verification) Reviewed() bool { return v.ReviewedAt != nil }

// ReviewDecision is a reviewer's ruling on a verification.
type ReviewDecision struct {
	Decision DecisionState `json:"decision"`
	Notes    string        `json:"notes"`
	Reviewer string        `json:"-"`
}

// VerificationFilter narrows a listing. Zero values mean no filter.
type VerificationFilter struct {
	State  DecisionState
	Search string // matched against the full document address
	Limit  int
	Offset int
}

// VerificationStats counts stored verifications by state.
type VerificationStats struct {
	Total       int `json:"total"`
	Approved    int `json:"approved"`
	NeedsReview int `json:"needs_review"`
	Rejected    int `json:"rejected"`
	Reviewed    int `json:"reviewed"`
}

// ReviewLog is the audit row written for every reviewer decision.
type ReviewLog struct {
	ID             int64         `json:"id"`
	VerificationID string        `json:"verification_id"`
	Reviewer       string        `json:"reviewer"`
	PreviousState  DecisionState `json:"previous_state"`
	Decision       DecisionState `json:"decision"`
	Notes          *string       `json:"notes,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
