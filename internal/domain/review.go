package domain

import (
	"strings"
	"unicode/utf8"

	"skill-runner/internal/models"
	errs "skill-runner/pkg/errors"
)

// MaxReviewNotes bounds reviewer notes, in characters.
const MaxReviewNotes = 1000

// NewReview checks a reviewer's ruling against the record it targets.
// Reviewers close a case, so only APPROVED and REJECTED are accepted.
func NewReview(v *models.Verification, decision models.DecisionState, notes, reviewer string) (models.ReviewDecision, error) {
	const op = "domain.NewReview"
	notes = strings.TrimSpace(notes)

	switch {
	case v == nil:
		return models.ReviewDecision{}, errs.NewNotFound(op, "verification not found")
	case v.Reviewed():
		return models.ReviewDecision{}, errs.NewConflict(op, "verification "+v.ID+" was already reviewed")
	case decision != models.DecisionApproved && decision != models.DecisionRejected:
		return models.ReviewDecision{}, errs.NewValidation(op, "decision must be APPROVED or REJECTED", nil)
	case strings.TrimSpace(reviewer) == "":
		return models.ReviewDecision{}, errs.NewValidation(op, "reviewer is required", nil)
	case utf8.RuneCountInString(notes) > MaxReviewNotes:
		return models.ReviewDecision{}, errs.NewValidation(op, "notes are too long", nil)
	}

	return models.ReviewDecision{Decision: decision, Notes: notes, Reviewer: reviewer}, nil
}

// ReviewOverride pairs the engine's recommendation with the reviewer's
// ruling for the audit trail.
type ReviewOverride struct {
	Recommended models.DecisionState `json:"recommended"`
	Decided     models.DecisionState `json:"decided"`
}

// NewReviewOverride records what the reviewer changed relative to the
// engine. The verdict is never mutated by a review.
func NewReviewOverride(v *models.Verification, d models.ReviewDecision) ReviewOverride {
	return ReviewOverride{Recommended: v.Verdict.DecisionState, Decided: d.Decision}
}

// Overrides reports whether the reviewer disagreed with the engine.
func (o ReviewOverride) Overrides() bool { return o.Recommended != o.Decided }
