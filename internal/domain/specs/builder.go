package specs

import (
	"context"

	"skill-runner/internal/models"
)

// Criteria are the optional in-memory filters of a review queue listing.
// Zero values are ignored.
type Criteria struct {
	AlertKind     string
	MinConfidence *int
	MaxConfidence *int
	Source        string
	OnlyPending   bool
}

// Empty reports whether no criterion is set.
func (c Criteria) Empty() bool {
	return c.AlertKind == "" && c.MinConfidence == nil && c.MaxConfidence == nil && c.Source == "" && !c.OnlyPending
}

// Build composes the criteria into one specification.
func Build(c Criteria) Specification[models.Verification] {
	s := All[models.Verification]()
	if c.OnlyPending {
		s = s.And(Unreviewed())
	}
	if c.AlertKind != "" {
		s = s.And(HasAlertKind(c.AlertKind))
	}
	if c.MinConfidence != nil || c.MaxConfidence != nil {
		lo, hi := 0, 100
		if c.MinConfidence != nil {
			lo = *c.MinConfidence
		}
		if c.MaxConfidence != nil {
			hi = *c.MaxConfidence
		}
		s = s.And(ConfidenceBetween(lo, hi))
	}
	if c.Source != "" {
		s = s.And(FromSource(c.Source))
	}
	return s
}

// Filter keeps the items satisfying s, in order.
func Filter[T any](ctx context.Context, s Specification[T], items []T) []T {
	out := make([]T, 0, len(items))
	for _, v := range items {
		if s.IsSatisfiedBy(ctx, v) {
			out = append(out, v)
		}
	}
	return out
}
