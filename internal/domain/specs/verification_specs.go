package specs

import (
	"context"

	"skill-runner/internal/models"
)

// Unreviewed matches records no reviewer has ruled on yet.
func Unreviewed() Specification[models.Verification] {
	return New(func(_ context.Context, v models.Verification) bool { return !v.Reviewed() })
}

// HasAlertKind matches records carrying an alert of the given kind.
func HasAlertKind(kind string) Specification[models.Verification] {
	return New(func(_ context.Context, v models.Verification) bool {
		for _, a := range v.Verdict.Alerts {
			if a.Kind == kind {
				return true
			}
		}
		return false
	})
}

// ConfidenceBetween matches a final confidence in [lo, hi].
func ConfidenceBetween(lo, hi int) Specification[models.Verification] {
	return New(func(_ context.Context, v models.Verification) bool {
		c := v.Verdict.FinalConfidence
		return c >= lo && c <= hi
	})
}

// FromSource matches the intake channel ("document", "address", "batch").
func FromSource(source string) Specification[models.Verification] {
	return New(func(_ context.Context, v models.Verification) bool { return v.Source == source })
}

// GeocodeFailed matches records whose address could not be located.
func GeocodeFailed() Specification[models.Verification] {
	return New(func(_ context.Context, v models.Verification) bool { return !v.Geocode.Success })
}
