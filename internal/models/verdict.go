package models

// AlertLevel is the severity of a RiskAlert.
type AlertLevel string

const (
	AlertLow      AlertLevel = "LOW"
	AlertMedium   AlertLevel = "MEDIUM"
	AlertHigh     AlertLevel = "HIGH"
	AlertCritical AlertLevel = "CRITICAL"
)

// Rank orders levels, LOW = 1 through CRITICAL = 4. Unknown levels rank 0.
func (l AlertLevel) Rank() int {
	switch l {
	case AlertLow:
		return 1
	case AlertMedium:
		return 2
	case AlertHigh:
		return 3
	case AlertCritical:
		return 4
	default:
		return 0
	}
}

// Alert kinds.
const (
	KindPostalCodeInvalid    = "CP_INVALID"
	KindSettlementMismatch   = "SETTLEMENT_MISMATCH"
	KindMunicipalityMismatch = "MUNICIPALITY_MISMATCH"
	KindStateMismatch        = "STATE_MISMATCH"
	KindGeocodeFailed        = "GEOCODE_FAILED"
	KindLowSimilarity        = "LOW_SIMILARITY"
)

// RiskAlert is one finding of the risk engine.
type RiskAlert struct {
	Level             AlertLevel `json:"level"`
	Kind              string     `json:"kind"`
	Message           string     `json:"message"`
	RecommendedAction string     `json:"recommended_action"`
}

// DecisionState is the recommendation for the manual-review queue.
type DecisionState string

const (
	DecisionApproved    DecisionState = "APPROVED"
	DecisionNeedsReview DecisionState = "NEEDS_REVIEW"
	DecisionRejected    DecisionState = "REJECTED"
)

// Valid reports whether s is one of the three known states.
func (s DecisionState) Valid() bool {
	switch s {
	case DecisionApproved, DecisionNeedsReview, DecisionRejected:
		return true
	}
	return false
}

// ValidationVerdict is the risk engine's output. Alerts keep rule order.
type ValidationVerdict struct {
	FinalConfidence int           `json:"final_confidence"`
	Alerts          []RiskAlert   `json:"alerts"`
	DecisionState   DecisionState `json:"decision_state"`
	MaxSeverity     *AlertLevel   `json:"max_severity"`
}

// HasLevel reports whether any alert has the given level.
func (v ValidationVerdict) HasLevel(level AlertLevel) bool {
	for _, a := range v.Alerts {
		if a.Level == level {
			return true
		}
	}
	return false
}
