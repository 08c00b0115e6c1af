package constants

// Scoring and risk thresholds. These were tuned by hand against real
// verification traffic; change them deliberately and keep the tests in
// internal/address and internal/decision in step.
// These are not configuration knobs; use pkg/config for env-driven settings.

const (
	// Fuzzy word match: Levenshtein similarity must exceed this (0..1).
	FuzzyWordThreshold = 0.7

	// Component weights of the similarity score (sum = 100).
	WeightStreetNumber = 30
	WeightPostalCode   = 25
	WeightStreetName   = 20
	WeightCity         = 15
	WeightState        = 10

	// Partial credit when a component cannot be compared.
	HalfStreetNumber = 15 // exactly one side has a number
	HalfPostalCode   = 12 // neither side has a postal code
	HalfCity         = 7  // neither side names a known city
	HalfState        = 5  // neither side names a known state

	// At or above this, non-critical differences are dropped from the report.
	SuppressDifferencesAt = 85
	// Exact street number + postal code lifts the score to at least this.
	DecisiveMatchFloor = 95

	// Confidence ceilings applied by negative rules.
	ClampPostalCodeInvalid    = 30
	ClampGeocodeFailed        = 50
	ClampSettlementMismatch   = 60
	ClampStateMismatch        = 70
	ClampMunicipalityMismatch = 75

	// Below this similarity a successful geocode raises an informational alert.
	LowSimilarityThreshold = 60

	// Positive-validation boosts.
	BoostSettlementMatch   = 10
	BoostMunicipalityMatch = 5
	BoostStateMatch        = 5
	// Settlement match plus successful geocode floors confidence here.
	SettlementGeocodeFloor = 90

	// Catalog validator lists at most this many valid settlements in a suggestion.
	MaxSettlementSuggestions = 5
	// Reverse postal code search returns at most this many records.
	MaxReverseSearchResults = 10
	// Postal code endpoint returns at most this many full records.
	MaxCatalogRecordsInResponse = 50
)
