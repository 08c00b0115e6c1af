package decision

import (
	"strings"
	"testing"

	"skill-runner/internal/address"
	"skill-runner/internal/catalog"
	"skill-runner/internal/models"
)

const geocodedCentro = "Madero 123, Centro, 64000 Monterrey, N.L., Mexico"

func monterreyCatalog() *catalog.Catalog {
	return catalog.New([]models.PostalCatalogEntry{{
		PostalCode:     "64000",
		SettlementName: "Centro",
		SettlementType: "Colonia",
		Municipality:   "Monterrey",
		State:          "Nuevo León",
		City:           "Monterrey",
	}})
}

// run wires the pure pipeline the processor runs after geocoding.
func run(t *testing.T, extracted models.ExtractedAddress, geo models.GeocodeResult) (models.CatalogValidationResult, models.SimilarityResult, models.ValidationVerdict) {
	t.Helper()
	cat := catalog.NewValidator(monterreyCatalog(), nil).Validate(extracted.CatalogQuery())
	sim := address.Score(extracted.FullAddress, geo.FormattedAddress)
	v := Assess(Input{Extracted: extracted, Geocode: geo, Catalog: cat, Similarity: sim})
	return cat, sim, v
}

func countLevel(v models.ValidationVerdict, level models.AlertLevel) int {
	n := 0
	for _, a := range v.Alerts {
		if a.Level == level {
			n++
		}
	}
	return n
}

func TestScenarioMatchingAddressIsApproved(t *testing.T) {
	extracted := models.ExtractedAddress{
		FullAddress:  "Calle Madero #123, Colonia Centro, CP 64000, Monterrey, Nuevo Leon, Mexico",
		Street:       "Calle Madero",
		StreetNumber: "123",
		Settlement:   "Centro",
		Municipality: "Monterrey",
		State:        "Nuevo Leon",
		PostalCode:   "64000",
	}
	geo := models.GeocodeResult{FormattedAddress: geocodedCentro, Latitude: 25.67, Longitude: -100.31, Success: true}

	cat, sim, v := run(t, extracted, geo)
	if !cat.CPExists || !cat.ColoniaMatch {
		t.Fatalf("catalog = %+v, want cp and colonia match", cat)
	}
	if sim.Percentage < 90 {
		t.Errorf("similarity = %d, want >= 90", sim.Percentage)
	}
	if countLevel(v, models.AlertCritical)+countLevel(v, models.AlertHigh) != 0 {
		t.Errorf("alerts = %+v, want no CRITICAL or HIGH", v.Alerts)
	}
	if v.DecisionState != models.DecisionApproved {
		t.Errorf("decision = %s, want APPROVED", v.DecisionState)
	}
	if v.FinalConfidence != 100 {
		t.Errorf("confidence = %d, want 100", v.FinalConfidence)
	}
	if v.MaxSeverity != nil {
		t.Errorf("MaxSeverity = %v, want nil", *v.MaxSeverity)
	}
}

func TestScenarioUnknownPostalCodeIsRejected(t *testing.T) {
	extracted := models.ExtractedAddress{
		FullAddress:  "Calle Madero #123, Colonia Centro, CP 00000, Monterrey, Nuevo Leon, Mexico",
		StreetNumber: "123",
		Settlement:   "Centro",
		Municipality: "Monterrey",
		State:        "Nuevo Leon",
		PostalCode:   "00000",
	}
	geo := models.GeocodeResult{FormattedAddress: geocodedCentro, Success: true}

	cat, _, v := run(t, extracted, geo)
	if cat.CPExists {
		t.Fatal("00000 should not exist")
	}
	if n := countLevel(v, models.AlertCritical); n != 1 {
		t.Fatalf("CRITICAL alerts = %d, want 1 (%+v)", n, v.Alerts)
	}
	if v.Alerts[0].Kind != models.KindPostalCodeInvalid {
		t.Errorf("first alert kind = %s, want CP_INVALID", v.Alerts[0].Kind)
	}
	if v.FinalConfidence > 30 {
		t.Errorf("confidence = %d, want <= 30", v.FinalConfidence)
	}
	if v.DecisionState != models.DecisionRejected {
		t.Errorf("decision = %s, want REJECTED", v.DecisionState)
	}
}

func TestScenarioWrongSettlementNeedsReview(t *testing.T) {
	extracted := models.ExtractedAddress{
		FullAddress:  "Calle Madero #123, Colonia Industrial, CP 64000, Monterrey, Nuevo Leon, Mexico",
		StreetNumber: "123",
		Settlement:   "Colonia Industrial",
		Municipality: "Monterrey",
		State:        "Nuevo Leon",
		PostalCode:   "64000",
	}
	geo := models.GeocodeResult{FormattedAddress: geocodedCentro, Success: true}

	cat, _, v := run(t, extracted, geo)
	if cat.ColoniaMatch {
		t.Fatal("Industrial should not match Centro")
	}
	if n := countLevel(v, models.AlertHigh); n != 1 {
		t.Fatalf("HIGH alerts = %d, want 1 (%+v)", n, v.Alerts)
	}
	if v.Alerts[0].Kind != models.KindSettlementMismatch {
		t.Errorf("alert kind = %s, want SETTLEMENT_MISMATCH", v.Alerts[0].Kind)
	}
	if v.FinalConfidence > 60 {
		t.Errorf("confidence = %d, want <= 60", v.FinalConfidence)
	}
	if v.DecisionState != models.DecisionNeedsReview {
		t.Errorf("decision = %s, want NEEDS_REVIEW", v.DecisionState)
	}
}

func TestAssessRules(t *testing.T) {
	base := models.ExtractedAddress{FullAddress: "x", PostalCode: "64000"}
	ok := models.GeocodeResult{Success: true}
	failed := models.GeocodeResult{FormattedAddress: "No se encontró la dirección"}

	tests := []struct {
		name     string
		in       Input
		kinds    []string
		conf     int
		decision models.DecisionState
	}{
		{
			name:     "geocode failure with postal code",
			in:       Input{Extracted: base, Geocode: failed, Catalog: models.CatalogValidationResult{CPExists: true}, Similarity: models.SimilarityResult{Percentage: 80}},
			kinds:    []string{models.KindGeocodeFailed},
			conf:     50,
			decision: models.DecisionNeedsReview,
		},
		{
			name:     "geocode failure without postal code raises nothing",
			in:       Input{Extracted: models.ExtractedAddress{FullAddress: "x"}, Geocode: failed, Similarity: models.SimilarityResult{Percentage: 40}},
			conf:     40,
			decision: models.DecisionApproved,
		},
		{
			name:     "low similarity is informational",
			in:       Input{Extracted: base, Geocode: ok, Catalog: models.CatalogValidationResult{CPExists: true}, Similarity: models.SimilarityResult{Percentage: 45}},
			kinds:    []string{models.KindLowSimilarity},
			conf:     45,
			decision: models.DecisionApproved,
		},
		{
			name: "boosts cap at 100",
			in: Input{Extracted: base, Geocode: ok, Similarity: models.SimilarityResult{Percentage: 95},
				Catalog: models.CatalogValidationResult{CPExists: true, ColoniaMatch: true, MunicipioMatch: true, EstadoMatch: true}},
			conf:     100,
			decision: models.DecisionApproved,
		},
		{
			name: "settlement and geocode floor at 90",
			in: Input{Extracted: base, Geocode: ok, Similarity: models.SimilarityResult{Percentage: 62},
				Catalog: models.CatalogValidationResult{CPExists: true, ColoniaMatch: true}},
			conf:     90,
			decision: models.DecisionApproved,
		},
		{
			name: "floor lifts past a medium state clamp",
			in: Input{
				Extracted:  models.ExtractedAddress{FullAddress: "x", PostalCode: "64000", State: "Jalisco"},
				Geocode:    ok,
				Similarity: models.SimilarityResult{Percentage: 62},
				Catalog:    models.CatalogValidationResult{CPExists: true, ColoniaMatch: true, MunicipioMatch: true},
			},
			kinds:    []string{models.KindStateMismatch},
			conf:     90,
			decision: models.DecisionNeedsReview,
		},
		{
			name: "boosts and floor after a medium municipality clamp",
			in: Input{
				Extracted:  models.ExtractedAddress{FullAddress: "x", PostalCode: "64000", Municipality: "Apodaca"},
				Geocode:    ok,
				Similarity: models.SimilarityResult{Percentage: 95},
				Catalog:    models.CatalogValidationResult{CPExists: true, ColoniaMatch: true, EstadoMatch: true},
			},
			kinds:    []string{models.KindMunicipalityMismatch},
			conf:     90,
			decision: models.DecisionNeedsReview,
		},
		{
			name: "boosts add on top of medium clamps without a floor",
			in: Input{
				Extracted:  models.ExtractedAddress{FullAddress: "x", PostalCode: "64000", Municipality: "Apodaca"},
				Geocode:    failed,
				Similarity: models.SimilarityResult{Percentage: 90},
				Catalog:    models.CatalogValidationResult{CPExists: true, ColoniaMatch: true, EstadoMatch: true},
			},
			kinds:    []string{models.KindMunicipalityMismatch, models.KindGeocodeFailed},
			conf:     65,
			decision: models.DecisionNeedsReview,
		},
		{
			name: "high settlement clamp binds later boosts",
			in: Input{
				Extracted:  models.ExtractedAddress{FullAddress: "x", PostalCode: "64000", Settlement: "Industrial"},
				Geocode:    ok,
				Similarity: models.SimilarityResult{Percentage: 80},
				Catalog:    models.CatalogValidationResult{CPExists: true, MunicipioMatch: true, EstadoMatch: true},
			},
			kinds:    []string{models.KindSettlementMismatch},
			conf:     60,
			decision: models.DecisionNeedsReview,
		},
		{
			name: "unknown postal code skips catalog field rules and boosts",
			in: Input{
				Extracted:  models.ExtractedAddress{FullAddress: "x", PostalCode: "99999", Settlement: "Centro", State: "Jalisco"},
				Geocode:    failed,
				Similarity: models.SimilarityResult{Percentage: 70},
			},
			kinds:    []string{models.KindPostalCodeInvalid, models.KindGeocodeFailed},
			conf:     30,
			decision: models.DecisionRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Assess(tt.in)
			var kinds []string
			for _, a := range v.Alerts {
				kinds = append(kinds, a.Kind)
			}
			if strings.Join(kinds, ",") != strings.Join(tt.kinds, ",") {
				t.Errorf("alert kinds = %v, want %v", kinds, tt.kinds)
			}
			if v.FinalConfidence != tt.conf {
				t.Errorf("confidence = %d, want %d", v.FinalConfidence, tt.conf)
			}
			if v.DecisionState != tt.decision {
				t.Errorf("decision = %s, want %s", v.DecisionState, tt.decision)
			}
		})
	}
}

func TestDecisionStateFollowsAlertLevels(t *testing.T) {
	bools := []bool{false, true}
	for _, cp := range bools {
		for _, col := range bools {
			for _, geo := range bools {
				for _, withState := range bools {
					for _, pct := range []int{0, 45, 59, 60, 85, 100} {
						in := Input{
							Extracted:  models.ExtractedAddress{FullAddress: "x", PostalCode: "64000", Settlement: "Centro"},
							Geocode:    models.GeocodeResult{Success: geo},
							Catalog:    models.CatalogValidationResult{CPExists: cp, ColoniaMatch: col},
							Similarity: models.SimilarityResult{Percentage: pct},
						}
						if withState {
							in.Extracted.State = "Nuevo Leon"
						}
						v := Assess(in)

						critical := v.HasLevel(models.AlertCritical)
						reviewable := v.HasLevel(models.AlertHigh) || v.HasLevel(models.AlertMedium)
						if (v.DecisionState == models.DecisionRejected) != critical {
							t.Errorf("%+v: REJECTED=%v but critical=%v", in, v.DecisionState == models.DecisionRejected, critical)
						}
						if (v.DecisionState == models.DecisionApproved) != (!critical && !reviewable) {
							t.Errorf("%+v: APPROVED=%v with alerts %+v", in, v.DecisionState == models.DecisionApproved, v.Alerts)
						}
						if v.FinalConfidence < 0 || v.FinalConfidence > 100 {
							t.Errorf("confidence %d out of range", v.FinalConfidence)
						}
					}
				}
			}
		}
	}
}

func TestMaxSeverity(t *testing.T) {
	if MaxSeverity(nil) != nil {
		t.Error("MaxSeverity(nil) should be nil")
	}
	got := MaxSeverity([]models.RiskAlert{{Level: models.AlertLow}, {Level: models.AlertHigh}, {Level: models.AlertMedium}})
	if got == nil || *got != models.AlertHigh {
		t.Errorf("MaxSeverity() = %v, want HIGH", got)
	}
}

func BenchmarkAssess(b *testing.B) {
	in := Input{
		Extracted:  models.ExtractedAddress{FullAddress: "Calle Madero 123", PostalCode: "64000", Settlement: "Centro", State: "Jalisco"},
		Geocode:    models.GeocodeResult{Success: true, FormattedAddress: geocodedCentro},
		Catalog:    models.CatalogValidationResult{CPExists: true, ColoniaMatch: true},
		Similarity: models.SimilarityResult{Percentage: 72},
	}
	e := NewEngine()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Assess(in)
	}
}
