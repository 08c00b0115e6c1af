// Package decision turns catalog, geocoding and similarity signals into a
// risk verdict for the manual-review queue.
package decision

import (
	"fmt"
	"strings"

	"skill-runner/internal/constants"
	"skill-runner/internal/models"
	"skill-runner/pkg/metrics"
)

var (
	mVerdicts = metrics.Default.CounterVec("verdicts_total", "Risk verdicts by decision state", "state")
	mAlerts   = metrics.Default.CounterVec("risk_alerts_total", "Risk alerts by kind", "kind")
)

// Input is everything one assessment looks at.
type Input struct {
	Extracted  models.ExtractedAddress
	Geocode    models.GeocodeResult
	Catalog    models.CatalogValidationResult
	Similarity models.SimilarityResult
}

func (in Input) postalCodeSupplied() bool {
	return strings.TrimSpace(in.Extracted.PostalCode) != ""
}

func supplied(s string) bool { return strings.TrimSpace(s) != "" }

// confidence is the per-call accumulator. Clamps take the minimum, boosts
// add up to the ceiling and the floor takes the maximum. The ceiling starts
// at 100 and only CRITICAL and HIGH clamps lower it, so boosts and the floor
// may lift a value past a MEDIUM clamp but never past a CRITICAL or HIGH one.
type confidence struct {
	value   int
	ceiling int
}

func (c *confidence) clamp(limit int) {
	c.value = min(c.value, limit)
}

// hold clamps and keeps limit as the ceiling for the rest of the call.
func (c *confidence) hold(limit int) {
	c.ceiling = min(c.ceiling, limit)
	c.clamp(limit)
}

func (c *confidence) add(delta int) {
	c.value = min(c.value+delta, c.ceiling)
}

func (c *confidence) floor(at int) {
	c.value = min(max(c.value, at), c.ceiling)
}

// Rule is one row of the rule table. Alert may be nil for pure boosts;
// Apply may be nil for informational alerts.
type Rule struct {
	Name  string
	When  func(Input) bool
	Alert func(Input) models.RiskAlert
	Apply func(*confidence)
}

// Rules is the evaluation order. Negative rules come first so their
// ceilings are in place before any boost runs.
var Rules = []Rule{
	{
		Name: models.KindPostalCodeInvalid,
		When: func(in Input) bool { return in.postalCodeSupplied() && !in.Catalog.CPExists },
		Alert: func(in Input) models.RiskAlert {
			return models.RiskAlert{
				Level:             models.AlertCritical,
				Kind:              models.KindPostalCodeInvalid,
				Message:           fmt.Sprintf("El código postal %s no existe en el catálogo de SEPOMEX", strings.TrimSpace(in.Extracted.PostalCode)),
				RecommendedAction: "Rechazar o solicitar un comprobante de domicilio con código postal válido",
			}
		},
		Apply: func(c *confidence) { c.hold(constants.ClampPostalCodeInvalid) },
	},
	{
		Name: models.KindSettlementMismatch,
		When: func(in Input) bool {
			return in.Catalog.CPExists && supplied(in.Extracted.Settlement) && !in.Catalog.ColoniaMatch
		},
		Alert: func(in Input) models.RiskAlert {
			return models.RiskAlert{
				Level:             models.AlertHigh,
				Kind:              models.KindSettlementMismatch,
				Message:           fmt.Sprintf("La colonia %q no corresponde al código postal %s", in.Extracted.Settlement, in.Extracted.PostalCode),
				RecommendedAction: "Verificar la colonia contra el catálogo oficial y solicitar aclaración al cliente",
			}
		},
		Apply: func(c *confidence) { c.hold(constants.ClampSettlementMismatch) },
	},
	{
		Name: models.KindMunicipalityMismatch,
		When: func(in Input) bool {
			return in.Catalog.CPExists && supplied(in.Extracted.Municipality) && !in.Catalog.MunicipioMatch
		},
		Alert: func(in Input) models.RiskAlert {
			return models.RiskAlert{
				Level:             models.AlertMedium,
				Kind:              models.KindMunicipalityMismatch,
				Message:           fmt.Sprintf("El municipio %q no coincide con el del código postal%s", in.Extracted.Municipality, officialSuffix(in, func(e *models.PostalCatalogEntry) string { return e.Municipality })),
				RecommendedAction: "Revisar manualmente el municipio del domicilio",
			}
		},
		Apply: func(c *confidence) { c.clamp(constants.ClampMunicipalityMismatch) },
	},
	{
		Name: models.KindStateMismatch,
		When: func(in Input) bool {
			return in.Catalog.CPExists && supplied(in.Extracted.State) && !in.Catalog.EstadoMatch
		},
		Alert: func(in Input) models.RiskAlert {
			return models.RiskAlert{
				Level:             models.AlertMedium,
				Kind:              models.KindStateMismatch,
				Message:           fmt.Sprintf("El estado %q no coincide con el del código postal%s", in.Extracted.State, officialSuffix(in, func(e *models.PostalCatalogEntry) string { return e.State })),
				RecommendedAction: "Revisar manualmente el estado del domicilio",
			}
		},
		Apply: func(c *confidence) { c.clamp(constants.ClampStateMismatch) },
	},
	{
		Name: models.KindGeocodeFailed,
		When: func(in Input) bool { return !in.Geocode.Success && in.postalCodeSupplied() },
		Alert: func(in Input) models.RiskAlert {
			return models.RiskAlert{
				Level:             models.AlertMedium,
				Kind:              models.KindGeocodeFailed,
				Message:           fmt.Sprintf("No fue posible geolocalizar el domicilio: %s", in.Geocode.FormattedAddress),
				RecommendedAction: "Confirmar el domicilio por otro medio (visita o llamada)",
			}
		},
		Apply: func(c *confidence) { c.clamp(constants.ClampGeocodeFailed) },
	},
	{
		Name: models.KindLowSimilarity,
		When: func(in Input) bool {
			return in.Geocode.Success && in.Similarity.Percentage < constants.LowSimilarityThreshold
		},
		Alert: func(in Input) models.RiskAlert {
			return models.RiskAlert{
				Level:             models.AlertLow,
				Kind:              models.KindLowSimilarity,
				Message:           fmt.Sprintf("La dirección del documento coincide solo en %d%% con la encontrada en Google Maps", in.Similarity.Percentage),
				RecommendedAction: "Comparar visualmente ambas direcciones",
			}
		},
	},
	{
		Name:  "SETTLEMENT_BOOST",
		When:  func(in Input) bool { return in.Catalog.CPExists && in.Catalog.ColoniaMatch },
		Apply: func(c *confidence) { c.add(constants.BoostSettlementMatch) },
	},
	{
		Name:  "MUNICIPALITY_BOOST",
		When:  func(in Input) bool { return in.Catalog.CPExists && in.Catalog.MunicipioMatch },
		Apply: func(c *confidence) { c.add(constants.BoostMunicipalityMatch) },
	},
	{
		Name:  "STATE_BOOST",
		When:  func(in Input) bool { return in.Catalog.CPExists && in.Catalog.EstadoMatch },
		Apply: func(c *confidence) { c.add(constants.BoostStateMatch) },
	},
	{
		Name: "SETTLEMENT_GEOCODE_FLOOR",
		When: func(in Input) bool {
			return in.Catalog.CPExists && in.Catalog.ColoniaMatch && in.Geocode.Success
		},
		Apply: func(c *confidence) { c.floor(constants.SettlementGeocodeFloor) },
	},
}

func officialSuffix(in Input, field func(*models.PostalCatalogEntry) string) string {
	if in.Catalog.OfficialData == nil {
		return ""
	}
	if v := field(in.Catalog.OfficialData); v != "" {
		return fmt.Sprintf(" (%s)", v)
	}
	return ""
}

// Engine evaluates a rule table.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine over the standard rule table.
func NewEngine() *Engine { return &Engine{rules: Rules} }

// Assess runs every rule in order and derives the decision state from the
// alerts alone. It never fails.
func (e *Engine) Assess(in Input) models.ValidationVerdict {
	conf := confidence{value: in.Similarity.Percentage, ceiling: 100}
	alerts := []models.RiskAlert{}

	for _, r := range e.rules {
		if !r.When(in) {
			continue
		}
		if r.Alert != nil {
			a := r.Alert(in)
			alerts = append(alerts, a)
			mAlerts.With(a.Kind).Inc()
		}
		if r.Apply != nil {
			r.Apply(&conf)
		}
	}

	v := models.ValidationVerdict{
		FinalConfidence: max(0, min(100, conf.value)),
		Alerts:          alerts,
		DecisionState:   StateFor(alerts),
		MaxSeverity:     MaxSeverity(alerts),
	}
	mVerdicts.With(string(v.DecisionState)).Inc()
	return v
}

// Assess uses the standard rule table.
func Assess(in Input) models.ValidationVerdict { return NewEngine().Assess(in) }

// StateFor maps an alert set to a decision: any CRITICAL rejects, any HIGH
// or MEDIUM needs review, anything else approves.
func StateFor(alerts []models.RiskAlert) models.DecisionState {
	top := MaxSeverity(alerts)
	switch {
	case top == nil:
		return models.DecisionApproved
	case *top == models.AlertCritical:
		return models.DecisionRejected
	case *top == models.AlertHigh || *top == models.AlertMedium:
		return models.DecisionNeedsReview
	default:
		return models.DecisionApproved
	}
}

// MaxSeverity is the highest alert level, or nil without alerts.
func MaxSeverity(alerts []models.RiskAlert) *models.AlertLevel {
	var top *models.AlertLevel
	for i := range alerts {
		if top == nil || alerts[i].Level.Rank() > top.Rank() {
			lvl := alerts[i].Level
			top = &lvl
		}
	}
	return top
}
