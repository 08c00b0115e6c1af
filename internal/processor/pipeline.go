package processor

import (
	"context"
	"strings"
	"time"

	"skill-runner/internal/address"
	"skill-runner/internal/decision"
	"skill-runner/internal/docreader"
	"skill-runner/internal/domain"
	"skill-runner/internal/geocoder"
	"skill-runner/internal/models"
	errs "skill-runner/pkg/errors"
	"skill-runner/pkg/events"
	"skill-runner/pkg/logging"
	"skill-runner/pkg/metrics"
)

// Shown as the only difference when an address could not be geocoded.
const geocodeUnverified = "No se pudo verificar la dirección con Google Maps. Verifica que la API Key esté configurada correctamente."

// Verification sources.
const (
	SourceDocument = "document"
	SourceAddress  = "address"
	SourceBatch    = "batch"
)

var mPipeline = metrics.Default.Histogram("verification_duration_ms", "End-to-end verification latency in milliseconds",
	[]float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000})

// Geocoder resolves an address; failures come back as data.
type Geocoder interface {
	Geocode(ctx context.Context, addr string) geocoder.Result
}

// DocumentReader extracts an address from an uploaded document.
type DocumentReader interface {
	Extract(ctx context.Context, doc docreader.Document) (*docreader.Extraction, error)
}

// CatalogValidator checks an address against the postal catalog.
type CatalogValidator interface {
	Validate(q models.CatalogQuery) models.CatalogValidationResult
}

// Request is one address to verify: either already extracted fields or a
// document to read them from.
type Request struct {
	Source   string
	Address  *models.ExtractedAddress
	Document *docreader.Document
}

// Outcome is everything a verification produced.
type Outcome struct {
	Verification *models.Verification
	Extraction   *docreader.Extraction // nil for address requests
	Geocode      geocoder.Result
	MapsLink     string
	Persisted    bool
}

// Pipeline runs extract, geocode, validate, score and assess, then stores
// the result when a repository is configured.
type Pipeline struct {
	reader    DocumentReader
	geocoder  Geocoder
	validator CatalogValidator
	analyzer  *address.Analyzer
	engine    *decision.Engine
	repo      domain.VerificationRepository
	events    events.EventStore
	log       *logging.ComponentLogger
}

// PipelineDeps are the collaborators of a Pipeline. Repo and Events may be nil.
type PipelineDeps struct {
	Reader    DocumentReader
	Geocoder  Geocoder
	Validator CatalogValidator
	Analyzer  *address.Analyzer
	Repo      domain.VerificationRepository
	Events    events.EventStore
	Logger    *logging.Logger
}

func NewPipeline(d PipelineDeps) *Pipeline {
	if d.Analyzer == nil {
		d.Analyzer = address.Default()
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return &Pipeline{
		reader:    d.Reader,
		geocoder:  d.Geocoder,
		validator: d.Validator,
		analyzer:  d.Analyzer,
		engine:    decision.NewEngine(),
		repo:      d.Repo,
		events:    d.Events,
		log:       d.Logger.WithComponent("pipeline"),
	}
}

// Assess is the pure part of a verification: catalog check, similarity and
// risk rules over an already resolved geocode.
func (p *Pipeline) Assess(extracted models.ExtractedAddress, geo models.GeocodeResult) (models.CatalogValidationResult, models.SimilarityResult, models.ValidationVerdict) {
	cat := p.validator.Validate(extracted.CatalogQuery())
	sim := p.similarity(extracted.FullAddress, geo)
	verdict := p.engine.Assess(decision.Input{
		Extracted:  extracted,
		Geocode:    geo,
		Catalog:    cat,
		Similarity: sim,
	})
	return cat, sim, verdict
}

func (p *Pipeline) similarity(full string, geo models.GeocodeResult) models.SimilarityResult {
	if !geo.Success {
		return models.SimilarityResult{Percentage: 0, Differences: []string{geocodeUnverified}}
	}
	return p.analyzer.Score(full, geo.FormattedAddress)
}

// Verify runs the whole pipeline for req. Only extraction and input
// problems are errors; geocoding trouble and persistence failures are not.
func (p *Pipeline) Verify(ctx context.Context, req Request) (*Outcome, error) {
	const op = "processor.Verify"
	start := time.Now()
	defer mPipeline.Since(start)

	out := &Outcome{}
	var extracted models.ExtractedAddress
	switch {
	case req.Document != nil:
		if p.reader == nil {
			return nil, errs.NewConfig(op, "document reader not configured", nil)
		}
		ext, err := p.reader.Extract(ctx, *req.Document)
		if err != nil {
			return nil, err
		}
		out.Extraction = ext
		extracted = ext.Address
		if req.Source == "" {
			req.Source = SourceDocument
		}
	case req.Address != nil:
		extracted = *req.Address
		if req.Source == "" {
			req.Source = SourceAddress
		}
	default:
		return nil, errs.NewValidation(op, "address or document required", nil)
	}

	extracted.FullAddress = strings.TrimSpace(extracted.FullAddress)
	if extracted.FullAddress == "" {
		extracted.FullAddress = docreader.ComposeFullAddress(extracted)
	}
	if extracted.FullAddress == "" {
		return nil, errs.NewValidation(op, "address has no usable fields", nil)
	}

	out.Geocode = p.geocoder.Geocode(ctx, extracted.FullAddress)
	cat, sim, verdict := p.Assess(extracted, out.Geocode.GeocodeResult)
	if out.Geocode.Success {
		out.MapsLink = out.Geocode.MapsLink()
	} else {
		out.MapsLink = geocoder.SearchLink(extracted.FullAddress)
	}

	v := models.NewVerification(req.Source, extracted, out.Geocode.GeocodeResult, cat, sim, verdict)
	out.Verification = v
	out.Persisted = p.persist(ctx, v, out.Extraction)

	p.log.Info("address verified",
		logging.String("verification_id", v.ID),
		logging.String("source", v.Source),
		logging.String("state", string(verdict.DecisionState)),
		logging.Int("confidence", verdict.FinalConfidence),
		logging.Int("alerts", len(verdict.Alerts)),
		logging.Bool("geocoded", out.Geocode.Success),
		logging.Duration("elapsed", time.Since(start)))
	return out, nil
}

// persist stores v and its history. Failures are logged; the verdict is
// still returned to the caller.
func (p *Pipeline) persist(ctx context.Context, v *models.Verification, ext *docreader.Extraction) bool {
	saved := false
	if p.repo != nil {
		if err := p.repo.SaveVerificationCtx(ctx, v); err != nil {
			p.log.Error("failed to save verification", err, logging.String("verification_id", v.ID))
		} else {
			saved = true
		}
	}
	if p.events != nil {
		if err := p.events.Append(ctx, verificationEvents(v, ext)...); err != nil {
			p.log.Warn("failed to append verification events", logging.String("verification_id", v.ID), logging.Error(err))
		}
	}
	return saved
}

func verificationEvents(v *models.Verification, ext *docreader.Extraction) []events.Event {
	received := events.VerificationReceived{
		Base:        events.NewBase(v.ID, nil),
		Source:      v.Source,
		FullAddress: v.Extracted.FullAddress,
	}
	if ext != nil {
		received.Document = ext.DocumentType
	}
	kinds := make([]string, 0, len(v.Verdict.Alerts))
	for _, a := range v.Verdict.Alerts {
		kinds = append(kinds, a.Kind)
	}
	assessed := events.VerificationAssessed{
		Base:           events.NewBase(v.ID, nil),
		Confidence:     v.Verdict.FinalConfidence,
		State:          string(v.Verdict.DecisionState),
		AlertKinds:     kinds,
		Similarity:     v.Similarity.Percentage,
		GeocodeSuccess: v.Geocode.Success,
		CPExists:       v.Catalog.CPExists,
	}
	return []events.Event{received, assessed}
}

// Review applies a reviewer's ruling to a stored verification and records
// it in the event history.
func (p *Pipeline) Review(ctx context.Context, id string, decisionState models.DecisionState, notes, reviewer string) (*models.Verification, error) {
	const op = "processor.Review"
	if p.repo == nil {
		return nil, errs.NewConfig(op, "persistence disabled: set DATABASE_URL", nil)
	}
	v, err := p.repo.GetVerificationCtx(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := domain.NewReview(v, decisionState, notes, reviewer)
	if err != nil {
		return nil, err
	}
	override := domain.NewReviewOverride(v, d)

	updated, err := p.repo.ReviewVerificationCtx(ctx, id, d)
	if err != nil {
		return nil, err
	}
	if p.events != nil {
		actor := reviewer
		ev := events.VerificationReviewed{
			Base:      events.NewBase(id, &actor),
			Decision:  string(d.Decision),
			Notes:     d.Notes,
			Overrides: override.Overrides(),
		}
		if err := p.events.Append(ctx, ev); err != nil {
			p.log.Warn("failed to append review event", logging.String("verification_id", id), logging.Error(err))
		}
	}
	p.log.Info("verification reviewed",
		logging.String("verification_id", id),
		logging.String("reviewer", reviewer),
		logging.String("decision", string(d.Decision)),
		logging.Bool("override", override.Overrides()))
	return updated, nil
}
