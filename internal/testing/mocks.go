package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"skill-runner/internal/catalog"
	"skill-runner/internal/docreader"
	"skill-runner/internal/domain"
	"skill-runner/internal/geocoder"
	"skill-runner/internal/models"
	errs "skill-runner/pkg/errors"
)

// SampleEntries is a small slice of the postal catalog shared by tests.
var SampleEntries = []models.PostalCatalogEntry{
	{PostalCode: "64000", SettlementName: "Centro", SettlementType: "Colonia", Municipality: "Monterrey", State: "Nuevo León", City: "Monterrey"},
	{PostalCode: "64000", SettlementName: "Obispado", SettlementType: "Colonia", Municipality: "Monterrey", State: "Nuevo León", City: "Monterrey"},
	{PostalCode: "45050", SettlementName: "Jardines del Bosque", SettlementType: "Colonia", Municipality: "Guadalajara", State: "Jalisco", City: "Guadalajara"},
}

// SampleCatalog builds a catalog over SampleEntries.
func SampleCatalog() *catalog.Catalog { return catalog.New(SampleEntries) }

// MockGeocoder answers from a map keyed by the exact address. Unknown
// addresses come back as not found.
type MockGeocoder struct {
	Mu    sync.Mutex
	Resp  map[string]geocoder.Result
	Calls int
}

func NewMockGeocoder() *MockGeocoder {
	return &MockGeocoder{Resp: map[string]geocoder.Result{}}
}

// Found registers a successful answer for addr.
func (m *MockGeocoder) Found(addr, formatted string, lat, lng float64) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Resp[addr] = geocoder.Result{GeocodeResult: models.GeocodeResult{
		FormattedAddress: formatted, Latitude: lat, Longitude: lng, Success: true,
	}}
}

func (m *MockGeocoder) Geocode(_ context.Context, addr string) geocoder.Result {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if r, ok := m.Resp[addr]; ok {
		return r
	}
	return geocoder.Result{GeocodeResult: models.GeocodeResult{FormattedAddress: geocoder.ReasonNotFound}}
}

// MockReader returns a fixed extraction or error. Errs, when non-empty, is
// consumed one error per call before falling back to Resp.
type MockReader struct {
	Mu    sync.Mutex
	Resp  *docreader.Extraction
	Errs  []error
	Calls int
}

func (m *MockReader) Extract(_ context.Context, _ docreader.Document) (*docreader.Extraction, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		return nil, err
	}
	if m.Resp == nil {
		return nil, errs.NewExternal("MockReader.Extract", "openai", "no response configured", nil)
	}
	ext := *m.Resp
	return &ext, nil
}

// MemoryRepository is an in-memory domain.Repository.
type MemoryRepository struct {
	Mu      sync.Mutex
	Items   map[string]*models.Verification
	Logs    map[string][]models.ReviewLog
	SaveErr error
	nextLog int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{Items: map[string]*models.Verification{}, Logs: map[string][]models.ReviewLog{}}
}

var _ domain.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) SaveVerificationCtx(_ context.Context, v *models.Verification) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	cp := *v
	r.Items[v.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetVerificationCtx(_ context.Context, id string) (*models.Verification, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	v, ok := r.Items[id]
	if !ok {
		return nil, errs.NewNotFound("MemoryRepository.Get", "verification "+id+" not found")
	}
	cp := *v
	return &cp, nil
}

func (r *MemoryRepository) ListVerificationsCtx(_ context.Context, f models.VerificationFilter) ([]models.Verification, int, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	var all []models.Verification
	for _, v := range r.Items {
		if f.State != "" && v.State != f.State {
			continue
		}
		if f.Search != "" && !strings.Contains(v.Extracted.FullAddress, f.Search) && v.Extracted.PostalCode != f.Search {
			continue
		}
		all = append(all, *v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	start := min(max(0, f.Offset), total)
	end := min(start+limit, total)
	return all[start:end], total, nil
}

func (r *MemoryRepository) VerificationStatsCtx(_ context.Context) (*models.VerificationStats, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	var s models.VerificationStats
	for _, v := range r.Items {
		s.Total++
		switch v.State {
		case models.DecisionApproved:
			s.Approved++
		case models.DecisionNeedsReview:
			s.NeedsReview++
		case models.DecisionRejected:
			s.Rejected++
		}
		if v.Reviewed() {
			s.Reviewed++
		}
	}
	return &s, nil
}

func (r *MemoryRepository) ReviewVerificationCtx(_ context.Context, id string, d models.ReviewDecision) (*models.Verification, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	v, ok := r.Items[id]
	if !ok {
		return nil, errs.NewNotFound("MemoryRepository.Review", "verification "+id+" not found")
	}
	if v.Reviewed() {
		return nil, errs.NewConflict("MemoryRepository.Review", "verification "+id+" was already reviewed")
	}
	now := time.Now().UTC()
	reviewer, notes := d.Reviewer, d.Notes
	r.nextLog++
	r.Logs[id] = append(r.Logs[id], models.ReviewLog{
		ID: r.nextLog, VerificationID: id, Reviewer: reviewer,
		PreviousState: v.State, Decision: d.Decision, Notes: &notes, CreatedAt: now,
	})
	v.State = d.Decision
	v.ReviewedBy = &reviewer
	v.ReviewNotes = &notes
	v.ReviewedAt = &now
	v.UpdatedAt = now
	cp := *v
	return &cp, nil
}

func (r *MemoryRepository) ListReviewLogsCtx(_ context.Context, id string) ([]models.ReviewLog, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return append([]models.ReviewLog(nil), r.Logs[id]...), nil
}
