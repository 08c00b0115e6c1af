package processor_test

import (
	"context"
	"strings"
	"testing"

	"skill-runner/internal/catalog"
	"skill-runner/internal/docreader"
	"skill-runner/internal/models"
	"skill-runner/internal/processor"
	testutil "skill-runner/internal/testing"
	errs "skill-runner/pkg/errors"
	"skill-runner/pkg/events"
	"skill-runner/pkg/logging"
)

const centroAddress = "Av. Constitución 100, Colonia Centro, CP 64000, Monterrey, Nuevo León, México"

type fixture struct {
	geo    *testutil.MockGeocoder
	reader *testutil.MockReader
	repo   *testutil.MemoryRepository
	events *events.MemoryStore
	p      *processor.Pipeline
}

func newFixture() *fixture {
	f := &fixture{
		geo:    testutil.NewMockGeocoder(),
		reader: &testutil.MockReader{},
		repo:   testutil.NewMemoryRepository(),
		events: events.NewMemoryStore(0),
	}
	f.geo.Found(centroAddress, "Av. Constitución 100, Centro, 64000 Monterrey, N.L., México", 25.6714, -100.3093)
	f.p = processor.NewPipeline(processor.PipelineDeps{
		Reader:    f.reader,
		Geocoder:  f.geo,
		Validator: catalog.NewValidator(testutil.SampleCatalog(), nil),
		Repo:      f.repo,
		Events:    f.events,
		Logger:    logging.NewDiscard(),
	})
	return f
}

func centro(full string) *models.ExtractedAddress {
	return &models.ExtractedAddress{
		FullAddress:  full,
		Street:       "Av. Constitución",
		StreetNumber: "100",
		Settlement:   "Centro",
		Municipality: "Monterrey",
		State:        "Nuevo León",
		PostalCode:   "64000",
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name           string
		addr           *models.ExtractedAddress
		wantState      models.DecisionState
		wantConfidence int // -1 skips the exact check
		wantKinds      []string
		wantLinkPrefix string
	}{
		{
			name:           "matching address approves",
			addr:           centro(centroAddress),
			wantState:      models.DecisionApproved,
			wantConfidence: 100,
			wantLinkPrefix: "https://www.google.com/maps/search/?api=1&query=25.6714,-100.3093",
		},
		{
			name:           "ungeocodable address needs review",
			addr:           centro("Av. Constitución 100, Colonia Centro, CP 64000, Monterrey"),
			wantState:      models.DecisionNeedsReview,
			wantConfidence: 20,
			wantKinds:      []string{models.KindGeocodeFailed},
			wantLinkPrefix: "https://www.google.com/maps/search/Av.%20Constituci%C3%B3n",
		},
		{
			name: "unknown postal code rejects",
			addr: &models.ExtractedAddress{
				FullAddress: "Calle Falsa 123, CP 99999, Monterrey", PostalCode: "99999", Settlement: "Centro",
			},
			wantState:      models.DecisionRejected,
			wantConfidence: -1,
			wantKinds:      []string{models.KindPostalCodeInvalid, models.KindGeocodeFailed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			out, err := f.p.Verify(context.Background(), processor.Request{Address: tt.addr})
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			v := out.Verification
			if v.Verdict.DecisionState != tt.wantState || v.State != tt.wantState {
				t.Errorf("state = %s/%s, want %s", v.Verdict.DecisionState, v.State, tt.wantState)
			}
			if tt.wantConfidence >= 0 && v.Verdict.FinalConfidence != tt.wantConfidence {
				t.Errorf("confidence = %d, want %d", v.Verdict.FinalConfidence, tt.wantConfidence)
			}
			var kinds []string
			for _, a := range v.Verdict.Alerts {
				kinds = append(kinds, a.Kind)
			}
			if strings.Join(kinds, ",") != strings.Join(tt.wantKinds, ",") {
				t.Errorf("alerts = %v, want %v", kinds, tt.wantKinds)
			}
			if !strings.HasPrefix(out.MapsLink, tt.wantLinkPrefix) {
				t.Errorf("maps link = %q, want prefix %q", out.MapsLink, tt.wantLinkPrefix)
			}
			if v.Source != processor.SourceAddress || !out.Persisted {
				t.Errorf("source = %q persisted = %v", v.Source, out.Persisted)
			}
			if evs, _ := f.events.ListByVerification(context.Background(), v.ID); len(evs) != 2 {
				t.Errorf("events = %d, want 2", len(evs))
			}
		})
	}
}

func TestVerifyGeocodeFailureReportsUnverified(t *testing.T) {
	f := newFixture()
	out, err := f.p.Verify(context.Background(), processor.Request{Address: &models.ExtractedAddress{FullAddress: "Calle Sin Nombre 5, Saltillo"}})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	sim := out.Verification.Similarity
	if sim.Percentage != 0 || len(sim.Differences) != 1 || !strings.HasPrefix(sim.Differences[0], "No se pudo verificar") {
		t.Errorf("similarity = %+v", sim)
	}
	// no postal code supplied: the geocode alert is not raised, nothing else fires
	if out.Verification.Verdict.DecisionState != models.DecisionApproved {
		t.Errorf("state = %s", out.Verification.Verdict.DecisionState)
	}
}

func TestVerifyComposesFullAddress(t *testing.T) {
	f := newFixture()
	addr := centro("")
	out, err := f.p.Verify(context.Background(), processor.Request{Address: addr})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	want := "Av. Constitución #100, Colonia Centro, CP 64000, Monterrey, Nuevo León, México"
	if got := out.Verification.Extracted.FullAddress; got != want {
		t.Errorf("full address = %q, want %q", got, want)
	}
	if f.geo.Calls != 1 {
		t.Errorf("geocoder calls = %d", f.geo.Calls)
	}
}

func TestVerifyDocument(t *testing.T) {
	f := newFixture()
	f.reader.Resp = &docreader.Extraction{DocumentType: "recibo_luz", ServiceName: "CFE", Address: *centro(centroAddress)}

	out, err := f.p.Verify(context.Background(), processor.Request{
		Document: &docreader.Document{Data: []byte{0xff, 0xd8}, MimeType: "image/jpeg"},
	})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if out.Extraction == nil || out.Extraction.ServiceName != "CFE" {
		t.Errorf("extraction = %+v", out.Extraction)
	}
	if out.Verification.Source != processor.SourceDocument {
		t.Errorf("source = %q", out.Verification.Source)
	}
	st, _ := events.ReplayVerification(context.Background(), f.events, out.Verification.ID)
	if st.Source != processor.SourceDocument || st.State != string(models.DecisionApproved) {
		t.Errorf("replayed state = %+v", st)
	}
}

func TestVerifyErrors(t *testing.T) {
	tests := []struct {
		name string
		req  processor.Request
		prep func(*fixture)
		want error
	}{
		{name: "empty request", req: processor.Request{}, want: errs.ErrValidation},
		{name: "no usable fields", req: processor.Request{Address: &models.ExtractedAddress{FullAddress: "  "}}, want: errs.ErrValidation},
		{
			name: "extraction failure",
			req:  processor.Request{Document: &docreader.Document{Data: []byte("x"), MimeType: "text/plain"}},
			prep: func(f *fixture) { f.reader.Errs = []error{errs.NewExternal("test", "openai", "boom", nil)} },
			want: errs.ErrExternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.prep != nil {
				tt.prep(f)
			}
			if _, err := f.p.Verify(context.Background(), tt.req); !errs.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifySurvivesPersistenceFailure(t *testing.T) {
	f := newFixture()
	f.repo.SaveErr = errs.NewDB("test", "down", nil)
	out, err := f.p.Verify(context.Background(), processor.Request{Address: centro(centroAddress)})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if out.Persisted {
		t.Error("Persisted should be false when the save fails")
	}
}

func TestReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	out, err := f.p.Verify(ctx, processor.Request{Address: centro("Av. Constitución 100, Colonia Centro, CP 64000, Monterrey")})
	if err != nil {
		t.Fatal(err)
	}
	id := out.Verification.ID

	v, err := f.p.Review(ctx, id, models.DecisionApproved, "visita confirmada", "ana")
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if v.State != models.DecisionApproved || v.ReviewedBy == nil || *v.ReviewedBy != "ana" {
		t.Errorf("reviewed = %+v", v)
	}
	if v.Verdict.DecisionState != models.DecisionNeedsReview {
		t.Errorf("review must keep the engine verdict, got %s", v.Verdict.DecisionState)
	}

	st, _ := events.ReplayVerification(ctx, f.events, id)
	if !st.Reviewed || !st.Overridden || st.ReviewedBy != "ana" || st.Events != 3 {
		t.Errorf("replayed = %+v", st)
	}

	if _, err := f.p.Review(ctx, id, models.DecisionRejected, "", "ana"); !errs.Is(err, errs.ErrConflict) {
		t.Errorf("second review err = %v, want conflict", err)
	}
	if _, err := f.p.Review(ctx, "missing", models.DecisionApproved, "", "ana"); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("missing err = %v, want not found", err)
	}
}

func TestReviewWithoutPersistence(t *testing.T) {
	p := processor.NewPipeline(processor.PipelineDeps{
		Geocoder:  testutil.NewMockGeocoder(),
		Validator: catalog.NewValidator(testutil.SampleCatalog(), nil),
		Logger:    logging.NewDiscard(),
	})
	if _, err := p.Review(context.Background(), "x", models.DecisionApproved, "", "ana"); !errs.Is(err, errs.ErrConfig) {
		t.Errorf("err = %v, want config", err)
	}
}
