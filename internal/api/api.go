package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"skill-runner/internal/auth"
	"skill-runner/internal/catalog"
	"skill-runner/internal/docreader"
	"skill-runner/internal/constants"
	"skill-runner/internal/domain"
	"skill-runner/internal/processor"
	errs "skill-runner/pkg/errors"
	"skill-runner/pkg/events"
	"skill-runner/pkg/health"
	"skill-runner/pkg/logging"
	"skill-runner/pkg/metrics"
)

var mErrors = metrics.Default.CounterVec("api_errors_total", "API error responses by kind", "kind")

// Deps are the collaborators behind the HTTP API. Repo, Events, Engine,
// Reviewers and Health may be nil; the routes that need them then answer
// 503.
type Deps struct {
	Catalog   func() *catalog.Catalog
	Pipeline  *processor.Pipeline
	Engine    processor.Engine
	Repo      domain.Repository
	Events    events.EventStore
	Reviewers *auth.ReviewerResolver
	Health    *health.HealthManager
	Logger    *logging.Logger
	// Costs reports the document reader's token spend; optional.
	Costs     func() docreader.CostStats
}

// NewRouter registers every route on a gorilla/mux router.
func NewRouter(d Deps) *mux.Router {
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/validate-cp", ValidateCPHandler(d.Catalog)).Methods(http.MethodGet)
	api.HandleFunc("/postal-codes/search", SearchPostalCodesHandler(d.Catalog)).Methods(http.MethodGet)

	api.HandleFunc("/addresses/verify", VerifyHandler(d.Pipeline)).Methods(http.MethodPost)
	api.HandleFunc("/addresses/assess", AssessHandler(d.Pipeline)).Methods(http.MethodPost)
	api.HandleFunc("/addresses/verify/batch", BatchHandler(d.Engine)).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", JobHandler(d.Engine)).Methods(http.MethodGet)
	api.HandleFunc("/stats", StatsHandler(d.Engine, d.Repo, d.Costs)).Methods(http.MethodGet)

	api.HandleFunc("/verifications", ListVerificationsHandler(d.Repo)).Methods(http.MethodGet)
	api.HandleFunc("/verifications/{id}", GetVerificationHandler(d.Repo)).Methods(http.MethodGet)
	api.HandleFunc("/verifications/{id}/events", EventsHandler(d.Events)).Methods(http.MethodGet)
	api.HandleFunc("/verifications/{id}/reviews", ReviewLogsHandler(d.Repo)).Methods(http.MethodGet)

	review := http.Handler(ReviewHandler(d.Pipeline))
	if d.Reviewers != nil {
		review = auth.NewReviewerMiddleware(d.Reviewers, forbidden).Handler(review)
	}
	api.Handle("/verifications/{id}/review", review).Methods(http.MethodPost)

	if d.Health != nil {
		r.Handle("/health", d.Health.Handler()).Methods(http.MethodGet)
		r.Handle("/health/live", d.Health.LivenessHandler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	return r
}

func forbidden(w http.ResponseWriter, ip string) {
	writeJSON(w, http.StatusForbidden, map[string]string{
		"error": "La IP " + ip + " no está autorizada para revisar verificaciones",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error kind to a status code. Unknown kinds are 500
// and their detail is not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	code, msg := http.StatusInternalServerError, "internal error"
	switch kind {
	case errs.KindValidation:
		code, msg = http.StatusBadRequest, message(err)
	case errs.KindNotFound:
		code, msg = http.StatusNotFound, message(err)
	case errs.KindConflict:
		code, msg = http.StatusConflict, message(err)
	case errs.KindExternal:
		code, msg = http.StatusBadGateway, message(err)
	case errs.KindConfig:
		code, msg = http.StatusServiceUnavailable, message(err)
	}
	if kind == "" {
		kind = "internal"
	}
	mErrors.With(string(kind)).Inc()
	if code >= 500 {
		logging.Default().WithContext(r.Context()).Error("request failed", err,
			logging.String("path", r.URL.Path), logging.Int("status", code))
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

// message is the operator-facing text of the outermost typed error.
func message(err error) string {
	var e *errs.Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}

func unavailable(w http.ResponseWriter, what string) {
	mErrors.With("unavailable").Inc()
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": what + " is not configured"})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return errs.NewValidation("api.decodeJSON", "request body too large", err)
		}
		return errs.NewValidation("api.decodeJSON", "invalid JSON body", err)
	}
	return nil
}
