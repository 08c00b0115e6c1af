package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"skill-runner/internal/auth"
	"skill-runner/internal/domain"
	"skill-runner/internal/domain/specs"
	"skill-runner/internal/models"
	"skill-runner/internal/processor"
	"skill-runner/internal/validation"
	errs "skill-runner/pkg/errors"
	"skill-runner/pkg/events"
	"skill-runner/pkg/logging"
	"skill-runner/pkg/metrics"
)

var (
	mReviews = metrics.Default.CounterVec("reviews_total", "Reviewer decisions by outcome", "decision")
	gPending = metrics.Default.Gauge("review_queue_pending", "Verifications waiting for a reviewer, as of the last listing")
)

// specFilterer is implemented by repositories that can apply a
// specification themselves.
type specFilterer interface {
	FilterBySpecCtx(ctx context.Context, f models.VerificationFilter, s specs.Specification[models.Verification]) ([]models.Verification, int, error)
}

func parseListQuery(r *http.Request) (models.VerificationFilter, specs.Criteria, error) {
	const op = "api.parseListQuery"
	q := r.URL.Query()
	f := models.VerificationFilter{
		State:  models.DecisionState(strings.ToUpper(strings.TrimSpace(q.Get("state")))),
		Search: strings.TrimSpace(q.Get("search")),
	}
	if err := validation.ValidateDecisionState(string(f.State)); err != nil {
		return f, specs.Criteria{}, errs.NewValidation(op, err.Error(), nil)
	}
	if err := validation.ValidateSearchTerm("search", f.Search); err != nil {
		return f, specs.Criteria{}, errs.NewValidation(op, err.Error(), nil)
	}

	ints := map[string]*int{"limit": &f.Limit, "offset": &f.Offset}
	var minC, maxC *int
	for _, name := range []string{"limit", "offset", "min_confidence", "max_confidence"} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, specs.Criteria{}, errs.NewValidation(op, name+" must be a non-negative integer", nil)
		}
		switch name {
		case "min_confidence":
			minC = &n
		case "max_confidence":
			maxC = &n
		default:
			*ints[name] = n
		}
	}

	c := specs.Criteria{
		AlertKind:     strings.ToUpper(strings.TrimSpace(q.Get("alert"))),
		MinConfidence: minC,
		MaxConfidence: maxC,
		Source:        strings.TrimSpace(q.Get("source")),
		OnlyPending:   q.Get("pending") == "true",
	}
	return f, c, nil
}

// ListVerificationsHandler handles GET /api/verifications. state and
// search filter in SQL; alert, min_confidence, max_confidence, source and
// pending narrow the returned page. total counts the SQL matches.
func ListVerificationsHandler(repo domain.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			unavailable(w, "persistence")
			return
		}
		f, c, err := parseListQuery(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var (
			items []models.Verification
			total int
		)
		spec := specs.Build(c)
		if sf, ok := repo.(specFilterer); ok && !c.Empty() {
			items, total, err = sf.FilterBySpecCtx(r.Context(), f, spec)
		} else {
			items, total, err = repo.ListVerificationsCtx(r.Context(), f)
			if err == nil && !c.Empty() {
				items = specs.Filter(r.Context(), spec, items)
			}
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		if f.State == models.DecisionNeedsReview && f.Search == "" {
			gPending.SetFloat64(float64(total))
		}
		if items == nil {
			items = []models.Verification{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":  items,
			"total":  total,
			"count":  len(items),
			"offset": f.Offset,
		})
	}
}

// GetVerificationHandler handles GET /api/verifications/{id}
func GetVerificationHandler(repo domain.VerificationRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			unavailable(w, "persistence")
			return
		}
		v, err := repo.GetVerificationCtx(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// ReviewHandler handles POST /api/verifications/{id}/review. The reviewer
// comes from the auth middleware.
func ReviewHandler(p *processor.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p == nil {
			unavailable(w, "verification pipeline")
			return
		}
		reviewer, ok := auth.ReviewerFromContext(r.Context())
		if !ok {
			forbidden(w, auth.ClientIP(r))
			return
		}
		var in models.ReviewDecision
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		in.Decision = models.DecisionState(strings.ToUpper(strings.TrimSpace(string(in.Decision))))

		id := mux.Vars(r)["id"]
		r = r.WithContext(logging.ContextWithVerificationID(r.Context(), id))
		v, err := p.Review(r.Context(), id, in.Decision, strings.TrimSpace(in.Notes), reviewer)
		if err != nil {
			writeError(w, r, err)
			return
		}
		mReviews.With(string(v.State)).Inc()
		writeJSON(w, http.StatusOK, v)
	}
}

// EventsHandler handles GET /api/verifications/{id}/events: the stored
// history and the state replayed from it.
func EventsHandler(store events.EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			unavailable(w, "event store")
			return
		}
		id := mux.Vars(r)["id"]
		evs, err := store.ListByVerification(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(evs) == 0 {
			writeError(w, r, errs.NewNotFound("api.Events", "no events for verification "+id))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"events": evs,
			"state":  events.Replay(evs),
		})
	}
}

// ReviewLogsHandler handles GET /api/verifications/{id}/reviews
func ReviewLogsHandler(repo domain.ReviewLogRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			unavailable(w, "persistence")
			return
		}
		logs, err := repo.ListReviewLogsCtx(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		if logs == nil {
			logs = []models.ReviewLog{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"reviews": logs})
	}
}
