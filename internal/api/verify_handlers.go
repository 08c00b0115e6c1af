package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"skill-runner/internal/constants"
	"skill-runner/internal/docreader"
	"skill-runner/internal/domain"
	"skill-runner/internal/geocoder"
	"skill-runner/internal/models"
	"skill-runner/internal/processor"
	"skill-runner/internal/validation"
	errs "skill-runner/pkg/errors"
)

type documentPayload struct {
	Data         string `json:"data"` // base64, optionally as a data URL
	MimeType     string `json:"mime_type"`
	Filename     string `json:"filename,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// verifyRequest carries exactly one of Address or Document.
type verifyRequest struct {
	Address  *models.ExtractedAddress `json:"address,omitempty"`
	Document *documentPayload         `json:"document,omitempty"`
}

type coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type verifyResponse struct {
	VerificationID  string                         `json:"verification_id"`
	State           models.DecisionState           `json:"state"`
	Verdict         models.ValidationVerdict       `json:"verdict"`
	DocumentAddress string                         `json:"direccion_documento"`
	DocumentType    string                         `json:"tipo_documento,omitempty"`
	ServiceName     string                         `json:"nombre_servicio,omitempty"`
	GoogleAddress   string                         `json:"direccion_google"`
	Coordinates     coordinates                    `json:"coordenadas"`
	Match           int                            `json:"coincidencia"`
	Differences     []string                       `json:"diferencias"`
	MapsLink        string                         `json:"link_google_maps"`
	Catalog         models.CatalogValidationResult `json:"validacion_sepomex"`
	Extracted       models.ExtractedAddress        `json:"direccion_extraida"`
	Persisted       bool                           `json:"persisted"`
}

func toRequest(in verifyRequest) (processor.Request, error) {
	const op = "api.toRequest"
	switch {
	case in.Address != nil && in.Document != nil:
		return processor.Request{}, errs.NewValidation(op, "send either address or document, not both", nil)
	case in.Address != nil:
		if err := validation.ValidateExtractedAddress(*in.Address); err != nil {
			return processor.Request{}, errs.NewValidation(op, err.Error(), nil)
		}
		return processor.Request{Address: in.Address}, nil
	case in.Document != nil:
		data, mime, err := validation.DecodeDocument(in.Document.Data, in.Document.MimeType)
		if err != nil {
			return processor.Request{}, errs.NewValidation(op, err.Error(), nil)
		}
		return processor.Request{Document: &docreader.Document{
			Data:         data,
			MimeType:     mime,
			Filename:     strings.TrimSpace(in.Document.Filename),
			Instructions: strings.TrimSpace(in.Document.Instructions),
		}}, nil
	}
	return processor.Request{}, errs.NewValidation(op, "address or document required", nil)
}

func newVerifyResponse(out *processor.Outcome) verifyResponse {
	v := out.Verification
	resp := verifyResponse{
		VerificationID:  v.ID,
		State:           v.State,
		Verdict:         v.Verdict,
		DocumentAddress: v.Extracted.FullAddress,
		GoogleAddress:   v.Geocode.FormattedAddress,
		Coordinates:     coordinates{Lat: v.Geocode.Latitude, Lng: v.Geocode.Longitude},
		Match:           v.Similarity.Percentage,
		Differences:     v.Similarity.Differences,
		MapsLink:        out.MapsLink,
		Catalog:         v.Catalog,
		Extracted:       v.Extracted,
		Persisted:       out.Persisted,
	}
	if out.Extraction != nil {
		resp.DocumentType = out.Extraction.DocumentType
		resp.ServiceName = out.Extraction.ServiceName
	}
	return resp
}

// VerifyHandler handles POST /api/addresses/verify
func VerifyHandler(p *processor.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p == nil {
			unavailable(w, "verification pipeline")
			return
		}
		var in verifyRequest
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		req, err := toRequest(in)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), constants.SyncVerifyTimeout)
		defer cancel()
		out, err := p.Verify(ctx, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newVerifyResponse(out))
	}
}

type assessRequest struct {
	Address models.ExtractedAddress `json:"address"`
	Geocode models.GeocodeResult    `json:"geocode"`
}

// AssessHandler handles POST /api/addresses/assess. Nothing is geocoded or
// stored.
func AssessHandler(p *processor.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p == nil {
			unavailable(w, "verification pipeline")
			return
		}
		var in assessRequest
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		if strings.TrimSpace(in.Address.FullAddress) == "" {
			in.Address.FullAddress = docreader.ComposeFullAddress(in.Address)
		}
		if err := validation.ValidateExtractedAddress(in.Address); err != nil {
			writeError(w, r, errs.NewValidation("api.Assess", err.Error(), nil))
			return
		}
		if err := validation.ValidateGeocode(in.Geocode); err != nil {
			writeError(w, r, errs.NewValidation("api.Assess", err.Error(), nil))
			return
		}

		cat, sim, verdict := p.Assess(in.Address, in.Geocode)
		link := geocoder.SearchLink(in.Address.FullAddress)
		if in.Geocode.Success {
			link = geocoder.MapsLink(in.Geocode.Latitude, in.Geocode.Longitude)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"verdict":            verdict,
			"similitud":          sim,
			"validacion_sepomex": cat,
			"link_google_maps":   link,
		})
	}
}

type batchRequest struct {
	Addresses []models.ExtractedAddress `json:"addresses"`
}

// BatchHandler handles POST /api/addresses/verify/batch
func BatchHandler(e processor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if e == nil {
			unavailable(w, "batch processor")
			return
		}
		var in batchRequest
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		if len(in.Addresses) == 0 {
			writeError(w, r, errs.NewValidation("api.Batch", "addresses required", nil))
			return
		}
		if len(in.Addresses) > constants.MaxBatchSize {
			writeError(w, r, errs.NewValidation("api.Batch",
				fmt.Sprintf("at most %d addresses per batch", constants.MaxBatchSize), nil))
			return
		}

		reqs := make([]processor.Request, len(in.Addresses))
		for i := range in.Addresses {
			if err := validation.ValidateExtractedAddress(in.Addresses[i]); err != nil {
				writeError(w, r, errs.NewValidation("api.Batch", fmt.Sprintf("address %d: %v", i, err), nil))
				return
			}
			reqs[i] = processor.Request{Address: &in.Addresses[i], Source: processor.SourceBatch}
		}

		ids, err := e.Submit(reqs)
		switch {
		case errors.Is(err, processor.ErrQueueFull) && len(ids) > 0:
			writeJSON(w, http.StatusAccepted, map[string]any{"job_ids": ids, "queued": len(ids), "rejected": len(reqs) - len(ids)})
		case errors.Is(err, processor.ErrQueueFull):
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "batch queue is full, retry later"})
		case errors.Is(err, processor.ErrStopped):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "processor is shutting down"})
		case err != nil:
			writeError(w, r, err)
		default:
			writeJSON(w, http.StatusAccepted, map[string]any{"job_ids": ids, "queued": len(ids)})
		}
	}
}

// JobHandler handles GET /api/jobs/{id}
func JobHandler(e processor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if e == nil {
			unavailable(w, "batch processor")
			return
		}
		id := mux.Vars(r)["id"]
		res, ok := e.Result(id)
		if !ok {
			writeError(w, r, errs.NewNotFound("api.Job", "job "+id+" not found"))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// StatsHandler handles GET /api/stats. Stored counts are included when
// persistence is enabled.
func StatsHandler(e processor.Engine, repo domain.VerificationRepository, costs func() docreader.CostStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{}
		if e != nil {
			resp["processor"] = e.GetStats()
		}
		if costs != nil {
			resp["llm_costs"] = costs()
		}
		if repo != nil {
			st, err := repo.VerificationStatsCtx(r.Context())
			if err != nil {
				writeError(w, r, err)
				return
			}
			resp["verifications"] = st
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
