package api

import (
	"fmt"
	"net/http"
	"strings"

	"skill-runner/internal/catalog"
	"skill-runner/internal/constants"
	"skill-runner/internal/models"
	"skill-runner/internal/validation"
)

// postalCodeResponse is the lookup answer for an existing code.
type postalCodeResponse struct {
	CP                string                      `json:"cp"`
	Exists            bool                        `json:"existe"`
	TotalRecords      int                         `json:"total_registros"`
	Location          models.Location             `json:"ubicacion"`
	Settlements       []string                    `json:"colonias"`
	TotalSettlements  int                         `json:"total_colonias"`
	SettlementTypes   []string                    `json:"tipos_asentamiento"`
	SettlementsByType map[string][]string         `json:"colonias_por_tipo"`
	Records           []models.PostalCatalogEntry `json:"registros_completos"`
}

// ValidateCPHandler handles GET /api/validate-cp?cp=XXXXX
func ValidateCPHandler(cat func() *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			unavailable(w, "postal catalog")
			return
		}
		cp := r.URL.Query().Get("cp")
		if err := validation.ValidatePostalCode(cp); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		cp = strings.TrimSpace(cp)

		c := cat()
		records := c.LookupByPostalCode(cp)
		if len(records) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{
				"cp":      cp,
				"existe":  false,
				"mensaje": fmt.Sprintf("El código postal %s no existe en el catálogo oficial de SEPOMEX", cp),
			})
			return
		}

		loc, _ := c.Location(cp)
		settlements := c.SettlementNames(cp)
		types, byType := c.SettlementsByType(cp)
		writeJSON(w, http.StatusOK, postalCodeResponse{
			CP:                cp,
			Exists:            true,
			TotalRecords:      len(records),
			Location:          loc,
			Settlements:       settlements,
			TotalSettlements:  len(settlements),
			SettlementTypes:   types,
			SettlementsByType: byType,
			Records:           records[:min(len(records), constants.MaxCatalogRecordsInResponse)],
		})
	}
}

// SearchPostalCodesHandler handles GET /api/postal-codes/search?colonia=&municipio=&estado=
func SearchPostalCodesHandler(cat func() *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			unavailable(w, "postal catalog")
			return
		}
		q := r.URL.Query()
		query := catalog.SearchQuery{
			Settlement:   strings.TrimSpace(q.Get("colonia")),
			Municipality: strings.TrimSpace(q.Get("municipio")),
			State:        strings.TrimSpace(q.Get("estado")),
		}
		if query.Settlement == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Colonia requerida"})
			return
		}
		for name, v := range map[string]string{"colonia": query.Settlement, "municipio": query.Municipality, "estado": query.State} {
			if err := validation.ValidateSearchTerm(name, v); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
		}

		results := cat().Search(query)
		if results == nil {
			results = []models.PostalCatalogEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"resultados": results,
			"total":      len(results),
		})
	}
}
