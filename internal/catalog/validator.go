package catalog

import (
	"fmt"
	"strings"

	"skill-runner/internal/address"
	"skill-runner/internal/constants"
	"skill-runner/internal/models"
)

// Validator checks structured addresses against a postal catalog.
type Validator struct {
	src      Source
	analyzer *address.Analyzer
}

// NewValidator builds a validator over src. A nil analyzer uses the
// embedded dictionary.
func NewValidator(src Source, analyzer *address.Analyzer) *Validator {
	if analyzer == nil {
		analyzer = address.Default()
	}
	return &Validator{src: src, analyzer: analyzer}
}

// Validate never fails: a missing or unknown postal code is reported
// through the result flags and suggestions.
func (v *Validator) Validate(q models.CatalogQuery) models.CatalogValidationResult {
	res := models.CatalogValidationResult{Suggestions: []string{}}

	code := strings.TrimSpace(q.PostalCode)
	if code == "" {
		res.Suggestions = append(res.Suggestions, "No se proporcionó código postal")
		return res
	}

	entries := v.src.LookupByPostalCode(code)
	if len(entries) == 0 {
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("El CP %s no existe en el catálogo de SEPOMEX", code))
		return res
	}

	res.CPExists = true
	official := entries[0]

	if s := strings.TrimSpace(q.Settlement); s != "" {
		input := v.matchKey(s)
		for _, e := range entries {
			if address.Contains(input, v.matchKey(e.SettlementName)) {
				res.ColoniaMatch = true
				official = e
				break
			}
		}
		if !res.ColoniaMatch {
			res.Suggestions = append(res.Suggestions, settlementSuggestion(s, code, entries))
		}
	}

	if m := strings.TrimSpace(q.Municipality); m != "" {
		res.MunicipioMatch = address.Contains(v.matchKey(m), v.matchKey(official.Municipality))
		if !res.MunicipioMatch {
			res.Suggestions = append(res.Suggestions,
				fmt.Sprintf("El municipio debería ser %q, no %q", official.Municipality, m))
		}
	}

	if s := strings.TrimSpace(q.State); s != "" {
		res.EstadoMatch = v.stateMatches(s, official.State)
		if !res.EstadoMatch {
			res.Suggestions = append(res.Suggestions,
				fmt.Sprintf("El estado debería ser %q, no %q", official.State, s))
		}
	}

	res.OfficialData = &official
	res.IsValid = res.CPExists && (res.ColoniaMatch || strings.TrimSpace(q.Settlement) == "")
	return res
}

// matchKey expands abbreviations and drops everything that is not a letter,
// digit or space, so "Centro (Área 1)" and "Centro Area 1" compare equal.
func (v *Validator) matchKey(s string) string {
	return searchKey(v.analyzer.NormalizeWithAbbreviations(s))
}

// stateMatches accepts containment after alias expansion, or any alias or
// postal abbreviation of the official state ("NL" for "Nuevo León").
func (v *Validator) stateMatches(input, official string) bool {
	in := v.analyzer.NormalizeWithAbbreviations(input)
	off := v.analyzer.NormalizeWithAbbreviations(official)
	if address.Contains(in, off) {
		return true
	}
	raw := address.Normalize(input)
	for _, form := range v.analyzer.Dictionary().StateForms(address.Normalize(official)) {
		if form == raw || form == in {
			return true
		}
	}
	return false
}

func settlementSuggestion(input, code string, entries []models.PostalCatalogEntry) string {
	seen := make(map[string]struct{})
	var names []string
	for _, e := range entries {
		if _, ok := seen[e.SettlementName]; ok {
			continue
		}
		seen[e.SettlementName] = struct{}{}
		names = append(names, e.SettlementName)
	}
	list := names
	more := ""
	if len(list) > constants.MaxSettlementSuggestions {
		list = list[:constants.MaxSettlementSuggestions]
		more = "..."
	}
	return fmt.Sprintf("La colonia %q no corresponde al CP %s. Colonias válidas: %s%s",
		input, code, strings.Join(list, ", "), more)
}
