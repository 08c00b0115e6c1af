package address

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"skill-runner/internal/constants"
	"skill-runner/internal/models"
)

type difference struct {
	text     string
	critical bool
}

// Score compares two addresses on a 100 point scale: street number 30,
// postal code 25, street name 20, city 15, state 10. The token match in the
// street name rule is driven by addressA, so Score(a, b) and Score(b, a) may
// differ slightly. Both always land in [0, 100].
func (a *Analyzer) Score(addressA, addressB string) models.SimilarityResult {
	ca := a.ExtractComponents(addressA)
	cb := a.ExtractComponents(addressB)

	var (
		total float64
		diffs []difference
	)

	// street number
	switch {
	case ca.StreetNumber != "" && ca.StreetNumber == cb.StreetNumber:
		total += constants.WeightStreetNumber
	case (ca.StreetNumber == "") != (cb.StreetNumber == ""):
		total += constants.HalfStreetNumber
	case ca.StreetNumber != "":
		diffs = append(diffs, difference{
			text:     fmt.Sprintf("Número exterior diferente: %q vs %q", ca.StreetNumber, cb.StreetNumber),
			critical: true,
		})
	}

	// postal code
	switch {
	case ca.PostalCode != "" && ca.PostalCode == cb.PostalCode:
		total += constants.WeightPostalCode
	case ca.PostalCode == "" && cb.PostalCode == "":
		total += constants.HalfPostalCode
	case ca.PostalCode == "" || cb.PostalCode == "":
		diffs = append(diffs, difference{
			text: fmt.Sprintf("Código postal solo presente en una dirección: %s", ca.PostalCode+cb.PostalCode),
		})
	default:
		diffs = append(diffs, difference{
			text:     fmt.Sprintf("Código postal diferente: %q vs %q", ca.PostalCode, cb.PostalCode),
			critical: true,
		})
	}

	// street name
	matched := 0
	for _, ta := range ca.StreetNameTokens {
		if tokenMatches(ta, cb.StreetNameTokens) {
			matched++
		}
	}
	denom := max(1, min(len(ca.StreetNameTokens), len(cb.StreetNameTokens)))
	total += math.Min(constants.WeightStreetName, constants.WeightStreetName*float64(matched)/float64(denom))
	if len(ca.StreetNameTokens) > 0 && len(cb.StreetNameTokens) > 0 {
		onlyA := unmatched(ca.StreetNameTokens, cb.StreetNameTokens)
		onlyB := unmatched(cb.StreetNameTokens, ca.StreetNameTokens)
		if len(onlyA)+len(onlyB) > 0 {
			diffs = append(diffs, difference{
				text: fmt.Sprintf("Calle no coincide: %q vs %q", strings.Join(onlyA, " "), strings.Join(onlyB, " ")),
			})
		}
	}

	// city
	switch {
	case ca.City == "" && cb.City == "":
		total += constants.HalfCity
	case Contains(ca.City, cb.City):
		total += constants.WeightCity
	default:
		diffs = append(diffs, difference{text: fmt.Sprintf("Ciudad diferente: %q vs %q", ca.City, cb.City)})
	}

	// state
	switch {
	case ca.State == "" && cb.State == "":
		total += constants.HalfState
	case ca.State == cb.State:
		total += constants.WeightState
	default:
		diffs = append(diffs, difference{text: fmt.Sprintf("Estado diferente: %q vs %q", ca.State, cb.State)})
	}

	weights := float64(constants.WeightStreetNumber + constants.WeightPostalCode +
		constants.WeightStreetName + constants.WeightCity + constants.WeightState)
	pct := int(math.Round(total * 100 / weights))
	pct = max(0, min(100, pct))

	if pct >= constants.SuppressDifferencesAt && !anyCritical(diffs) {
		diffs = nil
	}
	if ca.StreetNumber != "" && ca.StreetNumber == cb.StreetNumber &&
		ca.PostalCode != "" && ca.PostalCode == cb.PostalCode {
		pct = max(pct, constants.DecisiveMatchFloor)
		diffs = nil
	}

	out := models.SimilarityResult{Percentage: pct, Differences: []string{}}
	for _, d := range diffs {
		out.Differences = append(out.Differences, d.text)
	}
	return out
}

// Score uses the default analyzer.
func Score(addressA, addressB string) models.SimilarityResult {
	return Default().Score(addressA, addressB)
}

// tokenMatches reports whether t is a substring or superstring of any
// candidate, or close enough by edit distance.
func tokenMatches(t string, candidates []string) bool {
	for _, c := range candidates {
		if Contains(t, c) || LevenshteinSimilarity(t, c) > constants.FuzzyWordThreshold {
			return true
		}
	}
	return false
}

// LevenshteinSimilarity is 1 - distance/max(len(a), len(b)), counted in runes.
// Two empty strings are identical.
func LevenshteinSimilarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

func unmatched(tokens, others []string) []string {
	var out []string
	for _, t := range tokens {
		if !tokenMatches(t, others) {
			out = append(out, t)
		}
	}
	return out
}

func anyCritical(diffs []difference) bool {
	for _, d := range diffs {
		if d.critical {
			return true
		}
	}
	return false
}
