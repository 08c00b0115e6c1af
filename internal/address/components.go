package address

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"skill-runner/internal/models"
)

var (
	postalCodeRe = regexp.MustCompile(`\b\d{5}\b`)
	numberRe     = regexp.MustCompile(`\b\d+\b`)
)

// ExtractComponents pulls street number, postal code, state, city and street
// or settlement tokens out of a free-text address. Missing parts come back
// empty. The street number is simply the first standalone digit run, so it
// can pick up the postal code when no house number is written.
func (a *Analyzer) ExtractComponents(address string) models.AddressComponents {
	text := a.NormalizeWithAbbreviations(address)
	c := models.AddressComponents{
		PostalCode:   postalCodeRe.FindString(text),
		StreetNumber: numberRe.FindString(text),
	}

	rest := text
	if c.State = firstPhrase(rest, a.states); c.State != "" {
		rest = removePhrase(rest, c.State)
	}
	if c.City = firstPhrase(rest, a.cities); c.City != "" {
		rest = removePhrase(rest, c.City)
	}

	tokens := a.significantTokens(rest)
	switch {
	case len(tokens) > 2:
		c.StreetNameTokens = tokens[:2]
		c.SettlementTokens = tokens[2:min(4, len(tokens))]
	default:
		c.StreetNameTokens = tokens
	}
	return c
}

// ExtractComponents uses the default analyzer.
func ExtractComponents(address string) models.AddressComponents {
	return Default().ExtractComponents(address)
}

// Tokens returns the noise-filtered, non-numeric words of an address longer
// than two characters, in order.
func (a *Analyzer) Tokens(address string) []string {
	return a.significantTokens(a.NormalizeWithAbbreviations(address))
}

func (a *Analyzer) significantTokens(normalized string) []string {
	var out []string
	for _, w := range strings.Fields(normalized) {
		if utf8.RuneCountInString(w) <= 2 || isDigits(w) || a.dict.IsNoise(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// firstPhrase returns the first candidate present in text as whole words.
// Candidate order is the tie-break.
func firstPhrase(text string, candidates []string) string {
	padded := " " + text + " "
	for _, c := range candidates {
		if strings.Contains(padded, " "+c+" ") {
			return c
		}
	}
	return ""
}

func removePhrase(text, phrase string) string {
	padded := strings.Replace(" "+text+" ", " "+phrase+" ", " ", 1)
	return strings.TrimSpace(padded)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
