// Package address turns noisy Mexican address text into comparable signals:
// normalization, component extraction and weighted similarity scoring.
// Everything here is pure and safe for concurrent use.
package address

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"skill-runner/pkg/geography"
)

var punctuation = strings.NewReplacer(".", " ", ",", " ", "#", " ", "-", " ", "/", " ")

// Normalize lowercases s, strips diacritics, turns . , # - / into spaces
// and collapses whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = punctuation.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Analyzer applies a dictionary to normalized text. Build one per
// dictionary and share it.
type Analyzer struct {
	dict       *geography.Dictionary
	expansions map[string]string
	aliasRe    *regexp.Regexp
	states     []string
	cities     []string
}

// NewAnalyzer compiles the whole-word alias matcher for dict.
func NewAnalyzer(dict *geography.Dictionary) *Analyzer {
	a := &Analyzer{
		dict:       dict,
		expansions: dict.Expansions(),
		states:     dict.StateNames(),
		cities:     dict.CityNames(),
	}
	aliases := make([]string, 0, len(a.expansions))
	for alias := range a.expansions {
		aliases = append(aliases, regexp.QuoteMeta(alias))
	}
	if len(aliases) > 0 {
		// longest first so "n l" wins over a shorter alias starting the same way
		sort.Slice(aliases, func(i, j int) bool {
			if len(aliases[i]) != len(aliases[j]) {
				return len(aliases[i]) > len(aliases[j])
			}
			return aliases[i] < aliases[j]
		})
		a.aliasRe = regexp.MustCompile(`\b(?:` + strings.Join(aliases, "|") + `)\b`)
	}
	return a
}

var (
	defaultOnce     sync.Once
	defaultAnalyzer *Analyzer
)

// Default returns an Analyzer over the embedded dictionary.
func Default() *Analyzer {
	defaultOnce.Do(func() {
		defaultAnalyzer = NewAnalyzer(geography.Default())
	})
	return defaultAnalyzer
}

// Dictionary returns the dictionary the analyzer was built from.
func (a *Analyzer) Dictionary() *geography.Dictionary { return a.dict }

// Expand replaces whole-word aliases in already normalized text with their
// canonical long form ("av" -> "avenida", "n l" -> "nuevo leon").
func (a *Analyzer) Expand(normalized string) string {
	if a.aliasRe == nil || normalized == "" {
		return normalized
	}
	return a.aliasRe.ReplaceAllStringFunc(normalized, func(m string) string {
		return a.expansions[m]
	})
}

// NormalizeWithAbbreviations normalizes s and then expands aliases.
func (a *Analyzer) NormalizeWithAbbreviations(s string) string {
	return a.Expand(Normalize(s))
}

// NormalizeWithAbbreviations uses the default analyzer.
func NormalizeWithAbbreviations(s string) string {
	return Default().NormalizeWithAbbreviations(s)
}

// Contains reports whether a contains b or b contains a. Empty strings
// never match.
func Contains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
