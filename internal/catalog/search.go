package catalog

import (
	"strings"
	"unicode"

	"skill-runner/internal/address"
	"skill-runner/internal/constants"
	"skill-runner/internal/models"
)

// SearchQuery looks up postal codes from the other direction: given a
// settlement name and optionally its municipality and state.
type SearchQuery struct {
	Settlement   string
	Municipality string
	State        string
}

// Search returns up to constants.MaxReverseSearchResults entries whose
// settlement contains, or is contained in, the queried settlement. The
// municipality and state filters apply only when given. Matching ignores
// case, accents and anything that is not a letter, digit or space.
func (c *Catalog) Search(q SearchQuery) []models.PostalCatalogEntry {
	settlement := searchKey(q.Settlement)
	if settlement == "" {
		return nil
	}
	municipality := searchKey(q.Municipality)
	state := searchKey(q.State)

	var out []models.PostalCatalogEntry
	for i, k := range c.keys {
		if !address.Contains(k.settlement, settlement) {
			continue
		}
		if municipality != "" && !address.Contains(k.municipality, municipality) {
			continue
		}
		if state != "" && !address.Contains(k.state, state) {
			continue
		}
		out = append(out, c.entries[i])
		if len(out) == constants.MaxReverseSearchResults {
			break
		}
	}
	return out
}

type entryKeys struct {
	settlement   string
	municipality string
	state        string
}

func keysFor(e models.PostalCatalogEntry) entryKeys {
	return entryKeys{
		settlement:   searchKey(e.SettlementName),
		municipality: searchKey(e.Municipality),
		state:        searchKey(e.State),
	}
}

func searchKey(s string) string {
	s = address.Normalize(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			return r
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
