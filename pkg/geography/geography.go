// Package geography holds the Mexican address dictionary (abbreviations,
// state and city names with their aliases, noise words) and helpers to read
// Google geocoding components into the same vocabulary.
package geography

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"googlemaps.github.io/maps"
	"gopkg.in/yaml.v3"
)

//go:embed mexico.yaml
var mexicoYAML []byte

// Place is a canonical name plus the forms that mean the same thing.
type Place struct {
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases"`
	Codes    []string `yaml:"codes"`
	Official []string `yaml:"official"`
}

// Dictionary is the data side of address normalization. Matching code stays
// generic; another locale only needs another file.
type Dictionary struct {
	Abbreviations map[string][]string `yaml:"abbreviations"`
	States        []Place             `yaml:"states"`
	Cities        []Place             `yaml:"cities"`
	NoiseWords    []string            `yaml:"noise_words"`

	noise map[string]struct{}
}

var (
	defaultOnce sync.Once
	defaultDict *Dictionary
)

// Default returns the embedded dictionary.
func Default() *Dictionary {
	defaultOnce.Do(func() {
		d, err := Parse(mexicoYAML)
		if err != nil {
			panic("geography: embedded mexico.yaml: " + err.Error())
		}
		defaultDict = d
	})
	return defaultDict
}

// Load reads a dictionary from path, or returns the embedded one when path
// is empty.
func Load(path string) (*Dictionary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML dictionary.
func Parse(data []byte) (*Dictionary, error) {
	var d Dictionary
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	d.noise = make(map[string]struct{}, len(d.NoiseWords))
	for _, w := range d.NoiseWords {
		d.noise[w] = struct{}{}
	}
	return &d, nil
}

// Expansions maps every free-text alias to its canonical long form.
// Abbreviations, state aliases and city aliases share one table.
func (d *Dictionary) Expansions() map[string]string {
	out := make(map[string]string)
	for canonical, aliases := range d.Abbreviations {
		for _, a := range aliases {
			out[a] = canonical
		}
	}
	for _, group := range [][]Place{d.States, d.Cities} {
		for _, p := range group {
			for _, a := range p.Aliases {
				out[a] = p.Name
			}
		}
	}
	return out
}

// StateNames lists canonical state names in match priority order.
func (d *Dictionary) StateNames() []string { return names(d.States) }

// CityNames lists canonical city names in match priority order.
func (d *Dictionary) CityNames() []string { return names(d.Cities) }

// IsNoise reports whether w never counts as a street or settlement token.
func (d *Dictionary) IsNoise(w string) bool {
	_, ok := d.noise[w]
	return ok
}

// StateForms returns every accepted input form (name, aliases, codes) for
// the state the catalog spells as official. official must be normalized.
// Nil when the state is unknown.
func (d *Dictionary) StateForms(official string) []string {
	for _, s := range d.States {
		if official != s.Name && !contains(s.Official, official) {
			continue
		}
		forms := []string{s.Name}
		forms = append(forms, s.Aliases...)
		return append(forms, s.Codes...)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func names(ps []Place) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

// GoogleAddress is the Mexican breakdown of a geocoding result.
type GoogleAddress struct {
	StreetNumber string `json:"street_number,omitempty"`
	Route        string `json:"route,omitempty"`
	Settlement   string `json:"settlement,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country,omitempty"`
}

// FromComponents maps Google address components onto GoogleAddress.
// The first component of each wanted type wins.
func FromComponents(components []maps.AddressComponent) GoogleAddress {
	wanted := map[string]int{
		"street_number":               0,
		"route":                       1,
		"sublocality_level_1":         2,
		"sublocality":                 2,
		"neighborhood":                2,
		"locality":                    3,
		"administrative_area_level_2": 3,
		"administrative_area_level_1": 4,
		"postal_code":                 5,
		"country":                     6,
	}
	found := make(map[int]string)
	for _, c := range components {
		for _, t := range c.Types {
			if slot, ok := wanted[t]; ok {
				if _, seen := found[slot]; !seen {
					found[slot] = c.LongName
				}
			}
		}
	}
	return GoogleAddress{
		StreetNumber: found[0],
		Route:        found[1],
		Settlement:   found[2],
		Municipality: found[3],
		State:        found[4],
		PostalCode:   found[5],
		Country:      found[6],
	}
}
