package geography

import (
	"testing"

	"googlemaps.github.io/maps"
)

func TestDefaultDictionary(t *testing.T) {
	d := Default()
	if len(d.StateNames()) < 15 {
		t.Fatalf("expected at least 15 states, got %d", len(d.StateNames()))
	}
	if len(d.CityNames()) < 20 {
		t.Fatalf("expected at least 20 cities, got %d", len(d.CityNames()))
	}
	if d.StateNames()[0] != "nuevo leon" {
		t.Errorf("expected nuevo leon first, got %q", d.StateNames()[0])
	}
	if !d.IsNoise("calle") || d.IsNoise("madero") {
		t.Errorf("unexpected noise classification")
	}
}

func TestExpansions(t *testing.T) {
	exp := Default().Expansions()
	tests := []struct {
		alias    string
		expected string
	}{
		{"av", "avenida"},
		{"col", "colonia"},
		{"n l", "nuevo leon"},
		{"nl", "nuevo leon"},
		{"cdmx", "ciudad de mexico"},
		{"mty", "monterrey"},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			if got := exp[tt.alias]; got != tt.expected {
				t.Errorf("Expansions()[%q] = %q, want %q", tt.alias, got, tt.expected)
			}
		})
	}
	if _, ok := exp["mex"]; ok {
		t.Errorf("state codes must not be expanded in free text")
	}
}

func TestStateForms(t *testing.T) {
	tests := []struct {
		name     string
		official string
		want     string
	}{
		{"canonical spelling", "nuevo leon", "n l"},
		{"catalog spelling", "mexico", "edomex"},
		{"long official name", "veracruz de ignacio de la llave", "ver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forms := Default().StateForms(tt.official)
			if !contains(forms, tt.want) {
				t.Errorf("StateForms(%q) = %v, missing %q", tt.official, forms, tt.want)
			}
		})
	}
	if forms := Default().StateForms("atlantis"); forms != nil {
		t.Errorf("expected nil for unknown state, got %v", forms)
	}
}

func TestParseOverride(t *testing.T) {
	d, err := Parse([]byte("states:\n  - name: jalisco\n    aliases: [jal]\nnoise_words: [calle]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := d.Expansions()["jal"]; got != "jalisco" {
		t.Errorf("expected jal -> jalisco, got %q", got)
	}
	if _, err := Parse([]byte("states: [")); err == nil {
		t.Errorf("expected error for malformed yaml")
	}
}

func TestFromComponents(t *testing.T) {
	components := []maps.AddressComponent{
		{LongName: "123", Types: []string{"street_number"}},
		{LongName: "Francisco I. Madero", Types: []string{"route"}},
		{LongName: "Centro", Types: []string{"sublocality_level_1", "sublocality", "political"}},
		{LongName: "Monterrey", Types: []string{"locality", "political"}},
		{LongName: "Nuevo León", Types: []string{"administrative_area_level_1", "political"}},
		{LongName: "64000", Types: []string{"postal_code"}},
		{LongName: "México", Types: []string{"country", "political"}},
	}
	got := FromComponents(components)
	want := GoogleAddress{
		StreetNumber: "123",
		Route:        "Francisco I. Madero",
		Settlement:   "Centro",
		Municipality: "Monterrey",
		State:        "Nuevo León",
		PostalCode:   "64000",
		Country:      "México",
	}
	if got != want {
		t.Errorf("FromComponents() = %+v, want %+v", got, want)
	}
}
