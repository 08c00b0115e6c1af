package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"skill-runner/internal/models"
	"skill-runner/pkg/logging"
)

const sampleCatalog = `El Catálogo Nacional de Códigos Postales es elaborado por Correos de México
d_codigo|d_asenta|d_tipo_asenta|D_mnpio|d_estado|d_ciudad|d_CP|c_estado
64000|Centro|Colonia|Monterrey|Nuevo León|Monterrey|64001|19
64000|Centro|Colonia|Monterrey|Nuevo León|Monterrey|64001|19
64000|Obispado|Colonia|Monterrey|Nuevo León|Monterrey|64001|19
64000|Condominio Acero|Condominio|Monterrey|Nuevo León|Monterrey|64001|19
45050|Jardines del Bosque|Colonia|Guadalajara|Jalisco|Guadalajara|45051|14
50000|Toluca Centro|Colonia|Toluca|México|Toluca de Lerdo|50001|15
bad|row

`

func latin1(t *testing.T, s string) string {
	t.Helper()
	out, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		t.Fatalf("encode latin-1: %v", err)
	}
	return out
}

func sample(t *testing.T) *Catalog {
	t.Helper()
	entries, err := Parse(strings.NewReader(latin1(t, sampleCatalog)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return New(entries)
}

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(latin1(t, sampleCatalog)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("Parse() got %d entries, want 6", len(entries))
	}
	first := entries[0]
	want := models.PostalCatalogEntry{
		PostalCode:     "64000",
		SettlementName: "Centro",
		SettlementType: "Colonia",
		Municipality:   "Monterrey",
		State:          "Nuevo León",
		City:           "Monterrey",
	}
	if first != want {
		t.Errorf("first entry = %+v, want %+v", first, want)
	}
	if got := entries[5].State; got != "México" {
		t.Errorf("latin-1 state decoded as %q, want %q", got, "México")
	}
}

func TestLookupByPostalCode(t *testing.T) {
	c := sample(t)
	tests := []struct {
		code string
		want int
	}{
		{"64000", 4},
		{"45050", 1},
		{"99999", 0},
		{"6400", 0},
		{"640000", 0},
		{"64a00", 0},
		{"", 0},
		{" 64000", 0},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := len(c.LookupByPostalCode(tt.code)); got != tt.want {
				t.Errorf("LookupByPostalCode(%q) = %d entries, want %d", tt.code, got, tt.want)
			}
		})
	}
	if !c.IsValidPostalCode("64000") || c.IsValidPostalCode("00000") {
		t.Error("IsValidPostalCode disagrees with LookupByPostalCode")
	}
	if c.Len() != 6 || c.PostalCodes() != 3 {
		t.Errorf("Len() = %d, PostalCodes() = %d", c.Len(), c.PostalCodes())
	}
}

func TestSettlementNames(t *testing.T) {
	got := sample(t).SettlementNames("64000")
	want := []string{"Centro", "Obispado", "Condominio Acero"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("SettlementNames() = %v, want %v", got, want)
	}
}

func TestLocation(t *testing.T) {
	c := sample(t)
	loc, ok := c.Location("50000")
	if !ok {
		t.Fatal("Location(50000) not found")
	}
	if loc.Municipality != "Toluca" || loc.State != "México" || loc.City != "Toluca de Lerdo" {
		t.Errorf("Location() = %+v", loc)
	}
	if _, ok := c.Location("11111"); ok {
		t.Error("Location(11111) should miss")
	}
}

func TestSettlementsByType(t *testing.T) {
	types, groups := sample(t).SettlementsByType("64000")
	if len(types) != 2 || types[0] != "Colonia" || types[1] != "Condominio" {
		t.Fatalf("types = %v", types)
	}
	if len(groups["Colonia"]) != 2 {
		t.Errorf("Colonia group = %v, want Centro and Obispado", groups["Colonia"])
	}
}

func TestSearch(t *testing.T) {
	c := sample(t)
	tests := []struct {
		name  string
		q     SearchQuery
		codes []string
	}{
		{"settlement only", SearchQuery{Settlement: "centro"}, []string{"64000", "64000", "50000"}},
		{"accents and case ignored", SearchQuery{Settlement: "JARDINES DEL BOSQUE"}, []string{"45050"}},
		{"municipality filter", SearchQuery{Settlement: "Centro", Municipality: "Toluca"}, []string{"50000"}},
		{"state filter", SearchQuery{Settlement: "Centro", State: "Nuevo Leon"}, []string{"64000", "64000"}},
		{"no settlement", SearchQuery{Municipality: "Monterrey"}, nil},
		{"unknown", SearchQuery{Settlement: "Lomas Altas"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Search(tt.q)
			var codes []string
			for _, e := range got {
				codes = append(codes, e.PostalCode)
			}
			if strings.Join(codes, ",") != strings.Join(tt.codes, ",") {
				t.Errorf("Search(%+v) codes = %v, want %v", tt.q, codes, tt.codes)
			}
		})
	}
}

func TestSearchLimit(t *testing.T) {
	var entries []models.PostalCatalogEntry
	for i := 0; i < 25; i++ {
		entries = append(entries, models.PostalCatalogEntry{PostalCode: "01000", SettlementName: "San Angel"})
	}
	if got := len(New(entries).Search(SearchQuery{Settlement: "san angel"})); got != 10 {
		t.Errorf("Search() returned %d results, want 10", got)
	}
}

func TestNewPrecomputesSearchKeys(t *testing.T) {
	c := New([]models.PostalCatalogEntry{{
		PostalCode:     "91000",
		SettlementName: "Xalapa Enríquez Centro (Área 1)",
		Municipality:   "Xalapa",
		State:          "Veracruz de Ignacio de la Llave",
	}})
	if len(c.keys) != len(c.entries) {
		t.Fatalf("keys = %d, entries = %d", len(c.keys), len(c.entries))
	}
	want := entryKeys{
		settlement:   "xalapa enriquez centro area 1",
		municipality: "xalapa",
		state:        "veracruz de ignacio de la llave",
	}
	if c.keys[0] != want {
		t.Errorf("keys[0] = %+v, want %+v", c.keys[0], want)
	}
	if got := c.Search(SearchQuery{Settlement: "Centro Área 1", State: "Veracruz"}); len(got) != 1 {
		t.Errorf("Search() = %v, want the Xalapa entry", got)
	}
}

func BenchmarkSearch(b *testing.B) {
	entries := make([]models.PostalCatalogEntry, 0, 50000)
	for i := 0; i < cap(entries); i++ {
		entries = append(entries, models.PostalCatalogEntry{
			PostalCode:     fmt.Sprintf("%05d", i),
			SettlementName: fmt.Sprintf("Fraccionamiento Lomas %d", i),
			Municipality:   "Zapopan",
			State:          "Jalisco",
		})
	}
	c := New(entries)
	q := SearchQuery{Settlement: "Jardines del Bosque", State: "Jalisco"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Search(q)
	}
}

func TestLazy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CPdescarga.txt")
	if err := os.WriteFile(path, []byte(latin1(t, sampleCatalog)), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLazy(path, logging.NewDiscard())
	if err := l.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if l.Get() != l.Get() {
		t.Error("Get() should return the same catalog every time")
	}
	if len(l.LookupByPostalCode("64000")) != 4 {
		t.Error("lazy lookup missed 64000")
	}
}

func TestLazyMissingFileIsEmpty(t *testing.T) {
	l := NewLazy(filepath.Join(t.TempDir(), "missing.txt"), logging.NewDiscard())
	if l.Err() == nil {
		t.Fatal("Err() = nil for a missing file")
	}
	if l.Get().Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Get().Len())
	}
	if got := l.LookupByPostalCode("64000"); len(got) != 0 {
		t.Errorf("LookupByPostalCode() = %v, want empty", got)
	}
}
