package geocoder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"googlemaps.github.io/maps"

	"skill-runner/pkg/logging"
)

type fakeAPI struct {
	mu      sync.Mutex
	calls   int
	last    *maps.GeocodingRequest
	results []maps.GeocodingResult
	err     error
}

func (f *fakeAPI) Geocode(_ context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = r
	return f.results, f.err
}

type memCache struct {
	mu sync.Mutex
	m  map[string]Result
}

func (c *memCache) Get(_ context.Context, key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[key]
	return r, ok
}

func (c *memCache) Set(_ context.Context, key string, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = res
}

func centro() []maps.GeocodingResult {
	r := maps.GeocodingResult{
		FormattedAddress: "Francisco I. Madero 123, Centro, 64000 Monterrey, N.L., México",
		PlaceID:          "place-123",
		AddressComponents: []maps.AddressComponent{
			{LongName: "123", Types: []string{"street_number"}},
			{LongName: "Francisco I. Madero", Types: []string{"route"}},
			{LongName: "Centro", Types: []string{"political", "sublocality", "sublocality_level_1"}},
			{LongName: "Monterrey", Types: []string{"locality", "political"}},
			{LongName: "Nuevo León", ShortName: "N.L.", Types: []string{"administrative_area_level_1", "political"}},
			{LongName: "64000", Types: []string{"postal_code"}},
			{LongName: "México", ShortName: "MX", Types: []string{"country", "political"}},
		},
	}
	r.Geometry.Location = maps.LatLng{Lat: 25.6714, Lng: -100.309}
	return []maps.GeocodingResult{r}
}

func TestGeocode(t *testing.T) {
	tests := []struct {
		name       string
		api        *fakeAPI
		address    string
		wantOK     bool
		wantReason string
	}{
		{name: "match", api: &fakeAPI{results: centro()}, address: "Madero 123, Centro, Monterrey", wantOK: true},
		{name: "zero results", api: &fakeAPI{}, address: "Calle Inexistente 1", wantReason: ReasonNotFound},
		{name: "api error", api: &fakeAPI{err: errors.New("OVER_QUERY_LIMIT")}, address: "Madero 123", wantReason: ReasonAPIFailed},
		{name: "blank address", api: &fakeAPI{results: centro()}, address: "   ", wantReason: ReasonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithAPI(tt.api, Options{Logger: logging.NewDiscard()})
			got := g.Geocode(context.Background(), tt.address)
			if got.Success != tt.wantOK {
				t.Fatalf("Success = %v, want %v (%+v)", got.Success, tt.wantOK, got)
			}
			if !tt.wantOK {
				if got.FormattedAddress != tt.wantReason {
					t.Errorf("reason = %q, want %q", got.FormattedAddress, tt.wantReason)
				}
				if got.Latitude != 0 || got.Longitude != 0 {
					t.Errorf("failed lookup carries coordinates %v,%v", got.Latitude, got.Longitude)
				}
				return
			}
			if got.Components.PostalCode != "64000" || got.Components.State != "Nuevo León" || got.Components.Settlement != "Centro" {
				t.Errorf("components = %+v", got.Components)
			}
			req := tt.api.last
			if req.Language != "es" || req.Region != "mx" || req.Components[maps.ComponentCountry] != "MX" {
				t.Errorf("request not restricted to Mexico: %+v", req)
			}
			if got.MapsLink() != "https://www.google.com/maps/search/?api=1&query=25.6714,-100.309" {
				t.Errorf("MapsLink() = %q", got.MapsLink())
			}
		})
	}
}

func TestGeocodeWithoutAPIKey(t *testing.T) {
	g, err := New("", Options{Logger: logging.NewDiscard()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if g.Configured() {
		t.Error("Configured() = true without a key")
	}
	got := g.Geocode(context.Background(), "Madero 123")
	if got.Success || got.FormattedAddress != ReasonNoAPIKey {
		t.Errorf("Geocode() = %+v, want %q", got, ReasonNoAPIKey)
	}
	if got.MapsLink() != "" {
		t.Errorf("MapsLink() = %q for a failed lookup", got.MapsLink())
	}
}

func TestGeocodeUsesCache(t *testing.T) {
	api := &fakeAPI{results: centro()}
	g := NewWithAPI(api, Options{Logger: logging.NewDiscard(), Cache: &memCache{m: map[string]Result{}}})

	first := g.Geocode(context.Background(), "Madero 123, Monterrey")
	second := g.Geocode(context.Background(), "MADERO 123 Monterrey")
	if api.calls != 1 {
		t.Errorf("API calls = %d, want 1", api.calls)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v; want false, true", first.Cached, second.Cached)
	}
	if second.FormattedAddress != first.FormattedAddress {
		t.Errorf("cached result differs: %q vs %q", second.FormattedAddress, first.FormattedAddress)
	}
}

func TestGeocodeDoesNotCacheFailures(t *testing.T) {
	api := &fakeAPI{}
	g := NewWithAPI(api, Options{Logger: logging.NewDiscard(), Cache: &memCache{m: map[string]Result{}}})
	g.Geocode(context.Background(), "nowhere 1")
	g.Geocode(context.Background(), "nowhere 1")
	if api.calls != 2 {
		t.Errorf("API calls = %d, want 2", api.calls)
	}
}

func TestGeocodeBreakerOpens(t *testing.T) {
	api := &fakeAPI{err: errors.New("boom")}
	g := NewWithAPI(api, Options{Logger: logging.NewDiscard()})
	for i := 0; i < 10; i++ {
		if got := g.Geocode(context.Background(), "Madero 123"); got.FormattedAddress != ReasonAPIFailed {
			t.Fatalf("call %d reason = %q", i, got.FormattedAddress)
		}
	}
	if api.calls >= 10 {
		t.Errorf("API calls = %d, breaker never opened", api.calls)
	}
}

func TestLinks(t *testing.T) {
	if got, want := MapsLink(25.6866, -100.3161), "https://www.google.com/maps/search/?api=1&query=25.6866,-100.3161"; got != want {
		t.Errorf("MapsLink = %q, want %q", got, want)
	}
	if got, want := SearchLink("Av. Juárez 10, Centro"), "https://www.google.com/maps/search/Av.%20Ju%C3%A1rez%2010%2C%20Centro"; got != want {
		t.Errorf("SearchLink = %q, want %q", got, want)
	}
	if link := failed(ReasonNotFound).MapsLink(); link != "" {
		t.Errorf("failed result link = %q, want empty", link)
	}
}
