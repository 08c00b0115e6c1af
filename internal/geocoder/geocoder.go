// Package geocoder resolves free-text Mexican addresses through the Google
// Geocoding API. Failures never surface as errors: they come back as a
// GeocodeResult with Success=false and a readable reason, which the risk
// engine turns into an alert.
package geocoder

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"skill-runner/internal/address"
	"skill-runner/internal/constants"
	"skill-runner/internal/models"
	"skill-runner/pkg/circuit"
	errs "skill-runner/pkg/errors"
	"skill-runner/pkg/geography"
	"skill-runner/pkg/logging"
	"skill-runner/pkg/metrics"
)

// Failure reasons shown to reviewers.
const (
	ReasonNoAPIKey  = "API Key de Google Maps no configurada"
	ReasonNotFound  = "No se encontró la dirección"
	ReasonAPIFailed = "Error al consultar Google Maps"
)

var (
	mCalls   = metrics.Default.CounterVec("geocode_calls_total", "Geocoding calls by outcome", "outcome")
	mLatency = metrics.Default.Histogram("geocode_latency_ms", "Google geocoding latency in milliseconds", []float64{50, 100, 250, 500, 1000, 2500, 5000})
)

// API is the part of *maps.Client the geocoder uses.
type API interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Result is a geocode answer plus the Mexican breakdown of the match.
type Result struct {
	models.GeocodeResult
	PlaceID    string                  `json:"place_id,omitempty"`
	Components geography.GoogleAddress `json:"components"`
	Cached     bool                    `json:"cached,omitempty"`
}

// MapsLink is the Google Maps search URL for a coordinate pair.
func (r Result) MapsLink() string {
	if !r.Success {
		return ""
	}
	return MapsLink(r.Latitude, r.Longitude)
}

// MapsLink builds a Google Maps search URL for lat,lng.
func MapsLink(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%v,%v", lat, lng)
}

// SearchLink is the Google Maps text search URL used when an address could
// not be located.
func SearchLink(addr string) string {
	return "https://www.google.com/maps/search/" + url.PathEscape(addr)
}

// Options configures a Geocoder.
type Options struct {
	Timeout time.Duration
	RPS     float64
	Cache   Cache
	Logger  *logging.Logger
}

// Geocoder wraps the Google client with a breaker, a rate limit and an
// optional cache.
type Geocoder struct {
	api     API
	breaker *circuit.Breaker
	cache   Cache
	log     *logging.ComponentLogger
	timeout time.Duration

	mu      sync.RWMutex
	limiter *rate.Limiter
}

// New builds a geocoder for apiKey. An empty key is not an error: every call
// then reports ReasonNoAPIKey.
func New(apiKey string, opts Options) (*Geocoder, error) {
	if apiKey == "" {
		return newGeocoder(nil, opts), nil
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, errs.NewConfig("geocoder.New", "invalid Google Maps configuration", err)
	}
	return newGeocoder(client, opts), nil
}

// NewWithAPI builds a geocoder over an arbitrary API implementation.
func NewWithAPI(api API, opts Options) *Geocoder { return newGeocoder(api, opts) }

func newGeocoder(api API, opts Options) *Geocoder {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.GeocodeOperationTimeout
	}
	cfg := circuit.DefaultConfig("google_geocode")
	cfg.OperationTimeout = opts.Timeout
	cfg.OpenFor = constants.GeocodeOpenFor
	return &Geocoder{
		api:     api,
		breaker: circuit.New(cfg, opts.Logger),
		cache:   opts.Cache,
		log:     opts.Logger.WithComponent("geocoder"),
		timeout: opts.Timeout,
		limiter: newLimiter(opts.RPS),
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}

// SetRate changes the request rate limit; rps <= 0 removes it.
func (g *Geocoder) SetRate(rps float64) {
	g.mu.Lock()
	g.limiter = newLimiter(rps)
	g.mu.Unlock()
}

// Configured reports whether an API client is present.
func (g *Geocoder) Configured() bool { return g.api != nil }

// Geocode looks up address restricted to Mexico, in Spanish.
func (g *Geocoder) Geocode(ctx context.Context, addr string) Result {
	if g.api == nil {
		mCalls.With("unconfigured").Inc()
		return failed(ReasonNoAPIKey)
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		mCalls.With("not_found").Inc()
		return failed(ReasonNotFound)
	}

	key := cacheKey(addr)
	if g.cache != nil {
		if res, ok := g.cache.Get(ctx, key); ok {
			mCalls.With("cache_hit").Inc()
			res.Cached = true
			return res
		}
	}

	g.mu.RLock()
	limiter := g.limiter
	g.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		g.log.Warn("geocode rate limit wait aborted", logging.Error(err))
		mCalls.With("error").Inc()
		return failed(ReasonAPIFailed)
	}

	var results []maps.GeocodingResult
	start := time.Now()
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		results, err = g.api.Geocode(ctx, &maps.GeocodingRequest{
			Address:    addr,
			Language:   "es",
			Region:     "mx",
			Components: map[maps.Component]string{maps.ComponentCountry: "MX"},
		})
		return err
	})
	mLatency.Since(start)
	if err != nil {
		g.log.Warn("geocode failed",
			logging.String("address", addr),
			logging.String("breaker", g.breaker.State().String()),
			logging.Error(errs.NewExternal("geocoder.Geocode", "google_maps", "geocode request failed", err)))
		mCalls.With("error").Inc()
		return failed(ReasonAPIFailed)
	}
	if len(results) == 0 {
		mCalls.With("not_found").Inc()
		return failed(ReasonNotFound)
	}

	top := results[0]
	res := Result{
		GeocodeResult: models.GeocodeResult{
			FormattedAddress: top.FormattedAddress,
			Latitude:         top.Geometry.Location.Lat,
			Longitude:        top.Geometry.Location.Lng,
			Success:          true,
		},
		PlaceID:    top.PlaceID,
		Components: geography.FromComponents(top.AddressComponents),
	}
	mCalls.With("success").Inc()
	if g.cache != nil {
		g.cache.Set(ctx, key, res)
	}
	g.log.Debug("geocoded address",
		logging.String("address", addr),
		logging.String("formatted", res.FormattedAddress),
		logging.Duration("elapsed", time.Since(start)))
	return res
}

func failed(reason string) Result {
	return Result{GeocodeResult: models.GeocodeResult{FormattedAddress: reason}}
}

func cacheKey(addr string) string {
	return "geocode:" + address.Normalize(addr)
}
