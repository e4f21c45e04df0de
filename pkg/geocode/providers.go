package geocode

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"newspipe/pkg/model"
)

// NominatimMinInterval is the usage policy floor for the public Nominatim server.
const NominatimMinInterval = time.Second

// Getter performs HTTP GETs through the shared request client.
type Getter interface {
	GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error)
}

// Provider resolves a cleaned query to a coordinate.
type Provider interface {
	Name() string
	// Lookup returns ErrNoResult when the provider knows no match.
	Lookup(ctx context.Context, q Query) (*Result, error)
}

// limited waits on a rate limiter before every call.
type limited struct {
	limiter *rate.Limiter
}

func newLimited(interval time.Duration) limited {
	if interval <= 0 {
		return limited{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return limited{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (l limited) wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Google uses the Google Maps Geocoding API.
type Google struct {
	limited
	get     Getter
	apiKey  string
	baseURL string
}

// NewGoogle creates the Google provider. It needs GOOGLE_MAPS_API_KEY.
func NewGoogle(g Getter, apiKey, baseURL string, interval time.Duration) (*Google, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google geocoder: GOOGLE_MAPS_API_KEY not set")
	}
	return &Google{limited: newLimited(interval), get: g, apiKey: apiKey, baseURL: baseURL}, nil
}

func (p *Google) Name() string { return "google" }

func (p *Google) Lookup(ctx context.Context, q Query) (*Result, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	v := url.Values{}
	v.Set("address", q.Text)
	v.Set("region", "us")
	v.Set("key", p.apiKey)

	body, err := p.get.GetWithHeaders(ctx, p.baseURL+"?"+v.Encode(), nil, "")
	if err != nil {
		return nil, fmt.Errorf("google geocode: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("google geocode: invalid json response")
	}

	switch status := gjson.GetBytes(body, "status").String(); status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoResult
	default:
		msg := gjson.GetBytes(body, "error_message").String()
		return nil, fmt.Errorf("google geocode: %s %s", status, msg)
	}

	first := gjson.GetBytes(body, "results.0")
	loc := first.Get("geometry.location")
	res := &Result{
		Lat:      loc.Get("lat").Float(),
		Lng:      loc.Get("lng").Float(),
		Display:  first.Get("formatted_address").String(),
		Provider: p.Name(),
	}
	var types []string
	first.Get("types").ForEach(func(_, t gjson.Result) bool {
		types = append(types, t.String())
		return true
	})
	res.Precision = googlePrecision(types)
	return res, nil
}

func googlePrecision(types []string) string {
	for _, t := range types {
		switch t {
		case "locality", "sublocality", "postal_code", "neighborhood", "street_address", "premise", "route":
			return model.PrecisionCity
		case "administrative_area_level_2":
			return model.PrecisionCounty
		}
	}
	return model.PrecisionArea
}

// Nominatim uses an OpenStreetMap Nominatim search endpoint.
type Nominatim struct {
	limited
	get       Getter
	baseURL   string
	userAgent string
}

// NewNominatim creates the Nominatim provider. The interval is raised to
// NominatimMinInterval when the public server is used.
func NewNominatim(g Getter, baseURL, userAgent string, interval time.Duration) *Nominatim {
	if u, err := url.Parse(baseURL); err == nil && u.Host == "nominatim.openstreetmap.org" {
		interval = max(interval, NominatimMinInterval)
	}
	return &Nominatim{limited: newLimited(interval), get: g, baseURL: baseURL, userAgent: userAgent}
}

func (p *Nominatim) Name() string { return "nominatim" }

func (p *Nominatim) Lookup(ctx context.Context, q Query) (*Result, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	v := url.Values{}
	v.Set("q", q.Text)
	v.Set("format", "jsonv2")
	v.Set("limit", "1")
	v.Set("countrycodes", "us")

	headers := map[string]string{}
	if p.userAgent != "" {
		headers["User-Agent"] = p.userAgent
	}
	body, err := p.get.GetWithHeaders(ctx, p.baseURL+"?"+v.Encode(), headers, "")
	if err != nil {
		return nil, fmt.Errorf("nominatim: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("nominatim: invalid json response")
	}
	first := gjson.GetBytes(body, "0")
	if !first.Exists() {
		return nil, ErrNoResult
	}
	return &Result{
		Lat:       first.Get("lat").Float(),
		Lng:       first.Get("lon").Float(),
		Display:   first.Get("display_name").String(),
		Precision: nominatimPrecision(first.Get("addresstype").String()),
		Provider:  p.Name(),
	}, nil
}

func nominatimPrecision(addressType string) string {
	switch addressType {
	case "city", "town", "village", "hamlet", "suburb", "municipality", "neighbourhood", "road", "building":
		return model.PrecisionCity
	case "county":
		return model.PrecisionCounty
	}
	return model.PrecisionArea
}
