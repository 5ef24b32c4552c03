package places

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadflow/internal/model"
)

const (
	defaultOSMBaseURL = "https://nominatim.openstreetmap.org"
	// Nominatim's usage policy caps anonymous clients at 1 req/s.
	defaultOSMRateLimit = 1
)

// OSMOption configures the OSM producer.
type OSMOption func(*osmProducer)

// WithOSMBaseURL overrides the default Nominatim endpoint.
func WithOSMBaseURL(u string) OSMOption {
	return func(p *osmProducer) {
		p.baseURL = u
	}
}

// WithOSMHTTPClient overrides the default http.Client.
func WithOSMHTTPClient(hc *http.Client) OSMOption {
	return func(p *osmProducer) {
		p.http = hc
	}
}

// WithOSMRateLimit overrides the default requests-per-second limit.
func WithOSMRateLimit(rps float64) OSMOption {
	return func(p *osmProducer) {
		p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type osmProducer struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewOSMProducer creates a map-search producer backed by Nominatim.
// The userAgent is required by the Nominatim usage policy.
func NewOSMProducer(userAgent string, opts ...OSMOption) Producer {
	p := &osmProducer{
		baseURL:   defaultOSMBaseURL,
		userAgent: userAgent,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultOSMRateLimit), 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name implements Producer.
func (p *osmProducer) Name() model.SourceProvider { return model.SourceMapSearch }

// osmPlace is the subset of a Nominatim search result we consume.
type osmPlace struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Address     struct {
		HouseNumber string `json:"house_number"`
		Road        string `json:"road"`
		City        string `json:"city"`
		Town        string `json:"town"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
	} `json:"address"`
	ExtraTags struct {
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Website string `json:"website"`
	} `json:"extratags"`
	Type string `json:"type"`
}

// Search implements Producer.
func (p *osmProducer) Search(ctx context.Context, q Query) ([]model.RawRecord, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "osm: rate limit wait")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{}
	params.Set("q", strings.TrimSpace(q.Category+" in "+q.City))
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("extratags", "1")
	params.Set("limit", strconv.Itoa(limit))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "osm: create request")
	}
	httpReq.Header.Set("User-Agent", p.userAgent)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "osm: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "osm: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("osm: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var results []osmPlace
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "osm: unmarshal response")
	}

	records := make([]model.RawRecord, 0, len(results))
	for _, place := range results {
		name := place.Name
		if name == "" {
			// display_name starts with the place name followed by the
			// address components.
			name, _, _ = strings.Cut(place.DisplayName, ",")
			name = strings.TrimSpace(name)
		}
		records = append(records, model.RawRecord{
			Name:     name,
			Address:  osmAddress(place),
			Phone:    place.ExtraTags.Phone,
			Email:    place.ExtraTags.Email,
			Website:  place.ExtraTags.Website,
			Category: place.Type,
			Source:   model.SourceMapSearch,
		})
	}
	return records, nil
}

func osmAddress(place osmPlace) string {
	a := place.Address
	city := a.City
	if city == "" {
		city = a.Town
	}
	parts := make([]string, 0, 4)
	if a.Road != "" {
		street := strings.TrimSpace(a.HouseNumber + " " + a.Road)
		parts = append(parts, street)
	}
	if city != "" {
		parts = append(parts, city)
	}
	if a.State != "" {
		parts = append(parts, a.State)
	}
	if a.Postcode != "" {
		parts = append(parts, a.Postcode)
	}
	return strings.Join(parts, ", ")
}
