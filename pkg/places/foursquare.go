package places

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadflow/internal/model"
)

const (
	defaultFoursquareBaseURL   = "https://api.foursquare.com/v3"
	defaultFoursquareRateLimit = 10
)

// FoursquareOption configures the Foursquare producer.
type FoursquareOption func(*foursquareProducer)

// WithFoursquareBaseURL overrides the default API endpoint.
func WithFoursquareBaseURL(u string) FoursquareOption {
	return func(p *foursquareProducer) {
		p.baseURL = u
	}
}

// WithFoursquareHTTPClient overrides the default http.Client.
func WithFoursquareHTTPClient(hc *http.Client) FoursquareOption {
	return func(p *foursquareProducer) {
		p.http = hc
	}
}

// WithFoursquareRateLimit overrides the default requests-per-second limit.
func WithFoursquareRateLimit(rps float64) FoursquareOption {
	return func(p *foursquareProducer) {
		p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type foursquareProducer struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewFoursquareProducer creates a cluster-search producer backed by the
// Foursquare Places API.
func NewFoursquareProducer(apiKey string, opts ...FoursquareOption) Producer {
	p := &foursquareProducer{
		apiKey:  apiKey,
		baseURL: defaultFoursquareBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultFoursquareRateLimit), 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name implements Producer.
func (p *foursquareProducer) Name() model.SourceProvider { return model.SourceClusterSearch }

type foursquarePlace struct {
	Name     string `json:"name"`
	Location struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"location"`
	Tel        string  `json:"tel"`
	Email      string  `json:"email"`
	Website    string  `json:"website"`
	Rating     float64 `json:"rating"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
}

type foursquareSearchResponse struct {
	Results []foursquarePlace `json:"results"`
}

// Search implements Producer.
func (p *foursquareProducer) Search(ctx context.Context, q Query) ([]model.RawRecord, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "foursquare: rate limit wait")
	}

	limit := q.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	params := url.Values{}
	params.Set("query", q.Category)
	params.Set("near", q.City)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", "name,location,tel,email,website,rating,categories")
	if q.RadiusMeters > 0 {
		params.Set("radius", strconv.Itoa(q.RadiusMeters))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/places/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: create request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", p.apiKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("foursquare: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result foursquareSearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "foursquare: unmarshal response")
	}

	records := make([]model.RawRecord, 0, len(result.Results))
	for _, place := range result.Results {
		r := model.RawRecord{
			Name:    place.Name,
			Address: place.Location.FormattedAddress,
			Phone:   place.Tel,
			Email:   place.Email,
			Website: place.Website,
			Source:  model.SourceClusterSearch,
		}
		if len(place.Categories) > 0 {
			r.Category = place.Categories[0].Name
		}
		if place.Rating > 0 {
			// Foursquare rates on a 0-10 scale.
			scaled := place.Rating / 2
			r.Rating = &scaled
		}
		records = append(records, r)
	}
	return records, nil
}
