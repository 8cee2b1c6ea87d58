// Package geo resolves coordinates to named zones via the remote point-lookup
// service. The resolver is a pure client with no local state.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"fieldsync/internal/model"
)

// Resolver calls the remote zone-lookup service.
//
// ResolveZone never returns an error: transport failures, lookup misses, and
// empty result sets all collapse to nil. A coordinate truly outside all zones
// and a coordinate that failed to resolve are not distinguishable from this
// call alone - callers needing that distinction must confirm connectivity
// before interpreting nil as "outside all zones" versus "could not check".
type Resolver struct {
	baseURL string
	client  *http.Client
}

// lookupResponse is the wire shape of a successful point lookup.
type lookupResponse struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// NewResolver creates a Resolver against the given lookup endpoint.
func NewResolver(baseURL string) *Resolver {
	return &Resolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ResolveZone maps a coordinate to its enclosing zone, or nil when there is
// no match or the lookup could not be performed.
func (r *Resolver) ResolveZone(ctx context.Context, lat, lon float64) *model.ZoneResult {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		slog.Debug("zone lookup request build failed", "error", err)
		return nil
	}

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Debug("zone lookup transport failed", "lat", lat, "lon", lon, "error", err)
		return nil
	}
	defer resp.Body.Close()

	// 404 is the service's "no enclosing zone"; anything else non-200 is a
	// service failure. Both fold to nil.
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode != http.StatusNotFound {
			slog.Debug("zone lookup non-OK status", "status", resp.StatusCode)
		}
		return nil
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Debug("zone lookup decode failed", "error", err)
		return nil
	}
	if body.Name == "" || body.Code == "" {
		return nil
	}

	return &model.ZoneResult{Name: body.Name, Code: body.Code}
}
