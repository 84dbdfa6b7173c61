// Package roadnetwork fetches road-network intersections along a route from
// the intersections service. Responses are untrusted: callers must snap and
// validate every point before using it as a cut location.
package roadnetwork

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb/geojson"
)

// Client provides access to the intersections API
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new intersections API client
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchIntersections returns intersections along the encoded polyline as a
// GeoJSON FeatureCollection of Point features.
func (c *Client) FetchIntersections(ctx context.Context, encodedPolyline string) (*geojson.FeatureCollection, error) {
	if encodedPolyline == "" {
		return nil, fmt.Errorf("encoded polyline is required")
	}

	params := url.Values{}
	params.Set("polyline", encodedPolyline)

	requestURL := fmt.Sprintf("%s/v1/intersections?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode == 401 {
		return nil, fmt.Errorf("invalid API key")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode feature collection: %w", err)
	}
	return fc, nil
}
