package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dpup/routereg/server/internal/lib/geo"
)

// Client provides access to Google Routes API v2
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// RouteData is the processed route information returned by the Routes API.
// EncodedPolyline is the geometry source of truth for a segmentation
// session; DistanceMeters is kept as a fallback length estimate.
type RouteData struct {
	EncodedPolyline string
	DistanceMeters  int32
	DurationSeconds int32
}

// NewClient creates a new Google Routes API client
func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, "https://routes.googleapis.com")
}

// NewClientWithBaseURL creates a client against an alternate endpoint.
// Used by tests to point at a local server.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ComputeRoute computes a drivable route between two coordinates and returns
// its encoded polyline plus distance/duration estimates.
func (c *Client) ComputeRoute(ctx context.Context, origin, destination geo.Point) (*RouteData, error) {
	requestBody := map[string]interface{}{
		"origin": map[string]interface{}{
			"location": map[string]interface{}{
				"latLng": map[string]interface{}{
					"latitude":  origin.Latitude,
					"longitude": origin.Longitude,
				},
			},
		},
		"destination": map[string]interface{}{
			"location": map[string]interface{}{
				"latLng": map[string]interface{}{
					"latitude":  destination.Latitude,
					"longitude": destination.Longitude,
				},
			},
		},
		"travelMode":        "DRIVE",
		"routingPreference": "TRAFFIC_UNAWARE",
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/directions/v2:computeRoutes", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Field mask is REQUIRED or the API returns errors
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response routesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	return processRoute(response.Routes[0])
}

// processRoute converts a Routes API route to RouteData
func processRoute(route apiRoute) (*RouteData, error) {
	durationSeconds, err := parseDuration(route.Duration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration: %w", err)
	}

	if route.Polyline.EncodedPolyline == "" {
		return nil, fmt.Errorf("route has no polyline")
	}

	return &RouteData{
		EncodedPolyline: route.Polyline.EncodedPolyline,
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: durationSeconds,
	}, nil
}

// parseDuration parses Google's duration format like "450s" to seconds
func parseDuration(durationStr string) (int32, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if len(durationStr) > 1 && durationStr[len(durationStr)-1] == 's' {
		durationStr = durationStr[:len(durationStr)-1]
	}

	var seconds int32
	_, err := fmt.Sscanf(durationStr, "%d", &seconds)
	return seconds, err
}

// routesResponse is the Routes API response structure
type routesResponse struct {
	Routes []apiRoute `json:"routes"`
}

type apiRoute struct {
	Duration       string      `json:"duration"`
	DistanceMeters int32       `json:"distanceMeters"`
	Polyline       apiPolyline `json:"polyline"`
}

type apiPolyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}
