// Package registry persists segmentation results to the route registry.
// The registry is an opaque network collaborator: this client owns only the
// request/response contract, not the storage semantics.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dpup/routereg/server/internal/lib/segment"
)

// PersistError reports a failed persistence call. The session keeps its
// preview intact when persistence fails so the user can retry.
type PersistError struct {
	RouteID    string
	StatusCode int
	Message    string
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist segmentation for route %s (status %d): %s",
		e.RouteID, e.StatusCode, e.Message)
}

// ApplyRequest is the persistence contract for a finished segmentation.
type ApplyRequest struct {
	Type       segment.Mode       `json:"type"`
	CutPoints  []segment.CutPoint `json:"cutPoints,omitempty"`
	DistanceKm float64            `json:"distanceKm,omitempty"`
	Segments   []segment.Segment  `json:"segments"`
}

// ApplyResult reports what the registry stored.
type ApplyResult struct {
	RouteID       string    `json:"routeId"`
	SegmentsSaved int       `json:"segmentsSaved"`
	AppliedAt     time.Time `json:"appliedAt"`
}

// Client provides access to the route registry API
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new registry client
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ApplySegmentation persists the segments for a route. On success the
// caller marks the route as segmented and ends the session.
func (c *Client) ApplySegmentation(ctx context.Context, routeID string, req ApplyRequest) (*ApplyResult, error) {
	if routeID == "" {
		return nil, fmt.Errorf("route id is required")
	}
	if len(req.Segments) == 0 {
		return nil, fmt.Errorf("cannot apply empty segmentation")
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/routes/%s/segmentation", c.baseURL, routeID)
	httpReq, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &PersistError{RouteID: routeID, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &PersistError{RouteID: routeID, StatusCode: resp.StatusCode, Message: string(body)}
	}

	var result ApplyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// ClearSegmentation removes any stored segmentation for a route.
func (c *Client) ClearSegmentation(ctx context.Context, routeID string) error {
	if routeID == "" {
		return fmt.Errorf("route id is required")
	}

	url := fmt.Sprintf("%s/v1/routes/%s/segmentation", c.baseURL, routeID)
	httpReq, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &PersistError{RouteID: routeID, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != 404 {
		body, _ := io.ReadAll(resp.Body)
		return &PersistError{RouteID: routeID, StatusCode: resp.StatusCode, Message: string(body)}
	}
	return nil
}
