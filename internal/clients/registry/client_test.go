package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/routereg/server/internal/lib/segment"
)

func testRequest() ApplyRequest {
	return ApplyRequest{
		Type: segment.ModeManual,
		Segments: []segment.Segment{
			{ID: "s1", RouteID: "route-1", Name: "Segment 1", Order: 1, DistanceKm: 4.0},
			{ID: "s2", RouteID: "route-1", Name: "Segment 2", Order: 2, DistanceKm: 8.2},
		},
	}
}

func TestApplySegmentation_Success(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"routeId": "route-1", "segmentsSaved": 2, "appliedAt": "2026-08-30T10:00:00Z"}`)
	}))
	t.Cleanup(server.Close)
	client := NewClient("test-api-key", server.URL)

	result, err := client.ApplySegmentation(context.Background(), "route-1", testRequest())
	require.NoError(t, err)
	assert.Equal(t, "route-1", result.RouteID)
	assert.Equal(t, 2, result.SegmentsSaved)

	require.NotNil(t, captured)
	assert.Equal(t, "PUT", captured.Method)
	assert.Equal(t, "/v1/routes/route-1/segmentation", captured.URL.Path)
	assert.Equal(t, "Bearer test-api-key", captured.Header.Get("Authorization"))

	var body ApplyRequest
	require.NoError(t, json.Unmarshal(capturedBody, &body))
	assert.Equal(t, segment.ModeManual, body.Type)
	assert.Len(t, body.Segments, 2)
}

func TestApplySegmentation_Validation(t *testing.T) {
	client := NewClient("key", "http://unused")

	_, err := client.ApplySegmentation(context.Background(), "", testRequest())
	assert.Error(t, err)

	_, err = client.ApplySegmentation(context.Background(), "route-1", ApplyRequest{Type: segment.ModeManual})
	assert.Error(t, err)
}

func TestApplySegmentation_ServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
		io.WriteString(w, "registry unavailable")
	}))
	t.Cleanup(server.Close)
	client := NewClient("key", server.URL)

	_, err := client.ApplySegmentation(context.Background(), "route-1", testRequest())

	var persistErr *PersistError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, 503, persistErr.StatusCode)
	assert.Equal(t, "route-1", persistErr.RouteID)
}

func TestClearSegmentation(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.WriteHeader(204)
	}))
	t.Cleanup(server.Close)
	client := NewClient("key", server.URL)

	require.NoError(t, client.ClearSegmentation(context.Background(), "route-1"))
	assert.Equal(t, "DELETE", captured.Method)
	assert.Equal(t, "/v1/routes/route-1/segmentation", captured.URL.Path)
}

func TestClearSegmentation_NotFoundIsOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	t.Cleanup(server.Close)
	client := NewClient("key", server.URL)

	assert.NoError(t, client.ClearSegmentation(context.Background(), "route-1"))
}

func TestClearSegmentation_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	t.Cleanup(server.Close)
	client := NewClient("key", server.URL)

	var persistErr *PersistError
	err := client.ClearSegmentation(context.Background(), "route-1")
	require.True(t, errors.As(err, &persistErr))
}
