package openmatrix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldroute/fieldroute/internal/geo"
)

func matrixHandler(t *testing.T, durations [][]float64) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/matrix/driving-car", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("Authorization"))

		var req matrixRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"duration"}, req.Metrics)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(matrixResponse{Durations: durations})
	}
}

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		APIKey:            "test-key",
		BaseURL:           url,
		RequestsPerSecond: 1000,
	})
}

func TestClient_Durations(t *testing.T) {
	srv := httptest.NewServer(matrixHandler(t, [][]float64{
		{0, 600},
		{600, 0},
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	m, err := client.Durations(context.Background(), []geo.Point{
		{Lat: 30.45, Lon: -91.18},
		{Lat: 30.50, Lon: -91.10},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, m[0][1], "600 seconds is 10 minutes")
	assert.Equal(t, 0, m[0][0])
}

func TestClient_Minutes_SinglePair(t *testing.T) {
	srv := httptest.NewServer(matrixHandler(t, [][]float64{
		{0, 1234},
		{1234, 0},
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	minutes, err := client.Minutes(context.Background(),
		geo.Point{Lat: 30.45, Lon: -91.18},
		geo.Point{Lat: 30.50, Lon: -91.10},
	)
	require.NoError(t, err)
	assert.Equal(t, 21, minutes, "1234 seconds rounds to 21 minutes")
}

func TestClient_Minutes_IdenticalPoints(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	minutes, err := client.Minutes(context.Background(),
		geo.Point{Lat: 30.45, Lon: -91.18},
		geo.Point{Lat: 30.45, Lon: -91.18},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, minutes)
	assert.EqualValues(t, 0, calls.Load(), "identical points must not hit the provider")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		matrixHandler(t, [][]float64{{0, 60}, {60, 0}})(w, r)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	minutes, err := client.Minutes(context.Background(),
		geo.Point{Lat: 30.45, Lon: -91.18},
		geo.Point{Lat: 30.50, Lon: -91.10},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, minutes)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Minutes(context.Background(),
		geo.Point{Lat: 30.45, Lon: -91.18},
		geo.Point{Lat: 30.50, Lon: -91.10},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.EqualValues(t, 1, calls.Load(), "4xx must not be retried")
}

func TestClient_InvalidCoordinates(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")
	_, err := client.Minutes(context.Background(),
		geo.Point{Lat: 95, Lon: 0},
		geo.Point{Lat: 0, Lon: 0},
	)
	require.Error(t, err)
}
