// Package openmatrix provides a travel-time estimator backed by an
// OpenRouteService-compatible matrix API, with retry, rate limiting and
// circuit-breaker protection built in.
package openmatrix

import "fmt"

// matrixRequest is the JSON body for the matrix endpoint. Locations are
// [lon, lat] pairs per the ORS convention.
type matrixRequest struct {
	Locations [][]float64 `json:"locations"`
	Metrics   []string    `json:"metrics"`
}

// matrixResponse is the subset of the matrix endpoint response we consume.
type matrixResponse struct {
	Durations [][]float64 `json:"durations"`
}

// apiError is the provider's error envelope.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ServerError indicates a 5xx response from the provider and is retryable.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("matrix provider returned status %d", e.StatusCode)
}
