// Package httpx provides the JSON response envelope shared by all API handlers.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Envelope is the standard response body for every API endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// JSON sends a success envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Success: true, Data: data})
}

// OK sends a 200 success envelope.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created sends a 201 success envelope.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Fail sends an error envelope.
func Fail(w http.ResponseWriter, status int, code, msg, details string) {
	write(w, status, Envelope{Success: false, Error: msg, Code: code, Details: details})
}

// RateLimited sends a 429 with a Retry-After hint derived from the window.
func RateLimited(w http.ResponseWriter, window time.Duration) {
	seconds := int(window.Seconds())
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	Fail(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded",
		fmt.Sprintf("retry after %d seconds", seconds))
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
