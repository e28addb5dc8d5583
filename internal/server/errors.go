package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitwall-bot/pitwall/internal/openf1"
	"github.com/pitwall-bot/pitwall/internal/timing"

	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an aggregation error to the HTTP status shown to the caller
func statusFor(err error) int {
	var (
		verr *timing.ValidationError
		uerr *openf1.UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, openf1.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &uerr):
		return http.StatusBadGateway
	default:
		// includes *store.Error
		return http.StatusInternalServerError
	}
}

// messageFor keeps upstream and storage details out of responses
func messageFor(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusGatewayTimeout:
		return "OpenF1 API timed out, please try again"
	case http.StatusBadGateway:
		return "OpenF1 API request failed"
	default:
		return "internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: messageFor(status, err)})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not available yet"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to write response body: %v", err)
	}
}
