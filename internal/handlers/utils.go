package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/simaland/userapi/internal/logutil"
	"github.com/simaland/userapi/internal/services"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

var statusOK = StatusResponse{Status: "ok"}

// Healthz reports that the process is serving requests.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusOK)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// decodeJSON reads exactly one JSON object into dst. Unknown fields are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("decode body: trailing data")
	}
	return nil
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindBadRequest:
		return http.StatusBadRequest
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindConflict:
		return http.StatusConflict
	case services.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the client-safe rendering of err. Internal errors are
// logged and answered with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.KindOf(err)
	if kind == services.KindInternal {
		log := logutil.GetOrDefault(r.Context())
		log.Error().Err(err).Str("method", r.Method).Str("url", r.URL.String()).Msg("request failed")
	}
	writeError(w, statusFor(kind), services.MessageOf(err))
}

func respondMalformed(w http.ResponseWriter, r *http.Request, err error) {
	log := logutil.GetOrDefault(r.Context())
	log.Debug().Err(err).Str("url", r.URL.String()).Msg("malformed request body")
	writeError(w, http.StatusBadRequest, "malformed request body")
}
