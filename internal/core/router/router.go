package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/core/observability"
	"github.com/mohammed-shakir/coverage-cache/internal/coverage"
)

const (
	RouteCheckCoverage = "/check-coverage"
	maxBodyBytes       = 64 << 10
)

// receives validated lookups and serves them
type LookupHandler interface {
	HandleLookup(ctx context.Context, w http.ResponseWriter, r *http.Request, l model.Lookup)
}

// CheckRequest is the POST /check-coverage body.
type CheckRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   *string  `json:"address"`
	Mediums   []string `json:"mediums,omitempty"`
	Sort      string   `json:"sort,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// decodes and validates the body, then calls the handler
func HandleCheckCoverage(logger *slog.Logger, h LookupHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, RouteCheckCoverage, sw.code, time.Since(start).Seconds())
		}()

		l, err := ParseCheckRequest(w, r)
		if err != nil {
			logger.DebugContext(r.Context(), "rejected coverage request", "err", err)
			WriteError(sw, http.StatusBadRequest, err.Error())
			return
		}

		h.HandleLookup(r.Context(), sw, r, l)
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func ParseCheckRequest(w http.ResponseWriter, r *http.Request) (model.Lookup, error) {
	var req CheckRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return model.Lookup{}, errors.New("request body is required")
		case errors.As(err, &mbe):
			return model.Lookup{}, fmt.Errorf("request body exceeds %d bytes", mbe.Limit)
		default:
			return model.Lookup{}, fmt.Errorf("invalid request body: %w", err)
		}
	}
	if dec.More() {
		return model.Lookup{}, errors.New("invalid request body: trailing data after JSON object")
	}

	return coverage.Validate(coverage.Input{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Address:   req.Address,
		Mediums:   req.Mediums,
		Sort:      req.Sort,
	})
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "encode response")
		return
	}
	WriteRaw(w, status, b)
}

// WriteRaw writes an already encoded JSON body.
func WriteRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	b, _ := json.Marshal(errorBody{Error: msg})
	WriteRaw(w, status, b)
}

// StatusFor maps resolver errors to HTTP status and a client-safe message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, coverage.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.Canceled):
		// caller gone mid-resolve; recorded apart from 5xx
		return 499, "request canceled"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
