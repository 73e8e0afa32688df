package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"cipher-scan/internal/ml"
	"cipher-scan/internal/scan"
)

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Text *string `json:"text"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	ModelLoaded   bool   `json:"model_loaded"`
	EncoderLoaded bool   `json:"encoder_loaded"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// errorText holds the per-endpoint wording for input and backend failures.
type errorText struct {
	empty  string
	failed string
}

var (
	textErrors = errorText{empty: "Ciphertext input is required", failed: "Prediction error"}
	fileErrors = errorText{empty: "Uploaded file is empty", failed: "File analysis failed"}
)

// multipartOverhead leaves room for boundaries and part headers above the
// payload limit.
const multipartOverhead = 64 * 1024

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	limit := s.svc.Options().MaxInputBytes
	// JSON escaping can expand text up to six times.
	r.Body = http.MaxBytesReader(w, r.Body, int64(limit)*6+1024)

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if bodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLarge(limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, textErrors.empty)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	res, err := s.svc.PredictText(ctx, *req.Text)
	if err != nil {
		status, detail := s.errorStatus(err, textErrors)
		writeError(w, status, detail)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePredictFile(w http.ResponseWriter, r *http.Request) {
	limit := s.svc.Options().MaxInputBytes
	r.Body = http.MaxBytesReader(w, r.Body, int64(limit)+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		if bodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLarge(limit))
			return
		}
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	// One byte past the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, int64(limit)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	res, err := s.svc.PredictBytes(ctx, header.Filename, data)
	if err != nil {
		status, detail := s.errorStatus(err, fileErrors)
		writeError(w, status, detail)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	engine := s.svc.Engine()
	health := HealthResponse{
		Status:        "healthy",
		ModelLoaded:   engine.Available(),
		EncoderLoaded: engine.Vocabulary().Len() > 0,
	}

	status := http.StatusOK
	if !health.ModelLoaded || !health.EncoderLoaded {
		health.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, health)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Engine().Info())
}

// errorStatus maps a service error to a status code and a client-facing detail.
func (s *Server) errorStatus(err error, text errorText) (int, string) {
	switch {
	case errors.Is(err, ml.ErrModelUnavailable):
		return http.StatusInternalServerError, "Model not loaded"
	case errors.Is(err, scan.ErrEmptyInput):
		return http.StatusBadRequest, text.empty
	case errors.Is(err, scan.ErrOversizeInput):
		return http.StatusRequestEntityTooLarge, tooLarge(s.svc.Options().MaxInputBytes)
	default:
		log.Error().Err(err).Msg("prediction request failed")
		return http.StatusInternalServerError, fmt.Sprintf("%s: %v", text.failed, err)
	}
}

// bodyTooLarge reports whether err came from the MaxBytesReader limit. The
// multipart parser does not always wrap it, so the message is checked too.
func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func tooLarge(limit int) string {
	const mib = 1024 * 1024
	if limit%mib == 0 {
		return fmt.Sprintf("File too large (max %dMB)", limit/mib)
	}
	return fmt.Sprintf("File too large (max %d bytes)", limit)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
