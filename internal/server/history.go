package server

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"cipher-scan/internal/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
)

// History is the read side of the prediction audit log.
type History interface {
	RecentPredictions(n int) ([]storage.PredictionRecord, error)
	GetPredictionsInRange(start, end time.Time) ([]storage.PredictionRecord, error)
	GetPrediction(id string) (storage.PredictionRecord, bool, error)
	Count() (int, error)
}

// HistoryResponse is the body of GET /predictions. Predictions are newest first.
type HistoryResponse struct {
	Total       int                        `json:"total"`
	Predictions []storage.PredictionRecord `json:"predictions"`
}

// handleHistory serves up to n recorded predictions, optionally limited to
// since <= timestamp <= until (RFC 3339).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotFound, "Prediction history is disabled")
		return
	}

	q := r.URL.Query()
	n := defaultHistoryLimit
	if v := q.Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("n must be between 1 and %d", maxHistoryLimit))
			return
		}
		n = parsed
	}

	since, err := parseTimeParam(q.Get("since"), time.Unix(0, 0))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since: %v", err))
		return
	}
	until, err := parseTimeParam(q.Get("until"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid until: %v", err))
		return
	}
	if since.Before(time.Unix(0, 0)) {
		since = time.Unix(0, 0)
	}

	var records []storage.PredictionRecord
	if q.Has("since") || q.Has("until") {
		records, err = s.opts.History.GetPredictionsInRange(since, until)
		if err == nil {
			// Range reads come back oldest first; keep the newest n.
			if len(records) > n {
				records = records[len(records)-n:]
			}
			slices.Reverse(records)
		}
	} else {
		records, err = s.opts.History.RecentPredictions(n)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to read prediction history")
		writeError(w, http.StatusInternalServerError, "Failed to read prediction history")
		return
	}

	total, err := s.opts.History.Count()
	if err != nil {
		log.Error().Err(err).Msg("failed to count predictions")
		writeError(w, http.StatusInternalServerError, "Failed to read prediction history")
		return
	}

	if records == nil {
		records = []storage.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Total: total, Predictions: records})
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotFound, "Prediction history is disabled")
		return
	}

	id := mux.Vars(r)["id"]
	rec, ok, err := s.opts.History.GetPrediction(id)
	if err != nil {
		log.Error().Err(err).Str("request_id", id).Msg("failed to read prediction")
		writeError(w, http.StatusInternalServerError, "Failed to read prediction history")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Prediction not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func parseTimeParam(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, v)
}
