package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// RankedLabel is one entry of a stored ranking.
type RankedLabel struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// PredictionRecord is a single served prediction.
type PredictionRecord struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Mode       string             `json:"mode"`
	Filename   string             `json:"filename,omitempty"`
	InputHash  string             `json:"input_sha256"`
	InputBytes int                `json:"input_bytes"`
	Algorithm  string             `json:"algorithm"`
	Confidence float64            `json:"confidence"`
	Top        []RankedLabel      `json:"top,omitempty"`
	Features   map[string]float64 `json:"features"`
}

// StorePrediction appends a prediction record.
func (s *Store) StorePrediction(record PredictionRecord) error {
	if record.ID == "" {
		return fmt.Errorf("prediction record has no id")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		if b == nil {
			return fmt.Errorf("predictions bucket missing")
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal prediction record: %w", err)
		}
		return b.Put(recordKey(record.Timestamp, record.ID), data)
	})
}

// RecentPredictions returns up to n records, newest first.
func (s *Store) RecentPredictions(n int) ([]PredictionRecord, error) {
	var records []PredictionRecord
	if n <= 0 {
		return records, nil
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			rec, err := unmarshalRecord(v)
			if err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// GetPredictionsInRange returns records with start <= timestamp <= end, oldest first.
func (s *Store) GetPredictionsInRange(start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		startKey := timeKey(start)
		endKey := timeKey(end)

		for k, v := c.Seek(startKey); k != nil; k, v = c.Next() {
			if compareKeys(k[:len(endKey)], endKey) > 0 {
				break
			}
			rec, err := unmarshalRecord(v)
			if err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// GetPrediction looks a record up by id. It scans the bucket, so it is meant
// for operator tooling rather than the request path.
func (s *Store) GetPrediction(id string) (PredictionRecord, bool, error) {
	var (
		found PredictionRecord
		ok    bool
	)
	suffix := []byte("_" + id)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) < len(suffix) || !hasPrefix(k[len(k)-len(suffix):], suffix) {
				return nil
			}
			rec, err := unmarshalRecord(v)
			if err != nil {
				return fmt.Errorf("decode prediction %s: %w", id, err)
			}
			found, ok = rec, true
			return nil
		})
	})
	return found, ok, err
}

// Count returns the number of stored predictions.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(predictionsBucket)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}
