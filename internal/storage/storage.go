// Package storage provides the optional prediction audit log for the cipher
// scan service. It uses BoltDB as the underlying storage engine and keeps one
// record per served prediction under a time-ordered key.
//
// Model state is never stored here; the classifier is loaded from its
// artifact at startup only.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const predictionsBucket = "predictions" // Bucket name for prediction records

// DBFile is the database file name inside the data directory.
const DBFile = "cipher-scan.db"

// Store provides persistent storage for prediction records using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
func New(dataPath string) (*Store, error) {
	return Open(dataPath, false)
}

// Open opens the database under dataPath. A read-only store neither creates
// the file nor its buckets, and can share the file with other readers but not
// with a running service, which holds the write lock.
func Open(dataPath string, readOnly bool) (*Store, error) {
	dbPath := filepath.Join(dataPath, DBFile)

	if readOnly {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: readOnly})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("failed to open database: %s is locked by another process: %w", dbPath, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if readOnly {
		return &Store{db: db}, nil
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// recordKey orders records by time; the id breaks ties within a nanosecond.
func recordKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

func timeKey(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", ts.UnixNano()))
}

func hasPrefix(data, prefix []byte) bool {
	return bytes.HasPrefix(data, prefix)
}

func compareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}

func unmarshalRecord(data []byte) (PredictionRecord, error) {
	var rec PredictionRecord
	err := json.Unmarshal(data, &rec)
	return rec, err
}
