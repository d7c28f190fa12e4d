// Package journal keeps an append-only audit trail of finished chain
// executions in a bbolt file.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned by Get for an unknown record ID.
var ErrNotFound = errors.New("journal record not found")

var executionsBucket = []byte("executions")

// Handler outcomes stored in HandlerRecord.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// HandlerRecord summarizes one handler within an execution.
type HandlerRecord struct {
	Name     string        `json:"name"`
	Attempts int           `json:"attempts,omitempty"`
	Outcome  string        `json:"outcome"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
}

// Record is one finished execution.
type Record struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	Chain       string          `json:"chain"`
	Status      string          `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	Elapsed     time.Duration   `json:"elapsed"`
	Handlers    []HandlerRecord `json:"handlers"`
	Error       string          `json:"error,omitempty"`
}

// Store is a bbolt-backed journal. Records are keyed by ULID, so key order
// is append order.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(executionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file.
func (s *Store) Close() error { return s.db.Close() }

// Append stores rec, assigning rec.ID when empty.
func (s *Store) Append(rec *Record) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	} else if _, err := ulid.ParseStrict(rec.ID); err != nil {
		return fmt.Errorf("append record: invalid id %q: %w", rec.ID, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(executionsBucket).Put([]byte(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(executionsBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		rec = &Record{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

// List returns up to limit records, newest first. A non-positive limit
// returns everything.
func (s *Store) List(limit int) ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(executionsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			rec := &Record{}
			if err := json.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}
