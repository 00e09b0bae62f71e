// Package history keeps a local record of finished runs in a bbolt file.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wesleyorama2/volley/internal/performance/engine"
	"github.com/wesleyorama2/volley/internal/performance/threshold"
)

const (
	bucketRuns  = "runs"
	bucketIndex = "run_ids"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Entry is the stored summary of one run.
type Entry struct {
	RunID       string        `json:"runId"`
	Name        string        `json:"name"`
	StartTime   time.Time     `json:"startTime"`
	Duration    time.Duration `json:"duration"`
	State       string        `json:"state"`
	ExitCode    int           `json:"exitCode"`
	Requests    int64         `json:"requests"`
	Iterations  int64         `json:"iterations"`
	ErrorRate   float64       `json:"errorRate"`
	RPS         float64       `json:"rps"`
	SteadyRPS   float64       `json:"steadyRps,omitempty"`
	P95Ms       float64       `json:"p95Ms"`
	Failed      []string      `json:"failedThresholds,omitempty"`
	AbortReason string        `json:"abortReason,omitempty"`
}

// FromResult summarizes a run result.
func FromResult(r *engine.Result) Entry {
	e := Entry{
		RunID:       r.RunID.String(),
		Name:        r.Name,
		StartTime:   r.StartTime,
		Duration:    r.Duration,
		State:       string(r.State),
		ExitCode:    r.ExitCode(),
		SteadyRPS:   r.SteadyStateRPS,
		AbortReason: r.AbortReason,
	}
	if snap := r.Metrics; snap != nil {
		e.Requests = snap.TotalRequests()
		e.Iterations = snap.TotalIterations()
		e.ErrorRate = snap.ErrorRate()
		e.RPS = snap.RPS()
		e.P95Ms = float64(snap.Latency().P95) / float64(time.Millisecond)
	}
	for _, res := range r.Verdict.Results {
		if res.Status == threshold.StatusFailed {
			e.Failed = append(e.Failed, res.Metric+" "+res.Expression)
		}
	}
	return e
}

// Store is a bbolt-backed run history.
type Store struct {
	db *bbolt.DB
}

// DefaultPath returns ~/.volley/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".volley", "history.db"), nil
}

// Open opens or creates the history file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketRuns, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

// runKey orders entries by start time, then run ID.
func runKey(e Entry) []byte {
	key := make([]byte, 8, 8+len(e.RunID))
	binary.BigEndian.PutUint64(key, uint64(e.StartTime.UnixNano()))
	return append(key, e.RunID...)
}

// Save stores an entry, replacing any entry with the same run ID.
func (s *Store) Save(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		index := tx.Bucket([]byte(bucketIndex))

		if old := index.Get([]byte(e.RunID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}

		key := runKey(e)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		return index.Put([]byte(e.RunID), key)
	})
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns everything.
func (s *Store) List(limit int) ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupt history entry: %w", err)
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns the entry of a run.
func (s *Store) Get(runID string) (*Entry, error) {
	var e Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(bucketIndex)).Get([]byte(runID))
		if key == nil {
			return ErrNotFound
		}
		v := tx.Bucket([]byte(bucketRuns)).Get(key)
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}
