package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/mchmarny/overunder/pkg/hash"
	"github.com/mchmarny/overunder/pkg/predict"
)

const (
	insertEntrySQL = `INSERT INTO history (id, hash, label, score, confidence, created_at, entry)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	trimHistorySQL = `DELETE FROM history WHERE seq NOT IN (
		SELECT seq FROM history ORDER BY created_at DESC, seq DESC LIMIT ?
	)`

	selectEntriesSQL = `SELECT entry FROM history
		WHERE (? = '' OR label = ?)
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`

	selectLabelCountsSQL = `SELECT label, COUNT(*) FROM history GROUP BY label`

	countEntriesSQL = `SELECT COUNT(*) FROM history`

	deleteHistorySQL = `DELETE FROM history`

	// fixed width so created_at sorts as text
	createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is one analysis kept in history: the hash features plus the
// prediction derived from them.
type Entry struct {
	ID          string `json:"id" yaml:"id"`
	hash.Record `yaml:",inline"`
	Prediction  string `json:"prediction" yaml:"prediction"`
	Confidence  int    `json:"confidence" yaml:"confidence"`
	Score       int    `json:"score" yaml:"score"`
}

// NewEntry combines a record and its prediction.
func NewEntry(r *hash.Record, p *predict.Prediction) *Entry {
	e := &Entry{ID: uuid.NewString()}
	if r != nil {
		e.Record = *r
	}
	if p != nil {
		e.Prediction = p.Label
		e.Confidence = p.Confidence
		e.Score = p.Score
	}
	return e
}

// ListFilter narrows the entries returned by ListEntries.
type ListFilter struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Limit int    `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Stats are aggregate counts over the history. SuccessRate is the share of
// over predictions; no outcome is ever recorded to measure real success.
type Stats struct {
	Total       int64            `json:"totalAnalyzed" yaml:"totalAnalyzed"`
	Over        int64            `json:"overCount" yaml:"overCount"`
	Under       int64            `json:"underCount" yaml:"underCount"`
	SuccessRate int              `json:"successRate" yaml:"successRate"`
	Labels      map[string]int64 `json:"labels" yaml:"labels"`
}

// Store keeps the analysis history in sqlite.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database created with Init.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendEntry adds e and evicts the oldest entries by timestamp beyond
// HistoryLimit.
func (s *Store) AppendEntry(ctx context.Context, e *Entry) error {
	if s == nil || s.db == nil {
		return ErrDBNotInitialized
	}
	if e == nil {
		return fmt.Errorf("entry required")
	}

	_, err := s.appendEntries(ctx, []*Entry{e})
	return err
}

// appendEntries inserts the list in order, so the last item ends up newest.
func (s *Store) appendEntries(ctx context.Context, list []*Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	inserted, err := insertEntries(ctx, tx, list)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return 0, fmt.Errorf("rolling back after %v: %w", err, rbErr)
		}
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return inserted, nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, list []*Entry) (int, error) {
	stmt, err := tx.PrepareContext(ctx, insertEntrySQL)
	if err != nil {
		return 0, fmt.Errorf("preparing entry insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range list {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}

		b, err := json.Marshal(e)
		if err != nil {
			return 0, fmt.Errorf("marshaling entry %s: %w", e.ID, err)
		}

		res, err := stmt.ExecContext(ctx, e.ID, e.Hash, e.Prediction, e.Score, e.Confidence,
			e.Timestamp.UTC().Format(createdAtLayout), string(b))
		if err != nil {
			return 0, fmt.Errorf("inserting entry %s: %w", e.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if _, err := tx.ExecContext(ctx, trimHistorySQL, HistoryLimit); err != nil {
		return 0, fmt.Errorf("trimming history: %w", err)
	}
	return inserted, nil
}

// ListEntries returns entries newest first by timestamp; insert order
// breaks ties.
func (s *Store) ListEntries(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDBNotInitialized
	}

	limit := filter.Limit
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, selectEntriesSQL, filter.Label, filter.Label, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	list := make([]*Entry, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e := &Entry{}
		if err := json.Unmarshal([]byte(raw), e); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return list, nil
}

// CountEntries returns the number of entries in history.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDBNotInitialized
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, countEntriesSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting history: %w", err)
	}
	return count, nil
}

// ClearHistory deletes every entry.
func (s *Store) ClearHistory(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDBNotInitialized
	}

	if _, err := s.db.ExecContext(ctx, deleteHistorySQL); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// GetStats aggregates label counts over the history.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	if s == nil || s.db == nil {
		return nil, ErrDBNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, selectLabelCountsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying label counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("scanning label count: %w", err)
		}
		counts[label] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating label counts: %w", err)
	}

	return ComputeStats(counts), nil
}

// ComputeStats derives Stats from per-label counts.
func ComputeStats(counts map[string]int64) *Stats {
	st := &Stats{Labels: make(map[string]int64, len(counts))}
	for label, count := range counts {
		st.Labels[label] = count
		st.Total += count
		switch predict.SideOf(label) {
		case predict.SideOver:
			st.Over += count
		case predict.SideUnder:
			st.Under += count
		}
	}

	if st.Total > 0 {
		st.SuccessRate = int(math.Round(float64(st.Over) / float64(st.Total) * 100))
	}
	return st
}
