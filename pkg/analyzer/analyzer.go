package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mchmarny/overunder/pkg/data"
	"github.com/mchmarny/overunder/pkg/hash"
	"github.com/mchmarny/overunder/pkg/predict"
)

const (
	// BatchLimitDefault is the maximum number of hashes in one batch.
	BatchLimitDefault = 50
)

var (
	ErrEmptyInput    = errors.New("MD5 hash required")
	ErrEmptyBatch    = errors.New("at least one MD5 hash required")
	ErrBatchTooLarge = errors.New("too many hashes in batch")
)

// Store persists analysis history.
type Store interface {
	AppendEntry(ctx context.Context, e *data.Entry) error
	ListEntries(ctx context.Context, filter data.ListFilter) ([]*data.Entry, error)
	ClearHistory(ctx context.Context) error
	GetStats(ctx context.Context) (*data.Stats, error)
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock sets the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithPace sets the delay between batch items.
func WithPace(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.pace = d
		}
	}
}

// WithBatchLimit caps the batch size, never above BatchLimitDefault.
func WithBatchLimit(n int) Option {
	return func(a *Analyzer) {
		if n > 0 && n <= BatchLimitDefault {
			a.batchLimit = n
		}
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// Analyzer validates, scores and records MD5 hashes.
type Analyzer struct {
	store      Store
	now        func() time.Time
	pace       time.Duration
	batchLimit int
	logger     *slog.Logger
}

// New creates an Analyzer backed by the given store.
func New(store Store, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:      store,
		now:        time.Now,
		batchLimit: BatchLimitDefault,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is a single analysis as saved to history.
type Result struct {
	Entry      *data.Entry         `json:"entry" yaml:"entry"`
	Prediction *predict.Prediction `json:"prediction" yaml:"prediction"`
}

// Analyze scores one hash and appends it to history.
func (a *Analyzer) Analyze(ctx context.Context, input string) (*Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	r, err := hash.Extract(input, a.now())
	if err != nil {
		return nil, err
	}

	p := predict.Predict(r)
	e := data.NewEntry(r, p)

	if a.store != nil {
		if err := a.store.AppendEntry(ctx, e); err != nil {
			return nil, fmt.Errorf("saving analysis: %w", err)
		}
	}

	a.logger.Debug("hash analyzed",
		"hash", r.Hash,
		"score", p.Score,
		"label", p.Label,
		"confidence", p.Confidence,
	)

	return &Result{Entry: e, Prediction: p}, nil
}

// BatchItem is the outcome of one batch line.
type BatchItem struct {
	Line   int     `json:"line" yaml:"line"`
	Input  string  `json:"input" yaml:"input"`
	Result *Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	Processed int          `json:"processed" yaml:"processed"`
	Errors    int          `json:"errors" yaml:"errors"`
	Items     []*BatchItem `json:"items" yaml:"items"`
}

// SplitBatch returns the trimmed, non-empty lines of text.
func SplitBatch(text string) []string {
	lines := make([]string, 0)
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// AnalyzeBatch analyzes newline separated hashes in order. Item failures
// are counted and do not stop the batch. On cancellation the partial report
// is returned with the context error.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, text string) (*BatchReport, error) {
	lines := SplitBatch(text)
	if len(lines) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(lines) > a.batchLimit {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrBatchTooLarge, len(lines), a.batchLimit)
	}

	report := &BatchReport{Items: make([]*BatchItem, 0, len(lines))}
	for i, line := range lines {
		if i > 0 && a.pace > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(a.pace):
			}
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		item := &BatchItem{Line: i + 1, Input: line}
		res, err := a.Analyze(ctx, line)
		if err != nil {
			report.Errors++
			item.Error = err.Error()
			a.logger.Debug("batch item failed", "line", item.Line, "error", err)
		} else {
			report.Processed++
			item.Result = res
		}
		report.Items = append(report.Items, item)
	}

	a.logger.Info("batch complete", "processed", report.Processed, "errors", report.Errors)
	return report, nil
}

// History lists saved entries, newest first.
func (a *Analyzer) History(ctx context.Context, filter data.ListFilter) ([]*data.Entry, error) {
	if a.store == nil {
		return nil, data.ErrDBNotInitialized
	}
	return a.store.ListEntries(ctx, filter)
}

// Clear deletes all saved entries.
func (a *Analyzer) Clear(ctx context.Context) error {
	if a.store == nil {
		return data.ErrDBNotInitialized
	}
	if err := a.store.ClearHistory(ctx); err != nil {
		return err
	}
	a.logger.Info("history cleared")
	return nil
}

// Stats returns aggregate counts over the history.
func (a *Analyzer) Stats(ctx context.Context) (*data.Stats, error) {
	if a.store == nil {
		return nil, data.ErrDBNotInitialized
	}
	return a.store.GetStats(ctx)
}
