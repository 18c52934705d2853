package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mchmarny/overunder/pkg/data"
	"github.com/mchmarny/overunder/pkg/hash"
	"github.com/mchmarny/overunder/pkg/predict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

type memStore struct {
	entries   []*data.Entry
	appendErr error
}

func (m *memStore) AppendEntry(_ context.Context, e *data.Entry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append([]*data.Entry{e}, m.entries...)
	if len(m.entries) > data.HistoryLimit {
		m.entries = m.entries[:data.HistoryLimit]
	}
	return nil
}

func (m *memStore) ListEntries(_ context.Context, _ data.ListFilter) ([]*data.Entry, error) {
	return m.entries, nil
}

func (m *memStore) ClearHistory(_ context.Context) error {
	m.entries = nil
	return nil
}

func (m *memStore) GetStats(_ context.Context) (*data.Stats, error) {
	counts := make(map[string]int64)
	for _, e := range m.entries {
		counts[e.Prediction]++
	}
	return data.ComputeStats(counts), nil
}

func newTestAnalyzer(s Store, opts ...Option) *Analyzer {
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return New(s, opts...)
}

func TestAnalyze(t *testing.T) {
	s := &memStore{}
	a := newTestAnalyzer(s)

	res, err := a.Analyze(context.Background(), "  D41D8CD98F00B204E9800998ECF8427E\n")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", res.Entry.Hash)
	assert.Equal(t, fixedNow, res.Entry.Timestamp)
	assert.Equal(t, 60, res.Prediction.Score)
	assert.Equal(t, predict.LabelXiu, res.Entry.Prediction)
	assert.Equal(t, 60, res.Entry.Confidence)
	require.Len(t, s.entries, 1)
	assert.Equal(t, res.Entry, s.entries[0])
}

func TestAnalyze_Errors(t *testing.T) {
	s := &memStore{}
	a := newTestAnalyzer(s)
	ctx := context.Background()

	_, err := a.Analyze(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = a.Analyze(ctx, strings.Repeat("a", 31))
	assert.ErrorIs(t, err, hash.ErrInvalidFormat)

	_, err = a.Analyze(ctx, "g"+strings.Repeat("a", 31))
	assert.ErrorIs(t, err, hash.ErrInvalidFormat)

	assert.Empty(t, s.entries)
}

func TestAnalyze_StoreFailure(t *testing.T) {
	boom := errors.New("boom")
	a := newTestAnalyzer(&memStore{appendErr: boom})

	_, err := a.Analyze(context.Background(), strings.Repeat("a", 32))
	assert.ErrorIs(t, err, boom)
}

func TestSplitBatch(t *testing.T) {
	lines := SplitBatch("a\n\n  b  \r\n\t\nc")
	assert.Equal(t, []string{"a", "b", "c"}, lines)
	assert.Empty(t, SplitBatch(" \n \n"))
}

func TestAnalyzeBatch(t *testing.T) {
	s := &memStore{}
	a := newTestAnalyzer(s)

	text := strings.Join([]string{
		"d41d8cd98f00b204e9800998ecf8427e",
		"",
		"not-a-hash",
		strings.Repeat("a", 31),
		"  5D41402ABC4B2A76B9719D911017C592 ",
		"g" + strings.Repeat("0", 31),
	}, "\n")

	report, err := a.AnalyzeBatch(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 3, report.Errors)
	require.Len(t, report.Items, 5)

	assert.NotNil(t, report.Items[0].Result)
	assert.Empty(t, report.Items[0].Error)
	assert.Nil(t, report.Items[1].Result)
	assert.Contains(t, report.Items[1].Error, "invalid MD5 format")
	assert.Equal(t, 4, report.Items[3].Line)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", report.Items[3].Result.Entry.Hash)

	require.Len(t, s.entries, 2)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", s.entries[0].Hash)
}

func TestAnalyzeBatch_Limits(t *testing.T) {
	a := newTestAnalyzer(&memStore{})
	ctx := context.Background()

	_, err := a.AnalyzeBatch(ctx, "\n \n")
	assert.ErrorIs(t, err, ErrEmptyBatch)

	lines := make([]string, BatchLimitDefault+1)
	for i := range lines {
		lines[i] = fmt.Sprintf("%032x", i)
	}
	_, err = a.AnalyzeBatch(ctx, strings.Join(lines, "\n"))
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	report, err := a.AnalyzeBatch(ctx, strings.Join(lines[:BatchLimitDefault], "\n"))
	require.NoError(t, err)
	assert.Equal(t, BatchLimitDefault, report.Processed)

	small := newTestAnalyzer(&memStore{}, WithBatchLimit(2))
	_, err = small.AnalyzeBatch(ctx, strings.Join(lines[:3], "\n"))
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestAnalyzeBatch_Cancelled(t *testing.T) {
	s := &memStore{}
	a := newTestAnalyzer(s, WithPace(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := a.AnalyzeBatch(ctx, fmt.Sprintf("%032x\n%032x", 1, 2))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Processed)
	assert.Empty(t, s.entries)
}

func TestAnalyzeBatch_Paced(t *testing.T) {
	a := newTestAnalyzer(&memStore{}, WithPace(time.Millisecond))

	report, err := a.AnalyzeBatch(context.Background(), fmt.Sprintf("%032x\n%032x\n%032x", 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
}

func TestHistoryNeverExceedsLimit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, data.Init(dbPath))
	db, err := data.GetDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := newTestAnalyzer(data.NewStore(db))
	ctx := context.Background()

	for i := 0; i < data.HistoryLimit+20; i++ {
		_, err := a.Analyze(ctx, fmt.Sprintf("%032x", i))
		require.NoError(t, err)
	}

	list, err := a.History(ctx, data.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, data.HistoryLimit)
	assert.Equal(t, fmt.Sprintf("%032x", data.HistoryLimit+19), list[0].Hash)

	st, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(data.HistoryLimit), st.Total)
	assert.Equal(t, st.Total, st.Over+st.Under)

	require.NoError(t, a.Clear(ctx))
	list, err = a.History(ctx, data.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNilStore(t *testing.T) {
	a := newTestAnalyzer(nil)
	ctx := context.Background()

	res, err := a.Analyze(ctx, strings.Repeat("0", 32))
	require.NoError(t, err)
	assert.Equal(t, 30, res.Prediction.Score)

	_, err = a.History(ctx, data.ListFilter{})
	assert.ErrorIs(t, err, data.ErrDBNotInitialized)
	assert.ErrorIs(t, a.Clear(ctx), data.ErrDBNotInitialized)
	_, err = a.Stats(ctx)
	assert.ErrorIs(t, err, data.ErrDBNotInitialized)
}
