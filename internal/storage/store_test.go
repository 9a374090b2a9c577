package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2025, 6, 24, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.BeginRun(ctx, "run-1", "REE", "comprehensive"))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.True(t, run.FinishedAt.IsZero())
	assert.Zero(t, run.Duration())
	assert.Empty(t, run.Tasks)

	tasks := []TaskRecord{
		{Position: 1, Name: "news_research_task", Agent: "News Researcher", Raw: "news"},
		{Position: 0, Name: "financial_analysis_task", Agent: "Financial Analyst", Raw: "numbers", Plan: "1. read"},
	}
	require.NoError(t, s.FinishRun(ctx, "run-1", tasks, nil))

	run, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, run.Status)
	assert.Empty(t, run.Error)
	assert.Equal(t, "REE", run.Symbol)
	assert.Equal(t, "comprehensive", run.AnalysisType)
	assert.Equal(t, time.Second, run.Duration())
	require.Len(t, run.Tasks, 2)
	assert.Equal(t, "financial_analysis_task", run.Tasks[0].Name)
	assert.Equal(t, "1. read", run.Tasks[0].Plan)
	assert.Equal(t, "news", run.Tasks[1].Raw)
}

func TestFinishRunWithError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.BeginRun(ctx, "run-1", "VNM", "liquidity"))
	require.NoError(t, s.FinishRun(ctx, "run-1", nil, errors.New("could not fetch financial data for VNM")))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, run.Status)
	assert.Equal(t, "could not fetch financial data for VNM", run.Error)
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	err = s.FinishRun(ctx, "missing", nil, nil)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestBeginRunDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.BeginRun(ctx, "run-1", "REE", "comprehensive"))
	assert.Error(t, s.BeginRun(ctx, "run-1", "REE", "comprehensive"))
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.BeginRun(ctx, id, "FPT", "profitability"))
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
}

func TestStoreReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.BeginRun(ctx, "run-1", "REE", "comprehensive"))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
