package scheduler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qtesting "github.com/teranos/trendspark/internal/testing"
)

func TestJobRunRecordAndRecent(t *testing.T) {
	db := qtesting.CreateTestDB(t)
	store := NewJobRunStore(db)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Record(&JobRun{
		JobKind:       JobKindIngestRank,
		Status:        RunStatusSuccess,
		RunAt:         now.Add(-time.Minute),
		DurationMS:    1234.0,
		CorrelationID: "corr-1",
	}))
	require.NoError(t, store.Record(&JobRun{
		JobKind:       JobKindIngestRank,
		Status:        RunStatusError,
		RunAt:         now,
		DurationMS:    56.0,
		Detail:        "upstream timeout",
		CorrelationID: "corr-2",
	}))
	require.NoError(t, store.Record(&JobRun{
		JobKind: JobKindGenReplies,
		Status:  RunStatusSuccess,
		RunAt:   now,
	}))

	runs, err := store.Recent(JobKindIngestRank, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, RunStatusError, runs[0].Status)
	assert.Equal(t, "upstream timeout", runs[0].Detail)
	assert.Equal(t, "corr-2", runs[0].CorrelationID)
	assert.Equal(t, RunStatusSuccess, runs[1].Status)

	all, err := store.Recent("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestJobRunDetailIsTruncated(t *testing.T) {
	db := qtesting.CreateTestDB(t)
	store := NewJobRunStore(db)

	require.NoError(t, store.Record(&JobRun{
		JobKind: JobKindIngestRank,
		Status:  RunStatusError,
		RunAt:   time.Now().UTC(),
		Detail:  strings.Repeat("x", 1000),
	}))

	runs, err := store.Recent(JobKindIngestRank, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Len(t, runs[0].Detail, detailLimit+len("..."))
	assert.True(t, strings.HasSuffix(runs[0].Detail, "..."))
}
