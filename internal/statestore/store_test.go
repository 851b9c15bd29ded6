package statestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), ".markovbuild"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTaskState_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.TaskState(ctx, "task.exec.npmBuild")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Unix(1700000000, 42)
	require.NoError(t, s.PutTaskState(ctx, TaskState{
		TaskID:     "task.exec.npmBuild",
		ConfigHash: "c1",
		InputHash:  "i1",
		OutputHash: "o1",
		UpdatedAt:  at,
	}))

	got, ok, err := s.TaskState(ctx, "task.exec.npmBuild")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", got.ConfigHash)
	assert.Equal(t, "i1", got.InputHash)
	assert.Equal(t, "o1", got.OutputHash)
	assert.True(t, at.Equal(got.UpdatedAt))

	t.Run("put replaces", func(t *testing.T) {
		require.NoError(t, s.PutTaskState(ctx, TaskState{TaskID: "task.exec.npmBuild", ConfigHash: "c2", InputHash: "i2", OutputHash: "o2"}))
		got, _, err := s.TaskState(ctx, "task.exec.npmBuild")
		require.NoError(t, err)
		assert.Equal(t, "c2", got.ConfigHash)
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("delete forgets", func(t *testing.T) {
		require.NoError(t, s.DeleteTaskState(ctx, "task.exec.npmBuild"))
		_, ok, err := s.TaskState(ctx, "task.exec.npmBuild")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	first, err := s.BeginRun(ctx, []string{"bootRun"})
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, first, nil))

	second, err := s.BeginRun(ctx, []string{"fastVerify", "precompute"})
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, second, errors.New("compileJava failed")))

	third, err := s.BeginRun(ctx, nil)
	require.NoError(t, err)

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, third, runs[0].ID)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.True(t, runs[0].FinishedAt.IsZero())
	assert.Empty(t, runs[0].Requested)

	assert.Equal(t, second, runs[1].ID)
	assert.Equal(t, StatusFailed, runs[1].Status)
	assert.Equal(t, "compileJava failed", runs[1].Error)
	assert.Equal(t, []string{"fastVerify", "precompute"}, runs[1].Requested)

	assert.Equal(t, first, runs[2].ID)
	assert.Equal(t, StatusSucceeded, runs[2].Status)

	limited, err := s.RecentRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFinishRun_UnknownID(t *testing.T) {
	s := openTestStore(t)
	err := s.FinishRun(context.Background(), "missing", nil)
	assert.ErrorContains(t, err, "not found")
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")

	s, err := Open(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, s.PutTaskState(ctx, TaskState{TaskID: "a", ConfigHash: "c", InputHash: "i", OutputHash: "o"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, dir)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, filepath.Join(dir, FileName), s.Path())
	_, ok, err := s.TaskState(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}
