package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saldang/grezzi/internal/config"
	"github.com/saldang/grezzi/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore(t *testing.T) {
	t.Run("CreateAndGetJob", func(t *testing.T) {
		s := newTestSQLite(t)
		ctx := context.Background()

		job, err := s.CreateJob(ctx, "daPulire/leads.xlsx", "m123")
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, model.JobStateQueued, job.State)

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, "daPulire/leads.xlsx", got.File)
		assert.Equal(t, "m123", got.TableID)
		assert.Equal(t, model.JobStateQueued, got.State)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("UpdateJobState", func(t *testing.T) {
		s := newTestSQLite(t)
		ctx := context.Background()

		job, err := s.CreateJob(ctx, "a.xlsx", "")
		require.NoError(t, err)
		require.NoError(t, s.UpdateJobState(ctx, job.ID, model.JobStateReconciled))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateReconciled, got.State)
	})

	t.Run("CompleteJob", func(t *testing.T) {
		s := newTestSQLite(t)
		ctx := context.Background()

		job, err := s.CreateJob(ctx, "a.xlsx", "m1")
		require.NoError(t, err)
		require.NoError(t, s.CompleteJob(ctx, job.ID, model.JobResult{
			RawRows: 80, CleanRows: 60, RemovedRows: 20, FinalPath: "puliti/a_clean_20260301_140509.csv",
		}))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateForwarded, got.State)
		assert.Equal(t, 80, got.RawRows)
		assert.Equal(t, 60, got.CleanRows)
		assert.Equal(t, 20, got.RemovedRows)
		assert.Equal(t, "puliti/a_clean_20260301_140509.csv", got.FinalPath)
		assert.Empty(t, got.Error)
	})

	t.Run("FailJob", func(t *testing.T) {
		s := newTestSQLite(t)
		ctx := context.Background()

		job, err := s.CreateJob(ctx, "a.xlsx", "m1")
		require.NoError(t, err)
		require.NoError(t, s.FailJob(ctx, job.ID, model.JobResult{RawRows: 5}, "schema: missing required column"))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFailed, got.State)
		assert.Equal(t, 5, got.RawRows)
		assert.Equal(t, "schema: missing required column", got.Error)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newTestSQLite(t)
		ctx := context.Background()

		_, err := s.GetJob(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.True(t, errors.Is(s.UpdateJobState(ctx, "missing", model.JobStateLoaded), ErrNotFound))
		assert.True(t, errors.Is(s.CompleteJob(ctx, "missing", model.JobResult{}), ErrNotFound))
	})

	t.Run("ListJobs", func(t *testing.T) {
		s := newTestSQLite(t)
		ctx := context.Background()

		var ids []string
		for _, f := range []string{"a.xlsx", "b.xlsx", "c.xlsx"} {
			job, err := s.CreateJob(ctx, f, "")
			require.NoError(t, err)
			ids = append(ids, job.ID)
		}
		require.NoError(t, s.FailJob(ctx, ids[1], model.JobResult{}, "boom"))

		all, err := s.ListJobs(ctx, JobFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "c.xlsx", all[0].File)

		failed, err := s.ListJobs(ctx, JobFilter{State: model.JobStateFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, ids[1], failed[0].ID)

		page, err := s.ListJobs(ctx, JobFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "b.xlsx", page[0].File)
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "jobs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	_, err = s.CreateJob(ctx, "a.xlsx", "")
	require.NoError(t, err)

	_, err = Open(ctx, config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}
