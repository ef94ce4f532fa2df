package jobcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/warden/internal/job"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadReturn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := job.Result{
		JID:     "20260301101500000001",
		Return:  map[string]any{"stdout": "ok"},
		Retcode: 2,
		Out:     "nested",
		Success: true,
		ID:      "web01",
		Fun:     "cmd.run",
		FunArgs: []string{"ls", "cwd=/tmp"},
	}
	require.NoError(t, s.SaveReturn(ctx, r))

	recs, err := s.Returns(ctx, r.JID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	got := recs[0]
	assert.Equal(t, r.JID, got.JID)
	assert.Equal(t, "web01", got.ID)
	assert.Equal(t, "cmd.run", got.Fun)
	assert.Equal(t, []string{"ls", "cwd=/tmp"}, got.FunArgs)
	assert.Equal(t, map[string]any{"stdout": "ok"}, got.Return)
	assert.Equal(t, 2, got.Retcode)
	assert.True(t, got.Success)
	assert.Equal(t, "nested", got.Out)
	assert.False(t, got.ReceivedAt.IsZero())

	// same jid and minion replaces
	r.Retcode = 0
	require.NoError(t, s.SaveReturn(ctx, r))
	recs, err = s.Returns(ctx, r.JID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 0, recs[0].Retcode)
}

func TestSaveReturnRejectsInvalidJID(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveReturn(context.Background(), job.Result{JID: job.RelayJID, Fun: "test.ping"})
	assert.Error(t, err)
}

func TestReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Returns(context.Background(), "20260301101500000009")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecentAndPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, jid := range []string{"20260301100000000001", "20260301100000000002", "20260301100000000003"} {
		at := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return at }
		require.NoError(t, s.SaveReturn(ctx, job.Result{JID: jid, Fun: "test.ping", Return: true, Success: true}))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "20260301100000000003", recent[0].JID)
	assert.Equal(t, "20260301100000000002", recent[1].JID)

	n, err := s.Prune(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recent, err = s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveEvent(ctx, "web01", "deploy/done", map[string]any{"rev": "abc"})
	require.NoError(t, err)
	_, err = s.SaveEvent(ctx, "web02", "backup/start", nil)
	require.NoError(t, err)
	_, err = s.SaveEvent(ctx, "web02", " ", nil)
	assert.Error(t, err)

	evs, err := s.Events(ctx, "deploy/")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "web01", evs[0].MinionID)
	assert.Equal(t, map[string]any{"rev": "abc"}, evs[0].Data)

	evs, err = s.Events(ctx, "")
	require.NoError(t, err)
	assert.Len(t, evs, 2)
	assert.Nil(t, evs[1].Data)
}
