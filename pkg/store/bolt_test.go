package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
)

func TestBoltStore_InsertAndLoadUnfinished(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")

	s := NewBoltStore()
	require.NoError(t, s.Init(dbPath))
	defer func() { _ = s.Close() }()

	require.True(t, s.Insert(1, spec.JobSpec{Cmd: "echo a"}, 1000))
	require.True(t, s.Insert(2, spec.JobSpec{Cmd: "echo b"}, 1001))
	require.True(t, s.Update(2, StatusSucceeded, 0, 1001, 1002))

	recs, err := s.LoadUnfinished()
	require.NoError(t, err)
	require.Len(t, recs, 1, "only the still-queued record should come back")
	assert.Equal(t, 1, recs[0].ID)
	assert.Equal(t, "echo a", recs[0].Spec.Cmd)
	assert.Equal(t, StatusQueued, recs[0].Status)
}

func TestBoltStore_RestartPreservesUnfinished(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")

	s1 := NewBoltStore()
	require.NoError(t, s1.Init(dbPath))
	require.True(t, s1.Insert(7, spec.JobSpec{Cmd: "sleep 1"}, 500))
	require.NoError(t, s1.Close())

	s2 := NewBoltStore()
	require.NoError(t, s2.Init(dbPath))
	defer func() { _ = s2.Close() }()

	recs, err := s2.LoadUnfinished()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 7, recs[0].ID)
}

func TestBoltStore_UpdateUnknownIDIsHarmless(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")
	s := NewBoltStore()
	require.NoError(t, s.Init(dbPath))
	defer func() { _ = s.Close() }()

	assert.True(t, s.Update(999, StatusFailed, 1, 0, 0))
}
