package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(group, role string) *RoleRecord {
	return &RoleRecord{
		Key:       RoleKey(group, role),
		GroupID:   group,
		RoleID:    role,
		RoleGUID:  group + "." + role,
		UpdatedAt: time.Unix(1_700_000_000, 0).UTC(),
		Snapshot:  json.RawMessage(`{"schemaVersion":1}`),
	}
}

func TestBoltStoreRoles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBoltStore(dir)
	require.NoError(t, err)

	_, err = s.GetRole("search/qrs")
	assert.ErrorIs(t, err, ErrRoleNotFound)

	require.NoError(t, s.SaveRole(record("search", "qrs")))
	require.NoError(t, s.SaveRole(record("search", "bs")))

	got, err := s.GetRole("search/qrs")
	require.NoError(t, err)
	assert.Equal(t, record("search", "qrs"), got)

	updated := record("search", "qrs")
	updated.Stopped = true
	require.NoError(t, s.SaveRole(updated))
	got, err = s.GetRole("search/qrs")
	require.NoError(t, err)
	assert.True(t, got.Stopped)

	recs, err := s.ListRoles()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "search/bs", recs[0].Key)
	assert.Equal(t, "search/qrs", recs[1].Key)

	require.NoError(t, s.DeleteRole("search/bs"))
	recs, err = s.ListRoles()
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	assert.Error(t, s.SaveRole(&RoleRecord{}))
	require.NoError(t, s.Close())

	// reopened read-only, records survive
	ro, err := OpenReadOnly(dir)
	require.NoError(t, err)
	defer ro.Close()
	got, err = ro.GetRole("search/qrs")
	require.NoError(t, err)
	assert.JSONEq(t, `{"schemaVersion":1}`, string(got.Snapshot))
}
