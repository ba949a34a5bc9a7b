package ratingstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotFollowsPushes(t *testing.T) {
	m := NewMemory(dentistVote("u1"))
	snap, err := Attach(m)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), snap.Version())
	assert.Len(t, snap.Records(), 1)

	rec := dentistVote("u2")
	require.NoError(t, m.SubmitIfAbsent(context.Background(), keyOf(rec), rec))
	assert.Equal(t, uint64(2), snap.Version())
	assert.Len(t, snap.Records(), 2)

	snap.Close()
	rec = dentistVote("u3")
	require.NoError(t, m.SubmitIfAbsent(context.Background(), keyOf(rec), rec))
	assert.Equal(t, uint64(2), snap.Version())
	assert.Len(t, snap.Records(), 2)
}
