package ratingstore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/repository"
	"github.com/Clark-Hu/kvartali/internal/store"
	"github.com/Clark-Hu/kvartali/internal/testdb"
)

func TestPostgresBackendPushesOnInsert(t *testing.T) {
	db := testdb.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, db.DSN, store.Options{MaxConns: 4, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer st.Close()

	backend := NewPostgres(st, repository.New(st), zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- backend.Run(ctx) }()

	pushes := make(chan []domain.RatingRecord, 16)
	unsub, err := backend.SubscribeAll(func(records []domain.RatingRecord) { pushes <- records })
	require.NoError(t, err)
	defer unsub()

	rec := dentistVote("pg-user")
	require.NoError(t, backend.SubmitIfAbsent(ctx, keyOf(rec), rec))
	assert.ErrorIs(t, backend.SubmitIfAbsent(ctx, keyOf(rec), rec), domain.ErrDuplicateVote)

	deadline := time.After(10 * time.Second)
	for {
		select {
		case records := <-pushes:
			if len(records) == 1 {
				assert.Equal(t, "pg-user", records[0].UserID)
				mine, err := backend.QueryByUser(ctx, "pg-user")
				require.NoError(t, err)
				assert.Len(t, mine, 1)
				cancel()
				assert.NoError(t, <-done)
				return
			}
		case <-deadline:
			t.Fatal("no push containing the inserted record")
		}
	}
}

func TestPostgresBackendSurvivesPanickingSubscriber(t *testing.T) {
	db := testdb.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, db.DSN, store.Options{MaxConns: 4, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer st.Close()

	backend := NewPostgres(st, repository.New(st), zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- backend.Run(ctx) }()

	var armed atomic.Bool
	unsubBad, err := backend.SubscribeAll(func([]domain.RatingRecord) {
		if armed.Load() {
			panic("render failed")
		}
	})
	require.NoError(t, err)
	defer unsubBad()

	pushes := make(chan []domain.RatingRecord, 16)
	unsub, err := backend.SubscribeAll(func(records []domain.RatingRecord) { pushes <- records })
	require.NoError(t, err)
	defer unsub()

	armed.Store(true)
	for i, user := range []string{"first", "second"} {
		rec := dentistVote(user)
		require.NoError(t, backend.SubmitIfAbsent(ctx, keyOf(rec), rec))
		waitForCount(t, pushes, i+1)
	}

	cancel()
	assert.NoError(t, <-done)
}

func waitForCount(t *testing.T, pushes <-chan []domain.RatingRecord, n int) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case records := <-pushes:
			if len(records) == n {
				return
			}
		case <-deadline:
			t.Fatalf("no push with %d records", n)
		}
	}
}
