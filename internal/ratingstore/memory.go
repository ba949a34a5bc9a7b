package ratingstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/logging"
	"github.com/Clark-Hu/kvartali/internal/metrics"
	"github.com/Clark-Hu/kvartali/internal/votekey"
)

// Memory is an in-process Backend. Pushes are delivered synchronously and in order.
type Memory struct {
	mu      sync.Mutex
	deliver sync.Mutex
	records []domain.RatingRecord
	keys    map[string]struct{}
	subs    subscribers
	now     func() time.Time
	logger  zerolog.Logger
}

// NewMemory returns an empty store seeded with records.
func NewMemory(seed ...domain.RatingRecord) *Memory {
	m := &Memory{
		keys:   make(map[string]struct{}),
		now:    time.Now,
		logger: logging.Component("ratingstore"),
	}
	for _, r := range seed {
		m.keys[votekey.StorageKey(r.Category, r.City, r.LocationName, r.UserID)] = struct{}{}
		m.records = append(m.records, r)
	}
	return m
}

func (m *Memory) SubmitIfAbsent(ctx context.Context, storageKey string, rec domain.RatingRecord) error {
	if err := ctx.Err(); err != nil {
		return unavailable("submit", err)
	}
	m.mu.Lock()
	if _, ok := m.keys[storageKey]; ok {
		m.mu.Unlock()
		return ErrAlreadyExists
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = m.now().UTC()
	}
	m.keys[storageKey] = struct{}{}
	m.records = append(m.records, rec)
	m.mu.Unlock()

	m.push()
	return nil
}

func (m *Memory) SubscribeAll(onChange func([]domain.RatingRecord)) (func(), error) {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	id := m.subs.add(onChange)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	onChange(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.subs.remove(id)
			m.mu.Unlock()
		})
	}, nil
}

func (m *Memory) QueryByUser(ctx context.Context, userID string) ([]domain.RatingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("query by user", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RatingRecord, 0)
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// AuthenticateAnonymously mints a random user id.
func (m *Memory) AuthenticateAnonymously(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Memory) push() {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	fns := m.subs.list()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	metrics.RecordPush("memory", len(snapshot))
	fanOut(m.logger, fns, snapshot)
}

func (m *Memory) snapshotLocked() []domain.RatingRecord {
	return append([]domain.RatingRecord(nil), m.records...)
}
