// Package ratingstore is the boundary between the rating engine and the persistent,
// push-capable record store.
package ratingstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/fault"
)

// ErrAlreadyExists is returned by SubmitIfAbsent when the key is taken. It matches
// domain.ErrDuplicateVote.
var ErrAlreadyExists = fmt.Errorf("ratingstore: already exists: %w", domain.ErrDuplicateVote)

// Store persists records and pushes the full record set on every change.
type Store interface {
	// SubmitIfAbsent atomically writes rec under storageKey unless it is already taken.
	SubmitIfAbsent(ctx context.Context, storageKey string, rec domain.RatingRecord) error
	// SubscribeAll registers onChange for full-set pushes. The current set is delivered
	// as soon as it is known.
	SubscribeAll(onChange func([]domain.RatingRecord)) (unsubscribe func(), err error)
	QueryByUser(ctx context.Context, userID string) ([]domain.RatingRecord, error)
}

// Authenticator yields an anonymous user id.
type Authenticator interface {
	AuthenticateAnonymously(ctx context.Context) (string, error)
}

// Backend is a Store that can also authenticate.
type Backend interface {
	Store
	Authenticator
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrBackendUnavailable, err)
}

// subscribers is a registry of push callbacks. Not safe for concurrent use on its own.
type subscribers struct {
	next int
	fns  map[int]func([]domain.RatingRecord)
}

func (s *subscribers) add(fn func([]domain.RatingRecord)) int {
	if s.fns == nil {
		s.fns = make(map[int]func([]domain.RatingRecord))
	}
	s.next++
	s.fns[s.next] = fn
	return s.next
}

func (s *subscribers) remove(id int) { delete(s.fns, id) }

func (s *subscribers) list() []func([]domain.RatingRecord) {
	out := make([]func([]domain.RatingRecord), 0, len(s.fns))
	for i := 1; i <= s.next; i++ {
		if fn, ok := s.fns[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// fanOut delivers records to every callback in order. A panicking callback is logged
// and the remaining ones still receive the push.
func fanOut(logger zerolog.Logger, fns []func([]domain.RatingRecord), records []domain.RatingRecord) {
	for _, fn := range fns {
		deliverOne(logger, fn, records)
	}
}

func deliverOne(logger zerolog.Logger, fn func([]domain.RatingRecord), records []domain.RatingRecord) {
	defer fault.Recover(logger, "ratingstore-subscriber")
	fn(records)
}
