package ratingstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/fault"
	"github.com/Clark-Hu/kvartali/internal/metrics"
	"github.com/Clark-Hu/kvartali/internal/repository"
	"github.com/Clark-Hu/kvartali/internal/store"
)

// ChangeChannel is the NOTIFY channel fed by the ratings insert trigger.
const ChangeChannel = "ratings_changed"

// Postgres is a Backend on top of the ratings table. Run must be started for pushes to flow.
type Postgres struct {
	ratings *repository.RatingsRepository
	store   *store.Store
	logger  zerolog.Logger

	mu      sync.Mutex
	deliver sync.Mutex
	subs    subscribers
	latest  []domain.RatingRecord
	loaded  bool
	reload  chan struct{}
}

// NewPostgres wires the backend. st supplies the LISTEN connection.
func NewPostgres(st *store.Store, repo *repository.Repository, logger zerolog.Logger) *Postgres {
	return &Postgres{
		ratings: repo.Ratings,
		store:   st,
		logger:  logger.With().Str("component", "ratingstore").Logger(),
		reload:  make(chan struct{}, 1),
	}
}

// Run performs the initial load and then keeps the record set fresh until ctx ends.
func (p *Postgres) Run(ctx context.Context) error {
	if err := p.refresh(ctx); err != nil {
		p.logger.Error().Err(err).Msg("initial load failed, waiting for notifications")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return fault.Guard(p.logger, "ratingstore-listener", func() error {
			return p.store.Listen(gctx, ChangeChannel,
				func(string) { p.requestReload() },
				p.requestReload,
			)
		})
	})
	g.Go(func() error {
		return fault.Guard(p.logger, "ratingstore-reload", func() error { return p.reloadLoop(gctx) })
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reloadLoop refreshes the record set whenever a reload was requested.
func (p *Postgres) reloadLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.reload:
			if err := p.refresh(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn().Err(err).Msg("reload after change failed")
			}
		}
	}
}

func (p *Postgres) SubmitIfAbsent(ctx context.Context, storageKey string, rec domain.RatingRecord) error {
	written, err := p.ratings.InsertIfAbsent(ctx, storageKey, rec)
	if err != nil {
		return unavailable("submit", err)
	}
	if !written {
		return ErrAlreadyExists
	}
	p.requestReload()
	return nil
}

func (p *Postgres) SubscribeAll(onChange func([]domain.RatingRecord)) (func(), error) {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	p.mu.Lock()
	id := p.subs.add(onChange)
	loaded := p.loaded
	snapshot := p.latest
	p.mu.Unlock()

	if loaded {
		onChange(snapshot)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.subs.remove(id)
			p.mu.Unlock()
		})
	}, nil
}

func (p *Postgres) QueryByUser(ctx context.Context, userID string) ([]domain.RatingRecord, error) {
	records, err := p.ratings.ListByUser(ctx, userID)
	if err != nil {
		return nil, unavailable("query by user", err)
	}
	return records, nil
}

// AuthenticateAnonymously mints a random user id.
func (p *Postgres) AuthenticateAnonymously(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func (p *Postgres) requestReload() {
	select {
	case p.reload <- struct{}{}:
	default:
	}
}

func (p *Postgres) refresh(ctx context.Context) error {
	records, err := p.ratings.ListAll(ctx)
	if err != nil {
		return unavailable("reload", err)
	}

	p.deliver.Lock()
	defer p.deliver.Unlock()

	p.mu.Lock()
	p.latest = records
	p.loaded = true
	fns := p.subs.list()
	p.mu.Unlock()

	metrics.RecordPush("postgres", len(records))
	p.logger.Debug().Int("records", len(records)).Int("subscribers", len(fns)).Msg("pushing record set")
	fanOut(p.logger, fns, records)
	return nil
}
