// Package viewstate owns the per-session view state and turns every user action or data
// push into a freshly computed render.
package viewstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/kvartali/internal/aggregate"
	"github.com/Clark-Hu/kvartali/internal/catalog"
	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/metrics"
	"github.com/Clark-Hu/kvartali/internal/pipeline"
	"github.com/Clark-Hu/kvartali/internal/ratingstore"
	"github.com/Clark-Hu/kvartali/internal/urlstate"
	"github.com/Clark-Hu/kvartali/internal/votekey"
)

// Phase is the coordinator lifecycle position.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseReady
	PhaseClosed
)

var (
	ErrNotReady     = errors.New("viewstate: not ready")
	ErrStarted      = errors.New("viewstate: already started")
	ErrBadThreshold = errors.New("viewstate: threshold out of range")
)

// ViewState is the user-visible selection. Only the Coordinator mutates it.
type ViewState struct {
	City      string
	Category  domain.Category
	Selection string
	SortBy    pipeline.SortKey
	MinVotes  int
	MinRating float64
	Voted     *votekey.Set
}

// Render is one view update.
type Render struct {
	Scope     urlstate.Scope          `json:"scope"`
	URL       string                  `json:"url"`
	SortBy    pipeline.SortKey        `json:"sortBy"`
	MinVotes  int                     `json:"minVotes"`
	MinRating float64                 `json:"minRating"`
	Groups    []domain.AggregateGroup `json:"groups"`
	Count     int                     `json:"count"`
	Shown     int                     `json:"shown"`
	HasMore   bool                    `json:"hasMore"`
	State     string                  `json:"state"`
	Message   string                  `json:"message,omitempty"`
	// Append marks a further batch of the same result.
	Append bool `json:"append"`
}

// LocationOption is a selectable location and whether the user already voted for it.
type LocationOption struct {
	Name  string `json:"name"`
	Voted bool   `json:"voted"`
}

// OptionsView lists the form choices for the current scope.
type OptionsView struct {
	City        string           `json:"city"`
	Category    domain.Category  `json:"category"`
	Cities      []string         `json:"cities"`
	Locations   []LocationOption `json:"locations"`
	Specialties []string         `json:"specialties,omitempty"`
	ReadOnly    bool             `json:"readOnly"`
}

// Callbacks receive the coordinator's output. They run with the coordinator lock held
// and must not call back into the Coordinator.
type Callbacks struct {
	Render  func(Render)
	Options func(OptionsView)
	Notice  func(string)
}

// Config wires a Coordinator.
type Config struct {
	Store     ratingstore.Store
	Auth      ratingstore.Authenticator
	Catalog   *catalog.Catalog
	Callbacks Callbacks
	Logger    zerolog.Logger
	// Initial scope, typically parsed from the request URL.
	Initial urlstate.Scope
	Now     func() time.Time
}

// Coordinator serialises all view-state changes of one session.
type Coordinator struct {
	store   ratingstore.Store
	auth    ratingstore.Authenticator
	catalog *catalog.Catalog
	cb      Callbacks
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	phase    Phase
	state    ViewState
	userID   string
	readOnly bool
	records  []domain.RatingRecord
	pager    *pipeline.Pager
	result   pipeline.Result
	submit   SubmitState
	unsub    func()
}

// New builds a Coordinator in the Uninitialized phase.
func New(cfg Config) *Coordinator {
	scope := cfg.Initial.Normalize()
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.New(catalog.Document{})
	}
	return &Coordinator{
		store:   cfg.Store,
		auth:    cfg.Auth,
		catalog: cat,
		cb:      cfg.Callbacks,
		logger:  cfg.Logger.With().Str("component", "viewstate").Logger(),
		now:     now,
		state: ViewState{
			City:      scope.City,
			Category:  scope.Category,
			Selection: scope.Selection,
			SortBy:    pipeline.DefaultSort,
			Voted:     votekey.NewSet(),
		},
	}
}

// Start authenticates, subscribes to pushes and seeds the voted set. An authentication
// failure leaves the session read-only; only a failed subscription is returned.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseUninitialized {
		c.mu.Unlock()
		return ErrStarted
	}
	c.phase = PhaseLoading
	c.mu.Unlock()

	userID, authErr := c.authenticate(ctx)

	unsub, err := c.store.SubscribeAll(c.onPush)
	if err != nil {
		c.mu.Lock()
		c.phase = PhaseClosed
		c.mu.Unlock()
		return fmt.Errorf("subscribe: %w", err)
	}

	var seed []domain.RatingRecord
	if userID != "" {
		seed, err = c.store.QueryByUser(ctx, userID)
		if err != nil {
			c.logger.Warn().Err(err).Msg("could not load previous votes, continuing")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseClosed {
		unsub()
		return ErrNotReady
	}
	c.unsub = unsub
	c.userID = userID
	c.readOnly = userID == ""
	for _, r := range seed {
		c.state.Voted.Add(votekey.ForRecord(r))
	}
	c.phase = PhaseReady

	if authErr != nil {
		c.notice(MessageNotAuthenticated)
	}
	c.emitOptions()
	c.recompute()
	return nil
}

func (c *Coordinator) authenticate(ctx context.Context) (string, error) {
	if c.auth == nil {
		return "", domain.ErrAuthenticationFailed
	}
	userID, err := c.auth.AuthenticateAnonymously(ctx)
	if err == nil && userID == "" {
		err = domain.ErrAuthenticationFailed
	}
	if err != nil {
		if !errors.Is(err, domain.ErrAuthenticationFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
		}
		c.logger.Warn().Err(err).Msg("anonymous authentication failed, voting disabled")
		return "", err
	}
	return userID, nil
}

func (c *Coordinator) onPush(records []domain.RatingRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseClosed {
		return
	}
	c.records = records
	if c.phase == PhaseReady {
		c.recompute()
	}
}

// Close tears down the subscription and the pager. Safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseClosed {
		return
	}
	c.phase = PhaseClosed
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	if c.pager != nil {
		c.pager.Close()
		c.pager = nil
	}
}

// SetCategory switches category and clears the selection.
func (c *Coordinator) SetCategory(category domain.Category) error {
	if !category.Valid() {
		return fmt.Errorf("unknown category %q", category)
	}
	return c.transition(func() {
		if c.state.Category != category {
			c.state.Category = category
			c.state.Selection = ""
		}
	}, true)
}

// SetCity switches city. The selection survives only if the new city offers it; a
// doctor specialty filter always survives.
func (c *Coordinator) SetCity(city string) error {
	return c.transition(func() {
		city = domain.NormalizeCity(city)
		if city == c.state.City {
			return
		}
		c.state.City = city
		kind := c.state.Category.Kind()
		if c.state.Selection == "" || kind.ExtractSpecialty {
			return
		}
		if !kind.HasCatalog || !c.catalog.HasLocation(city, c.state.Category, c.state.Selection) {
			c.state.Selection = ""
		}
	}, true)
}

// SetSelection filters on one location, or a specialty for doctors. Empty clears it.
func (c *Coordinator) SetSelection(selection string) error {
	return c.transition(func() { c.state.Selection = selection }, false)
}

// SetSort changes the ordering.
func (c *Coordinator) SetSort(key pipeline.SortKey) error {
	parsed, err := pipeline.ParseSort(string(key))
	if err != nil {
		return err
	}
	return c.transition(func() { c.state.SortBy = parsed }, false)
}

// SetThresholds sets the minimum vote count and overall rating.
func (c *Coordinator) SetThresholds(minVotes int, minRating float64) error {
	if minVotes < 0 || minRating < 0 || minRating > MaxScore {
		return ErrBadThreshold
	}
	return c.transition(func() {
		c.state.MinVotes = minVotes
		c.state.MinRating = minRating
	}, false)
}

// ApplyScope replaces city, category and selection at once, as when navigating to a URL.
func (c *Coordinator) ApplyScope(scope urlstate.Scope) error {
	scope = scope.Normalize()
	if !scope.Category.Valid() {
		return fmt.Errorf("unknown category %q", scope.Category)
	}
	return c.transition(func() {
		c.state.City = scope.City
		c.state.Category = scope.Category
		c.state.Selection = scope.Selection
	}, true)
}

func (c *Coordinator) transition(apply func(), optionsChanged bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseClosed {
		return ErrNotReady
	}
	apply()
	if c.phase != PhaseReady {
		return nil
	}
	if optionsChanged {
		c.emitOptions()
	}
	c.recompute()
	return nil
}

// LoadMore emits the next batch of the current result.
func (c *Coordinator) LoadMore() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseReady || c.pager == nil {
		return ErrNotReady
	}
	batch := c.pager.Next()
	r := c.renderLocked(batch)
	r.Append = true
	c.emitRender(r)
	return nil
}

// State returns a copy of the view state.
func (c *Coordinator) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Voted = c.state.Voted.Clone()
	return s
}

// Phase returns the lifecycle position.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// UserID is the authenticated user, empty in read-only mode.
func (c *Coordinator) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// SubmitState returns the submission sub-flow position.
func (c *Coordinator) SubmitState() SubmitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submit
}

// Options returns the form choices for the current scope.
func (c *Coordinator) Options() OptionsView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.optionsLocked()
}

// Submit validates form against the current scope and, if valid, writes it.
func (c *Coordinator) Submit(ctx context.Context, form Form) SubmitResult {
	c.mu.Lock()
	if c.phase != PhaseReady {
		c.mu.Unlock()
		return SubmitResult{State: SubmitRejected, Err: ErrNotReady, Message: domain.GenericRetryMessage, Form: form}
	}
	c.submit = SubmitValidating
	category := c.state.Category
	city := form.City
	if city == "" {
		city = c.state.City
	}
	prepared, err := Prepare(category, city, c.userID, form, c.state.Voted, c.now())
	if err != nil {
		c.submit = SubmitRejected
		c.mu.Unlock()
		c.logger.Debug().Err(err).Str("category", string(category)).Msg("submission rejected locally")
		outcome := metrics.OutcomeInvalid
		if errors.Is(err, domain.ErrDuplicateVote) {
			outcome = metrics.OutcomeDuplicate
		}
		metrics.RecordSubmission(string(category), outcome)
		return SubmitResult{State: SubmitRejected, Err: err, Message: Message(err), Form: form}
	}
	c.submit = SubmitSubmitting
	c.mu.Unlock()

	err = Send(ctx, c.store, prepared)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.submit = SubmitAccepted
		c.state.Voted.Add(prepared.VoteKey)
		metrics.RecordSubmission(string(category), metrics.OutcomeAccepted)
		c.logger.Info().Str("category", string(category)).Str("vote_key", prepared.VoteKey).Msg("vote accepted")
		if c.phase == PhaseReady {
			c.emitOptions()
			c.recompute()
		}
		return SubmitResult{
			State:   SubmitAccepted,
			Message: MessageAccepted,
			VoteKey: prepared.VoteKey,
			Form:    Form{City: prepared.Record.City, Location: form.Location, Specialty: form.Specialty},
		}
	case errors.Is(err, domain.ErrDuplicateVote):
		c.submit = SubmitRejected
		c.state.Voted.Add(prepared.VoteKey)
		metrics.RecordSubmission(string(category), metrics.OutcomeDuplicate)
		c.logger.Info().Str("vote_key", prepared.VoteKey).Msg("duplicate vote rejected by backend")
		if c.phase == PhaseReady {
			c.emitOptions()
		}
		return SubmitResult{State: SubmitRejected, Err: err, Message: Message(err), VoteKey: prepared.VoteKey, Form: form}
	default:
		c.submit = SubmitRejected
		metrics.RecordSubmission(string(category), metrics.OutcomeFailed)
		c.logger.Error().Err(err).Msg("submission failed")
		return SubmitResult{State: SubmitRejected, Err: err, Message: domain.GenericRetryMessage, Form: form}
	}
}

func (c *Coordinator) recompute() {
	start := time.Now()
	scope := aggregate.Scope{Category: c.state.Category, City: c.state.City}
	groups := aggregate.Aggregate(c.records, scope)
	c.result = pipeline.Run(groups, c.state.Category, pipeline.Options{
		Selection: c.state.Selection,
		SortBy:    c.state.SortBy,
		MinVotes:  c.state.MinVotes,
		MinRating: c.state.MinRating,
	})
	metrics.ObserveAggregation(start)

	if c.pager != nil {
		c.pager.Close()
	}
	c.pager = pipeline.NewPager(c.result.Groups)
	c.emitRender(c.renderLocked(c.pager.Next()))
}

func (c *Coordinator) renderLocked(batch []domain.AggregateGroup) Render {
	scope := urlstate.Scope{City: c.state.City, Category: c.state.Category, Selection: c.state.Selection}
	return Render{
		Scope:     scope,
		URL:       urlstate.BuildURL(scope),
		SortBy:    c.state.SortBy,
		MinVotes:  c.state.MinVotes,
		MinRating: c.state.MinRating,
		Groups:    batch,
		Count:     c.result.Count,
		Shown:     c.pager.Shown(),
		HasMore:   c.pager.HasMore(),
		State:     c.result.State.String(),
		Message:   c.result.Message(),
	}
}

func (c *Coordinator) optionsLocked() OptionsView {
	return BuildOptions(c.catalog, c.state.City, c.state.Category, c.state.Voted, c.readOnly)
}

// BuildOptions lists the catalog choices of one scope, flagging those covered by voted.
func BuildOptions(cat *catalog.Catalog, city string, category domain.Category, voted *votekey.Set, readOnly bool) OptionsView {
	city = domain.NormalizeCity(city)
	view := OptionsView{
		City:      city,
		Category:  category,
		Cities:    cat.CityNames(),
		Locations: []LocationOption{},
		ReadOnly:  readOnly,
	}
	for _, name := range cat.LocationsFor(city, category) {
		view.Locations = append(view.Locations, LocationOption{
			Name:  name,
			Voted: voted != nil && voted.Has(votekey.Derive(category, city, name)),
		})
	}
	if category.Kind().ExtractSpecialty {
		view.Specialties = cat.Specialties()
	}
	return view
}

func (c *Coordinator) emitRender(r Render) {
	if c.cb.Render != nil {
		c.cb.Render(r)
	}
}

func (c *Coordinator) emitOptions() {
	if c.cb.Options != nil {
		c.cb.Options(c.optionsLocked())
	}
}

func (c *Coordinator) notice(msg string) {
	if c.cb.Notice != nil {
		c.cb.Notice(msg)
	}
}
