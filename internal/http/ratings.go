package httpserver

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/Clark-Hu/kvartali/internal/aggregate"
	"github.com/Clark-Hu/kvartali/internal/auth"
	"github.com/Clark-Hu/kvartali/internal/catalog"
	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/metrics"
	"github.com/Clark-Hu/kvartali/internal/pipeline"
	"github.com/Clark-Hu/kvartali/internal/urlstate"
	"github.com/Clark-Hu/kvartali/internal/validation"
	"github.com/Clark-Hu/kvartali/internal/viewstate"
	"github.com/Clark-Hu/kvartali/internal/votekey"
)

const maxRequestBody = 64 << 10 // 64 KiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type sessionRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	UserID    string     `json:"userId"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type categoryResponse struct {
	Key         domain.Category `json:"key"`
	PathSegment string          `json:"pathSegment"`
	Criteria    []string        `json:"criteria"`
}

type noticeResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type catalogResponse struct {
	Cities      []catalog.City      `json:"cities"`
	Criteria    []catalog.Criterion `json:"criteria"`
	Specialties []string            `json:"specialties"`
	Categories  []categoryResponse  `json:"categories"`
	Notices     []noticeResponse    `json:"notices"`
}

type votesResponse struct {
	UserID   string   `json:"userId"`
	VoteKeys []string `json:"voteKeys"`
}

type resultsResponse struct {
	Scope   urlstate.Scope          `json:"scope"`
	URL     string                  `json:"url"`
	SortBy  pipeline.SortKey        `json:"sortBy"`
	Groups  []domain.AggregateGroup `json:"groups"`
	Count   int                     `json:"count"`
	Shown   int                     `json:"shown"`
	HasMore bool                    `json:"hasMore"`
	State   string                  `json:"state"`
	Message string                  `json:"message,omitempty"`
}

type ratingRequest struct {
	Category string `json:"category" validate:"omitempty,category"`
	viewstate.Form
}

type ratingResponse struct {
	VoteKey string              `json:"voteKey"`
	Message string              `json:"message"`
	Record  domain.RatingRecord `json:"record"`
}

// resultsQuery is the parsed query string of GET /api/results.
type resultsQuery struct {
	City      string  `query:"city" validate:"max=100"`
	Category  string  `query:"category" validate:"omitempty,category"`
	Selection string  `query:"neighborhood" validate:"max=200"`
	Sort      string  `query:"sort" validate:"omitempty,sortkey"`
	MinVotes  int     `query:"minVotes" validate:"min=0"`
	MinRating float64 `query:"minRating" validate:"min=0,max=5"`
	Offset    int     `query:"offset" validate:"min=0"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

func (s *Server) respondValidationError(w http.ResponseWriter, err error) {
	var reqErr *validation.RequestError
	if errors.As(err, &reqErr) {
		s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request",
			Details: reqErr.Fields,
		})
		return
	}
	s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
}

// identify resolves the bearer token of r. An absent token yields "" and no error.
func (s *Server) identify(r *http.Request) (string, error) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return "", nil
	}
	if s.issuer == nil {
		return "", fmt.Errorf("%w: no issuer configured", domain.ErrAuthenticationFailed)
	}
	return s.issuer.Verify(token)
}

// resolveCategory prefers the category pinned by the request host over raw.
func resolveCategory(r *http.Request, raw string) (domain.Category, error) {
	if c, ok := urlstate.CategoryForHost(r.Host); ok {
		return c, nil
	}
	return domain.ParseCategory(raw)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			s.respondDecodeError(w, err)
			return
		}
	}
	presented := strings.TrimSpace(req.Token)
	if presented == "" {
		presented = auth.BearerToken(r.Header.Get("Authorization"))
	}

	session := auth.NewSession(s.issuer, presented)
	if _, err := session.AuthenticateAnonymously(r.Context()); err != nil {
		s.logger.Info().Err(err).Msg("session rejected")
		s.respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", viewstate.MessageNotAuthenticated)
		return
	}
	id := session.Identity()
	resp := sessionResponse{UserID: id.UserID, Token: id.Token}
	if !id.ExpiresAt.IsZero() {
		resp.ExpiresAt = &id.ExpiresAt
	}
	status := http.StatusOK
	if presented == "" {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	doc := s.catalog.Document()
	resp := catalogResponse{
		Cities:      doc.Cities,
		Criteria:    s.catalog.Criteria(),
		Specialties: s.catalog.Specialties(),
		Categories:  make([]categoryResponse, 0, len(domain.Categories())),
		Notices:     make([]noticeResponse, 0, len(s.notices)),
	}
	for _, c := range domain.Categories() {
		kind := c.Kind()
		resp.Categories = append(resp.Categories, categoryResponse{Key: c, PathSegment: kind.PathSegment, Criteria: kind.Criteria})
	}
	for _, d := range s.notices {
		resp.Notices = append(resp.Notices, noticeResponse{Field: d.Field, Message: d.Message})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category, err := resolveCategory(r, q.Get("category"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	userID, err := s.identify(r)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", viewstate.MessageNotAuthenticated)
		return
	}
	voted, err := s.votedSet(r, userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("load votes failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", domain.GenericRetryMessage)
		return
	}
	s.respondJSON(w, http.StatusOK, viewstate.BuildOptions(s.catalog, q.Get("city"), category, voted, userID == ""))
}

func (s *Server) handleListMyVotes(w http.ResponseWriter, r *http.Request) {
	userID, err := s.identify(r)
	if err != nil || userID == "" {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", viewstate.MessageNotAuthenticated)
		return
	}
	voted, err := s.votedSet(r, userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("load votes failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", domain.GenericRetryMessage)
		return
	}
	s.respondJSON(w, http.StatusOK, votesResponse{UserID: userID, VoteKeys: voted.Sorted()})
}

func (s *Server) votedSet(r *http.Request, userID string) (*votekey.Set, error) {
	voted := votekey.NewSet()
	if userID == "" || s.ratings == nil {
		return voted, nil
	}
	records, err := s.ratings.QueryByUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		voted.Add(votekey.ForRecord(rec))
	}
	return voted, nil
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	query, err := buildResultsQuery(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := validation.Struct(query); err != nil {
		s.respondValidationError(w, err)
		return
	}
	category, err := resolveCategory(r, query.Category)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	sortBy, err := pipeline.ParseSort(query.Sort)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if s.snapshot == nil || s.snapshot.Version() == 0 {
		s.respondError(w, http.StatusServiceUnavailable, "LOADING", "ratings not loaded yet")
		return
	}

	scope := urlstate.Scope{City: query.City, Category: category, Selection: query.Selection}.Normalize()
	start := time.Now()
	groups := aggregate.Aggregate(s.snapshot.Records(), aggregate.Scope{Category: scope.Category, City: scope.City})
	result := pipeline.Run(groups, scope.Category, pipeline.Options{
		Selection: scope.Selection,
		SortBy:    sortBy,
		MinVotes:  query.MinVotes,
		MinRating: query.MinRating,
	})
	metrics.ObserveAggregation(start)

	pager := pipeline.NewPager(result.Groups)
	defer pager.Close()
	pager.Skip(query.Offset)
	batch := pager.Next()

	s.respondJSON(w, http.StatusOK, resultsResponse{
		Scope:   scope,
		URL:     urlstate.BuildURL(scope),
		SortBy:  sortBy,
		Groups:  batch,
		Count:   result.Count,
		Shown:   pager.Shown(),
		HasMore: pager.HasMore(),
		State:   result.State.String(),
		Message: result.Message(),
	})
}

func buildResultsQuery(values url.Values) (resultsQuery, error) {
	q := resultsQuery{
		City:      strings.TrimSpace(values.Get("city")),
		Category:  strings.TrimSpace(values.Get("category")),
		Selection: strings.TrimSpace(values.Get("neighborhood")),
		Sort:      strings.TrimSpace(values.Get("sort")),
	}
	if raw := strings.TrimSpace(values.Get("minVotes")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return resultsQuery{}, fmt.Errorf("minVotes must be an integer")
		}
		q.MinVotes = v
	}
	if raw := strings.TrimSpace(values.Get("minRating")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			return resultsQuery{}, fmt.Errorf("minRating must be a number")
		}
		q.MinRating = v
	}
	if raw := strings.TrimSpace(values.Get("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return resultsQuery{}, fmt.Errorf("offset must be an integer")
		}
		q.Offset = v
	}
	return q, nil
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	userID, err := s.identify(r)
	if err != nil || userID == "" {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", viewstate.MessageNotAuthenticated)
		return
	}

	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		s.respondValidationError(w, err)
		return
	}
	category, err := resolveCategory(r, req.Category)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", viewstate.MessageUnknownCategory)
		return
	}

	voted, err := s.votedSet(r, userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("load votes failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", domain.GenericRetryMessage)
		return
	}
	prepared, err := viewstate.Prepare(category, req.City, userID, req.Form, voted, s.now())
	if err == nil {
		err = viewstate.Send(r.Context(), s.ratings, prepared)
	}
	if err != nil {
		s.respondSubmitError(w, category, err)
		return
	}

	metrics.RecordSubmission(string(category), metrics.OutcomeAccepted)
	s.logger.Info().Str("category", string(category)).Str("vote_key", prepared.VoteKey).Msg("vote accepted")
	s.respondJSON(w, http.StatusCreated, ratingResponse{
		VoteKey: prepared.VoteKey,
		Message: viewstate.MessageAccepted,
		Record:  prepared.Record,
	})
}

func (s *Server) respondSubmitError(w http.ResponseWriter, category domain.Category, err error) {
	message := viewstate.Message(err)
	switch {
	case errors.Is(err, domain.ErrDuplicateVote):
		metrics.RecordSubmission(string(category), metrics.OutcomeDuplicate)
		s.logger.Info().Str("category", string(category)).Msg("duplicate vote rejected")
		s.respondError(w, http.StatusConflict, "DUPLICATE_VOTE", message)
	case errors.Is(err, domain.ErrValidationFailed):
		metrics.RecordSubmission(string(category), metrics.OutcomeInvalid)
		s.logger.Debug().Err(err).Msg("submission rejected")
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", message)
	default:
		metrics.RecordSubmission(string(category), metrics.OutcomeFailed)
		s.logger.Error().Err(err).Msg("submission failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", domain.GenericRetryMessage)
	}
}
