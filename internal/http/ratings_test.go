package httpserver

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/kvartali/internal/auth"
	"github.com/Clark-Hu/kvartali/internal/catalog"
	"github.com/Clark-Hu/kvartali/internal/config"
	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/ratingstore"
	"github.com/Clark-Hu/kvartali/internal/viewstate"
)

const testSecret = "test-secret-0123456789"

func testConfig() config.Config {
	return config.Config{Port: "0", CORSOrigins: "*", RateLimitWindowSecs: 60}
}

func buildTestServer(tb testing.TB, seed ...domain.RatingRecord) (*Server, *ratingstore.Memory) {
	return buildTestServerWithConfig(tb, testConfig(), seed...)
}

func buildTestServerWithConfig(tb testing.TB, cfg config.Config, seed ...domain.RatingRecord) (*Server, *ratingstore.Memory) {
	tb.Helper()
	mem := ratingstore.NewMemory(seed...)
	snap, err := ratingstore.Attach(mem)
	if err != nil {
		tb.Fatalf("attach snapshot: %v", err)
	}
	tb.Cleanup(snap.Close)

	issuer, err := auth.NewIssuer(testSecret, time.Hour)
	if err != nil {
		tb.Fatalf("new issuer: %v", err)
	}
	cat := catalog.New(catalog.Document{
		Cities:      catalog.DefaultCities(),
		Criteria:    catalog.DefaultCriteria(),
		Specialties: catalog.DefaultSpecialties(),
	})
	notices := []catalog.Diagnostic{{Field: "cities", Message: "city list missing, using defaults"}}

	srv := New(cfg, Dependencies{
		Ratings:  mem,
		Snapshot: snap,
		Catalog:  cat,
		Notices:  notices,
		Issuer:   issuer,
	}, zerolog.Nop())
	// Skip request logging and recovery middleware in unit tests.
	srv.router = chi.NewRouter()
	srv.registerRoutes()
	return srv, mem
}

func issueToken(tb testing.TB, srv *Server) (string, string) {
	tb.Helper()
	id, err := srv.issuer.Issue()
	if err != nil {
		tb.Fatalf("issue token: %v", err)
	}
	return id.UserID, id.Token
}

func doRequest(srv *Server, method, target, body, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(tb testing.TB, rec *httptest.ResponseRecorder, dst interface{}) {
	tb.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		tb.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func allScores(v int) map[string]int {
	scores := make(map[string]int, len(domain.NeighborhoodCriteria))
	for _, k := range domain.NeighborhoodCriteria {
		scores[k] = v
	}
	return scores
}

func ratingBody(tb testing.TB, category domain.Category, form viewstate.Form) string {
	tb.Helper()
	payload, err := json.Marshal(ratingRequest{Category: string(category), Form: form})
	if err != nil {
		tb.Fatalf("marshal rating: %v", err)
	}
	return string(payload)
}

func resultsURL(params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return "/api/results?" + q.Encode()
}

func TestHealthz(t *testing.T) {
	srv, _ := buildTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateSession(t *testing.T) {
	srv, _ := buildTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/session", "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var created sessionResponse
	decodeBody(t, rec, &created)
	if created.UserID == "" || created.Token == "" {
		t.Fatalf("incomplete session: %+v", created)
	}

	rec = doRequest(srv, http.MethodPost, "/api/session", fmt.Sprintf(`{"token":%q}`, created.Token), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", rec.Code)
	}
	var resumed sessionResponse
	decodeBody(t, rec, &resumed)
	if resumed.UserID != created.UserID {
		t.Fatalf("resumed user = %q, want %q", resumed.UserID, created.UserID)
	}

	rec = doRequest(srv, http.MethodPost, "/api/session", "", "not-a-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}
}

func TestGetCatalog(t *testing.T) {
	srv, _ := buildTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/catalog", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp catalogResponse
	decodeBody(t, rec, &resp)
	if len(resp.Cities) != len(catalog.DefaultCities()) {
		t.Fatalf("cities = %d, want %d", len(resp.Cities), len(catalog.DefaultCities()))
	}
	if len(resp.Categories) != 4 {
		t.Fatalf("categories = %d, want 4", len(resp.Categories))
	}
	if len(resp.Notices) != 1 || resp.Notices[0].Field != "cities" {
		t.Fatalf("notices = %+v", resp.Notices)
	}
}

func TestSubmitRating_Unauthenticated(t *testing.T) {
	srv, mem := buildTestServer(t)
	body := ratingBody(t, domain.CategoryNeighborhood, viewstate.Form{City: "Пловдив", Location: "Център", Scores: allScores(4)})

	rec := doRequest(srv, http.MethodPost, "/api/ratings", body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if mem.Len() != 0 {
		t.Fatalf("stored %d records, want 0", mem.Len())
	}
}

func TestSubmitRating_PlovdivScenario(t *testing.T) {
	srv, _ := buildTestServer(t)
	_, token := issueToken(t, srv)

	body := ratingBody(t, domain.CategoryNeighborhood, viewstate.Form{City: "Пловдив", Location: "Център", Scores: allScores(4)})
	rec := doRequest(srv, http.MethodPost, "/api/ratings", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created ratingResponse
	decodeBody(t, rec, &created)
	if created.Message != viewstate.MessageAccepted {
		t.Fatalf("message = %q", created.Message)
	}

	rec = doRequest(srv, http.MethodGet, resultsURL(map[string]string{"city": "Пловдив"}), "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("results status = %d", rec.Code)
	}
	var results resultsResponse
	decodeBody(t, rec, &results)
	if results.Count != 1 || len(results.Groups) != 1 {
		t.Fatalf("count = %d groups = %d, want 1", results.Count, len(results.Groups))
	}
	g := results.Groups[0]
	if g.LocationName != "Център" || g.VoteCount != 1 || g.Overall != 4.0 {
		t.Fatalf("unexpected group %+v", g)
	}

	rec = doRequest(srv, http.MethodGet, resultsURL(nil), "", "")
	decodeBody(t, rec, &results)
	if results.Count != 0 || results.State != "no_ratings" {
		t.Fatalf("Sofia results = %+v, want empty", results)
	}
}

func TestSubmitRating_Duplicate(t *testing.T) {
	srv, mem := buildTestServer(t)
	_, token := issueToken(t, srv)
	body := ratingBody(t, domain.CategoryNeighborhood, viewstate.Form{City: "Пловдив", Location: "Център", Scores: allScores(3)})

	if rec := doRequest(srv, http.MethodPost, "/api/ratings", body, token); rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := doRequest(srv, http.MethodPost, "/api/ratings", body, token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second status = %d, want 409", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Message != domain.CategoryNeighborhood.Kind().DuplicateMessage {
		t.Fatalf("message = %q", resp.Message)
	}
	if mem.Len() != 1 {
		t.Fatalf("stored %d records, want 1", mem.Len())
	}
}

func TestSubmitRating_PartialCriteria(t *testing.T) {
	srv, mem := buildTestServer(t)
	_, token := issueToken(t, srv)
	body := ratingBody(t, domain.CategoryNeighborhood, viewstate.Form{
		City:     "Пловдив",
		Location: "Център",
		Scores:   map[string]int{"location": 4, "transport": 3, "security": 5},
	})

	rec := doRequest(srv, http.MethodPost, "/api/ratings", body, token)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Message != domain.CategoryNeighborhood.Kind().PartialMessage {
		t.Fatalf("message = %q", resp.Message)
	}
	if mem.Len() != 0 {
		t.Fatalf("stored %d records, want 0", mem.Len())
	}
}

func TestSubmitRating_InvalidPayload(t *testing.T) {
	srv, _ := buildTestServer(t)
	_, token := issueToken(t, srv)

	rec := doRequest(srv, http.MethodPost, "/api/ratings", "invalid json", token)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (invalid json)", rec.Code)
	}

	rec = doRequest(srv, http.MethodPost, "/api/ratings", `{"category":"restaurants","location":"x","opinion":"ok"}`, token)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (unknown category)", rec.Code)
	}
}

func TestSubmitRating_DoctorAcrossUsers(t *testing.T) {
	srv, _ := buildTestServer(t)
	for _, score := range []int{3, 5} {
		_, token := issueToken(t, srv)
		body := ratingBody(t, domain.CategoryDoctors, viewstate.Form{
			Location:  "Д-р Иванов",
			Specialty: "Кардиолог",
			Scores:    map[string]int{domain.OverallCriterion: score},
		})
		if rec := doRequest(srv, http.MethodPost, "/api/ratings", body, token); rec.Code != http.StatusCreated {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(srv, http.MethodGet, resultsURL(map[string]string{"category": "doctors", "neighborhood": "Кардиолог"}), "", "")
	var results resultsResponse
	decodeBody(t, rec, &results)
	if results.Count != 1 {
		t.Fatalf("count = %d, want 1", results.Count)
	}
	g := results.Groups[0]
	if g.LocationName != "Д-р Иванов (Кардиолог)" || g.VoteCount != 2 || g.Overall != 4.0 || g.Specialty != "Кардиолог" {
		t.Fatalf("unexpected group %+v", g)
	}
}

func TestSubmitRating_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	srv, _ := buildTestServerWithConfig(t, cfg)
	_, token := issueToken(t, srv)

	var last int
	for i := 0; i < 3; i++ {
		body := ratingBody(t, domain.CategoryDentists, viewstate.Form{Location: fmt.Sprintf("Д-р %d", i), Opinion: "добър"})
		last = doRequest(srv, http.MethodPost, "/api/ratings", body, token).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third status = %d, want 429", last)
	}
}

func TestGetResults_HostOverride(t *testing.T) {
	srv, _ := buildTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	req.Host = "www.lekari.kvartali.eu:443"
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	var results resultsResponse
	decodeBody(t, rec, &results)
	if results.Scope.Category != domain.CategoryDoctors {
		t.Fatalf("category = %q, want doctors", results.Scope.Category)
	}
	if results.URL != "/lekari" {
		t.Fatalf("url = %q", results.URL)
	}
}

func TestGetResults_InvalidQuery(t *testing.T) {
	srv, _ := buildTestServer(t)
	cases := []struct {
		query string
		want  int
	}{
		{"minVotes=abc", http.StatusBadRequest},
		{"minRating=x", http.StatusBadRequest},
		{"minRating=7", http.StatusUnprocessableEntity},
		{"minVotes=-1", http.StatusUnprocessableEntity},
		{"sort=random", http.StatusUnprocessableEntity},
		{"category=restaurants", http.StatusUnprocessableEntity},
		{"offset=-5", http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		rec := doRequest(srv, http.MethodGet, "/api/results?"+tc.query, "", "")
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.query, rec.Code, tc.want)
		}
	}
}

func TestGetResults_Paging(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var seed []domain.RatingRecord
	for i := 0; i < 12; i++ {
		seed = append(seed, domain.RatingRecord{
			Category:     domain.CategoryDentists,
			City:         domain.DefaultCity,
			LocationName: fmt.Sprintf("Д-р %02d", i),
			Scores:       map[string]int{domain.OverallCriterion: 1 + i%5},
			UserID:       "seed",
			SubmittedAt:  now,
		})
	}
	srv, _ := buildTestServer(t, seed...)

	var first resultsResponse
	decodeBody(t, doRequest(srv, http.MethodGet, "/api/results?category=dentists&sort=name-asc", "", ""), &first)
	if first.Count != 12 || len(first.Groups) != 10 || !first.HasMore || first.Shown != 10 {
		t.Fatalf("first page = count %d groups %d hasMore %v shown %d", first.Count, len(first.Groups), first.HasMore, first.Shown)
	}
	if first.Groups[0].LocationName != "Д-р 00" {
		t.Fatalf("first group = %q", first.Groups[0].LocationName)
	}

	var second resultsResponse
	decodeBody(t, doRequest(srv, http.MethodGet, "/api/results?category=dentists&sort=name-asc&offset=10", "", ""), &second)
	if len(second.Groups) != 2 || second.HasMore || second.Shown != 12 {
		t.Fatalf("second page = groups %d hasMore %v shown %d", len(second.Groups), second.HasMore, second.Shown)
	}
}

func TestGetResults_MinRatingThreshold(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seed := []domain.RatingRecord{
		{Category: domain.CategoryDentists, City: domain.DefaultCity, LocationName: "А", Scores: map[string]int{"overall": 5}, UserID: "u1", SubmittedAt: now},
		{Category: domain.CategoryDentists, City: domain.DefaultCity, LocationName: "А", Scores: map[string]int{"overall": 4}, UserID: "u2", SubmittedAt: now},
		{Category: domain.CategoryDentists, City: domain.DefaultCity, LocationName: "Б", Scores: map[string]int{"overall": 4}, UserID: "u1", SubmittedAt: now},
	}
	srv, _ := buildTestServer(t, seed...)

	var results resultsResponse
	decodeBody(t, doRequest(srv, http.MethodGet, "/api/results?category=dentists&minRating=4.5", "", ""), &results)
	if results.Count != 1 || results.Groups[0].LocationName != "А" {
		t.Fatalf("results = %+v", results)
	}

	decodeBody(t, doRequest(srv, http.MethodGet, "/api/results?category=dentists&minVotes=3", "", ""), &results)
	if results.Count != 0 || results.State != "no_matches" || results.Message == "" {
		t.Fatalf("results = %+v, want no_matches", results)
	}
}

func TestListLocations_VotedFlags(t *testing.T) {
	srv, _ := buildTestServer(t)
	userID, token := issueToken(t, srv)
	body := ratingBody(t, domain.CategoryNeighborhood, viewstate.Form{City: "Пловдив", Location: "Капана", Opinion: "уютно"})
	if rec := doRequest(srv, http.MethodPost, "/api/ratings", body, token); rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rec.Code)
	}

	target := "/api/locations?" + url.Values{"city": {"Пловдив"}}.Encode()
	var opts viewstate.OptionsView
	decodeBody(t, doRequest(srv, http.MethodGet, target, "", token), &opts)
	if opts.ReadOnly {
		t.Fatal("authenticated options are read-only")
	}
	for _, o := range opts.Locations {
		if o.Voted != (o.Name == "Капана") {
			t.Fatalf("option %+v has wrong voted flag", o)
		}
	}

	decodeBody(t, doRequest(srv, http.MethodGet, target, "", ""), &opts)
	if !opts.ReadOnly {
		t.Fatal("anonymous options should be read-only")
	}

	var votes votesResponse
	decodeBody(t, doRequest(srv, http.MethodGet, "/api/votes/me", "", token), &votes)
	if votes.UserID != userID || len(votes.VoteKeys) != 1 || votes.VoteKeys[0] != "neighborhood::Пловдив::Капана" {
		t.Fatalf("votes = %+v", votes)
	}

	if rec := doRequest(srv, http.MethodGet, "/api/votes/me", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous votes status = %d, want 401", rec.Code)
	}
}
