// Package pipeline filters, sorts and pages aggregate groups for display.
package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

// SortKey names a result ordering.
type SortKey string

const (
	SortRatingDesc SortKey = "rating-desc"
	SortRatingAsc  SortKey = "rating-asc"
	SortVotesDesc  SortKey = "votes-desc"
	SortVotesAsc   SortKey = "votes-asc"
	SortNameAsc    SortKey = "name-asc"
	SortNameDesc   SortKey = "name-desc"

	DefaultSort = SortRatingDesc
)

// ParseSort accepts one of the six sort keys. Empty input selects the default.
func ParseSort(raw string) (SortKey, error) {
	switch k := SortKey(strings.TrimSpace(raw)); k {
	case "":
		return DefaultSort, nil
	case SortRatingDesc, SortRatingAsc, SortVotesDesc, SortVotesAsc, SortNameAsc, SortNameDesc:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort %q", raw)
	}
}

// Options are the user-controlled filters of a view.
type Options struct {
	// Selection is a location name, or for doctors a specialty. Empty means no filter.
	Selection string
	SortBy    SortKey
	MinVotes  int
	MinRating float64
}

// State tells an empty scope apart from an over-filtered one.
type State int

const (
	StateResults State = iota
	StateNoRatings
	StateNoMatches
)

func (s State) String() string {
	switch s {
	case StateNoRatings:
		return "no_ratings"
	case StateNoMatches:
		return "no_matches"
	default:
		return "results"
	}
}

const (
	messageNoRatings = "Все още няма добавени оценки"
	messageNoMatches = "Няма резултати, отговарящи на зададените филтри"
)

// Result is the ordered outcome of Run.
type Result struct {
	Groups []domain.AggregateGroup
	Count  int
	State  State
}

// Message returns the text shown for an empty result, or "" when there are results.
func (r Result) Message() string {
	switch r.State {
	case StateNoRatings:
		return messageNoRatings
	case StateNoMatches:
		return messageNoMatches
	default:
		return ""
	}
}

// Run applies selection, thresholds and ordering. groups is not modified.
func Run(groups []domain.AggregateGroup, category domain.Category, opts Options) Result {
	if len(groups) == 0 {
		return Result{Groups: []domain.AggregateGroup{}, State: StateNoRatings}
	}
	doctors := category.Kind().ExtractSpecialty

	out := make([]domain.AggregateGroup, 0, len(groups))
	for _, g := range groups {
		if opts.Selection != "" {
			field := g.LocationName
			if doctors {
				field = g.Specialty
			}
			if field != opts.Selection {
				continue
			}
		}
		if g.VoteCount < opts.MinVotes || g.Overall < opts.MinRating {
			continue
		}
		out = append(out, g)
	}
	if len(out) == 0 {
		return Result{Groups: out, State: StateNoMatches}
	}

	Sort(out, opts.SortBy, doctors)
	return Result{Groups: out, Count: len(out), State: StateResults}
}

// Sort orders groups in place. bySpecialty groups doctors by specialty first.
func Sort(groups []domain.AggregateGroup, key SortKey, bySpecialty bool) {
	if key == "" {
		key = DefaultSort
	}
	col := collate.New(language.Bulgarian)
	names := func(a, b string) int { return col.CompareString(a, b) }

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if bySpecialty {
			if c := names(a.Specialty, b.Specialty); c != 0 {
				return c < 0
			}
		}
		switch key {
		case SortRatingAsc:
			if a.Overall != b.Overall {
				return a.Overall < b.Overall
			}
		case SortVotesDesc:
			if a.VoteCount != b.VoteCount {
				return a.VoteCount > b.VoteCount
			}
		case SortVotesAsc:
			if a.VoteCount != b.VoteCount {
				return a.VoteCount < b.VoteCount
			}
		case SortNameAsc:
			if c := names(a.LocationName, b.LocationName); c != 0 {
				return c < 0
			}
		case SortNameDesc:
			if c := names(a.LocationName, b.LocationName); c != 0 {
				return c > 0
			}
		default:
			if a.Overall != b.Overall {
				return a.Overall > b.Overall
			}
		}
		if c := names(a.LocationName, b.LocationName); c != 0 {
			return c < 0
		}
		return a.LocationName < b.LocationName
	})
}
