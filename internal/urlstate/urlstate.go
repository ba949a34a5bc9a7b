// Package urlstate maps a view scope to a shareable URL and back.
package urlstate

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

const (
	paramCity      = "city"
	paramSelection = "neighborhood"
	paramType      = "type"
)

// Scope is the part of the view state that is encoded in the URL.
type Scope struct {
	City      string          `json:"city"`
	Category  domain.Category `json:"category"`
	Selection string          `json:"selection,omitempty"`
}

// Normalize fills the default city and category.
func (s Scope) Normalize() Scope {
	s.City = domain.NormalizeCity(s.City)
	if s.Category == "" {
		s.Category = domain.CategoryNeighborhood
	}
	return s
}

// BuildURL renders scope as a path plus query. The default city and an empty selection
// are omitted.
func BuildURL(scope Scope) string {
	scope = scope.Normalize()
	path := "/" + scope.Category.Kind().PathSegment

	q := url.Values{}
	if scope.City != domain.DefaultCity {
		q.Set(paramCity, scope.City)
	}
	if scope.Selection != "" {
		q.Set(paramSelection, scope.Selection)
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// ParseScope is the inverse of BuildURL. A path without a category segment falls back to
// the legacy type query parameter.
func ParseScope(rawURL string) (Scope, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Scope{}, fmt.Errorf("parse url: %w", err)
	}

	segment := strings.Trim(u.Path, "/")
	q := u.Query()

	category, ok := domain.CategoryForPathSegment(segment)
	if !ok {
		return Scope{}, fmt.Errorf("unknown path %q", u.Path)
	}
	if segment == "" {
		category, err = domain.ParseCategory(q.Get(paramType))
		if err != nil {
			return Scope{}, err
		}
	}

	return Scope{
		City:      domain.NormalizeCity(q.Get(paramCity)),
		Category:  category,
		Selection: q.Get(paramSelection),
	}, nil
}

var hostPrefixes = []struct {
	prefix   string
	category domain.Category
}{
	{"gradini.", domain.CategoryChildcare},
	{"lekari.", domain.CategoryDoctors},
	{"zabolekari.", domain.CategoryDentists},
}

// CategoryForHost reports the category pinned by a subdomain such as gradini.kvartali.eu.
func CategoryForHost(host string) (domain.Category, bool) {
	h := strings.ToLower(strings.TrimSpace(host))
	if name, _, err := net.SplitHostPort(h); err == nil {
		h = name
	}
	h = strings.TrimPrefix(h, "www.")
	for _, p := range hostPrefixes {
		if strings.HasPrefix(h, p.prefix) {
			return p.category, true
		}
	}
	return "", false
}
