// Package catalog holds the static reference data: cities with their neighborhoods and
// childcare facilities, criterion labels and medical specialties.
package catalog

import (
	"github.com/Clark-Hu/kvartali/internal/domain"
)

// City lists the enumerated locations of one city.
type City struct {
	Name          string   `koanf:"name" json:"name"`
	Neighborhoods []string `koanf:"neighborhoods" json:"neighborhoods"`
	Childcare     []string `koanf:"childcare" json:"childcare"`
}

// Criterion pairs a score key with its display label.
type Criterion struct {
	Key   string `koanf:"key" json:"key"`
	Label string `koanf:"label" json:"label"`
}

// Document is the on-disk and over-the-wire shape of the catalog.
type Document struct {
	Cities      []City      `koanf:"cities" json:"cities"`
	Criteria    []Criterion `koanf:"criteria" json:"criteria"`
	Specialties []string    `koanf:"specialties" json:"specialties"`
}

// Catalog is an immutable, indexed view of a Document.
type Catalog struct {
	doc    Document
	byName map[string]int
	labels map[string]string
	all    []string
}

// New indexes doc. The document is not copied; callers must not mutate it afterwards.
func New(doc Document) *Catalog {
	c := &Catalog{
		doc:    doc,
		byName: make(map[string]int, len(doc.Cities)),
		labels: make(map[string]string, len(doc.Criteria)),
	}
	seen := make(map[string]struct{})
	for i, city := range doc.Cities {
		c.byName[city.Name] = i
		for _, n := range city.Neighborhoods {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			c.all = append(c.all, n)
		}
	}
	for _, cr := range doc.Criteria {
		c.labels[cr.Key] = cr.Label
	}
	return c
}

// Document returns the underlying document.
func (c *Catalog) Document() Document { return c.doc }

// CityNames returns the city names in catalog order.
func (c *Catalog) CityNames() []string {
	out := make([]string, 0, len(c.doc.Cities))
	for _, city := range c.doc.Cities {
		out = append(out, city.Name)
	}
	return out
}

// HasCity reports whether the catalog knows the city.
func (c *Catalog) HasCity(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// LocationsFor returns the selectable locations for a city and category. Doctors and
// dentists are free text and have none. An empty city lists every neighborhood.
func (c *Catalog) LocationsFor(city string, category domain.Category) []string {
	kind := category.Kind()
	if !kind.HasCatalog {
		return nil
	}
	if city == "" {
		if category == domain.CategoryChildcare {
			return nil
		}
		return append([]string(nil), c.all...)
	}
	i, ok := c.byName[city]
	if !ok {
		return []string{}
	}
	if category == domain.CategoryChildcare {
		return append([]string{}, c.doc.Cities[i].Childcare...)
	}
	return append([]string{}, c.doc.Cities[i].Neighborhoods...)
}

// HasLocation reports whether location is selectable for the city and category.
func (c *Catalog) HasLocation(city string, category domain.Category, location string) bool {
	for _, l := range c.LocationsFor(city, category) {
		if l == location {
			return true
		}
	}
	return false
}

// Criteria returns the criterion labels in display order.
func (c *Catalog) Criteria() []Criterion {
	return append([]Criterion(nil), c.doc.Criteria...)
}

// CriterionLabel returns the label for key, or key itself when unknown.
func (c *Catalog) CriterionLabel(key string) string {
	if l, ok := c.labels[key]; ok {
		return l
	}
	return key
}

// Specialties returns the medical specialty list.
func (c *Catalog) Specialties() []string {
	return append([]string(nil), c.doc.Specialties...)
}
