package domain

import (
	"fmt"
	"strings"
)

// DefaultCity is used whenever a record or request carries no city.
const DefaultCity = "София"

// Category identifies what is being rated.
type Category string

const (
	CategoryNeighborhood Category = "neighborhood"
	CategoryChildcare    Category = "childcare"
	CategoryDoctors      Category = "doctors"
	CategoryDentists     Category = "dentists"
)

// OverallCriterion is the single criterion used by every category except neighborhoods.
const OverallCriterion = "overall"

// NeighborhoodCriteria are the ten fixed criterion keys rated for a neighborhood, in display order.
var NeighborhoodCriteria = []string{
	"location",
	"cleanliness",
	"transport",
	"buildings",
	"security",
	"infrastructure",
	"education",
	"healthcare",
	"shopping",
	"entertainment",
}

// IdentifyingField describes which form fields identify the rated location.
type IdentifyingField int

const (
	// FieldSelection is a location picked from the catalog.
	FieldSelection IdentifyingField = iota
	// FieldNameAndSpecialty is a free-text person name plus a specialty.
	FieldNameAndSpecialty
	// FieldName is a free-text person name.
	FieldName
)

// CategoryKind carries everything that differs between categories so callers dispatch
// on one value instead of scattered conditionals.
type CategoryKind struct {
	Category         Category
	Criteria         []string
	Identifying      IdentifyingField
	CityIndependent  bool
	HasCatalog       bool
	ExtractSpecialty bool
	PathSegment      string

	DuplicateMessage string
	MissingIDMessage string
	PartialMessage   string
}

var kinds = map[Category]CategoryKind{
	CategoryNeighborhood: {
		Category:         CategoryNeighborhood,
		Criteria:         NeighborhoodCriteria,
		Identifying:      FieldSelection,
		HasCatalog:       true,
		PathSegment:      "",
		DuplicateMessage: "Вече сте гласували за този квартал!",
		MissingIDMessage: "Моля изберете квартал!",
		PartialMessage:   "Моля оценете всички 10 критерия или не оценявайте нито един!",
	},
	CategoryChildcare: {
		Category:         CategoryChildcare,
		Criteria:         []string{OverallCriterion},
		Identifying:      FieldSelection,
		HasCatalog:       true,
		PathSegment:      "detskigradini",
		DuplicateMessage: "Вече сте гласували за тази детска градина!",
		MissingIDMessage: "Моля изберете детска градина!",
		PartialMessage:   "Моля оценете или не оценявайте нито едно!",
	},
	CategoryDoctors: {
		Category:         CategoryDoctors,
		Criteria:         []string{OverallCriterion},
		Identifying:      FieldNameAndSpecialty,
		ExtractSpecialty: true,
		PathSegment:      "lekari",
		DuplicateMessage: "Вече сте гласували за този лекар!",
		MissingIDMessage: "Моля въведете име на лекар и специалност!",
		PartialMessage:   "Моля оценете или не оценявайте нито едно!",
	},
	CategoryDentists: {
		Category:         CategoryDentists,
		Criteria:         []string{OverallCriterion},
		Identifying:      FieldName,
		PathSegment:      "zabolekari",
		DuplicateMessage: "Вече сте гласували за този зъболекар!",
		MissingIDMessage: "Моля въведете име на зъболекар!",
		PartialMessage:   "Моля оценете или не оценявайте нито едно!",
	},
}

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{CategoryNeighborhood, CategoryChildcare, CategoryDoctors, CategoryDentists}
}

// ParseCategory converts user input into a Category. Empty input selects neighborhoods.
func ParseCategory(raw string) (Category, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return CategoryNeighborhood, nil
	}
	c := Category(value)
	if _, ok := kinds[c]; !ok {
		return "", fmt.Errorf("unknown category %q", raw)
	}
	return c, nil
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := kinds[c]
	return ok
}

// Kind returns the descriptor of c. Unknown categories fall back to neighborhoods.
func (c Category) Kind() CategoryKind {
	if k, ok := kinds[c]; ok {
		return k
	}
	return kinds[CategoryNeighborhood]
}

// CategoryForPathSegment maps a URL path segment back to its category.
func CategoryForPathSegment(segment string) (Category, bool) {
	for _, c := range Categories() {
		if kinds[c].PathSegment == segment {
			return c, true
		}
	}
	return "", false
}

// NormalizeCity trims the input and substitutes DefaultCity for an empty value.
func NormalizeCity(city string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return DefaultCity
	}
	return city
}
