// Package aggregate groups rating records per location and computes rounded averages.
package aggregate

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

// Scope selects the records that belong to one view.
type Scope struct {
	Category domain.Category
	City     string
}

var specialtyPattern = regexp.MustCompile(`\(([^)]+)\)$`)

// Specialty returns the trailing parenthesised part of a doctor's name, or "".
func Specialty(locationName string) string {
	m := specialtyPattern.FindStringSubmatch(strings.TrimSpace(locationName))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Aggregate groups the in-scope records by location name in first-seen order. The input
// is not modified.
func Aggregate(records []domain.RatingRecord, scope Scope) []domain.AggregateGroup {
	kind := scope.Category.Kind()
	city := domain.NormalizeCity(scope.City)

	index := make(map[string]int)
	groups := make([]domain.AggregateGroup, 0)
	for _, rec := range records {
		if rec.Category != scope.Category {
			continue
		}
		if !kind.CityIndependent && domain.NormalizeCity(rec.City) != city {
			continue
		}
		i, ok := index[rec.LocationName]
		if !ok {
			i = len(groups)
			index[rec.LocationName] = i
			groups = append(groups, domain.AggregateGroup{
				LocationName: rec.LocationName,
				City:         city,
				Category:     scope.Category,
			})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}

	for i := range groups {
		summarize(&groups[i], kind)
	}
	return groups
}

func summarize(g *domain.AggregateGroup, kind domain.CategoryKind) {
	g.VoteCount = len(g.Records)
	g.CriterionAverages = make(map[string]float64, len(kind.Criteria))
	g.Opinions = make([]domain.Opinion, 0)

	rounded := make([]decimal.Decimal, 0, len(kind.Criteria))
	for _, criterion := range kind.Criteria {
		avg := mean(g.Records, criterion)
		rounded = append(rounded, avg)
		g.CriterionAverages[criterion] = avg.InexactFloat64()
	}

	if len(rounded) == 1 {
		g.Overall = rounded[0].InexactFloat64()
	} else {
		sum := decimal.Zero
		for _, r := range rounded {
			sum = sum.Add(r)
		}
		g.Overall = sum.Div(decimal.NewFromInt(int64(len(rounded)))).Round(1).InexactFloat64()
	}

	if kind.ExtractSpecialty {
		g.Specialty = Specialty(g.LocationName)
	}

	for _, rec := range g.Records {
		text := strings.TrimSpace(rec.Opinion)
		if text == "" {
			continue
		}
		g.Opinions = append(g.Opinions, domain.Opinion{
			LocationName: rec.LocationName,
			Text:         text,
			UserID:       rec.UserID,
			SubmittedAt:  rec.SubmittedAt,
		})
	}
}

// mean averages criterion over every record of the group, rounded half-up to one
// decimal. A record without a score for it contributes zero.
func mean(records []domain.RatingRecord, criterion string) decimal.Decimal {
	if len(records) == 0 {
		return decimal.Zero
	}
	var sum int64
	for _, rec := range records {
		sum += int64(rec.Scores[criterion])
	}
	return decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(len(records)))).Round(1)
}
