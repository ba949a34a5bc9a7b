package catalog

import (
	"strings"
	"testing"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

func FuzzFillDefaults(f *testing.F) {
	f.Add("София", "Център,Младост", "location=Локация", "Кардиолог")
	f.Add("", "", "", "")
	f.Add("Варна", "", "transport=,unknown=x", "")

	f.Fuzz(func(t *testing.T, city, neighborhoods, criteria, specialties string) {
		var doc Document
		if city != "" {
			doc.Cities = []City{{Name: city, Neighborhoods: splitNonEmpty(neighborhoods)}}
		}
		for _, pair := range splitNonEmpty(criteria) {
			key, label, _ := strings.Cut(pair, "=")
			doc.Criteria = append(doc.Criteria, Criterion{Key: key, Label: label})
		}
		doc.Specialties = splitNonEmpty(specialties)

		fillDefaults(&doc)

		if len(doc.Cities) == 0 {
			t.Fatal("cities empty after defaults")
		}
		if len(doc.Specialties) == 0 {
			t.Fatal("specialties empty after defaults")
		}
		if len(doc.Criteria) != len(domain.NeighborhoodCriteria) {
			t.Fatalf("criteria = %d, want %d", len(doc.Criteria), len(domain.NeighborhoodCriteria))
		}
		for i, c := range doc.Criteria {
			if c.Key != domain.NeighborhoodCriteria[i] || c.Label == "" {
				t.Fatalf("criterion %d = %+v", i, c)
			}
		}
	})
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
