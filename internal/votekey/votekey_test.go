package votekey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

func TestDeriveNormalizesEmptyCity(t *testing.T) {
	withDefault := Derive(domain.CategoryNeighborhood, domain.DefaultCity, "Младост")
	withEmpty := Derive(domain.CategoryNeighborhood, "", "Младост")

	assert.Equal(t, withDefault, withEmpty)
	assert.Equal(t, "neighborhood::София::Младост", withEmpty)
}

func TestDeriveSeparatesCategories(t *testing.T) {
	a := Derive(domain.CategoryNeighborhood, "Варна", "Център")
	b := Derive(domain.CategoryChildcare, "Варна", "Център")
	assert.NotEqual(t, a, b)
}

func TestStorageKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		category domain.Category
		city     string
		location string
		user     string
	}{
		{"cyrillic", domain.CategoryNeighborhood, "Пловдив", "Център", "u1"},
		{"doctor composite", domain.CategoryDoctors, "София", "Д-р Иванов (Кардиолог)", "u2"},
		{"separator inside name", domain.CategoryChildcare, "Варна", "ДГ__Слънце", "u3"},
		{"percent and spaces", domain.CategoryDentists, "Стара Загора", "50% off / d-r", "u4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := StorageKey(tt.category, tt.city, tt.location, tt.user)
			assert.Equal(t, 3, strings.Count(key, storageSeparator), "key %q", key)

			parts, err := ParseStorageKey(key)
			require.NoError(t, err)
			assert.Equal(t, tt.category, parts.Category)
			assert.Equal(t, tt.city, parts.City)
			assert.Equal(t, tt.location, parts.LocationName)
			assert.Equal(t, tt.user, parts.UserID)
		})
	}
}

func TestStorageKeyDefaultCity(t *testing.T) {
	assert.Equal(t,
		StorageKey(domain.CategoryNeighborhood, "", "Люлин", "u"),
		StorageKey(domain.CategoryNeighborhood, domain.DefaultCity, "Люлин", "u"))
}

func TestEncodeMatchesURIComponentForCommonInput(t *testing.T) {
	assert.Equal(t, "%D0%A6%D0%B5%D0%BD%D1%82%D1%8A%D1%80", Encode("Център"))
	assert.Equal(t, "a-b.c!~*'()", Encode("a-b.c!~*'()"))
	assert.Equal(t, "a%5Fb%20c", Encode("a_b c"))
}

func TestParseStorageKeyErrors(t *testing.T) {
	for _, key := range []string{"", "a__b", "a__b__c__", "%zz__b__c__u"} {
		_, err := ParseStorageKey(key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestSet(t *testing.T) {
	s := NewSet("b", "a")
	s.Add("c")
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("z"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Sorted())

	other := NewSet("d")
	s.Merge(other)
	assert.Equal(t, 4, s.Len())
}

func FuzzStorageKeyRoundTrip(f *testing.F) {
	f.Add("neighborhood", "София", "Център", "user-1")
	f.Add("doctors", "", "Д-р (X)", "u")
	f.Add("childcare", "a__b", "%%", "x")

	f.Fuzz(func(t *testing.T, category, city, location, user string) {
		if user == "" || strings.Contains(user, storageSeparator) {
			return
		}
		key := StorageKey(domain.Category(category), city, location, user)
		parts, err := ParseStorageKey(key)
		if err != nil {
			t.Fatalf("ParseStorageKey(%q): %v", key, err)
		}
		if string(parts.Category) != category || parts.LocationName != location || parts.UserID != user {
			t.Fatalf("round trip mismatch: %+v", parts)
		}
		if parts.City != domain.NormalizeCity(city) {
			t.Fatalf("city = %q, want %q", parts.City, domain.NormalizeCity(city))
		}
	})
}
