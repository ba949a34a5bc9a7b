// Package votekey derives the identities used to enforce one vote per user and location.
//
// Two keys are derived from the same logical fields. A VoteKey is a readable string used
// for fast local "already voted" checks. A storage key additionally carries the user id
// and is the backend's write-idempotency fence, so every field is percent-encoded and the
// "__" separator can never appear inside a field.
package votekey

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

const (
	voteSeparator    = "::"
	storageSeparator = "__"
)

// Derive returns the VoteKey for a category, city and location. An empty city is
// treated as the default city so both spellings collide.
func Derive(category domain.Category, city, locationName string) string {
	return string(category) + voteSeparator + domain.NormalizeCity(city) + voteSeparator + locationName
}

// ForRecord returns the VoteKey of a stored record.
func ForRecord(rec domain.RatingRecord) string {
	return Derive(rec.Category, rec.City, rec.LocationName)
}

// StorageKey returns the backend key for a single user's vote.
func StorageKey(category domain.Category, city, locationName, userID string) string {
	parts := []string{
		Encode(string(category)),
		Encode(domain.NormalizeCity(city)),
		Encode(locationName),
		userID,
	}
	return strings.Join(parts, storageSeparator)
}

// StorageKeyParts is the decoded form of a storage key.
type StorageKeyParts struct {
	Category     domain.Category
	City         string
	LocationName string
	UserID       string
}

// ParseStorageKey reverses StorageKey.
func ParseStorageKey(key string) (StorageKeyParts, error) {
	fields := strings.SplitN(key, storageSeparator, 4)
	if len(fields) != 4 {
		return StorageKeyParts{}, fmt.Errorf("storage key %q: expected 4 fields, got %d", key, len(fields))
	}
	decoded := make([]string, 3)
	for i := 0; i < 3; i++ {
		v, err := url.PathUnescape(fields[i])
		if err != nil {
			return StorageKeyParts{}, fmt.Errorf("storage key %q: field %d: %w", key, i, err)
		}
		decoded[i] = v
	}
	if fields[3] == "" {
		return StorageKeyParts{}, fmt.Errorf("storage key %q: empty user id", key)
	}
	return StorageKeyParts{
		Category:     domain.Category(decoded[0]),
		City:         decoded[1],
		LocationName: decoded[2],
		UserID:       fields[3],
	}, nil
}

const upperhex = "0123456789ABCDEF"

// Encode percent-encodes every byte outside A-Z a-z 0-9 - . ! ~ * ' ( ).
// Unlike url.PathEscape it also escapes '_' so encoded fields never contain the separator.
func Encode(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
