package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Category string  `json:"category" validate:"omitempty,category"`
	Sort     string  `json:"sort" validate:"omitempty,sortkey"`
	MinVotes int     `json:"minVotes" validate:"gte=0"`
	Rating   float64 `json:"minRating" validate:"gte=0,lte=5"`
}

func TestStructAcceptsValid(t *testing.T) {
	assert.NoError(t, Struct(sample{Category: "doctors", Sort: "name-asc", MinVotes: 2, Rating: 4.5}))
	assert.NoError(t, Struct(sample{}))
}

func TestStructReportsEveryField(t *testing.T) {
	err := Struct(sample{Category: "shops", Sort: "random", MinVotes: -1, Rating: 9})
	var rerr *RequestError
	require.True(t, errors.As(err, &rerr))

	fields := map[string]string{}
	for _, f := range rerr.Fields {
		fields[f.Field] = f.Tag
	}
	assert.Equal(t, map[string]string{
		"category":  "category",
		"sort":      "sortkey",
		"minVotes":  "gte",
		"minRating": "lte",
	}, fields)
	assert.Contains(t, err.Error(), "minRating failed lte=5")
}

func TestValidatorIsSingleton(t *testing.T) {
	assert.Same(t, Validator(), Validator())
}
