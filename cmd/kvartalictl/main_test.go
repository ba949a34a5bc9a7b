package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/kvartali/internal/aggregate"
	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/pipeline"
	"github.com/Clark-Hu/kvartali/internal/urlstate"
	"github.com/Clark-Hu/kvartali/internal/votekey"
)

func TestKeyCommandDecodesStorageKey(t *testing.T) {
	key := votekey.StorageKey(domain.CategoryDoctors, "Пловдив", "Д-р Иванов (Кардиолог)", "user-1")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"key", key})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "category: doctors")
	assert.Contains(t, out.String(), "location: Д-р Иванов (Кардиолог)")
	assert.Contains(t, out.String(), "vote key: doctors::Пловдив::Д-р Иванов (Кардиолог)")
}

func TestKeyCommandRejectsMalformedKey(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"key", "not-a-key"})
	assert.Error(t, cmd.Execute())
}

func TestPrintResults(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []domain.RatingRecord{
		{Category: domain.CategoryDentists, City: domain.DefaultCity, LocationName: "Д-р А", Scores: map[string]int{"overall": 5}, UserID: "u1", SubmittedAt: now},
		{Category: domain.CategoryDentists, City: domain.DefaultCity, LocationName: "Д-р Б", Scores: map[string]int{"overall": 3}, UserID: "u1", SubmittedAt: now},
	}
	scope := urlstate.Scope{Category: domain.CategoryDentists}.Normalize()
	groups := aggregate.Aggregate(records, aggregate.Scope{Category: scope.Category, City: scope.City})
	result := pipeline.Run(groups, scope.Category, pipeline.Options{SortBy: pipeline.SortRatingAsc})

	var out bytes.Buffer
	require.NoError(t, printResults(&out, scope, result, 0))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "/zabolekari  (2)", lines[0])
	assert.Contains(t, lines[2], "Д-р Б")
	assert.Contains(t, lines[3], "5.0")
}

func TestPrintResultsEmptyScope(t *testing.T) {
	scope := urlstate.Scope{}.Normalize()
	result := pipeline.Run(nil, scope.Category, pipeline.Options{})

	var out bytes.Buffer
	require.NoError(t, printResults(&out, scope, result, 0))
	assert.Equal(t, "/  (0)\n"+result.Message()+"\n", out.String())
}
