package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"securelc/models"
)

func TestSortRequestsNewestFirst(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	requests := []models.Request{
		{ID: "c", CreatedAt: base},
		{ID: "a", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "b", CreatedAt: base.Add(time.Hour)},
	}

	SortRequestsNewestFirst(requests)

	assert.Equal(t, []string{"a", "b", "c"}, ids(requests))
}

func TestSortRequestsTieBreaksByIDAscending(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	requests := []models.Request{
		{ID: "zz", CreatedAt: ts},
		{ID: "aa", CreatedAt: ts},
		{ID: "mm", CreatedAt: ts},
	}

	SortRequestsNewestFirst(requests)

	assert.Equal(t, []string{"aa", "mm", "zz"}, ids(requests))
}

func TestSortRequestsZeroTimestampSortsLast(t *testing.T) {
	// A freshly created record carries a zero CreatedAt until the
	// server timestamp arrives with the next snapshot.
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	requests := []models.Request{
		{ID: "new"},
		{ID: "old", CreatedAt: ts},
	}

	SortRequestsNewestFirst(requests)

	assert.Equal(t, []string{"old", "new"}, ids(requests))
}

func ids(requests []models.Request) []string {
	out := make([]string, len(requests))
	for i, r := range requests {
		out[i] = r.ID
	}
	return out
}
