package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRareTermsScoreHigher(t *testing.T) {
	df := map[string]int{"common": 90, "rare": 2}
	s := NewScorer(RankParams{TotalDocs: 100, AvgDocLength: 10}, func(term string) int { return df[term] })

	assert.Greater(t, s.Term("rare", 1, 10), s.Term("common", 1, 10))
	assert.Greater(t, s.Term("rare", 3, 10), s.Term("rare", 1, 10))
	// shorter documents win at equal frequency
	assert.Greater(t, s.Term("rare", 1, 5), s.Term("rare", 1, 20))
}

func TestEmptyCollectionScoresZero(t *testing.T) {
	s := NewScorer(RankParams{}, func(string) int { return 0 })
	assert.Zero(t, s.Term("x", 1, 1))
}

func TestSortBreaksTiesByOrder(t *testing.T) {
	hits := []Hit{
		{Path: "/c", Score: 1, Order: 2},
		{Path: "/a", Score: 2.123456, Order: 5},
		{Path: "/b", Score: 1, Order: 0},
	}
	Sort(hits)
	assert.Equal(t, []string{"/a", "/b", "/c"}, []string{hits[0].Path, hits[1].Path, hits[2].Path})
	assert.Equal(t, 2.1235, hits[0].Score)
}
