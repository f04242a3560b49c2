package terms

import (
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministore/objectdb/objectdb/schema"
)

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"The", "cat", "sat", "2024"}, Split("The cat, sat!! (2024)"))
	assert.Equal(t, []string{"héllo", "wörld"}, Split("héllo-wörld"))
	assert.Empty(t, Split(" ,.;"))
}

func TestScoreRange(t *testing.T) {
	def := schema.InvertedIndexDef{Name: "keywords"}
	scores := Score(def, []Source{{Value: "the cat sat on the mat the end", Coeff: 1}})
	require.NotEmpty(t, scores)
	for term, s := range scores {
		assert.Greater(t, s, 0.0, term)
		assert.LessOrEqual(t, s, 1.0, term)
	}
	// "the" occurs 3 of 8 times
	assert.InDelta(t, math.Sqrt(3.0/8.0), scores["the"], 1e-9)
	assert.InDelta(t, math.Sqrt(1.0/8.0), scores["cat"], 1e-9)
}

func TestScoreSingleTerm(t *testing.T) {
	scores := Score(schema.InvertedIndexDef{}, []Source{{Value: "alone"}})
	assert.Equal(t, map[string]float64{"alone": 1.0}, scores)
	assert.Equal(t, MaxRank, Rank(scores["alone"]))
}

func TestScoreFirstSeenCase(t *testing.T) {
	scores := Score(schema.InvertedIndexDef{}, []Source{{Value: "Go go GO rust"}})
	require.Len(t, scores, 2)
	assert.Contains(t, scores, "Go")
	assert.Contains(t, scores, "rust")
	assert.InDelta(t, math.Sqrt(3.0/4.0), scores["Go"], 1e-9)
}

func TestScoreFilters(t *testing.T) {
	def := schema.InvertedIndexDef{Min: 3, Max: 5, Ignore: []string{"THE"}}
	scores := Score(def, []Source{{Value: "a the cat elephant mouse"}})
	assert.Equal(t, []string{"cat", "mouse"}, sortedKeys(scores))
}

func TestScoreCoefficientsAndSequences(t *testing.T) {
	def := schema.InvertedIndexDef{}
	scores := Score(def, []Source{
		{Value: "cat", Coeff: 3},
		{Value: []string{"dog"}, Coeff: 1},
	})
	assert.InDelta(t, math.Sqrt(3.0/4.0), scores["cat"], 1e-9)
	assert.InDelta(t, math.Sqrt(1.0/4.0), scores["dog"], 1e-9)
}

func TestScoreSplitOverride(t *testing.T) {
	def := schema.InvertedIndexDef{Split: func(s string) []string { return []string{s} }}
	scores := Score(def, []Source{
		{Value: "new york"},
		{Value: "a/b", Split: func(s string) []string { return strings.Split(s, "/") }},
	})
	assert.ElementsMatch(t, []string{"new york", "a", "b"}, sortedKeys(scores))
}

func TestScoreEmpty(t *testing.T) {
	assert.Empty(t, Score(schema.InvertedIndexDef{}, nil))
	assert.Empty(t, Score(schema.InvertedIndexDef{}, []Source{{Value: "  "}}))
}

func TestRank(t *testing.T) {
	cases := map[float64]int{0: 0, 0.05: 0, 0.1: 1, 0.99: 9, 1: 10, 1.5: 10, -1: 0}
	for score, want := range cases {
		assert.Equal(t, want, Rank(score), "score %v", score)
	}
}

func TestQueryTerms(t *testing.T) {
	def := schema.InvertedIndexDef{Ignore: []string{"and"}}
	assert.Equal(t, []string{"cat", "dog"}, QueryTerms(def, "Cat and DOG cat"))
	assert.Empty(t, QueryTerms(def, "and"))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
