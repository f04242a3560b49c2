// Package terms splits text into index terms and computes per-object term
// scores for inverted indexes.
package terms

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ministore/objectdb/objectdb/schema"
)

// MaxRank is the highest rank bucket.
const MaxRank = 10

// Split breaks s on every rune that is neither a letter nor a digit.
func Split(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Source is one raw value destined for an inverted index.
type Source struct {
	Value any
	Coeff float64
	// Split overrides the index splitter when non-nil.
	Split schema.SplitFunc
}

type filter struct {
	min, max int
	ignore   map[string]struct{}
	split    schema.SplitFunc
}

func newFilter(def schema.InvertedIndexDef) filter {
	f := filter{min: def.Min, max: def.Max, ignore: def.IgnoreSet(), split: def.Split}
	if f.split == nil {
		f.split = Split
	}
	return f
}

func (f filter) accept(term string) bool {
	if term == "" {
		return false
	}
	n := utf8.RuneCountInString(term)
	if f.min > 0 && n < f.min {
		return false
	}
	if f.max > 0 && n > f.max {
		return false
	}
	_, stop := f.ignore[strings.ToLower(term)]
	return !stop
}

func (f filter) tokens(v any, override schema.SplitFunc) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		return x
	case string:
		if override != nil {
			return override(x)
		}
		return f.split(x)
	}
	return nil
}

type tally struct {
	term  string
	count float64
}

// Score computes term -> score for one object. The score of a term is
// sqrt(weighted_count / total) where total sums the weighted counts of all
// accepted terms, so every score lies in (0, 1]. Keys keep the case of the
// first occurrence.
func Score(def schema.InvertedIndexDef, sources []Source) map[string]float64 {
	f := newFilter(def)
	byLower := map[string]*tally{}
	var total float64
	for _, src := range sources {
		coeff := src.Coeff
		if coeff <= 0 {
			coeff = 1
		}
		for _, tok := range f.tokens(src.Value, src.Split) {
			if !f.accept(tok) {
				continue
			}
			key := strings.ToLower(tok)
			t, ok := byLower[key]
			if !ok {
				t = &tally{term: tok}
				byLower[key] = t
			}
			t.count += coeff
			total += coeff
		}
	}
	scores := make(map[string]float64, len(byLower))
	if total == 0 {
		return scores
	}
	for _, t := range byLower {
		scores[t.term] = math.Sqrt(t.count / total)
	}
	return scores
}

// Rank discretizes a score into its bucket, floor(score*10) clamped to
// [0, MaxRank].
func Rank(score float64) int {
	r := int(math.Floor(score * MaxRank))
	if r < 0 {
		return 0
	}
	if r > MaxRank {
		return MaxRank
	}
	return r
}

// QueryTerms normalizes query input the same way indexing does and returns
// distinct lowercase terms in order of first appearance.
func QueryTerms(def schema.InvertedIndexDef, v any) []string {
	f := newFilter(def)
	seen := map[string]bool{}
	var out []string
	for _, tok := range f.tokens(v, nil) {
		if !f.accept(tok) {
			continue
		}
		key := strings.ToLower(tok)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
