package ops

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"go.uber.org/zap"

	"github.com/ministore/objectdb/objectdb/storage"
	"github.com/ministore/objectdb/objectdb/terms"
)

const (
	// InitialWindow caps the first page size of a term/rank scan.
	InitialWindow = 200
	// WindowGrowth multiplies the page size after every pass.
	WindowGrowth = 10
	// PushdownLimit is the largest constraint bound into SQL.
	PushdownLimit = 1000
)

// SearchRequest is a ranked AND query over one inverted index.
type SearchRequest struct {
	Index string
	// Terms are normalized query terms (see terms.QueryTerms).
	Terms []string
	// TypeIDs restricts matches to these object types when non-empty.
	TypeIDs []int64
	Limit   int
}

// SearchResult maps every matched object to its score.
type SearchResult struct {
	Scores map[Key]float64
	Passes int
}

// typeSets holds object ids per object type.
type typeSets map[int64]*roaring64.Bitmap

func (s typeSets) add(k Key) {
	bm, ok := s[k.TypeID]
	if !ok {
		bm = roaring64.New()
		s[k.TypeID] = bm
	}
	bm.Add(uint64(k.ID))
}

func (s typeSets) cardinality() uint64 {
	var n uint64
	for _, bm := range s {
		n += bm.GetCardinality()
	}
	return n
}

func (s typeSets) contains(k Key) bool {
	bm, ok := s[k.TypeID]
	return ok && bm.Contains(uint64(k.ID))
}

func (s typeSets) clone() typeSets {
	out := make(typeSets, len(s))
	for t, bm := range s {
		out[t] = bm.Clone()
	}
	return out
}

// intersect returns s AND o, dropping empty types.
func (s typeSets) intersect(o typeSets) typeSets {
	out := typeSets{}
	for t, bm := range s {
		other, ok := o[t]
		if !ok {
			continue
		}
		and := roaring64.And(bm, other)
		if !and.IsEmpty() {
			out[t] = and
		}
	}
	return out
}

// andCardinality counts members of s also in o.
func (s typeSets) andCardinality(o typeSets) uint64 {
	var n uint64
	for t, bm := range s {
		if other, ok := o[t]; ok {
			n += bm.AndCardinality(other)
		}
	}
	return n
}

type termState struct {
	term   string
	id     int64
	count  int64
	idf    float64
	freqs  map[Key]float64
	sets   typeSets
	offset [terms.MaxRank + 1]int
	more   [terms.MaxRank + 1]bool
	done   bool
	// gen is the constraint generation the offsets were computed under.
	gen int
}

func (s *termState) reset(gen int) {
	for r := range s.offset {
		s.offset[r] = 0
		s.more[r] = true
	}
	s.gen = gen
}

func (s *termState) hasMore() bool {
	for _, m := range s.more {
		if m {
			return true
		}
	}
	return false
}

type searcher struct {
	env   *Env
	req   *SearchRequest
	terms []*termState

	// constraint is the intersection of all resolved terms, nil until the
	// first term resolves.
	constraint typeSets
	pushed     bool
	gen        int
}

// Search runs the rank-bucket multi-pass intersection.
//
// Terms are processed rarest first. Each pass sweeps ranks from MaxRank
// down to 0 and pages every unresolved term's postings at that rank with
// the current window. A term is resolved once all its postings (or all of
// the current constraint) have been read; its object set then narrows the
// constraint, which is bound into later queries when small enough. After
// a pass the window grows until enough objects match every term or no
// term can produce more rows.
func Search(ctx context.Context, env *Env, req *SearchRequest) (*SearchResult, error) {
	res := &SearchResult{Scores: map[Key]float64{}}
	words := dedupe(req.Terms)
	if len(words) == 0 {
		return res, nil
	}

	var objectCount int64
	if err := env.Q.QueryRowContext(ctx, env.SQL.GetObjectCount, req.Index).Scan(&objectCount); err != nil {
		return nil, fmt.Errorf("load object_count: %w", err)
	}

	// 1. Resolve term ids and global counts; an unknown term matches nothing
	states, err := lookupTerms(ctx, env, req.Index, words)
	if err != nil {
		return nil, err
	}
	if len(states) < len(words) {
		return res, nil
	}

	// 2. Rarest first, with a rarity-order bonus on idf
	sort.SliceStable(states, func(i, j int) bool { return states[i].count < states[j].count })
	n := float64(len(states))
	for i, s := range states {
		docs := float64(objectCount)
		if float64(s.count) > docs {
			docs = float64(s.count)
		}
		s.idf = math.Log(docs/float64(s.count)+1) + (n-float64(i))/n
		s.freqs = map[Key]float64{}
		s.sets = typeSets{}
		s.reset(0)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = int(objectCount)
	}
	if limit <= 0 {
		return res, nil
	}

	sr := &searcher{env: env, req: req, terms: states}
	window := limit * 3
	if window > InitialWindow {
		window = InitialWindow
	}

	var matched typeSets
	for {
		res.Passes++
		empty, err := sr.pass(ctx, window, limit)
		if err != nil {
			return nil, err
		}
		if empty {
			return res, nil
		}
		matched = sr.intersection()
		env.Log.Debug("search pass",
			zap.String("index", req.Index),
			zap.Int("pass", res.Passes),
			zap.Int("window", window),
			zap.Uint64("matched", matched.cardinality()))

		if sr.finished(matched, limit) {
			break
		}
		window *= WindowGrowth
	}

	// 3. score = sum of frequency * idf over all terms
	for _, s := range sr.terms {
		for k, f := range s.freqs {
			if matched.contains(k) {
				res.Scores[k] += f * s.idf
			}
		}
	}
	return res, nil
}

// pass sweeps every rank once. It reports true when the constraint became
// empty, which proves there is no match.
func (sr *searcher) pass(ctx context.Context, window, limit int) (bool, error) {
	for rank := terms.MaxRank; rank >= 0; rank-- {
		for _, s := range sr.terms {
			if s.done {
				continue
			}
			if sr.pushed && s.gen != sr.gen {
				s.reset(sr.gen)
			}
			if !s.more[rank] {
				continue
			}
			got, err := sr.page(ctx, s, rank, window)
			if err != nil {
				return false, err
			}
			s.offset[rank] += got
			s.more[rank] = got == window

			if sr.resolved(s) {
				s.done = true
				if sr.constraint == nil {
					sr.constraint = s.sets.clone()
				} else {
					sr.constraint = sr.constraint.intersect(s.sets)
				}
				if sr.constraint.cardinality() == 0 {
					return true, nil
				}
				if sr.constraint.cardinality() <= PushdownLimit {
					sr.pushed = true
					sr.gen++
				}
			}
		}
		if int(sr.intersection().cardinality()) > limit*2 {
			break
		}
	}
	return false, nil
}

func (sr *searcher) resolved(s *termState) bool {
	if int64(len(s.freqs)) >= s.count {
		return true
	}
	if !s.hasMore() {
		return true
	}
	if sr.pushed {
		return s.sets.andCardinality(sr.constraint) >= sr.constraint.cardinality()
	}
	return false
}

// intersection is the set of objects seen for every term.
func (sr *searcher) intersection() typeSets {
	out := sr.terms[0].sets
	for _, s := range sr.terms[1:] {
		out = out.intersect(s.sets)
	}
	if sr.constraint != nil {
		out = out.intersect(sr.constraint)
	}
	return out
}

func (sr *searcher) finished(matched typeSets, limit int) bool {
	if int(matched.cardinality()) >= limit {
		return true
	}
	allDone, anyMore := true, false
	for _, s := range sr.terms {
		if !s.done {
			allDone = false
		}
		if !s.done && s.hasMore() {
			anyMore = true
		}
	}
	if allDone || !anyMore {
		return true
	}
	// Two neighbours in rarity order that are both exhausted and share no
	// object prove the AND query empty. Only adjacent pairs are checked.
	for i := 1; i < len(sr.terms); i++ {
		a, b := sr.terms[i-1], sr.terms[i]
		if a.done && b.done && a.sets.andCardinality(b.sets) == 0 {
			return true
		}
	}
	return false
}

// page reads one window of postings for a term at one rank and returns the
// number of rows read.
func (sr *searcher) page(ctx context.Context, s *termState, rank, window int) (int, error) {
	d := sr.env.Dialect
	b := d.Builder()
	where := []string{
		"term_id = " + b.Arg(s.id),
		"rank = " + b.Arg(rank),
	}
	if len(sr.req.TypeIDs) > 0 {
		where = append(where, "object_type IN "+b.Int64List(sr.req.TypeIDs))
	}
	if sr.pushed {
		var ors []string
		for _, typeID := range sortedSetTypes(sr.constraint) {
			ids := sr.constraint[typeID].ToArray()
			list := make([]int64, len(ids))
			for i, id := range ids {
				list[i] = int64(id)
			}
			ors = append(ors, fmt.Sprintf("(object_type = %s AND object_id IN %s)", b.Arg(typeID), b.Int64List(list)))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	stmt := fmt.Sprintf("SELECT object_type, object_id, frequency FROM %s WHERE %s ORDER BY object_type, object_id LIMIT %s OFFSET %s",
		d.Quote(storage.PostingsTable(sr.req.Index)), strings.Join(where, " AND "), b.Arg(window), b.Arg(s.offset[rank]))

	rows, err := sr.env.Q.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return 0, fmt.Errorf("scan postings of %q: %w", s.term, err)
	}
	defer rows.Close()
	got := 0
	for rows.Next() {
		var k Key
		var freq float64
		if err := rows.Scan(&k.TypeID, &k.ID, &freq); err != nil {
			return 0, err
		}
		s.freqs[k] = freq
		s.sets.add(k)
		got++
	}
	return got, rows.Err()
}

func lookupTerms(ctx context.Context, env *Env, index string, words []string) ([]*termState, error) {
	d := env.Dialect
	b := d.Builder()
	vals := make([]any, len(words))
	for i, w := range words {
		vals[i] = w
	}
	stmt := fmt.Sprintf("SELECT id, term_lower, global_count FROM %s WHERE term_lower IN %s AND global_count > 0",
		d.Quote(storage.TermsTable(index)), b.List(vals))
	rows, err := env.Q.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("lookup terms: %w", err)
	}
	defer rows.Close()
	var out []*termState
	for rows.Next() {
		s := &termState{}
		if err := rows.Scan(&s.id, &s.term, &s.count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query order as the tie-break between equally rare terms.
	pos := map[string]int{}
	for i, w := range words {
		pos[w] = i
	}
	sort.Slice(out, func(i, j int) bool { return pos[out[i].term] < pos[out[j].term] })
	return out, nil
}

func dedupe(words []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range words {
		w = strings.ToLower(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func sortedSetTypes(s typeSets) []int64 {
	ids := make([]int64, 0, len(s))
	for t := range s {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
