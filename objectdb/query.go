package objectdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/ops"
	"github.com/ministore/objectdb/objectdb/planner"
	"github.com/ministore/objectdb/objectdb/query"
	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
	"github.com/ministore/objectdb/objectdb/terms"
)

// hit is one matched row with its combined search score.
type hit struct {
	rec   *ops.Record
	score float64
}

// plan is a Query resolved against the registry.
type plan struct {
	types    []*schema.ObjectType
	attrs    map[string]query.QExpr
	searches []*ops.SearchRequest
	parent   *planner.ParentFilter
}

// Query returns the objects matching q. When an inverted index takes part
// the result is ordered by descending score; otherwise it follows table
// order per type, types in registration order.
func (db *DB) Query(ctx context.Context, q Query) ([]*Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	var hits []hit
	err := db.withSavepoint(ctx, func(env *ops.Env) error {
		var err error
		hits, err = db.query(ctx, env, &q, false)
		return err
	})
	db.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	out := make([]*Object, len(hits))
	for i, h := range hits {
		out[i] = db.toObject(h.rec, h.score)
	}
	return out, nil
}

// resolve splits the filters of q into inverted index searches and column
// predicates and picks the candidate types.
func (db *DB) resolve(q *Query) (*plan, error) {
	p := &plan{attrs: map[string]query.QExpr{}}

	if q.Type != "" {
		t, err := db.lookupType(q.Type)
		if err != nil {
			return nil, err
		}
		p.types = []*schema.ObjectType{t}
	} else {
		p.types = db.reg.Types()
	}

	if q.Parent != nil {
		pf, err := db.parentFilter(q.Parent)
		if err != nil {
			return nil, err
		}
		p.parent = pf
	}

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := q.Filters[key]
		if def, ok := db.reg.indexes[key]; ok {
			words, err := searchTerms(def, v)
			if err != nil {
				return nil, err
			}
			p.searches = append(p.searches, &ops.SearchRequest{Index: key, Terms: words})
			continue
		}
		expr, ok := v.(query.QExpr)
		if !ok {
			expr = query.Eq(v)
		}
		if err := expr.Validate(); err != nil {
			return nil, err
		}
		if key != storage.ColID && !db.anyTypeHas(p.types, key) {
			if q.Type != "" {
				return nil, oderrors.UnknownAttribute(q.Type, key)
			}
			return nil, oderrors.Newf(oderrors.KindUnknownAttribute, "no registered type has attribute %q", key)
		}
		p.attrs[key] = expr
	}
	return p, nil
}

func searchTerms(def schema.InvertedIndexDef, v any) ([]string, error) {
	switch tv := v.(type) {
	case string:
		return terms.QueryTerms(def, tv), nil
	case []string:
		return terms.QueryTerms(def, tv), nil
	case []any:
		words := make([]string, 0, len(tv))
		for _, w := range tv {
			s, ok := w.(string)
			if !ok {
				return nil, oderrors.TypeMismatch(def.Name, "inverted index query terms must be strings, got %T", w)
			}
			words = append(words, s)
		}
		return terms.QueryTerms(def, words), nil
	default:
		return nil, oderrors.TypeMismatch(def.Name, "inverted index query must be a string or a list of strings, got %T", v)
	}
}

func (db *DB) anyTypeHas(types []*schema.ObjectType, attr string) bool {
	for _, t := range types {
		if _, ok := t.Attrs[attr]; ok {
			return true
		}
	}
	return false
}

func (db *DB) parentFilter(pf *ParentFilter) (*planner.ParentFilter, error) {
	pt, err := db.lookupType(pf.Type)
	if err != nil {
		return nil, err
	}
	out := &planner.ParentFilter{TypeID: pt.ID}
	switch v := pf.ID.(type) {
	case nil:
	case query.QExpr:
		out.ID = &v
	case *query.QExpr:
		out.ID = v
	default:
		e := query.Eq(v)
		out.ID = &e
	}
	if out.ID != nil {
		if err := out.ID.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// query runs q under the caller's savepoint. idsOnly skips attribute
// columns and the SIMPLE blob entirely.
func (db *DB) query(ctx context.Context, env *ops.Env, q *Query, idsOnly bool) ([]hit, error) {
	p, err := db.resolve(q)
	if err != nil {
		return nil, err
	}

	ranked := len(p.searches) > 0
	kind := "relational"
	if ranked {
		kind = "ranked"
	}
	db.metrics.Queries.WithLabelValues(kind).Inc()

	var scores map[ops.Key]float64
	if ranked {
		scores, err = db.search(ctx, env, p, q.Limit)
		if err != nil {
			return nil, err
		}
		if len(scores) == 0 {
			return nil, nil
		}
	}

	var projection []string
	switch {
	case idsOnly:
		projection = []string{storage.ColID}
	case len(q.Attrs) > 0:
		projection = q.Attrs
	}

	var hits []hit
	for _, t := range p.types {
		preds, ok := predicatesFor(t, p.attrs)
		if !ok {
			continue
		}
		req := &ops.FetchRequest{
			Type:     t,
			Preds:    preds,
			Parent:   p.parent,
			Attrs:    projection,
			Distinct: q.Distinct,
		}
		if ranked {
			req.RestrictIDs = true
			for k := range scores {
				if k.TypeID == t.ID {
					req.IDs = append(req.IDs, k.ID)
				}
			}
			if len(req.IDs) == 0 {
				continue
			}
		} else if q.Limit > 0 {
			req.Limit = q.Limit - len(hits)
		}

		recs, err := ops.Fetch(ctx, env, req)
		if err != nil {
			return nil, wrapSQL("query objects", err)
		}
		for _, rec := range recs {
			hits = append(hits, hit{rec: rec, score: scores[rec.Key()]})
		}
		if !ranked && q.Limit > 0 && len(hits) >= q.Limit {
			break
		}
	}

	if ranked {
		sort.SliceStable(hits, func(i, j int) bool {
			a, b := hits[i], hits[j]
			if a.score != b.score {
				return a.score > b.score
			}
			if a.rec.Type.ID != b.rec.Type.ID {
				return a.rec.Type.ID < b.rec.Type.ID
			}
			return a.rec.ID < b.rec.ID
		})
	}
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// predicatesFor reports false when t lacks a filtered attribute.
func predicatesFor(t *schema.ObjectType, attrs map[string]query.QExpr) ([]planner.Predicate, bool) {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	preds := make([]planner.Predicate, 0, len(names))
	for _, name := range names {
		if name != storage.ColID {
			if _, ok := t.Attrs[name]; !ok {
				return nil, false
			}
		}
		preds = append(preds, planner.Predicate{Attr: name, Expr: attrs[name]})
	}
	return preds, true
}

// search runs every inverted index search of p and intersects the results,
// multiplying the scores of objects found by more than one index.
func (db *DB) search(ctx context.Context, env *ops.Env, p *plan, limit int) (map[ops.Key]float64, error) {
	// The search limit only holds when nothing else can drop its hits.
	if len(p.searches) > 1 || len(p.attrs) > 0 || p.parent != nil {
		limit = 0
	}

	var combined map[ops.Key]float64
	for _, req := range p.searches {
		if len(req.Terms) == 0 {
			return nil, nil
		}
		for _, t := range p.types {
			if containsString(t.InvertedIndexes(), req.Index) {
				req.TypeIDs = append(req.TypeIDs, t.ID)
			}
		}
		if len(req.TypeIDs) == 0 {
			return nil, nil
		}
		req.Limit = limit

		res, err := ops.Search(ctx, env, req)
		if err != nil {
			return nil, wrapSQL("search "+req.Index, err)
		}
		db.metrics.SearchPasses.Observe(float64(res.Passes))
		db.log.Debug("inverted index search",
			zap.String("index", req.Index),
			zap.String("terms", strings.Join(req.Terms, " ")),
			zap.Int("passes", res.Passes),
			zap.Int("matches", len(res.Scores)))

		if combined == nil {
			combined = res.Scores
			continue
		}
		for k, s := range combined {
			if other, ok := res.Scores[k]; ok {
				combined[k] = s * other
			} else {
				delete(combined, k)
			}
		}
		if len(combined) == 0 {
			return nil, nil
		}
	}
	return combined, nil
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// InvertedIndexTerms lists the terms of an index with their object counts.
// With associated terms, it lists the other terms of the objects that
// contain all associated terms, counted over those objects. prefix
// restricts the listed terms.
func (db *DB) InvertedIndexTerms(ctx context.Context, name string, associated []string, prefix string) ([]TermCount, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.reg.indexes[name]; !ok {
		return nil, oderrors.UnknownIndex(name)
	}
	assoc := make([]string, len(associated))
	for i, a := range associated {
		assoc[i] = strings.ToLower(a)
	}

	var out []TermCount
	err := db.withSavepoint(ctx, func(env *ops.Env) error {
		list, err := ops.Terms(ctx, env, name, assoc, prefix)
		if err != nil {
			return wrapSQL("list terms", err)
		}
		out = make([]TermCount, len(list))
		for i, tc := range list {
			out[i] = TermCount{Term: tc.Term, Count: tc.Count}
		}
		return nil
	})
	return out, err
}
