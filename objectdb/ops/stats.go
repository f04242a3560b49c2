package ops

import (
	"context"
	"fmt"

	"github.com/ministore/objectdb/objectdb/storage"
)

// IndexStats describes one inverted index.
type IndexStats struct {
	Terms       int64
	LiveTerms   int64
	Postings    int64
	ObjectCount int64
}

// Stats gathers per-type row counts and per-index statistics.
type Stats struct {
	Objects map[string]int64
	Indexes map[string]IndexStats
}

func CollectStats(ctx context.Context, env *Env) (*Stats, error) {
	d := env.Dialect
	st := &Stats{Objects: map[string]int64{}, Indexes: map[string]IndexStats{}}

	for _, t := range env.Schema.Types() {
		var n int64
		stmt := "SELECT COUNT(*) FROM " + d.Quote(storage.ObjectTable(t.Name))
		if err := env.Q.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.Name, err)
		}
		st.Objects[t.Name] = n
	}

	rows, err := env.Q.QueryContext(ctx, env.SQL.ListIndexes)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	var names []string
	counts := map[string]int64{}
	for rows.Next() {
		var (
			name           string
			minLen, maxLen int64
			ignore         string
			objects        int64
		)
		if err := rows.Scan(&name, &minLen, &maxLen, &ignore, &objects); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
		counts[name] = objects
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, name := range names {
		is := IndexStats{ObjectCount: counts[name]}
		stmt := fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(CASE WHEN global_count > 0 THEN 1 ELSE 0 END), 0) FROM %s",
			d.Quote(storage.TermsTable(name)))
		if err := env.Q.QueryRowContext(ctx, stmt).Scan(&is.Terms, &is.LiveTerms); err != nil {
			return nil, fmt.Errorf("count terms of %s: %w", name, err)
		}
		stmt = "SELECT COUNT(*) FROM " + d.Quote(storage.PostingsTable(name))
		if err := env.Q.QueryRowContext(ctx, stmt).Scan(&is.Postings); err != nil {
			return nil, fmt.Errorf("count postings of %s: %w", name, err)
		}
		st.Indexes[name] = is
	}
	return st, nil
}
