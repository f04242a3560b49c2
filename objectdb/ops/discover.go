package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/ministore/objectdb/objectdb/storage"
)

// TermCount is a term with its object count.
type TermCount struct {
	Term  string
	Count int64
}

// Terms lists the terms of an index. Without associated terms every live
// term is returned with its global count, most frequent first. With
// associated terms only objects containing all of them are considered, and
// the result lists the other terms of those objects with how many of them
// each appears in. prefix restricts the listed terms, case-insensitively.
func Terms(ctx context.Context, env *Env, index string, associated []string, prefix string) ([]TermCount, error) {
	d := env.Dialect
	termsTable := d.Quote(storage.TermsTable(index))
	postings := d.Quote(storage.PostingsTable(index))
	b := d.Builder()

	var stmt string
	assoc := dedupe(associated)
	if len(assoc) == 0 {
		where := "global_count > 0"
		if prefix != "" {
			where += " AND term_lower LIKE " + b.Arg(likePrefix(prefix)) + ` ESCAPE '\'`
		}
		stmt = fmt.Sprintf("SELECT term, global_count FROM %s WHERE %s ORDER BY global_count DESC, term_lower",
			termsTable, where)
	} else {
		states, err := lookupTerms(ctx, env, index, assoc)
		if err != nil {
			return nil, err
		}
		if len(states) < len(assoc) {
			return nil, nil
		}
		ids := make([]int64, len(states))
		for i, s := range states {
			ids[i] = s.id
		}
		matchIDs := b.Int64List(ids)
		matchCount := b.Arg(len(ids))
		excludeIDs := b.Int64List(ids)
		where := "p.term_id NOT IN " + excludeIDs
		if prefix != "" {
			where += " AND t.term_lower LIKE " + b.Arg(likePrefix(prefix)) + ` ESCAPE '\'`
		}
		stmt = fmt.Sprintf(`SELECT t.term, COUNT(*) AS n
FROM %[1]s p
JOIN (SELECT object_type, object_id FROM %[1]s WHERE term_id IN %[3]s
      GROUP BY object_type, object_id HAVING COUNT(*) = %[4]s) m
  ON m.object_type = p.object_type AND m.object_id = p.object_id
JOIN %[2]s t ON t.id = p.term_id
WHERE %[5]s
GROUP BY t.id, t.term, t.term_lower
ORDER BY n DESC, t.term_lower`, postings, termsTable, matchIDs, matchCount, where)
	}

	rows, err := env.Q.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("list terms of %s: %w", index, err)
	}
	defer rows.Close()
	var out []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.ToLower(prefix)) + "%"
}

// Sweep deletes terms whose global count dropped to zero and that no
// posting references. It returns the number of terms removed.
func Sweep(ctx context.Context, env *Env, index string) (int64, error) {
	d := env.Dialect
	termsTable := d.Quote(storage.TermsTable(index))
	stmt := fmt.Sprintf(`DELETE FROM %[1]s WHERE global_count <= 0
		AND NOT EXISTS (SELECT 1 FROM %[2]s p WHERE p.term_id = %[1]s.id)`,
		termsTable, d.Quote(storage.PostingsTable(index)))
	res, err := env.Q.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", index, err)
	}
	return res.RowsAffected()
}
