package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the SQL invariants the stress tests assert after a run. Each
// query selects violating rows; an empty result set means the invariant held.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_pending_per_pair",
			SQL: `SELECT requester_id, resource_id, COUNT(*) FROM requests
                  WHERE status = 'pending'
                  GROUP BY requester_id, resource_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_no_self_requests",
			SQL:  `SELECT id FROM requests WHERE requester_id = owner_id`,
		},
		{
			Name: "O3_owner_snapshot_intact",
			SQL: `SELECT r.id FROM requests r
                  JOIN listings l ON l.id = r.resource_id
                  WHERE r.owner_id <> l.owner_id`,
		},
		{
			Name: "O4_attachment_exclusive",
			SQL:  `SELECT id FROM requests WHERE attachment_url IS NOT NULL AND attachment_file_id IS NOT NULL`,
		},
		{
			Name: "O5_rental_dates_ordered",
			SQL: `SELECT id FROM requests
                  WHERE kind = 'rental' AND (start_date IS NULL OR end_date IS NULL OR start_date >= end_date)`,
		},
		{
			Name: "O6_rental_price_consistent",
			SQL: `SELECT id FROM requests
                  WHERE kind = 'rental'
                    AND price_total_cents <> unit_rate_cents *
                        CEIL(EXTRACT(EPOCH FROM (end_date - start_date)) / 86400)`,
		},
		{
			Name: "O7_counters_non_negative",
			SQL:  `SELECT id FROM listings WHERE applicants < 0 OR views < 0`,
		},
		{
			Name: "O8_status_domain",
			SQL: `SELECT id FROM requests
                  WHERE status NOT IN ('pending','approved','rejected','cancelled','completed')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
