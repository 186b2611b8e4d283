package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that returns rows only when an invariant is broken.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_count_matches_votes",
			SQL: `SELECT p.id, p.approvals_count, COALESCE(a.n, 0)
                  FROM postulaciones p
                  LEFT JOIN (SELECT postulacion_id, COUNT(DISTINCT approver_id) AS n
                             FROM postulacion_approvals GROUP BY postulacion_id) a
                         ON a.postulacion_id = p.id
                  WHERE p.approvals_count <> COALESCE(a.n, 0)`,
		},
		{
			Name: "O2_quorum_iff_aprobada",
			SQL: `SELECT id, status, approvals_count, approvals_required FROM postulaciones
                  WHERE (status = 'aprobada') <> (approvals_count >= approvals_required)`,
		},
		{
			Name: "O3_socio_iff_aprobada",
			SQL: `SELECT id, status, socio_id FROM postulaciones
                  WHERE (status = 'aprobada') <> (socio_id IS NOT NULL)
                     OR (status = 'aprobada') <> (approved_at IS NOT NULL)`,
		},
		{
			Name: "O4_reason_iff_rechazada",
			SQL: `SELECT id, status, rejection_reason FROM postulaciones
                  WHERE (status = 'rechazada') <> (rejection_reason IS NOT NULL)
                     OR (status = 'rechazada') <> (rejected_at IS NOT NULL)`,
		},
		{
			Name: "O5_reviewer_cap",
			SQL: `SELECT postulacion_id, COUNT(*) FROM postulacion_reviewers
                  GROUP BY postulacion_id HAVING COUNT(*) > 2`,
		},
		{
			Name: "O6_count_not_above_quorum",
			SQL:  `SELECT id, approvals_count, approvals_required FROM postulaciones WHERE approvals_count > approvals_required`,
		},
		{
			Name: "O7_single_account_per_email",
			SQL:  `SELECT lower(email), COUNT(*) FROM socios GROUP BY lower(email) HAVING COUNT(*) > 1`,
		},
		{
			Name: "O8_vote_event_per_approval",
			SQL: `SELECT p.id FROM postulaciones p
                  WHERE (SELECT COUNT(*) FROM postulacion_approvals a WHERE a.postulacion_id = p.id)
                     <> (SELECT COUNT(*) FROM postulacion_events e WHERE e.postulacion_id = p.id AND e.type = 'VOTE_CAST')`,
		},
		{
			Name: "O9_approved_socio_active",
			SQL: `SELECT p.id, s.id FROM postulaciones p JOIN socios s ON s.id = p.socio_id
                  WHERE NOT s.activo OR s.estado_socio <> 'activo'`,
		},
	}
}

// Run executes every oracle and returns the first failing one with a sample
// row, or an empty name when all hold.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
