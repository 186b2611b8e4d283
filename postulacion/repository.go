package postulacion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sociosflow/apperr"
	"sociosflow/db"
)

var (
	ErrNotFound       = apperr.New(apperr.KindNotFound, "postulacion: not found")
	ErrAlreadyDecided = apperr.New(apperr.KindDomainState, "postulacion: already decided")
	ErrAlreadyVoted   = apperr.New(apperr.KindConflict, "postulacion: approver already voted")
)

// Store defines the data access used by the decision engines. Every method
// runs inside the caller's transaction.
type Store interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Postulacion, error)
	InsertApproval(ctx context.Context, tx pgx.Tx, params NewApproval) (Approval, error)
	CountApprovals(ctx context.Context, tx pgx.Tx, id int64) (int, error)
	SaveDecision(ctx context.Context, tx pgx.Tx, d Decision) (Postulacion, error)
	MarkRejected(ctx context.Context, tx pgx.Tx, id int64, reason string, at time.Time) (Postulacion, error)
	ListApprovals(ctx context.Context, tx pgx.Tx, id int64) ([]Approval, error)
	AppendEvent(ctx context.Context, tx pgx.Tx, ev Event) error
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// GetForUpdate loads the postulacion and holds its row lock until the
// transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Postulacion, error) {
	p, err := Scan(tx.QueryRow(ctx, `SELECT `+Columns+` FROM postulaciones WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Postulacion{}, ErrNotFound
		}
		return Postulacion{}, fmt.Errorf("postulacion: lock row: %w", err)
	}
	return p, nil
}

// InsertApproval records a vote. The (postulacion_id, approver_id) unique key
// turns a repeat vote into ErrAlreadyVoted.
func (r *Repository) InsertApproval(ctx context.Context, tx pgx.Tx, params NewApproval) (Approval, error) {
	const insertSQL = `
INSERT INTO postulacion_approvals (postulacion_id, approver_id, approver_role, comment)
VALUES ($1, $2, $3, $4)
RETURNING id, postulacion_id, approver_id, approver_role, comment, created_at
`
	a, err := ScanApproval(tx.QueryRow(ctx, insertSQL, params.PostulacionID, params.ApproverID, params.ApproverRole, params.Comment))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Approval{}, ErrAlreadyVoted
		}
		return Approval{}, fmt.Errorf("postulacion: insert approval: %w", err)
	}
	return a, nil
}

// CountApprovals counts distinct approvers; it is the source of truth for
// approvals_count.
func (r *Repository) CountApprovals(ctx context.Context, tx pgx.Tx, id int64) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(DISTINCT approver_id) FROM postulacion_approvals WHERE postulacion_id = $1`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("postulacion: count approvals: %w", err)
	}
	return n, nil
}

// SaveDecision persists the recomputed count and status. approved_at and
// socio_id are only ever set, never cleared.
func (r *Repository) SaveDecision(ctx context.Context, tx pgx.Tx, d Decision) (Postulacion, error) {
	const updateSQL = `
UPDATE postulaciones
SET status          = $2,
    approvals_count = $3,
    socio_id        = COALESCE($4, socio_id),
    approved_at     = COALESCE($5, approved_at),
    updated_at      = now()
WHERE id = $1
RETURNING ` + Columns

	p, err := Scan(tx.QueryRow(ctx, updateSQL, d.PostulacionID, string(d.Status), d.ApprovalsCount, d.SocioID, d.ApprovedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Postulacion{}, ErrNotFound
		}
		return Postulacion{}, fmt.Errorf("postulacion: save decision: %w", err)
	}
	return p, nil
}

// MarkRejected moves the postulacion to rechazada. approvals_count is left
// as it was.
func (r *Repository) MarkRejected(ctx context.Context, tx pgx.Tx, id int64, reason string, at time.Time) (Postulacion, error) {
	const updateSQL = `
UPDATE postulaciones
SET status           = 'rechazada',
    rejection_reason = $2,
    rejected_at      = $3,
    updated_at       = now()
WHERE id = $1
RETURNING ` + Columns

	p, err := Scan(tx.QueryRow(ctx, updateSQL, id, reason, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Postulacion{}, ErrNotFound
		}
		return Postulacion{}, fmt.Errorf("postulacion: mark rejected: %w", err)
	}
	return p, nil
}

// ListApprovals returns votes oldest first.
func (r *Repository) ListApprovals(ctx context.Context, tx pgx.Tx, id int64) ([]Approval, error) {
	rows, err := tx.Query(ctx, `
SELECT id, postulacion_id, approver_id, approver_role, comment, created_at
FROM postulacion_approvals
WHERE postulacion_id = $1
ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("postulacion: list approvals: %w", err)
	}
	defer rows.Close()

	out := make([]Approval, 0, DefaultApprovalsRequired)
	for rows.Next() {
		a, err := ScanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postulacion: scan approval: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postulacion: iterate approvals: %w", err)
	}
	return out, nil
}

// ApprovalsFor loads the votes of every id in one query, grouped by
// postulacion and ordered oldest first.
func (r *Repository) ApprovalsFor(ctx context.Context, q db.Querier, ids []int64) (map[int64][]Approval, error) {
	out := make(map[int64][]Approval, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx, `
SELECT id, postulacion_id, approver_id, approver_role, comment, created_at
FROM postulacion_approvals
WHERE postulacion_id = ANY($1)
ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("postulacion: list approvals batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := ScanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postulacion: scan approval: %w", err)
		}
		out[a.PostulacionID] = append(out[a.PostulacionID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postulacion: iterate approvals: %w", err)
	}
	return out, nil
}

func (r *Repository) AppendEvent(ctx context.Context, tx pgx.Tx, ev Event) error {
	return AppendEvent(ctx, tx, ev)
}

// AppendEvent writes an audit entry with tx. Reviewer assignment shares it.
func AppendEvent(ctx context.Context, tx pgx.Tx, ev Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("postulacion: marshal event payload: %w", err)
	}

	const insertSQL = `
INSERT INTO postulacion_events (postulacion_id, type, actor_id, payload)
VALUES ($1, $2, $3, $4)
`
	if _, err := tx.Exec(ctx, insertSQL, ev.PostulacionID, ev.Type, ev.ActorID, payloadBytes); err != nil {
		return fmt.Errorf("postulacion: insert event: %w", err)
	}
	return nil
}

// ScanApproval reads id, postulacion_id, approver_id, approver_role, comment,
// created_at.
func ScanApproval(r pgx.Row) (Approval, error) {
	var a Approval
	err := r.Scan(&a.ID, &a.PostulacionID, &a.ApproverID, &a.ApproverRole, &a.Comment, &a.CreatedAt)
	return a, err
}
