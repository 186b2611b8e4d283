package reviewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sociosflow/apperr"
	"sociosflow/auth"
	"sociosflow/db"
	"sociosflow/postulacion"
)

var (
	ErrAlreadyAssigned = apperr.New(apperr.KindConflict, "reviewer: already assigned")
	ErrLimitReached    = apperr.New(apperr.KindDomainState, "reviewer: maximum of 2 reviewers")
	ErrNotDirector     = apperr.New(apperr.KindValidation, "reviewer: user lacks a director role")
	ErrNotAssigned     = apperr.New(apperr.KindAuthorization, "reviewer: actor is not assigned to this postulacion")
	ErrFeedbackTooLong = apperr.New(apperr.KindValidation, "reviewer: feedback exceeds 5000 characters")
	ErrReviewerMissing = apperr.New(apperr.KindNotFound, "reviewer: user not found")
)

// Store defines the data access used by Service. Mutating methods run in the
// caller's transaction.
type Store interface {
	LockPostulacion(ctx context.Context, tx pgx.Tx, postulacionID int64) (postulacion.Postulacion, error)
	PostulacionExists(ctx context.Context, q db.Querier, postulacionID int64) (bool, error)
	Insert(ctx context.Context, tx pgx.Tx, a NewAssignment) (int64, error)
	Delete(ctx context.Context, tx pgx.Tx, postulacionID, reviewerID int64) (bool, error)
	UpdateFeedback(ctx context.Context, tx pgx.Tx, postulacionID, reviewerID int64, feedback *string) error
	List(ctx context.Context, q db.Querier, postulacionID int64) ([]Reviewer, error)
	AppendEvent(ctx context.Context, tx pgx.Tx, ev postulacion.Event) error
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// LockPostulacion serializes assignment against concurrent assigners of the
// same postulacion.
func (r *Repository) LockPostulacion(ctx context.Context, tx pgx.Tx, postulacionID int64) (postulacion.Postulacion, error) {
	p, err := postulacion.Scan(tx.QueryRow(ctx, `SELECT `+postulacion.Columns+` FROM postulaciones WHERE id = $1 FOR UPDATE`, postulacionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return postulacion.Postulacion{}, postulacion.ErrNotFound
		}
		return postulacion.Postulacion{}, fmt.Errorf("reviewer: lock postulacion: %w", err)
	}
	return p, nil
}

func (r *Repository) PostulacionExists(ctx context.Context, q db.Querier, postulacionID int64) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM postulaciones WHERE id = $1)`, postulacionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("reviewer: check postulacion: %w", err)
	}
	return exists, nil
}

// Insert adds the assignment; the (postulacion_id, reviewer_id) key maps a
// duplicate to ErrAlreadyAssigned.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, a NewAssignment) (int64, error) {
	const insertSQL = `
INSERT INTO postulacion_reviewers (postulacion_id, reviewer_id, assigned_by)
VALUES ($1, $2, $3)
RETURNING id
`
	var id int64
	if err := tx.QueryRow(ctx, insertSQL, a.PostulacionID, a.ReviewerID, a.AssignedBy).Scan(&id); err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrAlreadyAssigned
		}
		return 0, fmt.Errorf("reviewer: insert assignment: %w", err)
	}
	return id, nil
}

// Delete reports whether a row was removed.
func (r *Repository) Delete(ctx context.Context, tx pgx.Tx, postulacionID, reviewerID int64) (bool, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM postulacion_reviewers WHERE postulacion_id = $1 AND reviewer_id = $2`, postulacionID, reviewerID)
	if err != nil {
		return false, fmt.Errorf("reviewer: delete assignment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateFeedback returns ErrNotAssigned when reviewerID holds no assignment.
func (r *Repository) UpdateFeedback(ctx context.Context, tx pgx.Tx, postulacionID, reviewerID int64, feedback *string) error {
	const updateSQL = `
UPDATE postulacion_reviewers
SET feedback = $3, updated_at = now()
WHERE postulacion_id = $1 AND reviewer_id = $2
`
	tag, err := tx.Exec(ctx, updateSQL, postulacionID, reviewerID, feedback)
	if err != nil {
		return fmt.Errorf("reviewer: update feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAssigned
	}
	return nil
}

const selectReviewers = `
SELECT pr.id, pr.postulacion_id, pr.reviewer_id, COALESCE(u.full_name, ''), COALESCE(u.email, ''),
       COALESCE(u.role, ''), pr.assigned_by, pr.feedback, pr.created_at, pr.updated_at
FROM postulacion_reviewers pr
LEFT JOIN users u ON u.id = pr.reviewer_id
`

func (r *Repository) List(ctx context.Context, q db.Querier, postulacionID int64) ([]Reviewer, error) {
	grouped, err := r.ListFor(ctx, q, []int64{postulacionID})
	if err != nil {
		return nil, err
	}
	return grouped[postulacionID], nil
}

// ListFor loads the reviewers of every id in one query, grouped by
// postulacion and ordered by assignment time.
func (r *Repository) ListFor(ctx context.Context, q db.Querier, postulacionIDs []int64) (map[int64][]Reviewer, error) {
	out := make(map[int64][]Reviewer, len(postulacionIDs))
	if len(postulacionIDs) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx, selectReviewers+`WHERE pr.postulacion_id = ANY($1) ORDER BY pr.created_at, pr.id`, postulacionIDs)
	if err != nil {
		return nil, fmt.Errorf("reviewer: list: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rv Reviewer
		if err := rows.Scan(
			&rv.ID,
			&rv.PostulacionID,
			&rv.ReviewerID,
			&rv.Name,
			&rv.Email,
			&rv.Role,
			&rv.AssignedBy,
			&rv.Feedback,
			&rv.CreatedAt,
			&rv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("reviewer: scan: %w", err)
		}
		rv.Role = auth.NormalizeRole(rv.Role)
		out[rv.PostulacionID] = append(out[rv.PostulacionID], rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reviewer: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) AppendEvent(ctx context.Context, tx pgx.Tx, ev postulacion.Event) error {
	return postulacion.AppendEvent(ctx, tx, ev)
}
