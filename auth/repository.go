package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sociosflow/apperr"
	"sociosflow/db"
)

// ErrUserNotFound signals that the user does not exist.
var ErrUserNotFound = apperr.New(apperr.KindNotFound, "auth: user not found")

// Repository resolves staff identities. Lookups run on the caller's querier
// so a service holding a transaction never waits for a second connection.
type Repository interface {
	GetUserByID(ctx context.Context, q db.Querier, userID int64) (User, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct{}

// NewRepository creates a PostgreSQL-backed user repository.
func NewRepository() *PGRepository {
	return &PGRepository{}
}

// GetUserByID retrieves a user by ID.
func (r *PGRepository) GetUserByID(ctx context.Context, q db.Querier, userID int64) (User, error) {
	const selectSQL = `
		SELECT id, email, full_name, role, created_at
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(q.QueryRow(ctx, selectSQL, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth: get user by id: %w", err)
	}

	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}
	user.Role = NormalizeRole(user.Role)
	return user, nil
}
