package socio

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sociosflow/db"
)

// ErrAccountNotFound is returned when no account matches the lookup.
var ErrAccountNotFound = errors.New("socio: account not found")

// Store defines the data access the provisioner needs. Every method runs in
// the caller's transaction.
type Store interface {
	FindByEmailForUpdate(ctx context.Context, tx pgx.Tx, email string) (Account, error)
	Create(ctx context.Context, tx pgx.Tx, params CreateParams) (int64, error)
	Reactivate(ctx context.Context, tx pgx.Tx, id int64, params ReactivateParams) error
}

// Repository is the PostgreSQL Store. It holds no pool; the enclosing
// approval transaction is passed to every call.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// FindByEmailForUpdate locks the account whose lower-cased email matches.
func (r *Repository) FindByEmailForUpdate(ctx context.Context, tx pgx.Tx, email string) (Account, error) {
	const selectSQL = `
SELECT id, email, first_name, last_name, activo, estado_socio, membership_type, fecha_ingreso
FROM socios
WHERE lower(email) = lower($1)
FOR UPDATE
`
	var acc Account
	err := tx.QueryRow(ctx, selectSQL, email).Scan(
		&acc.ID,
		&acc.Email,
		&acc.FirstName,
		&acc.LastName,
		&acc.Activo,
		&acc.EstadoSocio,
		&acc.MembershipType,
		&acc.FechaIngreso,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("socio: find by email: %w", err)
	}
	return acc, nil
}

// Create inserts an active account. A concurrent insert of the same email is
// reported as db.ErrConcurrentUpdate so the enclosing unit is replayed and
// then finds the peer's account.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, params CreateParams) (int64, error) {
	const insertSQL = `
INSERT INTO socios (email, first_name, last_name, phone, rut, city, region, password_hash,
                    activo, estado_socio, membership_type, fecha_ingreso)
VALUES (lower($1), $2, $3, $4, $5, $6, $7, $8, true, 'activo', $9, $10)
RETURNING id
`
	var id int64
	err := tx.QueryRow(ctx, insertSQL,
		params.Email,
		params.FirstName,
		params.LastName,
		nullableString(params.Phone),
		nullableString(params.RUT),
		nullableString(params.City),
		nullableString(params.Region),
		params.PasswordHash,
		params.MembershipType,
		params.FechaIngreso,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("socio: create account: %w", db.ErrConcurrentUpdate)
		}
		return 0, fmt.Errorf("socio: create account: %w", err)
	}
	return id, nil
}

// Reactivate refreshes contact data and credentials on an inactive account.
// An existing enrollment date is kept.
func (r *Repository) Reactivate(ctx context.Context, tx pgx.Tx, id int64, params ReactivateParams) error {
	const updateSQL = `
UPDATE socios
SET first_name    = $2,
    last_name     = $3,
    phone         = COALESCE($4, phone),
    rut           = COALESCE($5, rut),
    city          = COALESCE($6, city),
    region        = COALESCE($7, region),
    password_hash = $8,
    activo        = true,
    estado_socio  = 'activo',
    fecha_ingreso = COALESCE(fecha_ingreso, $9),
    updated_at    = now()
WHERE id = $1
`
	tag, err := tx.Exec(ctx, updateSQL,
		id,
		params.FirstName,
		params.LastName,
		nullableString(params.Phone),
		nullableString(params.RUT),
		nullableString(params.City),
		nullableString(params.Region),
		params.PasswordHash,
		params.FechaIngreso,
	)
	if err != nil {
		return fmt.Errorf("socio: reactivate account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
