package socio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"sociosflow/apperr"
	"sociosflow/logging"
)

// Provisioner creates, reactivates or reuses the member account of an
// approved applicant.
type Provisioner struct {
	store     Store
	now       func() time.Time
	passwords func() (string, error)
	hashCost  int
	logger    *slog.Logger
}

func NewProvisioner(store Store, logger *slog.Logger) *Provisioner {
	if store == nil {
		store = NewRepository()
	}
	return &Provisioner{
		store:     store,
		now:       time.Now,
		passwords: func() (string, error) { return GeneratePassword(PasswordLength) },
		hashCost:  bcrypt.DefaultCost,
		logger:    logging.Resolve(logger),
	}
}

func (p *Provisioner) WithClock(now func() time.Time) *Provisioner {
	p.now = now
	return p
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (p *Provisioner) WithHashCost(cost int) *Provisioner {
	p.hashCost = cost
	return p
}

// ProvisionOrReactivate runs inside the caller's transaction. Any failure
// is returned as an internal error so the caller aborts the whole unit.
func (p *Provisioner) ProvisionOrReactivate(ctx context.Context, tx pgx.Tx, applicant Applicant) (Result, error) {
	email := strings.ToLower(strings.TrimSpace(applicant.Email))
	if email == "" {
		return Result{}, apperr.New(apperr.KindValidation, "socio: applicant email is required")
	}
	first, last := SplitName(applicant.FullName, email)

	existing, err := p.store.FindByEmailForUpdate(ctx, tx, email)
	switch {
	case err == nil && existing.Activo:
		p.logger.Info("socio account reused",
			"event", "socio_account_reused",
			"socio_id", existing.ID,
		)
		return Result{AccountID: existing.ID, ReusedExisting: true}, nil
	case err == nil:
		return p.reactivate(ctx, tx, existing, applicant, first, last)
	case errors.Is(err, ErrAccountNotFound):
		return p.create(ctx, tx, email, applicant, first, last)
	default:
		return Result{}, apperr.Internal("socio: lookup account", err)
	}
}

func (p *Provisioner) reactivate(ctx context.Context, tx pgx.Tx, acc Account, applicant Applicant, first, last string) (Result, error) {
	password, hash, err := p.newCredential()
	if err != nil {
		return Result{}, err
	}

	enrolled := p.now()
	if acc.FechaIngreso != nil {
		enrolled = *acc.FechaIngreso
	}
	if err := p.store.Reactivate(ctx, tx, acc.ID, ReactivateParams{
		FirstName:    first,
		LastName:     last,
		Phone:        strings.TrimSpace(applicant.Phone),
		RUT:          strings.TrimSpace(applicant.RUT),
		City:         strings.TrimSpace(applicant.City),
		Region:       strings.TrimSpace(applicant.Region),
		PasswordHash: hash,
		FechaIngreso: enrolled,
	}); err != nil {
		return Result{}, apperr.Internal("socio: reactivate account", err)
	}

	p.logger.Info("socio account reactivated",
		"event", "socio_account_reactivated",
		"socio_id", acc.ID,
	)
	return Result{AccountID: acc.ID, GeneratedPassword: &password, Reactivated: true}, nil
}

func (p *Provisioner) create(ctx context.Context, tx pgx.Tx, email string, applicant Applicant, first, last string) (Result, error) {
	password, hash, err := p.newCredential()
	if err != nil {
		return Result{}, err
	}

	id, err := p.store.Create(ctx, tx, CreateParams{
		Email:          email,
		FirstName:      first,
		LastName:       last,
		Phone:          strings.TrimSpace(applicant.Phone),
		RUT:            strings.TrimSpace(applicant.RUT),
		City:           strings.TrimSpace(applicant.City),
		Region:         strings.TrimSpace(applicant.Region),
		PasswordHash:   hash,
		MembershipType: defaultMembershipType,
		FechaIngreso:   p.now(),
	})
	if err != nil {
		return Result{}, apperr.Internal("socio: create account", err)
	}

	p.logger.Info("socio account created",
		"event", "socio_account_created",
		"socio_id", id,
	)
	return Result{AccountID: id, GeneratedPassword: &password}, nil
}

func (p *Provisioner) newCredential() (string, string, error) {
	password, err := p.passwords()
	if err != nil {
		return "", "", apperr.Internal("socio: generate password", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.hashCost)
	if err != nil {
		return "", "", apperr.Internal("socio: hash password", err)
	}
	return password, string(hash), nil
}

// SplitName derives first and last name from a full name: the first token is
// the first name and the rest the last name. An empty name falls back to the
// local part of email.
func SplitName(fullName, email string) (string, string) {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
		return local, ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
