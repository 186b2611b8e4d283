package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags test connections so chaos only hits our backends.
const ApplicationName = "postulaciones-test"

// Harness owns a migrated database for one test run.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	teardown  func(context.Context) error
}

// NewHarness picks a database in this order: DATABASE_URL, then
// STRESS_TEST_PG_DSN, then a Docker container, then a local server. Shared
// databases get an isolated schema.
func NewHarness(ctx context.Context) (*Harness, error) {
	var (
		dsn    string
		shared bool
		pgC    = &PGContainer{}
		err    error
	)
	switch {
	case os.Getenv("DATABASE_URL") != "":
		dsn, shared = os.Getenv("DATABASE_URL"), true
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn, shared = os.Getenv("STRESS_TEST_PG_DSN"), true
	case DockerAvailable(ctx):
		pgC, dsn, err = StartPostgres16(ctx, "")
	default:
		dsn, err = InitLocalDatabase(ctx)
	}
	if err != nil {
		return nil, err
	}

	pool, teardown, err := ApplyMigrations(ctx, dsn, shared)
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, err
	}
	return &Harness{container: pgC, pool: pool, teardown: teardown}, nil
}

func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// Close drops the isolated schema, closes the pool and stops the container.
func (h *Harness) Close(ctx context.Context) error {
	var firstErr error
	if h.teardown != nil {
		firstErr = h.teardown(ctx)
	}
	h.pool.Close()
	if err := h.container.Terminate(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// CreateUser inserts a staff user and returns its id.
func (h *Harness) CreateUser(ctx context.Context, email, fullName, role string) (int64, error) {
	var id int64
	err := h.pool.QueryRow(ctx,
		`INSERT INTO users (email, full_name, role) VALUES ($1, $2, $3) RETURNING id`,
		email, fullName, role).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("seed user: %w", err)
	}
	return id, nil
}

// CreatePostulacion inserts a pendiente application requiring quorum votes.
func (h *Harness) CreatePostulacion(ctx context.Context, fullName, email string, quorum int) (int64, error) {
	var id int64
	err := h.pool.QueryRow(ctx,
		`INSERT INTO postulaciones (full_name, email, city, approvals_required) VALUES ($1, $2, 'Santiago', $3) RETURNING id`,
		fullName, email, quorum).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("seed postulacion: %w", err)
	}
	return id, nil
}

// CreateSocio inserts a member account, active or not.
func (h *Harness) CreateSocio(ctx context.Context, email string, active bool) (int64, error) {
	estado := "inactivo"
	if active {
		estado = "activo"
	}
	var id int64
	err := h.pool.QueryRow(ctx,
		`INSERT INTO socios (email, first_name, activo, estado_socio) VALUES (lower($1), 'Seed', $2, $3) RETURNING id`,
		email, active, estado).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("seed socio: %w", err)
	}
	return id, nil
}

// DockerAvailable reports whether a Docker daemon answers.
func DockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
