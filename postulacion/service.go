package postulacion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"sociosflow/apperr"
	"sociosflow/auth"
	"sociosflow/db"
	"sociosflow/logging"
	"sociosflow/socio"
)

// Provisioner creates or reactivates the member account inside the approval
// transaction.
type Provisioner interface {
	ProvisionOrReactivate(ctx context.Context, tx pgx.Tx, applicant socio.Applicant) (socio.Result, error)
}

// Service runs the approval and rejection engines. Each call is one
// serializable transaction holding the postulacion row lock, replayed on
// serialization failure.
type Service struct {
	pool        db.TxBeginner
	repo        Store
	provisioner Provisioner
	now         func() time.Time
	maxElapsed  time.Duration
	logger      *slog.Logger
}

func NewService(pool db.TxBeginner, repo Store, provisioner Provisioner, logger *slog.Logger) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	logger = logging.Resolve(logger)
	if provisioner == nil {
		provisioner = socio.NewProvisioner(nil, logger)
	}
	return &Service{
		pool:        pool,
		repo:        repo,
		provisioner: provisioner,
		now:         time.Now,
		logger:      logger,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithMaxElapsed bounds how long serialization retries may run.
func (s *Service) WithMaxElapsed(d time.Duration) *Service {
	s.maxElapsed = d
	return s
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.RunInTx(ctx, s.pool, db.Serializable, s.maxElapsed, fn)
}

// fail passes classified domain errors through untouched and logs anything
// else before returning it as an internal error.
func (s *Service) fail(op string, id int64, actor auth.Actor, err error) error {
	if kind := apperr.KindOf(err); kind != apperr.KindInternal {
		return err
	}
	s.logger.Error("postulacion operation failed",
		"event", "postulacion_"+op+"_failed",
		"postulacion_id", id,
		"actor_id", actor.ID,
		"error", err.Error(),
	)
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	return apperr.Internal("postulacion: "+op, err)
}
