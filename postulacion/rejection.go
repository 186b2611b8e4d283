package postulacion

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"sociosflow/apperr"
	"sociosflow/auth"
)

var (
	ErrReasonRequired = apperr.New(apperr.KindValidation, "postulacion: rejection reason is required")
	ErrReasonTooLong  = apperr.New(apperr.KindValidation, "postulacion: rejection reason exceeds 1000 characters")
)

// Reject moves postulacion id to rechazada. Prior votes and approvals_count
// are kept as recorded.
func (s *Service) Reject(ctx context.Context, id int64, actor auth.Actor, reason string) (View, error) {
	if err := actor.RequireDirector(); err != nil {
		return View{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return View{}, ErrReasonRequired
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return View{}, ErrReasonTooLong
	}

	var view View
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		p, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return ErrAlreadyDecided
		}

		updated, err := s.repo.MarkRejected(ctx, tx, id, reason, s.now())
		if err != nil {
			return err
		}

		actorID := actor.ID
		if err := s.repo.AppendEvent(ctx, tx, Event{
			PostulacionID: id,
			Type:          EventRejected,
			ActorID:       &actorID,
			Payload: map[string]any{
				"previous_status": string(p.Status),
				"approvals_count": p.ApprovalsCount,
			},
		}); err != nil {
			return err
		}

		approvals, err := s.repo.ListApprovals(ctx, tx, id)
		if err != nil {
			return err
		}
		view = newView(updated, approvals)
		return nil
	})
	if err != nil {
		return View{}, s.fail("reject", id, actor, err)
	}

	s.logger.Info("postulacion rejected",
		"event", "postulacion_rejected",
		"postulacion_id", id,
		"actor_id", actor.ID,
	)
	return view, nil
}
