package postulacion

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"sociosflow/apperr"
	"sociosflow/auth"
	"sociosflow/socio"
)

var ErrCommentTooLong = apperr.New(apperr.KindValidation, "postulacion: comment exceeds 2000 characters")

// Approve records actor's vote on postulacion id and advances the state
// machine. When the vote reaches quorum the member account is provisioned in
// the same transaction; if provisioning fails nothing is written.
func (s *Service) Approve(ctx context.Context, id int64, actor auth.Actor, comment string) (View, error) {
	if err := actor.RequireDirector(); err != nil {
		return View{}, err
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return View{}, ErrCommentTooLong
	}

	var view View
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		view, err = s.approve(ctx, tx, id, actor, comment)
		return err
	})
	if err != nil {
		return View{}, s.fail("approve", id, actor, err)
	}

	s.logger.Info("postulacion approval recorded",
		"event", "postulacion_vote_cast",
		"postulacion_id", id,
		"approver_id", actor.ID,
		"status", string(view.Postulacion.Status),
		"approvals_count", view.Postulacion.ApprovalsCount,
		"approvals_required", view.Postulacion.ApprovalsRequired,
	)
	if view.Provisioning != nil {
		s.logger.Info("postulacion approved",
			"event", "postulacion_approved",
			"postulacion_id", id,
			"socio_id", view.Provisioning.AccountID,
			"reused_existing", view.Provisioning.ReusedExisting,
			"reactivated", view.Provisioning.Reactivated,
		)
	}
	return view, nil
}

func (s *Service) approve(ctx context.Context, tx pgx.Tx, id int64, actor auth.Actor, comment string) (View, error) {
	p, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return View{}, err
	}
	if p.Status.IsTerminal() {
		return View{}, ErrAlreadyDecided
	}

	var commentArg *string
	if comment != "" {
		commentArg = &comment
	}
	if _, err := s.repo.InsertApproval(ctx, tx, NewApproval{
		PostulacionID: id,
		ApproverID:    actor.ID,
		ApproverRole:  string(auth.NormalizeRole(actor.Role)),
		Comment:       commentArg,
	}); err != nil {
		return View{}, err
	}

	count, err := s.repo.CountApprovals(ctx, tx, id)
	if err != nil {
		return View{}, err
	}

	decision := Decision{
		PostulacionID:  id,
		Status:         StatusEnRevision,
		ApprovalsCount: count,
	}
	var provisioned *socio.Result
	if count >= p.ApprovalsRequired {
		res, err := s.provisioner.ProvisionOrReactivate(ctx, tx, p.Applicant())
		if err != nil {
			return View{}, err
		}
		approvedAt := s.now()
		decision.Status = StatusAprobada
		decision.SocioID = &res.AccountID
		decision.ApprovedAt = &approvedAt
		provisioned = &res
	}

	updated, err := s.repo.SaveDecision(ctx, tx, decision)
	if err != nil {
		return View{}, err
	}

	actorID := actor.ID
	if err := s.repo.AppendEvent(ctx, tx, Event{
		PostulacionID: id,
		Type:          EventVoteCast,
		ActorID:       &actorID,
		Payload: map[string]any{
			"approvals_count":    count,
			"approvals_required": p.ApprovalsRequired,
			"status":             string(decision.Status),
		},
	}); err != nil {
		return View{}, err
	}
	if provisioned != nil {
		if err := s.repo.AppendEvent(ctx, tx, Event{
			PostulacionID: id,
			Type:          EventApproved,
			ActorID:       &actorID,
			Payload: map[string]any{
				"socio_id":        provisioned.AccountID,
				"reused_existing": provisioned.ReusedExisting,
				"reactivated":     provisioned.Reactivated,
			},
		}); err != nil {
			return View{}, err
		}
	}

	approvals, err := s.repo.ListApprovals(ctx, tx, id)
	if err != nil {
		return View{}, err
	}

	view := newView(updated, approvals)
	view.Provisioning = provisioned
	return view, nil
}
