package reviewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"sociosflow/apperr"
	"sociosflow/auth"
	"sociosflow/db"
	"sociosflow/logging"
	"sociosflow/notify"
	"sociosflow/postulacion"
)

// Notifier accepts a notification task without waiting for it.
type Notifier interface {
	Submit(ctx context.Context, key string, email notify.Email) string
}

// Service manages the reviewer set of each postulacion. Reviewers give
// feedback; they do not vote.
type Service struct {
	pool       db.TxBeginner
	repo       Store
	users      auth.Repository
	notifier   Notifier
	siteURL    string
	maxElapsed time.Duration
	logger     *slog.Logger
}

func NewService(pool db.TxBeginner, repo Store, users auth.Repository, notifier Notifier, logger *slog.Logger) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	if users == nil {
		users = auth.NewRepository()
	}
	return &Service{
		pool:     pool,
		repo:     repo,
		users:    users,
		notifier: notifier,
		logger:   logging.Resolve(logger),
	}
}

// WithSiteURL sets the base used for links in reviewer notifications.
func (s *Service) WithSiteURL(u string) *Service {
	s.siteURL = strings.TrimRight(u, "/")
	return s
}

func (s *Service) WithMaxElapsed(d time.Duration) *Service {
	s.maxElapsed = d
	return s
}

// Assign adds reviewerID to the postulacion. The postulacion row stays locked
// from the cap check to the insert, so concurrent assigners cannot exceed
// MaxReviewers. The reviewer is notified after commit on a best-effort basis.
func (s *Service) Assign(ctx context.Context, postulacionID, reviewerID int64, actor auth.Actor) (List, error) {
	if err := actor.RequireDirector(); err != nil {
		return List{}, err
	}

	var (
		list         List
		user         auth.User
		applicant    string
		assignmentID int64
	)
	err := db.RunInTx(ctx, s.pool, db.Serializable, s.maxElapsed, func(tx pgx.Tx) error {
		p, err := s.repo.LockPostulacion(ctx, tx, postulacionID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return postulacion.ErrAlreadyDecided
		}

		user, err = s.users.GetUserByID(ctx, tx, reviewerID)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				return ErrReviewerMissing
			}
			return err
		}
		if !auth.IsDirector(user.Role) {
			return ErrNotDirector
		}

		current, err := s.repo.List(ctx, tx, postulacionID)
		if err != nil {
			return err
		}
		for _, rv := range current {
			if rv.ReviewerID == reviewerID {
				return ErrAlreadyAssigned
			}
		}
		if len(current) >= MaxReviewers {
			return ErrLimitReached
		}

		assignmentID, err = s.repo.Insert(ctx, tx, NewAssignment{
			PostulacionID: postulacionID,
			ReviewerID:    reviewerID,
			AssignedBy:    actor.ID,
		})
		if err != nil {
			return err
		}

		actorID := actor.ID
		if err := s.repo.AppendEvent(ctx, tx, postulacion.Event{
			PostulacionID: postulacionID,
			Type:          postulacion.EventReviewerAdded,
			ActorID:       &actorID,
			Payload:       map[string]any{"reviewer_id": reviewerID},
		}); err != nil {
			return err
		}

		reviewers, err := s.repo.List(ctx, tx, postulacionID)
		if err != nil {
			return err
		}
		list = newList(postulacionID, reviewers)
		applicant = p.FullName
		return nil
	})
	if err != nil {
		return List{}, s.fail("assign", postulacionID, actor, err)
	}

	s.logger.Info("reviewer assigned",
		"event", "reviewer_assigned",
		"postulacion_id", postulacionID,
		"reviewer_id", reviewerID,
		"assigned_by", actor.ID,
	)
	s.notifyAssigned(ctx, postulacionID, assignmentID, user, applicant)
	return list, nil
}

func (s *Service) notifyAssigned(ctx context.Context, postulacionID, assignmentID int64, user auth.User, applicant string) {
	if s.notifier == nil || user.Email == "" {
		return
	}
	link := ""
	if s.siteURL != "" {
		link = fmt.Sprintf("%s/admin/postulaciones/%d", s.siteURL, postulacionID)
	}
	key := fmt.Sprintf("reviewer-assigned:%d", assignmentID)
	taskID := s.notifier.Submit(ctx, key, notify.ReviewerAssigned(user.Email, user.FullName, applicant, link))
	s.logger.Debug("reviewer notification submitted",
		"event", "reviewer_notification_submitted",
		"postulacion_id", postulacionID,
		"reviewer_id", user.ID,
		"task_id", taskID,
	)
}

// Remove deletes the assignment if present. Removing an absent reviewer is
// not an error.
func (s *Service) Remove(ctx context.Context, postulacionID, reviewerID int64, actor auth.Actor) error {
	if err := actor.RequireDirector(); err != nil {
		return err
	}

	var removed bool
	err := db.RunInTx(ctx, s.pool, db.Serializable, s.maxElapsed, func(tx pgx.Tx) error {
		var err error
		removed, err = s.repo.Delete(ctx, tx, postulacionID, reviewerID)
		if err != nil || !removed {
			return err
		}
		actorID := actor.ID
		return s.repo.AppendEvent(ctx, tx, postulacion.Event{
			PostulacionID: postulacionID,
			Type:          postulacion.EventReviewerRemoved,
			ActorID:       &actorID,
			Payload:       map[string]any{"reviewer_id": reviewerID},
		})
	})
	if err != nil {
		return s.fail("remove", postulacionID, actor, err)
	}

	s.logger.Info("reviewer removed",
		"event", "reviewer_removed",
		"postulacion_id", postulacionID,
		"reviewer_id", reviewerID,
		"removed", removed,
	)
	return nil
}

// UpdateFeedback stores actor's feedback. Only a reviewer assigned to the
// postulacion may write it; blank text clears it.
func (s *Service) UpdateFeedback(ctx context.Context, postulacionID int64, actor auth.Actor, text string) (Reviewer, error) {
	if actor.ID <= 0 {
		return Reviewer{}, ErrNotAssigned
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > MaxFeedbackLength {
		return Reviewer{}, ErrFeedbackTooLong
	}
	var feedback *string
	if text != "" {
		feedback = &text
	}

	var out Reviewer
	err := db.RunInTx(ctx, s.pool, db.Serializable, s.maxElapsed, func(tx pgx.Tx) error {
		if err := s.repo.UpdateFeedback(ctx, tx, postulacionID, actor.ID, feedback); err != nil {
			return err
		}
		actorID := actor.ID
		if err := s.repo.AppendEvent(ctx, tx, postulacion.Event{
			PostulacionID: postulacionID,
			Type:          postulacion.EventFeedbackUpdated,
			ActorID:       &actorID,
			Payload:       map[string]any{"length": utf8.RuneCountInString(text)},
		}); err != nil {
			return err
		}

		reviewers, err := s.repo.List(ctx, tx, postulacionID)
		if err != nil {
			return err
		}
		for _, rv := range reviewers {
			if rv.ReviewerID == actor.ID {
				out = rv
				return nil
			}
		}
		return ErrNotAssigned
	})
	if err != nil {
		return Reviewer{}, s.fail("feedback", postulacionID, actor, err)
	}

	s.logger.Info("reviewer feedback updated",
		"event", "reviewer_feedback_updated",
		"postulacion_id", postulacionID,
		"reviewer_id", actor.ID,
	)
	return out, nil
}

// List returns the reviewers of one postulacion.
func (s *Service) List(ctx context.Context, postulacionID int64) (List, error) {
	var list List
	err := db.RunInTx(ctx, s.pool, db.ReadOnly, s.maxElapsed, func(tx pgx.Tx) error {
		ok, err := s.repo.PostulacionExists(ctx, tx, postulacionID)
		if err != nil {
			return err
		}
		if !ok {
			return postulacion.ErrNotFound
		}
		reviewers, err := s.repo.List(ctx, tx, postulacionID)
		if err != nil {
			return err
		}
		list = newList(postulacionID, reviewers)
		return nil
	})
	if err != nil {
		return List{}, s.fail("list", postulacionID, auth.Actor{}, err)
	}
	return list, nil
}

func newList(postulacionID int64, reviewers []Reviewer) List {
	if reviewers == nil {
		reviewers = []Reviewer{}
	}
	return List{PostulacionID: postulacionID, Reviewers: reviewers}
}

func (s *Service) fail(op string, postulacionID int64, actor auth.Actor, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	s.logger.Error("reviewer operation failed",
		"event", "reviewer_"+op+"_failed",
		"postulacion_id", postulacionID,
		"actor_id", actor.ID,
		"error", err.Error(),
	)
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	return apperr.Internal("reviewer: "+op, err)
}
