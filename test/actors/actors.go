package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"sociosflow/apperr"
	"sociosflow/auth"
	"sociosflow/postulacion"
	"sociosflow/reviewer"
)

// Stats counts outcomes per actor; expected refusals are not failures.
type Stats struct {
	OK       int
	Refused  int
	Internal int
}

// tolerate classifies err: nil and the listed kinds are expected under
// contention, internal errors are expected under chaos, anything else stops
// the actor.
func tolerate(stats *Stats, err error, kinds ...apperr.Kind) error {
	if err == nil {
		stats.OK++
		return nil
	}
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		stats.Internal++
		return nil
	}
	for _, k := range kinds {
		if k == kind {
			stats.Refused++
			return nil
		}
	}
	return err
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func pause(minMS, spreadMS int) {
	time.Sleep(time.Duration(minMS+rand.Intn(spreadMS)) * time.Millisecond)
}

// Approver casts votes from random directors on random postulaciones.
// Duplicate votes and votes on decided applications must be refused.
func Approver(ctx context.Context, svc *postulacion.Service, ids []int64, directors []auth.Actor, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := ids[rand.Intn(len(ids))]
		actor := directors[rand.Intn(len(directors))]
		_, err := svc.Approve(ctx, id, actor, "stress vote")
		if err := tolerate(stats, err, apperr.KindConflict, apperr.KindDomainState); err != nil {
			return fmt.Errorf("approver %d on %d: %w", actor.ID, id, err)
		}
		pause(5, 20)
	}
}

// Rejecter occasionally rejects a random postulacion.
func Rejecter(ctx context.Context, svc *postulacion.Service, ids []int64, actor auth.Actor, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := ids[rand.Intn(len(ids))]
		_, err := svc.Reject(ctx, id, actor, "stress rejection")
		if err := tolerate(stats, err, apperr.KindDomainState); err != nil {
			return fmt.Errorf("rejecter on %d: %w", id, err)
		}
		pause(150, 200)
	}
}

// ReviewerAssigner races other assigners for the two reviewer slots.
func ReviewerAssigner(ctx context.Context, svc *reviewer.Service, ids []int64, reviewers []int64, actor auth.Actor, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := ids[rand.Intn(len(ids))]
		target := reviewers[rand.Intn(len(reviewers))]
		_, err := svc.Assign(ctx, id, target, actor)
		if err := tolerate(stats, err, apperr.KindConflict, apperr.KindDomainState); err != nil {
			return fmt.Errorf("assigner %d on %d: %w", target, id, err)
		}
		pause(10, 30)
	}
}

// ReviewerRemover frees slots so assigners keep contending.
func ReviewerRemover(ctx context.Context, svc *reviewer.Service, ids []int64, reviewers []int64, actor auth.Actor, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := ids[rand.Intn(len(ids))]
		target := reviewers[rand.Intn(len(reviewers))]
		err := svc.Remove(ctx, id, target, actor)
		if err := tolerate(stats, err); err != nil {
			return fmt.Errorf("remover %d on %d: %w", target, id, err)
		}
		pause(40, 60)
	}
}

// FeedbackWriter writes feedback as random reviewers; unassigned ones must be
// refused.
func FeedbackWriter(ctx context.Context, svc *reviewer.Service, ids []int64, reviewers []auth.Actor, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := ids[rand.Intn(len(ids))]
		actor := reviewers[rand.Intn(len(reviewers))]
		_, err := svc.UpdateFeedback(ctx, id, actor, fmt.Sprintf("feedback %d", rand.Intn(1000)))
		if err := tolerate(stats, err, apperr.KindAuthorization); err != nil {
			return fmt.Errorf("feedback %d on %d: %w", actor.ID, id, err)
		}
		pause(20, 40)
	}
}
