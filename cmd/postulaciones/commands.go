package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"sociosflow/auth"
	"sociosflow/listing"
)

// actorFlags identifies the caller, either by a signed token or, for local
// operation, by explicit id and role.
type actorFlags struct {
	token string
	id    int64
	role  string
}

func (f *actorFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.token, "token", "", "signed operator token (HS256, JWT_SECRET)")
	fs.Int64Var(&f.id, "actor-id", 0, "acting user id when no token is given")
	fs.StringVar(&f.role, "actor-role", "", "acting user role when no token is given")
}

func (f actorFlags) resolve(secret string) (auth.Actor, error) {
	if f.token != "" {
		verifier, err := auth.NewTokenVerifier(secret)
		if err != nil {
			return auth.Actor{}, err
		}
		return verifier.Verify(f.token)
	}
	if f.id <= 0 {
		return auth.Actor{}, fmt.Errorf("%w: --token or --actor-id is required", errUsage)
	}
	return auth.Actor{ID: f.id, Role: auth.NormalizeRole(auth.Role(f.role))}, nil
}

func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: %s: unexpected argument %q", errUsage, fs.Name(), fs.Arg(0))
	}
	return nil
}

func requireID(name string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("%w: --%s must be a positive id", errUsage, name)
	}
	return nil
}

func runMigrate(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error) {
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	a, err := boot(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	applied := a.applied
	if applied == nil {
		applied = []int{}
	}
	return map[string]any{"applied": applied}, nil
}

func runApprove(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error) {
	var (
		actor   actorFlags
		id      int64
		comment string
	)
	actor.register(fs)
	fs.Int64Var(&id, "id", 0, "postulacion id")
	fs.StringVar(&comment, "comment", "", "optional comment stored with the vote")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	a, err := boot(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	caller, err := actor.resolve(a.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	return a.postulacions.Approve(ctx, id, caller, comment)
}

func runReject(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error) {
	var (
		actor  actorFlags
		id     int64
		reason string
	)
	actor.register(fs)
	fs.Int64Var(&id, "id", 0, "postulacion id")
	fs.StringVar(&reason, "reason", "", "rejection reason (required)")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	a, err := boot(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	caller, err := actor.resolve(a.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	return a.postulacions.Reject(ctx, id, caller, reason)
}

func runAssignReviewer(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error) {
	var (
		actor      actorFlags
		id         int64
		reviewerID int64
	)
	actor.register(fs)
	fs.Int64Var(&id, "id", 0, "postulacion id")
	fs.Int64Var(&reviewerID, "reviewer", 0, "user id of the reviewer")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if err := requireID("id", id); err != nil {
		return nil, err
	}
	if err := requireID("reviewer", reviewerID); err != nil {
		return nil, err
	}

	a, err := boot(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	caller, err := actor.resolve(a.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	return a.reviewers.Assign(ctx, id, reviewerID, caller)
}

func runRemoveReviewer(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error) {
	var (
		actor      actorFlags
		id         int64
		reviewerID int64
	)
	actor.register(fs)
	fs.Int64Var(&id, "id", 0, "postulacion id")
	fs.Int64Var(&reviewerID, "reviewer", 0, "user id of the reviewer")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if err := requireID("id", id); err != nil {
		return nil, err
	}
	if err := requireID("reviewer", reviewerID); err != nil {
		return nil, err
	}

	a, err := boot(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	caller, err := actor.resolve(a.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	if err := a.reviewers.Remove(ctx, id, reviewerID, caller); err != nil {
		return nil, err
	}
	return a.reviewers.List(ctx, id)
}

func runFeedback(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error) {
	var (
		actor actorFlags
		id    int64
		text  string
	)
	actor.register(fs)
	fs.Int64Var(&id, "id", 0, "postulacion id")
	fs.StringVar(&text, "text", "", "feedback text; empty clears it")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	a, err := boot(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	caller, err := actor.resolve(a.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	return a.reviewers.UpdateFeedback(ctx, id, caller, text)
}

func runReviewers(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error) {
	var id int64
	fs.Int64Var(&id, "id", 0, "postulacion id")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	a, err := boot(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.reviewers.List(ctx, id)
}

func runList(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error) {
	var (
		filter listing.Filter
		page   int
		limit  int
	)
	fs.StringVar(&filter.Status, "status", "", "pendiente, en_revision, aprobada or rechazada")
	fs.StringVar(&filter.Search, "search", "", "case-insensitive match on name, email, city, region, phone or rut")
	fs.IntVar(&page, "page", 1, "page number, from 1")
	fs.IntVar(&limit, "limit", listing.DefaultLimit, "page size, at most "+strconv.Itoa(listing.MaxLimit))
	if err := parse(fs, args); err != nil {
		return nil, err
	}

	a, err := boot(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.listing.ListApplications(ctx, filter, page, limit)
}

func runGet(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error) {
	var id int64
	fs.Int64Var(&id, "id", 0, "postulacion id")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	a, err := boot(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.listing.GetApplication(ctx, id)
}
