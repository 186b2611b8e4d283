package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"sociosflow/auth"
	"sociosflow/notify"
	"sociosflow/postulacion"
	"sociosflow/reviewer"
	"sociosflow/socio"
	"sociosflow/test/actors"
	"sociosflow/test/chaos"
	"sociosflow/test/infra"
	"sociosflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 20*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 6, "number of concurrent approvers and assigners")
	flApps        = flag.Int("apps", 12, "number of postulaciones to fight over")
	flChaos       = flag.Bool("chaos", true, "terminate random backends during the run")
)

func TestPostulacionesConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test skipped in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+2*time.Minute)
	defer cancel()

	h, err := infra.NewHarness(ctx)
	if err != nil {
		t.Skipf("no PostgreSQL available: %v", err)
	}
	defer func() {
		if err := h.Close(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()
	pool := h.Pool()

	seed := mustSeed(t, ctx, h)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dispatcher := notify.NewDispatcher(notify.NewLogMailer(logger), nil, time.Second, logger)
	defer dispatcher.Wait()

	approvals := postulacion.NewService(pool, nil, socio.NewProvisioner(nil, logger).WithHashCost(bcrypt.MinCost), logger).
		WithMaxElapsed(10 * time.Second)
	reviewers := reviewer.NewService(pool, nil, auth.NewRepository(), dispatcher, logger).
		WithMaxElapsed(10 * time.Second)

	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	var (
		approverStats = make([]actors.Stats, *flConcurrency)
		assignerStats = make([]actors.Stats, *flConcurrency)
		otherStats    [3]actors.Stats
	)

	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Approver(gctx, approvals, seed.postulaciones, seed.directors, &approverStats[i], stop)
		})
		g.Go(func() error {
			return actors.ReviewerAssigner(gctx, reviewers, seed.postulaciones, seed.reviewerIDs, seed.directors[0], &assignerStats[i], stop)
		})
	}
	g.Go(func() error {
		return actors.Rejecter(gctx, approvals, seed.postulaciones, seed.directors[1], &otherStats[0], stop)
	})
	g.Go(func() error {
		return actors.ReviewerRemover(gctx, reviewers, seed.postulaciones, seed.reviewerIDs, seed.directors[2], &otherStats[1], stop)
	})
	g.Go(func() error {
		return actors.FeedbackWriter(gctx, reviewers, seed.postulaciones, seed.directors, &otherStats[2], stop)
	})
	if *flChaos {
		go chaos.TerminateRandomBackend(gctx, pool, infra.ApplicationName, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

loop:
	for time.Now().Before(deadline) {
		select {
		case <-gctx.Done():
			break loop
		case <-ticker.C:
			checkOracles(t, ctx, pool, true)
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("actor failed: %v", err)
	}
	checkOracles(t, ctx, pool, false)

	var votes int
	for _, s := range approverStats {
		votes += s.OK
	}
	if votes == 0 {
		t.Fatal("no approval succeeded during the run")
	}
	t.Logf("successful votes=%d rejections=%d", votes, otherStats[0].OK)
}

// checkOracles fails the test on a broken invariant. Query errors are
// tolerated mid-run since chaos may kill the oracle's own connection.
func checkOracles(t *testing.T, ctx context.Context, pool *pgxpool.Pool, midRun bool) {
	t.Helper()
	name, row, err := oracles.Run(ctx, pool)
	if err != nil {
		if midRun {
			t.Logf("oracle query interrupted: %v", err)
			return
		}
		t.Fatalf("oracle error: %v", err)
	}
	if name != "" {
		dumpRecent(t, ctx, pool)
		t.Fatalf("oracle %s failed, first row: %s", name, row)
	}
}

type seedData struct {
	directors     []auth.Actor
	reviewerIDs   []int64
	postulaciones []int64
}

func mustSeed(t *testing.T, ctx context.Context, h *infra.Harness) seedData {
	t.Helper()
	var s seedData
	run := rand.Int63()

	roles := []auth.Role{auth.RoleAdmin, auth.RoleOrganizer, auth.RoleEditor, auth.RoleAdmin}
	for i, role := range roles {
		id, err := h.CreateUser(ctx, fmt.Sprintf("director%d-%d@example.com", i, run), fmt.Sprintf("Director %d", i), string(role))
		if err != nil {
			t.Fatal(err)
		}
		s.directors = append(s.directors, auth.Actor{ID: id, Role: role})
		s.reviewerIDs = append(s.reviewerIDs, id)
	}

	for i := 0; i < *flApps; i++ {
		// every third applicant already has an account, alternating active and inactive
		email := fmt.Sprintf("applicant%d-%d@example.com", i, run)
		if i%3 == 0 {
			if _, err := h.CreateSocio(ctx, email, i%2 == 0); err != nil {
				t.Fatal(err)
			}
		}
		// two applications share one email so provisioning races on the same account
		if i == 1 {
			email = fmt.Sprintf("applicant0-%d@example.com", run)
		}
		id, err := h.CreatePostulacion(ctx, fmt.Sprintf("Applicant %d", i), email, 2+i%2)
		if err != nil {
			t.Fatal(err)
		}
		s.postulaciones = append(s.postulaciones, id)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	dumps := []struct{ name, sql string }{
		{"postulaciones", `SELECT id, status, approvals_count, approvals_required, socio_id FROM postulaciones ORDER BY id`},
		{"postulacion_events", `SELECT id, postulacion_id, type, actor_id FROM postulacion_events ORDER BY id DESC LIMIT 50`},
		{"postulacion_reviewers", `SELECT postulacion_id, reviewer_id, created_at FROM postulacion_reviewers ORDER BY postulacion_id`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", cols[i].Name, vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
