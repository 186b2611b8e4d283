package listing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"sociosflow/apperr"
	"sociosflow/db"
	"sociosflow/postulacion"
	"sociosflow/reviewer"
)

func TestNormalizePage(t *testing.T) {
	cases := []struct{ page, limit, wantPage, wantLimit int }{
		{0, 0, 1, DefaultLimit},
		{-2, 10, 1, 10},
		{3, 500, 3, MaxLimit},
		{2, 100, 2, 100},
	}
	for _, tc := range cases {
		page, limit := normalizePage(tc.page, tc.limit)
		if page != tc.wantPage || limit != tc.wantLimit {
			t.Errorf("normalizePage(%d, %d) = %d, %d; want %d, %d", tc.page, tc.limit, page, limit, tc.wantPage, tc.wantLimit)
		}
	}
}

func TestNewPagination(t *testing.T) {
	p := newPagination(2, 20, 45)
	if p.TotalPages != 3 || !p.HasNext || !p.HasPrev {
		t.Fatalf("unexpected pagination %+v", p)
	}
	p = newPagination(3, 20, 45)
	if p.HasNext {
		t.Fatal("last page must not have next")
	}
	p = newPagination(1, 20, 0)
	if p.TotalPages != 0 || p.HasNext || p.HasPrev {
		t.Fatalf("unexpected empty pagination %+v", p)
	}
}

func TestBuildWhere(t *testing.T) {
	where, args, err := buildWhere(Filter{Status: "en_revision", Search: " 50%_off "})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.HasPrefix(where, " WHERE status = $1 AND (") {
		t.Fatalf("unexpected where %q", where)
	}
	for _, col := range searchColumns {
		if !strings.Contains(where, "COALESCE("+col+", '') ILIKE $2") {
			t.Fatalf("expected %s in search clause: %q", col, where)
		}
	}
	if len(args) != 2 || args[0] != "en_revision" || args[1] != `%50\%\_off%` {
		t.Fatalf("unexpected args %#v", args)
	}

	where, args, err = buildWhere(Filter{})
	if err != nil || where != "" || len(args) != 0 {
		t.Fatalf("expected empty filter, got %q %v %v", where, args, err)
	}
}

func TestListApplications_RejectsUnknownStatus(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	_, err := svc.ListApplications(context.Background(), Filter{Status: "archivada"}, 1, 20)
	if !errors.Is(err, ErrInvalidStatus) || apperr.Status(err) != 400 {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAssemble_AttachesNestedLists(t *testing.T) {
	posts := []postulacion.Postulacion{
		{ID: 2, ApprovalsRequired: 2, ApprovalsCount: 1},
		{ID: 1, ApprovalsRequired: 2},
	}
	approvals := map[int64][]postulacion.Approval{2: {{ID: 9, PostulacionID: 2, ApproverID: 10}}}
	reviewers := map[int64][]reviewer.Reviewer{1: {{ID: 3, PostulacionID: 1, ReviewerID: 20}}}

	items := assemble(posts, approvals, reviewers)
	if len(items) != 2 || items[0].ID != 2 || items[1].ID != 1 {
		t.Fatalf("expected input order preserved, got %+v", items)
	}
	if len(items[0].Approvals) != 1 || items[0].PendingApprovals != 1 || len(items[0].Reviewers) != 0 {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[0].Reviewers == nil || items[1].Approvals == nil {
		t.Fatal("empty nested lists must be non-nil")
	}
	if len(items[1].Reviewers) != 1 || items[1].PendingApprovals != 2 {
		t.Fatalf("unexpected second item %+v", items[1])
	}
}

func TestListApplications_ReadsOneSnapshot(t *testing.T) {
	tx := &fakeTx{total: 5, ids: []int64{7}}
	pool := &fakePool{tx: tx}
	approvals := &fakeApprovals{}
	reviewers := &fakeReviewers{}
	svc := NewService(pool, approvals, reviewers, nil)

	page, err := svc.ListApplications(context.Background(), Filter{Status: "pendiente"}, 1, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if pool.begins != 1 || pool.opts.AccessMode != pgx.ReadOnly || pool.opts.IsoLevel != pgx.RepeatableRead {
		t.Fatalf("expected one read-only snapshot, got %d begins with %+v", pool.begins, pool.opts)
	}
	if tx.queries != 2 || !tx.committed {
		t.Fatalf("expected count and page on the same tx, got %d queries committed=%v", tx.queries, tx.committed)
	}
	if approvals.q != db.Querier(tx) || reviewers.q != db.Querier(tx) {
		t.Fatal("nested lists must be read inside the same transaction")
	}
	if page.Pagination.Total != 5 || !page.Pagination.HasNext || len(page.Items) != 1 || page.Items[0].ID != 7 {
		t.Fatalf("unexpected page %+v", page)
	}
	if len(page.Items[0].Approvals) != 1 {
		t.Fatalf("expected attached approval, got %+v", page.Items[0].Approvals)
	}
}

func TestGetApplication_NotFound(t *testing.T) {
	svc := NewService(&fakePool{tx: &fakeTx{}}, &fakeApprovals{}, &fakeReviewers{}, nil)
	if _, err := svc.GetApplication(context.Background(), 3); !errors.Is(err, postulacion.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type fakePool struct {
	tx     *fakeTx
	begins int
	opts   pgx.TxOptions
}

func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.begins++
	p.opts = opts
	return p.tx, nil
}

type fakeTx struct {
	pgx.Tx
	total     int
	ids       []int64
	queries   int
	committed bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	t.queries++
	if strings.HasPrefix(sql, "SELECT COUNT(*)") {
		return scanFunc(func(dest ...any) error {
			*dest[0].(*int) = t.total
			return nil
		})
	}
	return scanFunc(func(dest ...any) error { return pgx.ErrNoRows })
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	t.queries++
	return &fakeRows{ids: t.ids, pos: -1}, nil
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

type fakeRows struct {
	pgx.Rows
	ids []int64
	pos int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.ids)
}

func (r *fakeRows) Scan(dest ...any) error {
	*dest[0].(*int64) = r.ids[r.pos]
	return nil
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

type fakeApprovals struct {
	q db.Querier
}

func (f *fakeApprovals) ApprovalsFor(ctx context.Context, q db.Querier, ids []int64) (map[int64][]postulacion.Approval, error) {
	f.q = q
	out := make(map[int64][]postulacion.Approval)
	for _, id := range ids {
		out[id] = []postulacion.Approval{{ID: 1, PostulacionID: id, ApproverID: 10}}
	}
	return out, nil
}

type fakeReviewers struct {
	q db.Querier
}

func (f *fakeReviewers) ListFor(ctx context.Context, q db.Querier, ids []int64) (map[int64][]reviewer.Reviewer, error) {
	f.q = q
	return map[int64][]reviewer.Reviewer{}, nil
}
