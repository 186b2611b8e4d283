// Package listing renders postulaciones with their votes and reviewers for
// the admin views.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"sociosflow/apperr"
	"sociosflow/db"
	"sociosflow/logging"
	"sociosflow/postulacion"
	"sociosflow/reviewer"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrInvalidStatus = apperr.New(apperr.KindValidation, "listing: unknown status filter")

type Filter struct {
	Status string
	Search string
}

// Item is one postulacion with its approvals and reviewers attached.
type Item struct {
	postulacion.Postulacion
	Approvals        []postulacion.Approval `json:"approvals"`
	PendingApprovals int                    `json:"pending_approvals"`
	Reviewers        []reviewer.Reviewer    `json:"reviewers"`
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

type Page struct {
	Items      []Item     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// ApprovalReader loads votes for many postulaciones at once.
type ApprovalReader interface {
	ApprovalsFor(ctx context.Context, q db.Querier, ids []int64) (map[int64][]postulacion.Approval, error)
}

// ReviewerReader loads reviewers for many postulaciones at once.
type ReviewerReader interface {
	ListFor(ctx context.Context, q db.Querier, ids []int64) (map[int64][]reviewer.Reviewer, error)
}

// Service is read-only. Every call runs in its own read-only transaction.
type Service struct {
	pool      db.TxBeginner
	approvals ApprovalReader
	reviewers ReviewerReader
	logger    *slog.Logger
}

func NewService(pool db.TxBeginner, approvals ApprovalReader, reviewers ReviewerReader, logger *slog.Logger) *Service {
	if approvals == nil {
		approvals = postulacion.NewRepository()
	}
	if reviewers == nil {
		reviewers = reviewer.NewRepository()
	}
	return &Service{
		pool:      pool,
		approvals: approvals,
		reviewers: reviewers,
		logger:    logging.Resolve(logger),
	}
}

// ListApplications returns one page of postulaciones, newest first. The
// total, the page and the nested lists come from one snapshot.
func (s *Service) ListApplications(ctx context.Context, filter Filter, page, limit int) (Page, error) {
	page, limit = normalizePage(page, limit)
	where, args, err := buildWhere(filter)
	if err != nil {
		return Page{}, err
	}

	var out Page
	err = db.RunInTx(ctx, s.pool, db.ReadOnly, 0, func(tx pgx.Tx) error {
		var total int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM postulaciones`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("listing: count: %w", err)
		}

		pageArgs := append(append([]any(nil), args...), limit, (page-1)*limit)
		pageSQL := fmt.Sprintf(`SELECT %s FROM postulaciones%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			postulacion.Columns, where, len(args)+1, len(args)+2)
		rows, err := tx.Query(ctx, pageSQL, pageArgs...)
		if err != nil {
			return fmt.Errorf("listing: query page: %w", err)
		}
		var posts []postulacion.Postulacion
		for rows.Next() {
			p, err := postulacion.Scan(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("listing: scan: %w", err)
			}
			posts = append(posts, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("listing: query page: %w", err)
		}

		items, err := s.enrich(ctx, tx, posts)
		if err != nil {
			return err
		}
		out = Page{Items: items, Pagination: newPagination(page, limit, total)}
		return nil
	})
	if err != nil {
		return Page{}, s.fail("list", err)
	}
	return out, nil
}

// GetApplication returns a single postulacion in list-item shape.
func (s *Service) GetApplication(ctx context.Context, id int64) (Item, error) {
	var item Item
	err := db.RunInTx(ctx, s.pool, db.ReadOnly, 0, func(tx pgx.Tx) error {
		p, err := postulacion.Scan(tx.QueryRow(ctx, `SELECT `+postulacion.Columns+` FROM postulaciones WHERE id = $1`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return postulacion.ErrNotFound
			}
			return fmt.Errorf("listing: get: %w", err)
		}
		items, err := s.enrich(ctx, tx, []postulacion.Postulacion{p})
		if err != nil {
			return err
		}
		item = items[0]
		return nil
	})
	if err != nil {
		return Item{}, s.fail("get", err)
	}
	return item, nil
}

// enrich attaches approvals and reviewers with one batched query each.
func (s *Service) enrich(ctx context.Context, q db.Querier, posts []postulacion.Postulacion) ([]Item, error) {
	if len(posts) == 0 {
		return []Item{}, nil
	}
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	approvals, err := s.approvals.ApprovalsFor(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	reviewers, err := s.reviewers.ListFor(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	return assemble(posts, approvals, reviewers), nil
}

func assemble(posts []postulacion.Postulacion, approvals map[int64][]postulacion.Approval, reviewers map[int64][]reviewer.Reviewer) []Item {
	items := make([]Item, 0, len(posts))
	for _, p := range posts {
		item := Item{
			Postulacion:      p,
			Approvals:        approvals[p.ID],
			PendingApprovals: p.PendingApprovals(),
			Reviewers:        reviewers[p.ID],
		}
		if item.Approvals == nil {
			item.Approvals = []postulacion.Approval{}
		}
		if item.Reviewers == nil {
			item.Reviewers = []reviewer.Reviewer{}
		}
		items = append(items, item)
	}
	return items
}

func (s *Service) fail(op string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	s.logger.Error("listing query failed", "event", "listing_"+op+"_failed", "error", err.Error())
	return apperr.Internal("listing: "+op, err)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func newPagination(page, limit, total int) Pagination {
	totalPages := (total + limit - 1) / limit
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

var searchColumns = []string{"full_name", "email", "city", "region", "phone", "rut"}

// buildWhere returns a WHERE clause (with leading space) and its arguments.
func buildWhere(filter Filter) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	if status := strings.TrimSpace(filter.Status); status != "" {
		st, ok := postulacion.ParseStatus(status)
		if !ok {
			return "", nil, ErrInvalidStatus
		}
		args = append(args, string(st))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		matches := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			matches[i] = fmt.Sprintf("COALESCE(%s, '') ILIKE $%d", col, n)
		}
		conds = append(conds, "("+strings.Join(matches, " OR ")+")")
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
