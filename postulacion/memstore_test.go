package postulacion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// memDB is a copy-on-begin store: each transaction works on a private clone
// that replaces the committed state only on Commit.
type memDB struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	posts     map[int64]Postulacion
	approvals []Approval
	events    []Event
	nextID    int64
}

func newMemDB(posts ...Postulacion) *memDB {
	st := &memState{posts: make(map[int64]Postulacion), nextID: 1}
	for _, p := range posts {
		st.posts[p.ID] = p
	}
	return &memDB{state: st}
}

func (s *memState) clone() *memState {
	out := &memState{
		posts:     make(map[int64]Postulacion, len(s.posts)),
		approvals: append([]Approval(nil), s.approvals...),
		events:    append([]Event(nil), s.events...),
		nextID:    s.nextID,
	}
	for k, v := range s.posts {
		out.posts[k] = v
	}
	return out
}

func (d *memDB) committed() *memState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *memDB) eventTypes() []string {
	var out []string
	for _, ev := range d.committed().events {
		out = append(out, ev.Type)
	}
	return out
}

func (d *memDB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &memTx{db: d, state: d.state.clone()}, nil
}

type memTx struct {
	pgx.Tx
	db        *memDB
	state     *memState
	committed bool
}

func (t *memTx) Commit(ctx context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.state = t.state
	t.committed = true
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	return nil
}

type memStore struct{}

func stateOf(tx pgx.Tx) *memState {
	return tx.(*memTx).state
}

func (memStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Postulacion, error) {
	p, ok := stateOf(tx).posts[id]
	if !ok {
		return Postulacion{}, ErrNotFound
	}
	return p, nil
}

func (memStore) InsertApproval(ctx context.Context, tx pgx.Tx, params NewApproval) (Approval, error) {
	st := stateOf(tx)
	for _, a := range st.approvals {
		if a.PostulacionID == params.PostulacionID && a.ApproverID == params.ApproverID {
			return Approval{}, ErrAlreadyVoted
		}
	}
	a := Approval{
		ID:            st.nextID,
		PostulacionID: params.PostulacionID,
		ApproverID:    params.ApproverID,
		ApproverRole:  params.ApproverRole,
		Comment:       params.Comment,
		CreatedAt:     time.Unix(st.nextID, 0).UTC(),
	}
	st.nextID++
	st.approvals = append(st.approvals, a)
	return a, nil
}

func (memStore) CountApprovals(ctx context.Context, tx pgx.Tx, id int64) (int, error) {
	n := 0
	for _, a := range stateOf(tx).approvals {
		if a.PostulacionID == id {
			n++
		}
	}
	return n, nil
}

func (memStore) SaveDecision(ctx context.Context, tx pgx.Tx, d Decision) (Postulacion, error) {
	st := stateOf(tx)
	p, ok := st.posts[d.PostulacionID]
	if !ok {
		return Postulacion{}, ErrNotFound
	}
	p.Status = d.Status
	p.ApprovalsCount = d.ApprovalsCount
	if d.SocioID != nil {
		p.SocioID = d.SocioID
	}
	if d.ApprovedAt != nil {
		p.ApprovedAt = d.ApprovedAt
	}
	st.posts[p.ID] = p
	return p, nil
}

func (memStore) MarkRejected(ctx context.Context, tx pgx.Tx, id int64, reason string, at time.Time) (Postulacion, error) {
	st := stateOf(tx)
	p, ok := st.posts[id]
	if !ok {
		return Postulacion{}, ErrNotFound
	}
	p.Status = StatusRechazada
	p.RejectionReason = &reason
	p.RejectedAt = &at
	st.posts[id] = p
	return p, nil
}

func (memStore) ListApprovals(ctx context.Context, tx pgx.Tx, id int64) ([]Approval, error) {
	var out []Approval
	for _, a := range stateOf(tx).approvals {
		if a.PostulacionID == id {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (memStore) AppendEvent(ctx context.Context, tx pgx.Tx, ev Event) error {
	st := stateOf(tx)
	st.events = append(st.events, ev)
	return nil
}
