package postulacion

import (
	"time"

	"sociosflow/socio"
)

type Status string

const (
	StatusPendiente  Status = "pendiente"
	StatusEnRevision Status = "en_revision"
	StatusAprobada   Status = "aprobada"
	StatusRechazada  Status = "rechazada"
)

// DefaultApprovalsRequired is the quorum applied when a row carries none.
const DefaultApprovalsRequired = 2

const (
	MaxCommentLength = 2000
	MaxReasonLength  = 1000
)

// IsTerminal reports whether no further approval or rejection is accepted.
func (s Status) IsTerminal() bool {
	return s == StatusAprobada || s == StatusRechazada
}

// ParseStatus validates a status filter value.
func ParseStatus(v string) (Status, bool) {
	switch s := Status(v); s {
	case StatusPendiente, StatusEnRevision, StatusAprobada, StatusRechazada:
		return s, true
	}
	return "", false
}

// Postulacion is a membership application as read from the postulaciones table.
type Postulacion struct {
	ID                int64      `json:"id"`
	FullName          string     `json:"full_name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone,omitempty"`
	RUT               string     `json:"rut,omitempty"`
	BirthDate         *time.Time `json:"birth_date,omitempty"`
	Gender            string     `json:"gender,omitempty"`
	City              string     `json:"city,omitempty"`
	Region            string     `json:"region,omitempty"`
	Occupation        string     `json:"occupation,omitempty"`
	Motivation        string     `json:"motivation,omitempty"`
	Status            Status     `json:"status"`
	ApprovalsRequired int        `json:"approvals_required"`
	ApprovalsCount    int        `json:"approvals_count"`
	RejectionReason   *string    `json:"rejection_reason"`
	ApprovedAt        *time.Time `json:"approved_at"`
	RejectedAt        *time.Time `json:"rejected_at"`
	SocioID           *int64     `json:"socio_id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// PendingApprovals is max(0, required - count).
func (p Postulacion) PendingApprovals() int {
	if n := p.ApprovalsRequired - p.ApprovalsCount; n > 0 {
		return n
	}
	return 0
}

// Applicant projects the fields copied onto the member account.
func (p Postulacion) Applicant() socio.Applicant {
	return socio.Applicant{
		FullName: p.FullName,
		Email:    p.Email,
		Phone:    p.Phone,
		RUT:      p.RUT,
		City:     p.City,
		Region:   p.Region,
	}
}

// Approval is one director's vote.
type Approval struct {
	ID            int64     `json:"id"`
	PostulacionID int64     `json:"postulacion_id"`
	ApproverID    int64     `json:"approver_id"`
	ApproverRole  string    `json:"approver_role"`
	Comment       *string   `json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
}

// View is the result of a decision: the record, its ordered votes and, when
// the call provisioned an account, the provisioning outcome. A generated
// password appears here once and is never readable again.
type View struct {
	Postulacion      Postulacion   `json:"postulacion"`
	Approvals        []Approval    `json:"approvals"`
	PendingApprovals int           `json:"pending_approvals"`
	Provisioning     *socio.Result `json:"provisioning,omitempty"`
}

func newView(p Postulacion, approvals []Approval) View {
	if approvals == nil {
		approvals = []Approval{}
	}
	return View{
		Postulacion:      p,
		Approvals:        approvals,
		PendingApprovals: p.PendingApprovals(),
	}
}

type NewApproval struct {
	PostulacionID int64
	ApproverID    int64
	ApproverRole  string
	Comment       *string
}

// Decision enumerates the columns written after a vote is counted.
type Decision struct {
	PostulacionID  int64
	Status         Status
	ApprovalsCount int
	SocioID        *int64
	ApprovedAt     *time.Time
}

const (
	EventVoteCast        = "VOTE_CAST"
	EventApproved        = "APPROVED"
	EventRejected        = "REJECTED"
	EventReviewerAdded   = "REVIEWER_ASSIGNED"
	EventReviewerRemoved = "REVIEWER_REMOVED"
	EventFeedbackUpdated = "FEEDBACK_UPDATED"
)

// Event is an audit timeline entry written in the same transaction as the
// change it records.
type Event struct {
	PostulacionID int64
	Type          string
	ActorID       *int64
	Payload       map[string]any
}
