package reviewer

import (
	"time"

	"sociosflow/auth"
)

const (
	MaxReviewers      = 2
	MaxFeedbackLength = 5000
)

// Reviewer is one assignment joined with the reviewer's staff identity.
type Reviewer struct {
	ID            int64     `json:"id"`
	PostulacionID int64     `json:"postulacion_id"`
	ReviewerID    int64     `json:"reviewer_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          auth.Role `json:"role"`
	AssignedBy    int64     `json:"assigned_by"`
	Feedback      *string   `json:"feedback"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// List is the reviewer set of one postulacion, oldest assignment first.
type List struct {
	PostulacionID int64      `json:"postulacion_id"`
	Reviewers     []Reviewer `json:"reviewers"`
}

type NewAssignment struct {
	PostulacionID int64
	ReviewerID    int64
	AssignedBy    int64
}
