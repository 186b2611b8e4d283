package postulacion

import (
	"time"

	"github.com/jackc/pgx/v5"
)

// Columns is the select list understood by Scan.
const Columns = `id, full_name, email, phone, rut, birth_date, gender, city, region,
       occupation, motivation, status, approvals_required, approvals_count,
       rejection_reason, approved_at, rejected_at, socio_id, created_at, updated_at`

// row holds a postulaciones row exactly as stored. Rows written before the
// decision columns existed may carry nulls anywhere but id.
type row struct {
	ID                int64
	FullName          *string
	Email             *string
	Phone             *string
	RUT               *string
	BirthDate         *time.Time
	Gender            *string
	City              *string
	Region            *string
	Occupation        *string
	Motivation        *string
	Status            *string
	ApprovalsRequired *int
	ApprovalsCount    *int
	RejectionReason   *string
	ApprovedAt        *time.Time
	RejectedAt        *time.Time
	SocioID           *int64
	CreatedAt         *time.Time
	UpdatedAt         *time.Time
}

// Scan reads one row selected with Columns.
func Scan(r pgx.Row) (Postulacion, error) {
	var raw row
	if err := r.Scan(
		&raw.ID,
		&raw.FullName,
		&raw.Email,
		&raw.Phone,
		&raw.RUT,
		&raw.BirthDate,
		&raw.Gender,
		&raw.City,
		&raw.Region,
		&raw.Occupation,
		&raw.Motivation,
		&raw.Status,
		&raw.ApprovalsRequired,
		&raw.ApprovalsCount,
		&raw.RejectionReason,
		&raw.ApprovedAt,
		&raw.RejectedAt,
		&raw.SocioID,
		&raw.CreatedAt,
		&raw.UpdatedAt,
	); err != nil {
		return Postulacion{}, err
	}
	return raw.toPostulacion(), nil
}

// toPostulacion is the only place null-coalescing rules live:
// text columns default to "", a missing or non-positive quorum to
// DefaultApprovalsRequired, a missing count to 0 and an unknown status to
// pendiente. An empty rejection reason is kept as nil.
func (r row) toPostulacion() Postulacion {
	p := Postulacion{
		ID:                r.ID,
		FullName:          str(r.FullName),
		Email:             str(r.Email),
		Phone:             str(r.Phone),
		RUT:               str(r.RUT),
		BirthDate:         r.BirthDate,
		Gender:            str(r.Gender),
		City:              str(r.City),
		Region:            str(r.Region),
		Occupation:        str(r.Occupation),
		Motivation:        str(r.Motivation),
		Status:            StatusPendiente,
		ApprovalsRequired: DefaultApprovalsRequired,
		ApprovedAt:        r.ApprovedAt,
		RejectedAt:        r.RejectedAt,
		SocioID:           r.SocioID,
	}
	if r.Status != nil {
		if s, ok := ParseStatus(*r.Status); ok {
			p.Status = s
		}
	}
	if r.ApprovalsRequired != nil && *r.ApprovalsRequired >= 1 {
		p.ApprovalsRequired = *r.ApprovalsRequired
	}
	if r.ApprovalsCount != nil && *r.ApprovalsCount > 0 {
		p.ApprovalsCount = *r.ApprovalsCount
	}
	if r.RejectionReason != nil && *r.RejectionReason != "" {
		reason := *r.RejectionReason
		p.RejectionReason = &reason
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		p.UpdatedAt = *r.UpdatedAt
	} else {
		p.UpdatedAt = p.CreatedAt
	}
	return p
}

func str(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
