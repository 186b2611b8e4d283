package postulacion

import (
	"testing"
	"time"
)

func TestToPostulacion_AppliesDefaultsToNullColumns(t *testing.T) {
	p := row{ID: 5}.toPostulacion()

	if p.Status != StatusPendiente {
		t.Fatalf("expected pendiente, got %q", p.Status)
	}
	if p.ApprovalsRequired != DefaultApprovalsRequired || p.ApprovalsCount != 0 {
		t.Fatalf("unexpected quorum fields %d/%d", p.ApprovalsCount, p.ApprovalsRequired)
	}
	if p.FullName != "" || p.Email != "" || p.RejectionReason != nil || p.SocioID != nil {
		t.Fatalf("unexpected non-zero fields %+v", p)
	}
	if p.PendingApprovals() != 2 {
		t.Fatalf("expected 2 pending approvals, got %d", p.PendingApprovals())
	}
}

func TestToPostulacion_NormalizesOutOfRangeValues(t *testing.T) {
	zero, negative := 0, -3
	unknown, empty := "archivada", ""
	p := row{ID: 1, ApprovalsRequired: &zero, ApprovalsCount: &negative, Status: &unknown, RejectionReason: &empty}.toPostulacion()

	if p.ApprovalsRequired != DefaultApprovalsRequired {
		t.Fatalf("expected default quorum for 0, got %d", p.ApprovalsRequired)
	}
	if p.ApprovalsCount != 0 {
		t.Fatalf("expected negative count clamped to 0, got %d", p.ApprovalsCount)
	}
	if p.Status != StatusPendiente {
		t.Fatalf("expected unknown status mapped to pendiente, got %q", p.Status)
	}
	if p.RejectionReason != nil {
		t.Fatal("expected empty reason mapped to nil")
	}
}

func TestToPostulacion_CopiesStoredValues(t *testing.T) {
	name, status, reason := "Ana Pérez", "rechazada", "incomplete references"
	required, count := 3, 1
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	p := row{
		ID:                9,
		FullName:          &name,
		Status:            &status,
		ApprovalsRequired: &required,
		ApprovalsCount:    &count,
		RejectionReason:   &reason,
		CreatedAt:         &created,
	}.toPostulacion()

	if p.FullName != name || p.Status != StatusRechazada || p.ApprovalsRequired != 3 || p.ApprovalsCount != 1 {
		t.Fatalf("unexpected mapping %+v", p)
	}
	if p.RejectionReason == nil || *p.RejectionReason != reason {
		t.Fatalf("unexpected reason %v", p.RejectionReason)
	}
	if !p.UpdatedAt.Equal(created) {
		t.Fatalf("expected updated_at to fall back to created_at, got %v", p.UpdatedAt)
	}
	if p.PendingApprovals() != 2 {
		t.Fatalf("expected 2 pending, got %d", p.PendingApprovals())
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusPendiente:  false,
		StatusEnRevision: false,
		StatusAprobada:   true,
		StatusRechazada:  true,
	} {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
	if _, ok := ParseStatus("APROBADA"); ok {
		t.Fatal("status parsing is case sensitive")
	}
}
