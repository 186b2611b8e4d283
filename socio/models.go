package socio

import "time"

const (
	EstadoActivo = "activo"

	defaultMembershipType = "regular"
)

// Applicant carries the postulacion fields the provisioner copies onto the
// member account.
type Applicant struct {
	FullName string
	Email    string
	Phone    string
	RUT      string
	City     string
	Region   string
}

// Account mirrors the socios table columns touched by provisioning.
type Account struct {
	ID             int64
	Email          string
	FirstName      string
	LastName       string
	Activo         bool
	EstadoSocio    string
	MembershipType string
	FechaIngreso   *time.Time
}

// Result is the outcome of ProvisionOrReactivate. GeneratedPassword is set
// only when a new credential was issued; it is never persisted in plaintext
// and callers must surface it at most once.
type Result struct {
	AccountID         int64   `json:"account_id"`
	GeneratedPassword *string `json:"generated_password,omitempty"`
	ReusedExisting    bool    `json:"reused_existing"`
	Reactivated       bool    `json:"reactivated"`
}

// CreateParams enumerates the columns written for a brand new account.
type CreateParams struct {
	Email          string
	FirstName      string
	LastName       string
	Phone          string
	RUT            string
	City           string
	Region         string
	PasswordHash   string
	MembershipType string
	FechaIngreso   time.Time
}

// ReactivateParams enumerates the columns refreshed on an inactive account.
type ReactivateParams struct {
	FirstName    string
	LastName     string
	Phone        string
	RUT          string
	City         string
	Region       string
	PasswordHash string
	FechaIngreso time.Time
}
