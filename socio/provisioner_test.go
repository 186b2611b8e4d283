package socio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"sociosflow/apperr"
)

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestProvisioner(store Store) *Provisioner {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewProvisioner(store, logger).
		WithClock(func() time.Time { return fixedNow }).
		WithHashCost(bcrypt.MinCost)
}

func TestProvisionOrReactivate_CreatesAccount(t *testing.T) {
	store := newFakeStore()
	p := newTestProvisioner(store)

	res, err := p.ProvisionOrReactivate(context.Background(), nil, Applicant{
		FullName: "  Ana María  Pérez Soto ",
		Email:    "Ana@Example.com",
		City:     "Valparaíso",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if res.ReusedExisting || res.Reactivated {
		t.Fatalf("expected a fresh account, got %+v", res)
	}
	if res.GeneratedPassword == nil || len(*res.GeneratedPassword) != PasswordLength {
		t.Fatalf("expected a generated password, got %+v", res.GeneratedPassword)
	}

	created := store.created[0]
	if created.Email != "ana@example.com" {
		t.Fatalf("expected lower-cased email, got %q", created.Email)
	}
	if created.FirstName != "Ana" || created.LastName != "María Pérez Soto" {
		t.Fatalf("unexpected name split %q / %q", created.FirstName, created.LastName)
	}
	if created.MembershipType != defaultMembershipType || !created.FechaIngreso.Equal(fixedNow) {
		t.Fatalf("unexpected membership terms %+v", created)
	}
	if created.PasswordHash == *res.GeneratedPassword {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte(*res.GeneratedPassword)); err != nil {
		t.Fatalf("hash does not verify generated password: %v", err)
	}
}

func TestProvisionOrReactivate_ReusesActiveAccount(t *testing.T) {
	store := newFakeStore()
	store.accounts["ana@example.com"] = Account{ID: 7, Email: "ana@example.com", Activo: true, EstadoSocio: EstadoActivo}
	p := newTestProvisioner(store)

	res, err := p.ProvisionOrReactivate(context.Background(), nil, Applicant{FullName: "Ana Pérez", Email: "ANA@example.com"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !res.ReusedExisting || res.AccountID != 7 {
		t.Fatalf("expected reuse of account 7, got %+v", res)
	}
	if res.GeneratedPassword != nil {
		t.Fatal("reused account must not return a password")
	}
	if len(store.created) != 0 || len(store.reactivated) != 0 {
		t.Fatal("reuse must not write to the store")
	}
}

func TestProvisionOrReactivate_ReactivatesKeepingEnrollmentDate(t *testing.T) {
	enrolled := time.Date(2019, 5, 4, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.accounts["ana@example.com"] = Account{ID: 9, Email: "ana@example.com", EstadoSocio: "inactivo", FechaIngreso: &enrolled}
	p := newTestProvisioner(store)

	res, err := p.ProvisionOrReactivate(context.Background(), nil, Applicant{FullName: "Ana Pérez", Email: "ana@example.com", Phone: "+56 9 1234"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !res.Reactivated || res.ReusedExisting || res.AccountID != 9 || res.GeneratedPassword == nil {
		t.Fatalf("unexpected result %+v", res)
	}

	params := store.reactivated[9]
	if !params.FechaIngreso.Equal(enrolled) {
		t.Fatalf("expected enrollment date preserved, got %v", params.FechaIngreso)
	}
	if params.Phone != "+56 9 1234" || params.FirstName != "Ana" {
		t.Fatalf("expected contact fields refreshed, got %+v", params)
	}
}

func TestProvisionOrReactivate_ReactivationSetsMissingEnrollmentDate(t *testing.T) {
	store := newFakeStore()
	store.accounts["ana@example.com"] = Account{ID: 9, Email: "ana@example.com"}
	p := newTestProvisioner(store)

	if _, err := p.ProvisionOrReactivate(context.Background(), nil, Applicant{Email: "ana@example.com"}); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if got := store.reactivated[9].FechaIngreso; !got.Equal(fixedNow) {
		t.Fatalf("expected enrollment date set to now, got %v", got)
	}
}

func TestProvisionOrReactivate_StoreFailureIsInternal(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("disk full")
	p := newTestProvisioner(store)

	_, err := p.ProvisionOrReactivate(context.Background(), nil, Applicant{FullName: "Ana", Email: "ana@example.com"})
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestProvisionOrReactivate_RequiresEmail(t *testing.T) {
	p := newTestProvisioner(newFakeStore())
	_, err := p.ProvisionOrReactivate(context.Background(), nil, Applicant{FullName: "Ana"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		full, email, first, last string
	}{
		{"Ana Pérez", "a@x.cl", "Ana", "Pérez"},
		{"Juan  Carlos   Soto", "j@x.cl", "Juan", "Carlos Soto"},
		{"Cher", "c@x.cl", "Cher", ""},
		{"   ", "luis.rojas@x.cl", "luis.rojas", ""},
		{"", "", "", ""},
	}
	for _, tc := range cases {
		first, last := SplitName(tc.full, tc.email)
		if first != tc.first || last != tc.last {
			t.Errorf("SplitName(%q, %q) = %q, %q; want %q, %q", tc.full, tc.email, first, last, tc.first, tc.last)
		}
	}
}

type fakeStore struct {
	accounts    map[string]Account
	created     []CreateParams
	reactivated map[int64]ReactivateParams
	createErr   error
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:    make(map[string]Account),
		reactivated: make(map[int64]ReactivateParams),
		nextID:      100,
	}
}

func (f *fakeStore) FindByEmailForUpdate(ctx context.Context, tx pgx.Tx, email string) (Account, error) {
	acc, ok := f.accounts[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (f *fakeStore) Create(ctx context.Context, tx pgx.Tx, params CreateParams) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	f.created = append(f.created, params)
	f.accounts[params.Email] = Account{ID: f.nextID, Email: params.Email, Activo: true, EstadoSocio: EstadoActivo}
	return f.nextID, nil
}

func (f *fakeStore) Reactivate(ctx context.Context, tx pgx.Tx, id int64, params ReactivateParams) error {
	f.reactivated[id] = params
	return nil
}
