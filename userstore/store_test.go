package userstore

import (
	"context"
	"errors"
	"os"
	"testing"

	userauth "github.com/VilnaCRM-Org/user-service-sub004"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = r.values[i].(string)
		case *[]string:
			*d = r.values[i].([]string)
		case *bool:
			*d = r.values[i].(bool)
		case *[]byte:
			if r.values[i] != nil {
				*d = r.values[i].([]byte)
			}
		}
	}
	return nil
}

type fakeDB struct {
	row      fakeRow
	tag      pgconn.CommandTag
	execErr  error
	queries  int
	lastSQL  string
	lastArgs []any
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.lastSQL, db.lastArgs = sql, args
	return db.tag, db.execErr
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.queries++
	db.lastSQL, db.lastArgs = sql, args
	return db.row
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("transactions not supported by fakeDB")
}

func TestGetUserByEmailMapsRow(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{
		"6f1c2a9e-4b1d-4c55-9a6e-0f5a4c2b7d10", "user@example.com", "UE", "$argon2id$...",
		[]string{"ROLE_USER"}, true, []byte{1, 2, 3},
	}}}
	s := New(db)

	u, err := s.GetUserByEmail(context.Background(), "  User@Example.com ")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.Email != "user@example.com" || !u.TwoFactorEnabled || len(u.TwoFactorSecret) != 3 {
		t.Fatalf("user = %+v", u)
	}
	if db.lastArgs[0] != "User@Example.com" {
		t.Fatalf("email argument = %v", db.lastArgs[0])
	}
}

func TestGetUserNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	s := New(db)

	if _, err := s.GetUserByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, userauth.ErrUserByEmailNotFound) {
		t.Fatalf("by email err = %v", err)
	}
	if _, err := s.GetUserByID(context.Background(), "6f1c2a9e-4b1d-4c55-9a6e-0f5a4c2b7d10"); !errors.Is(err, userauth.ErrUserNotFound) {
		t.Fatalf("by id err = %v", err)
	}
}

func TestGetUserByIDRejectsNonUUID(t *testing.T) {
	db := &fakeDB{}
	s := New(db)
	if _, err := s.GetUserByID(context.Background(), "user@example.com"); !errors.Is(err, userauth.ErrUserNotFound) {
		t.Fatalf("err = %v", err)
	}
	if db.queries != 0 {
		t.Fatal("non-UUID id reached the database")
	}
}

func TestBackendErrorsPassThrough(t *testing.T) {
	boom := errors.New("connection reset")
	s := New(&fakeDB{row: fakeRow{err: boom}})
	if _, err := s.GetUserByEmail(context.Background(), "user@example.com"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestUpdatePasswordHashMissingUser(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	s := New(db)
	if err := s.UpdatePasswordHash(context.Background(), "6f1c2a9e-4b1d-4c55-9a6e-0f5a4c2b7d10", "h"); !errors.Is(err, userauth.ErrUserNotFound) {
		t.Fatalf("err = %v", err)
	}

	db.tag = pgconn.NewCommandTag("UPDATE 1")
	if err := s.UpdatePasswordHash(context.Background(), "6f1c2a9e-4b1d-4c55-9a6e-0f5a4c2b7d10", "h"); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestHasRecoveryCodeDoesNotConsume(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{true}}}
	s := New(db)
	hash := [32]byte{7}

	ok, err := s.HasRecoveryCode(context.Background(), "u1", hash)
	if err != nil || !ok {
		t.Fatalf("HasRecoveryCode = %v, %v", ok, err)
	}
	if db.queries != 1 || db.lastArgs[0] != "u1" {
		t.Fatalf("queries = %d, args = %v", db.queries, db.lastArgs)
	}
	if got, _ := db.lastArgs[1].([]byte); len(got) != 32 || got[0] != 7 {
		t.Fatalf("hash arg = %v", db.lastArgs[1])
	}

	boom := errors.New("boom")
	if _, err := New(&fakeDB{row: fakeRow{err: boom}}).HasRecoveryCode(context.Background(), "u1", hash); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestMarkTwoFactorStep(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	s := New(db)
	ok, err := s.MarkTwoFactorStep(context.Background(), "u1", 42)
	if err != nil || !ok {
		t.Fatalf("first mark = %v, %v", ok, err)
	}

	db.tag = pgconn.NewCommandTag("UPDATE 0")
	ok, err = s.MarkTwoFactorStep(context.Background(), "u1", 42)
	if err != nil || ok {
		t.Fatalf("replayed mark = %v, %v", ok, err)
	}
}

func TestCodeRows(t *testing.T) {
	hashes := [][32]byte{{1}, {2}}
	rows := codeRows("u1", hashes)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[1][0] != "u1" || rows[1][1].([]byte)[0] != 2 {
		t.Fatalf("row = %v", rows[1])
	}
}

// TestStoreAgainstPostgres runs when USERSTORE_TEST_DSN points at a
// disposable database.
func TestStoreAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("USERSTORE_TEST_DSN")
	if dsn == "" {
		t.Skip("USERSTORE_TEST_DSN not set")
	}
	ctx := context.Background()
	if err := Migrate(dsn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	pool, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()
	s := New(pool)

	u, err := s.CreateUser(ctx, userauth.User{Email: "pg-" + t.Name() + "@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, u.ID) })

	if _, err := s.CreateUser(ctx, userauth.User{Email: u.Email, PasswordHash: "h"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("duplicate err = %v", err)
	}

	if err := s.SetTwoFactorSecret(ctx, u.ID, []byte("secret")); err != nil {
		t.Fatalf("SetTwoFactorSecret: %v", err)
	}
	if err := s.EnableTwoFactor(ctx, u.ID, [][32]byte{{1}, {2}}); err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	got, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !got.TwoFactorEnabled || string(got.TwoFactorSecret) != "secret" || got.Roles[0] != "ROLE_USER" {
		t.Fatalf("user = %+v", got)
	}

	if ok, err := s.MarkTwoFactorStep(ctx, u.ID, 10); err != nil || !ok {
		t.Fatalf("mark 10 = %v, %v", ok, err)
	}
	if ok, err := s.MarkTwoFactorStep(ctx, u.ID, 10); err != nil || ok {
		t.Fatalf("replay 10 = %v, %v", ok, err)
	}

	if ok, err := s.HasRecoveryCode(ctx, u.ID, [32]byte{1}); err != nil || !ok {
		t.Fatalf("has code 1 = %v, %v", ok, err)
	}
	remaining, ok, err := s.ConsumeRecoveryCode(ctx, u.ID, [32]byte{1})
	if err != nil || !ok || remaining != 1 {
		t.Fatalf("consume = %d, %v, %v", remaining, ok, err)
	}
	if _, ok, _ := s.ConsumeRecoveryCode(ctx, u.ID, [32]byte{1}); ok {
		t.Fatal("recovery code consumed twice")
	}
	if ok, _ := s.HasRecoveryCode(ctx, u.ID, [32]byte{1}); ok {
		t.Fatal("consumed code still reported")
	}

	if err := s.DisableTwoFactor(ctx, u.ID); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}
	got, _ = s.GetUserByEmail(ctx, u.Email)
	if got.TwoFactorEnabled || got.TwoFactorSecret != nil {
		t.Fatalf("user after disable = %+v", got)
	}
}
