package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	userauth "github.com/VilnaCRM-Org/user-service-sub004"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ userauth.UserProvider = (*Store)(nil)

// ErrDuplicateEmail is returned by CreateUser when the email is taken.
var ErrDuplicateEmail = errors.New("userstore: email already registered")

const uniqueViolation = "23505"

const userColumns = `id::text, email, initials, password_hash, roles, two_factor_enabled, two_factor_secret`

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements userauth.UserProvider on PostgreSQL.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Open creates a connection pool for dsn and pings it.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("userstore: parse config: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("userstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("userstore: ping: %w", err)
	}
	return pool, nil
}

/*
====================================
ACCOUNTS
====================================
*/

// CreateUser inserts a new account. An empty ID is replaced with a fresh
// UUID and empty roles with ROLE_USER.
func (s *Store) CreateUser(ctx context.Context, u userauth.User) (userauth.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{"ROLE_USER"}
	}
	u.Email = strings.TrimSpace(u.Email)

	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, email, initials, password_hash, roles)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Initials, u.PasswordHash, u.Roles,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return userauth.User{}, ErrDuplicateEmail
		}
		return userauth.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (userauth.User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`,
		strings.TrimSpace(email))
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return userauth.User{}, userauth.ErrUserByEmailNotFound
	}
	return u, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (userauth.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return userauth.User{}, userauth.ErrUserNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return userauth.User{}, userauth.ErrUserNotFound
	}
	return u, err
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.execOne(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		userID, hash)
}

/*
====================================
TWO-FACTOR
====================================
*/

func (s *Store) SetTwoFactorSecret(ctx context.Context, userID string, secret []byte) error {
	return s.execOne(ctx,
		`UPDATE users SET two_factor_secret = $2, last_totp_step = NULL, updated_at = NOW()
		 WHERE id = $1`,
		userID, secret)
}

func (s *Store) EnableTwoFactor(ctx context.Context, userID string, recoveryCodeHashes [][32]byte) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET two_factor_enabled = TRUE, updated_at = NOW() WHERE id = $1`,
			userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return userauth.ErrUserNotFound
		}
		return replaceCodes(ctx, tx, userID, recoveryCodeHashes)
	})
}

func (s *Store) DisableTwoFactor(ctx context.Context, userID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users
			 SET two_factor_enabled = FALSE, two_factor_secret = NULL, last_totp_step = NULL, updated_at = NOW()
			 WHERE id = $1`,
			userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return userauth.ErrUserNotFound
		}
		_, err = tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID)
		return err
	})
}

// MarkTwoFactorStep only moves last_totp_step forward, so a step is
// accepted at most once even across replicas.
func (s *Store) MarkTwoFactorStep(ctx context.Context, userID string, step int64) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET last_totp_step = $2
		 WHERE id = $1 AND (last_totp_step IS NULL OR last_totp_step < $2)`,
		userID, step)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReplaceRecoveryCodes(ctx context.Context, userID string, hashes [][32]byte) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return replaceCodes(ctx, tx, userID, hashes)
	})
}

func (s *Store) HasRecoveryCode(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM recovery_codes WHERE user_id = $1 AND code_hash = $2)`,
		userID, hash[:]).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ConsumeRecoveryCode(ctx context.Context, userID string, hash [32]byte) (int, bool, error) {
	var (
		remaining int
		consumed  bool
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM recovery_codes WHERE user_id = $1 AND code_hash = $2`,
			userID, hash[:])
		if err != nil {
			return err
		}
		consumed = tag.RowsAffected() == 1
		return tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM recovery_codes WHERE user_id = $1`,
			userID).Scan(&remaining)
	})
	if err != nil {
		return 0, false, err
	}
	return remaining, consumed, nil
}

/*
====================================
HELPERS
====================================
*/

func replaceCodes(ctx context.Context, tx pgx.Tx, userID string, hashes [][32]byte) error {
	if _, err := tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"recovery_codes"},
		[]string{"user_id", "code_hash"},
		pgx.CopyFromRows(codeRows(userID, hashes)),
	)
	return err
}

func codeRows(userID string, hashes [][32]byte) [][]any {
	rows := make([][]any, 0, len(hashes))
	for i := range hashes {
		rows = append(rows, []any{userID, hashes[i][:]})
	}
	return rows
}

func (s *Store) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return userauth.ErrUserNotFound
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanUser(row pgx.Row) (userauth.User, error) {
	var (
		u      userauth.User
		secret []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.Initials, &u.PasswordHash, &u.Roles, &u.TwoFactorEnabled, &secret)
	if err != nil {
		return userauth.User{}, err
	}
	if len(secret) > 0 {
		u.TwoFactorSecret = secret
	}
	return u, nil
}
