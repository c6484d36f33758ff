// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

// Package sqlite implements auth.AccountRepository on an embedded SQLite
// database. Times are stored as Unix nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Lugadilu/TaskFlow/internal/auth"
)

//go:embed schema.sql
var schema string

const busyTimeoutPragma = "_pragma=busy_timeout(5000)"

// Open opens the database at dsn and creates the accounts table if needed.
// An in-memory database is limited to one connection so every caller sees
// the same data.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if !strings.Contains(dsn, "busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + busyTimeoutPragma
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("operation", "open database").Wrap(err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("operation", "ping database").Wrap(err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_SCHEMA_FAILED").With("operation", "apply schema").Wrap(err)
	}
	return db, nil
}

const accountColumns = `id, username, email, password_hash,
	reset_token_hash, reset_token_expiry, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using SQLite.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// Create stores a new account. A duplicate email maps to auth.ErrAlreadyExists.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		account.ID.String(),
		account.Username,
		auth.NormalizeEmail(account.Email),
		account.PasswordHash,
		account.ResetTokenHash,
		nullableNanos(account.ResetTokenExpiry),
		nanos(account.CreatedAt),
		nanos(account.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeAlreadyExists).
				With("email", account.Email).
				Wrap(auth.ErrAlreadyExists)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(auth.CodeNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").With("id", id.String()).Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email, ignoring case.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	email = auth.NormalizeEmail(email)
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = ?`, email)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(auth.CodeNotFound).With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").With("email", email).Wrap(err)
	}
	return account, nil
}

// GetByResetToken retrieves the account whose reset window matches tokenHash
// and is open at now.
func (r *AccountRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*auth.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE reset_token_hash = ? AND reset_token_expiry > ?
	`, tokenHash, nanos(now))
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(auth.CodeNotFound).
			With("operation", "get by reset token").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_RESET_TOKEN_FAILED").Wrap(err)
	}
	return account, nil
}

// Update writes the mutable account fields.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			username = ?,
			password_hash = ?,
			reset_token_hash = ?,
			reset_token_expiry = ?,
			updated_at = ?
		WHERE id = ?
	`,
		account.Username,
		account.PasswordHash,
		account.ResetTokenHash,
		nullableNanos(account.ResetTokenExpiry),
		nanos(account.UpdatedAt),
		account.ID.String(),
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	return requireRow(result, account.ID)
}

// UpgradePasswordHash swaps the password hash when it still equals oldHash.
func (r *AccountRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET password_hash = ?, updated_at = ?
		WHERE id = ? AND password_hash = ?
	`, newHash, nanos(now), id.String(), oldHash)
	if err != nil {
		return oops.Code("ACCOUNT_UPGRADE_HASH_FAILED").
			With("operation", "upgrade password hash").
			With("id", id.String()).
			Wrap(err)
	}
	return requireRow(result, id)
}

// SetResetToken opens a reset window, replacing any earlier one.
func (r *AccountRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiry time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET reset_token_hash = ?, reset_token_expiry = ?
		WHERE id = ?
	`, tokenHash, nanos(expiry), id.String())
	if err != nil {
		return oops.Code("ACCOUNT_SET_RESET_TOKEN_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	return requireRow(result, id)
}

// ConsumeResetToken writes the new password hash and closes the reset window
// in one conditional UPDATE. SQLite serializes writers, so of two callers
// with the same token only the first matches a row.
func (r *AccountRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (ulid.ULID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		UPDATE accounts SET
			password_hash = ?,
			reset_token_hash = NULL,
			reset_token_expiry = NULL,
			updated_at = ?
		WHERE reset_token_hash = ? AND reset_token_expiry > ?
		RETURNING id
	`, passwordHash, nanos(now), tokenHash, nanos(now)).Scan(&idStr)
	if errors.Is(err, sql.ErrNoRows) {
		return ulid.ULID{}, oops.Code(auth.CodeNotFound).
			With("operation", "consume reset token").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_CONSUME_RESET_TOKEN_FAILED").
			With("operation", "consume reset token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	return id, nil
}

// ClearExpiredResetTokens closes every reset window that ended at or before now.
func (r *AccountRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET reset_token_hash = NULL, reset_token_expiry = NULL
		WHERE reset_token_expiry IS NOT NULL AND reset_token_expiry <= ?
	`, nanos(now))
	if err != nil {
		return 0, oops.Code("ACCOUNT_CLEAR_RESET_TOKENS_FAILED").
			With("operation", "clear expired reset tokens").
			Wrap(err)
	}
	cleared, err := result.RowsAffected()
	if err != nil {
		return 0, oops.Code("ACCOUNT_CLEAR_RESET_TOKENS_FAILED").
			With("operation", "rows affected").
			Wrap(err)
	}
	return cleared, nil
}

func requireRow(result sql.Result, id ulid.ULID) error {
	n, err := result.RowsAffected()
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "rows affected").Wrap(err)
	}
	if n == 0 {
		return oops.Code(auth.CodeNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanAccount(row *sql.Row) (*auth.Account, error) {
	var (
		idStr              string
		account            auth.Account
		resetHash          sql.NullString
		resetExpiry        sql.NullInt64
		created, updatedAt int64
	)
	err := row.Scan(
		&idStr,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&resetHash,
		&resetExpiry,
		&created,
		&updatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers map sql.ErrNoRows
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	account.ID = id
	account.CreatedAt = fromNanos(created)
	account.UpdatedAt = fromNanos(updatedAt)
	if resetHash.Valid {
		h := resetHash.String
		account.ResetTokenHash = &h
	}
	if resetExpiry.Valid {
		e := fromNanos(resetExpiry.Int64)
		account.ResetTokenExpiry = &e
	}
	return &account, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
