package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
)

// SQLiteRepository implements Repository on an embedded SQLite database.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository constructs a SQLite repository.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type userRow struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Job          string    `db:"job"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) toUser() *User {
	return &User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Job:          r.Job,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Create inserts user and fills in its id and timestamps.
func (r *SQLiteRepository) Create(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, job, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.Name, user.Email, user.Job, user.PasswordHash, now, now,
	)
	if err != nil {
		return sqliteError("create user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("users: create user: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// FindByID fetches a user by primary key.
func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByEmail fetches a user by exact email.
func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// UpdateProfile writes the non-credential columns of user.
func (r *SQLiteRepository) UpdateProfile(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, job = ?, updated_at = ? WHERE id = ?`,
		user.Name, user.Email, user.Job, now, user.ID,
	)
	if err != nil {
		return sqliteError("update profile", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	user.UpdatedAt = now
	return nil
}

// UpdatePasswordHash replaces the stored hash.
func (r *SQLiteRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return sqliteError("update password", err)
	}
	return requireRow(res)
}

// Delete removes the user. Sessions go with it through the foreign key.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return sqliteError("delete user", err)
	}
	return requireRow(res)
}

// Count returns the number of registered users.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, sqliteError("count users", err)
	}
	return n, nil
}

func (r *SQLiteRepository) get(ctx context.Context, query string, arg any) (*User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: get: %w", err)
	}
	return row.toUser(), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("users: rows affected: %w", err)
	}
	if n == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func sqliteError(op string, err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("users: %s: %w", op, shared.ErrDuplicate)
	}
	return fmt.Errorf("users: %s: %w", op, err)
}

var _ Repository = (*SQLiteRepository)(nil)
