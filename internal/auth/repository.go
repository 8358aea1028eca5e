package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jmoiron/sqlx"
)

// Repository defines persistence operations for session records.
type Repository interface {
	CreateSession(ctx context.Context, rec SessionRecord) error
	DeleteSession(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	ListSessions(ctx context.Context, userID int64) ([]SessionRecord, error)
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db DBTX) *PGRepository {
	return &PGRepository{db: db}
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, rec SessionRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_sessions (id, user_id, created_at, expires_at, ip, ua) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID,
		pgtype.Timestamptz{Time: rec.CreatedAt.UTC(), Valid: true},
		pgtype.Timestamptz{Time: rec.ExpiresAt.UTC(), Valid: true},
		pgtype.Text{String: rec.IP, Valid: rec.IP != ""},
		pgtype.Text{String: rec.UserAgent, Valid: rec.UserAgent != ""},
	)
	if err != nil {
		return fmt.Errorf("auth: create session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes session records that expired before now.
func (r *PGRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("auth: purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListSessions returns the audit rows of a user, newest first.
func (r *PGRepository) ListSessions(ctx context.Context, userID int64) ([]SessionRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, created_at, expires_at, ip, ua FROM user_sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: list sessions: %w", err)
	}
	defer rows.Close()
	var out []SessionRecord
	for rows.Next() {
		var (
			rec    SessionRecord
			ip, ua pgtype.Text
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &rec.ExpiresAt, &ip, &ua); err != nil {
			return nil, fmt.Errorf("auth: scan session: %w", err)
		}
		rec.IP = ip.String
		rec.UserAgent = ua.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auth: list sessions: %w", err)
	}
	return out, nil
}

// SQLiteRepository implements Repository on an embedded SQLite database.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository constructs a SQLite repository.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type sessionRow struct {
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
	IP        *string   `db:"ip"`
	UA        *string   `db:"ua"`
}

// CreateSession persists a new login session in the database for auditing.
func (r *SQLiteRepository) CreateSession(ctx context.Context, rec SessionRecord) error {
	row := sessionRow{
		ID:        rec.ID,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt.UTC(),
		ExpiresAt: rec.ExpiresAt.UTC(),
		IP:        nullable(rec.IP),
		UA:        nullable(rec.UserAgent),
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO user_sessions (id, user_id, created_at, expires_at, ip, ua)
		 VALUES (:id, :user_id, :created_at, :expires_at, :ip, :ua)`, row)
	if err != nil {
		return fmt.Errorf("auth: create session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record from the database.
func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes session records that expired before now.
func (r *SQLiteRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("auth: purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// ListSessions returns the audit rows of a user, newest first.
func (r *SQLiteRepository) ListSessions(ctx context.Context, userID int64) ([]SessionRecord, error) {
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, created_at, expires_at, ip, ua FROM user_sessions WHERE user_id = ? ORDER BY created_at DESC`, userID); err != nil {
		return nil, fmt.Errorf("auth: list sessions: %w", err)
	}
	out := make([]SessionRecord, 0, len(rows))
	for _, row := range rows {
		rec := SessionRecord{ID: row.ID, UserID: row.UserID, CreatedAt: row.CreatedAt, ExpiresAt: row.ExpiresAt}
		if row.IP != nil {
			rec.IP = *row.IP
		}
		if row.UA != nil {
			rec.UserAgent = *row.UA
		}
		out = append(out, rec)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	_ Repository = (*PGRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
)
