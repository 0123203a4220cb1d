package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"user-auth-service/internal/user/domain"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, user_type, is_active, created_at, last_login_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByIdentifier returns the user with the given email or username, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 OR username = $1`, identifier)
	return scanUser(row)
}

// Create persists the user to the database. The user must have ID set; it is not assigned by this method.
// Returns ErrDuplicate when the email or username collides with an existing row.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Username, u.Email, u.PasswordHash,
		nullString(u.FirstName), nullString(u.LastName),
		string(u.UserType), u.IsActive, u.CreatedAt, nullTime(u.LastLoginAt),
	)
	if IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Update updates the existing user record. Missing rows are a no-op, not an error.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET username = $2, email = $3, password_hash = $4, first_name = $5,
		     last_name = $6, user_type = $7, is_active = $8, last_login_at = $9
		 WHERE id = $1`,
		u.ID, u.Username, u.Email, u.PasswordHash,
		nullString(u.FirstName), nullString(u.LastName),
		string(u.UserType), u.IsActive, nullTime(u.LastLoginAt),
	)
	return err
}

// UpdateLastLogin sets the user's last-login timestamp for the given id.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint violation.
// The workflow uses this as the backstop for concurrent duplicate registrations
// that pass the read-then-write check.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u         domain.User
		firstName sql.NullString
		lastName  sql.NullString
		userType  string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&firstName, &lastName, &userType, &u.IsActive, &u.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.UserType = domain.UserType(userType)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
