package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"happyday/backend/internal/identity/domain"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgInvalidText     = "22P02"
)

// Unique index name to the input field it protects.
var uniqueConstraintFields = map[string]string{
	"uq_users_username":    "username",
	"uq_users_email_lower": "email",
}

const userColumns = `id, username, email, password_hash, first_name, last_name, date_of_birth,
	gender, phone_number, is_anonymous, is_verified, is_active, role, privacy_consent,
	terms_accepted, last_login, created_at, updated_at, encrypted_personal_data,
	created_by, updated_by, data_retention_until, anonymization_requested, anonymization_date`

const (
	selectByIdentifier = `SELECT ` + userColumns + ` FROM users
	WHERE username = $1 OR lower(email) = lower($1)
	LIMIT 1`

	selectByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	upsertUser = `INSERT INTO users (` + userColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		$17, $18, $19, $20, $21, $22, $23, $24)
	ON CONFLICT (id) DO UPDATE SET
		username = EXCLUDED.username,
		email = EXCLUDED.email,
		password_hash = EXCLUDED.password_hash,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		date_of_birth = EXCLUDED.date_of_birth,
		gender = EXCLUDED.gender,
		phone_number = EXCLUDED.phone_number,
		is_anonymous = EXCLUDED.is_anonymous,
		is_verified = EXCLUDED.is_verified,
		is_active = EXCLUDED.is_active,
		role = EXCLUDED.role,
		privacy_consent = EXCLUDED.privacy_consent,
		terms_accepted = EXCLUDED.terms_accepted,
		last_login = GREATEST(users.last_login, EXCLUDED.last_login),
		updated_at = EXCLUDED.updated_at,
		encrypted_personal_data = EXCLUDED.encrypted_personal_data,
		updated_by = EXCLUDED.updated_by,
		data_retention_until = EXCLUDED.data_retention_until,
		anonymization_requested = EXCLUDED.anonymization_requested,
		anonymization_date = EXCLUDED.anonymization_date
	RETURNING ` + userColumns

	touchLastLogin = `UPDATE users
	SET last_login = GREATEST(last_login, $2), updated_at = $2
	WHERE id = $1 AND is_active
	RETURNING ` + userColumns

	updatePassword = `UPDATE users
	SET password_hash = $2, updated_by = $3, updated_at = $4
	WHERE id = $1 AND is_active
	RETURNING ` + userColumns
)

// PostgresRepository stores records in the users table.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository returns a store backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) FindByIdentifier(ctx context.Context, value string) (*domain.User, error) {
	if value == "" {
		return nil, nil
	}
	u, err := scanUser(r.db.QueryRowContext(ctx, selectByIdentifier, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &domain.StoreError{Op: "users.find_by_identifier", Err: err}
	}
	return u, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.rowByID(ctx, "users.find_by_id", selectByID, id)
}

// TouchLastLogin writes only last_login and updated_at, so concurrent changes to the
// record are not overwritten. An inactive record is left untouched.
func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) (*domain.User, error) {
	return r.rowByID(ctx, "users.touch_last_login", touchLastLogin, id, at.UTC())
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, hash, updatedBy string, at time.Time) (*domain.User, error) {
	if hash == "" {
		return nil, &domain.ValidationError{Field: "password_hash", Msg: "hash is required"}
	}
	return r.rowByID(ctx, "users.update_password", updatePassword, id, hash, nullString(updatedBy), at.UTC())
}

// rowByID runs a single-row statement keyed by id ($1). No row, or an id that is
// not a UUID, yields nil, nil.
func (r *PostgresRepository) rowByID(ctx context.Context, op, query, id string, args ...any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, append([]any{id}, args...)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		var pgErr *pgconn.PgError
		// 22P02: id is not a valid UUID, so no such record.
		if errors.As(err, &pgErr) && pgErr.Code == pgInvalidText {
			return nil, nil
		}
		return nil, &domain.StoreError{Op: op, Err: err}
	}
	return u, nil
}

// Save upserts u in a single statement. Uniqueness is decided by the database
// indexes; last_login never moves backwards.
func (r *PostgresRepository) Save(ctx context.Context, u *domain.User) (*domain.User, error) {
	const op = "users.save"
	in := *u
	if err := prepare(&in, r.now().UTC()); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, upsertUser,
		in.ID,
		nullString(in.Username),
		nullString(in.Email),
		nullString(in.PasswordHash),
		nullString(in.FirstName),
		nullString(in.LastName),
		nullTime(in.DateOfBirth),
		nullString(string(in.Gender)),
		nullString(in.PhoneNumber),
		in.IsAnonymous,
		in.IsVerified,
		in.IsActive,
		string(in.Role),
		in.PrivacyConsent,
		in.TermsAccepted,
		nullTime(in.LastLogin),
		in.CreatedAt,
		in.UpdatedAt,
		nullJSON(in.EncryptedPersonalData),
		nullString(in.CreatedBy),
		nullString(in.UpdatedBy),
		nullTime(in.DataRetentionUntil),
		in.AnonymizationRequested,
		nullTime(in.AnonymizationDate),
	)
	saved, err := scanUser(row)
	if err != nil {
		return nil, classify(op, err)
	}
	return saved, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return &domain.StoreError{Op: "users.ping", Err: err}
	}
	return nil
}

// classify maps constraint violations to domain errors; anything else is an
// infrastructure failure.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if field, ok := uniqueConstraintFields[pgErr.ConstraintName]; ok {
				return &domain.ConflictError{Op: op, Field: field}
			}
			return &domain.ConflictError{Op: op}
		case pgCheckViolation:
			return &domain.ValidationError{Field: pgErr.ConstraintName, Msg: "record violates a table constraint"}
		}
	}
	return &domain.StoreError{Op: op, Err: err}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                                          domain.User
		username, email, hash, first, last         sql.NullString
		gender, phone, role, createdBy, updatedBy  sql.NullString
		dob, lastLogin, retention, anonymizationAt sql.NullTime
		personal                                   []byte
	)
	err := row.Scan(
		&u.ID, &username, &email, &hash, &first, &last, &dob,
		&gender, &phone, &u.IsAnonymous, &u.IsVerified, &u.IsActive, &role, &u.PrivacyConsent,
		&u.TermsAccepted, &lastLogin, &u.CreatedAt, &u.UpdatedAt, &personal,
		&createdBy, &updatedBy, &retention, &u.AnonymizationRequested, &anonymizationAt,
	)
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.Email = email.String
	u.PasswordHash = hash.String
	u.FirstName = first.String
	u.LastName = last.String
	u.Gender = domain.Gender(gender.String)
	u.PhoneNumber = phone.String
	u.Role = domain.Role(role.String)
	u.CreatedBy = createdBy.String
	u.UpdatedBy = updatedBy.String
	u.DateOfBirth = timePtr(dob)
	u.LastLogin = timePtr(lastLogin)
	u.DataRetentionUntil = timePtr(retention)
	u.AnonymizationDate = timePtr(anonymizationAt)
	if len(personal) > 0 {
		u.EncryptedPersonalData = personal
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

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
