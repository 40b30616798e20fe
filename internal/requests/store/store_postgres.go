package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"registrar/internal/requests/models"
	id "registrar/pkg/domain"
	txcontext "registrar/pkg/platform/tx"
)

// Schema creates the domain_requests table. Applied by migrations tooling
// outside this module; kept here so integration tests can bootstrap a
// database.
const Schema = `
CREATE TABLE IF NOT EXISTS domain_requests (
	id                 UUID PRIMARY KEY,
	domain_name        TEXT NOT NULL,
	requester_id       TEXT NOT NULL,
	organization       TEXT NOT NULL,
	purpose            TEXT NOT NULL,
	status             TEXT NOT NULL,
	review_reason      TEXT NOT NULL DEFAULT '',
	last_error         TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	first_submitted_at TIMESTAMPTZ,
	last_submitted_at  TIMESTAMPTZ,
	status_changed_at  TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS domain_requests_open_name
	ON domain_requests (domain_name)
	WHERE status NOT IN ('approved', 'rejected', 'withdrawn', 'ineligible');
CREATE INDEX IF NOT EXISTS domain_requests_status ON domain_requests (status);
CREATE INDEX IF NOT EXISTS domain_requests_requester ON domain_requests (requester_id);
`

// PostgresStore persists domain requests in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, r *models.DomainRequest) error {
	query := `
		INSERT INTO domain_requests (
			id, domain_name, requester_id, organization, purpose, status,
			review_reason, last_error, created_at, first_submitted_at,
			last_submitted_at, status_changed_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(r.ID),
		r.DomainName,
		r.RequesterID,
		r.Organization,
		r.Purpose,
		string(r.Status),
		r.ReviewReason,
		r.LastError,
		r.CreatedAt,
		nullTime(r.FirstSubmittedAt),
		nullTime(r.LastSubmittedAt),
		r.StatusChangedAt,
		r.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrOpenRequestExists
	}
	if err != nil {
		return fmt.Errorf("insert domain request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.DomainRequest) error {
	query := `
		UPDATE domain_requests
		SET status = $2, review_reason = $3, last_error = $4,
		    first_submitted_at = $5, last_submitted_at = $6,
		    status_changed_at = $7, updated_at = $8
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(r.ID),
		string(r.Status),
		r.ReviewReason,
		r.LastError,
		nullTime(r.FirstSubmittedAt),
		nullTime(r.LastSubmittedAt),
		r.StatusChangedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update domain request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update domain request: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const requestColumns = `
	id, domain_name, requester_id, organization, purpose, status,
	review_reason, last_error, created_at, first_submitted_at,
	last_submitted_at, status_changed_at, updated_at
`

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM domain_requests WHERE id = $1`, uuid.UUID(requestID))
	return scanRequest(row)
}

func (s *PostgresStore) ListByRequester(ctx context.Context, requesterID string) ([]*models.DomainRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM domain_requests WHERE requester_id = $1 ORDER BY created_at DESC`,
		requesterID)
	if err != nil {
		return nil, fmt.Errorf("query requests by requester: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.DomainRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM domain_requests WHERE status = $1 ORDER BY last_submitted_at`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("query requests by status: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.DomainRequest, error) {
	var (
		r              models.DomainRequest
		requestID      uuid.UUID
		status         string
		firstSubmitted sql.NullTime
		lastSubmitted  sql.NullTime
	)
	err := row.Scan(
		&requestID, &r.DomainName, &r.RequesterID, &r.Organization, &r.Purpose,
		&status, &r.ReviewReason, &r.LastError, &r.CreatedAt,
		&firstSubmitted, &lastSubmitted, &r.StatusChangedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan domain request: %w", err)
	}
	r.ID = id.RequestID(requestID)
	r.Status = models.Status(status)
	if firstSubmitted.Valid {
		r.FirstSubmittedAt = firstSubmitted.Time
	}
	if lastSubmitted.Valid {
		r.LastSubmittedAt = lastSubmitted.Time
	}
	return &r, nil
}

func scanRequests(rows *sql.Rows) ([]*models.DomainRequest, error) {
	var out []*models.DomainRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain requests: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
