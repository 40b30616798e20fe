package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"registrar/internal/domains/models"
	id "registrar/pkg/domain"
	txcontext "registrar/pkg/platform/tx"
)

// Schema creates the domains table. Applied by migrations tooling outside
// this module; kept here so integration tests can bootstrap a database.
const Schema = `
CREATE TABLE IF NOT EXISTS domains (
	id             UUID PRIMARY KEY,
	request_id     UUID NOT NULL,
	name           TEXT NOT NULL,
	state          TEXT NOT NULL,
	prior_state    TEXT NOT NULL DEFAULT '',
	registrant     TEXT NOT NULL,
	nameservers    TEXT[] NOT NULL DEFAULT '{}',
	contacts       JSONB NOT NULL DEFAULT '[]',
	registered_at  TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL,
	last_synced_at TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS domains_live_name
	ON domains (name) WHERE state <> 'deleted';
CREATE INDEX IF NOT EXISTS domains_state ON domains (state);
CREATE INDEX IF NOT EXISTS domains_expires_at ON domains (expires_at);
`

// PostgresStore persists domains in PostgreSQL.
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

func (s *PostgresStore) Create(ctx context.Context, d *models.Domain) error {
	query := `
		INSERT INTO domains (
			id, request_id, name, state, prior_state, registrant,
			nameservers, contacts, registered_at, expires_at, last_synced_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	contacts, err := marshalContacts(d.Contacts)
	if err != nil {
		return err
	}
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		uuid.UUID(d.RequestID),
		d.Name,
		string(d.State),
		string(d.PriorState),
		d.Registrant,
		pq.Array(d.Nameservers),
		contacts,
		d.RegisteredAt,
		d.ExpiresAt,
		nullTime(d.LastSyncedAt),
		d.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("insert domain: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, d *models.Domain) error {
	query := `
		UPDATE domains
		SET state = $2, prior_state = $3, nameservers = $4, contacts = $5,
		    expires_at = $6, last_synced_at = $7, updated_at = $8
		WHERE id = $1
	`
	contacts, err := marshalContacts(d.Contacts)
	if err != nil {
		return err
	}
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		string(d.State),
		string(d.PriorState),
		pq.Array(d.Nameservers),
		contacts,
		d.ExpiresAt,
		nullTime(d.LastSyncedAt),
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const domainColumns = `
	id, request_id, name, state, prior_state, registrant,
	nameservers, contacts, registered_at, expires_at, last_synced_at, updated_at
`

func (s *PostgresStore) FindByID(ctx context.Context, domainID id.DomainID) (*models.Domain, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE id = $1`, uuid.UUID(domainID))
	return scanDomain(row)
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.Domain, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE name = $1 ORDER BY registered_at DESC LIMIT 1`, name)
	return scanDomain(row)
}

func (s *PostgresStore) ListByState(ctx context.Context, state models.State) ([]*models.Domain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE state = $1 ORDER BY name`, string(state))
	if err != nil {
		return nil, fmt.Errorf("query domains by state: %w", err)
	}
	defer rows.Close()
	return scanDomains(rows)
}

func (s *PostgresStore) ListExpiring(ctx context.Context, cutoff time.Time) ([]*models.Domain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE state <> 'deleted' AND expires_at <= $1 ORDER BY expires_at`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expiring domains: %w", err)
	}
	defer rows.Close()
	return scanDomains(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*models.Domain, error) {
	var (
		d          models.Domain
		domainID   uuid.UUID
		requestID  uuid.UUID
		state      string
		priorState string
		ns         pq.StringArray
		contacts   []byte
		lastSynced sql.NullTime
	)
	err := row.Scan(
		&domainID, &requestID, &d.Name, &state, &priorState, &d.Registrant,
		&ns, &contacts, &d.RegisteredAt, &d.ExpiresAt, &lastSynced, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	d.ID = id.DomainID(domainID)
	d.RequestID = id.RequestID(requestID)
	d.State = models.State(state)
	d.PriorState = models.State(priorState)
	d.Nameservers = []string(ns)
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &d.Contacts); err != nil {
			return nil, fmt.Errorf("decode domain contacts: %w", err)
		}
	}
	if lastSynced.Valid {
		d.LastSyncedAt = lastSynced.Time
	}
	return &d, nil
}

func scanDomains(rows *sql.Rows) ([]*models.Domain, error) {
	var out []*models.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return out, nil
}

func marshalContacts(contacts []models.Contact) ([]byte, error) {
	if len(contacts) == 0 {
		return []byte("[]"), nil
	}
	out, err := json.Marshal(contacts)
	if err != nil {
		return nil, fmt.Errorf("encode domain contacts: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
