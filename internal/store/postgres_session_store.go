package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/lib/pq"
)

const sessionSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	source JSONB,
	settings JSONB NOT NULL,
	processed JSONB,
	failure_kind TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	run_id TEXT NOT NULL DEFAULT '',
	webhook_url TEXT NOT NULL DEFAULT '',
	version BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const selectSessionSQL = `SELECT id, state, source, settings, processed, failure_kind, failure_reason,
	run_id, webhook_url, version, created_at, updated_at
 FROM sessions
 WHERE id = $1`

// uniqueViolation is the postgres SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(ctx context.Context, dsn string) (*PostgresSessionStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresSessionStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresSessionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sessionSchemaSQL); err != nil {
		return fmt.Errorf("ensure sessions schema: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Close() error {
	return s.db.Close()
}

func (s *PostgresSessionStore) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	cols, err := encodeSessionColumns(session)
	if err != nil {
		return domain.Session{}, err
	}
	session.Version = 1

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (id, state, source, settings, processed, failure_kind, failure_reason,
			run_id, webhook_url, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		session.ID,
		string(session.State),
		cols.source,
		cols.settings,
		cols.processed,
		string(session.FailureKind),
		session.FailureReason,
		session.RunID,
		session.WebhookURL,
		session.Version,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.Session{}, ErrSessionExists
		}
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}

	return cloneSession(session), nil
}

func (s *PostgresSessionStore) Get(ctx context.Context, id string) (domain.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, selectSessionSQL, id)

	var (
		session                   domain.Session
		state, failureKind        string
		sourceJSON, processedJSON []byte
		settingsJSON              []byte
	)
	if err := row.Scan(
		&session.ID,
		&state,
		&sourceJSON,
		&settingsJSON,
		&processedJSON,
		&failureKind,
		&session.FailureReason,
		&session.RunID,
		&session.WebhookURL,
		&session.Version,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, fmt.Errorf("query session: %w", err)
	}
	session.State = domain.State(state)
	session.FailureKind = domain.ErrorKind(failureKind)

	if err := json.Unmarshal(settingsJSON, &session.Settings); err != nil {
		return domain.Session{}, false, fmt.Errorf("unmarshal session settings: %w", err)
	}
	if len(sourceJSON) > 0 {
		session.Source = &domain.SourceImage{}
		if err := json.Unmarshal(sourceJSON, session.Source); err != nil {
			return domain.Session{}, false, fmt.Errorf("unmarshal session source: %w", err)
		}
	}
	if len(processedJSON) > 0 {
		session.Processed = &domain.ProcessedImage{}
		if err := json.Unmarshal(processedJSON, session.Processed); err != nil {
			return domain.Session{}, false, fmt.Errorf("unmarshal processed image: %w", err)
		}
	}

	return session, true, nil
}

func (s *PostgresSessionStore) Update(ctx context.Context, session domain.Session) (domain.Session, error) {
	cols, err := encodeSessionColumns(session)
	if err != nil {
		return domain.Session{}, err
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions
		 SET state = $1, source = $2, settings = $3, processed = $4, failure_kind = $5,
			failure_reason = $6, run_id = $7, webhook_url = $8, updated_at = $9,
			version = version + 1
		 WHERE id = $10 AND version = $11`,
		string(session.State),
		cols.source,
		cols.settings,
		cols.processed,
		string(session.FailureKind),
		session.FailureReason,
		session.RunID,
		session.WebhookURL,
		session.UpdatedAt,
		session.ID,
		session.Version,
	)
	if err != nil {
		return domain.Session{}, fmt.Errorf("update session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Session{}, fmt.Errorf("update session rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, session.ID).Scan(&exists); err != nil {
			return domain.Session{}, fmt.Errorf("check session exists: %w", err)
		}
		if !exists {
			return domain.Session{}, ErrSessionNotFound
		}
		return domain.Session{}, ErrConflict
	}

	session.Version++
	return cloneSession(session), nil
}

// sessionColumns holds the JSONB parameters; absent images stay nil so
// they are written as NULL.
type sessionColumns struct {
	source    any
	settings  any
	processed any
}

func encodeSessionColumns(session domain.Session) (sessionColumns, error) {
	var cols sessionColumns

	settings, err := json.Marshal(session.Settings)
	if err != nil {
		return sessionColumns{}, fmt.Errorf("marshal session settings: %w", err)
	}
	cols.settings = string(settings)

	if session.Source != nil {
		source, err := json.Marshal(session.Source)
		if err != nil {
			return sessionColumns{}, fmt.Errorf("marshal session source: %w", err)
		}
		cols.source = string(source)
	}
	if session.Processed != nil {
		processed, err := json.Marshal(session.Processed)
		if err != nil {
			return sessionColumns{}, fmt.Errorf("marshal processed image: %w", err)
		}
		cols.processed = string(processed)
	}
	return cols, nil
}
