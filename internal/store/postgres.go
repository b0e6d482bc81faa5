// Package store — PostgreSQL Store implementation backed by a pgx pool.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
// The caller is expected to run Migrate before first use.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	log.Info().Msg("Postgres store initialized")
	return &PostgresStore{pool: pool}, nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS mr_user_settings (
			user_id    TEXT PRIMARY KEY,
			api_keys   JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS mr_chat_records (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL DEFAULT '',
			agent_id   TEXT NOT NULL DEFAULT '',
			agent_name TEXT NOT NULL DEFAULT '',
			provider   TEXT NOT NULL DEFAULT '',
			model      TEXT NOT NULL DEFAULT '',
			prompt     TEXT NOT NULL DEFAULT '',
			answer     TEXT NOT NULL DEFAULT '',
			tool_calls INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_mr_chat_records_user ON mr_chat_records (user_id);
		CREATE INDEX IF NOT EXISTS idx_mr_chat_records_created ON mr_chat_records (created_at);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// ── User Settings ───────────────────────────────────────────

func (s *PostgresStore) GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, api_keys, updated_at FROM mr_user_settings WHERE user_id = $1`, userID)

	var out models.UserSettings
	if err := row.Scan(&out.UserID, &out.APIKeys, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "user settings", Key: userID}
		}
		return nil, fmt.Errorf("get user settings: %w", err)
	}
	if out.APIKeys == nil {
		out.APIKeys = map[string]string{}
	}
	return &out, nil
}

func (s *PostgresStore) PutUserSettings(ctx context.Context, settings *models.UserSettings) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO mr_user_settings (user_id, api_keys, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			api_keys = EXCLUDED.api_keys,
			updated_at = NOW()`,
		settings.UserID, settings.APIKeys)
	if err != nil {
		return fmt.Errorf("put user settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUserSettings(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mr_user_settings WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "user settings", Key: userID}
	}
	return nil
}

// ── Chat Records ────────────────────────────────────────────

func (s *PostgresStore) CreateChatRecord(ctx context.Context, record *models.ChatRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO mr_chat_records
			(id, user_id, agent_id, agent_name, provider, model, prompt, answer, tool_calls, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.UserID, record.AgentID, record.AgentName,
		record.Provider, record.Model, record.Prompt, record.Answer,
		record.ToolCalls, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("create chat record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChatRecords(ctx context.Context, userID string, filter ListFilter) ([]models.ChatRecord, error) {
	query := `SELECT id, user_id, agent_id, agent_name, provider, model, prompt, answer, tool_calls, created_at
		FROM mr_chat_records`
	args := []interface{}{}
	argIdx := 1

	where := ""
	if userID != "" {
		where = fmt.Sprintf(" WHERE user_id = $%d", argIdx)
		args = append(args, userID)
		argIdx++
	}
	if filter.Since != nil {
		if where == "" {
			where = fmt.Sprintf(" WHERE created_at >= $%d", argIdx)
		} else {
			where += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		}
		args = append(args, *filter.Since)
		argIdx++
	}
	query += where + " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat records: %w", err)
	}
	defer rows.Close()

	var out []models.ChatRecord
	for rows.Next() {
		var r models.ChatRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.AgentID, &r.AgentName,
			&r.Provider, &r.Model, &r.Prompt, &r.Answer, &r.ToolCalls, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListExpiredChatRecords(ctx context.Context, cutoff time.Time, limit int) ([]models.ChatRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, agent_id, agent_name, provider, model, prompt, answer, tool_calls, created_at
		FROM mr_chat_records WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired chat records: %w", err)
	}
	defer rows.Close()

	var out []models.ChatRecord
	for rows.Next() {
		var r models.ChatRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.AgentID, &r.AgentName,
			&r.Provider, &r.Model, &r.Prompt, &r.Answer, &r.ToolCalls, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteChatRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mr_chat_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete chat records: %w", err)
	}
	return tag.RowsAffected(), nil
}
