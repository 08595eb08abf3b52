package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils"
)

type PostgresConfig struct {
	DSN       string `json:"dsn" validate:"required"`
	TableName string `json:"table_name"`
}

func (c *PostgresConfig) Validate() error {
	if c.TableName == "" {
		c.TableName = "syncplane_cursors"
	}
	return utils.Validate(c)
}

// PostgresStore keeps cursors in a two-column-keyed table; upserts rely on
// ON CONFLICT so every Put is atomic per (table_name, client_id) key.
type PostgresStore struct {
	db    *sqlx.DB
	table string
}

func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres state config: %s", err)
	}

	db, err := sqlx.ConnectContext(ctx, "pgx", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres state store: %s", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		table_name TEXT NOT NULL,
		client_id  TEXT NOT NULL,
		cursor     TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (table_name, client_id)
	)`, config.TableName)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cursor table: %s", err)
	}

	return &PostgresStore{db: db, table: config.TableName}, nil
}

func (p *PostgresStore) Get(ctx context.Context, key Key) (types.Cursor, error) {
	var cursor string
	query := fmt.Sprintf("SELECT cursor FROM %s WHERE table_name = $1 AND client_id = $2", p.table)
	err := p.db.GetContext(ctx, &cursor, query, key.Table, key.Client)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cursor for %s: %s", key, err)
	}
	return types.Cursor(cursor), nil
}

func (p *PostgresStore) Put(ctx context.Context, key Key, cursor types.Cursor) error {
	query := fmt.Sprintf(`INSERT INTO %s (table_name, client_id, cursor, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (table_name, client_id) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = now()`, p.table)
	if _, err := p.db.ExecContext(ctx, query, key.Table, key.Client, string(cursor)); err != nil {
		return fmt.Errorf("failed to upsert cursor for %s: %s", key, err)
	}
	return nil
}

func (p *PostgresStore) Snapshot(ctx context.Context) (map[Key]types.Cursor, error) {
	query := fmt.Sprintf("SELECT table_name, client_id, cursor FROM %s", p.table)
	rows, err := p.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %s", err)
	}
	defer rows.Close()

	out := make(map[Key]types.Cursor)
	for rows.Next() {
		var table, client, cursor string
		if err := rows.Scan(&table, &client, &cursor); err != nil {
			return nil, fmt.Errorf("failed to scan cursor row: %s", err)
		}
		out[NewKey(table, client)] = types.Cursor(cursor)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close(_ context.Context) error {
	return p.db.Close()
}
