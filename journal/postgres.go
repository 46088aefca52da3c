package journal

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed journal_init.sql
var sqlFS embed.FS

type Postgres struct {
	pool *pgxpool.Pool
	log  *log.Logger
}

// OpenPostgres connects and creates the activity table if needed.
func OpenPostgres(ctx context.Context, url string, logger *log.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	sqlFile, err := sqlFS.ReadFile("journal_init.sql")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to read embedded journal_init.sql: %w", err)
	}

	if _, err := pool.Exec(ctx, string(sqlFile)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to execute embedded journal_init.sql: %w", err)
	}

	logger.Info("journal ready")
	return &Postgres{pool: pool, log: logger}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	cmd, err := json.Marshal(e.Command)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO bond_activity
			(kind, request_id, label, command, success, message, issue_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.Kind), e.RequestID, e.Label, cmd, e.Success, e.Message, e.IssueKey,
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, at, kind, request_id, label, command, success, message, issue_key
		FROM bond_activity
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var kind string
		var cmd []byte
		if err := row.Scan(&e.ID, &e.At, &kind, &e.RequestID, &e.Label, &cmd, &e.Success, &e.Message, &e.IssueKey); err != nil {
			return e, err
		}
		e.Kind = Kind(kind)
		if err := json.Unmarshal(cmd, &e.Command); err != nil {
			return e, fmt.Errorf("failed to decode command: %w", err)
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read activity: %w", err)
	}
	return entries, nil
}
