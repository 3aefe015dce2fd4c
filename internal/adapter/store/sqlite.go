package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"agent-foundry/internal/domain"
)

var _ domain.AgentStore = (*SQLiteStore)(nil)

// SQLiteStore implements domain.AgentStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration. Foreign keys are enforced on every connection so that
// deleting an agent removes its thread.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			role        TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			personality TEXT NOT NULL DEFAULT '',
			avatar      TEXT NOT NULL DEFAULT '',
			provider    TEXT NOT NULL,
			model       TEXT NOT NULL DEFAULT '',
			skills      TEXT NOT NULL DEFAULT '[]',
			tools       TEXT NOT NULL DEFAULT '[]',
			metrics     TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			agent_id   TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			sources    TEXT NOT NULL DEFAULT '[]',
			trace      TEXT NOT NULL DEFAULT '[]',
			timestamp  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_agent ON messages(agent_id, timestamp);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const agentColumns = "id, name, role, description, personality, avatar, provider, model, skills, tools, metrics, created_at"

func (s *SQLiteStore) CreateAgent(ctx context.Context, a *domain.Agent) error {
	skills, tools, metrics, err := encodeAgent(a)
	if err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO agents ("+agentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.Name, a.Role, a.Description, a.Personality, a.Avatar, string(a.Provider), a.Model,
		skills, tools, metrics, a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("Store.GetAgent", domain.ErrAgentNotFound, id)
	}
	return a, err
}

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+agentColumns+" FROM agents ORDER BY created_at, rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := []*domain.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgent writes the editable fields of a. Metrics are only written by
// UpdateMetrics.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, a *domain.Agent) error {
	skills, tools, _, err := encodeAgent(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, role = ?, description = ?, personality = ?, avatar = ?,
			provider = ?, model = ?, skills = ?, tools = ? WHERE id = ?`,
		a.Name, a.Role, a.Description, a.Personality, a.Avatar,
		string(a.Provider), a.Model, skills, tools, a.ID,
	)
	return affected(res, err, "Store.UpdateAgent", a.ID)
}

func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE id = ?", id)
	return affected(res, err, "Store.DeleteAgent", id)
}

func (s *SQLiteStore) UpdateMetrics(ctx context.Context, id string, m domain.AgentMetrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal agent metrics: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE agents SET metrics = ? WHERE id = ?", string(data), id)
	return affected(res, err, "Store.UpdateMetrics", id)
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	sources, err := json.Marshal(nonNil(msg.Sources))
	if err != nil {
		return fmt.Errorf("marshal message sources: %w", err)
	}
	trace, err := json.Marshal(nonNil(msg.Trace))
	if err != nil {
		return fmt.Errorf("marshal message trace: %w", err)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM agents WHERE id = ?", msg.AgentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewDomainError("Store.AppendMessage", domain.ErrAgentNotFound, msg.AgentID)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO messages (id, agent_id, role, content, sources, trace, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.AgentID, msg.Role, msg.Content, string(sources), string(trace),
		msg.Timestamp.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns the agent's thread oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, agentID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, agent_id, role, content, sources, trace, timestamp FROM messages WHERE agent_id = ? ORDER BY timestamp, rowid",
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*domain.Message{}
	for rows.Next() {
		var m domain.Message
		var sources, trace, ts string
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Role, &m.Content, &sources, &trace, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal message sources: %w", err)
		}
		if err := json.Unmarshal([]byte(trace), &m.Trace); err != nil {
			return nil, fmt.Errorf("unmarshal message trace: %w", err)
		}
		if len(m.Sources) == 0 {
			m.Sources = nil
		}
		if len(m.Trace) == 0 {
			m.Trace = nil
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (*domain.Agent, error) {
	var a domain.Agent
	var provider, skills, tools, metrics, created string
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.Description, &a.Personality, &a.Avatar,
		&provider, &a.Model, &skills, &tools, &metrics, &created); err != nil {
		return nil, err
	}
	a.Provider = domain.ProviderKind(provider)
	if err := json.Unmarshal([]byte(skills), &a.Skills); err != nil {
		return nil, fmt.Errorf("unmarshal agent skills: %w", err)
	}
	if err := json.Unmarshal([]byte(tools), &a.Tools); err != nil {
		return nil, fmt.Errorf("unmarshal agent tools: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &a.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal agent metrics: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &a, nil
}

func encodeAgent(a *domain.Agent) (skills, tools, metrics string, err error) {
	s, err := json.Marshal(nonNil(a.Skills))
	if err != nil {
		return "", "", "", fmt.Errorf("marshal agent skills: %w", err)
	}
	t, err := json.Marshal(nonNil(a.Tools))
	if err != nil {
		return "", "", "", fmt.Errorf("marshal agent tools: %w", err)
	}
	m, err := json.Marshal(a.Metrics)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal agent metrics: %w", err)
	}
	return string(s), string(t), string(m), nil
}

func affected(res sql.Result, err error, op, id string) error {
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError(op, domain.ErrAgentNotFound, id)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
