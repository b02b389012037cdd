package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"discussion-room/internal/app"
	"discussion-room/internal/chat"
)

type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ chat.Persistence = (*Postgres)(nil)

// NewPostgres connects to postgres and returns a pool wrapper
func NewPostgres(ctx context.Context, cfg app.Config, log *slog.Logger) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.PGURL)
	if err != nil {
		return nil, fmt.Errorf("parse PG_URL: %w", err)
	}
	if cfg.PGMaxConn > 0 {
		pcfg.MaxConns = int32(cfg.PGMaxConn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// Ping is used by the readiness probe.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Save stores a chat message. Rooms backed by a topic with commenting turned
// off reject the write with ErrCommentingDisabled.
func (p *Postgres) Save(ctx context.Context, roomID, username, content string) (chat.Message, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO messages (room_id, username, content)
		SELECT $1::text, $2::text, $3::text
		WHERE NOT EXISTS (
			SELECT 1 FROM topics WHERE id::text = $1::text AND NOT is_commenting_enabled
		)
		RETURNING id, room_id, username, content, created_at
	`, roomID, username, content)

	var m chat.Message
	if err := row.Scan(&m.RecordID, &m.RoomID, &m.Username, &m.Content, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.Message{}, ErrCommentingDisabled
		}
		return chat.Message{}, err
	}
	return m, nil
}

// LoadRecent returns the newest limit messages of a room, oldest first.
func (p *Postgres) LoadRecent(ctx context.Context, roomID string, limit int) ([]chat.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id, username, content, created_at FROM (
			SELECT id, room_id, username, content, created_at
			FROM messages
			WHERE room_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListMessages pages through a room's full history, oldest first.
func (p *Postgres) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]chat.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id, username, content, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]chat.Message, error) {
	defer rows.Close()

	out := []chat.Message{}
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.RecordID, &m.RoomID, &m.Username, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateTopic inserts a new discussion topic owned by username
func (p *Postgres) CreateTopic(ctx context.Context, title, description, username string) (Topic, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO topics (title, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, title, description, is_active, is_commenting_enabled, created_by, created_at
	`, title, description, username)
	return scanTopic(row)
}

// ListTopics returns topics, newest first
func (p *Postgres) ListTopics(ctx context.Context, limit, offset int) ([]Topic, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, description, is_active, is_commenting_enabled, created_by, created_at
		FROM topics
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Topic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTopic fetches a topic by ID
func (p *Postgres) GetTopic(ctx context.Context, id int64) (Topic, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, title, description, is_active, is_commenting_enabled, created_by, created_at
		FROM topics
		WHERE id = $1
	`, id)
	return scanTopic(row)
}

// ToggleCommenting flips is_commenting_enabled and returns the updated topic
func (p *Postgres) ToggleCommenting(ctx context.Context, id int64) (Topic, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE topics
		SET is_commenting_enabled = NOT is_commenting_enabled
		WHERE id = $1
		RETURNING id, title, description, is_active, is_commenting_enabled, created_by, created_at
	`, id)
	t, err := scanTopic(row)
	if err == nil {
		p.log.Info("topic.commenting", "id", id, "enabled", t.IsCommentingEnabled)
	}
	return t, err
}

func scanTopic(row pgx.Row) (Topic, error) {
	var t Topic
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.IsActive, &t.IsCommentingEnabled, &t.CreatedBy, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Topic{}, ErrNotFound
		}
		return Topic{}, err
	}
	return t, nil
}
