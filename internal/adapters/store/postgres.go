// Package store is the Postgres side of the hub: chat history and private
// room membership owned by the platform's CRUD services.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects to postgres and verifies connectivity.
func Open(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// PersistChatMessage stores one chat line and returns its row id.
func (p *Postgres) PersistChatMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, content string) (string, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (room_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id
	`, string(roomID), string(senderID), content).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert chat message: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// IsRoomMember checks the room_members roster maintained by the clan and
// tournament services.
func (p *Postgres) IsRoomMember(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	var one int
	err := p.pool.QueryRow(ctx, `
		SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2
	`, string(roomID), string(userID)).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("room member lookup: %w", err)
	}
	return true, nil
}

// ChatLine is a stored message as returned by History.
type ChatLine struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// History returns the newest messages of a room, newest first.
func (p *Postgres) History(ctx context.Context, roomID domain.RoomID, limit int) ([]ChatLine, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id, sender_id, content, created_at
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, string(roomID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ChatLine{}
	for rows.Next() {
		var (
			l  ChatLine
			id int64
		)
		if err := rows.Scan(&id, &l.RoomID, &l.SenderID, &l.Content, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ID = strconv.FormatInt(id, 10)
		out = append(out, l)
	}
	log.Debug().Str("module", "adapters.store").Str("room", string(roomID)).Int("rows", len(out)).Msg("history loaded")
	return out, rows.Err()
}
