package core

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteRoomArchive persists the day's rooms and messages in SQLite.
type SQLiteRoomArchive struct {
	db *sql.DB
}

func NewSQLiteRoomArchive(db *sql.DB) *SQLiteRoomArchive {
	return &SQLiteRoomArchive{db: db}
}

func (a *SQLiteRoomArchive) SaveRoom(ctx context.Context, room *Room) error {
	query := `INSERT INTO rooms (id, created_at) VALUES (@id, @created_at)
		ON CONFLICT DO NOTHING`
	_, err := a.db.ExecContext(ctx, query,
		sql.Named("id", room.ID),
		sql.Named("created_at", room.CreatedAt))
	if err != nil {
		return fmt.Errorf("ExecContext(insert room): %w", err)
	}
	return nil
}

func (a *SQLiteRoomArchive) SaveMessage(ctx context.Context, msg *Message) error {
	query := `INSERT INTO room_messages (id, room_id, sender, nickname, data, sent_at)
		VALUES (@id, @room_id, @sender, @nickname, @data, @sent_at)`
	_, err := a.db.ExecContext(ctx, query,
		sql.Named("id", msg.ID),
		sql.Named("room_id", msg.RoomID),
		sql.Named("sender", msg.Sender),
		sql.Named("nickname", msg.Nickname),
		sql.Named("data", msg.Data),
		sql.Named("sent_at", msg.SentAt))
	if err != nil {
		return fmt.Errorf("ExecContext(insert message): %w", err)
	}
	return nil
}

func (a *SQLiteRoomArchive) Load(ctx context.Context) ([]*Room, error) {
	query := `SELECT id, created_at FROM rooms ORDER BY created_at`
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("QueryContext(rooms): %w", err)
	}
	defer rows.Close()

	var rooms []*Room
	byID := make(map[string]*Room)
	for rows.Next() {
		room := &Room{}
		if err := rows.Scan(&room.ID, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("Scan(room): %w", err)
		}
		rooms = append(rooms, room)
		byID[room.ID] = room
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows(rooms): %w", err)
	}

	// rowid preserves insertion order, which is the arrival order at the
	// server
	query = `SELECT id, room_id, sender, nickname, data, sent_at
		FROM room_messages ORDER BY rowid`
	msgRows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("QueryContext(messages): %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var msg Message
		if err := msgRows.Scan(&msg.ID, &msg.RoomID, &msg.Sender,
			&msg.Nickname, &msg.Data, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("Scan(message): %w", err)
		}
		room, ok := byID[msg.RoomID]
		if !ok {
			continue
		}
		room.Messages = append(room.Messages, msg)
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("rows(messages): %w", err)
	}

	return rooms, nil
}

func (a *SQLiteRoomArchive) Reset(ctx context.Context) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_messages`); err != nil {
		return fmt.Errorf("ExecContext(delete messages): %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms`); err != nil {
		return fmt.Errorf("ExecContext(delete rooms): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}
