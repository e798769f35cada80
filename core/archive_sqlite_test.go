package core

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ArchiveFixture struct {
	archive  *SQLiteRoomArchive
	db       *sql.DB
	ctx      context.Context
	t        *testing.T
	tearDown func()
}

func NewArchiveFixture(t *testing.T) *ArchiveFixture {
	ctx, cancel := context.WithCancel(context.Background())

	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}

	migrationfs := os.DirFS("../migrations")
	goose.SetBaseFS(migrationfs)

	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatal(err)
	}

	if err := goose.Up(db, "."); err != nil {
		t.Fatal(err)
	}

	return &ArchiveFixture{
		archive: NewSQLiteRoomArchive(db),
		db:      db,
		ctx:     ctx,
		t:       t,
		tearDown: func() {
			cancel()
			db.Close()
		},
	}
}

func TestSQLiteRoomArchive(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("rooms and messages round trip in arrival order", func(t *testing.T) {
		f := NewArchiveFixture(t)
		defer f.tearDown()

		room := &Room{ID: "r1", CreatedAt: createdAt}
		require.Nil(t, f.archive.SaveRoom(f.ctx, room))

		msgs := []Message{
			{ID: "m1", RoomID: "r1", Sender: "u1", Nickname: "ann", Data: "first", SentAt: createdAt.Add(time.Second)},
			{ID: "m2", RoomID: "r1", Sender: "u2", Nickname: "ben", Data: "second", SentAt: createdAt.Add(2 * time.Second)},
		}
		for i := range msgs {
			require.Nil(t, f.archive.SaveMessage(f.ctx, &msgs[i]))
		}

		rooms, err := f.archive.Load(f.ctx)
		require.Nil(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, "r1", rooms[0].ID)
		require.Len(t, rooms[0].Messages, 2)
		assert.Equal(t, "first", rooms[0].Messages[0].Data)
		assert.Equal(t, "second", rooms[0].Messages[1].Data)
		assert.Equal(t, "ben", rooms[0].Messages[1].Nickname)
	})

	t.Run("saving a room twice is harmless", func(t *testing.T) {
		f := NewArchiveFixture(t)
		defer f.tearDown()

		room := &Room{ID: "r1", CreatedAt: createdAt}
		require.Nil(t, f.archive.SaveRoom(f.ctx, room))
		require.Nil(t, f.archive.SaveRoom(f.ctx, room))

		rooms, err := f.archive.Load(f.ctx)
		require.Nil(t, err)
		assert.Len(t, rooms, 1)
	})

	t.Run("reset truncates everything", func(t *testing.T) {
		f := NewArchiveFixture(t)
		defer f.tearDown()

		require.Nil(t, f.archive.SaveRoom(f.ctx, &Room{ID: "r1", CreatedAt: createdAt}))
		require.Nil(t, f.archive.SaveMessage(f.ctx, &Message{ID: "m1", RoomID: "r1", SentAt: createdAt}))
		require.Nil(t, f.archive.Reset(f.ctx))

		rooms, err := f.archive.Load(f.ctx)
		require.Nil(t, err)
		assert.Empty(t, rooms)
	})
}

func TestServiceWritesThroughArchive(t *testing.T) {
	f := NewArchiveFixture(t)
	defer f.tearDown()

	service := NewMemoryChatService(testLogger(), f.archive)
	_, err := service.Register(f.ctx, 1, RegisterInput{UserID: "u1", Nickname: "ann"})
	require.Nil(t, err)
	_, err = service.JoinRoom(f.ctx, 1, "r1")
	require.Nil(t, err)
	_, err = service.SendMessage(f.ctx, 1, "r1", "will survive a restart")
	require.Nil(t, err)

	// a fresh service restored from the same archive sees the log
	restoredService := NewMemoryChatService(testLogger(), f.archive)
	n, err := restoredService.Restore(f.ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, n)

	_, err = restoredService.Register(f.ctx, 2, RegisterInput{UserID: "u2", Nickname: "ben"})
	require.Nil(t, err)
	result, err := restoredService.JoinRoom(f.ctx, 2, "r1")
	require.Nil(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "will survive a restart", result.Messages[0].Data)
}
