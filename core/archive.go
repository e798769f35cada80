package core

import "context"

// RoomArchive is the intraday persistence behind the room store. The
// service writes through to it inside its mutation path so that the
// day's rooms and messages survive a process restart, and truncates it
// at the midnight reset. It never serves reads on the hot path, and a
// failed write degrades to a logged warning.
type RoomArchive interface {
	SaveRoom(ctx context.Context, room *Room) error
	SaveMessage(ctx context.Context, msg *Message) error
	// Load returns every archived room with its message log, ordered by
	// arrival. Member lists are not archived.
	Load(ctx context.Context) ([]*Room, error)
	// Reset drops everything. Called at midnight.
	Reset(ctx context.Context) error
}

// NopArchive is the archive used when no database is configured.
type NopArchive struct{}

func (NopArchive) SaveRoom(context.Context, *Room) error       { return nil }
func (NopArchive) SaveMessage(context.Context, *Message) error { return nil }
func (NopArchive) Load(context.Context) ([]*Room, error)       { return nil, nil }
func (NopArchive) Reset(context.Context) error                 { return nil }
