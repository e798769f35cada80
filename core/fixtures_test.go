package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced time source so tests control enqueue
// timestamps and midnight distances.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memArchive is an in-memory RoomArchive recording what the service
// writes through its mutation path.
type memArchive struct {
	rooms         []*Room
	savedRooms    []string
	savedMessages []Message
	resets        int
	resetErr      error
}

func (a *memArchive) SaveRoom(_ context.Context, room *Room) error {
	a.savedRooms = append(a.savedRooms, room.ID)
	return nil
}

func (a *memArchive) SaveMessage(_ context.Context, msg *Message) error {
	a.savedMessages = append(a.savedMessages, *msg)
	return nil
}

func (a *memArchive) Load(context.Context) ([]*Room, error) {
	return a.rooms, nil
}

func (a *memArchive) Reset(context.Context) error {
	a.resets++
	return a.resetErr
}

type ChatFixture struct {
	service  *MemoryChatService
	clock    *fakeClock
	ctx      context.Context
	t        *testing.T
	tearDown func()
}

func NewChatFixture(t *testing.T, opts ...ChatServiceOption) *ChatFixture {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	opts = append([]ChatServiceOption{WithClock(clock.Now)}, opts...)
	f := &ChatFixture{
		service: NewMemoryChatService(testLogger(), nil, opts...),
		clock:   clock,
		ctx:     ctx,
		t:       t,
		tearDown: func() {
			cancel()
		},
	}
	return f
}

// register connects and registers a user on the given connection.
func (f *ChatFixture) register(connID int, userID, nickname, mood string) *Session {
	session, err := f.service.Register(f.ctx, connID, RegisterInput{
		UserID:   userID,
		Nickname: nickname,
		Mood:     mood,
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return session
}

// requestMatch registers and enqueues in one call, advancing the clock so
// every entry has a distinct enqueue time.
func (f *ChatFixture) requestMatch(connID int, userID, mood string) (*MatchResult, error) {
	result, err := f.service.RequestMatch(f.ctx, connID, MatchRequestInput{
		UserID:   userID,
		Nickname: userID,
		Mood:     mood,
	})
	f.clock.Advance(time.Second)
	return result, err
}

// pair matches two users and returns the room they were placed in.
func (f *ChatFixture) pair(connA int, userA string, connB int, userB string) string {
	result, err := f.requestMatch(connA, userA, "calm")
	if err != nil {
		f.t.Fatal(err)
	}
	if result != nil {
		f.t.Fatalf("unexpected early match for %s", userA)
	}
	result, err = f.requestMatch(connB, userB, "calm")
	if err != nil {
		f.t.Fatal(err)
	}
	if result == nil {
		f.t.Fatalf("expected %s and %s to match", userA, userB)
	}
	return result.RoomID
}
