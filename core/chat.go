package core

import (
	"context"
	"errors"
	"time"
)

// Session represents a registered user bound to one live websocket
// connection. Sessions live exactly as long as the connection: they are
// created by register_user and dropped when the connection closes.
type Session struct {
	UserID      string    `json:"userId"`
	Nickname    string    `json:"nickname"`
	Mood        string    `json:"mood"`
	ConnID      int       `json:"-"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// WaitingEntry is one user's open match request. At most one entry
// exists per user id at any time.
type WaitingEntry struct {
	UserID     string    `json:"userId"`
	Nickname   string    `json:"nickname"`
	Interests  []string  `json:"interests"`
	Mood       string    `json:"mood"`
	ConnID     int       `json:"-"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// RoomMember is a current occupant of a room.
type RoomMember struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	ConnID   int    `json:"-"`
}

// Room is a day-scoped conversation. A room keeps its message log even
// when all members have left; only the midnight reset removes it.
type Room struct {
	ID        string       `json:"roomId"`
	Members   []RoomMember `json:"members"`
	Messages  []Message    `json:"messages"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Message is one chat line. Messages are append-only within a room and
// ordered by arrival at the server, not by client clocks.
type Message struct {
	ID       string    `json:"messageId"`
	RoomID   string    `json:"roomId"`
	Sender   string    `json:"userId"`
	Nickname string    `json:"nickname"`
	Data     string    `json:"message"`
	SentAt   time.Time `json:"timestamp"`
}

var (
	// ErrNotRegistered is returned when an operation requires a registered
	// session and the connection has none.
	ErrNotRegistered = errors.New("connection has no registered user")
	// ErrDuplicateRequest is returned when a user requests a match while an
	// earlier request is still waiting.
	ErrDuplicateRequest = errors.New("match request already pending")
	// ErrMaxRoomsExceeded is returned when a user at the room cap requests
	// another match.
	ErrMaxRoomsExceeded = errors.New("active room limit reached")
	// ErrInvalidRoom is returned when a room is not found or the user is not
	// a member of it.
	ErrInvalidRoom = errors.New("invalid room")
	// ErrInvalidMessage is returned when a message is empty or malformed.
	ErrInvalidMessage = errors.New("invalid message")
)

// RegisterInput is the payload of register_user.
type RegisterInput struct {
	UserID   string
	Nickname string
	Mood     string
}

// MatchRequestInput is the payload of request_match. It carries the full
// identity so that a match request also (re-)registers the session.
type MatchRequestInput struct {
	UserID    string
	Nickname  string
	Interests []string
	Mood      string
}

// MatchedParty is one side of a successful match.
type MatchedParty struct {
	UserID   string
	Nickname string
	Mood     string
	ConnID   int
}

// MatchResult describes a pairing created by RequestMatch. It is nil when
// the requester stays in the waiting pool.
type MatchResult struct {
	RoomID    string
	MatchedAt time.Time
	Requester MatchedParty
	Partner   MatchedParty
}

// JoinResult describes a completed join_room: the joining member, the
// other current members (for user_joined fan-out) and the full message
// log to replay to the joiner.
type JoinResult struct {
	RoomID   string
	Member   RoomMember
	Others   []RoomMember
	Messages []Message
	Rejoined bool
}

// LeaveResult describes a completed leave_room or an implicit leave on
// disconnect.
type LeaveResult struct {
	RoomID string
	Member RoomMember
	Others []RoomMember
}

// MessageResult is a stored message plus the connections it should be
// relayed to.
type MessageResult struct {
	Message   Message
	Receivers []int
}

// TypingResult is the fan-out target set for an ephemeral typing event.
type TypingResult struct {
	RoomID    string
	UserID    string
	Nickname  string
	Typing    bool
	Receivers []int
}

// DisconnectResult describes the cascading cleanup performed when a
// connection closes: the session that was dropped, whether a waiting
// entry was removed, and every room the user was removed from.
type DisconnectResult struct {
	Session  *Session
	Dequeued bool
	Left     []LeaveResult
}

// ResetResult reports what the midnight purge removed.
type ResetResult struct {
	Rooms    int
	Messages int
	Waiting  int
}

// Stats is a point-in-time count of the shared state, used by the status
// endpoints and the metrics gauges.
type Stats struct {
	Connected int `json:"connectedUsers"`
	Waiting   int `json:"waitingUsers"`
	Rooms     int `json:"activeRooms"`
}

// RoomSummary is the introspection view of a room.
type RoomSummary struct {
	RoomID    string    `json:"roomId"`
	UserCount int       `json:"userCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is the full introspection view served by GET /status.
type Snapshot struct {
	ConnectedUsers []Session      `json:"connectedUsers"`
	WaitingUsers   []WaitingEntry `json:"waitingUsers"`
	ActiveRooms    []RoomSummary  `json:"activeRooms"`
}

// ChatService is the serialized mutation surface over the shared state
// (registry, waiting pool, room store). Every method is an atomic
// operation: implementations must guarantee that two concurrent calls
// never observe or leave half-updated state.
type ChatService interface {
	// Register upserts the session for a connection. It always succeeds;
	// registering twice on the same connection overwrites the mapping.
	Register(ctx context.Context, connID int, input RegisterInput) (*Session, error)

	// RequestMatch enqueues the user and immediately attempts to pair it
	// against the waiting pool. A nil MatchResult with a nil error means
	// the user stays waiting until a later request pairs with it.
	// It returns ErrDuplicateRequest when the user already waits, and
	// ErrMaxRoomsExceeded when the user is at the active room cap.
	RequestMatch(ctx context.Context, connID int, input MatchRequestInput) (*MatchResult, error)

	// CancelMatch removes the connection's waiting entry if present.
	// It is idempotent and reports whether an entry was removed.
	CancelMatch(connID int) bool

	// JoinRoom adds the connection's user to the room, creating the room
	// when the id is unknown. Joining a room the user is already a member
	// of refreshes the member's connection id.
	JoinRoom(ctx context.Context, connID int, roomID string) (*JoinResult, error)

	// LeaveRoom removes the user from the room's member list. The room and
	// its message log survive, possibly empty, until the midnight reset.
	LeaveRoom(ctx context.Context, connID int, roomID string) (*LeaveResult, error)

	// SendMessage appends a message to the room log and returns the
	// connections of the other current members.
	// It returns ErrInvalidRoom when the sender is not a member.
	SendMessage(ctx context.Context, connID int, roomID, text string) (*MessageResult, error)

	// Typing resolves the fan-out targets for an ephemeral typing event.
	// Nothing is persisted.
	Typing(connID int, roomID string, typing bool) (*TypingResult, error)

	// Disconnect performs the implicit cancel/leave cleanup for a closed
	// connection. It is a no-op for connections that never registered.
	Disconnect(ctx context.Context, connID int) (*DisconnectResult, error)

	// Reset drops all waiting entries, rooms and messages. Registered
	// sessions survive; their users simply have no rooms afterwards.
	Reset(ctx context.Context) (*ResetResult, error)

	Stats() Stats

	Snapshot() *Snapshot
}
