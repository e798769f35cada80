package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRooms is the number of rooms a user may be an active member
// of at the same time.
const DefaultMaxRooms = 5

// MemoryChatService is the in-memory implementation of ChatService.
// All waiting pool and room store mutations are funneled through a
// single mutex, so concurrent handlers can never double-match a waiter
// or observe a half-updated room.
type MemoryChatService struct {
	mu       sync.Mutex
	registry *Registry
	pool     *WaitingPool
	rooms    *RoomStore
	archive  RoomArchive
	logger   *slog.Logger
	maxRooms int
	now      func() time.Time
}

type ChatServiceOption func(*MemoryChatService)

// WithMaxRooms overrides the active room cap.
func WithMaxRooms(n int) ChatServiceOption {
	return func(s *MemoryChatService) {
		s.maxRooms = n
	}
}

// WithClock overrides the time source. Used in tests to control enqueue
// timestamps.
func WithClock(now func() time.Time) ChatServiceOption {
	return func(s *MemoryChatService) {
		s.now = now
	}
}

func NewMemoryChatService(logger *slog.Logger, archive RoomArchive, opts ...ChatServiceOption) *MemoryChatService {
	if archive == nil {
		archive = NopArchive{}
	}
	s := &MemoryChatService{
		registry: NewRegistry(),
		pool:     NewWaitingPool(),
		rooms:    NewRoomStore(),
		archive:  archive,
		logger:   logger,
		maxRooms: DefaultMaxRooms,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore seeds the room store from the intraday archive. It is meant to
// be called once at startup, before the service starts accepting events.
// Members are not restored: connections do not survive a restart.
func (s *MemoryChatService) Restore(ctx context.Context) (int, error) {
	rooms, err := s.archive.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("archive.Load: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range rooms {
		restored, _ := s.rooms.Create(room.ID, room.CreatedAt)
		restored.Messages = room.Messages
	}
	return len(rooms), nil
}

func (s *MemoryChatService) Register(_ context.Context, connID int, input RegisterInput) (*Session, error) {
	session := s.registry.Register(connID, input, s.now())
	s.logger.Info("user registered",
		slog.String("user", session.UserID),
		slog.String("nickname", session.Nickname),
		slog.Int("conn", connID))
	return session, nil
}

func (s *MemoryChatService) RequestMatch(ctx context.Context, connID int, input MatchRequestInput) (*MatchResult, error) {
	// a match request also refreshes the session; the original protocol
	// lets clients request a match without a prior register_user
	session := s.registry.Register(connID, RegisterInput{
		UserID:   input.UserID,
		Nickname: input.Nickname,
		Mood:     input.Mood,
	}, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rooms.ActiveRoomCountFor(input.UserID) >= s.maxRooms {
		return nil, ErrMaxRoomsExceeded
	}

	entry, err := s.pool.Enqueue(input, connID, s.now())
	if err != nil {
		return nil, err
	}

	candidates := s.pool.EligiblePartners(input.UserID, s.rooms.PartnersOf(input.UserID))
	partner := pickPartner(entry.Mood, candidates)
	if partner == nil {
		s.logger.Info("waiting for match", slog.String("user", input.UserID))
		return nil, nil
	}

	s.pool.Dequeue(entry.UserID)
	s.pool.Dequeue(partner.UserID)

	roomID := newRoomID()
	matchedAt := s.now()
	room, _ := s.rooms.Create(roomID, matchedAt)
	s.rooms.AddMember(roomID, RoomMember{UserID: entry.UserID, Nickname: entry.Nickname, ConnID: entry.ConnID})
	s.rooms.AddMember(roomID, RoomMember{UserID: partner.UserID, Nickname: partner.Nickname, ConnID: partner.ConnID})

	if err := s.archive.SaveRoom(ctx, room); err != nil {
		s.logger.Warn(fmt.Sprintf("archive room: %v", err), slog.String("room", roomID))
	}

	s.logger.Info("match found",
		slog.String("room", roomID),
		slog.String("user", entry.UserID),
		slog.String("partner", partner.UserID))

	return &MatchResult{
		RoomID:    roomID,
		MatchedAt: matchedAt,
		Requester: MatchedParty{UserID: session.UserID, Nickname: session.Nickname, Mood: session.Mood, ConnID: connID},
		Partner:   MatchedParty{UserID: partner.UserID, Nickname: partner.Nickname, Mood: partner.Mood, ConnID: partner.ConnID},
	}, nil
}

func (s *MemoryChatService) CancelMatch(connID int) bool {
	session, ok := s.registry.Lookup(connID)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Dequeue(session.UserID)
}

func (s *MemoryChatService) JoinRoom(ctx context.Context, connID int, roomID string) (*JoinResult, error) {
	session, ok := s.registry.Lookup(connID)
	if !ok {
		return nil, ErrNotRegistered
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, created := s.rooms.Create(roomID, s.now())
	if created {
		if err := s.archive.SaveRoom(ctx, room); err != nil {
			s.logger.Warn(fmt.Sprintf("archive room: %v", err), slog.String("room", roomID))
		}
	}

	member := RoomMember{UserID: session.UserID, Nickname: session.Nickname, ConnID: connID}
	rejoined := s.rooms.AddMember(roomID, member)

	return &JoinResult{
		RoomID:   roomID,
		Member:   member,
		Others:   s.rooms.OtherMembers(roomID, session.UserID),
		Messages: s.rooms.Messages(roomID),
		Rejoined: rejoined,
	}, nil
}

func (s *MemoryChatService) LeaveRoom(_ context.Context, connID int, roomID string) (*LeaveResult, error) {
	session, ok := s.registry.Lookup(connID)
	if !ok {
		return nil, ErrNotRegistered
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	member, ok := s.rooms.RemoveMember(roomID, session.UserID)
	if !ok {
		return nil, ErrInvalidRoom
	}

	return &LeaveResult{
		RoomID: roomID,
		Member: member,
		Others: s.rooms.OtherMembers(roomID, session.UserID),
	}, nil
}

func (s *MemoryChatService) SendMessage(ctx context.Context, connID int, roomID, text string) (*MessageResult, error) {
	session, ok := s.registry.Lookup(connID)
	if !ok {
		return nil, ErrNotRegistered
	}
	if text == "" {
		return nil, ErrInvalidMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms.Member(roomID, session.UserID); !ok {
		return nil, ErrInvalidRoom
	}

	msg := Message{
		ID:       uuid.New().String(),
		RoomID:   roomID,
		Sender:   session.UserID,
		Nickname: session.Nickname,
		Data:     text,
		SentAt:   s.now(),
	}
	s.rooms.AppendMessage(msg)

	if err := s.archive.SaveMessage(ctx, &msg); err != nil {
		s.logger.Warn(fmt.Sprintf("archive message: %v", err), slog.String("room", roomID))
	}

	return &MessageResult{
		Message:   msg,
		Receivers: connIDs(s.rooms.OtherMembers(roomID, session.UserID)),
	}, nil
}

func (s *MemoryChatService) Typing(connID int, roomID string, typing bool) (*TypingResult, error) {
	session, ok := s.registry.Lookup(connID)
	if !ok {
		return nil, ErrNotRegistered
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms.Member(roomID, session.UserID); !ok {
		return nil, ErrInvalidRoom
	}

	return &TypingResult{
		RoomID:    roomID,
		UserID:    session.UserID,
		Nickname:  session.Nickname,
		Typing:    typing,
		Receivers: connIDs(s.rooms.OtherMembers(roomID, session.UserID)),
	}, nil
}

func (s *MemoryChatService) Disconnect(_ context.Context, connID int) (*DisconnectResult, error) {
	session, ok := s.registry.Remove(connID)
	if !ok {
		return &DisconnectResult{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &DisconnectResult{Session: session}
	result.Dequeued = s.pool.Dequeue(session.UserID)

	for _, roomID := range s.rooms.RoomsOf(session.UserID) {
		member, ok := s.rooms.RemoveMember(roomID, session.UserID)
		if !ok {
			continue
		}
		result.Left = append(result.Left, LeaveResult{
			RoomID: roomID,
			Member: member,
			Others: s.rooms.OtherMembers(roomID, session.UserID),
		})
	}

	s.logger.Info("session cleaned up",
		slog.String("user", session.UserID),
		slog.Bool("dequeued", result.Dequeued),
		slog.Int("rooms_left", len(result.Left)))

	return result, nil
}

func (s *MemoryChatService) Reset(ctx context.Context) (*ResetResult, error) {
	s.mu.Lock()
	waiting := s.pool.Clear()
	rooms, messages := s.rooms.Clear()
	s.mu.Unlock()

	result := &ResetResult{Rooms: rooms, Messages: messages, Waiting: waiting}

	// The in-memory purge already happened. An archive failure must not
	// stop the reset from being reported, so it degrades to a warning.
	if err := s.archive.Reset(ctx); err != nil {
		s.logger.Warn(fmt.Sprintf("archive reset: %v", err))
	}
	return result, nil
}

func (s *MemoryChatService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Connected: s.registry.Len(),
		Waiting:   s.pool.Len(),
		Rooms:     s.rooms.Len(),
	}
}

func (s *MemoryChatService) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{
		ConnectedUsers: s.registry.Sessions(),
		WaitingUsers:   s.pool.Entries(),
		ActiveRooms:    s.rooms.Summaries(),
	}
}

func newRoomID() string {
	return "room_" + uuid.New().String()
}

func connIDs(members []RoomMember) []int {
	ids := make([]int, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ConnID)
	}
	return ids
}
