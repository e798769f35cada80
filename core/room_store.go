package core

import (
	"slices"
	"time"
)

// RoomStore holds every room of the current day. Rooms are created on
// first join and are never deleted intraday, even when empty; only Clear
// (the midnight reset) removes them. Like the waiting pool it relies on
// the chat service for serialization.
type RoomStore struct {
	rooms map[string]*Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*Room)}
}

// Create returns the room with the given id, creating it when absent.
func (s *RoomStore) Create(roomID string, at time.Time) (*Room, bool) {
	if room, ok := s.rooms[roomID]; ok {
		return room, false
	}
	room := &Room{ID: roomID, CreatedAt: at}
	s.rooms[roomID] = room
	return room, true
}

func (s *RoomStore) Get(roomID string) (*Room, bool) {
	room, ok := s.rooms[roomID]
	return room, ok
}

// AddMember adds the user to the room's member list, deduplicating by
// user id. A user rejoining after a reconnect keeps a single membership;
// only the connection id is refreshed.
func (s *RoomStore) AddMember(roomID string, member RoomMember) (rejoined bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	for i := range room.Members {
		if room.Members[i].UserID == member.UserID {
			room.Members[i].ConnID = member.ConnID
			room.Members[i].Nickname = member.Nickname
			return true
		}
	}
	room.Members = append(room.Members, member)
	return false
}

// RemoveMember removes the user from the member list. The room persists
// with zero members.
func (s *RoomStore) RemoveMember(roomID, userID string) (RoomMember, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return RoomMember{}, false
	}
	idx := slices.IndexFunc(room.Members, func(m RoomMember) bool {
		return m.UserID == userID
	})
	if idx == -1 {
		return RoomMember{}, false
	}
	member := room.Members[idx]
	room.Members = slices.Delete(room.Members, idx, idx+1)
	return member, true
}

// Member returns the room's membership record for the user.
func (s *RoomStore) Member(roomID, userID string) (RoomMember, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return RoomMember{}, false
	}
	for _, m := range room.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return RoomMember{}, false
}

// OtherMembers returns the current members except the given user.
func (s *RoomStore) OtherMembers(roomID, userID string) []RoomMember {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	others := make([]RoomMember, 0, len(room.Members))
	for _, m := range room.Members {
		if m.UserID != userID {
			others = append(others, m)
		}
	}
	return others
}

// AppendMessage appends to the room's log. The log is append-only; the
// order of the log is the order of arrival at the server.
func (s *RoomStore) AppendMessage(msg Message) bool {
	room, ok := s.rooms[msg.RoomID]
	if !ok {
		return false
	}
	room.Messages = append(room.Messages, msg)
	return true
}

// Messages returns a copy of the room's message log for replay.
func (s *RoomStore) Messages(roomID string) []Message {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return slices.Clone(room.Messages)
}

// ActiveRoomCountFor counts the rooms where the user currently appears
// in the member list. Rooms the user has left do not count.
func (s *RoomStore) ActiveRoomCountFor(userID string) int {
	var n int
	for _, room := range s.rooms {
		for _, m := range room.Members {
			if m.UserID == userID {
				n++
				break
			}
		}
	}
	return n
}

// PartnersOf returns the set of users currently co-resident with the
// given user in any room. This is the partnership index of the matching
// engine: it is derived from live membership, so leaving a room clears
// the exclusion.
func (s *RoomStore) PartnersOf(userID string) map[string]struct{} {
	partners := make(map[string]struct{})
	for _, room := range s.rooms {
		if !slices.ContainsFunc(room.Members, func(m RoomMember) bool {
			return m.UserID == userID
		}) {
			continue
		}
		for _, m := range room.Members {
			if m.UserID != userID {
				partners[m.UserID] = struct{}{}
			}
		}
	}
	return partners
}

// RoomsOf returns the ids of the rooms the user is currently a member of.
func (s *RoomStore) RoomsOf(userID string) []string {
	var ids []string
	for id, room := range s.rooms {
		for _, m := range room.Members {
			if m.UserID == userID {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

func (s *RoomStore) Len() int {
	return len(s.rooms)
}

// Summaries returns the introspection view of every room.
func (s *RoomStore) Summaries() []RoomSummary {
	summaries := make([]RoomSummary, 0, len(s.rooms))
	for id, room := range s.rooms {
		summaries = append(summaries, RoomSummary{
			RoomID:    id,
			UserCount: len(room.Members),
			CreatedAt: room.CreatedAt,
		})
	}
	return summaries
}

// Clear drops every room and returns the number of rooms and messages
// removed.
func (s *RoomStore) Clear() (rooms, messages int) {
	rooms = len(s.rooms)
	for _, room := range s.rooms {
		messages += len(room.Messages)
	}
	s.rooms = make(map[string]*Room)
	return rooms, messages
}
