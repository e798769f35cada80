package core

import "time"

// WaitingPool holds open match requests keyed by user id. It is not safe
// for concurrent use on its own; the chat service serializes access to it
// together with the room store.
type WaitingPool struct {
	entries map[string]*WaitingEntry
}

func NewWaitingPool() *WaitingPool {
	return &WaitingPool{entries: make(map[string]*WaitingEntry)}
}

// Enqueue adds an open request for the user. A second request while one
// is outstanding is rejected with ErrDuplicateRequest, not queued.
func (p *WaitingPool) Enqueue(input MatchRequestInput, connID int, at time.Time) (*WaitingEntry, error) {
	if _, ok := p.entries[input.UserID]; ok {
		return nil, ErrDuplicateRequest
	}
	entry := &WaitingEntry{
		UserID:     input.UserID,
		Nickname:   input.Nickname,
		Interests:  input.Interests,
		Mood:       input.Mood,
		ConnID:     connID,
		EnqueuedAt: at,
	}
	p.entries[input.UserID] = entry
	return entry, nil
}

// Dequeue removes the user's entry if present. It is used for cancel,
// for both sides of a successful pairing, and for disconnect cleanup.
func (p *WaitingPool) Dequeue(userID string) bool {
	if _, ok := p.entries[userID]; !ok {
		return false
	}
	delete(p.entries, userID)
	return true
}

// EligiblePartners returns every entry except the requester's own and
// those whose user id appears in the excluded set (the requester's
// active partners).
func (p *WaitingPool) EligiblePartners(userID string, excluded map[string]struct{}) []*WaitingEntry {
	var candidates []*WaitingEntry
	for id, entry := range p.entries {
		if id == userID {
			continue
		}
		if _, ok := excluded[id]; ok {
			continue
		}
		candidates = append(candidates, entry)
	}
	return candidates
}

func (p *WaitingPool) Len() int {
	return len(p.entries)
}

// Entries returns a snapshot of all open requests.
func (p *WaitingPool) Entries() []WaitingEntry {
	entries := make([]WaitingEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, *e)
	}
	return entries
}

// Clear drops every entry and returns how many were removed.
func (p *WaitingPool) Clear() int {
	n := len(p.entries)
	p.entries = make(map[string]*WaitingEntry)
	return n
}
