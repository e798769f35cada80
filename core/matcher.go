package core

// pickPartner chooses a partner for a requester with the given mood from
// the eligible candidates. Candidates sharing the requester's mood are
// preferred; within a group the oldest waiter wins. Ties on the enqueue
// time fall back to the user id so that the choice never depends on map
// iteration order.
func pickPartner(mood string, candidates []*WaitingEntry) *WaitingEntry {
	var sameMood, oldest *WaitingEntry
	for _, c := range candidates {
		if mood != "" && c.Mood == mood && waitsLonger(c, sameMood) {
			sameMood = c
		}
		if waitsLonger(c, oldest) {
			oldest = c
		}
	}
	if sameMood != nil {
		return sameMood
	}
	return oldest
}

func waitsLonger(a, b *WaitingEntry) bool {
	if b == nil {
		return true
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.UserID < b.UserID
}
