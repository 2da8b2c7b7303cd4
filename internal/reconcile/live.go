package reconcile

// Live tracks request ids known to be awaiting fulfillment in this process,
// used to infer the awaiting flag of tickets first seen in a snapshot.
// Not safe for concurrent use; the owner serializes access.
type Live struct {
	ids map[string]struct{}
}

// NewLive creates an empty Live set.
func NewLive() *Live {
	return &Live{ids: make(map[string]struct{})}
}

func (l *Live) Add(id string) {
	l.ids[id] = struct{}{}
}

func (l *Live) Remove(id string) {
	delete(l.ids, id)
}

// Contains reports membership. A nil Live contains nothing.
func (l *Live) Contains(id string) bool {
	if l == nil {
		return false
	}
	_, ok := l.ids[id]
	return ok
}

func (l *Live) Len() int {
	if l == nil {
		return 0
	}
	return len(l.ids)
}

// Rename moves membership from oldID to newID.
func (l *Live) Rename(oldID, newID string) {
	if _, ok := l.ids[oldID]; ok {
		delete(l.ids, oldID)
		l.ids[newID] = struct{}{}
	}
}
