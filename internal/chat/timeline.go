package chat

import (
	"strconv"
	"time"
)

// Item is one row of the message timeline: either a date marker or a
// message. Exactly one field is set.
type Item struct {
	Marker  string
	Message *Message
}

// Timeline is the ordered message history of one conversation, with date
// markers interleaved wherever the calendar day changes. It is not
// goroutine-safe; the view model serializes access.
type Timeline struct {
	items []Item
	keys  map[string]int

	// now is replaceable in tests so marker labels are deterministic.
	now func() time.Time
}

func NewTimeline() *Timeline {
	return &Timeline{
		keys: make(map[string]int),
		now:  time.Now,
	}
}

// Items returns the rows in display order. The returned slice is shared;
// callers must not mutate it.
func (t *Timeline) Items() []Item {
	return t.items
}

// Len returns the number of message rows, excluding markers.
func (t *Timeline) Len() int {
	return len(t.keys)
}

// Replace rebuilds the timeline from a full history, oldest first.
func (t *Timeline) Replace(msgs []Message) {
	t.items = t.items[:0]
	clear(t.keys)
	for i := range msgs {
		t.appendLocked(msgs[i])
	}
}

// Append adds a message to the end of the timeline, inserting a date
// marker if the calendar day changed. Appending a confirmed message whose
// server id is already present is a no-op, so a server echo after a
// pipeline confirmation cannot duplicate a row.
func (t *Timeline) Append(msg Message) bool {
	if _, ok := t.keys[msg.Key()]; ok {
		return false
	}
	t.appendLocked(msg)
	return true
}

func (t *Timeline) appendLocked(msg Message) {
	if marker := t.markerFor(msg.CreatedAt); marker != t.lastMarker() {
		t.items = append(t.items, Item{Marker: marker})
	}
	m := msg
	t.items = append(t.items, Item{Message: &m})
	t.keys[m.Key()] = len(t.items) - 1
}

// Get returns the message with the given key.
func (t *Timeline) Get(key string) (*Message, bool) {
	idx, ok := t.keys[key]
	if !ok {
		return nil, false
	}
	return t.items[idx].Message, true
}

// Confirm assigns a server id to a temp message and updates its state.
// If the server id is already present from an echo, the temp row is
// removed instead, keeping a single copy.
func (t *Timeline) Confirm(tempID string, serverID int64, state DeliveryState) {
	idx, ok := t.keys[tempID]
	if !ok {
		return
	}
	confirmed := Message{ServerID: serverID}
	if _, dup := t.keys[confirmed.Key()]; dup {
		t.removeAt(idx)
		delete(t.keys, tempID)
		return
	}
	msg := t.items[idx].Message
	msg.ServerID = serverID
	msg.State = state
	delete(t.keys, tempID)
	t.keys[msg.Key()] = idx
}

// SetState updates the delivery state of the message with the given key.
func (t *Timeline) SetState(key string, state DeliveryState) bool {
	idx, ok := t.keys[key]
	if !ok {
		return false
	}
	t.items[idx].Message.State = state
	return true
}

// MarkRead flips the listed messages to the read state. Used when the
// peer's read receipt arrives for messages we sent.
func (t *Timeline) MarkRead(serverIDs []int64) int {
	n := 0
	for _, id := range serverIDs {
		key := (&Message{ServerID: id}).Key()
		idx, ok := t.keys[key]
		if !ok {
			continue
		}
		msg := t.items[idx].Message
		if msg.State == StateSent || msg.State == StateSending {
			msg.State = StateRead
			n++
		}
	}
	return n
}

func (t *Timeline) removeAt(idx int) {
	t.items = append(t.items[:idx], t.items[idx+1:]...)
	for k, i := range t.keys {
		if i > idx {
			t.keys[k] = i - 1
		}
	}
	// Drop a marker left without messages under it.
	if idx > 0 && t.items[idx-1].Marker != "" &&
		(idx == len(t.items) || t.items[idx].Marker != "") {
		t.items = append(t.items[:idx-1], t.items[idx:]...)
		for k, i := range t.keys {
			if i >= idx {
				t.keys[k] = i - 1
			}
		}
	}
}

func (t *Timeline) lastMarker() string {
	for i := len(t.items) - 1; i >= 0; i-- {
		if t.items[i].Marker != "" {
			return t.items[i].Marker
		}
	}
	return ""
}

// markerFor returns the date separator label for a timestamp: "Today",
// "Yesterday", or the full date.
func (t *Timeline) markerFor(ts time.Time) string {
	now := t.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return ts.Format("Monday, January 2, 2006")
	}
}

// RelativeTime formats a timestamp the way the conversation list shows
// it: "Just now", "5m ago", "3h ago", or the short date.
func RelativeTime(ts, now time.Time) string {
	d := now.Sub(ts)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	default:
		return ts.Format("Jan 2")
	}
}
