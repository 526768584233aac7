package chat

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"homechat/internal/bus"
)

// ConversationStore holds the in-memory conversation list: ordering,
// filtering, the active conversation, and per-conversation unread counts.
// Unread counts are only mutated here, so the list view, the notification
// bridge and the transport never race on them.
type ConversationStore struct {
	mu       sync.RWMutex
	convs    []*Conversation
	activeID int64

	bus    *bus.Bus
	logger *zap.Logger
}

func NewConversationStore(b *bus.Bus, logger *zap.Logger) *ConversationStore {
	return &ConversationStore{
		bus:    b,
		logger: logger.Named("store"),
	}
}

// Replace swaps the whole list, newest activity first. Used after every
// refresh from the server; local ordering is rebuilt from scratch.
func (s *ConversationStore) Replace(convs []Conversation) {
	s.mu.Lock()
	s.convs = make([]*Conversation, len(convs))
	for i := range convs {
		c := convs[i]
		s.convs[i] = &c
	}
	sort.SliceStable(s.convs, func(i, j int) bool {
		return s.convs[i].LastMessageAt.After(s.convs[j].LastMessageAt)
	})
	s.mu.Unlock()

	s.logger.Info("conversation list replaced", zap.Int("count", len(convs)))
	s.changed()
}

// All returns a snapshot of the list in display order.
func (s *ConversationStore) All() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, len(s.convs))
	for i, c := range s.convs {
		out[i] = *c
	}
	return out
}

// Filter returns conversations whose participant name, property title or
// last message preview contains the query, case-insensitively. An empty
// query returns everything.
func (s *ConversationStore) Filter(query string) []Conversation {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return s.All()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Conversation
	for _, c := range s.convs {
		if strings.Contains(strings.ToLower(c.OtherUserName), query) ||
			strings.Contains(strings.ToLower(c.PropertyTitle), query) ||
			strings.Contains(strings.ToLower(c.LastMessagePreview), query) {
			out = append(out, *c)
		}
	}
	return out
}

// Get returns a conversation by id.
func (s *ConversationStore) Get(id int64) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.convs {
		if c.ID == id {
			return *c, true
		}
	}
	return Conversation{}, false
}

// SetActive marks the conversation the user is currently viewing and
// clears its unread count. Zero means no conversation is open.
func (s *ConversationStore) SetActive(id int64) {
	s.mu.Lock()
	s.activeID = id
	if id != 0 {
		if c := s.find(id); c != nil {
			c.UnreadCount = 0
		}
	}
	s.mu.Unlock()
	s.changed()
}

// ActiveID returns the currently open conversation, or zero.
func (s *ConversationStore) ActiveID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Touch records new activity: updates the preview and timestamp and moves
// the conversation to the front of the list. Returns false when the
// conversation is not in the list, so the caller can refetch.
func (s *ConversationStore) Touch(id int64, preview string, at time.Time) bool {
	s.mu.Lock()
	idx := -1
	for i, c := range s.convs {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	c := s.convs[idx]
	c.LastMessagePreview = preview
	c.LastMessageAt = at
	copy(s.convs[1:idx+1], s.convs[:idx])
	s.convs[0] = c
	s.mu.Unlock()
	s.changed()
	return true
}

// IncrementUnread bumps the unread count for a conversation. No-op for
// the active conversation, which the user is already reading.
func (s *ConversationStore) IncrementUnread(id int64) {
	s.mu.Lock()
	if id == s.activeID {
		s.mu.Unlock()
		return
	}
	if c := s.find(id); c != nil {
		c.UnreadCount++
	}
	s.mu.Unlock()
	s.changed()
}

func (s *ConversationStore) find(id int64) *Conversation {
	for _, c := range s.convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *ConversationStore) changed() {
	s.bus.Publish(bus.Event{
		Kind:      "chat.conversations_changed",
		Timestamp: time.Now(),
	})
}
