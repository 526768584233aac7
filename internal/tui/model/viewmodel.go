package model

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"homechat/internal/api"
	"homechat/internal/bus"
	"homechat/internal/chat"
	"homechat/internal/notify"
	"homechat/internal/outbox"
	"homechat/internal/status"
	"homechat/internal/store"
	"homechat/internal/transport"
)

// loadRetryFlashFor keeps a load failure on screen until the user
// reloads or a background refresh succeeds.
const loadRetryFlashFor = time.Hour

// ViewModel owns all mutable UI state. Bus events and UI actions both
// funnel through its mutex, so the timeline and conversation snapshot
// always have a single writer.
type ViewModel struct {
	mu sync.RWMutex

	api      *api.Client
	cache    *store.DB
	convs    *chat.ConversationStore
	pipeline *outbox.Pipeline
	bus      *bus.Bus
	logger   *zap.Logger

	userID int64

	timeline   *chat.Timeline
	activeConv chat.Conversation
	stats      api.Stats
	connState  status.State
	filter     string
	lastFailed map[int64]string
	Flash      Flash

	refreshCh chan struct{}
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewViewModel(client *api.Client, cache *store.DB, convs *chat.ConversationStore, pipeline *outbox.Pipeline, b *bus.Bus, userID int64, logger *zap.Logger) *ViewModel {
	return &ViewModel{
		api:        client,
		cache:      cache,
		convs:      convs,
		pipeline:   pipeline,
		bus:        b,
		logger:     logger.Named("viewmodel"),
		userID:     userID,
		timeline:   chat.NewTimeline(),
		connState:  status.StateDisconnected,
		lastFailed: make(map[int64]string),
		refreshCh:  make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals a UI redraw.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// Start begins consuming bus events.
func (vm *ViewModel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	vm.runCtx = runCtx
	vm.cancel = cancel
	vm.done = make(chan struct{})

	events, unsub := vm.bus.Subscribe("", 128)
	go func() {
		defer close(vm.done)
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-events:
				vm.handle(ev)
			}
		}
	}()
	return nil
}

// Stop shuts the event consumer down.
func (vm *ViewModel) Stop() {
	if vm.cancel == nil {
		return
	}
	vm.cancel()
	<-vm.done
	vm.cancel = nil
}

func (vm *ViewModel) handle(ev bus.Event) {
	switch payload := ev.Payload.(type) {
	case transport.MessageEvent:
		vm.handleInboundMessage(payload)
	case transport.NotificationEvent:
		vm.handleInboundNotification(payload)
	case transport.ReadReceiptEvent:
		vm.handleReadReceipt(payload)
	case chat.ReloadRequest:
		go func() {
			if err := vm.LoadConversations(vm.runCtx); err != nil {
				vm.logger.Warn("reload after unknown conversation", zap.Error(err))
			}
		}()
	case status.Change:
		vm.mu.Lock()
		vm.connState = payload.To
		vm.mu.Unlock()
	case outbox.Ack:
		vm.handleAck(payload)
	case outbox.Retrying:
		vm.mu.Lock()
		vm.timeline.SetState(payload.TempID, chat.StateSending)
		vm.mu.Unlock()
	case outbox.Failed:
		vm.mu.Lock()
		vm.timeline.SetState(payload.TempID, chat.StateFailed)
		vm.lastFailed[payload.ConversationID] = payload.TempID
		vm.mu.Unlock()
		vm.Flash.Set("Message failed to send. Press r to retry.", 5*time.Second)
	case notify.Toast:
		vm.Flash.Set(payload.Title+" - "+payload.Body, 5*time.Second)
	}
	vm.signalRefresh()
}

func (vm *ViewModel) handleInboundMessage(ev transport.MessageEvent) {
	if ev.SenderID == vm.userID {
		// Echo of our own message: reconcile against in-flight
		// deliveries. Confirmation lands via the outbox ack.
		if _, ok := vm.pipeline.Reconcile(ev.ConversationID, ev.Content, ev.ID); ok {
			return
		}
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if ev.ConversationID != vm.activeConv.ID {
		return
	}
	msg := chat.Message{
		ServerID:       ev.ID,
		ConversationID: ev.ConversationID,
		SenderID:       ev.SenderID,
		SenderName:     ev.SenderName,
		Content:        ev.Content,
		CreatedAt:      ev.CreatedAt.Time,
		State:          chat.StateSent,
	}
	if !vm.timeline.Append(msg) {
		return
	}
	if err := vm.cache.UpsertMessage(&msg); err != nil {
		vm.logger.Warn("cache message", zap.Error(err))
	}
}

// handleInboundNotification clears a notification pointing at the open
// conversation right away; the user is already reading it.
func (vm *ViewModel) handleInboundNotification(ev transport.NotificationEvent) {
	vm.mu.RLock()
	active := vm.activeConv.ID
	vm.mu.RUnlock()
	if ev.ConversationID == 0 || ev.ConversationID != active {
		return
	}
	go func() {
		if err := vm.api.MarkNotificationRead(vm.runCtx, ev.ID); err != nil {
			vm.logger.Warn("mark notification read", zap.Error(err))
		}
	}()
}

func (vm *ViewModel) handleReadReceipt(ev transport.ReadReceiptEvent) {
	vm.mu.Lock()
	if ev.ConversationID == vm.activeConv.ID {
		vm.timeline.MarkRead(ev.MessageIDs)
	}
	vm.mu.Unlock()

	if err := vm.cache.MarkMessagesRead(ev.ConversationID, ev.MessageIDs); err != nil {
		vm.logger.Warn("cache read receipt", zap.Error(err))
	}
}

func (vm *ViewModel) handleAck(ack outbox.Ack) {
	vm.mu.Lock()
	vm.timeline.Confirm(ack.TempID, ack.ServerID, chat.StateSent)
	msg, ok := vm.timeline.Get((&chat.Message{ServerID: ack.ServerID}).Key())
	var confirmed chat.Message
	if ok {
		confirmed = *msg
	}
	vm.mu.Unlock()

	if ok {
		if err := vm.cache.UpsertMessage(&confirmed); err != nil {
			vm.logger.Warn("cache message", zap.Error(err))
		}
		vm.convs.Touch(ack.ConversationID, confirmed.Content, confirmed.CreatedAt)
	}
}

// LoadConversations shows the cached list immediately, then replaces it
// with the server's.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	if cached, err := vm.cache.ListConversations(); err == nil && len(cached) > 0 && len(vm.convs.All()) == 0 {
		vm.convs.Replace(cached)
		vm.signalRefresh()
	}

	remote, err := vm.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	convs := make([]chat.Conversation, len(remote))
	for i, c := range remote {
		convs[i] = conversationFromAPI(c)
	}
	vm.convs.Replace(convs)
	if err := vm.cache.ReplaceConversations(convs); err != nil {
		vm.logger.Warn("cache conversations", zap.Error(err))
	}
	vm.signalRefresh()
	return nil
}

// OpenConversation loads a conversation's history into the timeline and
// marks it active.
func (vm *ViewModel) OpenConversation(ctx context.Context, id int64) error {
	detail, err := vm.api.GetConversation(ctx, id)
	if err != nil {
		// Fall back to the cached history when offline.
		cached, cacheErr := vm.cache.ListMessages(id)
		if cacheErr != nil || len(cached) == 0 {
			return err
		}
		vm.activate(id, cached)
		vm.Flash.Set("Offline: showing cached messages", 5*time.Second)
		return nil
	}

	msgs := make([]chat.Message, len(detail.Messages))
	for i, m := range detail.Messages {
		msgs[i] = vm.messageFromAPI(m)
	}
	vm.activate(id, msgs)
	if err := vm.cache.ReplaceMessages(id, msgs); err != nil {
		vm.logger.Warn("cache history", zap.Error(err))
	}
	return nil
}

func (vm *ViewModel) activate(id int64, msgs []chat.Message) {
	vm.convs.SetActive(id)
	conv, _ := vm.convs.Get(id)

	vm.mu.Lock()
	vm.activeConv = conv
	vm.timeline.Replace(msgs)
	vm.mu.Unlock()
	vm.signalRefresh()
}

// CloseConversation returns to the list view.
func (vm *ViewModel) CloseConversation() {
	vm.convs.SetActive(0)
	vm.mu.Lock()
	vm.activeConv = chat.Conversation{}
	vm.timeline.Replace(nil)
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Send queues a message for the active conversation. The optimistic row
// appears in the timeline before any network I/O happens.
func (vm *ViewModel) Send(content string) {
	vm.mu.Lock()
	convID := vm.activeConv.ID
	if convID == 0 {
		vm.mu.Unlock()
		return
	}
	msg := vm.pipeline.Send(convID, content)
	vm.timeline.Append(*msg)
	vm.mu.Unlock()

	vm.convs.Touch(convID, content, msg.CreatedAt)
	vm.signalRefresh()
}

// RetryFailed requeues the most recent failed message in the active
// conversation.
func (vm *ViewModel) RetryFailed() {
	vm.mu.Lock()
	convID := vm.activeConv.ID
	tempID, ok := vm.lastFailed[convID]
	if !ok {
		vm.mu.Unlock()
		return
	}
	delete(vm.lastFailed, convID)
	vm.timeline.SetState(tempID, chat.StateSending)
	vm.mu.Unlock()

	if err := vm.pipeline.Retry(tempID); err != nil {
		vm.logger.Warn("retry", zap.Error(err))
		return
	}
	vm.Flash.Set("Retrying...", 3*time.Second)
	vm.signalRefresh()
}

// RefreshStats fetches the aggregate unread counters.
func (vm *ViewModel) RefreshStats(ctx context.Context) error {
	stats, err := vm.api.Stats(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.stats = stats
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// ClearNotifications marks every notification read on the server and
// reports how many unread ones were cleared.
func (vm *ViewModel) ClearNotifications(ctx context.Context) (int, error) {
	notifs, err := vm.api.ListNotifications(ctx)
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, n := range notifs {
		if !n.IsRead {
			cleared++
		}
	}
	if cleared > 0 {
		if err := vm.api.MarkAllNotificationsRead(ctx); err != nil {
			return 0, err
		}
	}
	vm.mu.Lock()
	vm.stats.UnreadNotificationsCount = 0
	vm.mu.Unlock()
	vm.signalRefresh()
	return cleared, nil
}

// ReloadConversations refreshes the list and the counters. A failure
// leaves a persistent flash with the retry hint; the next success
// clears it.
func (vm *ViewModel) ReloadConversations(ctx context.Context) {
	if err := vm.LoadConversations(ctx); err != nil {
		vm.logger.Warn("load conversations", zap.Error(err))
		vm.Flash.Set("Load failed: "+err.Error()+" (press R to reload)", loadRetryFlashFor)
		vm.signalRefresh()
		return
	}
	vm.Flash.Clear()
	if err := vm.RefreshStats(ctx); err != nil {
		vm.logger.Warn("refresh stats", zap.Error(err))
	}
	vm.signalRefresh()
}

// SetFilter updates the conversation list filter.
func (vm *ViewModel) SetFilter(query string) {
	vm.mu.Lock()
	vm.filter = query
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Conversations returns the filtered conversation list.
func (vm *ViewModel) Conversations() []chat.Conversation {
	vm.mu.RLock()
	filter := vm.filter
	vm.mu.RUnlock()
	return vm.convs.Filter(filter)
}

// TimelineItems returns a snapshot of the active conversation's rows.
// Messages are copied so the render loop never sees a half-applied state
// change.
func (vm *ViewModel) TimelineItems() []chat.Item {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	items := vm.timeline.Items()
	out := make([]chat.Item, len(items))
	for i, item := range items {
		out[i] = item
		if item.Message != nil {
			m := *item.Message
			out[i].Message = &m
		}
	}
	return out
}

// ActiveConversation returns the open conversation.
func (vm *ViewModel) ActiveConversation() chat.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeConv
}

// ConnState returns the transport state for the status bar.
func (vm *ViewModel) ConnState() status.State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.connState
}

// Stats returns the last fetched counters.
func (vm *ViewModel) Stats() api.Stats {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.stats
}

// UserID returns the authenticated user's id, used to align own messages.
func (vm *ViewModel) UserID() int64 {
	return vm.userID
}

func conversationFromAPI(c api.Conversation) chat.Conversation {
	return chat.Conversation{
		ID:                 c.ID,
		PropertyID:         c.PropertyID,
		PropertyTitle:      c.PropertyTitle,
		PropertyCity:       c.PropertyCity,
		PropertyPrice:      c.PropertyPrice,
		OtherUserID:        c.OtherUserID,
		OtherUserName:      c.OtherUserName,
		LastMessageAt:      c.LastMessageAt.Time,
		LastMessagePreview: c.LastMessagePreview,
		UnreadCount:        c.UnreadCount,
		IsActive:           c.IsActive,
	}
}

func (vm *ViewModel) messageFromAPI(m api.Message) chat.Message {
	state := chat.StateSent
	if m.SenderID == vm.userID && m.IsRead {
		state = chat.StateRead
	}
	return chat.Message{
		ServerID:       m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.Time,
		State:          state,
	}
}
