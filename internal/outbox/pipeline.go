package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"homechat/internal/bus"
	"homechat/internal/chat"
)

const (
	maxAttempts    = 3
	retryBaseDelay = 2 * time.Second
)

// Submitter performs the actual message delivery. The REST client
// implements it.
type Submitter interface {
	SubmitMessage(ctx context.Context, conversationID int64, content string) (int64, error)
}

// Ack is the payload of "outbox.sent".
type Ack struct {
	TempID         string
	ConversationID int64
	ServerID       int64
}

// Retrying is the payload of "outbox.retrying". Attempt is the attempt
// that just failed; zero for a manual retry being requeued.
type Retrying struct {
	TempID         string
	ConversationID int64
	Attempt        int
	RetryIn        time.Duration
}

// Failed is the payload of "outbox.failed", published when automatic
// retries are exhausted. The message stays queued for a manual Retry.
type Failed struct {
	TempID         string
	ConversationID int64
}

type delivery struct {
	tempID         string
	conversationID int64
	content        string
	attempts       int
	timer          *time.Timer
	failed         bool
}

// Pipeline delivers outbound messages. Send renders optimistically: it
// returns the message with a temp identity before any network I/O, then
// submits in the background with up to three total attempts and a linear
// backoff between them. Exhausted deliveries wait for a manual Retry.
//
// Progress is published on the bus under "outbox.*".
type Pipeline struct {
	submitter Submitter
	bus       *bus.Bus
	logger    *zap.Logger

	senderID   int64
	senderName string

	baseDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	counter    int64
	deliveries map[string]*delivery
	order      []string
}

func NewPipeline(submitter Submitter, senderID int64, senderName string, b *bus.Bus, logger *zap.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		submitter:  submitter,
		bus:        b,
		logger:     logger.Named("outbox"),
		senderID:   senderID,
		senderName: senderName,
		baseDelay:  retryBaseDelay,
		ctx:        ctx,
		cancel:     cancel,
		deliveries: make(map[string]*delivery),
	}
}

// Send queues a message for delivery and returns the optimistic render
// immediately. The returned message is in the sending state under a temp
// identity; delivery outcome arrives via bus events.
func (p *Pipeline) Send(conversationID int64, content string) *chat.Message {
	p.mu.Lock()
	p.counter++
	tempID := fmt.Sprintf("temp-%d-%d", p.counter, time.Now().UnixMilli())
	d := &delivery{
		tempID:         tempID,
		conversationID: conversationID,
		content:        content,
	}
	p.deliveries[tempID] = d
	p.order = append(p.order, tempID)
	p.mu.Unlock()

	msg := &chat.Message{
		TempID:         tempID,
		ConversationID: conversationID,
		SenderID:       p.senderID,
		SenderName:     p.senderName,
		Content:        content,
		CreatedAt:      time.Now(),
		State:          chat.StateSending,
	}

	go p.attempt(tempID)
	return msg
}

// Retry requeues a delivery that exhausted its automatic attempts. The
// attempt counter starts over.
func (p *Pipeline) Retry(tempID string) error {
	p.mu.Lock()
	d, ok := p.deliveries[tempID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("no delivery %s", tempID)
	}
	if !d.failed {
		p.mu.Unlock()
		return fmt.Errorf("delivery %s has not failed", tempID)
	}
	d.failed = false
	d.attempts = 0
	convID := d.conversationID
	p.mu.Unlock()

	p.logger.Info("manual retry", zap.String("temp_id", tempID))
	p.publish("outbox.retrying", Retrying{TempID: tempID, ConversationID: convID})
	go p.attempt(tempID)
	return nil
}

// Reconcile matches a server echo of our own message against pending
// deliveries: same conversation, same content, still in flight. The
// oldest match is confirmed and its temp id returned. This covers the
// case where the send reached the server but the HTTP response was lost.
func (p *Pipeline) Reconcile(conversationID int64, content string, serverID int64) (string, bool) {
	p.mu.Lock()
	for _, tempID := range p.order {
		d := p.deliveries[tempID]
		if d == nil || d.failed {
			continue
		}
		if d.conversationID != conversationID || d.content != content {
			continue
		}
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		p.remove(tempID)
		p.mu.Unlock()

		p.logger.Info("delivery reconciled from echo",
			zap.String("temp_id", tempID),
			zap.Int64("server_id", serverID))
		p.publish("outbox.sent", Ack{TempID: tempID, ConversationID: conversationID, ServerID: serverID})
		return tempID, true
	}
	p.mu.Unlock()
	return "", false
}

// Stop cancels in-flight submissions and pending retry timers.
func (p *Pipeline) Stop() {
	p.cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.deliveries {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
	}
}

func (p *Pipeline) attempt(tempID string) {
	p.mu.Lock()
	d, ok := p.deliveries[tempID]
	if !ok || d.failed {
		p.mu.Unlock()
		return
	}
	d.attempts++
	attempt := d.attempts
	convID, content := d.conversationID, d.content
	p.mu.Unlock()

	serverID, err := p.submitter.SubmitMessage(p.ctx, convID, content)

	p.mu.Lock()
	d, ok = p.deliveries[tempID]
	if !ok || d.failed {
		// Reconciled from an echo while the request was in flight.
		p.mu.Unlock()
		return
	}
	if err == nil {
		p.remove(tempID)
		p.mu.Unlock()
		p.publish("outbox.sent", Ack{TempID: tempID, ConversationID: convID, ServerID: serverID})
		return
	}
	if attempt >= maxAttempts {
		d.failed = true
		p.mu.Unlock()
		p.logger.Warn("delivery failed",
			zap.String("temp_id", tempID),
			zap.Int("attempts", attempt),
			zap.Error(err))
		p.publish("outbox.failed", Failed{TempID: tempID, ConversationID: convID})
		return
	}
	delay := time.Duration(attempt) * p.baseDelay
	d.timer = time.AfterFunc(delay, func() { p.attempt(tempID) })
	p.mu.Unlock()

	p.logger.Info("delivery attempt failed, retrying",
		zap.String("temp_id", tempID),
		zap.Int("attempt", attempt),
		zap.Duration("retry_in", delay),
		zap.Error(err))
	p.publish("outbox.retrying", Retrying{TempID: tempID, ConversationID: convID, Attempt: attempt, RetryIn: delay})
}

// remove drops a confirmed delivery record. Failed deliveries stay in
// the map so a manual Retry can find them. Caller holds mu.
func (p *Pipeline) remove(tempID string) {
	delete(p.deliveries, tempID)
	for i, id := range p.order {
		if id == tempID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *Pipeline) publish(kind string, payload any) {
	p.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
