package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	subscriberBuffer  = 64
	pruneInterval     = 5 * time.Minute
	pruneAfter        = 30 * time.Minute
	busPublishTimeout = 2 * time.Second
	outboxSize        = 256
)

// Bus carries messages between instances.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	StartForwarder(ctx context.Context, onMsg func(Message)) error
	Close() error
}

// Subscription receives the messages of one session.
type Subscription struct {
	id  int64
	key string
	C   <-chan Message
	ch  chan Message
}

// Broker fans session events out to subscribed SSE clients and keeps a
// replay buffer per session. It implements session.Publisher.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]*Subscription
	nextID int64

	counterMu sync.Mutex
	eventID   int64

	queue  *replayQueue
	bus    Bus
	outbox chan Message
	origin string
	logger *slog.Logger
}

// NewBroker returns a broker. bus may be nil for a single instance.
func NewBroker(queueSize int, bus Bus, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		subs:    make(map[string]map[int64]*Subscription),
		eventID: time.Now().UnixMicro(),
		queue:   newReplayQueue(queueSize),
		bus:     bus,
		origin:  uuid.NewString(),
		logger:  logger,
	}
	if bus != nil {
		b.outbox = make(chan Message, outboxSize)
	}
	return b
}

// Start launches the bus forwarder and outbox worker, if any, and the
// replay pruner. All stop when ctx is done.
func (b *Broker) Start(ctx context.Context) error {
	if b.bus != nil {
		if err := b.bus.StartForwarder(ctx, b.forward); err != nil {
			return err
		}
		go b.drainOutbox(ctx)
		b.logger.Info("Event bus forwarder started")
	}
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := b.queue.pruneBefore(time.Now().Add(-pruneAfter), b.hasSubscribers); n > 0 {
					b.logger.Debug("Pruned replay queues", "count", n)
				}
			}
		}
	}()
	return nil
}

// Publish encodes payload and delivers it to the session's local clients,
// then queues it for the bus. It never blocks: slow clients and a full
// outbox drop events, and clients recover through replay on reconnect.
func (b *Broker) Publish(key, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "type", eventType)
		return
	}
	msg := Message{
		Key:       key,
		ID:        b.nextEventID(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		Origin:    b.origin,
	}

	b.deliver(msg)
	if b.outbox == nil {
		return
	}
	select {
	case b.outbox <- msg:
	default:
		b.logger.Warn("Event bus outbox full, dropping event", "key", key, "event_id", msg.ID)
	}
}

func (b *Broker) drainOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, busPublishTimeout)
			err := b.bus.Publish(pubCtx, msg)
			cancel()
			if err != nil {
				b.logger.Warn("Event bus publish failed", "error", err, "key", msg.Key, "event_id", msg.ID)
			}
		}
	}
}

// forward delivers messages published by other instances.
func (b *Broker) forward(msg Message) {
	if msg.Origin == b.origin {
		return
	}
	b.deliver(msg)
}

func (b *Broker) nextEventID() int64 {
	b.counterMu.Lock()
	defer b.counterMu.Unlock()
	b.eventID++
	return b.eventID
}

func (b *Broker) deliver(msg Message) {
	b.queue.enqueue(msg)

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs[msg.Key]))
	for _, s := range b.subs[msg.Key] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- msg:
		default:
			b.logger.Warn("SSE subscriber lagging, dropping event", "key", msg.Key, "event_id", msg.ID)
		}
	}
}

// Subscribe registers a client for key and returns the messages it missed
// since lastEventID.
func (b *Broker) Subscribe(key string, lastEventID int64) (*Subscription, []Message) {
	ch := make(chan Message, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	sub := &Subscription{id: b.nextID, key: key, C: ch, ch: ch}
	if _, ok := b.subs[key]; !ok {
		b.subs[key] = make(map[int64]*Subscription)
	}
	b.subs[key][sub.id] = sub
	b.mu.Unlock()

	var missed []Message
	if lastEventID > 0 {
		missed = b.queue.after(key, lastEventID)
	}
	return sub, missed
}

// Unsubscribe removes a client.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[sub.key]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.subs, sub.key)
		}
	}
}

func (b *Broker) hasSubscribers(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key]) > 0
}

// Subscribers returns the number of clients watching key.
func (b *Broker) Subscribers(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}

// Close releases the bus.
func (b *Broker) Close() error {
	if b.bus != nil {
		return b.bus.Close()
	}
	return nil
}
