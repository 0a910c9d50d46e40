package events

import (
	"container/list"
	"sync"
	"time"
)

// DefaultQueueSize is how many messages are kept per session for replay.
const DefaultQueueSize = 100

// replayQueue buffers recent messages per session so a reconnecting
// client can catch up from its Last-Event-ID. Each session has its own
// bounded list, so one session's burst cannot evict another's messages.
type replayQueue struct {
	mu      sync.RWMutex
	queues  map[string]*list.List
	touched map[string]time.Time
	maxSize int
}

func newReplayQueue(maxSize int) *replayQueue {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	return &replayQueue{
		queues:  make(map[string]*list.List),
		touched: make(map[string]time.Time),
		maxSize: maxSize,
	}
}

func (q *replayQueue) enqueue(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.queues[msg.Key]
	if !ok {
		l = list.New()
		q.queues[msg.Key] = l
	}
	l.PushBack(msg)
	for l.Len() > q.maxSize {
		l.Remove(l.Front())
	}
	q.touched[msg.Key] = time.Now()
}

// after returns the messages for key with an id greater than afterID.
func (q *replayQueue) after(key string, afterID int64) []Message {
	q.mu.RLock()
	defer q.mu.RUnlock()

	l, ok := q.queues[key]
	if !ok {
		return nil
	}
	var missed []Message
	for e := l.Front(); e != nil; e = e.Next() {
		msg := e.Value.(Message)
		if msg.ID > afterID {
			missed = append(missed, msg)
		}
	}
	return missed
}

// pruneBefore drops the queues of sessions untouched since cutoff, except
// those in keep.
func (q *replayQueue) pruneBefore(cutoff time.Time, keep func(key string) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for key, at := range q.touched {
		if at.After(cutoff) || keep(key) {
			continue
		}
		delete(q.queues, key)
		delete(q.touched, key)
		n++
	}
	return n
}
