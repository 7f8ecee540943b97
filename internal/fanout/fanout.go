// Package fanout delivers domain events to every connected observer. Each
// sink has its own queue and worker, so a slow or failing sink never holds up
// the others or the request that emitted the event.
package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize = 256
	deliverTimeout   = 5 * time.Second
)

// Delivery results reported to the Observer.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
)

// Event is the envelope every observer receives.
type Event struct {
	EventID   uuid.UUID `json:"eventId"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Message is an event together with its JSON encoding.
type Message struct {
	Event Event
	Data  []byte
}

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Observer is told the outcome of every delivery attempt.
type Observer interface {
	EventDelivered(event, sink, result string)
}

type nopObserver struct{}

func (nopObserver) EventDelivered(string, string, string) {}

type sinkWorker struct {
	sink  Sink
	queue chan Message
}

// Broadcaster implements domain.EventEmitter over a set of sinks.
type Broadcaster struct {
	workers  []*sinkWorker
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewBroadcaster starts one worker per sink. A nil observer is allowed.
func NewBroadcaster(logger *zap.Logger, observer Observer, queueSize int, sinks ...Sink) *Broadcaster {
	if observer == nil {
		observer = nopObserver{}
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	b := &Broadcaster{
		logger:   logger.Named("fanout"),
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, sink := range sinks {
		w := &sinkWorker{sink: sink, queue: make(chan Message, queueSize)}
		b.workers = append(b.workers, w)
		b.wg.Add(1)
		go b.run(w)
	}
	return b
}

// Emit wraps payload in an envelope and queues it on every sink. A full
// queue drops the event for that sink only.
func (b *Broadcaster) Emit(_ context.Context, name string, payload any) {
	event := Event{
		EventID:   uuid.New(),
		Type:      name,
		Timestamp: b.now(),
		Payload:   payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to encode event", zap.String("event", name), zap.Error(err))
		return
	}
	msg := Message{Event: event, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, w := range b.workers {
		select {
		case w.queue <- msg:
		default:
			b.observer.EventDelivered(name, w.sink.Name(), ResultDropped)
			b.logger.Warn("Sink queue full, dropping event",
				zap.String("event", name),
				zap.String("sink", w.sink.Name()),
			)
		}
	}
}

func (b *Broadcaster) run(w *sinkWorker) {
	defer b.wg.Done()
	for msg := range w.queue {
		b.deliver(w.sink, msg)
	}
}

func (b *Broadcaster) deliver(sink Sink, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.observer.EventDelivered(msg.Event.Type, sink.Name(), ResultError)
			b.logger.Error("Sink panicked", zap.String("sink", sink.Name()), zap.Any("panic", r))
		}
	}()

	if err := sink.Deliver(ctx, msg); err != nil {
		b.observer.EventDelivered(msg.Event.Type, sink.Name(), ResultError)
		b.logger.Warn("Event delivery failed",
			zap.String("event", msg.Event.Type),
			zap.String("sink", sink.Name()),
			zap.Error(err),
		)
		return
	}
	b.observer.EventDelivered(msg.Event.Type, sink.Name(), ResultOK)
}

// Close stops accepting events and waits until queued ones are delivered.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, w := range b.workers {
		close(w.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
