// Package bus implements the Event Bus: a local in-process emitter for
// same-replica listeners and a cross-replica broadcast layer backed by
// Redis pub/sub for fan-out to every other replica.
package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
	"go.uber.org/zap"
)

// Handler receives an emitted event's payload.
type Handler func(payload json.RawMessage)

// Bus is the local + cross-replica Event Bus described in spec §4.2.
// Handlers registered with On/Once fire in registration order for a given
// event name; there is no ordering guarantee across distinct event names.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]registration
	redis    *Service
}

type registration struct {
	id      uint64
	once    bool
	handler Handler
}

// New constructs a Bus. redisSvc may be nil, in which case Broadcast is a
// local-only emit (single-instance mode).
func New(redisSvc *Service) *Bus {
	return &Bus{handlers: make(map[string][]registration), redis: redisSvc}
}

// On registers a persistent handler for event, returning a cancel function
// equivalent to Off for this specific registration.
func (b *Bus) On(event string, h Handler) (cancel func()) {
	return b.register(event, h, false)
}

// Once registers a handler that fires at most one time then auto-removes
// itself.
func (b *Bus) Once(event string, h Handler) (cancel func()) {
	return b.register(event, h, true)
}

var nextID uint64

func (b *Bus) register(event string, h Handler, once bool) func() {
	b.mu.Lock()
	nextID++
	id := nextID
	b.handlers[event] = append(b.handlers[event], registration{id: id, once: once, handler: h})
	b.mu.Unlock()

	return func() { b.offByID(event, id) }
}

// Off removes all handlers registered for event.
func (b *Bus) Off(event string) {
	b.mu.Lock()
	delete(b.handlers, event)
	b.mu.Unlock()
}

func (b *Bus) offByID(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[event]
	for i, r := range regs {
		if r.id == id {
			b.handlers[event] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// Emit fires event to local listeners only. Handlers must be non-blocking;
// long work belongs on the scheduler (§4.2).
func (b *Bus) Emit(ctx context.Context, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logging.Error(ctx, "bus: failed to marshal emit payload", zap.String("event", event), zap.Error(err))
		return
	}
	b.dispatchLocal(ctx, event, raw)
}

func (b *Bus) dispatchLocal(ctx context.Context, event string, raw json.RawMessage) {
	b.mu.Lock()
	regs := append([]registration(nil), b.handlers[event]...)
	var remaining []registration
	for _, r := range b.handlers[event] {
		if !r.once {
			remaining = append(remaining, r)
		}
	}
	b.handlers[event] = remaining
	b.mu.Unlock()

	for _, r := range regs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logging.Error(ctx, "bus: handler panicked", zap.String("event", event), zap.Any("recover", rec))
				}
			}()
			r.handler(raw)
		}()
	}
}

// Broadcast emits event locally and fans it out to every other replica via
// Redis pub/sub. Delivery to other replicas is best-effort at-most-once; if
// the Redis circuit breaker is open the broadcast degrades to local-only.
func (b *Bus) Broadcast(ctx context.Context, event string, payload any) error {
	b.Emit(ctx, event, payload)
	if b.redis == nil {
		return nil
	}
	return b.redis.PublishEvent(ctx, event, payload)
}

// SubscribeReplicas starts the background goroutine that receives
// cross-replica broadcasts and re-dispatches them into the local emitter
// with the given replica-local Bus as the sink. Call once at startup.
func (b *Bus) SubscribeReplicas(ctx context.Context, wg *sync.WaitGroup) {
	if b.redis == nil {
		return
	}
	b.redis.SubscribeEvents(ctx, wg, func(event string, raw json.RawMessage) {
		b.dispatchLocal(ctx, event, raw)
	})
}
