package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_cache_events_total",
		Help: "Total status events emitted by kind",
	}, []string{"kind"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_cache_events_dropped_total",
		Help: "Total status events dropped because a sink was full",
	}, []string{"sink"})
)

// Sink receives status events. Send must not block.
type Sink interface {
	Send(ev Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev Event)

// Send calls f(ev).
func (f SinkFunc) Send(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to several sinks and counts it once.
type Multi []Sink

// Send delivers ev to every sink.
func (m Multi) Send(ev Event) {
	eventsTotal.WithLabelValues(string(ev.Kind())).Inc()
	for _, s := range m {
		s.Send(ev)
	}
}

// LogSink writes every event to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

// Send logs ev. Errors are logged at warn level, everything else at debug.
func (s LogSink) Send(ev Event) {
	e := s.Logger.Debug()
	if pe, ok := ev.(PrefetchError); ok {
		e = s.Logger.Warn().Err(pe.Err)
	}
	e.Str("kind", string(ev.Kind())).
		Str("key", ev.Key()).
		Str("url", ev.URL()).
		Msg("Status event")
}

// RedisSink publishes events as JSON on a Redis channel. Publishing runs on
// a background goroutine fed by a bounded buffer; events are dropped when the
// buffer is full.
type RedisSink struct {
	redis   *redis.Client
	channel string
	logger  zerolog.Logger
	events  chan Event
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewRedisSink starts a publisher for channel. Call Close to stop it.
func NewRedisSink(redisClient *redis.Client, channel string, logger zerolog.Logger) *RedisSink {
	s := &RedisSink{
		redis:   redisClient,
		channel: channel,
		logger:  logger,
		events:  make(chan Event, 256),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Send queues ev for publishing. Events sent after Close are dropped.
func (s *RedisSink) Send(ev Event) {
	select {
	case <-s.stop:
		eventsDropped.WithLabelValues("redis").Inc()
		return
	default:
	}

	select {
	case s.events <- ev:
	case <-s.stop:
		eventsDropped.WithLabelValues("redis").Inc()
	default:
		eventsDropped.WithLabelValues("redis").Inc()
	}
}

// Close stops the publisher after draining queued events. It is safe to
// call more than once and concurrently with Send.
func (s *RedisSink) Close() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *RedisSink) run() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			s.publish(ev)
		case <-s.stop:
			for {
				select {
				case ev := <-s.events:
					s.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *RedisSink) publish(ev Event) {
	payload, err := Marshal(ev)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode status event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.redis.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn().Err(err).Str("channel", s.channel).Msg("Failed to publish status event")
	}
}

// Hub delivers events to in-process subscribers, e.g. streaming HTTP clients.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel function unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Send delivers ev to every subscriber with room in its buffer.
func (h *Hub) Send(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			eventsDropped.WithLabelValues("hub").Inc()
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Recorder keeps every event in memory. It is meant for tests and
// diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Send records ev.
func (r *Recorder) Send(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded events have kind k.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind() == k {
			n++
		}
	}
	return n
}
