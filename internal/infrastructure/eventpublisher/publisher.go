package eventpublisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

const (
	defaultBatchSize = 100
	defaultInterval  = 5 * time.Second
)

// Sink delivers one outbox event to the outside world.
type Sink interface {
	Send(ctx context.Context, event *domain.OutboxEvent) error
}

// Relay moves committed outbox events (journal postings, reversals, stock
// movements, open-item changes) to a Sink and marks them published.
type Relay struct {
	outbox    usecase.OutboxRepository
	sink      Sink
	logger    zerolog.Logger
	batchSize int
	interval  time.Duration
	retention time.Duration
	sent      prometheus.Counter
	failed    prometheus.Counter
	now       func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithBatchSize caps the events fetched per round trip.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRetention deletes published events older than d. Zero keeps them.
func WithRetention(d time.Duration) Option {
	return func(r *Relay) { r.retention = d }
}

// WithCounters counts delivered and failed events. Either may be nil.
func WithCounters(sent, failed prometheus.Counter) Option {
	return func(r *Relay) {
		r.sent = sent
		r.failed = failed
	}
}

// NewRelay creates a Relay reading from outbox and writing to sink.
func NewRelay(outbox usecase.OutboxRepository, sink Sink, logger zerolog.Logger, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		sink:      sink,
		logger:    logger,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().
		Int("batch_size", r.batchSize).
		Dur("interval", r.interval).
		Dur("retention", r.retention).
		Msg("outbox relay started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.round(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Relay) round(ctx context.Context) {
	sent, err := r.drain(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("read outbox")
	}
	if sent > 0 {
		r.logger.Debug().Int("sent", sent).Msg("outbox drained")
	}

	if err := r.purge(ctx); err != nil {
		r.logger.Error().Err(err).Msg("purge outbox")
	}
}

// drain sends full batches back to back so a backlog clears within one
// round. It stops after a short batch or any failed delivery, leaving the
// failed events for the next round.
func (r *Relay) drain(ctx context.Context) (int, error) {
	total := 0
	for ctx.Err() == nil {
		events, err := r.outbox.GetUnpublished(ctx, r.batchSize)
		if err != nil {
			return total, err
		}

		sent := r.deliver(ctx, events)
		total += sent
		if sent < len(events) || len(events) < r.batchSize {
			break
		}
	}
	return total, nil
}

// deliver returns how many events reached the sink and were marked.
func (r *Relay) deliver(ctx context.Context, events []*domain.OutboxEvent) int {
	sent := 0
	for _, event := range events {
		log := r.logger.With().
			Str("event_id", event.ID).
			Str("event_type", event.EventType).
			Logger()

		if err := r.sink.Send(ctx, event); err != nil {
			log.Error().Err(err).Msg("deliver outbox event")
			inc(r.failed)
			continue
		}
		inc(r.sent)

		if err := r.outbox.MarkPublished(ctx, event.ID, r.now()); err != nil {
			log.Error().Err(err).Msg("mark outbox event published")
			continue
		}
		sent++
	}
	return sent
}

func (r *Relay) purge(ctx context.Context) error {
	if r.retention <= 0 {
		return nil
	}
	return r.outbox.DeletePublished(ctx, r.now().Add(-r.retention))
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// LogSink writes events to the log. It is used when Redis is not configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send logs the event with its payload.
func (s *LogSink) Send(ctx context.Context, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.EventType).
		Str("aggregate", event.AggregateType+"/"+event.AggregateID).
		RawJSON("payload", payload).
		Msg("outbox event")
	return nil
}

// Envelope is the JSON body published for each event.
type Envelope struct {
	ID            string         `json:"id"`
	EventType     string         `json:"event_type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	Payload       map[string]any `json:"payload"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// RedisSink publishes events on Redis pub/sub. Each aggregate type gets its
// own channel, prefix.aggregate_type, so a consumer interested only in stock
// movements subscribes to prefix.stock. Delivery is at least once.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSink creates a RedisSink publishing under prefix.
func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Channel names the channel an event of aggregateType is published on.
func (s *RedisSink) Channel(aggregateType string) string {
	return s.prefix + "." + aggregateType
}

// Send publishes the event envelope.
func (s *RedisSink) Send(ctx context.Context, event *domain.OutboxEvent) error {
	body, err := json.Marshal(Envelope{
		ID:            event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		OccurredAt:    event.CreatedAt,
	})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.Channel(event.AggregateType), body).Err()
}
