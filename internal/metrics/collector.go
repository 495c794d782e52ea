package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRoundCompleted    EventType = "round_completed"
	EventRoundFailed       EventType = "round_failed"
	EventTargetScored      EventType = "target_scored"
	EventTargetUnreachable EventType = "target_unreachable"
	EventConnAccepted      EventType = "conn_accepted"
	EventConnDropped       EventType = "conn_dropped"
	EventDialFailed        EventType = "dial_failed"
	EventConnClosed        EventType = "conn_closed"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Target    string
	Score     time.Duration
	Changed   bool
	BytesUp   int64
	BytesDown int64
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit sends an event without blocking. Events are discarded when the
// buffer is full rather than slowing the probing or accept loops.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRoundCompleted:
		c.metrics.RecordRound(event.Target, event.Changed)

	case EventRoundFailed:
		c.metrics.RecordFailedRound()

	case EventTargetScored:
		c.metrics.RecordScore(event.Target, event.Score)

	case EventTargetUnreachable:
		c.metrics.RecordUnreachable(event.Target)

	case EventConnAccepted:
		c.metrics.RecordAccepted()

	case EventConnDropped:
		c.metrics.RecordDropped()

	case EventDialFailed:
		c.metrics.RecordDialFailure()

	case EventConnClosed:
		c.metrics.RecordClosed(event.BytesUp, event.BytesDown)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
