package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notification about batch progress.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	BatchID   string                 `json:"batch_id,omitempty"`
	Sequence  string                 `json:"sequence,omitempty"`
	Dataset   string                 `json:"dataset,omitempty"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeBatchStarted      = "batch.started"
	EventTypeBatchCompleted    = "batch.completed"
	EventTypeBatchFailed       = "batch.failed"
	EventTypeSequenceCompleted = "sequence.completed"
	EventTypeSequenceFailed    = "sequence.failed"
	EventTypeDatasetCommitted  = "dataset.committed"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles delivered events.
type EventSubscriber func(event Event)

// EventFilter decides whether an event is kept.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, optionally through an
// asynchronous buffer.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a publisher and starts its delivery loop when async.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}
	return ep, nil
}

// Publish stamps and delivers an event. In async mode a full buffer drops the
// event and returns an error.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if !ep.config.EnableAsync {
		ep.deliverEvent(event)
		return nil
	}
	select {
	case ep.buffer <- event:
		return nil
	case <-ep.ctx.Done():
		return fmt.Errorf("event publisher stopped")
	default:
		return fmt.Errorf("event buffer full, event dropped")
	}
}

// PublishBatchStarted publishes batch.started.
func (ep *EventPublisher) PublishBatchStarted(batchID, operation, source, target string, sequences int) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchStarted,
		BatchID: batchID,
		Dataset: target,
		Message: fmt.Sprintf("Batch %s started: %s %s -> %s", batchID, operation, source, target),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"operation": operation,
			"source":    source,
			"sequences": sequences,
		},
	})
}

// PublishBatchCompleted publishes batch.completed.
func (ep *EventPublisher) PublishBatchCompleted(batchID, target string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchCompleted,
		BatchID: batchID,
		Dataset: target,
		Message: fmt.Sprintf("Batch %s completed", batchID),
		Level:   EventLevelInfo,
		Data:    map[string]interface{}{"duration": duration.Seconds()},
	})
}

// PublishBatchFailed publishes batch.failed.
func (ep *EventPublisher) PublishBatchFailed(batchID, target, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchFailed,
		BatchID: batchID,
		Dataset: target,
		Message: fmt.Sprintf("Batch %s failed: %s", batchID, reason),
		Level:   EventLevelError,
		Data:    map[string]interface{}{"reason": reason},
	})
}

// PublishSequenceCompleted publishes sequence.completed.
func (ep *EventPublisher) PublishSequenceCompleted(batchID, sequence string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeSequenceCompleted,
		BatchID:  batchID,
		Sequence: sequence,
		Message:  fmt.Sprintf("Sequence %s completed", sequence),
		Level:    EventLevelInfo,
		Data:     map[string]interface{}{"duration": duration.Seconds()},
	})
}

// PublishSequenceFailed publishes sequence.failed.
func (ep *EventPublisher) PublishSequenceFailed(batchID, sequence, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeSequenceFailed,
		BatchID:  batchID,
		Sequence: sequence,
		Message:  fmt.Sprintf("Sequence %s failed: %s", sequence, reason),
		Level:    EventLevelError,
		Data:     map[string]interface{}{"reason": reason},
	})
}

// PublishDatasetCommitted publishes dataset.committed.
func (ep *EventPublisher) PublishDatasetCommitted(batchID, dataset, kind string) error {
	return ep.Publish(Event{
		Type:    EventTypeDatasetCommitted,
		BatchID: batchID,
		Dataset: dataset,
		Message: fmt.Sprintf("Dataset %s committed", dataset),
		Level:   EventLevelInfo,
		Data:    map[string]interface{}{"kind": kind},
	})
}

// Subscribe registers a subscriber with an optional filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: subscriber, filter: filter})
}

// AddFilter adds a global filter applied before buffering.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize || len(ep.buffer) == 0 {
				flush()
			}
		case <-tick:
			flush()
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent calls subscribers in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains the buffer and stops the delivery loop.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel keeps events at or above minLevel.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{EventLevelInfo: 0, EventLevelWarning: 1, EventLevelError: 2}
	min := levels[minLevel]
	return func(event Event) bool { return levels[event.Level] >= min }
}

// FilterByType keeps events of the given types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(event Event) bool { return set[event.Type] }
}

// FilterByBatchID keeps events of one batch.
func FilterByBatchID(batchID string) EventFilter {
	return func(event Event) bool { return event.BatchID == batchID }
}
