package server

import (
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
)

// MatchEventType represents the type of match lifecycle event
type MatchEventType string

const (
	EventMatchCreated      MatchEventType = "match_created"
	EventTurnCommitted     MatchEventType = "turn_committed"
	EventChallengeResolved MatchEventType = "challenge_resolved"
	EventBlanksSet         MatchEventType = "blanks_set"
	EventMatchEnded        MatchEventType = "match_ended"
	EventSensorRegistered  MatchEventType = "sensor_registered"
	EventSensorReconnected MatchEventType = "sensor_reconnected"
	EventSensorLost        MatchEventType = "sensor_lost"
)

// MatchEvent represents an immutable snapshot of a match lifecycle
// event. MatchID is empty for pool-level sensor events.
type MatchEvent struct {
	ID        string
	Type      MatchEventType
	MatchID   string
	Payload   EventPayload
	Timestamp time.Time
}

// NewMatchEvent stamps a fresh event around payload. The event type is
// derived from the payload so the two can never disagree.
func NewMatchEvent(matchID string, payload EventPayload) *MatchEvent {
	return &MatchEvent{
		ID:        uuid.NewString(),
		Type:      payload.Kind(),
		MatchID:   matchID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// EventHandler defines the interface for handling events
type EventHandler interface {
	HandleEvent(event *MatchEvent)
}

// EventProcessor manages the processing of match events
type EventProcessor struct {
	log      slog.Logger
	queue    chan *MatchEvent
	workers  []*eventWorker
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex

	handlersMu sync.RWMutex
	handlers   []EventHandler
}

// eventWorker processes events from the queue
type eventWorker struct {
	id        int
	processor *EventProcessor
	stopChan  chan struct{}
	wg        *sync.WaitGroup
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(log slog.Logger, queueSize, workerCount int) *EventProcessor {
	if log == nil {
		log = slog.Disabled
	}
	processor := &EventProcessor{
		log:      log,
		queue:    make(chan *MatchEvent, queueSize),
		stopChan: make(chan struct{}),
	}

	// Create workers
	processor.workers = make([]*eventWorker, workerCount)
	for i := 0; i < workerCount; i++ {
		processor.workers[i] = &eventWorker{
			id:        i,
			processor: processor,
			stopChan:  make(chan struct{}),
			wg:        &processor.wg,
		}
	}

	return processor
}

// RegisterHandler adds a handler every processed event is dispatched
// to. Handlers registered after Start still receive later events.
func (ep *EventProcessor) RegisterHandler(h EventHandler) {
	ep.handlersMu.Lock()
	defer ep.handlersMu.Unlock()
	ep.handlers = append(ep.handlers, h)
}

// Start begins processing events
func (ep *EventProcessor) Start() {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.started {
		return
	}

	ep.started = true
	ep.log.Infof("Starting event processor with %d workers", len(ep.workers))

	// Start all workers
	for _, worker := range ep.workers {
		ep.wg.Add(1)
		go worker.run()
	}
}

// Stop gracefully stops the event processor
func (ep *EventProcessor) Stop() {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if !ep.started {
		return
	}

	ep.log.Infof("Stopping event processor...")

	// Signal all workers to stop
	close(ep.stopChan)
	for _, worker := range ep.workers {
		close(worker.stopChan)
	}

	// Wait for all workers to finish
	ep.wg.Wait()

	ep.started = false
	ep.log.Infof("Event processor stopped")
}

// PublishEvent publishes an event for processing
func (ep *EventProcessor) PublishEvent(event *MatchEvent) {
	ep.mu.Lock()
	started := ep.started
	ep.mu.Unlock()

	if !started {
		ep.log.Warnf("Event processor not started, dropping event: %v", event.Type)
		return
	}

	select {
	case ep.queue <- event:
		ep.log.Debugf("Published event: %s for match %q", event.Type, event.MatchID)
	default:
		ep.log.Errorf("Event queue full, dropping event: %s for match %q", event.Type, event.MatchID)
	}
}

// run executes the worker loop
func (w *eventWorker) run() {
	defer w.wg.Done()
	w.processor.log.Debugf("Event worker %d started", w.id)

	for {
		select {
		case <-w.stopChan:
			w.processor.log.Debugf("Event worker %d stopping", w.id)
			return

		case <-w.processor.stopChan:
			w.processor.log.Debugf("Event worker %d stopping (processor shutdown)", w.id)
			return

		case event := <-w.processor.queue:
			if event != nil {
				w.processEvent(event)
			}
		}
	}
}

// processEvent dispatches a single event to all registered handlers
func (w *eventWorker) processEvent(event *MatchEvent) {
	w.processor.log.Debugf("Worker %d processing event: %s for match %q", w.id, event.Type, event.MatchID)

	w.processor.handlersMu.RLock()
	handlers := make([]EventHandler, len(w.processor.handlers))
	copy(handlers, w.processor.handlers)
	w.processor.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler.HandleEvent(event)
	}
}
