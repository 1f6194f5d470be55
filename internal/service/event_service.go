package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"trade_desk/internal/domain"
)

const defaultQueueSize = 1000

// Subscriber receives outbound lifecycle events. Delivery is at most once.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, event domain.Event) error
}

// DropRecorder counts events discarded because the queue was full.
type DropRecorder interface {
	EventDropped(eventType string)
}

type EventService struct {
	subscribers  []Subscriber
	queue        chan domain.Event
	workers      int
	drops        DropRecorder
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewEventService(
	workers int,
	queueSize int,
	drops DropRecorder,
	logger *slog.Logger,
	subscribers ...Subscriber,
) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	service := &EventService{
		subscribers:  subscribers,
		queue:        make(chan domain.Event, queueSize),
		workers:      workers,
		drops:        drops,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

// Publish enqueues event without blocking. A full queue or a stopped service
// drops the event with a warning.
func (s *EventService) Publish(ctx context.Context, event domain.Event) {
	select {
	case <-s.shutdownChan:
		s.drop(ctx, event, "service stopped")
		return
	default:
	}

	select {
	case s.queue <- event:
		s.logger.DebugContext(ctx, "Event queued",
			slog.String("type", string(event.Type)),
			slog.String("entity_id", event.EntityID))
	default:
		s.drop(ctx, event, "queue full")
	}
}

func (s *EventService) drop(ctx context.Context, event domain.Event, reason string) {
	if s.drops != nil {
		s.drops.EventDropped(string(event.Type))
	}
	s.logger.WarnContext(ctx, "Event dropped",
		slog.String("type", string(event.Type)),
		slog.String("entity_id", event.EntityID),
		slog.String("reason", reason))
}

func (s *EventService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *EventService) worker(id int) {
	defer s.wg.Done()

	s.logger.Info("Event worker started", slog.Int("worker_id", id))

	for {
		select {
		case event := <-s.queue:
			s.dispatch(event, id)
		case <-s.shutdownChan:
			s.drain(id)
			s.logger.Info("Event worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

func (s *EventService) drain(workerID int) {
	for {
		select {
		case event := <-s.queue:
			s.dispatch(event, workerID)
		default:
			return
		}
	}
}

func (s *EventService) dispatch(event domain.Event, workerID int) {
	ctx := context.Background()

	for _, sub := range s.subscribers {
		startTime := time.Now()
		err := s.deliver(ctx, sub, event)
		duration := time.Since(startTime)

		if err != nil {
			s.logger.Error("Failed to deliver event",
				slog.String("subscriber", sub.Name()),
				slog.String("type", string(event.Type)),
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
				slog.Int("worker_id", workerID),
				slog.Duration("duration", duration))
		}
	}
}

func (s *EventService) deliver(ctx context.Context, sub Subscriber, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.Handle(ctx, event)
}

func (s *EventService) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Event service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
