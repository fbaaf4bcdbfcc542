// Package events delivers structured sale notifications to observers:
// the process log, the Prometheus counters, the purchase archive and any
// connected websocket feed subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"token-presale-ledger/internal/domain"
	"token-presale-ledger/internal/storage"
)

// Sink accepts structured events emitted after committed ledger mutations.
// Sinks are observers: a sink failure never rolls back the mutation.
type Sink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// LogSink writes events to a standard logger as one-line JSON.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a sink that logs every event.
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the event.
func (s *LogSink) Publish(_ context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.logger.Printf("%s %s", ev.EventType(), payload)
	return nil
}

// MultiSink fans an event out to several sinks. All sinks are attempted;
// errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink that publishes to all given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Publish delivers the event to every sink.
func (s *MultiSink) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ArchiveSink persists purchase events to an append-only store. Other
// event kinds pass through untouched.
type ArchiveSink struct {
	store storage.PurchaseEventStore
}

// NewArchiveSink creates a sink backed by a purchase event store.
func NewArchiveSink(store storage.PurchaseEventStore) *ArchiveSink {
	return &ArchiveSink{store: store}
}

// Publish archives purchase events.
func (s *ArchiveSink) Publish(ctx context.Context, ev domain.Event) error {
	purchase, ok := ev.(*domain.PurchaseEvent)
	if !ok {
		return nil
	}
	if err := s.store.Insert(ctx, purchase); err != nil {
		// Redelivery of an already archived event is not a failure.
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return err
	}
	return nil
}

// Compile-time interface checks.
var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*MultiSink)(nil)
	_ Sink = (*ArchiveSink)(nil)
)
