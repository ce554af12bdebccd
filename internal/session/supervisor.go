package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Event reports one finished background batch. Exactly one event is
// posted per started batch, whether it succeeded, partially failed,
// failed at the operation level, or panicked.
type Event struct {
	Operation string
	Prefix    string

	// Outcome is nil when Err is set (the batch never fanned out).
	Outcome *BatchOutcome
	Err     error
}

// Supervisor runs batches on background goroutines and posts their
// completion to a single-consumer event channel. The consumer drains
// Events from one goroutine; Close waits for in-flight batches so no
// completion is ever dropped.
type Supervisor struct {
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewSupervisor creates a supervisor. The event channel is buffered so a
// briefly absent consumer does not stall finished workers.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	return &Supervisor{
		events: make(chan Event, 16),
		logger: logger,
	}
}

// Events is the completion channel. Read it from a single goroutine.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Start runs the batch task on its own goroutine. The task's whole
// lifecycle — intent, fan-out, join — happens off the caller's
// goroutine; completion always arrives as exactly one Event, panics
// included.
func (s *Supervisor) Start(
	ctx context.Context,
	operation, prefix string,
	task func(context.Context) (*BatchOutcome, error),
) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ev := Event{Operation: operation, Prefix: prefix}

		defer func() {
			if r := recover(); r != nil {
				ev.Outcome = nil
				ev.Err = fmt.Errorf("batch panicked: %v", r)
				s.logger.Error("batch worker panicked",
					"op", operation,
					"panic", r,
				)
			}
			s.events <- ev
		}()

		ev.Outcome, ev.Err = task(ctx)
	}()
}

// Close waits for every started batch to finish, then closes the event
// channel. Call only after the last Start; the consumer's range loop
// terminates once the channel drains.
func (s *Supervisor) Close() {
	s.wg.Wait()
	close(s.events)
}
