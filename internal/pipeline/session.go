package pipeline

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/invkeeper/internal/models"
)

const (
	eventBuffer = 64
	// reservedEvents keeps room for the stage transitions and the terminal
	// event so they are never dropped in favour of progress samples.
	reservedEvents = 4
)

// Session tracks one ingest. It is owned by the caller of Pipeline.Ingest.
type Session struct {
	itemID string
	events chan models.IngestEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	stage    models.Stage
	progress models.Progress
	result   models.IngestResult
	err      error
}

func newSession(itemID string, cancel context.CancelFunc) *Session {
	return &Session{
		itemID: itemID,
		events: make(chan models.IngestEvent, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ItemID returns the item this session ingests assets for.
func (s *Session) ItemID() string {
	return s.itemID
}

// Events delivers stage transitions and progress samples in order, followed
// by exactly one terminal event, after which the channel is closed.
// Progress samples may be skipped when the reader falls behind; stage
// transitions and the terminal event never are.
func (s *Session) Events() <-chan models.IngestEvent {
	return s.events
}

// Cancel aborts the ingest. The terminal event reports the cancellation.
func (s *Session) Cancel() {
	s.cancel()
}

// Done is closed once the terminal event has been published.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the ingest finishes or ctx ends.
func (s *Session) Wait(ctx context.Context) (models.IngestResult, error) {
	select {
	case <-s.done:
		return s.Result()
	case <-ctx.Done():
		return models.IngestResult{}, ctx.Err()
	}
}

// Result returns the committed outcome. Before completion it returns a zero
// result and nil error.
func (s *Session) Result() (models.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// Stage returns the current stage.
func (s *Session) Stage() models.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Progress returns the latest progress of the current uploading stage.
func (s *Session) Progress() models.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// enter moves to stage and publishes the transition. Uploading stages start
// with a fresh progress of 0/total.
func (s *Session) enter(stage models.Stage, total int64) {
	ev := models.IngestEvent{ItemID: s.itemID, Stage: stage}
	s.mu.Lock()
	s.stage = stage
	s.progress = models.Progress{}
	if stage.Uploading() {
		s.progress = models.NewProgress(0, total)
		p := s.progress
		ev.Progress = &p
	}
	s.mu.Unlock()
	s.events <- ev
}

// report records a progress sample. It returns false when the sample was
// not newer than the last one.
func (s *Session) report(completed, total int64) (models.Progress, bool) {
	s.mu.Lock()
	if !s.stage.Uploading() || completed <= s.progress.BytesCompleted {
		s.mu.Unlock()
		return models.Progress{}, false
	}
	s.progress = models.NewProgress(completed, total)
	p := s.progress
	stage := s.stage
	s.mu.Unlock()

	if len(s.events) < cap(s.events)-reservedEvents {
		s.events <- models.IngestEvent{ItemID: s.itemID, Stage: stage, Progress: &p}
	}
	return p, true
}

// succeed commits res and publishes the terminal Done event.
func (s *Session) succeed(res models.IngestResult) {
	s.mu.Lock()
	s.stage = models.StageDone
	s.progress = models.Progress{}
	s.result = res
	s.mu.Unlock()

	r := res
	s.finish(models.IngestEvent{ItemID: s.itemID, Stage: models.StageDone, Result: &r})
}

// failWith publishes the terminal Failed event. No result is committed.
func (s *Session) failWith(err error) {
	s.mu.Lock()
	s.stage = models.StageFailed
	s.progress = models.Progress{}
	s.err = err
	s.mu.Unlock()

	s.finish(models.IngestEvent{ItemID: s.itemID, Stage: models.StageFailed, Err: err})
}

func (s *Session) finish(ev models.IngestEvent) {
	s.events <- ev
	close(s.events)
	close(s.done)
	s.cancel()
}
