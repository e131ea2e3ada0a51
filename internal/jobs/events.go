package jobs

import (
	"sync"
	"time"

	"pdf-ocr-batch/internal/domain"
)

// EventType classifies checkpoints emitted during job execution.
type EventType string

const (
	EventTypeStatus          EventType = "status"
	EventTypePageRasterized  EventType = "page-rasterized"
	EventTypePageCleaned     EventType = "page-cleaned"
	EventTypeArtifactWritten EventType = "artifact-written"
	EventTypeArtifactSkipped EventType = "artifact-skipped"
	EventTypeError           EventType = "error"
)

// Event is a sequenced diagnostic checkpoint. Events never influence control
// flow.
type Event struct {
	Seq        int64               `json:"seq"`
	Timestamp  time.Time           `json:"timestamp"`
	JobID      string              `json:"jobId"`
	Document   string              `json:"document,omitempty"`
	Type       EventType           `json:"type"`
	State      domain.JobState     `json:"state,omitempty"`
	PageNumber int                 `json:"pageNumber,omitempty"`
	Artifact   domain.ArtifactKind `json:"artifact,omitempty"`
	Path       string              `json:"path,omitempty"`
	ErrorKind  domain.ErrorKind    `json:"errorKind,omitempty"`
	Message    string              `json:"message,omitempty"`
	Elapsed    time.Duration       `json:"elapsed,omitempty"`
}

// Observer receives pipeline checkpoints.
type Observer interface {
	Publish(event Event) Event
}

// Discard is an Observer that drops every event.
var Discard Observer = discard{}

type discard struct{}

func (discard) Publish(event Event) Event { return event }

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 1000
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
