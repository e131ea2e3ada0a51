package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"pdf-ocr-batch/internal/domain"
)

// ErrJobExists is returned when a job ID is started twice.
var ErrJobExists = errors.New("job already tracked")

// ErrUnknownJob is returned for transitions on an untracked job.
var ErrUnknownJob = errors.New("unknown job")

// Record is a snapshot of one tracked job.
type Record struct {
	ID       string              `json:"id"`
	Document string              `json:"document"`
	State    domain.JobState     `json:"state"`
	History  []domain.Transition `json:"history"`
}

// Tracker validates and records the state machine of every job in a run.
// It is safe for concurrent use by jobs running on different workers.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Record
	now  func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		jobs: make(map[string]*Record),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Start registers a job in the created state.
func (t *Tracker) Start(jobID, document string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[jobID]; ok {
		return ErrJobExists
	}
	t.jobs[jobID] = &Record{
		ID:       jobID,
		Document: document,
		State:    domain.JobStateCreated,
	}
	return nil
}

// Transition validates and applies a state change for jobID.
func (t *Tracker) Transition(jobID string, state domain.JobState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.jobs[jobID]
	if !ok {
		return ErrUnknownJob
	}
	if state == rec.State {
		return nil
	}
	if !isValidTransition(rec.State, state) {
		return fmt.Errorf("invalid transition: %s -> %s", rec.State, state)
	}

	rec.History = append(rec.History, domain.Transition{From: rec.State, To: state, At: t.now()})
	rec.State = state
	return nil
}

// Current returns a snapshot of one job.
func (t *Tracker) Current(jobID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.jobs[jobID]
	if !ok {
		return Record{}, false
	}
	return snapshot(rec), true
}

// Active returns the number of jobs not yet in a terminal state.
func (t *Tracker) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, rec := range t.jobs {
		if !rec.State.IsTerminal() {
			n++
		}
	}
	return n
}

func snapshot(rec *Record) Record {
	out := *rec
	out.History = append([]domain.Transition(nil), rec.History...)
	return out
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobState) bool {
	switch from {
	case domain.JobStateCreated:
		return to == domain.JobStatePreprocessing || to == domain.JobStateRecognizingPDF ||
			to == domain.JobStateCleanup || to == domain.JobStateCancelled
	case domain.JobStatePreprocessing:
		return to == domain.JobStateRecognizingPDF || to == domain.JobStateCleanup
	case domain.JobStateRecognizingPDF:
		return to == domain.JobStateRecognizingText || to == domain.JobStateCleanup
	case domain.JobStateRecognizingText:
		return to == domain.JobStateRecognizingLayout || to == domain.JobStateCleanup
	case domain.JobStateRecognizingLayout:
		return to == domain.JobStateCleanup
	case domain.JobStateCleanup:
		return to == domain.JobStateSucceeded || to == domain.JobStateFailed || to == domain.JobStateCancelled
	default:
		return false
	}
}
