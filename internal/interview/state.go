// Package interview implements InterviewState, the single authoritative,
// single-writer session state described in spec §3/§4.2. Every mutation
// serializes through State; everyone else reads via Snapshot or the bus
// events State publishes.
package interview

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bookinterview/coordinator/internal/bus"
	"github.com/bookinterview/coordinator/internal/content"
)

// Status is the session's lifecycle state.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// History roles.
const (
	RoleInterviewer = "interviewer"
	RoleStudent     = "student"
	RoleSystem      = "system"
)

var (
	// ErrAlreadyStarted is returned by Start when the session is already
	// running.
	ErrAlreadyStarted = errors.New("interview: already started")
	// ErrNotInProgress is returned by operations that require an active
	// session (record_response, complete_topic) when the session has not
	// been started or has already finished.
	ErrNotInProgress = errors.New("interview: not in progress")
	// ErrUnknownTopic is returned when an operation names a topic absent
	// from the registry.
	ErrUnknownTopic = errors.New("interview: unknown topic")
)

// HistoryEntry is one turn of the conversation transcript.
type HistoryEntry struct {
	Role      string
	Topic     content.TopicID
	Content   string
	Timestamp time.Time
}

// Snapshot is a read-only copy of the session state at a point in time.
type Snapshot struct {
	StartedAt          *time.Time
	Status              Status
	CurrentTopic        content.TopicID
	ResponsesByTopic     map[content.TopicID][]string
	TopicScores          map[content.TopicID]*int
	ConversationHistory  []HistoryEntry
	TopicsCompleted      int
}

// Ticker is the subset of *ticker.Ticker that State needs. Kept as an
// interface (set after construction, mirroring tarsy's
// ConnectionManager.SetListener) so State and Ticker have no import cycle
// and either can be constructed first.
type Ticker interface {
	Start()
	Stop()
}

// State is the single-writer authoritative interview session.
type State struct {
	bus      *bus.Bus
	registry *content.Registry

	mu sync.Mutex

	tickerMu sync.RWMutex
	ticker   Ticker

	epoch int

	startedAt       *time.Time
	status          Status
	currentTopic    content.TopicID
	responses       map[content.TopicID][]string
	scores          map[content.TopicID]*int
	history         []HistoryEntry
	topicsCompleted int
}

// New creates a State for the given topic registry. The bus must already be
// constructed; the Ticker may be attached later via SetTicker.
func New(b *bus.Bus, registry *content.Registry) *State {
	s := &State{bus: b, registry: registry, status: StatusNotStarted}
	s.resetLocked()
	return s
}

// SetTicker attaches the Ticker that Start/Finish/Reset control. Matches
// tarsy's post-construction setter pattern (pkg/events.ConnectionManager.SetListener)
// for components whose startup order forbids constructor injection.
func (s *State) SetTicker(t Ticker) {
	s.tickerMu.Lock()
	defer s.tickerMu.Unlock()
	s.ticker = t
}

func (s *State) tickerOrNil() Ticker {
	s.tickerMu.RLock()
	defer s.tickerMu.RUnlock()
	return s.ticker
}

// Start begins a fresh interview: sets started_at, status=in_progress,
// current_topic=first, clears history/responses, starts the Ticker, and
// publishes {:interview_started, snapshot} on interview:events.
func (s *State) Start() error {
	s.mu.Lock()
	if s.status == StatusInProgress {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	s.resetLocked()
	now := time.Now()
	s.startedAt = &now
	s.status = StatusInProgress
	s.currentTopic = s.registry.First().ID
	s.epoch++
	epoch := s.epoch
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if t := s.tickerOrNil(); t != nil {
		t.Start()
	}

	s.bus.Publish(bus.TopicEvents, bus.EventPayload{
		Kind:     bus.EventInterviewStarted,
		Snapshot: snap,
		Epoch:    epoch,
	})
	return nil
}

// RecordResponse appends a student response to responses_by_topic and the
// conversation history, then publishes {:student_response, ...}.
func (s *State) RecordResponse(topic content.TopicID, text string) error {
	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	if _, ok := s.registry.Get(topic); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	now := time.Now()
	s.responses[topic] = append(s.responses[topic], text)
	s.history = append(s.history, HistoryEntry{Role: RoleStudent, Topic: topic, Content: text, Timestamp: now})
	epoch := s.epoch
	s.mu.Unlock()

	s.bus.Publish(bus.TopicStudentResponse, bus.StudentResponsePayload{
		Topic:     topic,
		Text:      text,
		Timestamp: now,
		Epoch:     epoch,
	})
	return nil
}

// AddToHistory records a system or interviewer utterance without triggering
// a student_response event.
func (s *State) AddToHistory(role string, topic content.TopicID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, HistoryEntry{Role: role, Topic: topic, Content: text, Timestamp: time.Now()})
}

// RecordDepthScore stores the most recent depth-expert rating for topic.
// InterviewState tracks this independently of the Grader agent so a
// snapshot always reflects the latest rating even if nobody is listening
// to Grader's own observations.
func (s *State) RecordDepthScore(topic content.TopicID, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rating
	s.scores[topic] = &r
}

// CompleteTopic advances topics_completed and current_topic, then publishes
// {:topic_completed, topic}. When topic is the last one (or not in the
// registry), topics_completed still advances, capped at the number of
// topics, and current_topic stays unchanged. Returns ErrNotInProgress when
// no interview is active.
func (s *State) CompleteTopic(topic content.TopicID) error {
	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}

	next, hasNext := s.registry.Next(topic)
	if s.topicsCompleted < s.registry.Len() {
		s.topicsCompleted++
	}
	if hasNext {
		s.currentTopic = next.ID
	}
	s.mu.Unlock()

	s.bus.Publish(bus.TopicTopicCompleted, bus.TopicCompletedPayload{Topic: topic})
	return nil
}

// Finish marks the session completed and stops the Ticker. No further
// directives or questions should be emitted once this returns (callers are
// expected to have already stopped routing student responses).
func (s *State) Finish() {
	s.mu.Lock()
	s.status = StatusCompleted
	s.mu.Unlock()

	if t := s.tickerOrNil(); t != nil {
		t.Stop()
	}

	s.bus.Publish(bus.TopicEvents, bus.EventPayload{Kind: bus.EventInterviewFinished})
}

// Reset returns the session to not_started and stops the Ticker.
func (s *State) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	if t := s.tickerOrNil(); t != nil {
		t.Stop()
	}

	s.bus.Publish(bus.TopicEvents, bus.EventPayload{Kind: bus.EventInterviewReset, Epoch: epoch})
}

func (s *State) resetLocked() {
	s.startedAt = nil
	s.status = StatusNotStarted
	s.currentTopic = s.registry.First().ID
	s.responses = make(map[content.TopicID][]string)
	s.scores = make(map[content.TopicID]*int)
	s.history = nil
	s.topicsCompleted = 0
}

// Snapshot returns a read-only copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	responses := make(map[content.TopicID][]string, len(s.responses))
	for k, v := range s.responses {
		responses[k] = append([]string(nil), v...)
	}
	scores := make(map[content.TopicID]*int, len(s.scores))
	for k, v := range s.scores {
		if v == nil {
			scores[k] = nil
			continue
		}
		val := *v
		scores[k] = &val
	}

	var startedAt *time.Time
	if s.startedAt != nil {
		t := *s.startedAt
		startedAt = &t
	}

	return Snapshot{
		StartedAt:           startedAt,
		Status:              s.status,
		CurrentTopic:        s.currentTopic,
		ResponsesByTopic:    responses,
		TopicScores:         scores,
		ConversationHistory: append([]HistoryEntry(nil), s.history...),
		TopicsCompleted:     s.topicsCompleted,
	}
}

// Epoch returns the current reset epoch. Agents compare this against the
// epoch in effect when they began an async LLM call to decide whether their
// result is still relevant (spec §5 "Cancellation").
func (s *State) Epoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}
