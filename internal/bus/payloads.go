package bus

import (
	"time"

	"github.com/bookinterview/coordinator/internal/content"
)

// Lifecycle event kinds published on TopicEvents. Kind discriminates the
// tagged union the same way event_type does on tarsy's event payloads.
type EventKind string

const (
	EventInterviewStarted EventKind = "interview_started"
	EventInterviewReset   EventKind = "interview_reset"
	EventInterviewFinished EventKind = "interview_finished"
)

// EventPayload is published on TopicEvents for session lifecycle transitions.
type EventPayload struct {
	Kind     EventKind
	Snapshot any // an interview.Snapshot value; typed as any to avoid an import cycle
	Epoch    int // bumped on every Start()/Reset(), lets agents ignore stale async work
}

// StudentResponsePayload is published on TopicStudentResponse whenever the
// student submits a response to the current topic.
type StudentResponsePayload struct {
	Topic     content.TopicID
	Text      string
	Timestamp time.Time
	Epoch     int
}

// TickPayload is published on TopicTick every Ticker period.
type TickPayload struct {
	Timestamp time.Time
}

// TopicCompletedPayload is published on TopicTopicCompleted when a topic
// advances.
type TopicCompletedPayload struct {
	Topic content.TopicID
}

// AgentObservationPayload is published on TopicAgentObservation by every
// observer agent. Observation is agent-specific; consumers type-assert it to
// the concrete struct published by that agent (e.g. timekeeper.Observation).
type AgentObservationPayload struct {
	Agent       string
	Timestamp   time.Time
	Observation any
}

// Directive values the Coordinator may emit.
type DirectiveKind string

const (
	DirectiveProbe         DirectiveKind = "probe"
	DirectiveTransition    DirectiveKind = "transition"
	DirectiveFinalQuestion DirectiveKind = "final_question"
	DirectiveEndInterview  DirectiveKind = "end_interview"
)

// DirectiveSource records whether a directive came from the LLM synthesis
// path or the deterministic rule-based fallback.
type DirectiveSource string

const (
	SourceLLM      DirectiveSource = "llm"
	SourceFallback DirectiveSource = "fallback"
)

// CoordinatorDirectivePayload is published on TopicCoordinatorDirective,
// exactly once per student_response, by the Coordinator.
type CoordinatorDirectivePayload struct {
	Directive           DirectiveKind
	Topic               content.TopicID
	NextTopic           *content.TopicID
	Reasoning           string
	Source              DirectiveSource
	ObservationsReceived []string
}

// QuestionAskedPayload is published on TopicQuestionAsked by the Interviewer.
type QuestionAskedPayload struct {
	Question  string
	Topic     content.TopicID
	Timestamp time.Time
}
