// Package timekeeper implements the Timekeeper agent (spec §4.4): a pure,
// deterministic observer of elapsed time and pace pressure. It is stateful
// (it remembers when the interview started and how many topics are behind
// it) but every output is a total function of that state plus the event
// that triggered it, which is what keeps Pressure and Recommendation
// independently testable.
package timekeeper

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bookinterview/coordinator/internal/bus"
)

// Total interview budget and topic count, per spec §4.4/§6 defaults.
const (
	DefaultTotalSeconds = 300
	DefaultTopicsTotal  = 5
)

// Pressure is Timekeeper's categorical urgency level.
type Pressure string

const (
	PressureLow      Pressure = "low"
	PressureMedium   Pressure = "medium"
	PressureHigh     Pressure = "high"
	PressureCritical Pressure = "critical"
)

// Recommendation is the pacing advice that follows from Pressure.
type Recommendation string

const (
	RecommendationWrapUp    Recommendation = "wrap_up"
	RecommendationAccelerate Recommendation = "accelerate"
	RecommendationOnPace    Recommendation = "on_pace"
)

// Observation is the payload Timekeeper publishes on interview:agent_observation.
type Observation struct {
	Elapsed        time.Duration
	Remaining      time.Duration
	TopicsLeft     int
	Pace           time.Duration
	Pressure       Pressure
	Recommendation Recommendation
}

// AgentName identifies this agent's observations on the bus.
const AgentName = "timekeeper"

// Timekeeper tracks elapsed time and topic progress and publishes pacing
// observations on every tick and every student response.
type Timekeeper struct {
	b             *bus.Bus
	totalSeconds  int
	topicsTotal   int

	mu              sync.Mutex
	startedAt       *time.Time
	topicsCompleted int
}

// New creates a Timekeeper. It does not subscribe until Subscribe is called,
// so it can be constructed, restarted, and resubscribed with empty state by
// the Supervisor (spec §4.9).
func New(b *bus.Bus, totalSeconds, topicsTotal int) *Timekeeper {
	return &Timekeeper{b: b, totalSeconds: totalSeconds, topicsTotal: topicsTotal}
}

// Subscribe registers the Timekeeper's handlers on the bus. Returns the
// subscriptions so the caller can Unsubscribe them all on restart/shutdown.
func (tk *Timekeeper) Subscribe() []*bus.Subscription {
	return []*bus.Subscription{
		tk.b.Subscribe(bus.TopicEvents, tk.handleEvent),
		tk.b.Subscribe(bus.TopicTick, tk.handleTick),
		tk.b.Subscribe(bus.TopicTopicCompleted, tk.handleTopicCompleted),
		tk.b.Subscribe(bus.TopicStudentResponse, tk.handleStudentResponse),
	}
}

func (tk *Timekeeper) handleEvent(msg bus.Message) {
	payload, ok := msg.Payload.(bus.EventPayload)
	if !ok {
		return
	}
	switch payload.Kind {
	case bus.EventInterviewStarted:
		tk.mu.Lock()
		now := time.Now()
		tk.startedAt = &now
		tk.topicsCompleted = 0
		tk.mu.Unlock()
	case bus.EventInterviewReset:
		tk.mu.Lock()
		tk.startedAt = nil
		tk.topicsCompleted = 0
		tk.mu.Unlock()
	}
}

func (tk *Timekeeper) handleTopicCompleted(msg bus.Message) {
	tk.mu.Lock()
	tk.topicsCompleted++
	tk.mu.Unlock()
}

func (tk *Timekeeper) handleTick(msg bus.Message) {
	payload, ok := msg.Payload.(bus.TickPayload)
	if !ok {
		return
	}
	tk.observe(payload.Timestamp)
}

// handleStudentResponse recomputes and re-publishes on every student
// response in addition to every tick. This is a hard requirement (spec
// §4.4): it guarantees the Coordinator sees fresh time data inside its
// collection window even when the last tick is stale relative to the
// response.
func (tk *Timekeeper) handleStudentResponse(msg bus.Message) {
	payload, ok := msg.Payload.(bus.StudentResponsePayload)
	if !ok {
		return
	}
	tk.observe(payload.Timestamp)
}

func (tk *Timekeeper) observe(now time.Time) {
	tk.mu.Lock()
	startedAt := tk.startedAt
	topicsCompleted := tk.topicsCompleted
	tk.mu.Unlock()

	if startedAt == nil {
		return
	}

	obs := Compute(now.Sub(*startedAt), tk.totalSeconds, tk.topicsTotal, topicsCompleted)

	slog.Debug("timekeeper observation",
		"elapsed", obs.Elapsed, "remaining", obs.Remaining,
		"pressure", obs.Pressure, "recommendation", obs.Recommendation)

	tk.b.Publish(bus.TopicAgentObservation, bus.AgentObservationPayload{
		Agent:       AgentName,
		Timestamp:   now,
		Observation: obs,
	})
}

// Compute is the pure, total pressure/pace calculation from spec §4.4. It is
// exported so its thresholds can be exercised directly without standing up
// a Timekeeper or a bus.
func Compute(elapsed time.Duration, totalSeconds, topicsTotal, topicsCompleted int) Observation {
	if elapsed < 0 {
		elapsed = 0
	}

	total := time.Duration(totalSeconds) * time.Second
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}

	topicsLeft := topicsTotal - topicsCompleted
	if topicsLeft < 0 {
		topicsLeft = 0
	}

	var pace time.Duration
	if topicsLeft > 0 {
		pace = remaining / time.Duration(topicsLeft)
	}

	pressure := classify(remaining, topicsLeft, pace)

	return Observation{
		Elapsed:        elapsed,
		Remaining:      remaining,
		TopicsLeft:     topicsLeft,
		Pace:           pace,
		Pressure:       pressure,
		Recommendation: recommendationFor(pressure),
	}
}

func classify(remaining time.Duration, topicsLeft int, pace time.Duration) Pressure {
	switch {
	case topicsLeft == 0:
		return PressureLow
	case remaining <= 30*time.Second:
		return PressureCritical
	case remaining <= 90*time.Second:
		return PressureHigh
	case pace < 55*time.Second:
		return PressureHigh
	case pace < 65*time.Second:
		return PressureMedium
	default:
		return PressureLow
	}
}

func recommendationFor(p Pressure) Recommendation {
	switch p {
	case PressureCritical:
		return RecommendationWrapUp
	case PressureHigh:
		return RecommendationAccelerate
	default:
		return RecommendationOnPace
	}
}
