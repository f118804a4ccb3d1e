// Package grader implements the Grader agent (spec §4.5): a pure observer
// that aggregates DepthExpert ratings per topic into a running letter grade.
package grader

import (
	"log/slog"
	"sync"

	"github.com/bookinterview/coordinator/internal/bus"
	"github.com/bookinterview/coordinator/internal/content"
)

// AgentName identifies this agent's observations on the bus.
const AgentName = "grader"

// depthExpertAgent is the Agent value DepthExpert publishes under. Grader
// filters agent_observation messages against this to ignore other agents'
// observations (spec §4.5: "filters for agent == depth_expert").
const depthExpertAgent = "depth_expert"

// DepthRating is the subset of depthexpert.Observation Grader needs. Any
// observation whose payload satisfies this is treated as a rating, which
// keeps Grader decoupled from the depthexpert package's concrete type.
type DepthRating interface {
	DepthRating() (topic content.TopicID, rating int)
}

// Observation is the payload Grader publishes on interview:agent_observation.
type Observation struct {
	RunningGrade    string
	NumericAverage  float64
	TopicsScored    int
	CoverageGaps    []content.TopicID
}

// Grader maintains the running per-topic score set and letter grade.
type Grader struct {
	b        *bus.Bus
	registry *content.Registry

	mu     sync.Mutex
	scores map[content.TopicID]*int
}

// New creates a Grader over registry's topic set.
func New(b *bus.Bus, registry *content.Registry) *Grader {
	g := &Grader{b: b, registry: registry}
	g.resetLocked()
	return g
}

func (g *Grader) resetLocked() {
	g.scores = make(map[content.TopicID]*int, g.registry.Len())
	for _, t := range g.registry.All() {
		g.scores[t.ID] = nil
	}
}

// Subscribe registers the Grader's handlers on the bus.
func (g *Grader) Subscribe() []*bus.Subscription {
	return []*bus.Subscription{
		g.b.Subscribe(bus.TopicAgentObservation, g.handleObservation),
		g.b.Subscribe(bus.TopicTopicCompleted, g.handleTopicCompleted),
		g.b.Subscribe(bus.TopicEvents, g.handleEvent),
	}
}

func (g *Grader) handleEvent(msg bus.Message) {
	payload, ok := msg.Payload.(bus.EventPayload)
	if !ok {
		return
	}
	switch payload.Kind {
	case bus.EventInterviewStarted, bus.EventInterviewReset:
		g.mu.Lock()
		g.resetLocked()
		g.mu.Unlock()
	}
}

func (g *Grader) handleObservation(msg bus.Message) {
	payload, ok := msg.Payload.(bus.AgentObservationPayload)
	if !ok || payload.Agent != depthExpertAgent {
		return
	}

	rater, ok := payload.Observation.(DepthRating)
	if !ok {
		return
	}
	topic, rating := rater.DepthRating()

	g.mu.Lock()
	r := rating
	g.scores[topic] = &r
	g.mu.Unlock()

	g.publish()
}

func (g *Grader) handleTopicCompleted(msg bus.Message) {
	// Re-publish the current grade on topic advance; no score update.
	g.publish()
}

func (g *Grader) publish() {
	obs := g.currentObservation()
	slog.Debug("grader observation", "grade", obs.RunningGrade, "topics_scored", obs.TopicsScored)
	g.b.Publish(bus.TopicAgentObservation, bus.AgentObservationPayload{
		Agent:       AgentName,
		Observation: obs,
	})
}

func (g *Grader) currentObservation() Observation {
	g.mu.Lock()
	defer g.mu.Unlock()

	avg, scored := ComputeAverage(g.scores)
	gaps := make([]content.TopicID, 0)
	for _, t := range g.registry.All() {
		if g.scores[t.ID] == nil {
			gaps = append(gaps, t.ID)
		}
	}

	return Observation{
		RunningGrade:   LetterGrade(avg, scored),
		NumericAverage: avg,
		TopicsScored:   scored,
		CoverageGaps:   gaps,
	}
}

// ComputeAverage returns the mean of all non-nil scores and how many topics
// have been scored. Exported for direct testing of the pure boundary.
func ComputeAverage(scores map[content.TopicID]*int) (avg float64, scored int) {
	sum := 0
	for _, s := range scores {
		if s != nil {
			sum += *s
			scored++
		}
	}
	if scored == 0 {
		return 0, 0
	}
	return float64(sum) / float64(scored), scored
}

// LetterGrade maps a numeric average to a letter grade, closed on the lower
// bound of each band (spec §4.5/§8). "N/A" when nothing has been scored.
func LetterGrade(avg float64, scored int) string {
	if scored == 0 {
		return "N/A"
	}
	switch {
	case avg >= 2.7:
		return "A"
	case avg >= 2.3:
		return "B+"
	case avg >= 2.0:
		return "B"
	case avg >= 1.7:
		return "C+"
	case avg >= 1.3:
		return "C"
	case avg >= 1.0:
		return "D"
	default:
		return "F"
	}
}
