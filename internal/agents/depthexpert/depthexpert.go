// Package depthexpert implements the DepthExpert agent (spec §4.6): an
// LLM-backed evaluator of each student response against the question that
// actually provoked it and the topic's depth criteria.
package depthexpert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bookinterview/coordinator/internal/bus"
	"github.com/bookinterview/coordinator/internal/content"
	"github.com/bookinterview/coordinator/internal/llmtransport"
	"github.com/bookinterview/coordinator/internal/metrics"
)

// AgentName identifies this agent's observations on the bus.
const AgentName = "depth_expert"

// Recommendation is DepthExpert's suggested next move for the current topic.
type Recommendation string

const (
	RecommendationProbe  Recommendation = "probe"
	RecommendationAccept Recommendation = "accept"
	RecommendationMoveOn Recommendation = "move_on"
)

// fallbackNote is published whenever evaluation could not complete, per
// spec §4.6 step 6.
const fallbackNote = "Evaluation unavailable"

// Observation is the payload DepthExpert publishes on
// interview:agent_observation.
type Observation struct {
	Topic               content.TopicID
	Rating              int
	Recommendation      Recommendation
	Note                string
	FrustrationDetected bool
}

// DepthRating implements grader.DepthRating so Grader can consume this
// observation without importing this package's concrete type.
func (o Observation) DepthRating() (content.TopicID, int) {
	return o.Topic, o.Rating
}

// llmResponse is the strict JSON shape requested from the LLM.
type llmResponse struct {
	Rating              int    `json:"rating"`
	Recommendation      string `json:"recommendation"`
	Note                string `json:"note"`
	FrustrationDetected bool   `json:"frustration_detected"`
}

// DepthExpert evaluates each student response against the question that
// provoked it.
type DepthExpert struct {
	b        *bus.Bus
	registry *content.Registry
	provider llmtransport.Provider // nil when no API key: always fall back
	temperature float32
	maxTokens   int32
	metrics     *metrics.Registry

	mu               sync.Mutex
	lastQuestion     map[content.TopicID]string
	epoch            int
}

// SetMetrics wires a metrics registry in after construction; nil is a valid
// "no instrumentation" value.
func (d *DepthExpert) SetMetrics(m *metrics.Registry) {
	d.mu.Lock()
	d.metrics = m
	d.mu.Unlock()
}

// New creates a DepthExpert. provider may be nil, meaning the LLM is
// disabled and every evaluation uses the conservative fallback.
func New(b *bus.Bus, registry *content.Registry, provider llmtransport.Provider, temperature float32, maxTokens int32) *DepthExpert {
	return &DepthExpert{
		b:           b,
		registry:    registry,
		provider:    provider,
		temperature: temperature,
		maxTokens:   maxTokens,
		lastQuestion: make(map[content.TopicID]string),
	}
}

// Subscribe registers the DepthExpert's handlers on the bus.
func (d *DepthExpert) Subscribe() []*bus.Subscription {
	return []*bus.Subscription{
		d.b.Subscribe(bus.TopicStudentResponse, d.handleStudentResponse),
		d.b.Subscribe(bus.TopicQuestionAsked, d.handleQuestionAsked),
		d.b.Subscribe(bus.TopicEvents, d.handleEvent),
		d.b.Subscribe(bus.TopicTopicCompleted, d.handleTopicCompleted),
	}
}

func (d *DepthExpert) handleEvent(msg bus.Message) {
	payload, ok := msg.Payload.(bus.EventPayload)
	if !ok {
		return
	}
	switch payload.Kind {
	case bus.EventInterviewStarted, bus.EventInterviewReset:
		d.mu.Lock()
		d.lastQuestion = make(map[content.TopicID]string)
		d.epoch = payload.Epoch
		d.mu.Unlock()
	}
}

func (d *DepthExpert) handleTopicCompleted(msg bus.Message) {
	// No state to clear: lastQuestion is tracked per topic and a completed
	// topic simply stops receiving new questions.
}

func (d *DepthExpert) handleQuestionAsked(msg bus.Message) {
	payload, ok := msg.Payload.(bus.QuestionAskedPayload)
	if !ok {
		return
	}
	d.mu.Lock()
	d.lastQuestion[payload.Topic] = payload.Question
	d.mu.Unlock()
}

// handleStudentResponse spawns a detached goroutine per response so the
// agent's own handler loop never blocks on the LLM call (spec §4.6 step 2,
// §5).
func (d *DepthExpert) handleStudentResponse(msg bus.Message) {
	payload, ok := msg.Payload.(bus.StudentResponsePayload)
	if !ok {
		return
	}

	topic, found := d.registry.Get(payload.Topic)
	if !found {
		return
	}

	d.mu.Lock()
	question := d.lastQuestion[payload.Topic]
	requestEpoch := d.epoch
	d.mu.Unlock()
	if question == "" {
		// Defensive fallback: question_asked ordering relative to
		// student_response is not bus-guaranteed across publishers (spec §9
		// open question).
		question = topic.Starter
	}

	go d.evaluate(topic, question, payload, requestEpoch)
}

func (d *DepthExpert) evaluate(topic content.Topic, question string, response bus.StudentResponsePayload, requestEpoch int) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	obs := d.callLLM(ctx, topic, question, response.Text)

	d.mu.Lock()
	stale := requestEpoch != d.epoch
	d.mu.Unlock()
	if stale {
		// A reset happened while this call was in flight; the result is no
		// longer relevant (spec §5 "Cancellation").
		return
	}

	slog.Debug("depth_expert observation",
		"topic", obs.Topic, "rating", obs.Rating, "recommendation", obs.Recommendation)

	d.b.Publish(bus.TopicAgentObservation, bus.AgentObservationPayload{
		Agent:       AgentName,
		Timestamp:   time.Now(),
		Observation: obs,
	})
}

func (d *DepthExpert) callLLM(ctx context.Context, topic content.Topic, question, responseText string) Observation {
	if d.provider == nil {
		return fallback(topic.ID)
	}

	req := llmtransport.Request{
		Model:       llmtransport.DefaultModel,
		System:      systemPrompt(topic),
		User:        userPrompt(question, responseText),
		Temperature: d.temperature,
		MaxTokens:   d.maxTokens,
	}

	start := time.Now()
	resp, err := d.provider.Complete(ctx, req)
	d.mu.Lock()
	m := d.metrics
	d.mu.Unlock()
	if m != nil {
		m.RecordLLMCall(AgentName, time.Since(start))
	}
	if err != nil {
		slog.Warn("depth_expert: LLM call failed, using fallback", "topic", topic.ID, "error", err)
		if m != nil {
			m.RecordLLMFailure(AgentName, "provider_error")
		}
		return fallback(topic.ID)
	}

	parsed, err := parseResponse(resp.Content)
	if err != nil {
		slog.Warn("depth_expert: malformed LLM output, using fallback", "topic", topic.ID, "error", err)
		if m != nil {
			m.RecordLLMFailure(AgentName, "malformed_output")
		}
		return fallback(topic.ID)
	}

	return toObservation(topic.ID, parsed)
}

func systemPrompt(topic content.Topic) string {
	return fmt.Sprintf(
		"You evaluate a student's spoken book-report answer on the topic %q. "+
			"Depth criteria: %s. Respond with strict JSON only: "+
			`{"rating": 1|2|3, "recommendation": "probe"|"accept"|"move_on", "note": "...", "frustration_detected": true|false}.`,
		topic.Name, topic.DepthCriteria)
}

func userPrompt(question, responseText string) string {
	return fmt.Sprintf("Question asked: %s\nStudent response: %s", question, responseText)
}

func parseResponse(raw string) (llmResponse, error) {
	clean := llmtransport.StripCodeFence(raw)

	var parsed llmResponse
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return llmResponse{}, fmt.Errorf("depth_expert: parsing LLM JSON: %w", err)
	}
	if parsed.Rating < 1 || parsed.Rating > 3 {
		return llmResponse{}, fmt.Errorf("depth_expert: rating %d out of range", parsed.Rating)
	}
	return parsed, nil
}

func toObservation(topicID content.TopicID, parsed llmResponse) Observation {
	rec := Recommendation(parsed.Recommendation)
	switch rec {
	case RecommendationProbe, RecommendationAccept, RecommendationMoveOn:
	default:
		rec = RecommendationAccept
	}

	// Frustration upgrades probe → move_on, and only that transition (spec
	// §4.6 step 5, §8).
	if parsed.FrustrationDetected && rec == RecommendationProbe {
		rec = RecommendationMoveOn
	}

	return Observation{
		Topic:               topicID,
		Rating:              parsed.Rating,
		Recommendation:      rec,
		Note:                parsed.Note,
		FrustrationDetected: parsed.FrustrationDetected,
	}
}

// fallback is the conservative default published on any error: missing
// key, transport failure, or parse failure (spec §4.6 step 6, §7).
func fallback(topicID content.TopicID) Observation {
	return Observation{
		Topic:          topicID,
		Rating:         2,
		Recommendation: RecommendationAccept,
		Note:           fallbackNote,
	}
}
