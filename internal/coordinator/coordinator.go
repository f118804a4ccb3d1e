// Package coordinator implements the Coordinator (spec §4.8): the synthesis
// engine that turns a student response plus the observations it provoked
// into exactly one directive, LLM-first with a deterministic rule-based
// fallback that always produces a decision.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bookinterview/coordinator/internal/agents/depthexpert"
	"github.com/bookinterview/coordinator/internal/agents/timekeeper"
	"github.com/bookinterview/coordinator/internal/bus"
	"github.com/bookinterview/coordinator/internal/content"
	"github.com/bookinterview/coordinator/internal/llmtransport"
	"github.com/bookinterview/coordinator/internal/metrics"
)

// AgentName identifies the Coordinator in metrics labels.
const AgentName = "coordinator"

// DefaultWindow is the collection window length W from spec §4.8.
const DefaultWindow = 800 * time.Millisecond

// TopicCompleter is the subset of *interview.State the Coordinator needs to
// advance the topic on a transition directive before publishing it.
type TopicCompleter interface {
	CompleteTopic(topic content.TopicID) error
}

// Coordinator collects the observations one student response provokes over
// a short window, then synthesizes a single directive from them.
type Coordinator struct {
	b         *bus.Bus
	registry  *content.Registry
	completer TopicCompleter
	provider  llmtransport.Provider
	window    time.Duration
	temperature float32
	maxTokens   int32
	metrics     *metrics.Registry

	mu             sync.Mutex
	collecting     bool
	generation     int
	windowResponse bus.StudentResponsePayload
	observations   map[string]any
	timer          *time.Timer
	windowOpenedAt time.Time
}

// SetMetrics wires a metrics registry in after construction, mirroring
// interview.State.SetTicker: metrics are an optional concern, and nil is a
// valid "no instrumentation" value.
func (c *Coordinator) SetMetrics(m *metrics.Registry) {
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
}

// New creates a Coordinator. provider may be nil, meaning every decision
// uses the rule-based fallback.
func New(b *bus.Bus, registry *content.Registry, completer TopicCompleter, provider llmtransport.Provider, window time.Duration, temperature float32, maxTokens int32) *Coordinator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coordinator{
		b:           b,
		registry:    registry,
		completer:   completer,
		provider:    provider,
		window:      window,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Subscribe registers the Coordinator's handlers on the bus.
func (c *Coordinator) Subscribe() []*bus.Subscription {
	return []*bus.Subscription{
		c.b.Subscribe(bus.TopicStudentResponse, c.handleStudentResponse),
		c.b.Subscribe(bus.TopicAgentObservation, c.handleObservation),
		c.b.Subscribe(bus.TopicEvents, c.handleEvent),
	}
}

func (c *Coordinator) handleEvent(msg bus.Message) {
	payload, ok := msg.Payload.(bus.EventPayload)
	if !ok {
		return
	}
	if payload.Kind != bus.EventInterviewReset && payload.Kind != bus.EventInterviewFinished {
		return
	}
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.collecting = false
	c.generation++
	c.mu.Unlock()
}

// handleStudentResponse opens (or replaces) the collection window: spec
// §4.8 step 1, "a rapid second response cancels the earlier decision".
func (c *Coordinator) handleStudentResponse(msg bus.Message) {
	payload, ok := msg.Payload.(bus.StudentResponsePayload)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.collecting = true
	c.windowResponse = payload
	c.observations = make(map[string]any)
	c.generation++
	gen := c.generation
	c.windowOpenedAt = time.Now()
	c.timer = time.AfterFunc(c.window, func() { c.closeWindow(gen) })
	c.mu.Unlock()
}

func (c *Coordinator) handleObservation(msg bus.Message) {
	payload, ok := msg.Payload.(bus.AgentObservationPayload)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.collecting {
		return
	}
	c.observations[payload.Agent] = payload.Observation
}

func (c *Coordinator) closeWindow(gen int) {
	c.mu.Lock()
	if !c.collecting || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.collecting = false
	response := c.windowResponse
	observations := c.observations
	m := c.metrics
	opened := c.windowOpenedAt
	c.mu.Unlock()

	if m != nil && !opened.IsZero() {
		m.RecordCollectionWindow(time.Since(opened))
	}

	directive := c.decide(response, observations)

	if directive.Directive == bus.DirectiveTransition {
		if err := c.completer.CompleteTopic(response.Topic); err != nil {
			slog.Warn("coordinator: failed to complete topic on transition", "topic", response.Topic, "error", err)
		}
	}

	slog.Debug("coordinator directive",
		"directive", directive.Directive, "topic", directive.Topic, "source", directive.Source)

	if m != nil {
		m.RecordDirective(string(directive.Directive), string(directive.Source))
	}

	c.b.Publish(bus.TopicCoordinatorDirective, directive)
}

// decide tries LLM synthesis first (when a provider is configured), falling
// back to the deterministic rule-based procedure on any failure (spec
// §4.8: "Parse leniently; on any failure, use the fallback").
func (c *Coordinator) decide(response bus.StudentResponsePayload, observations map[string]any) bus.CoordinatorDirectivePayload {
	agents := observedAgents(observations)

	if c.provider != nil {
		if directive, ok := c.synthesize(response, observations, agents); ok {
			return directive
		}
	}

	return c.fallback(response, observations, agents, bus.SourceFallback)
}

func observedAgents(observations map[string]any) []string {
	agents := make([]string, 0, len(observations))
	for agent := range observations {
		agents = append(agents, agent)
	}
	return agents
}

var decisionPattern = regexp.MustCompile(`(?i)DECISION:\s*([A-Z_]+)`)
var reasoningPattern = regexp.MustCompile(`(?is)REASONING:\s*(.+)`)

func (c *Coordinator) synthesize(response bus.StudentResponsePayload, observations map[string]any, agents []string) (bus.CoordinatorDirectivePayload, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := c.provider.Complete(ctx, llmtransport.Request{
		Model:       llmtransport.DefaultModel,
		System:      synthesisSystemPrompt(),
		User:        synthesisUserPrompt(response, observations),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if c.metrics != nil {
		c.metrics.RecordLLMCall(AgentName, time.Since(start))
	}
	if err != nil {
		slog.Warn("coordinator: LLM synthesis failed, using fallback", "error", err)
		if c.metrics != nil {
			c.metrics.RecordLLMFailure(AgentName, "provider_error")
		}
		return bus.CoordinatorDirectivePayload{}, false
	}

	decisionMatch := decisionPattern.FindStringSubmatch(resp.Content)
	if decisionMatch == nil {
		slog.Warn("coordinator: LLM synthesis produced no DECISION label, using fallback")
		if c.metrics != nil {
			c.metrics.RecordLLMFailure(AgentName, "no_decision_label")
		}
		return bus.CoordinatorDirectivePayload{}, false
	}

	label := strings.ToUpper(strings.TrimSpace(decisionMatch[1]))
	directiveKind, ok := parseLabel(label)
	if !ok {
		slog.Warn("coordinator: LLM synthesis produced unknown label, using fallback", "label", label)
		if c.metrics != nil {
			c.metrics.RecordLLMFailure(AgentName, "unknown_label")
		}
		return bus.CoordinatorDirectivePayload{}, false
	}

	reasoning := ""
	if m := reasoningPattern.FindStringSubmatch(resp.Content); m != nil {
		reasoning = strings.TrimSpace(m[1])
	}

	directive := bus.CoordinatorDirectivePayload{
		Directive:            directiveKind,
		Topic:                response.Topic,
		Reasoning:            reasoning,
		Source:               bus.SourceLLM,
		ObservationsReceived: agents,
	}
	if directiveKind == bus.DirectiveTransition {
		if next, hasNext := c.registry.Next(response.Topic); hasNext {
			id := next.ID
			directive.NextTopic = &id
		} else {
			directive.Directive = bus.DirectiveEndInterview
		}
	}
	return directive, true
}

func parseLabel(label string) (bus.DirectiveKind, bool) {
	switch label {
	case "PROBE":
		return bus.DirectiveProbe, true
	case "TRANSITION":
		return bus.DirectiveTransition, true
	case "FINAL_QUESTION":
		return bus.DirectiveFinalQuestion, true
	case "END_INTERVIEW":
		return bus.DirectiveEndInterview, true
	default:
		return "", false
	}
}

func synthesisSystemPrompt() string {
	return "You are the coordinator of a book-report interview. Given the current topic, the " +
		"student's response, and observations from the Timekeeper and DepthExpert agents, decide " +
		"the next move. Respond with exactly two lines:\nDECISION: PROBE|TRANSITION|FINAL_QUESTION|END_INTERVIEW\n" +
		"REASONING: <one sentence>"
}

func synthesisUserPrompt(response bus.StudentResponsePayload, observations map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current topic: %s\nStudent response: %s\nObservations:\n", response.Topic, response.Text)
	for agent, obs := range observations {
		fmt.Fprintf(&sb, "- %s: %+v\n", agent, obs)
	}
	return sb.String()
}

// fallback is the deterministic rule-based procedure (spec §4.8), always
// able to produce a decision even with zero observations.
func (c *Coordinator) fallback(response bus.StudentResponsePayload, observations map[string]any, agents []string, source bus.DirectiveSource) bus.CoordinatorDirectivePayload {
	tk, hasTimekeeper := findObservation[timekeeper.Observation](observations, "timekeeper")
	de, hasDepth := findDepthRecommendation(observations)

	topic := response.Topic
	reasoning := ""
	var directiveKind bus.DirectiveKind
	var nextTopic *content.TopicID

	switch {
	case hasTimekeeper && (tk.Pressure == timekeeper.PressureCritical || tk.Remaining <= 30*time.Second):
		directiveKind = bus.DirectiveEndInterview
		reasoning = "Time pressure is critical; wrapping up the interview."

	case hasTimekeeper && tk.Pressure == timekeeper.PressureHigh && tk.TopicsLeft > 0 &&
		!(hasDepth && (de == depthexpert.RecommendationAccept || de == depthexpert.RecommendationMoveOn)):
		directiveKind = bus.DirectiveFinalQuestion
		reasoning = "Time pressure is high; asking one final question on the current topic."

	case hasDepth && (de == depthexpert.RecommendationMoveOn || de == depthexpert.RecommendationAccept):
		if next, hasNext := c.registry.Next(topic); hasNext {
			directiveKind = bus.DirectiveTransition
			id := next.ID
			nextTopic = &id
			reasoning = "Depth expert recommends moving on; transitioning to the next topic."
		} else {
			directiveKind = bus.DirectiveEndInterview
			reasoning = "Depth expert recommends moving on, but no topics remain."
		}

	case hasDepth && de == depthexpert.RecommendationProbe && hasTimekeeper && (tk.Pressure == timekeeper.PressureLow || tk.Pressure == timekeeper.PressureMedium):
		directiveKind = bus.DirectiveProbe
		reasoning = "Depth expert recommends probing and there is time to spare."

	default:
		directiveKind = bus.DirectiveProbe
		reasoning = "No conclusive observations yet; probing for more detail."
	}

	return bus.CoordinatorDirectivePayload{
		Directive:            directiveKind,
		Topic:                topic,
		NextTopic:            nextTopic,
		Reasoning:            reasoning,
		Source:               source,
		ObservationsReceived: agents,
	}
}

func findObservation[T any](observations map[string]any, agent string) (T, bool) {
	var zero T
	raw, ok := observations[agent]
	if !ok {
		return zero, false
	}
	typed, ok := raw.(T)
	return typed, ok
}

// findDepthRecommendation extracts the depth_expert recommendation if
// present. Only a concrete depthexpert.Observation is recognised; any other
// payload type counts as no depth observation.
func findDepthRecommendation(observations map[string]any) (depthexpert.Recommendation, bool) {
	raw, ok := observations["depth_expert"]
	if !ok {
		return "", false
	}
	obs, ok := raw.(depthexpert.Observation)
	if !ok {
		return "", false
	}
	return obs.Recommendation, true
}
