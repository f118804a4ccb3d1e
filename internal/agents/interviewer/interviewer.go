// Package interviewer implements the Interviewer agent (spec §4.7): the
// only agent that speaks to the student. It turns a Coordinator directive
// into a question, using the LLM where it can and a deterministic template
// everywhere else.
package interviewer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bookinterview/coordinator/internal/bus"
	"github.com/bookinterview/coordinator/internal/content"
	"github.com/bookinterview/coordinator/internal/llmtransport"
	"github.com/bookinterview/coordinator/internal/metrics"
)

// AgentName identifies questions this agent asks, for logging purposes.
const AgentName = "interviewer"

// historyLimit bounds conversation_history to the last 6 exchanges (spec §4.7).
const historyLimit = 6

// Exchange is one question/response pair kept in conversation_history.
type Exchange struct {
	Question string
	Response string
}

// Interviewer generates the question the student sees for each directive.
type Interviewer struct {
	b        *bus.Bus
	registry *content.Registry
	provider llmtransport.Provider
	temperature float32
	maxTokens   int32
	metrics     *metrics.Registry

	mu          sync.Mutex
	history     []Exchange
	pending     string // last question asked, awaiting its response to complete the exchange
	epoch       int
	askedStarter map[content.TopicID]bool
}

// SetMetrics wires a metrics registry in after construction; nil is a valid
// "no instrumentation" value.
func (iv *Interviewer) SetMetrics(m *metrics.Registry) {
	iv.mu.Lock()
	iv.metrics = m
	iv.mu.Unlock()
}

// New creates an Interviewer. provider may be nil, meaning every directive
// falls back to its deterministic template.
func New(b *bus.Bus, registry *content.Registry, provider llmtransport.Provider, temperature float32, maxTokens int32) *Interviewer {
	return &Interviewer{
		b:            b,
		registry:     registry,
		provider:     provider,
		temperature:  temperature,
		maxTokens:    maxTokens,
		askedStarter: make(map[content.TopicID]bool),
	}
}

// Subscribe registers the Interviewer's handlers on the bus.
func (iv *Interviewer) Subscribe() []*bus.Subscription {
	return []*bus.Subscription{
		iv.b.Subscribe(bus.TopicCoordinatorDirective, iv.handleDirective),
		iv.b.Subscribe(bus.TopicEvents, iv.handleEvent),
		iv.b.Subscribe(bus.TopicStudentResponse, iv.handleStudentResponse),
	}
}

func (iv *Interviewer) handleEvent(msg bus.Message) {
	payload, ok := msg.Payload.(bus.EventPayload)
	if !ok {
		return
	}
	switch payload.Kind {
	case bus.EventInterviewReset:
		iv.mu.Lock()
		iv.history = nil
		iv.pending = ""
		iv.epoch = payload.Epoch
		iv.askedStarter = make(map[content.TopicID]bool)
		iv.mu.Unlock()
	case bus.EventInterviewStarted:
		iv.mu.Lock()
		iv.epoch = payload.Epoch
		iv.askedStarter = make(map[content.TopicID]bool)
		iv.mu.Unlock()
		iv.AskStarter(iv.registry.First().ID)
	}
}

// handleStudentResponse closes out the pending exchange so the next question
// generation sees the full question/response pair.
func (iv *Interviewer) handleStudentResponse(msg bus.Message) {
	payload, ok := msg.Payload.(bus.StudentResponsePayload)
	if !ok {
		return
	}

	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.pending == "" {
		return
	}
	iv.history = appendBounded(iv.history, Exchange{Question: iv.pending, Response: payload.Text})
	iv.pending = ""
}

// AskStarter publishes topic's predefined starter verbatim. The Interviewer
// calls it itself for the first topic on interview_started; it is exported
// so other callers (Supervisor.AskStarter, or tests) can invoke it directly
// without going through a directive (spec §4.7: "also accepts a
// direct ask_starter(topic) call used once per topic").
func (iv *Interviewer) AskStarter(topicID content.TopicID) {
	topic, ok := iv.registry.Get(topicID)
	if !ok {
		return
	}

	iv.mu.Lock()
	if iv.askedStarter[topicID] {
		iv.mu.Unlock()
		return
	}
	iv.askedStarter[topicID] = true
	iv.pending = topic.Starter
	iv.mu.Unlock()

	iv.publish(topic.Starter, topicID)
}

func (iv *Interviewer) handleDirective(msg bus.Message) {
	payload, ok := msg.Payload.(bus.CoordinatorDirectivePayload)
	if !ok {
		return
	}

	switch payload.Directive {
	case bus.DirectiveProbe:
		go iv.probe(payload)
	case bus.DirectiveTransition:
		go iv.transition(payload)
	case bus.DirectiveFinalQuestion:
		iv.finalQuestion(payload)
	case bus.DirectiveEndInterview:
		iv.endInterview(payload)
	}
}

func (iv *Interviewer) probe(directive bus.CoordinatorDirectivePayload) {
	topic, ok := iv.registry.Get(directive.Topic)
	if !ok {
		return
	}

	question := iv.generate(topic, probeFallback, func(ctx context.Context, history []Exchange) (string, error) {
		return iv.callLLM(ctx, probeSystemPrompt(topic), probeUserPrompt(topic, history))
	})
	iv.ask(question, directive.Topic)
}

func (iv *Interviewer) transition(directive bus.CoordinatorDirectivePayload) {
	if directive.NextTopic == nil {
		return
	}
	next, ok := iv.registry.Get(*directive.NextTopic)
	if !ok {
		return
	}

	fallback := fmt.Sprintf("Great thoughts! Now, %s", next.Starter)
	question := iv.generate(next, fallback, func(ctx context.Context, history []Exchange) (string, error) {
		return iv.callLLM(ctx, transitionSystemPrompt(directive.Topic, next), transitionUserPrompt(history, next))
	})
	iv.ask(question, next.ID)
}

func (iv *Interviewer) finalQuestion(directive bus.CoordinatorDirectivePayload) {
	topic, ok := iv.registry.Get(directive.Topic)
	if !ok {
		return
	}
	question := fmt.Sprintf("We're almost out of time, but I'd love to hear one quick thought: %s", topic.Starter)
	iv.ask(question, directive.Topic)
}

func (iv *Interviewer) endInterview(directive bus.CoordinatorDirectivePayload) {
	const thankYou = "Thank you so much for sharing your thoughts today — this has been a wonderful book report!"
	iv.ask(thankYou, directive.Topic)
}

// generate runs an LLM call with a 15s timeout and falls back deterministically
// on any error, empty reply, or disabled provider. A result that went stale
// (a reset happened during the call) yields "", which ask drops.
func (iv *Interviewer) generate(topic content.Topic, fallback string, call func(context.Context, []Exchange) (string, error)) string {
	if iv.provider == nil {
		return fallback
	}

	iv.mu.Lock()
	history := append([]Exchange(nil), iv.history...)
	requestEpoch := iv.epoch
	iv.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	start := time.Now()
	text, err := call(ctx, history)

	iv.mu.Lock()
	stale := requestEpoch != iv.epoch
	m := iv.metrics
	iv.mu.Unlock()
	if m != nil {
		m.RecordLLMCall(AgentName, time.Since(start))
	}
	if stale {
		return ""
	}

	if err != nil {
		slog.Warn("interviewer: LLM call failed, using fallback", "topic", topic.ID, "error", err)
		if m != nil {
			m.RecordLLMFailure(AgentName, "provider_error")
		}
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

func (iv *Interviewer) callLLM(ctx context.Context, system, user string) (string, error) {
	resp, err := iv.provider.Complete(ctx, llmtransport.Request{
		Model:       llmtransport.DefaultModel,
		System:      system,
		User:        user,
		Temperature: iv.temperature,
		MaxTokens:   iv.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ask records question as pending (awaiting the student's response to
// complete the exchange) and publishes it. A transition/probe call that was
// stale returns an empty question and is silently dropped.
func (iv *Interviewer) ask(question string, topicID content.TopicID) {
	if question == "" {
		return
	}
	iv.mu.Lock()
	iv.pending = question
	iv.mu.Unlock()
	iv.publish(question, topicID)
}

func (iv *Interviewer) publish(question string, topicID content.TopicID) {
	now := time.Now()
	slog.Debug("interviewer question", "topic", topicID, "question", question)
	iv.b.Publish(bus.TopicQuestionAsked, bus.QuestionAskedPayload{
		Question:  question,
		Topic:     topicID,
		Timestamp: now,
	})
}

const probeFallback = "That's interesting! Can you tell me more about what made you think that?"

func probeSystemPrompt(topic content.Topic) string {
	return fmt.Sprintf(
		"You are a warm, encouraging interviewer helping a student discuss a book's %q. "+
			"Ask exactly one natural follow-up question that probes deeper into their last answer. "+
			"Respond with only the question, no preamble.", topic.Name)
}

func probeUserPrompt(topic content.Topic, history []Exchange) string {
	return fmt.Sprintf("Topic: %s\nRecent exchanges:\n%s", topic.Name, formatHistory(history))
}

func transitionSystemPrompt(from content.TopicID, next content.Topic) string {
	return fmt.Sprintf(
		"You are a warm, encouraging interviewer helping a student discuss a book. "+
			"Bridge naturally from the topic %q to the next topic %q, then ask the next topic's "+
			"starter question: %q. Respond with only the transition and question, no preamble.",
		from, next.Name, next.Starter)
}

func transitionUserPrompt(history []Exchange, next content.Topic) string {
	return fmt.Sprintf("Recent exchanges:\n%s\nNext topic starter: %s", formatHistory(history), next.Starter)
}

func formatHistory(history []Exchange) string {
	if len(history) == 0 {
		return "(none yet)"
	}
	var sb strings.Builder
	for _, ex := range history {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", ex.Question, ex.Response)
	}
	return sb.String()
}

func appendBounded(history []Exchange, ex Exchange) []Exchange {
	history = append(history, ex)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	return history
}
