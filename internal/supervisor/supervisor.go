// Package supervisor wires every component together in the deterministic
// start order spec §4.9 requires, and restarts individual agents after a
// crash without tearing down the rest of the interview.
package supervisor

import (
	"log/slog"

	"github.com/bookinterview/coordinator/internal/agents/depthexpert"
	"github.com/bookinterview/coordinator/internal/agents/grader"
	"github.com/bookinterview/coordinator/internal/agents/interviewer"
	"github.com/bookinterview/coordinator/internal/agents/timekeeper"
	"github.com/bookinterview/coordinator/internal/bus"
	"github.com/bookinterview/coordinator/internal/config"
	"github.com/bookinterview/coordinator/internal/content"
	"github.com/bookinterview/coordinator/internal/coordinator"
	"github.com/bookinterview/coordinator/internal/interview"
	"github.com/bookinterview/coordinator/internal/llmtransport"
	"github.com/bookinterview/coordinator/internal/metrics"
	"github.com/bookinterview/coordinator/internal/ticker"
)

// Supervisor owns every live component of one interview process and the
// subscriptions each agent currently holds, so any of them can be
// individually restarted.
type Supervisor struct {
	Bus      *bus.Bus
	Registry *content.Registry
	State    *interview.State

	ticker      *ticker.Ticker
	timekeeper  *timekeeper.Timekeeper
	grader      *grader.Grader
	depthExpert *depthexpert.DepthExpert
	interviewer *interviewer.Interviewer
	coordinator *coordinator.Coordinator

	provider llmtransport.Provider
	metrics  *metrics.Registry

	subs struct {
		timekeeper  []*bus.Subscription
		grader      []*bus.Subscription
		depthExpert []*bus.Subscription
		interviewer []*bus.Subscription
		coordinator []*bus.Subscription
	}
}

// New builds every component in the order spec §4.9 names: Bus, Content
// registry, InterviewState, Ticker, pure agents, LLM agents, Coordinator.
// provider may be nil (no API key configured), in which case every LLM
// agent runs its deterministic fallback exclusively.
func New(cfg *config.Config, provider llmtransport.Provider) (*Supervisor, error) {
	b := bus.New()

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	state := interview.New(b, registry)

	t := ticker.New(b, cfg.TickerPeriod())
	state.SetTicker(t)

	sup := &Supervisor{
		Bus:      b,
		Registry: registry,
		State:    state,
		ticker:   t,
		provider: provider,
	}

	sup.timekeeper = timekeeper.New(b, cfg.TotalSeconds, registry.Len())
	sup.grader = grader.New(b, registry)
	sup.depthExpert = depthexpert.New(b, registry, provider, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	sup.interviewer = interviewer.New(b, registry, provider, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	sup.coordinator = coordinator.New(b, registry, state, provider, cfg.CollectionWindow(), cfg.LLM.Temperature, cfg.LLM.MaxTokens)

	sup.subs.timekeeper = sup.timekeeper.Subscribe()
	sup.subs.grader = sup.grader.Subscribe()
	sup.subs.depthExpert = sup.depthExpert.Subscribe()
	sup.subs.interviewer = sup.interviewer.Subscribe()
	sup.subs.coordinator = sup.coordinator.Subscribe()

	sup.wireDepthScores()
	sup.wireMetricsEvents()
	sup.wireEndInterview()

	return sup, nil
}

// SetMetrics wires a metrics registry into the Supervisor and every
// component that reports to it, mirroring interview.State.SetTicker's
// post-construction injection. Call once, after New, before serving traffic.
func (s *Supervisor) SetMetrics(m *metrics.Registry) {
	s.metrics = m
	s.depthExpert.SetMetrics(m)
	s.interviewer.SetMetrics(m)
	s.coordinator.SetMetrics(m)
}

// wireMetricsEvents keeps ActiveSessions and TopicsCompletedTotal current
// from interview lifecycle events, independent of whichever agent happens to
// be subscribed at the time.
func (s *Supervisor) wireMetricsEvents() {
	s.Bus.Subscribe(bus.TopicEvents, func(msg bus.Message) {
		if s.metrics == nil {
			return
		}
		payload, ok := msg.Payload.(bus.EventPayload)
		if !ok {
			return
		}
		switch payload.Kind {
		case bus.EventInterviewStarted:
			s.metrics.ActiveSessions.Set(1)
		case bus.EventInterviewReset, bus.EventInterviewFinished:
			s.metrics.ActiveSessions.Set(0)
		}
	})
	s.Bus.Subscribe(bus.TopicTopicCompleted, func(msg bus.Message) {
		if s.metrics != nil {
			s.metrics.TopicsCompletedTotal.Inc()
		}
	})
}

// wireDepthScores subscribes a small glue handler that forwards DepthExpert
// ratings into InterviewState.RecordDepthScore. This lives in Supervisor,
// not Grader, because InterviewState (unlike Grader) is a concrete type
// every agent already depends on indirectly through the Coordinator; no
// decoupling interface is needed for a handler Supervisor itself owns.
func (s *Supervisor) wireDepthScores() {
	s.Bus.Subscribe(bus.TopicAgentObservation, func(msg bus.Message) {
		payload, ok := msg.Payload.(bus.AgentObservationPayload)
		if !ok || payload.Agent != depthexpert.AgentName {
			return
		}
		obs, ok := payload.Observation.(depthexpert.Observation)
		if !ok {
			return
		}
		s.State.RecordDepthScore(obs.Topic, obs.Rating)
	})
}

// wireEndInterview subscribes a small glue handler that finishes the session
// when the Coordinator decides to end it. Nothing else that reads
// interview:coordinator_directive (Interviewer, the WebSocket bridge) owns
// State, so without this, status never reaches completed, the Ticker never
// stops, and a later student_response would still produce another directive.
func (s *Supervisor) wireEndInterview() {
	s.Bus.Subscribe(bus.TopicCoordinatorDirective, func(msg bus.Message) {
		payload, ok := msg.Payload.(bus.CoordinatorDirectivePayload)
		if !ok || payload.Directive != bus.DirectiveEndInterview {
			return
		}
		s.State.Finish()
	})
}

// RestartTimekeeper unsubscribes and resubscribes the Timekeeper with fresh
// empty state, per spec §4.9: "on restart it resubscribes and resumes with
// empty in-memory state". Nothing calls it automatically: the bus recovers a
// handler panic and keeps delivering without invoking any Restart method.
func (s *Supervisor) RestartTimekeeper(cfg *config.Config) {
	for _, sub := range s.subs.timekeeper {
		sub.Unsubscribe()
	}
	s.timekeeper = timekeeper.New(s.Bus, cfg.TotalSeconds, s.Registry.Len())
	s.subs.timekeeper = s.timekeeper.Subscribe()
	slog.Warn("supervisor: restarted timekeeper")
}

// RestartGrader unsubscribes and resubscribes the Grader with fresh empty
// state.
func (s *Supervisor) RestartGrader() {
	for _, sub := range s.subs.grader {
		sub.Unsubscribe()
	}
	s.grader = grader.New(s.Bus, s.Registry)
	s.subs.grader = s.grader.Subscribe()
	slog.Warn("supervisor: restarted grader")
}

// RestartDepthExpert unsubscribes and resubscribes the DepthExpert with
// fresh empty state.
func (s *Supervisor) RestartDepthExpert(cfg *config.Config) {
	for _, sub := range s.subs.depthExpert {
		sub.Unsubscribe()
	}
	s.depthExpert = depthexpert.New(s.Bus, s.Registry, s.provider, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	s.depthExpert.SetMetrics(s.metrics)
	s.subs.depthExpert = s.depthExpert.Subscribe()
	slog.Warn("supervisor: restarted depth_expert")
}

// RestartInterviewer unsubscribes and resubscribes the Interviewer with
// fresh empty state.
func (s *Supervisor) RestartInterviewer(cfg *config.Config) {
	for _, sub := range s.subs.interviewer {
		sub.Unsubscribe()
	}
	s.interviewer = interviewer.New(s.Bus, s.Registry, s.provider, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	s.interviewer.SetMetrics(s.metrics)
	s.subs.interviewer = s.interviewer.Subscribe()
	slog.Warn("supervisor: restarted interviewer")
}

// RestartCoordinator unsubscribes and resubscribes the Coordinator with
// fresh empty state.
func (s *Supervisor) RestartCoordinator(cfg *config.Config) {
	for _, sub := range s.subs.coordinator {
		sub.Unsubscribe()
	}
	s.coordinator = coordinator.New(s.Bus, s.Registry, s.State, s.provider, cfg.CollectionWindow(), cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	s.coordinator.SetMetrics(s.metrics)
	s.subs.coordinator = s.coordinator.Subscribe()
	slog.Warn("supervisor: restarted coordinator")
}

// AskStarter asks the predefined starter question for topic via the
// Interviewer, for callers that need a starter outside of the
// interview_started event path (which the Interviewer handles itself).
func (s *Supervisor) AskStarter(topic content.TopicID) {
	s.interviewer.AskStarter(topic)
}
