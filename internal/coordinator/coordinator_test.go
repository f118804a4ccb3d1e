package coordinator

import (
	"testing"
	"time"

	"github.com/bookinterview/coordinator/internal/agents/depthexpert"
	"github.com/bookinterview/coordinator/internal/agents/timekeeper"
	"github.com/bookinterview/coordinator/internal/bus"
	"github.com/bookinterview/coordinator/internal/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *content.Registry {
	t.Helper()
	reg, err := content.NewRegistry([]content.Topic{
		{ID: content.Theme, Name: "Theme", Starter: "What is the theme?"},
		{ID: content.Characters, Name: "Characters", Starter: "Who is your favorite character?"},
	})
	require.NoError(t, err)
	return reg
}

func TestParseLabel(t *testing.T) {
	cases := map[string]bus.DirectiveKind{
		"PROBE":          bus.DirectiveProbe,
		"TRANSITION":     bus.DirectiveTransition,
		"FINAL_QUESTION": bus.DirectiveFinalQuestion,
		"END_INTERVIEW":  bus.DirectiveEndInterview,
	}
	for label, want := range cases {
		got, ok := parseLabel(label)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := parseLabel("NONSENSE")
	assert.False(t, ok)
}

func TestFallback_CriticalPressureEndsInterview(t *testing.T) {
	c := New(bus.New(), testRegistry(t), nil, nil, 0, 0, 0)
	response := bus.StudentResponsePayload{Topic: content.Theme}
	observations := map[string]any{
		"timekeeper": timekeeper.Observation{Pressure: timekeeper.PressureCritical},
	}

	directive := c.fallback(response, observations, observedAgents(observations), bus.SourceFallback)
	assert.Equal(t, bus.DirectiveEndInterview, directive.Directive)
}

func TestFallback_HighPressureAsksFinalQuestion(t *testing.T) {
	c := New(bus.New(), testRegistry(t), nil, nil, 0, 0, 0)
	response := bus.StudentResponsePayload{Topic: content.Theme}
	observations := map[string]any{
		"timekeeper": timekeeper.Observation{Pressure: timekeeper.PressureHigh, Remaining: 80 * time.Second, TopicsLeft: 1},
	}

	directive := c.fallback(response, observations, observedAgents(observations), bus.SourceFallback)
	assert.Equal(t, bus.DirectiveFinalQuestion, directive.Directive)
}

func TestFallback_MoveOnTransitionsToNextTopic(t *testing.T) {
	c := New(bus.New(), testRegistry(t), nil, nil, 0, 0, 0)
	response := bus.StudentResponsePayload{Topic: content.Theme}
	observations := map[string]any{
		"depth_expert": depthexpert.Observation{Topic: content.Theme, Recommendation: depthexpert.RecommendationMoveOn},
	}

	directive := c.fallback(response, observations, observedAgents(observations), bus.SourceFallback)
	require.Equal(t, bus.DirectiveTransition, directive.Directive)
	require.NotNil(t, directive.NextTopic)
	assert.Equal(t, content.Characters, *directive.NextTopic)
}

func TestFallback_MoveOnWithNoNextTopicEndsInterview(t *testing.T) {
	c := New(bus.New(), testRegistry(t), nil, nil, 0, 0, 0)
	response := bus.StudentResponsePayload{Topic: content.Characters}
	observations := map[string]any{
		"depth_expert": depthexpert.Observation{Topic: content.Characters, Recommendation: depthexpert.RecommendationAccept},
	}

	directive := c.fallback(response, observations, observedAgents(observations), bus.SourceFallback)
	assert.Equal(t, bus.DirectiveEndInterview, directive.Directive)
}

func TestFallback_ProbeWhenLowPressureAndDepthProbes(t *testing.T) {
	c := New(bus.New(), testRegistry(t), nil, nil, 0, 0, 0)
	response := bus.StudentResponsePayload{Topic: content.Theme}
	observations := map[string]any{
		"timekeeper":   timekeeper.Observation{Pressure: timekeeper.PressureLow, Remaining: 200 * time.Second, TopicsLeft: 3},
		"depth_expert": depthexpert.Observation{Topic: content.Theme, Recommendation: depthexpert.RecommendationProbe},
	}

	directive := c.fallback(response, observations, observedAgents(observations), bus.SourceFallback)
	assert.Equal(t, bus.DirectiveProbe, directive.Directive)
}

func TestFallback_DegenerateNoObservationsProbes(t *testing.T) {
	c := New(bus.New(), testRegistry(t), nil, nil, 0, 0, 0)
	response := bus.StudentResponsePayload{Topic: content.Theme}

	directive := c.fallback(response, map[string]any{}, nil, bus.SourceFallback)
	assert.Equal(t, bus.DirectiveProbe, directive.Directive)
}

func TestHandleStudentResponse_ReplacesWindowOnRapidSecondResponse(t *testing.T) {
	b := bus.New()
	reg := testRegistry(t)
	completer := &stubCompleter{}
	c := New(b, reg, completer, nil, 50*time.Millisecond, 0, 0)
	c.Subscribe()

	b.Publish(bus.TopicStudentResponse, bus.StudentResponsePayload{Topic: content.Theme, Text: "first"})
	b.Publish(bus.TopicStudentResponse, bus.StudentResponsePayload{Topic: content.Theme, Text: "second"})

	c.mu.Lock()
	got := c.windowResponse.Text
	c.mu.Unlock()
	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.windowResponse.Text == "second"
	}, time.Second, 5*time.Millisecond, "window should reflect the latest response, got %q", got)
}

type stubCompleter struct{}

func (s *stubCompleter) CompleteTopic(topic content.TopicID) error { return nil }
