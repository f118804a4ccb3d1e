package supervisor

import (
	"sync"
	"testing"
	"time"

	"github.com/bookinterview/coordinator/internal/agents/depthexpert"
	"github.com/bookinterview/coordinator/internal/bus"
	"github.com/bookinterview/coordinator/internal/config"
	"github.com/bookinterview/coordinator/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Builtin()
	require.NoError(t, err)
	cfg.CollectionWindowMS = 20
	return cfg
}

func TestNew_WiresEveryComponent(t *testing.T) {
	cfg := testConfig(t)
	sup, err := New(cfg, nil)
	require.NoError(t, err)

	assert.NotNil(t, sup.Bus)
	assert.NotNil(t, sup.Registry)
	assert.NotNil(t, sup.State)
	assert.Equal(t, 5, sup.Registry.Len())
}

func TestEndToEnd_StudentResponseProducesDirective(t *testing.T) {
	cfg := testConfig(t)
	sup, err := New(cfg, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var directives []bus.CoordinatorDirectivePayload
	sup.Bus.Subscribe(bus.TopicCoordinatorDirective, func(msg bus.Message) {
		payload, ok := msg.Payload.(bus.CoordinatorDirectivePayload)
		if !ok {
			return
		}
		mu.Lock()
		directives = append(directives, payload)
		mu.Unlock()
	})

	require.NoError(t, sup.State.Start())
	require.NoError(t, sup.State.RecordResponse(sup.Registry.First().ID, "The book was about friendship and loyalty."))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(directives) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, bus.SourceFallback, directives[0].Source)
}

func TestRecordDepthScore_WiredIntoState(t *testing.T) {
	cfg := testConfig(t)
	sup, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, sup.State.Start())

	topic := sup.Registry.First().ID
	sup.Bus.Publish(bus.TopicAgentObservation, bus.AgentObservationPayload{
		Agent:       depthexpert.AgentName,
		Observation: depthexpert.Observation{Topic: topic, Rating: 3},
	})

	assert.Eventually(t, func() bool {
		snap := sup.State.Snapshot()
		score, ok := snap.TopicScores[topic]
		return ok && score != nil && *score == 3
	}, time.Second, 10*time.Millisecond)
}

func TestSetMetrics_RecordsTopicCompletion(t *testing.T) {
	cfg := testConfig(t)
	sup, err := New(cfg, nil)
	require.NoError(t, err)

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	sup.SetMetrics(reg)

	require.NoError(t, sup.State.Start())
	topic := sup.Registry.First().ID
	require.NoError(t, sup.State.CompleteTopic(topic))

	assert.Eventually(t, func() bool {
		m := &dto.Metric{}
		_ = reg.TopicsCompletedTotal.Write(m)
		return m.GetCounter().GetValue() == 1
	}, time.Second, 10*time.Millisecond)
}
