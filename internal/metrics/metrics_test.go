package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDirective_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RecordDirective("probe", "llm")
	r.RecordDirective("probe", "llm")

	metric := &dto.Metric{}
	require.NoError(t, r.DirectivesTotal.WithLabelValues("probe", "llm").Write(metric))
	assert.Equal(t, float64(2), metric.GetCounter().GetValue())
}

func TestRecordCollectionWindow_Observes(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RecordCollectionWindow(800 * time.Millisecond)

	metric := &dto.Metric{}
	require.NoError(t, r.CollectionWindow.(prometheus.Metric).Write(metric))
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}
