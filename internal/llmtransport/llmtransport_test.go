package llmtransport

import (
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence_PlainTextUnchanged(t *testing.T) {
	assert.Equal(t, `{"rating":2}`, StripCodeFence(`{"rating":2}`))
}

func TestStripCodeFence_StripsLanguageTaggedFence(t *testing.T) {
	raw := "```json\n{\"rating\":2}\n```"
	assert.Equal(t, `{"rating":2}`, StripCodeFence(raw))
}

func TestStripCodeFence_StripsBareFence(t *testing.T) {
	raw := "```\n{\"rating\":2}\n```"
	assert.Equal(t, `{"rating":2}`, StripCodeFence(raw))
}

func TestStripCodeFence_TrimsSurroundingWhitespace(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("  \n"+`{"a":1}`+"\n  "))
}

func TestTripOnConsecutiveOrHighFailureRate_TripsAfterThreeConsecutive(t *testing.T) {
	assert.True(t, tripOnConsecutiveOrHighFailureRate(gobreaker.Counts{ConsecutiveFailures: 3}))
	assert.False(t, tripOnConsecutiveOrHighFailureRate(gobreaker.Counts{ConsecutiveFailures: 2}))
}

func TestTripOnConsecutiveOrHighFailureRate_IgnoresLowVolume(t *testing.T) {
	assert.False(t, tripOnConsecutiveOrHighFailureRate(gobreaker.Counts{Requests: 5, TotalFailures: 4}))
}

func TestTripOnConsecutiveOrHighFailureRate_TripsOnHighFailureRate(t *testing.T) {
	assert.True(t, tripOnConsecutiveOrHighFailureRate(gobreaker.Counts{Requests: 10, TotalFailures: 6}))
	assert.False(t, tripOnConsecutiveOrHighFailureRate(gobreaker.Counts{Requests: 10, TotalFailures: 5}))
}

func TestNew_BuildsUsableClient(t *testing.T) {
	c := New("test-api-key")
	assert.NotNil(t, c)
}
