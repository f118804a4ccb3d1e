package timekeeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompute_CriticalWhenRemainingAtOrBelowThirtySeconds(t *testing.T) {
	obs := Compute(280*time.Second, 300, 5, 2)
	assert.Equal(t, PressureCritical, obs.Pressure)
	assert.Equal(t, RecommendationWrapUp, obs.Recommendation)
	assert.Equal(t, 20*time.Second, obs.Remaining)
}

func TestCompute_HighWhenRemainingAtOrBelowNinetySeconds(t *testing.T) {
	obs := Compute(220*time.Second, 300, 5, 2)
	assert.Equal(t, PressureHigh, obs.Pressure)
}

func TestCompute_HighWhenPaceTooSlowEvenWithTimeToSpare(t *testing.T) {
	// 100s remaining over 2 topics left = 50s/topic pace, under the 55s floor.
	obs := Compute(200*time.Second, 300, 5, 3)
	assert.Equal(t, PressureHigh, obs.Pressure)
}

func TestCompute_LowWhenNoTopicsLeft(t *testing.T) {
	obs := Compute(10*time.Second, 300, 5, 5)
	assert.Equal(t, PressureLow, obs.Pressure)
	assert.Equal(t, 0, obs.TopicsLeft)
	assert.Equal(t, time.Duration(0), obs.Pace)
}

func TestCompute_ClampsNegativeElapsedAndRemaining(t *testing.T) {
	obs := Compute(-5*time.Second, 300, 5, 0)
	assert.Equal(t, time.Duration(0), obs.Elapsed)

	obs = Compute(500*time.Second, 300, 5, 0)
	assert.Equal(t, time.Duration(0), obs.Remaining)
	assert.Equal(t, PressureCritical, obs.Pressure)
}

func TestCompute_LowPressureWithAmpleTimeAndPace(t *testing.T) {
	obs := Compute(0, 400, 5, 0)
	assert.Equal(t, PressureLow, obs.Pressure)
	assert.Equal(t, RecommendationOnPace, obs.Recommendation)
}

func TestCompute_MediumWhenPaceModeratelyTight(t *testing.T) {
	obs := Compute(10*time.Second, 300, 5, 0)
	assert.Equal(t, PressureMedium, obs.Pressure)
}
