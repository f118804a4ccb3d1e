package grader

import (
	"testing"

	"github.com/bookinterview/coordinator/internal/content"
	"github.com/stretchr/testify/assert"
)

func TestComputeAverage_EmptyScores(t *testing.T) {
	avg, scored := ComputeAverage(map[content.TopicID]*int{"theme": nil, "characters": nil})
	assert.Equal(t, 0.0, avg)
	assert.Equal(t, 0, scored)
}

func TestComputeAverage_MixedScores(t *testing.T) {
	three, two := 3, 2
	avg, scored := ComputeAverage(map[content.TopicID]*int{
		"theme":      &three,
		"characters": &two,
		"setting":    nil,
	})
	assert.Equal(t, 2.5, avg)
	assert.Equal(t, 2, scored)
}

func TestLetterGrade_Bands(t *testing.T) {
	cases := []struct {
		avg    float64
		scored int
		want   string
	}{
		{0, 0, "N/A"},
		{3.0, 1, "A"},
		{2.7, 1, "A"},
		{2.3, 1, "B+"},
		{2.0, 1, "B"},
		{1.7, 1, "C+"},
		{1.3, 1, "C"},
		{1.0, 1, "D"},
		{0.5, 1, "F"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LetterGrade(tc.avg, tc.scored))
	}
}

type stubRating struct {
	topic  content.TopicID
	rating int
}

func (s stubRating) DepthRating() (content.TopicID, int) { return s.topic, s.rating }

func TestGrader_TracksCoverageGapsUntilScored(t *testing.T) {
	registry := testRegistry(t)
	g := New(nil, registry)

	obs := g.currentObservation()
	assert.Equal(t, "N/A", obs.RunningGrade)
	assert.Len(t, obs.CoverageGaps, registry.Len())

	g.mu.Lock()
	three := 3
	g.scores[registry.First().ID] = &three
	g.mu.Unlock()

	obs = g.currentObservation()
	assert.Equal(t, 1, obs.TopicsScored)
	assert.Len(t, obs.CoverageGaps, registry.Len()-1)
}

func TestGrader_DepthRatingInterfaceAcceptsForeignType(t *testing.T) {
	registry := testRegistry(t)
	var rater DepthRating = stubRating{topic: registry.First().ID, rating: 2}
	topic, rating := rater.DepthRating()
	assert.Equal(t, registry.First().ID, topic)
	assert.Equal(t, 2, rating)
}

func testRegistry(t *testing.T) *content.Registry {
	t.Helper()
	registry, err := content.NewRegistry([]content.Topic{
		{ID: "theme", Name: "Theme", Starter: "What was the theme?", DepthCriteria: "explains theme with evidence"},
		{ID: "characters", Name: "Characters", Starter: "Who was your favorite character?", DepthCriteria: "names traits and actions"},
	})
	if err != nil {
		t.Fatalf("building test registry: %v", err)
	}
	return registry
}
