package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTopics() []Topic {
	return []Topic{
		{ID: Theme, Name: "Theme", Starter: "What was the theme?"},
		{ID: Characters, Name: "Characters", Starter: "Who was your favorite character?"},
	}
}

func TestNewRegistry_RejectsEmpty(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)
}

func TestNewRegistry_RejectsDuplicateID(t *testing.T) {
	_, err := NewRegistry([]Topic{
		{ID: Theme, Name: "Theme"},
		{ID: Theme, Name: "Theme again"},
	})
	assert.Error(t, err)
}

func TestRegistry_FirstAndNext(t *testing.T) {
	r, err := NewRegistry(sampleTopics())
	require.NoError(t, err)

	assert.Equal(t, Theme, r.First().ID)

	next, ok := r.Next(Theme)
	require.True(t, ok)
	assert.Equal(t, Characters, next.ID)

	_, ok = r.Next(Characters)
	assert.False(t, ok)
}

func TestRegistry_GetUnknownTopic(t *testing.T) {
	r, err := NewRegistry(sampleTopics())
	require.NoError(t, err)

	_, ok := r.Get("unknown")
	assert.False(t, ok)
}

func TestRegistry_IndexOf(t *testing.T) {
	r, err := NewRegistry(sampleTopics())
	require.NoError(t, err)

	idx, ok := r.IndexOf(Characters)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}
