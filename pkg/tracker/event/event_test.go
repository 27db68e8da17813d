package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	ev := New(KindSessionStarted, "tab-7", map[string]any{"problemTitle": "Two Sum"})

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, KindSessionStarted, ev.Kind)
	assert.Equal(t, "tab-7", ev.ContextID)
	assert.Equal(t, "Two Sum", ev.Data["problemTitle"])
	assert.Equal(t, ev.ID, ev.Data["eventId"])
	assert.False(t, ev.CreatedAt.IsZero())
}

func TestNew_CopiesData(t *testing.T) {
	src := map[string]any{"runs": 1}
	ev := New(KindProgress, "tab-7", src)

	src["runs"] = 99
	assert.Equal(t, 1, ev.Data["runs"])
}

func TestNew_UniqueIDs(t *testing.T) {
	a := New(KindProgress, "tab-7", nil)
	b := New(KindProgress, "tab-7", nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestWithData(t *testing.T) {
	ev := New(KindSessionStarted, "tab-7", map[string]any{"problemTitle": "Two Sum"})

	patched := ev.WithData(map[string]any{"problemId": "p-42"})

	assert.Equal(t, "p-42", patched.Data["problemId"])
	assert.Equal(t, "Two Sum", patched.Data["problemTitle"])
	assert.Equal(t, ev.ID, patched.ID)

	// Original event is untouched.
	_, ok := ev.Data["problemId"]
	assert.False(t, ok)
}
