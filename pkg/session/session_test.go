package session_test

import (
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greetingsGraph() *domain.Graph {
	g := domain.NewGraph()
	start := g.AddState(domain.InitStateName)
	g.AddState(domain.FallbackStateName)
	greeted := g.AddState("Greeted")
	g.AddTransition(start, domain.When("Greetings"), greeted)
	g.AddTransition(start, domain.AnyOf(domain.When("Help"), domain.Not{Term: domain.When("Bye")}), greeted)
	return g
}

func TestNew_RequiresID(t *testing.T) {
	_, err := session.New("", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	s, err := session.New("chat-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "chat-1", s.ID())
	assert.Nil(t, s.State())
	assert.NotNil(t, s.Contexts())
}

func TestSetState_PrimesEnabledEvents(t *testing.T) {
	g := greetingsGraph()
	s, err := session.New("chat-1", nil)
	require.NoError(t, err)

	s.SetState(g.InitState())

	assert.Equal(t, domain.InitStateName, s.State().Name)
	for _, name := range []string{"Greetings", "Help", "Bye"} {
		assert.True(t, s.IsEnabled(name), name)
		assert.Equal(t, domain.EnableContextLifespan, s.Contexts().LifespanCount("Enable"+name))
	}
	assert.False(t, s.IsEnabled("Unrelated"))
}

func TestVariables(t *testing.T) {
	s, _ := session.New("chat-1", nil)

	s.Store("name", "Ada")
	v, ok := s.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)

	s.StoreList("items", "a")
	s.StoreList("items", "b")
	v, _ = s.Get("items")
	assert.Equal(t, []any{"a", "b"}, v)

	s.StoreList("name", "replaced")
	v, _ = s.Get("name")
	assert.Equal(t, []any{"replaced"}, v)
}

func TestMerge(t *testing.T) {
	a, _ := session.New("a", nil)
	b, _ := session.New("b", nil)
	a.Store("kept", 1)
	a.Store("conflict", "old")
	a.Store("nested", map[string]any{"x": 1})
	b.Store("conflict", "new")
	b.Store("added", true)
	b.Store("nested", map[string]any{"x": 2, "y": 3})

	conflicts := a.Merge(b)

	assert.ElementsMatch(t, []string{"conflict", "nested.x"}, conflicts)
	vars := a.Variables()
	assert.Equal(t, 1, vars["kept"])
	assert.Equal(t, "new", vars["conflict"])
	assert.Equal(t, true, vars["added"])
	assert.Equal(t, map[string]any{"x": 2, "y": 3}, vars["nested"])

	// Copies, not aliases
	b.Store("added", false)
	v, _ := a.Get("added")
	assert.Equal(t, true, v)
	assert.Nil(t, a.Merge(nil))
}

func TestSnapshotRestore(t *testing.T) {
	g := greetingsGraph()
	s, _ := session.New("chat-1", nil)
	s.SetState(g.InitState())
	s.Store("name", "Ada")
	require.NoError(t, s.Contexts().SetContextValue("Hello", 3, "helloTo", "World"))

	snap := s.Snapshot()
	assert.Equal(t, domain.InitStateName, snap.StateName)

	restored, err := session.Restore(snap, g, nil)
	require.NoError(t, err)
	assert.Equal(t, "chat-1", restored.ID())
	assert.Equal(t, domain.InitStateName, restored.State().Name)
	assert.Equal(t, "World", restored.Contexts().GetContextVariables("Hello")["helloTo"])
	assert.True(t, restored.IsEnabled("Greetings"))
	v, _ := restored.Get("name")
	assert.Equal(t, "Ada", v)

	snap.StateName = "Gone"
	_, err = session.Restore(snap, g, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
