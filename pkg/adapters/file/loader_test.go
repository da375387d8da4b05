package file_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/platforms/chat"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Contract(t *testing.T) {
	ports.RunBotLoaderContract(t, file.NewLoader("testdata/greeter.yaml"), "Greetings", "FavoriteColor", "Age", "Ping")
}

func TestLoader_Compiles(t *testing.T) {
	bot, err := file.NewLoader("testdata/greeter.yaml").Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "greeter", bot.Name)
	require.Len(t, bot.Entities, 1)
	assert.Equal(t, domain.EntityMapping, bot.Entities[0].Kind)

	color, ok := bot.Graph.StateByName("Color")
	require.True(t, ok)
	require.Len(t, color.Actions, 2)
	assert.Equal(t, domain.ActionCall{Platform: "Core", Action: "Store", Args: []any{"color", "{$taste.color}"}}, color.Actions[1])
	require.Len(t, color.Transitions, 1)
	assert.True(t, color.Transitions[0].IsWildcard())

	ask, _ := bot.Graph.StateByName("AskAge")
	require.Len(t, ask.Transitions, 2)
	assert.Equal(t, "(intent == Age && context.user.age >= 18)", ask.Transitions[0].Guard.String())
}

func TestLoader_Conversation(t *testing.T) {
	bot, err := file.NewLoader("testdata/greeter.yaml").Load(context.Background())
	require.NoError(t, err)
	rt, err := parley.New(bot)
	require.NoError(t, err)

	ctx := context.Background()
	say := func(text string) []string {
		turn, err := rt.Converse(ctx, "s1", text)
		if err != nil && !errors.Is(err, domain.ErrNoTransition) {
			t.Fatalf("Converse(%q) failed: %v", text, err)
		}
		return chat.Replies(turn)
	}

	assert.Equal(t, []string{"Sorry, I did not get that."}, say("blue"), "color requires the user context")
	assert.Equal(t, []string{"Nice to meet you, Ada! What is your favourite color?"}, say("hi Ada"))
	assert.Equal(t, []string{"red it is.", "How old are you?"}, say("I like crimson"))
	assert.Equal(t, []string{"Welcome aboard."}, say("I am 42 years old"))

	sess, err := rt.Session(ctx, "s1")
	require.NoError(t, err)
	color, _ := sess.Get("color")
	assert.Equal(t, "red", color)
	assert.Equal(t, domain.InitStateName, sess.State().Name)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid yaml", "name: [unterminated"},
		{"missing name", "states: []"},
		{"unknown field", "name: x\nflows: []"},
		{"unknown entity", `
name: x
intents:
  - name: A
    train: ["X"]
    contexts: [{name: c, params: [{name: p, fragment: X, entity: Planet}]}]
states:
  - name: Init
    transitions: [{on: A, to: Init}]
  - name: Default_Fallback
`},
		{"bad action", `
name: x
states:
  - name: Init
    actions: [{do: Log}]
  - name: Default_Fallback
`},
		{"undeclared target", `
name: x
states:
  - name: Init
    transitions: [{to: Nowhere}]
  - name: Default_Fallback
`},
		{"missing fallback", `
name: x
states:
  - name: Init
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := file.Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := file.NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yaml")
	data, err := os.ReadFile("testdata/greeter.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loader := file.NewLoader(path)
	loader.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := loader.Watch(ctx)
	require.NoError(t, err)

	expectChange := func(msg string) {
		t.Helper()
		select {
		case <-changes:
		case <-time.After(2 * time.Second):
			t.Fatal(msg)
		}
	}

	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	select {
	case <-changes:
		t.Fatal("unexpected notification for another file")
	case <-time.After(100 * time.Millisecond):
	}

	// In-place write, split over several events, is reported once.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n# first\n")
	require.NoError(t, err)
	_, err = f.WriteString("# second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	expectChange("expected a notification for an in-place write")
	select {
	case <-changes:
		t.Fatal("burst should be coalesced")
	case <-time.After(100 * time.Millisecond):
	}

	// Atomic replace, as editors save.
	tmp := filepath.Join(dir, ".bot.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, data, 0o644))
	require.NoError(t, os.Rename(tmp, path))
	expectChange("expected a notification for an atomic replace")

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-changes
		return !open
	}, time.Second, 10*time.Millisecond)
}

var (
	_ ports.BotLoader = (*file.Loader)(nil)
	_ ports.Watchable = (*file.Loader)(nil)
)
