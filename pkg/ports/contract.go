package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot(id string) *domain.SessionSnapshot {
	return &domain.SessionSnapshot{
		ID:        id,
		StateName: domain.InitStateName,
		Contexts: map[string]domain.ContextSnapshot{
			"Hello": {Lifespan: 3, Values: map[string]any{"helloTo": "Test"}},
		},
		Variables: map[string]any{"foo": "bar", "count": 42},
		UpdatedAt: time.Now(),
	}
}

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot(sessionID)

		err := store.Save(ctx, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sessionID, loaded.ID)
		assert.Equal(t, domain.InitStateName, loaded.StateName)
		assert.Equal(t, "bar", loaded.Variables["foo"])
		// JSON-backed stores turn ints into float64; only check presence.
		assert.NotNil(t, loaded.Variables["count"])
		require.Contains(t, loaded.Contexts, "Hello")
		assert.Equal(t, 3, loaded.Contexts["Hello"].Lifespan)
		assert.Equal(t, "Test", loaded.Contexts["Hello"].Values["helloTo"])
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		snap := contractSnapshot(sessionID)
		snap.StateName = "Other"
		require.NoError(t, store.Save(ctx, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "Other", loaded.StateName)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, contractSnapshot(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, contractSnapshot(id1))
		_ = store.Save(ctx, contractSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunBotLoaderContract verifies that a BotLoader yields a usable bot definition
// declaring the given intents.
func RunBotLoaderContract(t *testing.T, loader BotLoader, intents ...string) {
	t.Helper()
	ctx := context.Background()

	bot, err := loader.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, bot)
	require.NotNil(t, bot.Graph)
	assert.NotNil(t, bot.Graph.InitState(), "bot must declare an Init state")
	assert.NotNil(t, bot.Graph.FallbackState(), "bot must declare a fallback state")

	names := bot.EventNames()
	for _, name := range intents {
		assert.True(t, names[name], "intent %s should be declared", name)
	}
}
