package parley_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/platforms/chat"
	"github.com/aretw0/parley/pkg/provider"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterBot counts "tick" messages per session in a session variable.
func counterBot(t *testing.T) *domain.Bot {
	t.Helper()
	b := dsl.New("counter")
	b.Intent("Tick").Train("tick")
	b.Intent("Greetings").Train("hello")
	b.Init().On("Tick", "Counted").On("Greetings", "Greeted")
	b.State("Counted").Do("Test", "Increment").Go(domain.InitStateName)
	b.State("Greeted").Reply("Hello!").Go(domain.InitStateName)
	b.Fallback().Reply("Sorry")
	bot, err := b.Build()
	require.NoError(t, err)
	return bot
}

type testPlatform struct {
	shutdowns atomic.Int32
}

func (p *testPlatform) Name() string { return "Test" }

func (p *testPlatform) Shutdown(ctx context.Context) error {
	p.shutdowns.Add(1)
	return nil
}

func (p *testPlatform) Actions() map[string]registry.Handler {
	return map[string]registry.Handler{
		"Increment": func(ctx context.Context, sess *session.Session, args []any) (any, error) {
			var n int
			switch v, _ := sess.Get("count"); c := v.(type) {
			case int:
				n = c
			case float64:
				n = int(c)
			}
			time.Sleep(time.Millisecond)
			sess.Store("count", n+1)
			return n + 1, nil
		},
	}
}

func newRuntime(t *testing.T, opts ...parley.Option) (*parley.Runtime, *testPlatform) {
	t.Helper()
	p := &testPlatform{}
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterPlatform(p))
	rt, err := parley.New(counterBot(t), append([]parley.Option{parley.WithRegistry(reg)}, opts...)...)
	require.NoError(t, err)
	return rt, p
}

func TestRuntime_Converse(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()

	turn, err := rt.Converse(ctx, "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello!"}, chat.Replies(turn))
	assert.Equal(t, domain.InitStateName, turn.To())

	turn, err = rt.Converse(ctx, "s1", "gibberish")
	assert.ErrorIs(t, err, domain.ErrNoTransition)
	assert.Equal(t, []string{"Sorry"}, chat.Replies(turn))
}

func TestRuntime_SessionRunsInit(t *testing.T) {
	rt, _ := newRuntime(t)
	sess, err := rt.Session(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, sess.State())
	assert.Equal(t, domain.InitStateName, sess.State().Name)
	assert.True(t, sess.IsEnabled("Tick"))
}

func TestRuntime_QueuedTurnsAreSerializedPerSession(t *testing.T) {
	rt, _ := newRuntime(t, parley.WithWorkers(3))
	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))

	const sessions, ticks = 5, 20
	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		for i := 0; i < ticks; i++ {
			ch, err := rt.SendText(ctx, fmt.Sprintf("s%d", s), "tick")
			require.NoError(t, err)
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := <-ch
				assert.NoError(t, res.Err)
			}()
		}
	}
	wg.Wait()

	for s := 0; s < sessions; s++ {
		sess, err := rt.Session(ctx, fmt.Sprintf("s%d", s))
		require.NoError(t, err)
		v, _ := sess.Get("count")
		assert.Equal(t, ticks, v)
	}
	require.NoError(t, rt.Stop(ctx))
}

func TestRuntime_SendEventInstance(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop(ctx)

	sess, err := rt.Session(ctx, "s1")
	require.NoError(t, err)
	def, ok := rt.Bot().Event("Greetings")
	require.True(t, ok)

	ch, err := rt.SendEventInstance(ctx, domain.NewEvent(def), sess)
	require.NoError(t, err)
	turn, err := provider.Wait(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello!"}, chat.Replies(turn))

	_, err = rt.SendEventInstance(ctx, nil, sess)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRuntime_PersistsSessions(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	first, _ := newRuntime(t, parley.WithSessionStore(store))
	_, err := first.Converse(ctx, "s1", "tick")
	require.NoError(t, err)

	second, _ := newRuntime(t, parley.WithSessionStore(store))
	_, err = second.Converse(ctx, "s1", "tick")
	require.NoError(t, err)

	snap, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Variables["count"])
}

func TestRuntime_SessionSurvivesRemovedState(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	b := dsl.New("counter")
	b.Intent("Greetings").Train("hello")
	b.Init().On("Greetings", "Waiting")
	b.State("Waiting").Reply("Waiting...")
	b.Fallback().Reply("Sorry")
	before, err := b.Build()
	require.NoError(t, err)

	old, err := parley.New(before, parley.WithSessionStore(store))
	require.NoError(t, err)
	turn, err := old.Converse(ctx, "s1", "hello")
	require.NoError(t, err)
	require.Equal(t, "Waiting", turn.To())

	// The reloaded bot has no Waiting state; the conversation restarts from Init.
	reloaded, _ := newRuntime(t, parley.WithSessionStore(store))
	for i := 1; i <= 2; i++ {
		turn, err = reloaded.Converse(ctx, "s1", "tick")
		require.NoError(t, err)
		assert.Equal(t, domain.InitStateName, turn.To())
	}

	snap, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.InitStateName, snap.StateName)
	assert.EqualValues(t, 2, snap.Variables["count"])
}

type blockingProvider struct {
	closed atomic.Bool
	ran    chan struct{}
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Run(ctx context.Context, sink provider.Sink) error {
	close(p.ran)
	<-ctx.Done()
	return ctx.Err()
}

func (p *blockingProvider) Close() error {
	p.closed.Store(true)
	return nil
}

func TestRuntime_Lifecycle(t *testing.T) {
	bp := &blockingProvider{ran: make(chan struct{})}
	rt, platform := newRuntime(t, parley.WithProvider(bp))
	ctx := context.Background()

	_, err := rt.SendText(ctx, "s1", "tick")
	assert.ErrorIs(t, err, parley.ErrNotRunning)

	require.NoError(t, rt.Start(ctx))
	assert.Error(t, rt.Start(ctx))
	<-bp.ran

	require.NoError(t, rt.Stop(ctx))
	require.NoError(t, rt.Stop(ctx), "stop is idempotent")
	assert.True(t, bp.closed.Load())
	assert.True(t, rt.Recognizer().IsShutdown())
	assert.EqualValues(t, 1, platform.shutdowns.Load())

	_, err = rt.SendText(ctx, "s1", "tick")
	assert.ErrorIs(t, err, parley.ErrNotRunning)
}

func TestNew_RejectsInvalidBots(t *testing.T) {
	_, err := parley.New(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	g := domain.NewGraph()
	g.AddState(domain.InitStateName)
	_, err = parley.New(&domain.Bot{Name: "broken", Graph: g})
	var cfgErr *domain.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	_, err = parley.New(counterBot(t), parley.WithWorkers(0))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
