package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBot(t *testing.T) *domain.Bot {
	t.Helper()
	b := dsl.New("metrics")
	b.Intent("Hi").Train("hi")
	b.Init().On("Hi", "Greeted")
	b.State("Greeted").Reply("hello").Do("Missing", "Nope").Go(domain.InitStateName)
	b.Fallback().Reply("what?")
	bot, err := b.Build()
	require.NoError(t, err)
	return bot
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	rt, err := parley.New(newBot(t), parley.WithHooks(metrics.Hooks()))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = rt.Converse(ctx, "s1", "hi")
	require.NoError(t, err)
	_, err = rt.Converse(ctx, "s1", "nonsense")
	require.True(t, errors.Is(err, domain.ErrNoTransition))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Intents.WithLabelValues("Hi")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("Init", "Greeted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("Greeted", "Init")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NoMatch.WithLabelValues("Init")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActionErrors.WithLabelValues("Missing", "Nope")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActionErrors.WithLabelValues("Chat", "Reply")))

	count, err := testutil.GatherAndCount(reg, "parley_action_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per platform action")
}

func TestMetrics_NilRegisterer(t *testing.T) {
	m := observability.NewMetrics(nil)
	m.Hooks().OnSessionInit(context.Background(), &domain.TurnEvent{})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions))
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, slog.LevelInfo)

	rt, err := parley.New(newBot(t), parley.WithHooks(observability.LogHooks(logger)))
	require.NoError(t, err)
	_, _ = rt.Converse(context.Background(), "s1", "nonsense")

	out := buf.String()
	assert.True(t, strings.Contains(out, "session_init"), out)
	assert.True(t, strings.Contains(out, "no_match"), out)
	assert.True(t, strings.Contains(out, "action_return"), out)
}
