package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/recognition"
	"github.com/aretw0/parley/pkg/recognition/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	answer string
	err    error
	system string
	user   string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.answer, f.err
}

func order() *domain.IntentDefinition {
	return &domain.IntentDefinition{
		EventDefinition: domain.EventDefinition{
			Name: "OrderPizza",
			OutContexts: []domain.ContextDefinition{{
				Name: "order",
				Parameters: []domain.ContextParameter{
					{Name: "size", TextFragment: "large", Entity: domain.BaseRef(domain.BaseAny)},
				},
			}},
		},
		TrainingSentences: []string{"I want a large pizza"},
	}
}

func TestProvider_ClassifiesWithModel(t *testing.T) {
	fake := &fakeCompleter{answer: "```json\n{\"intent\": \"OrderPizza\", \"confidence\": 0.9, \"parameters\": {\"order\": {\"size\": \"small\", \"topping\": \"ham\"}}}\n```"}
	p := llm.New(fake)
	require.NoError(t, p.RegisterIntentDefinition(order()))
	require.NoError(t, p.TrainMLEngine(context.Background()))
	sess, err := p.CreateSession("s1")
	require.NoError(t, err)

	ev, err := p.GetIntent(context.Background(), "a small one please", sess)
	require.NoError(t, err)
	require.Equal(t, "OrderPizza", ev.Name())
	assert.InDelta(t, 0.9, ev.Confidence, 1e-9)

	values := ev.OutContext("order").Values
	assert.Equal(t, map[string]any{"size": "small"}, values, "undeclared parameters are dropped")
	assert.True(t, sess.Contexts().HasContext("order"))

	assert.Equal(t, "a small one please", fake.user)
	assert.True(t, strings.Contains(fake.system, "OrderPizza"))
}

func TestProvider_FallsBack(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"unknown intent", `{"intent": "Weather", "confidence": 0.99}`},
		{"empty intent", `{"intent": "", "confidence": 0}`},
		{"below threshold", `{"intent": "OrderPizza", "confidence": 0.2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := llm.New(&fakeCompleter{answer: tt.answer})
			require.NoError(t, p.RegisterIntentDefinition(order()))
			sess, err := p.CreateSession("s1")
			require.NoError(t, err)

			ev, err := p.GetIntent(context.Background(), "hm", sess)
			require.NoError(t, err)
			assert.True(t, ev.IsFallback())
		})
	}
}

func TestProvider_SkipsModelWithoutEligibleIntents(t *testing.T) {
	def := order()
	def.InContexts = []string{"menu"}
	fake := &fakeCompleter{answer: `{"intent": "OrderPizza", "confidence": 1}`}
	p := llm.New(fake)
	require.NoError(t, p.RegisterIntentDefinition(def))
	sess, err := p.CreateSession("s1")
	require.NoError(t, err)

	ev, err := p.GetIntent(context.Background(), "large pizza", sess)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback())
	assert.Empty(t, fake.user, "model is not consulted")
}

func TestProvider_Errors(t *testing.T) {
	boom := errors.New("rate limited")
	p := llm.New(&fakeCompleter{err: boom})
	require.NoError(t, p.RegisterIntentDefinition(order()))
	sess, err := p.CreateSession("s1")
	require.NoError(t, err)

	_, err = p.GetIntent(context.Background(), "pizza", sess)
	var recErr *domain.RecognitionError
	require.ErrorAs(t, err, &recErr)
	assert.ErrorIs(t, err, boom)

	p = llm.New(&fakeCompleter{answer: "I think it is OrderPizza"})
	require.NoError(t, p.RegisterIntentDefinition(order()))
	_, err = p.GetIntent(context.Background(), "pizza", sess)
	require.ErrorAs(t, err, &recErr)

	require.NoError(t, p.Shutdown(context.Background()))
	_, err = p.GetIntent(context.Background(), "pizza", sess)
	assert.ErrorIs(t, err, domain.ErrProviderShutdown)
}

var _ recognition.Provider = (*llm.Provider)(nil)
