package recognition_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/recognition"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greetings() *domain.IntentDefinition {
	return &domain.IntentDefinition{
		EventDefinition:   domain.EventDefinition{Name: "Greetings"},
		TrainingSentences: []string{"Greetings", "Hi"},
	}
}

func hello() *domain.IntentDefinition {
	return &domain.IntentDefinition{
		EventDefinition: domain.EventDefinition{
			Name: "Hello",
			OutContexts: []domain.ContextDefinition{{
				Name: "Hello",
				Parameters: []domain.ContextParameter{
					{Name: "helloTo", TextFragment: "test", Entity: domain.BaseRef(domain.BaseAny)},
				},
			}},
		},
		TrainingSentences: []string{"Hello test"},
	}
}

func founders() *domain.EntityDefinition {
	return &domain.EntityDefinition{
		Name: "XatkitFounder",
		Kind: domain.EntityMapping,
		Entries: []domain.MappingEntry{
			{Value: "Gwendal", Synonyms: []string{"Gwen"}},
			{Value: "Jordi"},
		},
	}
}

func newProvider(t *testing.T, intents ...*domain.IntentDefinition) *recognition.RegexProvider {
	t.Helper()
	p := recognition.NewRegexProvider()
	for _, def := range intents {
		require.NoError(t, p.RegisterIntentDefinition(def))
	}
	require.NoError(t, p.TrainMLEngine(context.Background()))
	return p
}

func newSession(t *testing.T, p recognition.Provider) *session.Session {
	t.Helper()
	sess, err := p.CreateSession("test")
	require.NoError(t, err)
	return sess
}

func TestRegexProvider_MatchesTrainingSentence(t *testing.T) {
	p := newProvider(t, greetings())
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "greetings", sess)
	require.NoError(t, err)
	assert.Equal(t, "Greetings", ev.Name())
	assert.Equal(t, "greetings", ev.MatchedInput)
	assert.Equal(t, 1.0, ev.Confidence)

	ev, err = p.GetIntent(context.Background(), "Hi there", sess)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback())
}

func TestRegexProvider_ExtractsParameters(t *testing.T) {
	p := newProvider(t, hello())
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "Hello Test", sess)
	require.NoError(t, err)
	require.Equal(t, "Hello", ev.Name())

	out := ev.OutContext("Hello")
	require.NotNil(t, out)
	v, ok := out.Value("helloTo")
	require.True(t, ok)
	assert.Equal(t, "Test", v)

	stored, err := sess.Contexts().GetContextValue("Hello", "helloTo")
	require.NoError(t, err)
	assert.Equal(t, "Test", stored)
	assert.Equal(t, domain.DefaultContextLifespan, sess.Contexts().LifespanCount("Hello"))
}

func TestRegexProvider_FragmentInsideSentence(t *testing.T) {
	def := &domain.IntentDefinition{
		EventDefinition: domain.EventDefinition{
			Name: "TestIntentDefinition",
			OutContexts: []domain.ContextDefinition{{
				Name: "Test",
				Parameters: []domain.ContextParameter{
					{Name: "what", TextFragment: "intent", Entity: domain.BaseRef(domain.BaseAny)},
				},
			}},
		},
		TrainingSentences: []string{"Test intent definition"},
	}
	p := newProvider(t, def)
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "test entity definition", sess)
	require.NoError(t, err)
	require.Equal(t, "TestIntentDefinition", ev.Name())
	v, _ := ev.OutContext("Test").Value("what")
	assert.Equal(t, "entity", v)
}

func TestRegexProvider_EscapesLiteralText(t *testing.T) {
	def := &domain.IntentDefinition{
		EventDefinition:   domain.EventDefinition{Name: "Dollar"},
		TrainingSentences: []string{"$test (1+1)"},
	}
	p := newProvider(t, def)
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "$test (1+1)", sess)
	require.NoError(t, err)
	assert.Equal(t, "Dollar", ev.Name())

	ev, err = p.GetIntent(context.Background(), "test 11", sess)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback())
}

func TestRegexProvider_MappingEntity(t *testing.T) {
	def := &domain.IntentDefinition{
		EventDefinition: domain.EventDefinition{
			Name: "Founder",
			OutContexts: []domain.ContextDefinition{{
				Name: "Founder",
				Parameters: []domain.ContextParameter{
					{Name: "name", TextFragment: "Gwendal", Entity: domain.EntityRef(founders())},
				},
			}},
		},
		TrainingSentences: []string{"Give me some information about Gwendal"},
	}
	p := newProvider(t, def)
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "Give me some information about gwen", sess)
	require.NoError(t, err)
	require.Equal(t, "Founder", ev.Name())
	v, _ := ev.OutContext("Founder").Value("name")
	assert.Equal(t, "Gwendal", v, "synonyms decode to the reference value")

	ev, err = p.GetIntent(context.Background(), "Give me some information about Bob", sess)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback())
}

func TestRegexProvider_CompositeEntity(t *testing.T) {
	founder := founders()
	knows := &domain.EntityDefinition{
		Name: "FounderCity",
		Kind: domain.EntityComposite,
		Composite: []domain.CompositeEntry{{
			Fragments: []domain.EntityFragment{
				{Entity: &domain.EntityReference{Custom: founder.Name, Definition: founder}},
				{Text: " knows "},
				{Entity: &domain.EntityReference{Base: domain.BaseCity}},
			},
		}},
	}
	def := &domain.IntentDefinition{
		EventDefinition: domain.EventDefinition{
			Name: "Knows",
			OutContexts: []domain.ContextDefinition{{
				Name: "Knows",
				Parameters: []domain.ContextParameter{
					{Name: "fact", TextFragment: "Jordi knows Barcelona", Entity: domain.EntityRef(knows)},
				},
			}},
		},
		TrainingSentences: []string{"Does Jordi knows Barcelona?"},
	}
	p := newProvider(t, def)
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "Does Jordi knows Barcelona?", sess)
	require.NoError(t, err)
	require.Equal(t, "Knows", ev.Name())
	v, _ := ev.OutContext("Knows").Value("fact")
	assert.Equal(t, map[string]any{"XatkitFounder": "Jordi", "city": "Barcelona"}, v)

	// The nested mapping entity was registered with the composite.
	_, ok := p.Entity("XatkitFounder")
	assert.True(t, ok)
}

func TestRegexProvider_CompositeWithNumberAlias(t *testing.T) {
	class := &domain.EntityDefinition{
		Name:    "Class",
		Kind:    domain.EntityMapping,
		Entries: []domain.MappingEntry{{Value: "Person", Synonyms: []string{"Human"}}},
	}
	described := &domain.EntityDefinition{
		Name: "Described",
		Kind: domain.EntityComposite,
		Composite: []domain.CompositeEntry{{
			Fragments: []domain.EntityFragment{
				{Entity: &domain.EntityReference{Custom: class.Name, Definition: class}},
				{Text: " with "},
				{Entity: &domain.EntityReference{Base: domain.BaseNumber}, Alias: "age"},
			},
		}},
	}
	def := &domain.IntentDefinition{
		EventDefinition: domain.EventDefinition{
			Name: "Describe",
			OutContexts: []domain.ContextDefinition{{
				Name: "Describe",
				Parameters: []domain.ContextParameter{
					{Name: "thing", TextFragment: "Person with 10", Entity: domain.EntityRef(described)},
				},
			}},
		},
		TrainingSentences: []string{"this is a Person with 10"},
	}
	p := newProvider(t, def)
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "this is a Human with 42", sess)
	require.NoError(t, err)
	require.Equal(t, "Describe", ev.Name())
	v, _ := ev.OutContext("Describe").Value("thing")
	assert.Equal(t, map[string]any{"Class": "Person", "age": 42.0}, v)
}

func TestRegexProvider_EmptyRegistryFallsBack(t *testing.T) {
	p := newProvider(t)
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "anything", sess)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback())
	assert.Equal(t, domain.DefaultFallbackIntentName, ev.Name())
	assert.Zero(t, ev.Confidence)
}

func TestRegexProvider_InContexts(t *testing.T) {
	def := greetings()
	def.InContexts = []string{"Greeter"}
	p := newProvider(t, def)
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "Greetings", sess)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback(), "in-context is not live")

	// Lifespan 2 survives the decrement at the start of the next turn.
	require.NoError(t, sess.Contexts().SetContext("Greeter", 2))
	ev, err = p.GetIntent(context.Background(), "Greetings", sess)
	require.NoError(t, err)
	assert.Equal(t, "Greetings", ev.Name())
}

func TestRegexProvider_InContextWinsOverPlainIntent(t *testing.T) {
	plain := &domain.IntentDefinition{
		EventDefinition:   domain.EventDefinition{Name: "Plain"},
		TrainingSentences: []string{"yes"},
	}
	scoped := &domain.IntentDefinition{
		EventDefinition:   domain.EventDefinition{Name: "Scoped"},
		TrainingSentences: []string{"yes"},
		InContexts:        []string{"Question"},
	}
	p := newProvider(t, plain, scoped)
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "yes", sess)
	require.NoError(t, err)
	assert.Equal(t, "Plain", ev.Name())

	require.NoError(t, sess.Contexts().SetContext("Question", 3))
	ev, err = p.GetIntent(context.Background(), "yes", sess)
	require.NoError(t, err)
	assert.Equal(t, "Scoped", ev.Name())
}

func TestRegexProvider_EnabledIntentWinsTies(t *testing.T) {
	first := &domain.IntentDefinition{
		EventDefinition:   domain.EventDefinition{Name: "First"},
		TrainingSentences: []string{"ok"},
	}
	second := &domain.IntentDefinition{
		EventDefinition:   domain.EventDefinition{Name: "Second"},
		TrainingSentences: []string{"ok"},
	}
	p := newProvider(t, first, second)
	sess := newSession(t, p)

	ev, err := p.GetIntent(context.Background(), "ok", sess)
	require.NoError(t, err)
	assert.Equal(t, "First", ev.Name(), "registration order breaks ties")

	require.NoError(t, sess.Contexts().SetContext(domain.EnableContextPrefix+"Second", domain.EnableContextLifespan))
	ev, err = p.GetIntent(context.Background(), "ok", sess)
	require.NoError(t, err)
	assert.Equal(t, "Second", ev.Name())
}

func TestRegexProvider_FollowUpIntent(t *testing.T) {
	confirm := &domain.IntentDefinition{
		EventDefinition:   domain.EventDefinition{Name: "Confirm"},
		TrainingSentences: []string{"yes"},
		FollowUpOf:        "Hello",
	}
	p := newProvider(t, hello(), confirm)
	sess := newSession(t, p)
	ctx := context.Background()

	ev, err := p.GetIntent(ctx, "yes", sess)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback(), "follow-up needs its parent first")

	ev, err = p.GetIntent(ctx, "Hello Bob", sess)
	require.NoError(t, err)
	require.Equal(t, "Hello", ev.Name())
	assert.NotNil(t, ev.OutContext("Hello"+domain.FollowContextSuffix))
	assert.Equal(t, domain.FollowContextLifespan, sess.Contexts().LifespanCount("Hello_follow"))

	ev, err = p.GetIntent(ctx, "yes", sess)
	require.NoError(t, err)
	assert.Equal(t, "Confirm", ev.Name())
}

func TestRegexProvider_LifespanCountdown(t *testing.T) {
	def := greetings()
	def.OutContexts = []domain.ContextDefinition{{Name: "Short", Lifespan: 1}}
	p := newProvider(t, def)
	sess := newSession(t, p)
	ctx := context.Background()

	_, err := p.GetIntent(ctx, "Greetings", sess)
	require.NoError(t, err)
	assert.True(t, sess.Contexts().HasContext("Short"), "readable during the turn that set it")

	_, err = p.GetIntent(ctx, "something else", sess)
	require.NoError(t, err)
	assert.False(t, sess.Contexts().HasContext("Short"))
}

func TestRegexProvider_InvalidArguments(t *testing.T) {
	p := newProvider(t, greetings())
	sess := newSession(t, p)
	ctx := context.Background()

	_, err := p.GetIntent(ctx, "", sess)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = p.GetIntent(ctx, "Hi", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.ErrorIs(t, p.RegisterIntentDefinition(nil), domain.ErrInvalidArgument)
	assert.ErrorIs(t, p.RegisterEntityDefinition(nil), domain.ErrInvalidArgument)
	assert.ErrorIs(t, p.DeleteIntentDefinition(nil), domain.ErrInvalidArgument)
	_, err = p.CreateSession("")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRegexProvider_Shutdown(t *testing.T) {
	p := newProvider(t, greetings())
	sess := newSession(t, p)
	ctx := context.Background()

	require.NoError(t, p.Shutdown(ctx))
	require.NoError(t, p.Shutdown(ctx), "shutdown is idempotent")
	assert.True(t, p.IsShutdown())

	_, err := p.GetIntent(ctx, "Hi", sess)
	assert.ErrorIs(t, err, domain.ErrProviderShutdown)
	assert.ErrorIs(t, p.RegisterIntentDefinition(hello()), domain.ErrProviderShutdown)
	assert.ErrorIs(t, p.TrainMLEngine(ctx), domain.ErrProviderShutdown)
	_, err = p.CreateSession("other")
	assert.ErrorIs(t, err, domain.ErrProviderShutdown)
}

func TestRegexProvider_DeleteAndRetrain(t *testing.T) {
	def := greetings()
	p := newProvider(t, def, hello())
	sess := newSession(t, p)
	ctx := context.Background()

	require.NoError(t, p.DeleteIntentDefinition(def))
	require.NoError(t, p.DeleteIntentDefinition(def), "deleting twice is a no-op")
	require.NoError(t, p.TrainMLEngine(ctx))

	ev, err := p.GetIntent(ctx, "Greetings", sess)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback())

	ev, err = p.GetIntent(ctx, "Hello there", sess)
	require.NoError(t, err)
	assert.Equal(t, "Hello", ev.Name(), "retraining keeps the other intents")
}

func TestRegexProvider_DeferredEntity(t *testing.T) {
	def := &domain.IntentDefinition{
		EventDefinition: domain.EventDefinition{
			Name: "Founder",
			OutContexts: []domain.ContextDefinition{{
				Name: "Founder",
				Parameters: []domain.ContextParameter{
					{Name: "name", TextFragment: "Jordi", Entity: domain.CustomRef("XatkitFounder")},
				},
			}},
		},
		TrainingSentences: []string{"who is Jordi"},
	}
	p := recognition.NewRegexProvider()
	require.NoError(t, p.RegisterIntentDefinition(def))
	err := p.TrainMLEngine(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnknownEntity)

	sess := newSession(t, p)
	ev, err := p.GetIntent(context.Background(), "who is Jordi", sess)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback())

	require.NoError(t, p.RegisterEntityDefinition(founders()))
	require.NoError(t, p.TrainMLEngine(context.Background()))
	ev, err = p.GetIntent(context.Background(), "who is gwen", sess)
	require.NoError(t, err)
	assert.Equal(t, "Founder", ev.Name())
}

func TestRegexProvider_SessionConfiguration(t *testing.T) {
	p := recognition.NewRegexProvider(recognition.WithConfig(recognition.Config{
		VariableTimeout: 10 * time.Second,
		LifespanPolicy:  session.LifespanOverwrite,
	}))
	sess := newSession(t, p)
	assert.Equal(t, 10*time.Second, sess.Contexts().VariableTimeout())

	require.NoError(t, sess.Contexts().SetContext("c", 5))
	require.NoError(t, sess.Contexts().SetContext("c", 2))
	assert.Equal(t, 2, sess.Contexts().LifespanCount("c"))
}

var _ recognition.Provider = (*recognition.RegexProvider)(nil)
