package dsl

import (
	"errors"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
)

func TestBuilder_SimpleBot(t *testing.T) {
	// 1. Build the bot using DSL
	b := New("greeter")

	b.Intent("Greetings").
		Train("Hello NAME").
		Param("Greetings", "name", "NAME", domain.BaseRef(domain.BaseAny))
	b.Intent("Bye").Train("bye").Context("Bye", 1)

	b.Init().
		On("Greetings", "Greeted").
		On("Bye", "End")

	b.State("Greeted").
		Reply("Hi {$Greetings.name}!").
		Go(domain.InitStateName)

	b.State("End").
		Do("Log", "Info", "leaving").
		StopOnError()

	b.Fallback().Reply("Sorry")

	// 2. Compile
	bot, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	// 3. Verify the graph
	g := bot.Graph
	if len(g.States) != 4 {
		t.Fatalf("Expected 4 states, got %d", len(g.States))
	}
	start := g.InitState()
	if start == nil || len(start.Transitions) != 2 {
		t.Fatalf("Expected Init with 2 transitions, got %+v", start)
	}
	if g.State(start.Transitions[0].Target).Name != "Greeted" {
		t.Errorf("Expected first transition to Greeted")
	}

	greeted, _ := g.StateByName("Greeted")
	if !greeted.Transitions[0].IsWildcard() {
		t.Error("Expected Greeted to leave through a wildcard")
	}
	if len(greeted.Actions) != 1 || greeted.Actions[0].Platform != "Chat" {
		t.Errorf("Unexpected actions: %+v", greeted.Actions)
	}

	end, _ := g.StateByName("End")
	if !end.StopOnError {
		t.Error("Expected StopOnError on End")
	}

	// 4. Verify intents
	if len(bot.Intents) != 2 {
		t.Fatalf("Expected 2 intents, got %d", len(bot.Intents))
	}
	greetings := bot.Intents[0]
	if greetings.OutContexts[0].Parameters[0].TextFragment != "NAME" {
		t.Errorf("Unexpected parameter: %+v", greetings.OutContexts[0].Parameters[0])
	}
	if bot.Intents[1].OutContexts[0].Lifespan != 1 {
		t.Errorf("Expected lifespan 1 on Bye")
	}
}

func TestBuilder_UndeclaredTarget(t *testing.T) {
	b := New("broken")
	b.Init().Go("Nowhere")
	b.Fallback()

	_, err := b.Build()
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
}

func TestBuilder_UnknownEvent(t *testing.T) {
	b := New("broken")
	b.Init().On("Ghost", domain.FallbackStateName)
	b.Fallback()

	_, err := b.Build()
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Expected configuration error for unknown event, got %v", err)
	}

	// Declared events are valid guard references.
	b.Event("Ghost")
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
}
