/*
Package parley is a runtime for intent-driven conversational agents.

A bot is an execution graph of states linked by transitions guarded by intents,
plus the intents, entities and events it understands. The runtime recognizes user
input as intents, keeps per-session contexts with a limited lifespan, moves each
session through the graph and invokes the actions attached to the states it enters.

# Concept

Every user conversation is a Session. Raw text goes to the intent recognition
provider, which consumes one turn of the session's contexts and returns an
EventInstance. The execution service resolves the transition of the session's
current state that accepts the event, enters the target state and runs its actions.
Actions never fail loudly: errors and panics become ActionResult values.

Turns of one session are serialized; turns of different sessions run in parallel on
a fixed pool of workers.

# Usage

	b := dsl.New("greeter")
	b.Intent("Greetings").Train("hello", "hi")
	b.Init().On("Greetings", "Greeted")
	b.State("Greeted").Reply("Hello there!").Go(domain.InitStateName)
	b.Fallback().Reply("Sorry?")

	bot, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	rt, err := parley.New(bot)
	if err != nil {
		log.Fatal(err)
	}
	turn, err := rt.Converse(context.Background(), "session-1", "hi")
	// chat.Replies(turn) == []string{"Hello there!"}

For long-running services, register input providers (console, HTTP, MCP) with
WithProvider and call Start; Stop shuts the providers down before draining the
queued turns.
*/
package parley
