/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically constructing bots.

It allows developers to define intents and execution graphs using a type-safe, fluent builder
pattern instead of relying on external YAML files. This is particularly useful for unit testing
and for bots generated from code.

Example usage:

	b := dsl.New("greeter")

	b.Intent("Greetings").
		Train("Hello NAME", "Hi NAME").
		Param("Greetings", "name", "NAME", domain.BaseRef(domain.BaseAny))

	b.Init().On("Greetings", "Greeted")
	b.State("Greeted").
		Reply("Hi {$Greetings.name}!").
		Go(domain.InitStateName)
	b.Fallback().Reply("Sorry, I did not get that")

	bot, err := b.Build()
	// ... pass bot to parley.New(...)
*/
package dsl
