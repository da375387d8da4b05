package dsl

import "github.com/aretw0/parley/pkg/domain"

// IntentBuilder provides a fluent API for configuring an intent.
type IntentBuilder struct {
	def *domain.IntentDefinition
}

// Train adds training sentences.
func (i *IntentBuilder) Train(sentences ...string) *IntentBuilder {
	i.def.TrainingSentences = append(i.def.TrainingSentences, sentences...)
	return i
}

// Requires adds in-contexts that must be live for the intent to match.
func (i *IntentBuilder) Requires(contexts ...string) *IntentBuilder {
	i.def.InContexts = append(i.def.InContexts, contexts...)
	return i
}

// FollowUpOf makes the intent match only right after parent.
func (i *IntentBuilder) FollowUpOf(parent string) *IntentBuilder {
	i.def.FollowUpOf = parent
	return i
}

// Context declares an out-context set when the intent matches.
// A lifespan of zero selects the default.
func (i *IntentBuilder) Context(name string, lifespan int) *IntentBuilder {
	i.context(name).Lifespan = lifespan
	return i
}

// Param declares a parameter of an out-context, extracted where fragment appears
// in the training sentences.
func (i *IntentBuilder) Param(contextName, name, fragment string, entity domain.EntityReference) *IntentBuilder {
	c := i.context(contextName)
	c.Parameters = append(c.Parameters, domain.ContextParameter{Name: name, TextFragment: fragment, Entity: entity})
	return i
}

func (i *IntentBuilder) context(name string) *domain.ContextDefinition {
	for k := range i.def.OutContexts {
		if i.def.OutContexts[k].Name == name {
			return &i.def.OutContexts[k]
		}
	}
	i.def.OutContexts = append(i.def.OutContexts, domain.ContextDefinition{Name: name})
	return &i.def.OutContexts[len(i.def.OutContexts)-1]
}

// Definition returns the underlying intent definition.
func (i *IntentBuilder) Definition() *domain.IntentDefinition {
	return i.def
}
