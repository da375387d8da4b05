package dsl

import (
	"errors"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/statemachine"
)

// Builder manages the bot construction.
type Builder struct {
	name     string
	states   []*StateBuilder
	byName   map[string]*StateBuilder
	intents  []*IntentBuilder
	events   []*domain.EventDefinition
	entities []*domain.EntityDefinition
}

// New creates a new bot builder.
func New(name string) *Builder {
	return &Builder{
		name:   name,
		byName: make(map[string]*StateBuilder),
	}
}

// State creates a new state in the graph.
// If the state already exists, it returns the existing builder.
func (b *Builder) State(name string) *StateBuilder {
	if sb, ok := b.byName[name]; ok {
		return sb
	}
	sb := &StateBuilder{name: name, builder: b}
	b.states = append(b.states, sb)
	b.byName[name] = sb
	return sb
}

// Init is a shortcut for the Init state.
func (b *Builder) Init() *StateBuilder {
	return b.State(domain.InitStateName)
}

// Fallback is a shortcut for the Default_Fallback state.
func (b *Builder) Fallback() *StateBuilder {
	return b.State(domain.FallbackStateName)
}

// Intent declares an intent.
func (b *Builder) Intent(name string) *IntentBuilder {
	for _, ib := range b.intents {
		if ib.def.Name == name {
			return ib
		}
	}
	ib := &IntentBuilder{def: &domain.IntentDefinition{EventDefinition: domain.EventDefinition{Name: name}}}
	b.intents = append(b.intents, ib)
	return ib
}

// Event declares a non-intent event, sent programmatically by providers.
func (b *Builder) Event(name string, outContexts ...domain.ContextDefinition) *Builder {
	b.events = append(b.events, &domain.EventDefinition{Name: name, OutContexts: outContexts})
	return b
}

// Entity declares a custom entity.
func (b *Builder) Entity(def *domain.EntityDefinition) *Builder {
	b.entities = append(b.entities, def)
	return b
}

// Build compiles the declarations into a validated bot. States are numbered in
// declaration order; transitions to undeclared states are configuration errors.
func (b *Builder) Build() (*domain.Bot, error) {
	g := domain.NewGraph()
	for _, sb := range b.states {
		g.AddState(sb.name)
	}

	var errs []error
	for _, sb := range b.states {
		st, _ := g.StateByName(sb.name)
		for _, t := range sb.transitions {
			target, ok := g.StateByName(t.target)
			if !ok {
				errs = append(errs, domain.NewConfigurationError(sb.name, "transition to undeclared state '%s'", t.target))
				continue
			}
			g.AddTransition(st.ID, t.guard, target.ID)
		}
		for _, call := range sb.actions {
			g.AddAction(st.ID, call)
		}
		st.StopOnError = sb.stopOnError
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	bot := &domain.Bot{
		Name:     b.name,
		Graph:    g,
		Events:   b.events,
		Entities: b.entities,
	}
	for _, ib := range b.intents {
		bot.Intents = append(bot.Intents, ib.def)
	}
	if err := statemachine.Validate(bot); err != nil {
		return nil, err
	}
	return bot, nil
}
