package dsl

import (
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/platforms/chat"
)

type pendingTransition struct {
	guard  domain.Guard
	target string
}

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	name        string
	transitions []pendingTransition
	actions     []domain.ActionCall
	stopOnError bool
	builder     *Builder
}

// Do appends an action call to the state body.
func (s *StateBuilder) Do(platform, action string, args ...any) *StateBuilder {
	s.actions = append(s.actions, domain.ActionCall{Platform: platform, Action: action, Args: args})
	return s
}

// Reply appends a chat reply. The text may reference {$context.variable}.
func (s *StateBuilder) Reply(text string) *StateBuilder {
	return s.Do(chat.Name, chat.Reply, text)
}

// StopOnError skips the remaining actions once one fails.
func (s *StateBuilder) StopOnError() *StateBuilder {
	s.stopOnError = true
	return s
}

// On adds a transition taken when the named intent or event is received.
func (s *StateBuilder) On(event, target string) *StateBuilder {
	return s.When(domain.When(event), target)
}

// When adds a transition guarded by an arbitrary guard.
func (s *StateBuilder) When(guard domain.Guard, target string) *StateBuilder {
	s.transitions = append(s.transitions, pendingTransition{guard: guard, target: target})
	return s
}

// Branch adds a transition taken when event is received and the expression holds.
func (s *StateBuilder) Branch(event, condition, target string) *StateBuilder {
	return s.When(domain.AllOf(domain.When(event), domain.Condition{Expr: condition}), target)
}

// Go adds the wildcard transition: the state is left as soon as its body ran.
func (s *StateBuilder) Go(target string) *StateBuilder {
	return s.When(nil, target)
}

// State continues with another state of the same builder.
func (s *StateBuilder) State(name string) *StateBuilder {
	return s.builder.State(name)
}
