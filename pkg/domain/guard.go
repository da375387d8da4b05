package domain

import (
	"fmt"
	"strings"
)

// Guard is a boolean expression tree attached to a transition.
// A nil Guard on a Transition denotes a wildcard.
type Guard interface {
	guard()
	String() string
}

// IntentEquals matches when the incoming event has the named definition.
type IntentEquals struct {
	Name string
}

// And matches when every term matches.
type And struct {
	Terms []Guard
}

// Or matches when at least one term matches.
type Or struct {
	Terms []Guard
}

// Not negates its term.
type Not struct {
	Term Guard
}

// Literal is a constant guard.
type Literal struct {
	Value bool
}

// Condition is a boolean expression evaluated against the turn variables
// (intent, input, context, session).
type Condition struct {
	Expr string
}

func (IntentEquals) guard() {}
func (And) guard()          {}
func (Or) guard()           {}
func (Not) guard()          {}
func (Literal) guard()      {}
func (Condition) guard()    {}

func (g IntentEquals) String() string { return "intent == " + g.Name }
func (g And) String() string          { return joinGuards(g.Terms, " && ") }
func (g Or) String() string           { return joinGuards(g.Terms, " || ") }
func (g Not) String() string          { return fmt.Sprintf("!(%s)", guardString(g.Term)) }
func (g Literal) String() string      { return fmt.Sprintf("%t", g.Value) }
func (g Condition) String() string    { return g.Expr }

func joinGuards(terms []Guard, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = guardString(t)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func guardString(g Guard) string {
	if g == nil {
		return "*"
	}
	return g.String()
}

// When builds an IntentEquals guard.
func When(name string) Guard {
	return IntentEquals{Name: name}
}

// AllOf builds an And guard.
func AllOf(terms ...Guard) Guard {
	return And{Terms: terms}
}

// AnyOf builds an Or guard.
func AnyOf(terms ...Guard) Guard {
	return Or{Terms: terms}
}

// AccessedEvents returns every event name referenced anywhere in the guard tree,
// in first-seen order without duplicates.
func AccessedEvents(g Guard) []string {
	seen := make(map[string]bool)
	var names []string
	var walk func(Guard)
	walk = func(g Guard) {
		switch n := g.(type) {
		case IntentEquals:
			if !seen[n.Name] {
				seen[n.Name] = true
				names = append(names, n.Name)
			}
		case And:
			for _, t := range n.Terms {
				walk(t)
			}
		case Or:
			for _, t := range n.Terms {
				walk(t)
			}
		case Not:
			walk(n.Term)
		}
	}
	walk(g)
	return names
}
