// Package validator reports structural problems of a bot that compile cleanly
// but are likely mistakes.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Kind classifies a finding.
type Kind string

const (
	UnreachableState Kind = "unreachable_state"
	UnusedEvent      Kind = "unused_event"
	UnknownAction    Kind = "unknown_action"
)

// Finding is one warning about the bot.
type Finding struct {
	Kind    Kind
	Subject string
	Message string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// ActionChecker reports whether an action call can be served.
// *registry.Registry satisfies it.
type ActionChecker interface {
	Has(call domain.ActionCall) bool
}

// Check inspects bot. Actions are only checked when actions is not nil.
// Findings are ordered by kind, then by declaration order.
func Check(bot *domain.Bot, actions ActionChecker) []Finding {
	if bot == nil || bot.Graph == nil {
		return nil
	}
	var out []Finding
	out = append(out, unreachable(bot.Graph)...)
	out = append(out, unusedEvents(bot)...)
	if actions != nil {
		out = append(out, unknownActions(bot.Graph, actions)...)
	}
	return out
}

// unreachable walks the graph from Init and from the fallback state, which the
// runtime enters on its own.
func unreachable(g *domain.Graph) []Finding {
	visited := make([]bool, len(g.States))
	var queue []domain.StateID
	for _, root := range []domain.StateID{g.Init, g.Fallback} {
		if g.State(root) != nil && !visited[root] {
			visited[root] = true
			queue = append(queue, root)
		}
	}
	for len(queue) > 0 {
		s := g.State(queue[0])
		queue = queue[1:]
		for _, t := range s.Transitions {
			if g.State(t.Target) != nil && !visited[t.Target] {
				visited[t.Target] = true
				queue = append(queue, t.Target)
			}
		}
	}

	var out []Finding
	for i, ok := range visited {
		if ok {
			continue
		}
		name := g.States[i].Name
		out = append(out, Finding{
			Kind:    UnreachableState,
			Subject: name,
			Message: fmt.Sprintf("state '%s' cannot be reached from %s", name, domain.InitStateName),
		})
	}
	return out
}

// unusedEvents lists intents and events no transition guard refers to.
// Free-form conditions count as a reference when they mention the name.
func unusedEvents(bot *domain.Bot) []Finding {
	used := make(map[string]bool)
	var conditions []string
	for _, s := range bot.Graph.States {
		for _, t := range s.Transitions {
			if t.Guard == nil {
				continue
			}
			for _, name := range domain.AccessedEvents(t.Guard) {
				used[name] = true
			}
			collectConditions(t.Guard, &conditions)
		}
	}
	mentioned := func(name string) bool {
		return used[name] || slices.ContainsFunc(conditions, func(expr string) bool {
			return strings.Contains(expr, name)
		})
	}

	var names []string
	for _, i := range bot.Intents {
		names = append(names, i.Name)
	}
	for _, e := range bot.Events {
		names = append(names, e.Name)
	}
	var out []Finding
	for _, name := range names {
		if mentioned(name) {
			continue
		}
		out = append(out, Finding{
			Kind:    UnusedEvent,
			Subject: name,
			Message: fmt.Sprintf("'%s' is declared but no transition uses it", name),
		})
	}
	return out
}

func collectConditions(g domain.Guard, out *[]string) {
	switch n := g.(type) {
	case domain.Condition:
		*out = append(*out, n.Expr)
	case domain.And:
		for _, t := range n.Terms {
			collectConditions(t, out)
		}
	case domain.Or:
		for _, t := range n.Terms {
			collectConditions(t, out)
		}
	case domain.Not:
		collectConditions(n.Term, out)
	}
}

func unknownActions(g *domain.Graph, actions ActionChecker) []Finding {
	var out []Finding
	for _, s := range g.States {
		for _, call := range s.Actions {
			if actions.Has(call) {
				continue
			}
			ref := call.Platform + "." + call.Action
			out = append(out, Finding{
				Kind:    UnknownAction,
				Subject: ref,
				Message: fmt.Sprintf("state '%s' calls '%s', which is not registered", s.Name, ref),
			})
		}
	}
	return out
}
