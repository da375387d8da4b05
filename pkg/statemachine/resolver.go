// Package statemachine resolves transitions of a bot's execution graph.
package statemachine

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Env carries the turn variables guards are evaluated against.
type Env struct {
	Event     *domain.EventInstance
	Contexts  map[string]map[string]any
	Variables map[string]any
}

func (e Env) exprEnv() map[string]any {
	return map[string]any{
		"intent":     e.Event.Name(),
		"input":      e.Event.MatchedInput,
		"confidence": e.Event.Confidence,
		"context":    e.Contexts,
		"session":    e.Variables,
	}
}

// Resolver selects transitions over a read-only graph.
// It is safe for concurrent use.
type Resolver struct {
	graph  *domain.Graph
	logger *slog.Logger

	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithLogger configures a logger for guard evaluation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver over the given graph.
func New(graph *domain.Graph, opts ...Option) *Resolver {
	r := &Resolver{
		graph:    graph,
		logger:   logging.NewNop(),
		programs: make(map[string]*vm.Program),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Graph returns the graph the resolver works on.
func (r *Resolver) Graph() *domain.Graph {
	return r.graph
}

// Resolve returns the first transition of state, in declaration order, whose guard
// accepts the event. It returns domain.ErrNoTransition when none does.
func (r *Resolver) Resolve(state *domain.State, env Env) (*domain.Transition, error) {
	if state == nil || env.Event == nil {
		return nil, fmt.Errorf("%w: state and event are required", domain.ErrInvalidArgument)
	}
	if err := checkWildcard(state); err != nil {
		return nil, err
	}
	for i := range state.Transitions {
		t := &state.Transitions[i]
		if t.IsWildcard() {
			return t, nil
		}
		if r.eval(t.Guard, env) {
			return t, nil
		}
	}
	return nil, domain.ErrNoTransition
}

// WildcardTarget returns the state reachable through the wildcard transition of
// state, or nil when state is nil or has none.
func (r *Resolver) WildcardTarget(state *domain.State) (*domain.State, error) {
	if state == nil {
		return nil, nil
	}
	if err := checkWildcard(state); err != nil {
		return nil, err
	}
	if len(state.Transitions) == 1 && state.Transitions[0].IsWildcard() {
		target := r.graph.State(state.Transitions[0].Target)
		if target == nil {
			return nil, domain.NewConfigurationError(state.Name, "wildcard target %d is out of range", state.Transitions[0].Target)
		}
		return target, nil
	}
	return nil, nil
}

// AllWildcardReachable follows wildcard transitions from state and returns every
// visited state, state included, keyed by name. It stops on the first repeated state.
func (r *Resolver) AllWildcardReachable(state *domain.State) (map[string]*domain.State, error) {
	visited := make(map[string]*domain.State)
	for current := state; current != nil; {
		if _, seen := visited[current.Name]; seen {
			break
		}
		visited[current.Name] = current
		next, err := r.WildcardTarget(current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return visited, nil
}

func checkWildcard(state *domain.State) error {
	if len(state.Transitions) < 2 {
		return nil
	}
	for i := range state.Transitions {
		if state.Transitions[i].IsWildcard() {
			return domain.NewConfigurationError(state.Name,
				"a wildcard transition must be the only transition, found %d transitions", len(state.Transitions))
		}
	}
	return nil
}

func (r *Resolver) eval(g domain.Guard, env Env) bool {
	switch n := g.(type) {
	case nil:
		return true
	case domain.IntentEquals:
		return env.Event.Name() == n.Name
	case domain.And:
		for _, t := range n.Terms {
			if !r.eval(t, env) {
				return false
			}
		}
		return true
	case domain.Or:
		for _, t := range n.Terms {
			if r.eval(t, env) {
				return true
			}
		}
		return false
	case domain.Not:
		return !r.eval(n.Term, env)
	case domain.Literal:
		return n.Value
	case domain.Condition:
		return r.evalCondition(n.Expr, env)
	default:
		r.logger.Warn("Unknown guard node", "type", fmt.Sprintf("%T", g))
		return false
	}
}

func (r *Resolver) evalCondition(src string, env Env) bool {
	program, err := r.program(src)
	if err != nil {
		r.logger.Error("Guard compilation failed", "expr", src, "err", err)
		return false
	}
	out, err := expr.Run(program, env.exprEnv())
	if err != nil {
		r.logger.Error("Guard evaluation failed", "expr", src, "err", err)
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

func (r *Resolver) program(src string) (*vm.Program, error) {
	r.mu.RLock()
	p, ok := r.programs[src]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := CompileCondition(src)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.programs[src] = p
	r.mu.Unlock()
	return p, nil
}

// CompileCondition compiles a Condition guard expression.
func CompileCondition(src string) (*vm.Program, error) {
	return expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
	)
}

// EnabledEvents returns the names of every event referenced by the guards of the
// transitions leaving state, sorted and without duplicates.
func EnabledEvents(state *domain.State) []string {
	if state == nil {
		return nil
	}
	var names []string
	for i := range state.Transitions {
		names = append(names, domain.AccessedEvents(state.Transitions[i].Guard)...)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Validate checks a bot definition for configuration errors: designated states,
// wildcard placement, transition targets, guard references and condition syntax.
func Validate(bot *domain.Bot) error {
	g := bot.Graph
	if g == nil {
		return domain.NewConfigurationError("", "bot '%s' has no execution graph", bot.Name)
	}

	var errs []error
	if g.InitState() == nil {
		errs = append(errs, domain.NewConfigurationError("", "missing '%s' state", domain.InitStateName))
	}
	if g.FallbackState() == nil {
		errs = append(errs, domain.NewConfigurationError("", "missing '%s' state", domain.FallbackStateName))
	}

	known := bot.EventNames()
	for i := range g.States {
		s := &g.States[i]
		if err := checkWildcard(s); err != nil {
			errs = append(errs, err)
		}
		for _, t := range s.Transitions {
			if g.State(t.Target) == nil {
				errs = append(errs, domain.NewConfigurationError(s.Name, "transition target %d is out of range", t.Target))
			}
			for _, name := range domain.AccessedEvents(t.Guard) {
				if !known[name] {
					errs = append(errs, domain.NewConfigurationError(s.Name, "guard references unknown event '%s'", name))
				}
			}
			errs = append(errs, validateConditions(s.Name, t.Guard)...)
		}
	}
	return errors.Join(errs...)
}

func validateConditions(state string, g domain.Guard) []error {
	var errs []error
	switch n := g.(type) {
	case domain.Condition:
		if _, err := CompileCondition(n.Expr); err != nil {
			errs = append(errs, domain.NewConfigurationError(state, "invalid condition '%s': %v", n.Expr, err))
		}
	case domain.And:
		for _, t := range n.Terms {
			errs = append(errs, validateConditions(state, t)...)
		}
	case domain.Or:
		for _, t := range n.Terms {
			errs = append(errs, validateConditions(state, t)...)
		}
	case domain.Not:
		errs = append(errs, validateConditions(state, n.Term)...)
	}
	return errs
}
