package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/aretw0/parley/pkg/statemachine"
)

// Engine runs the execution graph: it resolves transitions for recognized events,
// moves sessions between states and invokes the actions of the entered states.
// It does not lock sessions; callers serialize turns per session.
type Engine struct {
	resolver *statemachine.Resolver
	registry *registry.Registry
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine over the resolver's graph, invoking actions from reg.
func NewEngine(resolver *statemachine.Resolver, reg *registry.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		resolver: resolver,
		registry: reg,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the execution graph.
func (e *Engine) Graph() *domain.Graph {
	return e.resolver.Graph()
}

// InitSession moves a fresh session into the Init state and runs its actions.
// A session that already has a state is left untouched.
func (e *Engine) InitSession(ctx context.Context, sess *session.Session) (*Turn, error) {
	if sess == nil {
		return nil, fmt.Errorf("%w: session is nil", domain.ErrInvalidArgument)
	}
	turn := &Turn{SessionID: sess.ID()}
	if sess.State() != nil {
		turn.From = sess.State().Name
		return turn, nil
	}
	start := e.Graph().InitState()
	if start == nil {
		return turn, domain.NewConfigurationError("", "graph has no %s state", domain.InitStateName)
	}

	e.logger.Debug("Initializing session", "session_id", sess.ID())
	e.emitTurn(ctx, e.hooks.OnSessionInit, domain.EventSessionInit, sess.ID(), "", start.Name, nil)
	err := e.enter(ctx, sess, start, turn)
	turn.From = turn.To()
	return turn, err
}

// Handle resolves ev against the session's current state and enters the target.
// When no transition matches, the fallback state's actions run without moving
// and the returned error wraps domain.ErrNoTransition.
func (e *Engine) Handle(ctx context.Context, sess *session.Session, ev *domain.EventInstance) (*Turn, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: event is nil", domain.ErrInvalidArgument)
	}
	turn, err := e.InitSession(ctx, sess)
	if err != nil {
		return turn, err
	}
	turn.Event = ev
	current := sess.State()

	// Recognizers already wrote these; re-applying keeps pre-built events consistent.
	for i := range ev.OutContextInstances {
		if err := sess.Contexts().SetContextInstance(&ev.OutContextInstances[i]); err != nil {
			return turn, fmt.Errorf("failed to apply out-context: %w", err)
		}
	}

	e.emitTurn(ctx, e.hooks.OnIntentRecognized, domain.EventIntentRecognized, sess.ID(), current.Name, "", ev)

	t, err := e.resolver.Resolve(current, statemachine.Env{
		Event:     ev,
		Contexts:  sess.Contexts().All(),
		Variables: sess.Variables(),
	})
	if errors.Is(err, domain.ErrNoTransition) {
		e.logger.Debug("No transition matched",
			"session_id", sess.ID(),
			"state", current.Name,
			"event", ev.Name(),
		)
		e.emitTurn(ctx, e.hooks.OnNoMatch, domain.EventNoMatch, sess.ID(), current.Name, "", ev)
		if fb := e.Graph().FallbackState(); fb != nil {
			e.runActions(ctx, sess, fb, turn)
		}
		return turn, fmt.Errorf("state '%s' cannot handle '%s': %w", current.Name, ev.Name(), err)
	}
	if err != nil {
		return turn, err
	}

	target := e.Graph().State(t.Target)
	if target == nil {
		return turn, domain.NewConfigurationError(current.Name, "transition target %d is out of range", t.Target)
	}
	turn.Matched = true
	e.emitTurn(ctx, e.hooks.OnTransition, domain.EventTransition, sess.ID(), current.Name, target.Name, ev)
	return turn, e.enter(ctx, sess, target, turn)
}

// enter moves the session into state, runs its actions and keeps following
// wildcard transitions until a state waits for input or a state repeats.
func (e *Engine) enter(ctx context.Context, sess *session.Session, state *domain.State, turn *Turn) error {
	visited := make(map[domain.StateID]bool)
	for current := state; current != nil; {
		sess.SetState(current)
		visited[current.ID] = true
		turn.Path = append(turn.Path, current.Name)
		e.runActions(ctx, sess, current, turn)

		next, err := e.resolver.WildcardTarget(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if visited[next.ID] {
			e.logger.Warn("Wildcard cycle, waiting for input",
				"session_id", sess.ID(),
				"state", current.Name,
				"target", next.Name,
			)
			return nil
		}
		e.emitTurn(ctx, e.hooks.OnTransition, domain.EventTransition, sess.ID(), current.Name, next.Name, turn.Event)
		current = next
	}
	return nil
}

func (e *Engine) runActions(ctx context.Context, sess *session.Session, state *domain.State, turn *Turn) {
	for _, call := range state.Actions {
		outcome := e.invoke(ctx, sess, state, call)
		turn.Actions = append(turn.Actions, outcome)
		if outcome.Result.IsError() && state.StopOnError {
			e.logger.Debug("Skipping remaining actions", "session_id", sess.ID(), "state", state.Name)
			return
		}
	}
}

func (e *Engine) invoke(ctx context.Context, sess *session.Session, state *domain.State, call domain.ActionCall) ActionOutcome {
	out := ActionOutcome{State: state.Name, Call: call}
	args, err := resolveArgs(sess, call.Args)
	out.Args = args
	if err != nil {
		out.Result = failed(err)
		e.logActionFailure(sess, out)
		return out
	}

	e.emitAction(ctx, e.hooks.OnActionInvoke, domain.EventActionInvoke, sess.ID(), out)
	a, err := e.registry.Create(call, sess, args)
	if err != nil {
		out.Result = failed(err)
	} else {
		out.Result = a.Invoke(ctx)
	}
	if out.Result.IsError() {
		e.logActionFailure(sess, out)
	}
	e.emitAction(ctx, e.hooks.OnActionReturn, domain.EventActionReturn, sess.ID(), out)
	return out
}

func (e *Engine) logActionFailure(sess *session.Session, out ActionOutcome) {
	e.logger.Warn("Action failed",
		"session_id", sess.ID(),
		"state", out.State,
		"platform", out.Call.Platform,
		"action", out.Call.Action,
		"err", out.Result.Err,
	)
}

// resolveArgs fills {$context.variable} templates in string arguments.
func resolveArgs(sess *session.Session, args []any) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, arg := range args {
		s, ok := arg.(string)
		if !ok {
			out[i] = arg
			continue
		}
		filled, err := sess.Contexts().FillContextValues(s)
		if err != nil {
			return out, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = filled
	}
	return out, nil
}

func (e *Engine) emitTurn(ctx context.Context, hook func(context.Context, *domain.TurnEvent), typ domain.EventType, sessionID, from, to string, ev *domain.EventInstance) {
	if hook == nil {
		return
	}
	evt := &domain.TurnEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, SessionID: sessionID},
		From:      from,
		To:        to,
	}
	if ev != nil {
		evt.Event = ev.Name()
		evt.Input = ev.MatchedInput
	}
	hook(ctx, evt)
}

func (e *Engine) emitAction(ctx context.Context, hook func(context.Context, *domain.ActionEvent), typ domain.EventType, sessionID string, out ActionOutcome) {
	if hook == nil {
		return
	}
	evt := &domain.ActionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, SessionID: sessionID},
		State:     out.State,
		Platform:  out.Call.Platform,
		Action:    out.Call.Action,
		Args:      out.Args,
	}
	if out.Result != nil && typ == domain.EventActionReturn {
		evt.Output = out.Result.Result
		evt.Duration = out.Result.ExecutionTime
		evt.IsError = out.Result.IsError()
		if evt.IsError {
			evt.Output = out.Result.Err.Error()
		}
	}
	hook(ctx, evt)
}

// failed records an error raised before the action could run.
func failed(err error) *domain.ActionResult {
	res, _ := domain.NewActionResult(nil, err, 0) // zero is always a valid duration
	return res
}
