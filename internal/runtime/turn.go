package runtime

import "github.com/aretw0/parley/pkg/domain"

// ActionOutcome records one action executed during a turn.
type ActionOutcome struct {
	State  string
	Call   domain.ActionCall
	Args   []any
	Result *domain.ActionResult
}

// Turn is the observable result of handling one event (or initializing a session).
type Turn struct {
	SessionID string
	Event     *domain.EventInstance
	// From is the state the event was resolved against.
	From string
	// Path lists the states entered, in order, wildcard hops included.
	Path    []string
	Actions []ActionOutcome
	// Matched is false when no transition accepted the event.
	Matched bool
}

// To returns the state the session rests in after the turn.
func (t *Turn) To() string {
	if len(t.Path) == 0 {
		return t.From
	}
	return t.Path[len(t.Path)-1]
}

// Failed returns the outcomes whose action failed.
func (t *Turn) Failed() []ActionOutcome {
	var out []ActionOutcome
	for _, a := range t.Actions {
		if a.Result != nil && a.Result.IsError() {
			out = append(out, a)
		}
	}
	return out
}

// Results returns the successful results of the given platform action, in order.
func (t *Turn) Results(platform, action string) []any {
	var out []any
	for _, a := range t.Actions {
		if a.Call.Platform != platform || a.Call.Action != action {
			continue
		}
		if a.Result != nil && !a.Result.IsError() {
			out = append(out, a.Result.Result)
		}
	}
	return out
}

// Result is delivered once a queued turn has run.
type Result struct {
	Turn *Turn
	Err  error
}
