// Package action wraps platform computations into invocations that never fail loudly:
// errors and panics are captured into a domain.ActionResult.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
)

// Platform is a named bundle of actions. Shutdown releases whatever the platform holds.
type Platform interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// ComputeFunc is the body of an action.
type ComputeFunc func(ctx context.Context) (any, error)

// PanicError carries a value recovered from a panicking action.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("action panicked: %v", e.Value)
}

// Action is one invocation bound to a platform and a session.
type Action struct {
	platform Platform
	session  *session.Session
	name     string
	compute  ComputeFunc
}

// New binds compute to its platform and session. Every argument is required.
func New(platform Platform, sess *session.Session, name string, compute ComputeFunc) (*Action, error) {
	switch {
	case platform == nil:
		return nil, fmt.Errorf("%w: action '%s' has no platform", domain.ErrInvalidArgument, name)
	case sess == nil:
		return nil, fmt.Errorf("%w: action '%s' has no session", domain.ErrInvalidArgument, name)
	case compute == nil:
		return nil, fmt.Errorf("%w: action '%s' has no body", domain.ErrInvalidArgument, name)
	}
	return &Action{platform: platform, session: sess, name: name, compute: compute}, nil
}

// Name returns the action name.
func (a *Action) Name() string {
	return a.name
}

// Platform returns the owning platform.
func (a *Action) Platform() Platform {
	return a.platform
}

// Session returns the session the action runs for.
func (a *Action) Session() *session.Session {
	return a.session
}

// Invoke runs the computation and always returns a result: returned errors and
// panics are recorded in it, along with the elapsed time.
func (a *Action) Invoke(ctx context.Context) (res *domain.ActionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = measure(nil, &PanicError{Value: r}, start)
		}
	}()

	out, err := a.compute(ctx)
	return measure(out, err, start)
}

func measure(out any, err error, start time.Time) *domain.ActionResult {
	res, rerr := domain.NewActionResult(out, err, time.Since(start))
	if rerr != nil {
		res, _ = domain.NewActionResult(out, errors.Join(err, rerr), 0)
	}
	return res
}

// String implements fmt.Stringer.
func (a *Action) String() string {
	return a.platform.Name() + "." + a.name
}
