// Package core provides general purpose actions: clock, identifiers and session variables.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/google/uuid"
)

// Name is the platform name used in action calls.
const Name = "Core"

// Platform provides the core actions.
type Platform struct {
	now func() time.Time
}

// Option configures the Platform.
type Option func(*Platform)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Platform) {
		p.now = now
	}
}

// New creates the platform.
func New(opts ...Option) *Platform {
	p := &Platform{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements action.Platform.
func (p *Platform) Name() string { return Name }

// Shutdown implements action.Platform; there is nothing to release.
func (p *Platform) Shutdown(ctx context.Context) error { return nil }

// Actions implements registry.Platform.
func (p *Platform) Actions() map[string]registry.Handler {
	return map[string]registry.Handler{
		"GetTime":   p.getTime,
		"GetDate":   p.getDate,
		"Store":     store,
		"StoreList": storeList,
		"Uuid":      newUUID,
	}
}

// getTime formats the current time, HH:mm:ss unless a Go layout is given.
func (p *Platform) getTime(ctx context.Context, sess *session.Session, args []any) (any, error) {
	return p.format(args, time.TimeOnly)
}

// getDate formats the current date, yyyy-MM-dd unless a Go layout is given.
func (p *Platform) getDate(ctx context.Context, sess *session.Session, args []any) (any, error) {
	return p.format(args, time.DateOnly)
}

func (p *Platform) format(args []any, layout string) (any, error) {
	if len(args) > 0 {
		s, ok := args[0].(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("layout must be a non-empty string, got %v", args[0])
		}
		layout = s
	}
	return p.now().Format(layout), nil
}

func keyValue(args []any) (string, any, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("expected key and value, got %d arguments", len(args))
	}
	key, ok := args[0].(string)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("key must be a non-empty string")
	}
	return key, args[1], nil
}

func store(ctx context.Context, sess *session.Session, args []any) (any, error) {
	key, value, err := keyValue(args)
	if err != nil {
		return nil, err
	}
	sess.Store(key, value)
	return value, nil
}

func storeList(ctx context.Context, sess *session.Session, args []any) (any, error) {
	key, value, err := keyValue(args)
	if err != nil {
		return nil, err
	}
	sess.StoreList(key, value)
	v, _ := sess.Get(key)
	return v, nil
}

func newUUID(ctx context.Context, sess *session.Session, args []any) (any, error) {
	return uuid.NewString(), nil
}
