// Package recognition turns raw user text into recognized intents.
//
// Provider is the capability interface every backend implements. RegexProvider is
// the default, in-process implementation; package llm provides a remote one.
package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
)

// Provider is an intent recognition backend.
type Provider interface {
	RegisterIntentDefinition(def *domain.IntentDefinition) error
	DeleteIntentDefinition(def *domain.IntentDefinition) error
	RegisterEntityDefinition(def *domain.EntityDefinition) error
	DeleteEntityDefinition(def *domain.EntityDefinition) error

	// TrainMLEngine commits the registered definitions into a matchable form.
	// It is safe to call repeatedly.
	TrainMLEngine(ctx context.Context) error

	// CreateSession builds a session bound to the provider's configuration.
	CreateSession(id string) (*session.Session, error)

	// GetIntent consumes one turn of the session's contexts, then matches text.
	// It returns an instance of domain.DefaultFallbackIntent when nothing matches.
	GetIntent(ctx context.Context, text string, sess *session.Session) (*domain.EventInstance, error)

	Shutdown(ctx context.Context) error
	IsShutdown() bool
}

// Config holds the session policy applied by CreateSession.
type Config struct {
	VariableTimeout time.Duration
	LifespanPolicy  session.LifespanPolicy
}

// DefaultConfig returns the default recognition configuration.
func DefaultConfig() Config {
	return Config{
		VariableTimeout: session.DefaultVariableTimeout,
		LifespanPolicy:  session.LifespanMax,
	}
}

// Definitions is the registered-definitions table shared by provider implementations.
// It is safe for concurrent use, so definitions can be hot-reloaded while matching.
type Definitions struct {
	mu       sync.RWMutex
	intents  []*domain.IntentDefinition
	entities map[string]*domain.EntityDefinition

	shutdown atomic.Bool
	config   Config
	logger   *slog.Logger
}

// NewDefinitions creates an empty table.
func NewDefinitions(cfg Config, logger *slog.Logger) *Definitions {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Definitions{
		entities: make(map[string]*domain.EntityDefinition),
		config:   cfg,
		logger:   logger,
	}
}

// Logger returns the table's logger.
func (d *Definitions) Logger() *slog.Logger {
	return d.logger
}

func (d *Definitions) guard(what string, nilArg bool) error {
	if d.shutdown.Load() {
		return fmt.Errorf("%w: cannot %s", domain.ErrProviderShutdown, what)
	}
	if nilArg {
		return fmt.Errorf("%w: cannot %s: definition is nil", domain.ErrInvalidArgument, what)
	}
	return nil
}

// RegisterIntentDefinition adds an intent. Registering an existing name is a no-op.
// Custom entities carried by its parameters are registered on demand.
func (d *Definitions) RegisterIntentDefinition(def *domain.IntentDefinition) error {
	if err := d.guard("register intent", def == nil); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ctxDef := range def.OutContexts {
		for _, p := range ctxDef.Parameters {
			if p.Entity.Definition != nil {
				d.registerEntityLocked(p.Entity.Definition)
			}
		}
	}
	if d.intentIndexLocked(def.Name) >= 0 {
		d.logger.Debug("Intent already registered", "intent", def.Name)
		return nil
	}
	d.intents = append(d.intents, def)
	return nil
}

// DeleteIntentDefinition removes an intent. Deleting an unknown intent is a no-op.
func (d *Definitions) DeleteIntentDefinition(def *domain.IntentDefinition) error {
	if err := d.guard("delete intent", def == nil); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.intentIndexLocked(def.Name); i >= 0 {
		d.intents = slices.Delete(d.intents, i, i+1)
	}
	return nil
}

// RegisterEntityDefinition adds an entity and, for composites, the entities it references.
func (d *Definitions) RegisterEntityDefinition(def *domain.EntityDefinition) error {
	if err := d.guard("register entity", def == nil); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerEntityLocked(def)
	return nil
}

func (d *Definitions) registerEntityLocked(def *domain.EntityDefinition) {
	if _, ok := d.entities[def.Name]; ok {
		return
	}
	d.entities[def.Name] = def
	for _, ref := range def.ReferencedEntities() {
		if ref.Definition != nil {
			d.registerEntityLocked(ref.Definition)
		}
	}
}

// DeleteEntityDefinition removes an entity. Intents using it fail the next training.
func (d *Definitions) DeleteEntityDefinition(def *domain.EntityDefinition) error {
	if err := d.guard("delete entity", def == nil); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entities, def.Name)
	return nil
}

func (d *Definitions) intentIndexLocked(name string) int {
	return slices.IndexFunc(d.intents, func(i *domain.IntentDefinition) bool { return i.Name == name })
}

// Intents returns the registered intents in registration order.
func (d *Definitions) Intents() []*domain.IntentDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.intents)
}

// Entity returns a registered entity.
func (d *Definitions) Entity(name string) (*domain.EntityDefinition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entities[name]
	return e, ok
}

// HasFollowUps reports whether any registered intent follows up on the named intent.
func (d *Definitions) HasFollowUps(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.ContainsFunc(d.intents, func(i *domain.IntentDefinition) bool { return i.FollowUpOf == name })
}

// CreateSession builds a session applying the configured context policy.
func (d *Definitions) CreateSession(id string) (*session.Session, error) {
	if d.shutdown.Load() {
		return nil, fmt.Errorf("%w: cannot create session", domain.ErrProviderShutdown)
	}
	store := session.NewContextStore(
		session.WithVariableTimeout(d.config.VariableTimeout),
		session.WithLifespanPolicy(d.config.LifespanPolicy),
	)
	return session.New(id, store)
}

// BeginTurn validates GetIntent arguments and consumes one turn of the session's contexts.
func (d *Definitions) BeginTurn(text string, sess *session.Session) error {
	if d.shutdown.Load() {
		return fmt.Errorf("%w: cannot recognize intent", domain.ErrProviderShutdown)
	}
	if text == "" {
		return fmt.Errorf("%w: input text is empty", domain.ErrInvalidArgument)
	}
	if sess == nil {
		return fmt.Errorf("%w: session is nil", domain.ErrInvalidArgument)
	}
	sess.Contexts().DecrementLifespanCounts()
	return nil
}

// IsShutdown reports whether Shutdown was called.
func (d *Definitions) IsShutdown() bool {
	return d.shutdown.Load()
}

// MarkShutdown flags the table as shut down. It returns false if it already was.
func (d *Definitions) MarkShutdown() bool {
	return d.shutdown.CompareAndSwap(false, true)
}
