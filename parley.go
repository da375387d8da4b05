package parley

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/platforms/chat"
	"github.com/aretw0/parley/pkg/platforms/core"
	"github.com/aretw0/parley/pkg/platforms/logplatform"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/provider"
	"github.com/aretw0/parley/pkg/recognition"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/aretw0/parley/pkg/statemachine"
)

// Turn and Result are re-exported for library users.
type (
	Turn          = runtime.Turn
	ActionOutcome = runtime.ActionOutcome
	Result        = runtime.Result
)

const (
	// DefaultWorkers is the number of dispatcher workers, each owning a shard of sessions.
	DefaultWorkers = 4
	// DefaultQueueSize is the capacity of each worker queue.
	DefaultQueueSize = 64

	// providerJoinTimeout bounds how long Stop waits for each provider to return.
	providerJoinTimeout = time.Second
)

// ErrNotRunning is returned when queueing work on a runtime that is not started or already stopped.
var ErrNotRunning = errors.New("runtime is not running")

// Runtime is the execution service of one bot. It owns the graph, the recognizer,
// the action registry, the sessions and the input providers.
type Runtime struct {
	bot        *domain.Bot
	resolver   *statemachine.Resolver
	engine     *runtime.Engine
	recognizer recognition.Provider
	registry   *registry.Registry
	manager    *session.Manager

	store     ports.SessionStore
	locker    ports.DistributedLocker
	providers []provider.InputProvider
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	workers   int
	queueSize int

	mu         sync.Mutex
	state      lifecycle
	dispatcher *dispatcher
	running    []*runningProvider
}

type lifecycle int

const (
	created lifecycle = iota
	started
	stopped
)

type runningProvider struct {
	provider provider.InputProvider
	cancel   context.CancelFunc
	done     chan error
}

// Option configures the Runtime.
type Option func(*Runtime)

// WithRecognizer replaces the default regex recognizer.
func WithRecognizer(p recognition.Provider) Option {
	return func(r *Runtime) {
		r.recognizer = p
	}
}

// WithRegistry replaces the default action registry. The built-in platforms are
// added to it unless platforms with the same names are already registered.
func WithRegistry(reg *registry.Registry) Option {
	return func(r *Runtime) {
		r.registry = reg
	}
}

// WithSessionStore persists sessions after every turn.
func WithSessionStore(store ports.SessionStore) Option {
	return func(r *Runtime) {
		r.store = store
	}
}

// WithLocker serializes turns across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(r *Runtime) {
		r.locker = locker
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runtime) {
		r.hooks = r.hooks.Merge(hooks)
	}
}

// WithWorkers sets the number of turn workers.
func WithWorkers(n int) Option {
	return func(r *Runtime) {
		r.workers = n
	}
}

// WithQueueSize sets the capacity of each worker queue.
func WithQueueSize(n int) Option {
	return func(r *Runtime) {
		r.queueSize = n
	}
}

// WithProvider adds an input provider started by Start.
func WithProvider(p provider.InputProvider) Option {
	return func(r *Runtime) {
		r.providers = append(r.providers, p)
	}
}

// New validates the bot, trains the recognizer with its definitions and wires the runtime.
func New(bot *domain.Bot, opts ...Option) (*Runtime, error) {
	if bot == nil {
		return nil, fmt.Errorf("%w: bot is nil", domain.ErrInvalidArgument)
	}
	r := &Runtime{
		bot:       bot,
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if bot.Name != "" {
		r.logger = r.logger.With("bot", bot.Name)
	}
	if r.workers <= 0 || r.queueSize <= 0 {
		return nil, fmt.Errorf("%w: workers and queue size must be positive", domain.ErrInvalidArgument)
	}

	if err := statemachine.Validate(bot); err != nil {
		return nil, err
	}

	if r.recognizer == nil {
		r.recognizer = recognition.NewRegexProvider(recognition.WithLogger(r.logger))
	}
	if err := r.train(); err != nil {
		return nil, err
	}

	if r.registry == nil {
		r.registry = registry.NewRegistry(registry.WithLogger(r.logger))
	}
	for _, p := range []registry.Platform{chat.New(), core.New(), logplatform.New(r.logger)} {
		if _, exists := r.registry.Platform(p.Name()); exists {
			continue
		}
		if err := r.registry.RegisterPlatform(p); err != nil {
			return nil, err
		}
	}

	r.resolver = statemachine.New(bot.Graph, statemachine.WithLogger(r.logger))
	r.engine = runtime.NewEngine(r.resolver, r.registry,
		runtime.WithLifecycleHooks(r.hooks),
		runtime.WithLogger(r.logger),
	)

	mopts := []session.Option{session.WithGraph(bot.Graph), session.WithLogger(r.logger)}
	if r.store != nil {
		mopts = append(mopts, session.WithStore(r.store))
	}
	if r.locker != nil {
		mopts = append(mopts, session.WithLocker(r.locker))
	}
	r.manager = session.NewManager(r.recognizer.CreateSession, mopts...)
	return r, nil
}

func (r *Runtime) train() error {
	for _, ent := range r.bot.Entities {
		if err := r.recognizer.RegisterEntityDefinition(ent); err != nil {
			return fmt.Errorf("failed to register entity '%s': %w", ent.Name, err)
		}
	}
	for _, intent := range r.bot.Intents {
		if err := r.recognizer.RegisterIntentDefinition(intent); err != nil {
			return fmt.Errorf("failed to register intent '%s': %w", intent.Name, err)
		}
	}
	if err := r.recognizer.TrainMLEngine(context.Background()); err != nil {
		return fmt.Errorf("failed to train recognizer: %w", err)
	}
	return nil
}

// Bot returns the bot definition.
func (r *Runtime) Bot() *domain.Bot { return r.bot }

// Recognizer returns the intent recognition provider.
func (r *Runtime) Recognizer() recognition.Provider { return r.recognizer }

// Registry returns the action registry.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Sessions returns the session manager.
func (r *Runtime) Sessions() *session.Manager { return r.manager }

// Session returns the session for id, creating or restoring it and running the
// Init state on first use.
func (r *Runtime) Session(ctx context.Context, id string) (*session.Session, error) {
	var sess *session.Session
	err := r.manager.WithSession(ctx, id, func(ctx context.Context, s *session.Session) error {
		sess = s
		_, err := r.engine.InitSession(ctx, s)
		return err
	})
	return sess, err
}

// Handle runs a recognized event synchronously under the session's lock.
func (r *Runtime) Handle(ctx context.Context, ev *domain.EventInstance, sess *session.Session) (*Turn, error) {
	var turn *Turn
	err := r.manager.Adopt(ctx, sess, func(ctx context.Context, s *session.Session) error {
		var err error
		turn, err = r.engine.Handle(ctx, s, ev)
		return err
	})
	return turn, err
}

// Converse recognizes text and handles the result synchronously, as one turn.
func (r *Runtime) Converse(ctx context.Context, sessionID, text string) (*Turn, error) {
	var turn *Turn
	err := r.manager.WithSession(ctx, sessionID, func(ctx context.Context, s *session.Session) error {
		var err error
		turn, err = r.converse(ctx, s, text)
		return err
	})
	return turn, err
}

func (r *Runtime) converse(ctx context.Context, sess *session.Session, text string) (*Turn, error) {
	if _, err := r.engine.InitSession(ctx, sess); err != nil {
		return nil, err
	}
	ev, err := r.recognizer.GetIntent(ctx, text, sess)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Intent recognized",
		"session_id", sess.ID(),
		"intent", ev.Name(),
		"confidence", ev.Confidence,
	)
	return r.engine.Handle(ctx, sess, ev)
}

// SendEventInstance queues a recognized event. Turns of one session run in order,
// one at a time; the channel receives the outcome.
func (r *Runtime) SendEventInstance(ctx context.Context, ev *domain.EventInstance, sess *session.Session) (<-chan Result, error) {
	if ev == nil || sess == nil {
		return nil, fmt.Errorf("%w: event and session are required", domain.ErrInvalidArgument)
	}
	return r.submit(ctx, sess.ID(), func(ctx context.Context) (*Turn, error) {
		return r.Handle(ctx, ev, sess)
	})
}

// SendText queues raw text for the session; recognition runs inside the turn.
func (r *Runtime) SendText(ctx context.Context, sessionID, text string) (<-chan Result, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is empty", domain.ErrInvalidArgument)
	}
	return r.submit(ctx, sessionID, func(ctx context.Context) (*Turn, error) {
		return r.Converse(ctx, sessionID, text)
	})
}

func (r *Runtime) submit(ctx context.Context, sessionID string, run func(context.Context) (*Turn, error)) (<-chan Result, error) {
	r.mu.Lock()
	d := r.dispatcher
	r.mu.Unlock()
	if d == nil {
		return nil, ErrNotRunning
	}
	return d.submit(ctx, sessionID, run)
}

// Start launches the turn workers and every input provider.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != created {
		return fmt.Errorf("runtime cannot be started twice")
	}
	r.state = started
	r.dispatcher = newDispatcher(r.workers, r.queueSize, r.logger)
	r.dispatcher.start()

	for _, p := range r.providers {
		pctx, cancel := context.WithCancel(ctx)
		rp := &runningProvider{provider: p, cancel: cancel, done: make(chan error, 1)}
		r.running = append(r.running, rp)
		go func() {
			defer close(rp.done)
			r.logger.Info("Input provider started", "provider", p.Name())
			if err := p.Run(pctx, r); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				r.logger.Error("Input provider stopped", "provider", p.Name(), "err", err)
				rp.done <- err
			}
		}()
	}
	r.logger.Info("Runtime started", "workers", r.workers, "providers", len(r.providers))
	return nil
}

// Stop shuts the runtime down: providers first, then the queued turns, then the
// recognizer and finally the platforms.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state == stopped {
		r.mu.Unlock()
		return nil
	}
	wasStarted := r.state == started
	r.state = stopped
	d := r.dispatcher
	r.dispatcher = nil
	running := r.running
	r.running = nil
	r.mu.Unlock()

	var errs []error
	for _, rp := range running {
		if err := rp.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider '%s': %w", rp.provider.Name(), err))
		}
		rp.cancel()
	}
	for _, rp := range running {
		select {
		case <-rp.done:
		case <-time.After(providerJoinTimeout):
			r.logger.Warn("Input provider did not stop in time", "provider", rp.provider.Name())
		}
	}

	if wasStarted && d != nil {
		if err := d.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain turns: %w", err))
		}
	}
	if err := r.recognizer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown recognizer: %w", err))
	}
	if err := r.registry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	r.logger.Info("Runtime stopped")
	return errors.Join(errs...)
}

var _ provider.Sink = (*Runtime)(nil)
