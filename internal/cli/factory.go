package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/adapters/memory"
	redisadapter "github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/adapters/sqlite"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/platforms/process"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/recognition"
	"github.com/aretw0/parley/pkg/recognition/llm"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/openai/openai-go"
)

// ErrMissingAPIKey is returned when the llm recognizer is selected without credentials.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// Persistence groups the session store and the optional distributed locker.
type Persistence struct {
	Store  ports.SessionStore
	Locker ports.DistributedLocker
	closer io.Closer
}

// Close releases the backend connection, if any.
func (p *Persistence) Close() error {
	if p == nil || p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// OpenPersistence connects the configured backend and wraps it with the PII and
// encryption middlewares. PII masking runs before encryption.
func OpenPersistence(cfg config.StoreConfig) (*Persistence, error) {
	p := &Persistence{}
	var base ports.SessionStore
	switch cfg.Kind {
	case config.StoreMemory, "":
		base = memory.NewStore()
	case config.StoreRedis:
		opts := []redisadapter.Option{redisadapter.WithTTL(cfg.Redis.TTL)}
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redisadapter.WithPrefix(cfg.Redis.Prefix))
		}
		rs := redisadapter.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		if err := rs.Client().Ping(context.Background()).Err(); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		base, p.closer = rs, rs
		if cfg.Redis.Lock {
			prefix := cfg.Redis.Prefix
			if prefix == "" {
				prefix = redisadapter.DefaultPrefix
			}
			p.Locker = redisadapter.NewLocker(rs.Client(), prefix)
		}
	case config.StoreSQLite:
		ss, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		base, p.closer = ss, ss
	default:
		return nil, fmt.Errorf("unknown store kind '%s'", cfg.Kind)
	}

	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		key, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		mws = append(mws, enc)
	}
	p.Store = middleware.Chain(base, mws...)
	return p, nil
}

// NewRecognizer builds the configured intent recognition provider.
func NewRecognizer(cfg config.RecognizerConfig, logger *slog.Logger) (recognition.Provider, error) {
	policy, err := session.ParseLifespanPolicy(cfg.LifespanPolicy)
	if err != nil {
		return nil, err
	}
	rc := recognition.Config{VariableTimeout: cfg.VariableTimeout, LifespanPolicy: policy}

	switch cfg.Kind {
	case config.RecognizerRegex, "":
		return recognition.NewRegexProvider(recognition.WithConfig(rc), recognition.WithLogger(logger)), nil
	case config.RecognizerLLM:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return nil, ErrMissingAPIKey
		}
		client := openai.NewClient()
		return llm.New(llm.NewOpenAICompleter(&client, cfg.Model),
			llm.WithConfig(rc),
			llm.WithLogger(logger),
			llm.WithThreshold(cfg.Threshold),
		), nil
	default:
		return nil, fmt.Errorf("unknown recognizer kind '%s'", cfg.Kind)
	}
}

// LoadBot reads and compiles the bot file.
func LoadBot(ctx context.Context, path string) (*domain.Bot, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no bot file given", domain.ErrInvalidArgument)
	}
	return file.NewLoader(path).Load(ctx)
}

// NewRuntime wires a runtime for bot from the configuration.
func NewRuntime(bot *domain.Bot, cfg *config.Config, p *Persistence, logger *slog.Logger, extra ...parley.Option) (*parley.Runtime, error) {
	rec, err := NewRecognizer(cfg.Recognizer, logger)
	if err != nil {
		return nil, err
	}
	opts := []parley.Option{
		parley.WithLogger(logger),
		parley.WithRecognizer(rec),
		parley.WithWorkers(cfg.Runtime.Workers),
		parley.WithQueueSize(cfg.Runtime.QueueSize),
	}
	if len(cfg.Process.Tools) > 0 {
		reg := registry.NewRegistry(registry.WithLogger(logger))
		tools := process.New(cfg.Process.Tools, process.WithBaseDir(cfg.Process.Dir), process.WithLogger(logger))
		if err := reg.RegisterPlatform(tools); err != nil {
			return nil, err
		}
		opts = append(opts, parley.WithRegistry(reg))
	}
	if p != nil {
		opts = append(opts, parley.WithSessionStore(p.Store))
		if p.Locker != nil {
			opts = append(opts, parley.WithLocker(p.Locker))
		}
	}
	return parley.New(bot, append(opts, extra...)...)
}
