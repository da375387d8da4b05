// Package process exposes allow-listed local commands as bot actions.
//
// Each configured tool becomes an action of the Process platform. Call arguments
// never reach the command line: they are passed as PARLEY_ARG_<n> environment
// variables, together with PARLEY_SESSION_ID.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
)

// Name is the platform name used in action calls.
const Name = "Process"

// Tool is an allowed command.
type Tool struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Env         map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
}

// ExitError reports a command that ran and failed.
type ExitError struct {
	Tool   string
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("process '%s' failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("process '%s' failed: %v: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Platform runs the registered tools.
type Platform struct {
	tools   map[string]Tool
	baseDir string
	logger  *slog.Logger
}

// Option configures the Platform.
type Option func(*Platform)

// WithBaseDir sets the working directory of every command.
func WithBaseDir(dir string) Option {
	return func(p *Platform) {
		p.baseDir = dir
	}
}

// WithLogger configures the platform logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Platform) {
		p.logger = logger
	}
}

// New creates the platform. Tools without a name or command are skipped.
func New(tools []Tool, opts ...Option) *Platform {
	p := &Platform{tools: make(map[string]Tool), logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	for _, t := range tools {
		if t.Name == "" || t.Command == "" {
			p.logger.Warn("Skipping incomplete process tool", "name", t.Name)
			continue
		}
		p.tools[t.Name] = t
	}
	return p
}

// Name implements action.Platform.
func (p *Platform) Name() string { return Name }

// Shutdown implements action.Platform. Running commands end with their turn's context.
func (p *Platform) Shutdown(ctx context.Context) error { return nil }

// Actions implements registry.Platform.
func (p *Platform) Actions() map[string]registry.Handler {
	out := make(map[string]registry.Handler, len(p.tools))
	for name, t := range p.tools {
		out[name] = p.handler(t)
	}
	return out
}

func (p *Platform) handler(t Tool) registry.Handler {
	return func(ctx context.Context, sess *session.Session, args []any) (any, error) {
		if t.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.Timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(ctx, t.Command, t.Args...)
		cmd.Dir = p.baseDir
		cmd.Env = append(cmd.Environ(), Environ(sess.ID(), args)...)
		for k, v := range t.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		start := time.Now()
		err := cmd.Run()
		p.logger.Debug("Process finished", "tool", t.Name, "session_id", sess.ID(), "duration", time.Since(start), "err", err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("process '%s': %w", t.Name, ctxErr)
			}
			return nil, &ExitError{Tool: t.Name, Err: err, Stderr: strings.TrimSpace(stderr.String())}
		}
		return ParseOutput(stdout.String()), nil
	}
}

// Environ encodes the call arguments as environment entries. Scalars are
// formatted as text, everything else as JSON.
func Environ(sessionID string, args []any) []string {
	env := []string{"PARLEY_SESSION_ID=" + sessionID, fmt.Sprintf("PARLEY_ARGC=%d", len(args))}
	for i, a := range args {
		var val string
		switch v := a.(type) {
		case nil:
		case string:
			val = v
		case int, int64, float64, bool:
			val = fmt.Sprint(v)
		default:
			if b, err := json.Marshal(v); err == nil {
				val = string(b)
			} else {
				val = fmt.Sprint(v)
			}
		}
		env = append(env, fmt.Sprintf("PARLEY_ARG_%d=%s", i, val))
	}
	return env
}

// ParseOutput decodes stdout as JSON when it looks like an object or an array,
// and returns the trimmed text otherwise.
func ParseOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
