// Package console provides a line-based terminal input provider.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/provider"
	"golang.org/x/term"
)

// DefaultSessionID is the conversation a console talks in unless configured otherwise.
const DefaultSessionID = "console"

// maxLineSize bounds a single read; shorter lines over the input limit are
// rejected with a message instead of ending the console.
const maxLineSize = 1 << 20

// Console reads one user message per line and prints the bot's replies.
// Run returns io.EOF once the input is exhausted.
type Console struct {
	in        io.Reader
	out       io.Writer
	sessionID string
	prompt    string
	render    tui.Renderer
	logger    *slog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	startOnce sync.Once
	lines     chan string
	readErr   error
}

// Option configures the Console.
type Option func(*Console)

// WithIO replaces os.Stdin and os.Stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(c *Console) {
		c.in, c.out = in, out
	}
}

// WithSessionID sets the conversation identifier.
func WithSessionID(id string) Option {
	return func(c *Console) {
		c.sessionID = id
	}
}

// WithRenderer overrides the reply renderer.
func WithRenderer(r tui.Renderer) Option {
	return func(c *Console) {
		c.render = r
	}
}

// WithLogger sets the console logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

// New creates a console. On a terminal, replies are rendered as markdown and a
// prompt is shown; otherwise input and output are plain lines.
func New(opts ...Option) *Console {
	c := &Console{
		in:        os.Stdin,
		out:       os.Stdout,
		sessionID: DefaultSessionID,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	interactive := IsTerminal(c.in) && IsTerminal(c.out)
	if interactive {
		c.prompt = "> "
	}
	if c.render == nil {
		c.render = tui.Plain
		if interactive {
			c.render = tui.NewRenderer(terminalWidth(c.out))
		}
	}
	return c
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f any) bool {
	fd, ok := f.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(fd.Fd()))
}

func terminalWidth(f any) int {
	fd, ok := f.(interface{ Fd() uintptr })
	if !ok {
		return 0
	}
	w, _, err := term.GetSize(int(fd.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// Name implements provider.InputProvider.
func (c *Console) Name() string { return "console" }

func (c *Console) initPump() {
	c.startOnce.Do(func() {
		c.lines = make(chan string)
		go c.pump()
	})
}

// pump outlives a single Run so that a console can be run again (after a bot
// reload) without a second reader competing for the input.
func (c *Console) pump() {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 1024), maxLineSize)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	c.readErr = scanner.Err()
	close(c.lines)
}

// Run reads lines until EOF, ctx cancellation or Close. It may be called again
// once it returned, as long as the input was not exhausted.
func (c *Console) Run(ctx context.Context, sink provider.Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()
	c.initPump()

	for {
		fmt.Fprint(c.out, c.prompt)
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-c.lines:
			if !ok {
				if c.prompt != "" {
					fmt.Fprintln(c.out)
				}
				if c.readErr != nil {
					return c.readErr
				}
				return io.EOF
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			c.converse(ctx, sink, line)
		}
	}
}

func (c *Console) converse(ctx context.Context, sink provider.Sink, line string) {
	replies, err := provider.Chat(ctx, sink, c.sessionID, line)
	for _, reply := range replies {
		out, rerr := c.render(reply)
		if rerr != nil {
			out = reply
		}
		fmt.Fprintln(c.out, out)
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, provider.ErrInputTooLarge) || errors.Is(err, provider.ErrInvalidUTF8) {
		fmt.Fprintf(c.out, "Error: %v. Please try again.\n", err)
		return
	}
	c.logger.Error("Console turn failed", "session_id", c.sessionID, "err", err)
	fmt.Fprintf(c.out, "Error: %v\n", err)
}

// Close stops Run. A read blocked on the terminal is abandoned.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

var _ provider.InputProvider = (*Console)(nil)
