package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/parley/internal/logging"
)

// ExitForced is the exit code used when a second signal arrives during shutdown.
const ExitForced = 130

// ShutdownContext returns a context cancelled by the first SIGINT or SIGTERM,
// so that the runtime can stop its providers and drain queued turns. A second
// signal calls exit, for a shutdown that hangs. The returned stop releases the
// signal handler.
func ShutdownContext(parent context.Context, stderr io.Writer, exit func(int)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
			cancel()
		})
	}

	go func() {
		select {
		case <-sigs:
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigs:
			printSystemMessage(stderr, "Forced exit.")
			exit(ExitForced)
		case <-done:
		}
	}()
	return ctx, stop
}

// createLogger configures the application logger. It always writes to Stderr so
// that Stdout stays free for the conversation (or JSON-RPC with mcp).
// Outside debug mode, interactive commands stay quiet below warnings.
func createLogger(level string, debug bool) (*slog.Logger, error) {
	if debug {
		return logging.New(slog.LevelDebug), nil
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.New(lvl), nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

// handleExecutionError maps interruptions to a clean exit.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}
