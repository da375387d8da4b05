//go:build unix

package cli

import (
	"bytes"
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownContext(t *testing.T) {
	var stderr bytes.Buffer
	exited := make(chan int, 1)
	ctx, stop := ShutdownContext(context.Background(), &stderr, func(code int) { exited <- code })
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first signal did not cancel the context")
	}

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case code := <-exited:
		assert.Equal(t, ExitForced, code)
		assert.Contains(t, stderr.String(), "Forced exit.")
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force the exit")
	}
}

func TestShutdownContext_Stop(t *testing.T) {
	ctx, stop := ShutdownContext(context.Background(), &bytes.Buffer{}, func(int) { t.Error("unexpected exit") })
	stop()
	stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
