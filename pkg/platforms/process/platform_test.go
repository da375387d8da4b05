package process_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/platforms/process"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, tools ...process.Tool) (*registry.Registry, *session.Session) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests need a POSIX shell")
	}
	r := registry.NewRegistry()
	require.NoError(t, r.RegisterPlatform(process.New(tools)))
	sess, err := session.New("s1", nil)
	require.NoError(t, err)
	return r, sess
}

func invoke(t *testing.T, r *registry.Registry, sess *session.Session, name string, args ...any) *domain.ActionResult {
	t.Helper()
	a, err := r.Create(domain.ActionCall{Platform: process.Name, Action: name}, sess, args)
	require.NoError(t, err)
	return a.Invoke(context.Background())
}

func TestPlatform_PassesArgumentsThroughEnv(t *testing.T) {
	r, sess := setup(t, process.Tool{
		Name:    "Greet",
		Command: "sh",
		Args:    []string{"-c", `echo "$GREETING $PARLEY_ARG_0 ($PARLEY_SESSION_ID, $PARLEY_ARGC)"`},
		Env:     map[string]string{"GREETING": "hi"},
	})

	res := invoke(t, r, sess, "Greet", "Ana; rm -rf /")
	require.False(t, res.IsError(), "%v", res.Err)
	assert.Equal(t, "hi Ana; rm -rf / (s1, 1)", res.Result)
}

func TestPlatform_DecodesJSONOutput(t *testing.T) {
	r, sess := setup(t, process.Tool{Name: "Quote", Command: "sh", Args: []string{"-c", `echo '{"price": 12.5}'`}})

	res := invoke(t, r, sess, "Quote")
	require.False(t, res.IsError())
	assert.Equal(t, map[string]any{"price": 12.5}, res.Result)
}

func TestPlatform_Failures(t *testing.T) {
	r, sess := setup(t,
		process.Tool{Name: "Fail", Command: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}},
		process.Tool{Name: "Slow", Command: "sleep", Args: []string{"5"}, Timeout: 50 * time.Millisecond},
		process.Tool{Name: "Incomplete"},
	)

	res := invoke(t, r, sess, "Fail")
	require.True(t, res.IsError())
	var exitErr *process.ExitError
	require.ErrorAs(t, res.Err, &exitErr)
	assert.Equal(t, "broken", exitErr.Stderr)

	res = invoke(t, r, sess, "Slow")
	require.True(t, res.IsError())
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	assert.False(t, r.Has(domain.ActionCall{Platform: process.Name, Action: "Incomplete"}))
}

func TestEnviron(t *testing.T) {
	env := process.Environ("s1", []any{"a", 2, nil, map[string]any{"k": "v"}})
	assert.Equal(t, []string{
		"PARLEY_SESSION_ID=s1",
		"PARLEY_ARGC=4",
		"PARLEY_ARG_0=a",
		"PARLEY_ARG_1=2",
		"PARLEY_ARG_2=",
		`PARLEY_ARG_3={"k":"v"}`,
	}, env)
}

func TestParseOutput(t *testing.T) {
	assert.Equal(t, "plain", process.ParseOutput(" plain\n"))
	assert.Equal(t, []any{1.0, 2.0}, process.ParseOutput("[1, 2]"))
	assert.Equal(t, "{not json}", process.ParseOutput("{not json}"))
}
