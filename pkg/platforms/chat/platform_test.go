package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/platforms/chat"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReply(t *testing.T) {
	r := registry.NewRegistry()
	require.NoError(t, r.RegisterPlatform(chat.New()))
	sess, _ := session.New("s1", nil)

	a, err := r.Create(domain.ActionCall{Platform: chat.Name, Action: chat.Reply}, sess, []any{"Hello", "Ada"})
	require.NoError(t, err)
	res := a.Invoke(context.Background())
	assert.Equal(t, "Hello Ada", res.Result)

	a, err = r.Create(domain.ActionCall{Platform: chat.Name, Action: "RandomReply"}, sess, []any{"only"})
	require.NoError(t, err)
	assert.Equal(t, "only", a.Invoke(context.Background()).Result)
}

func TestReplies(t *testing.T) {
	turn := &runtime.Turn{Actions: []runtime.ActionOutcome{
		{Call: domain.ActionCall{Platform: chat.Name, Action: chat.Reply}, Result: &domain.ActionResult{Result: "one"}},
		{Call: domain.ActionCall{Platform: "Log", Action: "Info"}, Result: &domain.ActionResult{Result: "log"}},
		{Call: domain.ActionCall{Platform: chat.Name, Action: chat.Reply}, Result: &domain.ActionResult{Err: errors.New("x")}},
		{Call: domain.ActionCall{Platform: chat.Name, Action: chat.Reply}, Result: &domain.ActionResult{Result: "two"}},
	}}
	assert.Equal(t, []string{"one", "two"}, chat.Replies(turn))
	assert.Nil(t, chat.Replies(nil))
}
