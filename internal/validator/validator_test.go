package validator

import (
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/platforms/chat"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	b := dsl.New("lint")
	b.Intent("Order").Train("order")
	b.Intent("Cancel").Train("cancel")
	b.Intent("Help").Train("help")
	b.Event("Timeout")
	b.Init().On("Order", "Ordered")
	b.State("Ordered").Reply("ok").Branch("Cancel", `intent == "Cancel"`, "Init")
	b.State("Orphan").Do("Sms", "Send", "hi").Go("Init")
	b.Fallback().Reply("?").Go("Recover")
	b.State("Recover").When(domain.Condition{Expr: `intent == "Timeout"`}, "Init")
	bot, err := b.Build()
	require.NoError(t, err)

	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterPlatform(chat.New()))

	findings := Check(bot, reg)
	assert.Equal(t, []Finding{
		{Kind: UnreachableState, Subject: "Orphan", Message: "state 'Orphan' cannot be reached from Init"},
		{Kind: UnusedEvent, Subject: "Help", Message: "'Help' is declared but no transition uses it"},
		{Kind: UnknownAction, Subject: "Sms.Send", Message: "state 'Orphan' calls 'Sms.Send', which is not registered"},
	}, findings)
	assert.Equal(t, "unused_event: 'Help' is declared but no transition uses it", findings[1].String())

	assert.Len(t, Check(bot, nil), 2, "actions are skipped without a checker")
	assert.Nil(t, Check(nil, nil))
}

func TestCheck_CleanBot(t *testing.T) {
	b := dsl.New("clean")
	b.Intent("Hi").Train("hi")
	b.Init().On("Hi", "Greeted")
	b.State("Greeted").Reply("hello").Go("Init")
	bot, err := b.Build()
	require.NoError(t, err)

	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterPlatform(chat.New()))
	assert.Empty(t, Check(bot, reg))
}
