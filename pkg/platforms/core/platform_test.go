package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/platforms/core"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoke(t *testing.T, r *registry.Registry, sess *session.Session, name string, args ...any) *domain.ActionResult {
	t.Helper()
	a, err := r.Create(domain.ActionCall{Platform: core.Name, Action: name}, sess, args)
	require.NoError(t, err)
	return a.Invoke(context.Background())
}

func TestCorePlatform(t *testing.T) {
	fixed := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	r := registry.NewRegistry()
	require.NoError(t, r.RegisterPlatform(core.New(core.WithClock(func() time.Time { return fixed }))))
	sess, _ := session.New("s1", nil)

	assert.Equal(t, "14:05:07", invoke(t, r, sess, "GetTime").Result)
	assert.Equal(t, "2024-03-09", invoke(t, r, sess, "GetDate").Result)
	assert.Equal(t, "09/03", invoke(t, r, sess, "GetDate", "02/01").Result)
	assert.True(t, invoke(t, r, sess, "GetDate", 42).IsError())

	res := invoke(t, r, sess, "Uuid")
	_, err := uuid.Parse(res.Result.(string))
	assert.NoError(t, err)

	invoke(t, r, sess, "Store", "name", "Ada")
	v, _ := sess.Get("name")
	assert.Equal(t, "Ada", v)

	invoke(t, r, sess, "StoreList", "seen", "a")
	invoke(t, r, sess, "StoreList", "seen", "b")
	v, _ = sess.Get("seen")
	assert.Equal(t, []any{"a", "b"}, v)

	assert.True(t, invoke(t, r, sess, "Store", "only-key").IsError())
}
