package redis

import (
	"context"
	"testing"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderValidation(t *testing.T) {
	_, err := NewBuilder().AddClient("a").AddClient("a").Build(nil)
	assert.Error(t, err)

	_, err = NewBuilder().AddClient("a", WithAddr("")).Build(nil)
	assert.Error(t, err)

	_, err = NewBuilder().AddClient("a", WithPoolSize(0)).Build(nil)
	assert.Error(t, err)
}

func TestFactoryCreatesClientOnce(t *testing.T) {
	f, err := NewBuilder().
		AddClient("default", WithAddr("127.0.0.1:6390"), WithDB(2), WithAuth("u", "p")).
		Build(logging.Discard())
	require.NoError(t, err)

	c1, err := f.Client("default")
	require.NoError(t, err)
	c2, err := f.Client("default")
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, "127.0.0.1:6390", c1.Options().Addr)
	assert.Equal(t, 2, c1.Options().DB)

	_, err = f.Client("missing")
	assert.Error(t, err)
	require.NoError(t, f.Close())
}

type session struct {
	Client *redis.Client `di:""`
	Cache  *redis.Client `di:"cache"`
}

func TestNewRegistersClients(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		core.WithLogger(logging.Discard()),
		New(WithClient("default"), WithClient("cache", WithDB(1)))))
	require.NoError(t, core.Provide[session](rt, "session"))
	require.NoError(t, rt.Build(context.Background()))

	ctx := context.Background()
	s, err := di.Get[*session](ctx, rt.Container, "session")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Client.Options().DB, "按类型注入选择 default")
	assert.Equal(t, 1, s.Cache.Options().DB)

	require.NoError(t, rt.Stop(ctx))
	assert.ErrorIs(t, s.Client.Ping(ctx).Err(), redis.ErrClosed)
}
