package cache

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocrud/container/aop"
	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	credis "github.com/gocrud/container/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEmptySku = errors.New("empty sku")

type catalog struct {
	calls atomic.Int32
}

func (c *catalog) Price(_ context.Context, sku string) (int, error) {
	c.calls.Add(1)
	if sku == "" {
		return 0, errEmptySku
	}
	return len(sku) * 10, nil
}

func (c *catalog) Reset(context.Context) error { return nil }

func (c *catalog) Label() string { return "catalog" }

var catalogRules = MethodRules{
	"catalog.Price": {Kind: Cacheable, Region: "price", TTL: time.Minute},
	"catalog.Reset": {Kind: Evict, Region: "price"},
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(2 * time.Second)
	_, ok, _ = s.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "b")
	assert.True(t, ok, "ttl 为 0 时不过期")
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"price:1", "price:2", "stock:1"} {
		require.NoError(t, s.Set(ctx, k, []byte(k), 0))
	}
	require.NoError(t, s.DeletePrefix(ctx, "price:"))
	assert.Equal(t, 1, s.Len())
}

func TestCacheKeyIgnoresContext(t *testing.T) {
	key, err := cacheKey("r", []any{context.Background(), "a", 1})
	require.NoError(t, err)
	assert.Equal(t, `r:["a",1]`, key)

	_, err = cacheKey("r", []any{func() {}})
	assert.Error(t, err)
}

func TestMethodRules(t *testing.T) {
	rules := MethodRules{"svc.*": {Kind: Evict, Region: "all"}, "svc.Get": {}}
	get, _ := reflect.TypeFor[*catalog]().MethodByName("Price")
	_, ok := rules.CacheRule("other", get)
	assert.False(t, ok)
	rule, ok := rules.CacheRule("svc", get)
	assert.True(t, ok)
	assert.Equal(t, Evict, rule.Kind)
	assert.Equal(t, "svc.Price", region(Rule{}, "svc", "Price"))
}

func newRuntime(t *testing.T, opts ...core.Option) *core.Runtime {
	t.Helper()
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(append([]core.Option{core.WithLogger(logging.Discard())}, opts...)...))
	require.NoError(t, core.Provide[catalog](rt, "catalog"))
	require.NoError(t, rt.Build(context.Background()))
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })
	return rt
}

func TestInterceptorCachesAndEvicts(t *testing.T) {
	store := NewMemoryStore()
	rt := newRuntime(t, New(catalogRules, WithStore(store)))
	ctx := context.Background()

	proxy, err := di.Get[*aop.Proxy](ctx, rt.Container, "catalog")
	require.NoError(t, err)
	target, err := proxy.Target()
	require.NoError(t, err)
	cat := target.(*catalog)

	for range 3 {
		price, err := aop.Invoke[int](proxy, "Price", ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, 30, price)
	}
	assert.EqualValues(t, 1, cat.calls.Load())

	_, err = aop.Invoke[int](proxy, "Price", ctx, "abcd")
	require.NoError(t, err)
	assert.EqualValues(t, 2, cat.calls.Load())
	assert.Equal(t, 2, store.Len())

	// 错误结果不缓存
	for range 2 {
		_, err = aop.Invoke[int](proxy, "Price", ctx, "")
		assert.ErrorIs(t, err, errEmptySku)
	}
	assert.EqualValues(t, 4, cat.calls.Load())

	_, err = proxy.Call("Reset", ctx)
	require.NoError(t, err)
	assert.Zero(t, store.Len())

	_, err = aop.Invoke[int](proxy, "Price", ctx, "abc")
	require.NoError(t, err)
	assert.EqualValues(t, 5, cat.calls.Load())

	label, err := aop.Invoke[string](proxy, "Label")
	require.NoError(t, err)
	assert.Equal(t, "catalog", label)

	ic, err := di.Get[*Interceptor](ctx, rt.Container, InterceptorName)
	require.NoError(t, err)
	assert.Equal(t, Stats{Hits: 2, Misses: 5, Evictions: 1}, ic.Stats())
}

func TestNewWithRedisStore(t *testing.T) {
	rt := newRuntime(t,
		credis.New(credis.WithClient("cache", credis.WithAddr("127.0.0.1:6391"))),
		New(catalogRules, WithRedis("cache"), WithKeyPrefix("app:")),
	)
	ctx := context.Background()

	ic, err := di.Get[*Interceptor](ctx, rt.Container, InterceptorName)
	require.NoError(t, err)
	store, ok := ic.Store().(*RedisStore)
	require.True(t, ok)

	client, err := di.Get[*redis.Client](ctx, rt.Container, "cache")
	require.NoError(t, err)
	assert.Same(t, client, store.Client())
	assert.Equal(t, "app:", store.prefix)
	assert.Contains(t, rt.Container.Dependents("cache"), InterceptorName)
}
