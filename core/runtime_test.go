package core

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocrud/container/aop"
	"github.com/gocrud/container/config"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt := NewRuntime()
	require.NoError(t, rt.Apply(append([]Option{WithLogger(logging.Discard())}, opts...)...))
	return rt
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(config.FromMap(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettingsOverrides(t *testing.T) {
	cfg := config.FromMap(map[string]any{
		"container": map[string]any{
			"allowCircularReferences": false,
			"logLevel":                "debug",
			"cron":                    map[string]any{"seconds": true},
		},
	})
	s, err := LoadSettings(cfg)
	require.NoError(t, err)
	assert.False(t, s.AllowCircularReferences)
	assert.True(t, s.PreInstantiate, "未配置的项保持默认值")
	assert.True(t, s.Cron.Seconds)
	assert.Equal(t, logging.LogLevelDebug, s.Level())
}

func TestLoadSettingsRejectsInvalidLevel(t *testing.T) {
	cfg := config.FromMap(map[string]any{"container": map[string]any{"logLevel": "verbose"}})
	_, err := LoadSettings(cfg)
	assert.Error(t, err)

	rt := NewRuntime()
	assert.Error(t, rt.Apply(WithConfiguration(cfg)))
}

type dataSource struct {
	URL string
}

type repository struct {
	DS *dataSource `di:"ds"`
}

func TestBuildPreInstantiatesAndResolvesPlaceholders(t *testing.T) {
	cfg := config.FromMap(map[string]any{"db": map[string]any{"url": "sqlite://memory"}})
	rt := newTestRuntime(t, WithConfiguration(cfg))

	created := atomic.Int32{}
	require.NoError(t, rt.Register("ds", reflect.TypeFor[*dataSource](),
		di.WithSupplier(func() (any, error) {
			created.Add(1)
			return &dataSource{}, nil
		}),
		di.WithProperty("URL", "${db:url}")))
	require.NoError(t, Provide[repository](rt, "repo"))

	require.NoError(t, rt.Build(context.Background()))
	assert.EqualValues(t, 1, created.Load(), "单例应在构建时创建")

	repo, err := di.Get[*repository](context.Background(), rt.Container, "repo")
	require.NoError(t, err)
	assert.Equal(t, "sqlite://memory", repo.DS.URL)

	c, err := di.Resolve[config.Configuration](context.Background(), rt.Container)
	require.NoError(t, err)
	assert.Same(t, cfg, c)

	assert.Error(t, rt.Build(context.Background()), "不能重复构建")
}

func TestBuildWithoutPreInstantiate(t *testing.T) {
	s := DefaultSettings()
	s.PreInstantiate = false
	rt := newTestRuntime(t, WithSettings(s))

	created := 0
	require.NoError(t, rt.Register("ds", reflect.TypeFor[*dataSource](),
		di.WithSupplier(func() (any, error) {
			created++
			return &dataSource{}, nil
		})))
	require.NoError(t, rt.Build(context.Background()))
	assert.Equal(t, 0, created)
}

// renamingHook 作为组件注册的钩子
type renamingHook struct {
	seen []string
}

func (h *renamingHook) AfterInit(_ context.Context, instance any, name string) (any, error) {
	h.seen = append(h.seen, name)
	if ds, ok := instance.(*dataSource); ok {
		ds.URL = "hooked"
	}
	return instance, nil
}

func TestHookComponentsApplyToLaterComponents(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.RegisterHook("renamer", reflect.TypeFor[*renamingHook](),
		di.WithSupplier(func() (any, error) { return &renamingHook{}, nil })))
	require.NoError(t, Provide[dataSource](rt, "ds"))

	require.NoError(t, rt.Build(context.Background()))

	ds, err := di.Get[*dataSource](context.Background(), rt.Container, "ds")
	require.NoError(t, err)
	assert.Equal(t, "hooked", ds.URL)

	h, err := di.Get[*renamingHook](context.Background(), rt.Container, "renamer")
	require.NoError(t, err)
	assert.NotContains(t, h.seen, "renamer", "钩子组件不经过自身")
	assert.Contains(t, h.seen, "ds")
}

type pinger struct{}

func (pinger) Ping() string { return "pong" }

func TestBuildCreatesAutoProxyForAdvice(t *testing.T) {
	var calls atomic.Int32
	counting := aop.InterceptorFunc(func(inv *aop.Invocation) ([]any, error) {
		calls.Add(1)
		return inv.Proceed()
	})
	rt := newTestRuntime(t, WithAdvice(func(_ reflect.Type, name string) ([]aop.Interceptor, bool) {
		return []aop.Interceptor{counting}, name == "pinger"
	}))
	require.NoError(t, Provide[pinger](rt, "pinger"))
	require.NoError(t, rt.Build(context.Background()))
	require.NotNil(t, rt.AutoProxy)

	v, err := rt.Container.GetOrCreate(context.Background(), "pinger")
	require.NoError(t, err)
	s, err := aop.Invoke[string](v.(*aop.Proxy), "Ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", s)
	assert.EqualValues(t, 1, calls.Load())
}

func TestStartStopRunsWorkersAndClosesContainer(t *testing.T) {
	rt := newTestRuntime(t)

	running := make(chan struct{})
	var exited atomic.Bool
	require.NoError(t, rt.Apply(WithWorker("worker", func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		exited.Store(true)
		return nil
	})))
	var started, stopped atomic.Bool
	rt.Lifecycle.OnStart(func(context.Context) error { started.Store(true); return nil })
	rt.Lifecycle.OnStop(func(context.Context) error { stopped.Store(true); return nil })

	require.NoError(t, rt.Build(context.Background()))
	require.NoError(t, rt.Start(context.Background()))
	select {
	case <-running:
	case <-time.After(time.Second):
		t.Fatal("worker 未启动")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rt.Stop(ctx))
	assert.True(t, started.Load())
	assert.True(t, stopped.Load())
	assert.True(t, exited.Load())

	_, err := rt.Container.GetOrCreate(context.Background(), "worker")
	assert.ErrorIs(t, err, di.ErrClosed)
}

func TestStartRequiresBuild(t *testing.T) {
	rt := newTestRuntime(t)
	assert.Error(t, rt.Start(context.Background()))
}

func TestWithHostedServiceRejectsNonService(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.Apply(WithHostedService("ds", reflect.TypeFor[*dataSource]()))
	assert.Error(t, err)
}

func TestLifecycleStopContinuesOnError(t *testing.T) {
	l := NewLifecycle()
	var order []int
	l.OnStop(func(context.Context) error { order = append(order, 1); return nil })
	l.OnStop(func(context.Context) error { order = append(order, 2); return assert.AnError })
	l.OnStop(func(context.Context) error { order = append(order, 3); return nil })

	err := l.Stop(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestFeatureCollection(t *testing.T) {
	rt := NewRuntime()
	ds := &dataSource{URL: "x"}
	rt.Features.Set(ds)
	assert.Same(t, ds, GetFeature[*dataSource](rt))
	assert.Nil(t, GetFeature[*repository](rt))

	cfg := config.FromMap(map[string]any{"k": "v"})
	SetFeature(rt, cfg)
	assert.Same(t, cfg, GetFeature[config.Configuration](rt), "按接口类型登记")
	assert.Equal(t, 2, rt.Features.Len())
}
