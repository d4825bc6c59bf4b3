package di

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

type lifecycleComp struct {
	name string
	rec  *recorder
}

func (l *lifecycleComp) Init(context.Context) error {
	l.rec.add("init:" + l.name)
	return nil
}

func (l *lifecycleComp) Start() { l.rec.add("start:" + l.name) }

func (l *lifecycleComp) Destroy(context.Context) error {
	l.rec.add("destroy:" + l.name)
	return nil
}

func (l *lifecycleComp) Close() error {
	l.rec.add("close:" + l.name)
	return nil
}

type lifecycleUser struct {
	lifecycleComp
	First *lifecycleComp `di:"first"`
}

func TestInitAndDestroyOrder(t *testing.T) {
	rec := &recorder{}
	store := NewStore()
	require.NoError(t, store.Register("first", nil,
		WithSupplier(func() (any, error) { return &lifecycleComp{name: "first", rec: rec}, nil }),
		WithInitMethod("Start"),
		WithDestroyMethod(InferredDestroyMethod)))
	require.NoError(t, store.Register("second", nil,
		WithSupplier(func() (any, error) {
			return &lifecycleUser{lifecycleComp: lifecycleComp{name: "second", rec: rec}}, nil
		}),
		WithDestroyMethod(InferredDestroyMethod)))
	c := New(store)
	ctx := context.Background()

	require.NoError(t, c.PreInstantiateSingletons(ctx))
	assert.Equal(t, []string{"init:first", "start:first", "init:second"}, rec.list())

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, []string{
		"init:first", "start:first", "init:second",
		"destroy:second", "close:second",
		"destroy:first", "close:first",
	}, rec.list())

	// 重复关闭无效果
	require.NoError(t, c.Close(ctx))
	_, err := c.GetOrCreate(ctx, "first")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMissingInitMethod(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[repo](store, "strict", WithInitMethod("Missing")))
	require.NoError(t, Register[repo](store, "lenient", WithOptionalInitMethod("Missing")))
	c := New(store)

	_, err := c.GetOrCreate(context.Background(), "strict")
	assert.ErrorIs(t, err, ErrConfiguration)
	var ce *CreationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, PhaseInitialize, ce.Phase)

	_, err = c.GetOrCreate(context.Background(), "lenient")
	assert.NoError(t, err)
}

func TestDependsOnOrder(t *testing.T) {
	rec := &recorder{}
	store := NewStore()
	require.NoError(t, store.Register("late", nil, WithDependsOn("early"), WithSupplier(func() (any, error) {
		rec.add("late")
		return &counterService{id: 2}, nil
	})))
	require.NoError(t, store.Register("early", nil, WithSupplier(func() (any, error) {
		rec.add("early")
		return &counterService{id: 1}, nil
	})))
	c := New(store)

	require.NoError(t, c.PreInstantiateSingletons(context.Background()))
	assert.Equal(t, []string{"early", "late"}, rec.list())
	assert.Equal(t, []string{"late"}, c.Dependents("early"))
}

func TestDependsOnCycle(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[repo](store, "a", WithDependsOn("b")))
	require.NoError(t, Register[counterService](store, "b", WithDependsOn("a")))
	c := New(store)

	_, err := c.GetOrCreate(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

type settingsHolder struct {
	Port    int
	Timeout time.Duration
	Name    string
	Ratio   float64
	Enabled bool
	Repo    *repo
	level   string
}

func (s *settingsHolder) SetLevel(l string) { s.level = "L:" + l }

func TestPropertyConversion(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[repo](store, "repo"))
	require.NoError(t, Register[settingsHolder](store, "settings",
		WithProperty("Port", "8080"),
		WithProperty("timeout", "2s"),
		WithProperty("name", 42),
		WithProperty("ratio", "0.5"),
		WithProperty("enabled", "true"),
		WithProperty("level", "debug"),
		WithRef("repo", "repo")))
	c := New(store)
	ctx := context.Background()

	s, err := Get[*settingsHolder](ctx, c, "settings")
	require.NoError(t, err)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, 2*time.Second, s.Timeout)
	assert.Equal(t, "42", s.Name)
	assert.Equal(t, 0.5, s.Ratio)
	assert.True(t, s.Enabled)
	assert.Equal(t, "L:debug", s.level)
	assert.Same(t, MustGet[*repo](ctx, c, "repo"), s.Repo)
	assert.Equal(t, []string{"repo"}, c.Dependencies("settings"))
}

func TestUnknownPropertyFails(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[settingsHolder](store, "settings", WithProperty("missing", "x")))

	_, err := New(store).GetOrCreate(context.Background(), "settings")
	var ce *CreationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, PhasePopulate, ce.Phase)
}

func TestParentDescriptorMerge(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[settingsHolder](store, "base",
		WithAbstract(),
		WithProperty("port", "80"),
		WithProperty("name", "base")))
	require.NoError(t, store.Register("child", nil, WithParent("base"), WithProperty("name", "child")))
	c := New(store)
	ctx := context.Background()

	s, err := Get[*settingsHolder](ctx, c, "child")
	require.NoError(t, err)
	assert.Equal(t, 80, s.Port)
	assert.Equal(t, "child", s.Name)

	_, err = c.GetOrCreate(ctx, "base")
	assert.ErrorIs(t, err, ErrConfiguration)
}

type autoTarget struct {
	Repo  *repo
	Other *repo
	Tag   *repo `di:"?"`
	Count int
}

func TestAutowireByName(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[repo](store, "repo"))
	require.NoError(t, Register[autoTarget](store, "target", WithAutowire(AutowireByName)))
	c := New(store)
	ctx := context.Background()

	target := MustGet[*autoTarget](ctx, c, "target")
	main := MustGet[*repo](ctx, c, "repo")
	assert.Same(t, main, target.Repo)
	assert.Same(t, main, target.Tag)
	assert.Nil(t, target.Other)
}

func TestAutowireByType(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[repo](store, "mainRepo"))
	require.NoError(t, Register[autoTarget](store, "target", WithAutowire(AutowireByType)))
	c := New(store)
	ctx := context.Background()

	target := MustGet[*autoTarget](ctx, c, "target")
	main := MustGet[*repo](ctx, c, "mainRepo")
	assert.Same(t, main, target.Repo)
	assert.Same(t, main, target.Other)
	assert.Same(t, main, target.Tag)
}

type shortCircuitHook struct {
	afterInit int
}

func (h *shortCircuitHook) BeforeInstantiation(_ context.Context, _ reflect.Type, name string) (any, error) {
	if name == "virtual" {
		return &counterService{id: 99}, nil
	}
	return nil, nil
}

func (h *shortCircuitHook) AfterInit(_ context.Context, instance any, _ string) (any, error) {
	h.afterInit++
	return instance, nil
}

type needsMissing struct {
	Missing *settingsHolder `di:"nowhere"`
}

func TestShortCircuitSkipsConstruction(t *testing.T) {
	hook := &shortCircuitHook{}
	store := NewStore()
	require.NoError(t, Register[needsMissing](store, "virtual"))
	c := New(store, WithHooks(hook))

	v, err := c.GetOrCreate(context.Background(), "virtual")
	require.NoError(t, err)
	assert.Equal(t, &counterService{id: 99}, v)
	assert.Equal(t, 1, hook.afterInit)
}

type vetoHook struct{}

func (vetoHook) AfterInstantiation(context.Context, any, string) (bool, error) { return false, nil }

func TestPostInstantiationVetoSkipsPopulation(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[needsMissing](store, "n"))
	c := New(store, WithHooks(vetoHook{}))

	n, err := Get[*needsMissing](context.Background(), c, "n")
	require.NoError(t, err)
	assert.Nil(t, n.Missing)
}

func TestRequiredFieldUnsatisfied(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[needsMissing](store, "n"))

	_, err := New(store).GetOrCreate(context.Background(), "n")
	require.Error(t, err)
	var ue *UnsatisfiedDependencyError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "n", ue.Component)
	assert.Equal(t, "Missing", ue.Member)
	assert.Equal(t, reflect.TypeFor[*settingsHolder](), ue.Type)
}

type repoFactory struct {
	prefix string
}

func (f *repoFactory) NewHolder(r *repo) *settingsHolder {
	return &settingsHolder{Name: f.prefix, Repo: r}
}

func TestFactoryFuncAndMethod(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[repo](store, "repo"))
	require.NoError(t, store.Register("factory", nil, WithSupplier(func() (any, error) {
		return &repoFactory{prefix: "made"}, nil
	})))
	require.NoError(t, store.Register("fromMethod", nil, WithFactoryMethod("factory", "NewHolder")))
	require.NoError(t, store.Register("fromFunc", nil, WithFactoryFunc(func(ctx context.Context, r *repo) (*settingsHolder, error) {
		name, _ := CurrentComponent(ctx)
		return &settingsHolder{Name: name, Repo: r}, nil
	})))
	c := New(store)
	ctx := context.Background()

	assert.Equal(t, reflect.TypeFor[*settingsHolder](), c.TypeOf("fromFunc"))

	m := MustGet[*settingsHolder](ctx, c, "fromMethod")
	assert.Equal(t, "made", m.Name)
	assert.NotNil(t, m.Repo)

	f := MustGet[*settingsHolder](ctx, c, "fromFunc")
	assert.Equal(t, "fromFunc", f.Name)
	assert.Contains(t, c.Dependents("factory"), "fromMethod")
}

func TestMissingFactoryMethod(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[repoFactory](store, "factory"))
	require.NoError(t, store.Register("bad", nil, WithFactoryMethod("factory", "Nope")))

	_, err := New(store).GetOrCreate(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrConfiguration)
}

type pair struct {
	name string
	n    int
}

func TestExplicitArgsSelectByArity(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[pair](store, "pair", WithTransient(),
		WithConstructor(func() *pair { return &pair{} }),
		WithConstructor(func(name string) *pair { return &pair{name: name} }),
		WithConstructor(func(name string, n int) *pair { return &pair{name: name, n: n} })))
	c := New(store)
	ctx := context.Background()

	v, err := c.GetWithArgs(ctx, "pair", "x", "7")
	require.NoError(t, err)
	assert.Equal(t, &pair{name: "x", n: 7}, v)

	v, err = c.GetWithArgs(ctx, "pair", "y")
	require.NoError(t, err)
	assert.Equal(t, &pair{name: "y"}, v)

	_, err = c.GetWithArgs(ctx, "pair", "a", 1, 2)
	assert.ErrorIs(t, err, ErrConfiguration)
}

type handler interface {
	Handle() string
}

type handlerA struct{}

func (handlerA) Handle() string { return "a" }

type handlerB struct{}

func (handlerB) Handle() string { return "b" }

type handlerUser struct {
	Handlers []handler `di:""`
	Main     handler   `di:""`
}

type hintedUser struct {
	HandlerB handler `di:""`
}

func TestResolveByTypeTieBreaks(t *testing.T) {
	ctx := context.Background()

	store := NewStore()
	require.NoError(t, Register[handlerA](store, "handlerA"))
	require.NoError(t, Register[handlerB](store, "handlerB", WithPrimary()))
	require.NoError(t, Register[handlerUser](store, "user"))
	c := New(store)

	u := MustGet[*handlerUser](ctx, c, "user")
	require.Len(t, u.Handlers, 2)
	assert.Equal(t, "a", u.Handlers[0].Handle())
	assert.Equal(t, "b", u.Handlers[1].Handle())
	assert.Equal(t, "b", u.Main.Handle())

	// 没有 primary 时按成员名裁决
	store = NewStore()
	require.NoError(t, Register[handlerA](store, "handlerA"))
	require.NoError(t, Register[handlerB](store, "handlerB"))
	require.NoError(t, Register[hintedUser](store, "hinted"))
	require.NoError(t, Register[handlerUser](store, "user"))
	c = New(store)

	h := MustGet[*hintedUser](ctx, c, "hinted")
	assert.Equal(t, "b", h.HandlerB.Handle())

	_, err := c.GetOrCreate(ctx, "user")
	assert.ErrorIs(t, err, ErrAmbiguous)

	_, err = Resolve[handler](ctx, c)
	assert.ErrorIs(t, err, ErrAmbiguous)
}

// ledgerRepo 不能是零大小类型，否则两次分配会得到同一地址
type ledgerRepo struct {
	n int
}

type transientUser struct {
	Repo *ledgerRepo `di:""`
}

func TestTransientCollaboratorIsFresh(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[ledgerRepo](store, "repo", WithTransient()))
	require.NoError(t, Register[transientUser](store, "user", WithTransient()))
	c := New(store)
	ctx := context.Background()

	u1 := MustGet[*transientUser](ctx, c, "user")
	u2 := MustGet[*transientUser](ctx, c, "user")
	assert.NotSame(t, u1, u2)
	require.NotNil(t, u1.Repo)
	require.NotNil(t, u2.Repo)
	assert.NotSame(t, u1.Repo, u2.Repo)

	meta, ok := c.injector.metadata.Peek(reflect.TypeFor[*transientUser]())
	require.True(t, ok)
	sc, ok := meta.points[0].args[0].shortcut("user")
	require.True(t, ok)
	assert.Equal(t, "repo", sc)
}

type selfTyped struct {
	Peer *selfTyped `di:""`
}

func TestShortcutIsPerComponent(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[selfTyped](store, "a"))
	require.NoError(t, Register[selfTyped](store, "b", WithTransient()))
	c := New(store)
	ctx := context.Background()

	// a 的候选只有 b，b 的候选只有 a
	_, err := c.GetOrCreate(ctx, "a")
	require.NoError(t, err)

	b := MustGet[*selfTyped](ctx, c, "b")
	a := MustGet[*selfTyped](ctx, c, "a")
	assert.Same(t, a, b.Peer)
	assert.NotSame(t, a, b)

	meta, ok := c.injector.metadata.Peek(reflect.TypeFor[*selfTyped]())
	require.True(t, ok)
	dep := meta.points[0].args[0]
	sc, ok := dep.shortcut("b")
	require.True(t, ok)
	assert.Equal(t, "a", sc)
	sc, ok = dep.shortcut("a")
	require.True(t, ok)
	assert.Equal(t, "b", sc)
}

type hiddenField struct {
	repo *repo `di:""`
	Repo *repo `di:"?"`
}

func TestUnexportedTaggedFieldSkipped(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[repo](store, "repo"))
	require.NoError(t, Register[hiddenField](store, "hidden"))

	h, err := Get[*hiddenField](context.Background(), New(store), "hidden")
	require.NoError(t, err)
	assert.Nil(t, h.repo)
	assert.NotNil(t, h.Repo)
}

type embeddedBase struct {
	Repo *repo `di:""`
}

type methodInjected struct {
	embeddedBase
	settings *settingsHolder
	order    []string
}

func (m *methodInjected) InjectionMethods() []string {
	return []string{"UseSettings", "UseMissing?"}
}

func (m *methodInjected) UseSettings(ctx context.Context, s *settingsHolder) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	m.settings = s
	m.order = append(m.order, "settings")
	return nil
}

func (m *methodInjected) UseMissing(h handler) {
	m.order = append(m.order, "missing")
}

func TestMethodAndEmbeddedInjection(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[repo](store, "repo"))
	require.NoError(t, Register[settingsHolder](store, "settings"))
	require.NoError(t, Register[methodInjected](store, "m"))
	c := New(store)

	m := MustGet[*methodInjected](context.Background(), c, "m")
	assert.NotNil(t, m.Repo)
	assert.NotNil(t, m.settings)
	assert.Equal(t, []string{"settings"}, m.order)
}

type containerUser struct {
	C     *Container         `di:""`
	R     DependencyResolver `di:""`
	named string
}

func (u *containerUser) SetComponentName(name string) { u.named = name }

func TestResolvablesAndAware(t *testing.T) {
	store := NewStore()
	require.NoError(t, Register[containerUser](store, "user"))
	c := New(store)

	u := MustGet[*containerUser](context.Background(), c, "user")
	assert.Same(t, c, u.C)
	assert.Equal(t, "user", u.named)
	assert.NotNil(t, u.R)
}

func TestCreateIndependentAndRegisterSingleton(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	shared := &repo{}
	require.NoError(t, c.RegisterSingleton("repo", shared))
	assert.ErrorIs(t, c.RegisterSingleton("repo", &repo{}), ErrConfiguration)

	d := &Descriptor{Type: reflect.TypeFor[*transientUser]()}
	v1, err := c.CreateIndependent(ctx, d)
	require.NoError(t, err)
	v2, err := c.CreateIndependent(ctx, d)
	require.NoError(t, err)

	assert.NotSame(t, v1, v2)
	assert.Same(t, shared, v1.(*transientUser).Repo)
	assert.Equal(t, []string{"repo"}, c.NamesForType(reflect.TypeFor[*repo]()))
}

type readyComp struct {
	ready bool
}

func (r *readyComp) SingletonsReady(context.Context) error {
	r.ready = true
	return nil
}

func TestPreInstantiateSkipsLazyAndNotifiesReady(t *testing.T) {
	created := map[string]bool{}
	var mu sync.Mutex
	supplier := func(name string) func() (any, error) {
		return func() (any, error) {
			mu.Lock()
			created[name] = true
			mu.Unlock()
			return &readyComp{}, nil
		}
	}
	store := NewStore()
	require.NoError(t, store.Register("eager", nil, WithSupplier(supplier("eager"))))
	require.NoError(t, store.Register("lazy", nil, WithLazy(), WithSupplier(supplier("lazy"))))
	require.NoError(t, store.Register("proto", nil, WithTransient(), WithSupplier(supplier("proto"))))
	c := New(store)
	ctx := context.Background()

	require.NoError(t, c.PreInstantiateSingletons(ctx))
	assert.Equal(t, map[string]bool{"eager": true}, created)
	assert.True(t, MustGet[*readyComp](ctx, c, "eager").ready)
}

func TestResetDescriptorRecreates(t *testing.T) {
	rec := &recorder{}
	store := NewStore()
	require.NoError(t, store.Register("comp", nil,
		WithSupplier(func() (any, error) { return &lifecycleComp{name: "comp", rec: rec}, nil })))
	c := New(store)
	ctx := context.Background()

	first := MustGet[*lifecycleComp](ctx, c, "comp")
	require.NoError(t, c.ResetDescriptor(ctx, "comp"))
	second := MustGet[*lifecycleComp](ctx, c, "comp")

	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"init:comp", "destroy:comp", "init:comp"}, rec.list())
}

type brittle struct {
	err error
}

func (b *brittle) Destroy(context.Context) error { return b.err }

type brittleUser struct {
	brittle
	Base *brittle `di:"base"`
}

func TestResetDescriptorJoinsDestroyErrors(t *testing.T) {
	errBase := errors.New("base destroy")
	errUser := errors.New("user destroy")
	store := NewStore()
	require.NoError(t, store.Register("base", nil,
		WithSupplier(func() (any, error) { return &brittle{err: errBase}, nil })))
	require.NoError(t, store.Register("user", nil,
		WithSupplier(func() (any, error) { return &brittleUser{brittle: brittle{err: errUser}}, nil })))
	c := New(store)
	ctx := context.Background()

	_, err := c.GetOrCreate(ctx, "user")
	require.NoError(t, err)

	// 依赖方 user 先被销毁，两个错误都要返回
	err = c.ResetDescriptor(ctx, "base")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBase)
	assert.ErrorIs(t, err, errUser)
}

func TestDestroyComponentForTransient(t *testing.T) {
	rec := &recorder{}
	store := NewStore()
	require.NoError(t, store.Register("proto", nil, WithTransient(), WithDestroyMethod(InferredDestroyMethod),
		WithSupplier(func() (any, error) { return &lifecycleComp{name: "proto", rec: rec}, nil })))
	c := New(store)
	ctx := context.Background()

	v, err := c.GetOrCreate(ctx, "proto")
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, []string{"init:proto"}, rec.list())

	require.NoError(t, c.DestroyComponent(ctx, "proto", v))
	assert.Equal(t, []string{"init:proto", "destroy:proto", "close:proto"}, rec.list())
}
