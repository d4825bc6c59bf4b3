package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/gocrud/container/aop"
	"github.com/gocrud/container/core"
	"github.com/gocrud/container/database"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type account struct {
	ID      uint
	Owner   string
	Balance int
}

type ledger struct {
	DB *gorm.DB `di:""`
}

func (l *ledger) Open(ctx context.Context, owner string) error {
	return DB(ctx, l.DB).Create(&account{Owner: owner}).Error
}

func (l *ledger) Fail(ctx context.Context, owner string, cause error) error {
	if err := DB(ctx, l.DB).Create(&account{Owner: owner}).Error; err != nil {
		return err
	}
	return cause
}

func (l *ledger) Panic(ctx context.Context, owner string) error {
	if err := DB(ctx, l.DB).Create(&account{Owner: owner}).Error; err != nil {
		return err
	}
	panic("boom")
}

func (l *ledger) Current(ctx context.Context) (*gorm.DB, error) { return FromContext(ctx), nil }
func (l *ledger) Fresh(ctx context.Context) (*gorm.DB, error)   { return FromContext(ctx), nil }
func (l *ledger) Must(ctx context.Context) (*gorm.DB, error)    { return FromContext(ctx), nil }
func (l *ledger) Peek(ctx context.Context) (*gorm.DB, error)    { return FromContext(ctx), nil }
func (l *ledger) Untimed(owner string) error {
	return l.DB.Create(&account{Owner: owner}).Error
}

func (l *ledger) Count(owner string) int64 {
	var n int64
	l.DB.Model(&account{}).Where("owner = ?", owner).Count(&n)
	return n
}

var errKeep = errors.New("keep")

func ledgerSource() AttributeSource {
	return ComponentSource{
		Components: []string{"ledger"},
		Source: NameMatchSource{
			"Open":    {Propagation: PropagationRequired},
			"Fail":    {Propagation: PropagationRequired, Rules: []RollbackRule{NoRollbackFor(errKeep)}},
			"Panic":   {Propagation: PropagationRequired},
			"Current": {Propagation: PropagationRequired},
			"Fresh":   {Propagation: PropagationRequiresNew},
			"Must":    {Propagation: PropagationMandatory},
			"Peek":    {Propagation: PropagationSupports},
			"Untimed": {Propagation: PropagationRequired},
		},
	}
}

type fixture struct {
	rt     *core.Runtime
	proxy  *aop.Proxy
	ledger *ledger
	db     *gorm.DB
}

func newFixture(t *testing.T, dsn string) *fixture {
	t.Helper()
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		core.WithLogger(logging.Discard()),
		database.New(database.WithDatabase("default", sqlite.Open(dsn), database.WithAutoMigrate(&account{}))),
		New(ledgerSource()),
	))
	require.NoError(t, core.Provide[ledger](rt, "ledger"))
	require.NoError(t, rt.Build(context.Background()))
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })

	ctx := context.Background()
	proxy, err := di.Get[*aop.Proxy](ctx, rt.Container, "ledger")
	require.NoError(t, err)
	target, err := proxy.Target()
	require.NoError(t, err)
	db, err := di.Get[*gorm.DB](ctx, rt.Container, "default")
	require.NoError(t, err)
	return &fixture{rt: rt, proxy: proxy, ledger: target.(*ledger), db: db}
}

func TestInterceptorCommits(t *testing.T) {
	f := newFixture(t, "file:tx_commit?mode=memory&cache=shared")

	_, err := f.proxy.Call("Open", context.Background(), "ann")
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.ledger.Count("ann"))
}

func TestInterceptorRollsBackOnError(t *testing.T) {
	f := newFixture(t, "file:tx_rollback?mode=memory&cache=shared")
	ctx := context.Background()

	_, err := f.proxy.Call("Fail", ctx, "bob", errors.New("broken"))
	assert.EqualError(t, err, "broken")
	assert.Zero(t, f.ledger.Count("bob"))

	_, err = f.proxy.Call("Fail", ctx, "cat", errKeep)
	assert.ErrorIs(t, err, errKeep)
	assert.EqualValues(t, 1, f.ledger.Count("cat"), "提交规则命中时保留写入")
}

func TestInterceptorRollsBackOnPanic(t *testing.T) {
	f := newFixture(t, "file:tx_panic?mode=memory&cache=shared")

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = f.proxy.Call("Panic", context.Background(), "dan")
	})
	assert.Zero(t, f.ledger.Count("dan"))
}

func TestInterceptorPropagation(t *testing.T) {
	f := newFixture(t, "file:tx_propagation?mode=memory&cache=shared")
	bg := context.Background()

	current, err := aop.Invoke[*gorm.DB](f.proxy, "Current", bg)
	require.NoError(t, err)
	assert.NotNil(t, current, "没有外部事务时新建")

	peek, err := aop.Invoke[*gorm.DB](f.proxy, "Peek", bg)
	require.NoError(t, err)
	assert.Nil(t, peek, "Supports 不新建事务")

	_, err = aop.Invoke[*gorm.DB](f.proxy, "Must", bg)
	assert.ErrorIs(t, err, ErrNoTransaction)

	outer := f.db.Begin()
	require.NoError(t, outer.Error)
	defer outer.Rollback()
	ctx := WithTx(bg, outer)

	joined, err := aop.Invoke[*gorm.DB](f.proxy, "Current", ctx)
	require.NoError(t, err)
	assert.Same(t, outer, joined, "Required 加入已有事务")

	must, err := aop.Invoke[*gorm.DB](f.proxy, "Must", ctx)
	require.NoError(t, err)
	assert.Same(t, outer, must)

	peek, err = aop.Invoke[*gorm.DB](f.proxy, "Peek", ctx)
	require.NoError(t, err)
	assert.Same(t, outer, peek)

	fresh, err := aop.Invoke[*gorm.DB](f.proxy, "Fresh", ctx)
	require.NoError(t, err)
	assert.NotNil(t, fresh)
	assert.NotSame(t, outer, fresh, "RequiresNew 总是新建事务")
}

func TestInterceptorSkipsMethodsWithoutContext(t *testing.T) {
	f := newFixture(t, "file:tx_noctx?mode=memory&cache=shared")

	_, err := f.proxy.Call("Untimed", "eve")
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.ledger.Count("eve"))
}

func TestNewRegistersInterceptorComponent(t *testing.T) {
	f := newFixture(t, "file:tx_component?mode=memory&cache=shared")
	ctx := context.Background()

	ic, err := di.Get[*Interceptor](ctx, f.rt.Container, InterceptorName)
	require.NoError(t, err)
	assert.NotNil(t, ic.Source())

	interceptors := f.proxy.Interceptors()
	require.Len(t, interceptors, 1)
	assert.Same(t, ic, interceptors[0])

	// 没有事务属性的组件不被代理
	db, err := di.Get[*gorm.DB](ctx, f.rt.Container, "default")
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.Contains(t, f.rt.Container.Dependents("default"), InterceptorName)
}
