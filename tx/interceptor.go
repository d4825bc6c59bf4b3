package tx

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/gocrud/container/aop"
	"github.com/gocrud/container/logging"
	"gorm.io/gorm"
)

// Interceptor 按事务属性在 gorm 事务中执行方法。
// 事务通过方法的 context.Context 参数传递，没有 context 参数的方法不参与事务。
type Interceptor struct {
	db     *gorm.DB
	source AttributeSource
	logger logging.Logger
}

// NewInterceptor 创建事务拦截器
func NewInterceptor(db *gorm.DB, source AttributeSource, logger logging.Logger) *Interceptor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Interceptor{db: db, source: source, logger: logger.WithCategory("tx")}
}

// Source 属性来源
func (i *Interceptor) Source() AttributeSource { return i.source }

func (i *Interceptor) Invoke(inv *aop.Invocation) ([]any, error) {
	attr, ok := i.source.TransactionAttribute(inv.Name, inv.Method)
	if !ok {
		return inv.Proceed()
	}
	ctx, ok := inv.Context()
	if !ok {
		i.logger.Debug("方法没有 context 参数，跳过事务",
			logging.Component(inv.Name),
			logging.Field{Key: "method", Value: inv.Method.Name})
		return inv.Proceed()
	}

	current := FromContext(ctx)
	switch attr.Propagation {
	case PropagationSupports:
		return inv.Proceed()
	case PropagationMandatory:
		if current == nil {
			err := fmt.Errorf("%w: %s.%s", ErrNoTransaction, inv.Name, inv.Method.Name)
			return inv.WithError(err), err
		}
		return inv.Proceed()
	case PropagationRequired:
		if current != nil {
			return inv.Proceed()
		}
	}

	tx := i.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: attr.Isolation, ReadOnly: attr.ReadOnly})
	if tx.Error != nil {
		err := fmt.Errorf("tx: 开启事务失败: %w", tx.Error)
		return inv.WithError(err), err
	}
	inv.SetContext(WithTx(ctx, tx))
	i.logger.Debug("开启事务",
		logging.Component(inv.Name),
		logging.Field{Key: "method", Value: inv.Method.Name},
		logging.Field{Key: "propagation", Value: attr.Propagation.String()})

	return i.run(inv, tx, attr)
}

func (i *Interceptor) run(inv *aop.Invocation, tx *gorm.DB, attr Attribute) (results []any, err error) {
	committed := false
	defer func() {
		if r := recover(); r != nil {
			if !committed {
				tx.Rollback()
			}
			panic(r)
		}
	}()

	results, err = inv.Proceed()
	if err != nil && attr.RollbackOn(err) {
		if rerr := tx.Rollback().Error; rerr != nil {
			i.logger.Error("回滚事务失败", logging.Err(rerr))
		}
		return results, err
	}

	committed = true
	if cerr := tx.Commit().Error; cerr != nil {
		cerr = fmt.Errorf("tx: 提交事务失败: %w", cerr)
		return inv.WithError(cerr), cerr
	}
	return results, err
}

// Advice 把至少有一个方法带事务属性的组件交给自动代理
func Advice(source AttributeSource) aop.AdviceSource {
	return func(typ reflect.Type, name string) ([]aop.Interceptor, bool) {
		if typ == nil {
			return nil, false
		}
		for idx := 0; idx < typ.NumMethod(); idx++ {
			if _, ok := source.TransactionAttribute(name, typ.Method(idx)); ok {
				return nil, true
			}
		}
		return nil, false
	}
}
