package tx

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx 把事务绑定到 context
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext 返回 context 中的事务，没有时为 nil
func FromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// DB 返回 context 中的事务，没有事务时返回 fallback
func DB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return fallback.WithContext(ctx)
}
