package di

import (
	"context"
	"slices"
	"sync/atomic"
)

type creationKey struct{}

// chain 当前调用链上正在创建的组件，不可变链表。
// root 标识整条调用链，用于可重入创建锁的归属判断。
type chain struct {
	root   uint64
	name   string
	parent *chain
}

var rootSeq atomic.Uint64

func chainFrom(ctx context.Context) *chain {
	c, _ := ctx.Value(creationKey{}).(*chain)
	return c
}

func withCreation(ctx context.Context, name string) context.Context {
	parent := chainFrom(ctx)
	c := &chain{name: name, parent: parent}
	if parent != nil {
		c.root = parent.root
	} else {
		c.root = rootSeq.Add(1)
	}
	return context.WithValue(ctx, creationKey{}, c)
}

func (c *chain) owner() uint64 {
	if c == nil {
		return 0
	}
	return c.root
}

func (c *chain) contains(name string) bool {
	for cur := c; cur != nil; cur = cur.parent {
		if cur.name == name {
			return true
		}
	}
	return false
}

// names 从根到叶的组件名。
func (c *chain) names() []string {
	var out []string
	for cur := c; cur != nil; cur = cur.parent {
		out = append(out, cur.name)
	}
	slices.Reverse(out)
	return out
}

// CurrentComponent 返回 ctx 所在调用链上正在创建的组件名。
func CurrentComponent(ctx context.Context) (string, bool) {
	c := chainFrom(ctx)
	if c == nil {
		return "", false
	}
	return c.name, true
}
