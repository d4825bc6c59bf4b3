package di

import (
	"sync"
	"sync/atomic"
)

// Memo 并发安全的计算一次缓存。
// 不同键的计算互不阻塞，因此计算函数可以递归读取其他键；对同一个键递归会死锁。
type Memo[K comparable, V any] struct {
	mu    sync.RWMutex
	cells map[K]*memoCell[V]
}

type memoCell[V any] struct {
	once sync.Once
	done atomic.Bool
	val  V
	err  error
}

// Get 返回键对应的值，首次访问时调用 compute。错误同样被缓存。
func (m *Memo[K, V]) Get(key K, compute func() (V, error)) (V, error) {
	m.mu.RLock()
	c, ok := m.cells[key]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		// 双重检查
		if c, ok = m.cells[key]; !ok {
			if m.cells == nil {
				m.cells = make(map[K]*memoCell[V])
			}
			c = &memoCell[V]{}
			m.cells[key] = c
		}
		m.mu.Unlock()
	}

	c.once.Do(func() {
		c.val, c.err = compute()
		c.done.Store(true)
	})
	return c.val, c.err
}

// Peek 返回已计算完成且成功的值，不触发计算。
func (m *Memo[K, V]) Peek(key K) (V, bool) {
	m.mu.RLock()
	c, ok := m.cells[key]
	m.mu.RUnlock()

	var zero V
	if !ok || !c.done.Load() || c.err != nil {
		return zero, false
	}
	return c.val, true
}

// Delete 使单个键失效。
func (m *Memo[K, V]) Delete(key K) {
	m.mu.Lock()
	delete(m.cells, key)
	m.mu.Unlock()
}

// Reset 清空缓存。
func (m *Memo[K, V]) Reset() {
	m.mu.Lock()
	m.cells = nil
	m.mu.Unlock()
}
