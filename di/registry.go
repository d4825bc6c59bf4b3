package di

import (
	"slices"
	"sync"
)

// creationLock 容器范围的可重入创建锁，归属于一条调用链。
type creationLock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner uint64
	depth int
}

func newCreationLock() *creationLock {
	l := &creationLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *creationLock) acquire(owner uint64) {
	l.mu.Lock()
	for l.depth > 0 && l.owner != owner {
		l.cond.Wait()
	}
	l.owner = owner
	l.depth++
	l.mu.Unlock()
}

func (l *creationLock) release() {
	l.mu.Lock()
	l.depth--
	if l.depth == 0 {
		l.owner = 0
		l.cond.Broadcast()
	}
	l.mu.Unlock()
}

func (l *creationLock) heldBy(owner uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth > 0 && l.owner == owner
}

// registry 共享实例注册表。
// 每个名称只会经历一次 absent -> in-progress -> (early) -> finished，失败后记录错误。
type registry struct {
	mu sync.RWMutex

	finished   map[string]any
	order      []string
	inProgress map[string]bool
	factories  map[string]func() (any, error)
	early      map[string]any
	failed     map[string]error

	// dependents[a] 依赖 a 的组件
	dependents   map[string]map[string]struct{}
	dependencies map[string]map[string]struct{}

	disposers     map[string]*disposer
	disposerOrder []string

	lock *creationLock
}

func newRegistry() *registry {
	return &registry{
		finished:     make(map[string]any),
		inProgress:   make(map[string]bool),
		factories:    make(map[string]func() (any, error)),
		early:        make(map[string]any),
		failed:       make(map[string]error),
		dependents:   make(map[string]map[string]struct{}),
		dependencies: make(map[string]map[string]struct{}),
		disposers:    make(map[string]*disposer),
		lock:         newCreationLock(),
	}
}

func (r *registry) finishedInstance(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.finished[name]
	return v, ok
}

func (r *registry) finishedNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

func (r *registry) addFinished(name string, v any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.finished[name]; ok {
		return false
	}
	r.finished[name] = v
	r.order = append(r.order, name)
	return true
}

func (r *registry) isInProgress(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inProgress[name]
}

// getOrCreate 返回名称对应的唯一实例。
// 其他调用链在创建锁上等待；失败的名称直接返回记录的错误，不再调用 create。
func (r *registry) getOrCreate(c *chain, name string, create func() (any, error)) (any, error) {
	if v, ok := r.finishedInstance(name); ok {
		return v, nil
	}

	r.lock.acquire(c.owner())
	defer r.lock.release()

	r.mu.Lock()
	if v, ok := r.finished[name]; ok {
		r.mu.Unlock()
		return v, nil
	}
	if err := r.failed[name]; err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if r.inProgress[name] {
		r.mu.Unlock()
		return nil, &CircularReferenceError{Chain: c.names()}
	}
	r.inProgress[name] = true
	r.mu.Unlock()

	v, err := create()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inProgress, name)
	delete(r.factories, name)
	delete(r.early, name)
	if err != nil {
		r.failed[name] = err
		return nil, err
	}
	r.finished[name] = v
	r.order = append(r.order, name)
	return v, nil
}

// addEarlyFactory 仅在名称处于创建中时有效。
func (r *registry) addEarlyFactory(name string, f func() (any, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inProgress[name] {
		r.factories[name] = f
	}
}

// earlyReference 只对持有创建锁的调用链可见。首次获取时调用工厂并缓存结果。
func (r *registry) earlyReference(c *chain, name string) (any, bool, error) {
	if c == nil || !r.lock.heldBy(c.owner()) {
		return nil, false, nil
	}

	r.mu.RLock()
	v, ok := r.early[name]
	f, hasFactory := r.factories[name]
	r.mu.RUnlock()
	if ok {
		return v, true, nil
	}
	if !hasFactory {
		return nil, false, nil
	}

	v, err := f()
	if err != nil {
		return nil, true, err
	}

	r.mu.Lock()
	r.early[name] = v
	delete(r.factories, name)
	r.mu.Unlock()
	return v, true, nil
}

func (r *registry) materializedEarly(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.early[name]
	return v, ok
}

// registerDependent 记录 dependent 依赖 name。
func (r *registry) registerDependent(name, dependent string) {
	if dependent == "" || name == dependent {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dependents[name] == nil {
		r.dependents[name] = make(map[string]struct{})
	}
	r.dependents[name][dependent] = struct{}{}
	if r.dependencies[dependent] == nil {
		r.dependencies[dependent] = make(map[string]struct{})
	}
	r.dependencies[dependent][name] = struct{}{}
}

// isDependent 判断 dependent 是否直接或间接依赖 name。
func (r *registry) isDependent(name, dependent string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var walk func(n string) bool
	walk = func(n string) bool {
		if seen[n] {
			return false
		}
		seen[n] = true
		for d := range r.dependents[n] {
			if d == dependent || walk(d) {
				return true
			}
		}
		return false
	}
	return walk(name)
}

func (r *registry) dependentsOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.dependents[name]))
	for d := range r.dependents[name] {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

func (r *registry) dependenciesOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.dependencies[name]))
	for d := range r.dependencies[name] {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

func (r *registry) addDisposer(name string, d *disposer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.disposers[name]; !ok {
		r.disposerOrder = append(r.disposerOrder, name)
	}
	r.disposers[name] = d
}

// takeSingleton 移除实例、销毁回调以及依赖它的组件列表。
func (r *registry) takeSingleton(name string) (*disposer, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.disposers[name]
	delete(r.disposers, name)
	r.disposerOrder = slices.DeleteFunc(r.disposerOrder, func(n string) bool { return n == name })

	delete(r.finished, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	delete(r.failed, name)

	var deps []string
	for dep := range r.dependents[name] {
		deps = append(deps, dep)
	}
	slices.Sort(deps)
	delete(r.dependents, name)
	for _, m := range r.dependents {
		delete(m, name)
	}
	delete(r.dependencies, name)
	return d, deps
}

func (r *registry) disposerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.disposerOrder)
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = make(map[string]any)
	r.order = nil
	r.failed = make(map[string]error)
	r.dependents = make(map[string]map[string]struct{})
	r.dependencies = make(map[string]map[string]struct{})
	r.disposers = make(map[string]*disposer)
	r.disposerOrder = nil
}
