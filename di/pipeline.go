package di

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sort"
)

// Pipeline 有序的扩展钩子分发器，创建后不可变。
type Pipeline struct {
	hooks []any

	instantiation     []InstantiationHook
	postInstantiation []PostInstantiationHook
	property          []PropertyHook
	descriptor        []DescriptorHook
	earlyReference    []EarlyReferenceHook
	init              []InitHook
	postInit          []PostInitHook
	constructor       []ConstructorHook
	predictor         []TypePredictor
	destruction       []DestructionHook
}

// NewPipeline 按 PriorityOrdered、Ordered、无序的顺序排列钩子，同级按注册顺序。
func NewPipeline(hooks ...any) *Pipeline {
	sorted := slices.DeleteFunc(slices.Clone(hooks), func(h any) bool { return h == nil })
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, oi := rank(sorted[i])
		cj, oj := rank(sorted[j])
		if ci != cj {
			return ci < cj
		}
		return oi < oj
	})

	p := &Pipeline{hooks: sorted}
	for _, h := range sorted {
		if x, ok := h.(InstantiationHook); ok {
			p.instantiation = append(p.instantiation, x)
		}
		if x, ok := h.(PostInstantiationHook); ok {
			p.postInstantiation = append(p.postInstantiation, x)
		}
		if x, ok := h.(PropertyHook); ok {
			p.property = append(p.property, x)
		}
		if x, ok := h.(DescriptorHook); ok {
			p.descriptor = append(p.descriptor, x)
		}
		if x, ok := h.(EarlyReferenceHook); ok {
			p.earlyReference = append(p.earlyReference, x)
		}
		if x, ok := h.(InitHook); ok {
			p.init = append(p.init, x)
		}
		if x, ok := h.(PostInitHook); ok {
			p.postInit = append(p.postInit, x)
		}
		if x, ok := h.(ConstructorHook); ok {
			p.constructor = append(p.constructor, x)
		}
		if x, ok := h.(TypePredictor); ok {
			p.predictor = append(p.predictor, x)
		}
		if x, ok := h.(DestructionHook); ok {
			p.destruction = append(p.destruction, x)
		}
	}
	return p
}

func rank(h any) (class, order int) {
	switch o := h.(type) {
	case PriorityOrdered:
		return 0, o.Order()
	case Ordered:
		return 1, o.Order()
	default:
		return 2, LowestPrecedence
	}
}

// With 返回追加了钩子的新 Pipeline。
func (p *Pipeline) With(hooks ...any) *Pipeline {
	return NewPipeline(append(slices.Clone(p.hooks), hooks...)...)
}

// Hooks 按执行顺序返回所有钩子。
func (p *Pipeline) Hooks() []any {
	return slices.Clone(p.hooks)
}

// Len 钩子数量。
func (p *Pipeline) Len() int {
	return len(p.hooks)
}

// BeforeInstantiation 第一个非 nil 结果生效。
func (p *Pipeline) BeforeInstantiation(ctx context.Context, typ reflect.Type, name string) (any, error) {
	for _, h := range p.instantiation {
		v, err := h.BeforeInstantiation(ctx, typ, name)
		if err != nil || v != nil {
			return v, err
		}
	}
	return nil, nil
}

// AfterInstantiation 任一钩子返回 false 即停止。
func (p *Pipeline) AfterInstantiation(ctx context.Context, instance any, name string) (bool, error) {
	for _, h := range p.postInstantiation {
		ok, err := h.AfterInstantiation(ctx, instance, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// MutateProperties 依次传递属性值，nil 表示停止并跳过属性应用。
func (p *Pipeline) MutateProperties(ctx context.Context, props []PropertyValue, instance any, name string) ([]PropertyValue, error) {
	for _, h := range p.property {
		out, err := h.MutateProperties(ctx, props, instance, name)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, nil
		}
		props = out
	}
	return props, nil
}

// MergedDescriptorReady 通知所有描述钩子。
func (p *Pipeline) MergedDescriptorReady(ctx context.Context, d *Descriptor, typ reflect.Type, name string) error {
	for _, h := range p.descriptor {
		if err := h.MergedDescriptorReady(ctx, d, typ, name); err != nil {
			return err
		}
	}
	return nil
}

// EarlyReference 依次替换提前引用，nil 保留当前值并停止。
func (p *Pipeline) EarlyReference(ctx context.Context, instance any, name string) (any, error) {
	current := instance
	for _, h := range p.earlyReference {
		out, err := h.EarlyReference(ctx, current, name)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return current, nil
		}
		current = out
	}
	return current, nil
}

// BeforeInit 依次替换实例，nil 保留当前值并停止。
func (p *Pipeline) BeforeInit(ctx context.Context, instance any, name string) (any, error) {
	current := instance
	for _, h := range p.init {
		out, err := h.BeforeInit(ctx, current, name)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return current, nil
		}
		current = out
	}
	return current, nil
}

// AfterInit 依次替换实例，nil 保留当前值并停止。
func (p *Pipeline) AfterInit(ctx context.Context, instance any, name string) (any, error) {
	current := instance
	for _, h := range p.postInit {
		out, err := h.AfterInit(ctx, current, name)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return current, nil
		}
		current = out
	}
	return current, nil
}

// CandidateConstructors 第一个非 nil 结果生效。
func (p *Pipeline) CandidateConstructors(ctx context.Context, typ reflect.Type, name string, declared []Constructor) ([]Constructor, error) {
	for _, h := range p.constructor {
		out, err := h.CandidateConstructors(ctx, typ, name, declared)
		if err != nil || out != nil {
			return out, err
		}
	}
	return nil, nil
}

// PredictType 第一个非 nil 结果生效。
func (p *Pipeline) PredictType(ctx context.Context, typ reflect.Type, name string) reflect.Type {
	for _, h := range p.predictor {
		if out := h.PredictType(ctx, typ, name); out != nil {
			return out
		}
	}
	return nil
}

// RequiresDestruction 任一销毁钩子需要处理该实例。
func (p *Pipeline) RequiresDestruction(instance any) bool {
	for _, h := range p.destruction {
		if h.RequiresDestruction(instance) {
			return true
		}
	}
	return false
}

// BeforeDestruction 调用所有需要处理该实例的销毁钩子。
func (p *Pipeline) BeforeDestruction(ctx context.Context, instance any, name string) error {
	var errs []error
	for _, h := range p.destruction {
		if !h.RequiresDestruction(instance) {
			continue
		}
		if err := h.BeforeDestruction(ctx, instance, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
