package di

import (
	"errors"
	"reflect"
	"testing"
)

func TestStoreDuplicate(t *testing.T) {
	s := NewStore()
	if err := Register[repo](s, "repo"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := Register[repo](s, "repo"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if err := s.Add(&Descriptor{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for unnamed descriptor, got %v", err)
	}
}

func TestStoreMergeChain(t *testing.T) {
	s := NewStore()
	_ = s.Register("root", reflect.TypeFor[*settingsHolder](),
		WithAbstract(), WithInitMethod("Start"),
		WithProperty("port", "1"), WithProperty("name", "root"))
	_ = s.Register("mid", nil, WithParent("root"), WithAbstract(), WithProperty("port", "2"), WithDestroyMethod("Close"))
	_ = s.Register("leaf", nil, WithParent("mid"), WithTransient(), WithPrimary())

	d, err := s.MergedDescriptor("leaf")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if d.Type != reflect.TypeFor[*settingsHolder]() {
		t.Errorf("expected inherited type, got %v", d.Type)
	}
	if d.Abstract {
		t.Error("abstract must not be inherited")
	}
	if d.Scope != ScopeTransient || !d.Primary {
		t.Errorf("unexpected scope/primary: %v %v", d.Scope, d.Primary)
	}
	if d.InitMethod != "Start" || d.DestroyMethod != "Close" {
		t.Errorf("unexpected callbacks: %q %q", d.InitMethod, d.DestroyMethod)
	}
	if p, _ := d.Property("port"); p.Value != "2" {
		t.Errorf("expected port override, got %v", p.Value)
	}
	if p, _ := d.Property("name"); p.Value != "root" {
		t.Errorf("expected inherited name, got %v", p.Value)
	}

	// 返回副本，修改不影响缓存
	d.Properties[0].Value = "changed"
	again, _ := s.MergedDescriptor("leaf")
	if p, _ := again.Property("port"); p.Value != "2" {
		t.Errorf("merged descriptor was mutated through copy: %v", p.Value)
	}
}

func TestStoreMergeErrors(t *testing.T) {
	s := NewStore()
	_ = s.Register("a", nil, WithParent("b"))
	_ = s.Register("b", nil, WithParent("a"))
	_ = s.Register("orphan", nil, WithParent("missing"))

	if _, err := s.MergedDescriptor("a"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected parent cycle error, got %v", err)
	}
	if _, err := s.MergedDescriptor("orphan"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected missing parent error, got %v", err)
	}
	if _, err := s.MergedDescriptor("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	// 补上父描述后缓存失效
	_ = s.Register("missing", reflect.TypeFor[*repo]())
	if _, err := s.MergedDescriptor("orphan"); err != nil {
		t.Errorf("expected merge to succeed after adding parent, got %v", err)
	}
}

func TestStoreNamesOrder(t *testing.T) {
	s := NewStore()
	for _, n := range []string{"c", "a", "b"} {
		_ = Register[repo](s, n)
	}
	s.Remove("a")

	names := s.Names()
	if len(names) != 2 || names[0] != "c" || names[1] != "b" {
		t.Fatalf("unexpected names: %v", names)
	}
	if s.HasDescriptor("a") {
		t.Error("removed descriptor still present")
	}
}

func TestResolvedStrategy(t *testing.T) {
	cases := []struct {
		d    Descriptor
		want Strategy
	}{
		{Descriptor{Supplier: func() (any, error) { return nil, nil }}, StrategySupplier},
		{Descriptor{FactoryFunc: func() *repo { return nil }}, StrategyFactoryMethod},
		{Descriptor{FactoryBean: "f", FactoryMethod: "New"}, StrategyFactoryMethod},
		{Descriptor{}, StrategyConstructor},
		{Descriptor{Strategy: StrategyConstructor, Supplier: func() (any, error) { return nil, nil }}, StrategyConstructor},
	}
	for i, tc := range cases {
		if got := tc.d.ResolvedStrategy(); got != tc.want {
			t.Errorf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}
