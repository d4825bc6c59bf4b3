package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocrud/container/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueStore(t *testing.T) {
	store := NewValueStore(nil)
	assert.Empty(t, store.Load())
	assert.Zero(t, store.Version())

	assert.EqualValues(t, 1, store.Store(map[string]any{"key": "value"}))
	assert.Equal(t, "value", store.Load()["key"])
	assert.EqualValues(t, 2, store.Store(nil))
	assert.NotNil(t, store.Load())
}

func TestKeySegments(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, keySegments.split("a:b.c"))
	assert.Equal(t, []string{"a", "b", "c"}, keySegments.split("a:b.c"))
	assert.Equal(t, []string{"a", "b"}, keySegments.split(":a..b:"))
}

type countingSource struct {
	loads int
	fail  bool
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load() (map[string]any, error) {
	if s.fail {
		return nil, errors.New("unavailable")
	}
	s.loads++
	return map[string]any{"loads": s.loads}, nil
}

func TestReload(t *testing.T) {
	src := &countingSource{}
	cfg, err := NewConfigurationBuilder().Add(src).Build()
	require.NoError(t, err)
	r, ok := cfg.(Reloadable)
	require.True(t, ok)
	assert.Equal(t, "1", cfg.Get("loads"))

	require.NoError(t, r.Reload())
	assert.Equal(t, "2", cfg.Get("loads"))
	assert.EqualValues(t, 1, r.Version())

	src.fail = true
	assert.Error(t, r.Reload())
	assert.Equal(t, "2", cfg.Get("loads"), "失败时保留旧快照")
}

func TestBuilderLayersSources(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("container:\n  allowCircularReferences: false\n  logLevel: debug\n"), 0o644))
	jsonPath := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"container":{"logLevel":"warn"}}`), 0o644))

	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"container": map[string]any{"preInstantiate": true}}).
		AddYamlFile(yamlPath).
		AddJsonFile(jsonPath).
		AddJsonFile(filepath.Join(dir, "missing.json"), true).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Get("container:logLevel"))
	assert.Equal(t, "false", cfg.Get("container.allowCircularReferences"))
	assert.Equal(t, "true", cfg.Get("container:preInstantiate"))
	assert.Equal(t, "fallback", cfg.GetWithDefault("container:missing", "fallback"))
	assert.Equal(t, "warn", cfg.GetSection("container").Get("logLevel"))
}

func TestBuilderRequiredFileMissing(t *testing.T) {
	_, err := NewConfigurationBuilder().AddYamlFile(filepath.Join(t.TempDir(), "none.yaml")).Build()
	assert.Error(t, err)
}

func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("CTRTEST_CRON_SECONDS", "true")
	t.Setenv("CTRTEST_POOL_SIZE", "8")

	cfg, err := NewConfigurationBuilder().AddEnvironmentVariables("CTRTEST_").Build()
	require.NoError(t, err)

	v, ok := cfg.Lookup("cron:seconds")
	require.True(t, ok)
	assert.Equal(t, true, v)

	n, err := GetAs[int](cfg, "pool:size")
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestLoad(t *testing.T) {
	type settings struct {
		Name    string `json:"name"`
		Retries int    `json:"retries"`
		Debug   bool   `json:"debug"`
	}
	cfg := FromMap(map[string]any{
		"svc": map[string]any{"name": "orders", "retries": 3},
	})

	s, err := Load[settings](cfg, "svc")
	require.NoError(t, err)
	assert.Equal(t, settings{Name: "orders", Retries: 3}, s)

	_, err = Load[settings](cfg, "nope")
	assert.Error(t, err)

	d, err := LoadOrDefault(cfg, "nope", settings{Debug: true})
	require.NoError(t, err)
	assert.True(t, d.Debug)

	d, err = LoadOrDefault(cfg, "svc", settings{Debug: true})
	require.NoError(t, err)
	assert.Equal(t, settings{Name: "orders", Retries: 3, Debug: true}, d)
}

func TestGetAs(t *testing.T) {
	cfg := FromMap(map[string]any{"timeout": "250", "ratio": 0.5, "name": "x"})

	n, err := GetAs[int](cfg, "timeout")
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	f, err := GetAs[float64](cfg, "ratio")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	_, err = GetAs[int](cfg, "name")
	assert.Error(t, err)
	_, err = GetAs[int](cfg, "missing")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	cfg := FromMap(map[string]any{
		"db": map[string]any{"host": "localhost", "port": 5432},
	})

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "plain", want: "plain"},
		{in: "${db:host}:${db:port}", want: "localhost:5432"},
		{in: "${db:user:-root}@${db.host}", want: "root@localhost"},
		{in: "${db:user}", wantErr: true},
		{in: "${db:host", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Resolve(cfg, tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type endpoint struct {
	Addr    string
	Retries int
}

func TestPlaceholderHookResolvesProperties(t *testing.T) {
	cfg := FromMap(map[string]any{"svc": map[string]any{"addr": "10.0.0.1:80", "retries": "4"}})

	store := di.NewStore()
	require.NoError(t, di.Register[endpoint](store, "ep",
		di.WithProperty("Addr", "${svc:addr}"),
		di.WithProperty("Retries", "${svc:retries:-1}")))
	c := di.New(store, di.WithHooks(NewPlaceholderHook(cfg)))

	ep, err := di.Get[*endpoint](context.Background(), c, "ep")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:80", ep.Addr)
	assert.Equal(t, 4, ep.Retries)
}

func TestPlaceholderHookUnresolved(t *testing.T) {
	store := di.NewStore()
	require.NoError(t, di.Register[endpoint](store, "ep", di.WithProperty("Addr", "${missing}")))
	c := di.New(store, di.WithHooks(NewPlaceholderHook(FromMap(nil))))

	_, err := c.GetOrCreate(context.Background(), "ep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "${missing}")
}
