package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterBackend struct {
	Addr   string
	Prefix string
	DB     int
}

type counterConf struct {
	Addr   string `json:"addr"`
	Prefix string `json:"prefix"`
	DB     int    `json:"db"`
}

func counterFactory(conf map[string]any) (*counterBackend, error) {
	var c counterConf
	if err := Decode(conf, &c); err != nil {
		return nil, err
	}
	return &counterBackend{Addr: c.Addr, Prefix: c.Prefix, DB: c.DB}, nil
}

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*counterBackend]()
	require.NoError(t, reg.Register("redis", counterFactory))

	inst, err := reg.Create(ModuleConfig{Type: "Redis", Conf: map[string]any{"addr": "cache:6379", "prefix": "haulage:", "db": 2}})
	require.NoError(t, err)
	assert.Equal(t, &counterBackend{Addr: "cache:6379", Prefix: "haulage:", DB: 2}, inst)
}

func TestRegistry_NilConf(t *testing.T) {
	reg := NewRegistry[*counterBackend]()
	require.NoError(t, reg.Register("redis", counterFactory))
	inst, err := reg.Create(ModuleConfig{Type: "redis"})
	require.NoError(t, err)
	assert.Empty(t, inst.Addr)
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[int]()
	require.NoError(t, reg.Register("memory", func(map[string]any) (int, error) { return 1, nil }))
	require.NoError(t, reg.Register("sqlite", func(map[string]any) (int, error) { return 2, nil }))

	assert.Error(t, reg.Register("MEMORY", func(map[string]any) (int, error) { return 3, nil }))
	assert.Error(t, reg.Register("postgres", nil))
	assert.Equal(t, []string{"memory", "sqlite"}, reg.Names())

	_, err := reg.Create(ModuleConfig{Type: "mongo"})
	assert.ErrorContains(t, err, `unknown module type "mongo" (known: memory, sqlite)`)
}

func TestDecode_StringsFromEnvironment(t *testing.T) {
	var c struct {
		DialTimeoutMS int  `json:"dial_timeout_ms"`
		SkipMigrate   bool `json:"skip_migrate"`
	}
	require.NoError(t, Decode(map[string]any{"dial_timeout_ms": "2500", "skip_migrate": "true"}, &c))
	assert.Equal(t, 2500, c.DialTimeoutMS)
	assert.True(t, c.SkipMigrate)
}
