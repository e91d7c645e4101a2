package config

import (
	"fmt"

	"github.com/kilianp07/haulage/core/factory"
)

// PluginConfig stores the type name of a pluggable backend and its raw
// configuration. Each backend decodes the raw map into its own struct.
type PluginConfig = factory.ModuleConfig

// StoreConfig selects the persistence backends.
//
//	store:
//	  backend: {type: sqlite, conf: {path: haulage.db}}
//	  counters: {type: redis, conf: {addr: localhost:6379}}
type StoreConfig struct {
	// Backend holds jobs, assignments, counters and notifications:
	// memory, sqlite or postgres.
	Backend PluginConfig `json:"backend"`
	// Counters optionally moves reference counters to another backend, e.g.
	// redis when several processes allocate references.
	Counters *PluginConfig `json:"counters"`
}

// SetDefaults selects the memory backend when none is configured.
func (c *StoreConfig) SetDefaults() {
	if c.Backend.Type == "" {
		c.Backend.Type = "memory"
	}
}

// Validate checks that a counters override names a backend.
func (c StoreConfig) Validate() error {
	if c.Counters != nil && c.Counters.Type == "" {
		return fmt.Errorf("store.counters requires a type")
	}
	return nil
}
