// Package factory provides a small generic registry used to instantiate
// pluggable modules (store backends, counter stores, metrics sinks) from
// configuration. A module is a type string plus a map of raw settings;
// factories decode the settings into typed structs with Decode.
//
//	reg := factory.NewRegistry[reference.CounterStore]()
//	reg.Register("redis", func(conf map[string]any) (reference.CounterStore, error) {
//	    var c redisstore.Config
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    ...
//	})
//	cs, err := reg.Create(factory.ModuleConfig{Type: "redis", Conf: map[string]any{"addr": "localhost:6379"}})
package factory
