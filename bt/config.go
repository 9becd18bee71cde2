package bt

import (
	"github.com/arborcode/hsm"
	"github.com/arborcode/hsm/muid"
)

// PostFunc enqueues e for later delivery to the hosting HSM. It must be
// safe to call from within a dispatch (typically by pushing onto the
// embedder's own event loop queue) and must preserve FIFO order — see
// SPEC_FULL.md §6.
type PostFunc func(e hsm.Event)

// IDFunc mints a correlation id, used to tag Parallel's sub-HSM instances.
// The zero Config defaults to muid.Make.
type IDFunc func() muid.MUID

// Config carries the optional settings of a Registry, following the same
// variadic-option shape hsm.Config uses.
type Config struct {
	IDFunc IDFunc
}

func mergeConfig(opts ...Config) Config {
	var cfg Config
	for _, o := range opts {
		if o.IDFunc != nil {
			cfg.IDFunc = o.IDFunc
		}
	}
	if cfg.IDFunc == nil {
		cfg.IDFunc = muid.Make
	}
	return cfg
}
