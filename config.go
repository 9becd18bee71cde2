package hsm

import "context"

// DefaultHierarchyDepthMax bounds both the entry/exit path length and the
// walk performed by IsIn. It exists to turn a misconfigured, self-
// referential Super chain into a fatal assertion instead of an infinite
// loop.
const DefaultHierarchyDepthMax = 16

// TraceFunc wraps one internal operation for observability, following the
// span-like pattern used throughout runpod-hsm's Config.Trace: called at
// the start of an operation with a step name, it returns a (possibly
// replaced) context and a closing function invoked with any trailing
// data once the operation completes.
type TraceFunc func(ctx context.Context, step string, data ...any) (context.Context, func(...any))

// SpyFunc is invoked once, before propagation, for every user event
// dispatched to an HSM that has one installed. It must not mutate the
// HSM.
type SpyFunc func(h *HSM, e Event)

// Config carries the optional, ambient settings of an HSM: bounds,
// tracing, the assertion hook and a debug spy. Each field's zero value is
// a sensible default (see New's defaulting), matching runpod-hsm's
// variadic Config-option convention.
type Config struct {
	HierarchyDepthMax int
	Trace             TraceFunc
	Assert            AssertFunc
	Spy               SpyFunc
}

func mergeConfig(opts ...Config) Config {
	var cfg Config
	for _, o := range opts {
		if o.HierarchyDepthMax != 0 {
			cfg.HierarchyDepthMax = o.HierarchyDepthMax
		}
		if o.Trace != nil {
			cfg.Trace = o.Trace
		}
		if o.Assert != nil {
			cfg.Assert = o.Assert
		}
		if o.Spy != nil {
			cfg.Spy = o.Spy
		}
	}
	if cfg.HierarchyDepthMax == 0 {
		cfg.HierarchyDepthMax = DefaultHierarchyDepthMax
	}
	return cfg
}

func noopTraceEnd(...any) {}

func (h *HSM) trace(step string, data ...any) func(...any) {
	if h.cfg.Trace == nil {
		return noopTraceEnd
	}
	_, end := h.cfg.Trace(context.Background(), step, data...)
	if end == nil {
		return noopTraceEnd
	}
	return end
}
