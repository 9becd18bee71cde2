package bt

import (
	"github.com/arborcode/hsm"
	"github.com/arborcode/hsm/syncmap"
)

type nodeKind uint8

const (
	kindInvert nodeKind = iota
	kindForceSuccess
	kindForceFailure
	kindRepeat
	kindRetryUntilSuccess
	kindRunUntilFailure
	kindDelay
	kindCount
	kindFallback
	kindSequence
	kindParallel
)

type nodeKey struct {
	kind     nodeKind
	h        *hsm.HSM
	instance uint8
}

// Registry is a per-group collection of hosted HSMs' completion sinks and
// installed BT node bookkeeping. It is the "context object" resolution of
// the Open Question in SPEC_FULL.md §9: an explicit value constructed with
// NewRegistry, not a package-level singleton, so independent HSM groups
// (and independent tests) never share mutable registry state.
//
// A Registry is safe to populate concurrently — AddCfg and the Add<Kind>
// methods may run from different goroutines during setup, before any
// hosted HSM's Init — but, matching the engine's own single-threaded-per-
// HSM model, lookups performed during dispatch are only ever made from the
// one goroutine driving that HSM.
type Registry struct {
	cfg   Config
	sinks *syncmap.SyncMap[*hsm.HSM, PostFunc]
	nodes *syncmap.SyncMap[nodeKey, any]
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...Config) *Registry {
	return &Registry{
		cfg:   mergeConfig(opts...),
		sinks: syncmap.Make[*hsm.HSM, PostFunc](),
		nodes: syncmap.Make[nodeKey, any](),
	}
}

// AddCfg registers post as h's completion sink: every node hosted by h
// posts its SUCCESS/FAILURE events through post. Registering a sink twice
// for the same h replaces the previous one.
func (r *Registry) AddCfg(h *hsm.HSM, post PostFunc) {
	r.sinks.Store(h, post)
}

// GetCfg returns h's registered sink. ok is false if none was registered.
func (r *Registry) GetCfg(h *hsm.HSM) (post PostFunc, ok bool) {
	return r.sinks.Load(h)
}

func (r *Registry) post(h *hsm.HSM, e hsm.Event) {
	sink, ok := r.GetCfg(h)
	if !ok {
		h.Fail(hsm.BTViolation, "bt: no sink registered for hsm")
		return
	}
	sink(e)
}

func (r *Registry) store(kind nodeKind, h *hsm.HSM, instance uint8, node any) {
	r.nodes.Store(nodeKey{kind: kind, h: h, instance: instance}, node)
}

func (r *Registry) lookup(kind nodeKind, h *hsm.HSM, instance uint8) any {
	v, ok := r.nodes.Load(nodeKey{kind: kind, h: h, instance: instance})
	if !ok {
		h.Fail(hsm.BTViolation, "bt: no node registered for kind %d instance %d", kind, instance)
		return nil
	}
	return v
}

// GetSuperstate returns the recorded superstate of the node at (kind, h,
// instance) — the user state that "owns" the node, as given when it was
// installed. Exposed for tests that want to assert on wiring directly; node
// handlers do not call it, they read the same Superstate field through
// their own typed lookups. A miss is reported through h's assert hook as a
// BTViolation.
func (r *Registry) GetSuperstate(kind nodeKind, h *hsm.HSM, instance uint8) (hsm.State, bool) {
	switch n := r.lookup(kind, h, instance).(type) {
	case *InvertNode:
		return n.Superstate, true
	case *ForceSuccessNode:
		return n.Superstate, true
	case *ForceFailureNode:
		return n.Superstate, true
	case *RepeatNode:
		return n.Superstate, true
	case *RetryUntilSuccessNode:
		return n.Superstate, true
	case *RunUntilFailureNode:
		return n.Superstate, true
	case *DelayNode:
		return n.Superstate, true
	case *CountNode:
		return n.Superstate, true
	case *FallbackNode:
		return n.Superstate, true
	case *SequenceNode:
		return n.Superstate, true
	case *ParallelNode:
		return n.Superstate, true
	default:
		return hsm.State{}, false
	}
}
