package hsm

import "fmt"

// ViolationKind classifies a fatal contract violation. The taxonomy mirrors
// the five error classes of the source library: none of these are
// recoverable, since they all indicate a statically wrong topology or a
// caller that broke the dispatch lifecycle, not a runtime condition.
type ViolationKind int

const (
	// LifecycleViolation covers a missing Ctor, a missing or duplicate
	// Init, dispatch before Init, reentrant dispatch, or an Init, Dispatch
	// or Dtor call after Dtor.
	LifecycleViolation ViolationKind = iota
	// ContractViolation covers a handler breaking the Empty/Entry/Exit/Init
	// protocol: a transition from Entry/Exit, a transition to Top, an
	// unrecognized result code, or an Empty handler not returning Super.
	ContractViolation
	// BoundViolation covers HierarchyDepthMax being exceeded while walking
	// the topology — almost always a self-referential Super loop.
	BoundViolation
	// EventViolation covers dispatching a reserved event id. An event id
	// cannot change across a redispatch (Event is passed by value), so no
	// check exists for that.
	EventViolation
	// BTViolation covers behavior-tree contract breaks found by a registry
	// lookup: no sink or no node registered for a hosted HSM. The number of
	// completion events a child posts per activation is not checked.
	BTViolation
)

func (k ViolationKind) String() string {
	switch k {
	case LifecycleViolation:
		return "lifecycle violation"
	case ContractViolation:
		return "contract violation"
	case BoundViolation:
		return "bound violation"
	case EventViolation:
		return "event violation"
	case BTViolation:
		return "bt violation"
	default:
		return "unknown violation"
	}
}

// ViolationError is the value the default assert hook panics with. An
// embedder installing a custom AssertFunc that wants to recover instead of
// crashing the process can construct (or receive) one of these to inspect
// Kind before deciding what to do.
type ViolationError struct {
	Kind    ViolationKind
	Message string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("hsm: %s: %s", e.Kind, e.Message)
}

// AssertFunc is invoked on every fatal contract violation. The default,
// DefaultAssert, panics with a *ViolationError. Tests and embedders that
// want to assert on *which* violation fired, without crashing the test
// binary, install a custom AssertFunc via Config.Assert — see SPEC_FULL.md
// §7 and §10.2.
type AssertFunc func(h *HSM, kind ViolationKind, format string, args ...any)

// DefaultAssert is the zero-value AssertFunc: it panics. State-machine
// topology is static, so a violation here is a programming error, not a
// condition to recover from in production.
func DefaultAssert(h *HSM, kind ViolationKind, format string, args ...any) {
	panic(&ViolationError{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Fail raises a contract violation through h's configured assert hook (or
// DefaultAssert if none is set). Exported so collaborating packages — the bt
// package, chiefly — can surface their own violations (BTViolation) through
// the same hook an embedder already configured for the engine itself,
// instead of maintaining a second assertion path.
func (h *HSM) Fail(kind ViolationKind, format string, args ...any) {
	h.fail(kind, format, args...)
}

func (h *HSM) fail(kind ViolationKind, format string, args ...any) {
	assert := h.cfg.Assert
	if assert == nil {
		assert = DefaultAssert
	}
	assert(h, kind, format, args...)
}

func (h *HSM) assertf(cond bool, kind ViolationKind, format string, args ...any) {
	if !cond {
		h.fail(kind, format, args...)
	}
}
