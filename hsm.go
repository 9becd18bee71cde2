package hsm

// HSM is one hierarchical state machine instance. The zero value is not
// ready to use; construct one with New, or embed it and call Ctor/Init
// directly when mirroring the two-phase construction of the source
// library.
type HSM struct {
	cfg Config

	initial State // recorded at Ctor, invoked once by Init
	state   State // currently active leaf state; zero once Dtor has run
	smi     uint8 // transitive submachine instance — see SPEC_FULL.md §9

	hierarchyLevel int

	ctorCalled         bool
	initCalled         bool
	dispatchInProgress bool
}

// New allocates and constructs an HSM with the given initial state. Init
// must still be called before the first Dispatch.
func New(initial State, opts ...Config) *HSM {
	h := &HSM{}
	h.Ctor(initial, opts...)
	return h
}

// Ctor (re)initializes h: it zeroes all state, records initial for Init to
// invoke, and sets the active state to the top pseudostate. Must be called
// before any other method.
func (h *HSM) Ctor(initial State, opts ...Config) {
	cfg := mergeConfig(opts...)
	*h = HSM{cfg: cfg, initial: initial}
	h.setState(topState)
	h.ctorCalled = true
}

// Init invokes the initial handler recorded by Ctor, which must return
// Tran(target); the engine then builds and runs the entry path from target
// up to (not including) the top pseudostate, recursively honoring any
// further Init-driven transitions into substates. event, if given,
// overrides the default Init event delivered to the initial handler (an
// event with id Init and no payload).
func (h *HSM) Init(event ...Event) {
	h.assertf(h.ctorCalled, LifecycleViolation, "Init called before Ctor")
	h.assertf(!h.initCalled, LifecycleViolation, "Init called more than once")

	end := h.trace("init")
	defer end()

	e := initEvent
	if len(event) > 0 {
		e = event[0]
	}

	r := h.invoke(h.initial, e)
	h.assertf(r.code == codeTran, ContractViolation, "initial handler must return Tran")
	h.assertf(!isTop(r.target), ContractViolation, "cannot transition to the top pseudostate")

	path := h.buildPath(r.target, topState)
	h.enterAndInit(path, r.target)
	h.initCalled = true
}

// Dispatch propagates e up the active state's ancestor chain, running at
// most one transition (plus, if the handling state requested it, a single
// redispatch of e against the new state). Not reentrant: dispatching from
// within a handler is a fatal lifecycle violation.
func (h *HSM) Dispatch(e Event) {
	h.assertf(h.ctorCalled, LifecycleViolation, "Dispatch called before Ctor")
	h.assertf(h.initCalled, LifecycleViolation, "Dispatch called before Init")
	h.assertf(!h.dispatchInProgress, LifecycleViolation, "Dispatch is not reentrant")
	h.assertf(e.ID >= reservedEventCount, EventViolation, "cannot dispatch reserved event id %d", e.ID)

	if h.cfg.Spy != nil {
		h.cfg.Spy(h, e)
	}

	h.dispatchInProgress = true
	defer func() { h.dispatchInProgress = false }()

	end := h.trace("dispatch", e.ID)
	defer end()

	h.dispatchOnce(e, 0)
}

func (h *HSM) dispatchOnce(e Event, redispatchDepth int) {
	active := h.state
	src, result := h.bubble(active, e)

	switch result.code {
	case codeHandled:
		h.setState(active)
	case codeTran, codeTranRedispatch:
		dst := result.target
		h.assertf(!isTop(dst), ContractViolation, "cannot transition to the top pseudostate")
		h.setState(active)
		h.transition(src, dst)

		if result.code == codeTranRedispatch {
			h.assertf(redispatchDepth == 0, ContractViolation, "at most one TranRedispatch is allowed per Dispatch")
			// SPEC_FULL.md's "event id must be unchanged between dispatches"
			// rule holds by construction, not by assertion: Event is a plain
			// value type, so this recursive call only ever sees the caller's
			// own copy of e, and nothing in this package hands out a pointer
			// to it that a handler could mutate.
			h.dispatchOnce(e, redispatchDepth+1)
		}
	default:
		h.fail(ContractViolation, "state handler returned an unrecognized result code")
	}
}

// bubble walks from active up the ancestor chain, invoking each handler
// with e while it returns Super. It returns the last state whose handler
// did not return Super (src) together with that handler's result.
func (h *HSM) bubble(active State, e Event) (src State, result Result) {
	cur := active
	for i := 0; ; i++ {
		h.assertf(i <= h.cfg.HierarchyDepthMax, BoundViolation, "hierarchy depth exceeded while dispatching")
		r := h.invoke(cur, e)
		if r.code != codeSuper {
			return cur, r
		}
		cur = r.target
	}
}

// transition performs the exit/enter dance between src (the state whose
// handler produced the Tran/TranRedispatch) and dst (its target),
// computing their least common ancestor along the way.
func (h *HSM) transition(src, dst State) {
	end := h.trace("transition", src, dst)
	defer end()

	if !statesEqual(h.state, src) {
		for !statesEqual(h.state, src) {
			h.exitState()
		}
	}

	if statesEqual(src, dst) {
		// Self-transition: exit src, then re-enter and re-init it.
		h.exitState()
		h.enterAndInit([]State{dst}, dst)
		return
	}

	path, lcaIsSrc := h.buildPathCut(dst, topState, src)
	if lcaIsSrc {
		h.enterAndInit(path, dst)
		return
	}

	// src is not an ancestor of dst: exit upward from src, scanning at
	// each step whether the newly exposed ancestor lies on dst's path. The
	// matched index can be 0 (dst itself is the ancestor found, i.e. dst is
	// an ancestor of src): dst is already active and is not re-entered, but
	// it still runs Init to settle on a concrete descendant.
	for {
		parent := h.exitState()
		if idx, ok := indexOf(path, parent); ok {
			h.enterAndInit(path[:idx], dst)
			return
		}
		if isTop(parent) {
			h.enterAndInit(path, dst)
			return
		}
	}
}

// enterAndInit enters path from outermost to innermost, then runs Init on
// target (dst on the first iteration, which need not be path[0] — path may
// be empty when dst is already active as an ancestor of the exited state);
// while Init returns Tran, it builds a fresh path from the new target up to
// (not including) the previous target and repeats.
func (h *HSM) enterAndInit(path []State, target State) {
	for {
		for i := len(path) - 1; i >= 0; i-- {
			h.enterState(path[i])
		}
		h.setState(target)

		r := h.invoke(target, initEvent)
		if r.code != codeTran {
			h.assertf(r.code == codeHandled || r.code == codeSuper, ContractViolation, "Init handler must return Handled, Tran or Super")
			return
		}
		h.assertf(!isTop(r.target), ContractViolation, "cannot transition to the top pseudostate")

		path = h.buildPath(r.target, target)
		target = r.target
	}
}

func (h *HSM) enterState(s State) {
	end := h.trace("enter", s)
	defer end()

	r := h.invoke(s, entryEvent)
	h.assertf(r.code == codeHandled, ContractViolation, "Entry handler must not transition")
	h.hierarchyLevel++
}

// exitState exits the currently active state, discovers its superstate
// (via a follow-up Empty invocation, since the Exit handler itself is not
// required to report it) and leaves the HSM positioned at that
// superstate. It returns the superstate.
func (h *HSM) exitState() State {
	cur := h.state

	end := h.trace("exit", cur)
	defer end()

	r := h.invoke(cur, exitEvent)
	h.assertf(r.code == codeHandled, ContractViolation, "Exit handler must not transition")

	er := h.invoke(cur, emptyEvent)
	h.assertf(er.code == codeSuper, ContractViolation, "Empty handler must return Super")

	h.setState(er.target)
	h.hierarchyLevel--
	return er.target
}

// buildPath walks from from up toward top via the Empty protocol,
// returning the chain [from, ..., child-of-until] — until itself is
// excluded, matching the convention that an entry/exit boundary is never
// entered or exited.
func (h *HSM) buildPath(from, until State) []State {
	path := []State{from}
	cur := from
	for i := 0; ; i++ {
		h.assertf(i <= h.cfg.HierarchyDepthMax, BoundViolation, "hierarchy depth exceeded while building a path")
		r := h.invoke(cur, emptyEvent)
		h.assertf(r.code == codeSuper, ContractViolation, "Empty handler must return Super")
		if statesEqual(r.target, until) {
			return path
		}
		path = append(path, r.target)
		cur = r.target
	}
}

// buildPathCut is buildPath with an early exit: if cut is reached before
// until, the walk stops there and returns (path, true) — used during a
// transition to detect that src is an ancestor of dst (src is then the
// LCA) without walking all the way to top.
func (h *HSM) buildPathCut(from, until, cut State) (path []State, cutFound bool) {
	path = []State{from}
	cur := from
	for i := 0; ; i++ {
		h.assertf(i <= h.cfg.HierarchyDepthMax, BoundViolation, "hierarchy depth exceeded while building a path")
		r := h.invoke(cur, emptyEvent)
		h.assertf(r.code == codeSuper, ContractViolation, "Empty handler must return Super")
		if statesEqual(r.target, cut) {
			return path, true
		}
		if statesEqual(r.target, until) {
			return path, false
		}
		path = append(path, r.target)
		cur = r.target
	}
}

func indexOf(path []State, s State) (int, bool) {
	for i, p := range path {
		if statesEqual(p, s) {
			return i, true
		}
	}
	return 0, false
}

// Dtor exits the active state up through every superstate to the top
// pseudostate and clears the lifecycle flags, leaving h in the
// "destructed" state (GetState returns the zero State).
func (h *HSM) Dtor() {
	h.assertf(h.ctorCalled, LifecycleViolation, "Dtor called before Ctor")

	end := h.trace("dtor")
	defer end()

	for !isTop(h.state) {
		h.exitState()
	}
	h.state = State{}
	h.smi = 0
	h.ctorCalled = false
	h.initCalled = false
}

// IsIn reports whether s is the active state or any of its superstates
// (equivalently: whether s lies on the path from the active state to
// top). IsIn(Top) is always true for a constructed, initialized HSM.
func (h *HSM) IsIn(s State) bool {
	if s.Fn == nil {
		return h.state.Fn == nil
	}

	savedSMI := h.smi
	defer func() { h.smi = savedSMI }()

	cur := h.state
	for i := 0; i <= h.cfg.HierarchyDepthMax; i++ {
		if statesEqual(cur, s) {
			return true
		}
		if isTop(cur) {
			return false
		}
		r := h.invoke(cur, emptyEvent)
		h.assertf(r.code == codeSuper, ContractViolation, "Empty handler must return Super")
		cur = r.target
	}
	h.fail(BoundViolation, "hierarchy depth exceeded in IsIn")
	return false
}

// StateIsEq reports whether the active state equals s exactly (no
// ancestor walk).
func (h *HSM) StateIsEq(s State) bool { return statesEqual(h.state, s) }

// GetState returns the active state handle.
func (h *HSM) GetState() State { return h.state }

// GetInstance returns the transitive submachine instance: the instance of
// whichever state is currently being invoked during bubble-up, or of the
// active leaf at quiescence. See SPEC_FULL.md §9 for why this is not
// simply GetState().SMI during propagation.
func (h *HSM) GetInstance() uint8 { return h.smi }

// HierarchyLevel returns the depth of the active state below the top
// pseudostate.
func (h *HSM) HierarchyLevel() int { return h.hierarchyLevel }

// SetSpy installs (or, passed nil, removes) a debug callback invoked
// before propagation for every user event.
func (h *HSM) SetSpy(fn SpyFunc) { h.cfg.Spy = fn }

func (h *HSM) setState(s State) {
	h.state = s
	h.smi = s.SMI
}

func (h *HSM) invoke(s State, e Event) Result {
	h.smi = s.SMI
	return s.Fn(h, e)
}
