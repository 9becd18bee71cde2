package bt

import (
	"github.com/arborcode/hsm"
	"github.com/arborcode/hsm/muid"
)

// Two distinct ways a node reports its own outcome to its Superstate:
//
//   - Composites and the repeating decorators (Repeat, RetryUntilSuccess,
//     RunUntilFailure, Count, Delay), whose reported outcome always has
//     the same event id as what just bubbled in: return
//     hsm.Super(Superstate) and let the event already in flight keep
//     bubbling past this node in the same dispatch. No post needed, and
//     none wanted — posting a fresh event here would be re-delivered
//     later by bubbling up from the same still-active child, hitting
//     this node's own case a second time.
//   - Invert, ForceSuccess and ForceFailure, whose outcome is computed
//     from the child's rather than passed through: swallow the in-flight
//     event (hsm.Handled()) and r.post the outcome as a new event whose
//     Data is the node itself. That event is re-delivered up through the
//     same still-active child; the node recognises its own Data and lets
//     it pass with hsm.Super(Superstate) instead of deciding again.
//
// ParallelNode's branch completion is a third case: it crosses into an
// entirely separate *hsm.HSM (the branch), so there is no in-flight event
// to bubble at all — it always posts.

// InvertNode swaps its child's outcome: SUCCESS becomes FAILURE and vice
// versa.
type InvertNode struct {
	Child      hsm.State
	Superstate hsm.State
}

// AddInvert installs nodes under h, assigning submachine instances by
// array position, and returns the state handles to wire into h's topology.
func (r *Registry) AddInvert(h *hsm.HSM, nodes []*InvertNode) []hsm.State {
	return install(r, kindInvert, h, r.invert, nodes)
}

func (r *Registry) invertNode(h *hsm.HSM) *InvertNode {
	return r.lookup(kindInvert, h, h.GetInstance()).(*InvertNode)
}

func (r *Registry) invert(h *hsm.HSM, e hsm.Event) hsm.Result {
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(r.invertNode(h).Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		return hsm.Tran(r.invertNode(h).Child)
	case Success, Failure:
		n := r.invertNode(h)
		if e.Data == n {
			return hsm.Super(n.Superstate)
		}
		out := Success
		if e.ID == Success {
			out = Failure
		}
		r.post(h, hsm.NewEvent(out, n))
		return hsm.Handled()
	default:
		return hsm.Super(r.invertNode(h).Superstate)
	}
}

// ForceSuccessNode reports SUCCESS regardless of its child's outcome.
type ForceSuccessNode struct {
	Child      hsm.State
	Superstate hsm.State
}

func (r *Registry) AddForceSuccess(h *hsm.HSM, nodes []*ForceSuccessNode) []hsm.State {
	return install(r, kindForceSuccess, h, r.forceSuccess, nodes)
}

func (r *Registry) forceSuccessNode(h *hsm.HSM) *ForceSuccessNode {
	return r.lookup(kindForceSuccess, h, h.GetInstance()).(*ForceSuccessNode)
}

func (r *Registry) forceSuccess(h *hsm.HSM, e hsm.Event) hsm.Result {
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(r.forceSuccessNode(h).Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		return hsm.Tran(r.forceSuccessNode(h).Child)
	case Success, Failure:
		n := r.forceSuccessNode(h)
		if e.Data == n {
			return hsm.Super(n.Superstate)
		}
		r.post(h, hsm.NewEvent(Success, n))
		return hsm.Handled()
	default:
		return hsm.Super(r.forceSuccessNode(h).Superstate)
	}
}

// ForceFailureNode reports FAILURE regardless of its child's outcome.
type ForceFailureNode struct {
	Child      hsm.State
	Superstate hsm.State
}

func (r *Registry) AddForceFailure(h *hsm.HSM, nodes []*ForceFailureNode) []hsm.State {
	return install(r, kindForceFailure, h, r.forceFailure, nodes)
}

func (r *Registry) forceFailureNode(h *hsm.HSM) *ForceFailureNode {
	return r.lookup(kindForceFailure, h, h.GetInstance()).(*ForceFailureNode)
}

func (r *Registry) forceFailure(h *hsm.HSM, e hsm.Event) hsm.Result {
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(r.forceFailureNode(h).Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		return hsm.Tran(r.forceFailureNode(h).Child)
	case Success, Failure:
		n := r.forceFailureNode(h)
		if e.Data == n {
			return hsm.Super(n.Superstate)
		}
		r.post(h, hsm.NewEvent(Failure, n))
		return hsm.Handled()
	default:
		return hsm.Super(r.forceFailureNode(h).Superstate)
	}
}

// RepeatNode runs its child Total times in all (the first entry plus
// Total-1 re-entries), reporting SUCCESS once all have run; a single
// FAILURE short-circuits the whole node to FAILURE.
type RepeatNode struct {
	Child      hsm.State
	Superstate hsm.State
	Total      int
	Done       int
}

func (r *Registry) AddRepeat(h *hsm.HSM, nodes []*RepeatNode) []hsm.State {
	return install(r, kindRepeat, h, r.repeat, nodes)
}

func (r *Registry) repeatNode(h *hsm.HSM) *RepeatNode {
	return r.lookup(kindRepeat, h, h.GetInstance()).(*RepeatNode)
}

func (r *Registry) repeat(h *hsm.HSM, e hsm.Event) hsm.Result {
	n := r.repeatNode(h)
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(n.Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		n.Done = 0
		return hsm.Tran(n.Child)
	case Success:
		n.Done++
		if n.Done < n.Total {
			return hsm.Tran(n.Child)
		}
		return hsm.Super(n.Superstate)
	case Failure:
		return hsm.Super(n.Superstate)
	default:
		return hsm.Super(n.Superstate)
	}
}

// RetryUntilSuccessNode re-enters its child on FAILURE, running it at most
// AttemptsTotal times in all (-1 meaning unbounded), reporting SUCCESS as
// soon as the child does.
type RetryUntilSuccessNode struct {
	Child         hsm.State
	Superstate    hsm.State
	AttemptsTotal int
	AttemptsDone  int
}

func (r *Registry) AddRetryUntilSuccess(h *hsm.HSM, nodes []*RetryUntilSuccessNode) []hsm.State {
	return install(r, kindRetryUntilSuccess, h, r.retryUntilSuccess, nodes)
}

func (r *Registry) retryUntilSuccessNode(h *hsm.HSM) *RetryUntilSuccessNode {
	return r.lookup(kindRetryUntilSuccess, h, h.GetInstance()).(*RetryUntilSuccessNode)
}

func (r *Registry) retryUntilSuccess(h *hsm.HSM, e hsm.Event) hsm.Result {
	n := r.retryUntilSuccessNode(h)
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(n.Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		n.AttemptsDone = 0
		return hsm.Tran(n.Child)
	case Success:
		return hsm.Super(n.Superstate)
	case Failure:
		n.AttemptsDone++
		if n.AttemptsTotal == -1 || n.AttemptsDone < n.AttemptsTotal {
			return hsm.Tran(n.Child)
		}
		return hsm.Super(n.Superstate)
	default:
		return hsm.Super(n.Superstate)
	}
}

// RunUntilFailureNode re-enters its child on SUCCESS forever, reporting
// FAILURE as soon as the child does.
type RunUntilFailureNode struct {
	Child      hsm.State
	Superstate hsm.State
}

func (r *Registry) AddRunUntilFailure(h *hsm.HSM, nodes []*RunUntilFailureNode) []hsm.State {
	return install(r, kindRunUntilFailure, h, r.runUntilFailure, nodes)
}

func (r *Registry) runUntilFailureNode(h *hsm.HSM) *RunUntilFailureNode {
	return r.lookup(kindRunUntilFailure, h, h.GetInstance()).(*RunUntilFailureNode)
}

func (r *Registry) runUntilFailure(h *hsm.HSM, e hsm.Event) hsm.Result {
	n := r.runUntilFailureNode(h)
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(n.Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		return hsm.Tran(n.Child)
	case Success:
		return hsm.Tran(n.Child)
	case Failure:
		return hsm.Super(n.Superstate)
	default:
		return hsm.Super(n.Superstate)
	}
}

// DelayNode arms a timer on ENTRY and only enters Child once the timer
// fires (delivered as the reserved Delay event); the child's own outcome
// is forwarded verbatim. Arm/Disarm are supplied by the embedder's timer
// service (SPEC_FULL.md §6); either may be nil for a node under test that
// drives Delay events directly.
type DelayNode struct {
	Child      hsm.State
	Superstate hsm.State
	Ticks      uint32
	Domain     hsm.TickDomain
	Arm        func(ticks uint32, domain hsm.TickDomain)
	Disarm     func()
}

func (r *Registry) AddDelay(h *hsm.HSM, nodes []*DelayNode) []hsm.State {
	return install(r, kindDelay, h, r.delay, nodes)
}

func (r *Registry) delayNode(h *hsm.HSM) *DelayNode {
	return r.lookup(kindDelay, h, h.GetInstance()).(*DelayNode)
}

func (r *Registry) delay(h *hsm.HSM, e hsm.Event) hsm.Result {
	n := r.delayNode(h)
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(n.Superstate)
	case hsm.Entry:
		if n.Arm != nil {
			n.Arm(n.Ticks, n.Domain)
		}
		return hsm.Handled()
	case hsm.Exit:
		if n.Disarm != nil {
			n.Disarm()
		}
		return hsm.Handled()
	case hsm.Init:
		return hsm.Handled()
	case Delay:
		return hsm.Tran(n.Child)
	case Success, Failure:
		return hsm.Super(n.Superstate)
	default:
		return hsm.Super(n.Superstate)
	}
}

// CountNode runs its child at most NTotal times, tallying SUCCESS/FAILURE.
// It reports SUCCESS as soon as SuccessMin runs have succeeded and FAILURE
// as soon as SuccessMin becomes unreachable; once either happens the
// remaining runs are not made, so a node whose SuccessMin is below NTotal
// can report SUCCESS after fewer than NTotal runs.
type CountNode struct {
	Child      hsm.State
	Superstate hsm.State
	NTotal     int
	SuccessMin int
	SuccessCnt int
	FailureCnt int
}

func (r *Registry) AddCount(h *hsm.HSM, nodes []*CountNode) []hsm.State {
	return install(r, kindCount, h, r.count, nodes)
}

func (r *Registry) countNode(h *hsm.HSM) *CountNode {
	return r.lookup(kindCount, h, h.GetInstance()).(*CountNode)
}

func (r *Registry) count(h *hsm.HSM, e hsm.Event) hsm.Result {
	n := r.countNode(h)
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(n.Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		n.SuccessCnt, n.FailureCnt = 0, 0
		return hsm.Tran(n.Child)
	case Success:
		n.SuccessCnt++
		// SuccessMin reachable the instant it's hit — never wait out the
		// remaining runs once the outcome is already certain.
		if n.SuccessCnt >= n.SuccessMin {
			return hsm.Super(n.Superstate)
		}
		return hsm.Tran(n.Child)
	case Failure:
		n.FailureCnt++
		// Symmetric short-circuit: once enough runs have failed that
		// SuccessMin can no longer be reached, report FAILURE without
		// waiting for NTotal runs to finish. Checking both thresholds the
		// instant each vote arrives (rather than only once NTotal runs are
		// all in) means the outcome, once certain, is always caught on the
		// vote that made it certain — and by the same argument the two
		// checks only ever resolve to their own event's type, so this node
		// (unlike a decorator) never needs to post a transformed event.
		if n.FailureCnt > n.NTotal-n.SuccessMin {
			return hsm.Super(n.Superstate)
		}
		return hsm.Tran(n.Child)
	default:
		return hsm.Super(n.Superstate)
	}
}

// FallbackNode (a.k.a. "selector") tries each child in order, reporting
// SUCCESS as soon as one does and FAILURE only if every child does.
type FallbackNode struct {
	Children   []hsm.State
	Superstate hsm.State
	Idx        int
}

func (r *Registry) AddFallback(h *hsm.HSM, nodes []*FallbackNode) []hsm.State {
	return install(r, kindFallback, h, r.fallback, nodes)
}

func (r *Registry) fallbackNode(h *hsm.HSM) *FallbackNode {
	return r.lookup(kindFallback, h, h.GetInstance()).(*FallbackNode)
}

func (r *Registry) fallback(h *hsm.HSM, e hsm.Event) hsm.Result {
	n := r.fallbackNode(h)
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(n.Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		n.Idx = 0
		return hsm.Tran(n.Children[0])
	case Success:
		return hsm.Super(n.Superstate)
	case Failure:
		n.Idx++
		if n.Idx < len(n.Children) {
			return hsm.Tran(n.Children[n.Idx])
		}
		return hsm.Super(n.Superstate)
	default:
		return hsm.Super(n.Superstate)
	}
}

// SequenceNode runs each child in order, reporting FAILURE as soon as one
// does and SUCCESS only if every child does.
type SequenceNode struct {
	Children   []hsm.State
	Superstate hsm.State
	Idx        int
}

func (r *Registry) AddSequence(h *hsm.HSM, nodes []*SequenceNode) []hsm.State {
	return install(r, kindSequence, h, r.sequence, nodes)
}

func (r *Registry) sequenceNode(h *hsm.HSM) *SequenceNode {
	return r.lookup(kindSequence, h, h.GetInstance()).(*SequenceNode)
}

func (r *Registry) sequence(h *hsm.HSM, e hsm.Event) hsm.Result {
	n := r.sequenceNode(h)
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(n.Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		n.Idx = 0
		return hsm.Tran(n.Children[0])
	case Success:
		n.Idx++
		if n.Idx < len(n.Children) {
			return hsm.Tran(n.Children[n.Idx])
		}
		return hsm.Super(n.Superstate)
	case Failure:
		return hsm.Super(n.Superstate)
	default:
		return hsm.Super(n.Superstate)
	}
}

// ParallelNode runs every branch concurrently as an independent HSM built
// by Make, reporting SUCCESS as soon as SuccessMin branches do and FAILURE
// as soon as that becomes unreachable. Each branch's HSM is fully separate
// from the hosting HSM's own tree; the node intercepts each branch's
// completion by registering itself as that branch's sink (see
// parallelBranchComplete), rather than the branch forwarding through its
// own application-level sink.
type ParallelNode struct {
	Make       []func() *hsm.HSM
	Superstate hsm.State
	SuccessMin int

	SubHSMs    []*hsm.HSM
	BranchIDs  []muid.MUID // correlation id per branch, for trace/spy logs
	Done       []bool
	SuccessCnt int
	FailureCnt int
	resolved   bool
}

func (r *Registry) AddParallel(h *hsm.HSM, nodes []*ParallelNode) []hsm.State {
	return install(r, kindParallel, h, r.parallel, nodes)
}

func (r *Registry) parallelNode(h *hsm.HSM) *ParallelNode {
	return r.lookup(kindParallel, h, h.GetInstance()).(*ParallelNode)
}

func (r *Registry) parallel(h *hsm.HSM, e hsm.Event) hsm.Result {
	n := r.parallelNode(h)
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(n.Superstate)
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		n.SubHSMs = make([]*hsm.HSM, len(n.Make))
		n.BranchIDs = make([]muid.MUID, len(n.Make))
		n.Done = make([]bool, len(n.Make))
		n.SuccessCnt, n.FailureCnt, n.resolved = 0, 0, false
		for i, mk := range n.Make {
			branch := i
			sub := mk()
			n.SubHSMs[i] = sub
			n.BranchIDs[i] = r.cfg.IDFunc()
			r.AddCfg(sub, func(e hsm.Event) { r.parallelBranchComplete(h, branch, e) })
			sub.Init()
		}
		return hsm.Handled()
	default:
		return hsm.Super(n.Superstate)
	}
}

// parallelBranchComplete is installed as each branch's own sink. It never
// dispatches anything on h directly; it only updates the node's tally and,
// once the outcome is decided, posts exactly one completion event through
// h's own sink — preserving the "post, don't call" deferred-completion rule
// even across the sub-HSM boundary.
func (r *Registry) parallelBranchComplete(h *hsm.HSM, branch int, e hsm.Event) {
	n := r.parallelNode(h)
	if n.Done[branch] {
		return
	}
	n.Done[branch] = true

	switch e.ID {
	case Success:
		n.SuccessCnt++
		if !n.resolved && n.SuccessCnt >= n.SuccessMin {
			n.resolved = true
			r.post(h, hsm.NewEvent(Success, nil))
		}
	case Failure:
		n.FailureCnt++
		remaining := len(n.SubHSMs) - n.SuccessCnt - n.FailureCnt
		if !n.resolved && n.SuccessCnt+remaining < n.SuccessMin {
			n.resolved = true
			r.post(h, hsm.NewEvent(Failure, nil))
		}
	}
}

// install is the shared body of every Add<Kind> method: it stores each
// node under (kind, h, position-as-instance) and returns the state handles
// an embedder wires into h's own topology.
func install[N any](r *Registry, kind nodeKind, h *hsm.HSM, fn hsm.HandlerFunc, nodes []N) []hsm.State {
	states := make([]hsm.State, len(nodes))
	for i, n := range nodes {
		instance := uint8(i)
		r.store(kind, h, instance, n)
		states[i] = hsm.State{Fn: fn, SMI: instance}
	}
	return states
}
