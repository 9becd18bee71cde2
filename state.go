package hsm

import "reflect"

// HandlerFunc is the signature every state in an HSM implements. Invoked
// with Empty it must return Super(parent); invoked with Entry or Exit it
// must return Handled(); invoked with Init it may return Handled() or
// Tran(substate); for any other event it may return any Result except a
// Tran/TranRedispatch targeting the top pseudostate.
type HandlerFunc func(*HSM, Event) Result

// State is a handle identifying one node in the hierarchy: a handler
// function plus a submachine instance index. A single HandlerFunc can
// serve as several distinct states of one machine by varying SMI — this is
// what lets one handler be reused across, say, two parallel sub-branches.
//
// The zero State (nil Fn) represents "no active state", used only for an
// HSM that has not been constructed yet, or one that has been torn down.
type State struct {
	Fn  HandlerFunc
	SMI uint8
}

// IsZero reports whether s represents "no state".
func (s State) IsZero() bool { return s.Fn == nil }

// Equal reports whether two state handles name the same node: same
// handler (by code pointer — Go function values are not otherwise
// comparable) and same submachine instance. Two zero states are equal by
// convention (mirrors the source library's fn==NULL-means-equal rule).
func (s State) Equal(o State) bool { return statesEqual(s, o) }

type stateKey struct {
	ptr uintptr
	smi uint8
}

func (s State) key() stateKey {
	if s.Fn == nil {
		return stateKey{}
	}
	return stateKey{ptr: reflect.ValueOf(s.Fn).Pointer(), smi: s.SMI}
}

func statesEqual(a, b State) bool {
	if a.Fn == nil || b.Fn == nil {
		return a.Fn == nil && b.Fn == nil
	}
	return a.key() == b.key()
}

// Top is the distinguished pseudostate at the root of every hierarchy. It
// always handles whatever it is given and is never a legal transition
// target. Reference it directly — State{Fn: hsm.Top} — from a top-level
// user state's Empty handler.
func Top(*HSM, Event) Result { return Handled() }

var topState = State{Fn: Top}

func isTop(s State) bool { return statesEqual(s, topState) }

// resultCode is the tag of the Result sum type.
type resultCode uint8

const (
	codeHandled resultCode = iota
	codeTran
	codeTranRedispatch
	codeSuper
)

// Result is the value every HandlerFunc returns: a tagged variant over
// Handled, Tran(target), TranRedispatch(target) and Super(parent). The
// staged target (for Tran/TranRedispatch/Super) is carried directly on the
// value rather than through a side channel, since Go lets a function
// return a struct without extra bookkeeping on the HSM.
type Result struct {
	code   resultCode
	target State
}

// Handled reports that the event was fully processed without a transition.
func Handled() Result { return Result{code: codeHandled} }

// Tran triggers a transition to target.
func Tran(target State) Result { return Result{code: codeTran, target: target} }

// TranRedispatch triggers a transition to target and then re-dispatches the
// same event once more, starting from the new state. At most one
// redispatch is honored per Dispatch call; a second is a contract
// violation.
func TranRedispatch(target State) Result { return Result{code: codeTranRedispatch, target: target} }

// Super defers to parent as this state's superstate. Every handler must
// return this (with the real superstate, or State{Fn: Top}) when invoked
// with an Empty event.
func Super(parent State) Result { return Result{code: codeSuper, target: parent} }
