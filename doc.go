// Package hsm implements a hierarchical state machine engine in the style of
// UML/Harel statecharts: states form a tree, transitions compute the least
// common ancestor of source and destination, and entry/exit/init events are
// emitted along the affected chain in a fixed order.
//
// A state is identified by a [State] handle — a function value plus a small
// submachine-instance index — rather than by name. The function is invoked
// with synthetic [Empty] events to let the engine discover its superstate,
// which is how the engine walks the topology without a separate tree data
// structure. This mirrors the function-pointer-as-polymorphism style of the
// C library this package is modeled on, translated into Go: state identity
// is compared by the function's code pointer (via reflect), since function
// values are not otherwise comparable in Go.
//
// Subpackage bt layers a small behavior-tree vocabulary — decorators and
// composites — on top of ordinary HSM states, communicating completion by
// posting SUCCESS/FAILURE events back into the hosting machine.
package hsm
