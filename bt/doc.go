// Package bt layers a small behavior-tree vocabulary — decorators and
// composites — on top of ordinary [hsm.HSM] states. A BT node is just
// another state handler: it reads and writes its own bookkeeping, defers to
// a recorded superstate on unrelated events, moves between its children
// with ordinary transitions, and reports its outcome either by letting the
// child's SUCCESS/FAILURE event keep bubbling to its superstate or, where
// the outcome differs from the child's, by posting a new event back into
// the hosting machine.
//
// A [Registry] holds the two things the node handlers need that a plain
// HandlerFunc has no room for: each hosted HSM's completion sink (installed
// with AddCfg) and, per node kind and submachine instance, the node's own
// bookkeeping struct (installed with the Add<Kind> methods). The registry is
// an explicit value, not a package-level singleton — an embedder running
// several independent HSMs (or a test running several in parallel) gets one
// Registry per group that shares topology, not one for the whole process.
package bt
