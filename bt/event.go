package bt

import "github.com/arborcode/hsm"

// Reserved event ids, immediately above the engine's own Empty/Init/Entry/
// Exit block. Success and Failure carry completion outcomes; Delay is
// delivered by the embedder's timer service. Parallel is not used by
// ParallelNode, whose branches report through a plain Go call
// (parallelBranchComplete); it stays reserved for the embedder. Count is
// reserved for symmetry with the node of the same name even though Count
// never uses it (it reports through Success/Failure, like every other
// node).
const (
	Success hsm.EventID = hsm.EngineReservedCount + iota
	Failure
	Delay
	Parallel
	Count

	// FirstUserEventID is the first id an embedder may use for its own
	// events. The engine and this package together reserve everything
	// below it.
	FirstUserEventID
)
