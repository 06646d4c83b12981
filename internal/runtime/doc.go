// Package runtime is the explicit state machine that drives a workflow.
//
// A Graph registers node handlers, unconditional edges and conditional
// dispatchers. Compile freezes it against a state registry. Each Run walks the
// graph one node at a time: the node runs on its own goroutine, its events are
// forwarded to the sink in emission order, and its update is committed to the
// state only after it returns. Dispatchers then choose the successor from the
// committed state.
package runtime
