/*
Package domain contains the core models of the sqlgraph workflow engine.

It defines the shared state store that every workflow node reads from and
writes to, the plan and step model, retrieved documents, failures, streamed
events and checkpoints. The package has no I/O and no external dependencies.

# Key Entities

  - Registry / State: declared keys with Replace or Append merge strategies.
  - Plan / ExecutionStep: the planner output consumed by the step executor.
  - Failure: typed failure records (transient, validation, fatal).
  - Event: streamed display events, terminated by complete or error.
  - Checkpoint: serialized state and node of a suspended instance.
*/
package domain
