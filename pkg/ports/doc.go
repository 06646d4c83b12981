/*
Package ports defines the driven ports (interfaces) of the sqlgraph engine.

These interfaces decouple the workflow from the collaborators it delegates to:
language models, retrieval, relational databases, sandboxed code execution and
checkpoint storage.

# Key Interfaces

  - LLM: single completions and streamed fragments.
  - Retriever: ranked table, column and evidence documents per scope.
  - Database / DatasourceResolver: SQL execution against a scope's active datasource.
  - CodeRunner: sandboxed Python execution.
  - CheckpointStore / DistributedLocker: suspended sessions and their locks.
*/
package ports
