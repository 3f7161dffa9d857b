/*
Package domain contains the core data model of the gamestate executor.

It defines the persisted state pointer, the history records produced while a state
machine runs, the messages exchanged with the presentation and the host platform,
and the sentinel errors that classify fatal and recoverable conditions. This package
is kept free of I/O and persistence, following Hexagonal Architecture principles.

# Key Entities

  - StateStorage: The persisted pointer (current state, pending state, stage) that makes power-hit resumption possible.
  - HistoryStepRecord: An in-memory history step waiting to be flushed at the end of a Committed stage.
  - CommonHistoryBlock: The replayable snapshot of a presentation state.
  - HistoryEntry: One (step, priority) pair of the append-only HistoryList.
  - DataBag: Named values negotiated with the presentation, grouped by provider.
*/
package domain
