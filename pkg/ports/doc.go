/*
Package ports defines the driven ports (interfaces) of the gamestate executor.

These interfaces decouple the executor from the host platform, allowing it to run
against various critical-data backends, presentation bridges and event sources.

# Key Interfaces

  - CriticalDataStore: Opens transactions against the persisted, scoped key/value store.
  - Transaction: An atomic unit of reads and writes; only the executor goroutine holds one.
  - Presentation: Receives started states and asynchronous updates, and sends back messages.
  - Host: Supplies platform events that unblock waits and feed handlers.
  - StageContext: What a state handler sees while its stage runs.
  - DistributedLocker: Guarantees a single executor per game-mode scope.
*/
package ports
