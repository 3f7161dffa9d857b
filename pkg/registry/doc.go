// Package registry holds the state table of a machine and the history cached while
// its Committed stages run.
//
// Handlers and history policies are registered before the executor starts. During a
// Committed stage the executor records every presentation start with
// WriteStartStateHistory, folds asynchronous updates into the cached step with
// WriteUpdateHistory, and flushes the cache with WriteCachedHistory inside the same
// transaction that persists the next state pointer.
package registry
