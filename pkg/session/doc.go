/*
Package session guards transactions on a shared CriticalDataStore.

Several executors may share one store, each owning a game-mode scope. A Manager
serializes the transactions opened for a scope: inside a process with a ref-counted
mutex per scope, and across replicas with an optional ports.DistributedLocker. The
lock is held from Begin until the transaction is committed or rolled back, so it is
released whenever the executor blocks waiting for events.
*/
package session
