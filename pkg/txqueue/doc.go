/*
Package txqueue lets goroutines other than the executor request transactional work.

Only the executor opens transactions. Timers and host callbacks submit a unit of work
to a Queue instead; the executor drains the queue between its own transactions, opens
a transaction named after each request, fires it, and closes it.

Two styles are provided:

  - QueuedOperation: fire-and-forget. At most one submission per instance is outstanding.
  - TransactionalOperation: blocking. The caller runs its function on its own goroutine
    while the executor holds the transaction open, then gets the commit result.
*/
package txqueue
