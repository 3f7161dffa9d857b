/*
Package history persists and encodes the replayable history of a state machine.

A history step is a CommonHistoryBlock stored under its step number. The HistoryList
(two parallel lists of step numbers and priorities) is the only authority on which
steps exist and in which order they replay. A game-cycle counter hands out step
numbers, one per presentation-state start.

Policies decide what a state records: nothing, the full negotiated data on start,
custom serializers, or a finite list of provider services on asynchronous update.
*/
package history
