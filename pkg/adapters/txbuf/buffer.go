// Package txbuf provides the write buffer shared by the critical-data store adapters.
//
// Adapters read committed data from their backend, overlay the writes buffered by the
// open transaction, and apply the buffer atomically on Commit.
package txbuf

import (
	"sort"

	"github.com/aretw0/gamestate/pkg/domain"
)

// Key addresses one value of the store.
type Key struct {
	Scope domain.Scope
	Path  string
}

// String renders the key as "scope/path".
func (k Key) String() string {
	return string(k.Scope) + "/" + k.Path
}

// Op is a buffered mutation. A nil Data with Removed set deletes the key.
type Op struct {
	Key     Key
	Data    []byte
	Removed bool
}

// Buffer records the mutations of one transaction in write order.
// It is not safe for concurrent use; a transaction belongs to one goroutine.
type Buffer struct {
	ops    map[Key]Op
	order  []Key
	closed bool
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{ops: make(map[Key]Op)}
}

// Write buffers a value. The slice is copied.
func (b *Buffer) Write(scope domain.Scope, path string, data []byte) error {
	if b.closed {
		return domain.ErrTransactionClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.put(Op{Key: Key{Scope: scope, Path: path}, Data: cp})
	return nil
}

// Remove buffers a deletion.
func (b *Buffer) Remove(scope domain.Scope, path string) error {
	if b.closed {
		return domain.ErrTransactionClosed
	}
	b.put(Op{Key: Key{Scope: scope, Path: path}, Removed: true})
	return nil
}

func (b *Buffer) put(op Op) {
	if _, ok := b.ops[op.Key]; !ok {
		b.order = append(b.order, op.Key)
	}
	b.ops[op.Key] = op
}

// Lookup returns the buffered mutation of a key, if any.
func (b *Buffer) Lookup(scope domain.Scope, path string) (Op, bool) {
	op, ok := b.ops[Key{Scope: scope, Path: path}]
	return op, ok
}

// Read resolves a key against the buffer, falling back to committed data via load.
func (b *Buffer) Read(scope domain.Scope, path string, load func(Key) ([]byte, error)) ([]byte, error) {
	if b.closed {
		return nil, domain.ErrTransactionClosed
	}
	if op, ok := b.Lookup(scope, path); ok {
		if op.Removed {
			return nil, domain.ErrNotFound
		}
		cp := make([]byte, len(op.Data))
		copy(cp, op.Data)
		return cp, nil
	}
	return load(Key{Scope: scope, Path: path})
}

// Ops returns the buffered mutations in first-write order.
func (b *Buffer) Ops() []Op {
	out := make([]Op, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.ops[k])
	}
	return out
}

// Len returns the number of buffered keys.
func (b *Buffer) Len() int {
	return len(b.order)
}

// Closed reports whether Close was called.
func (b *Buffer) Closed() bool {
	return b.closed
}

// Close marks the transaction finished. Further use returns domain.ErrTransactionClosed.
func (b *Buffer) Close() {
	b.closed = true
	b.ops = nil
	b.order = nil
}

// SortedKeys returns keys sorted by their string form, for deterministic listings.
func SortedKeys(keys []Key) []Key {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
