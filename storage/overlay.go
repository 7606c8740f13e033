package storage

import "fmt"

// Overlay buffers writes on top of a backing Database so that a whole
// marketplace invocation can be applied atomically: either every write is
// flushed with Commit, or the overlay is dropped and the backing store stays
// byte-identical to its pre-invocation contents.
//
// Overlay is not safe for concurrent use; the execution model serializes
// invocations against the store.
type Overlay struct {
	backing Database
	writes  map[string][]byte
	order   []string
}

// NewOverlay creates an overlay on top of the provided database.
func NewOverlay(backing Database) *Overlay {
	return &Overlay{
		backing: backing,
		writes:  make(map[string][]byte),
	}
}

// Put records the write in the overlay without touching the backing store.
func (o *Overlay) Put(key []byte, value []byte) error {
	k := string(key)
	if _, ok := o.writes[k]; !ok {
		o.order = append(o.order, k)
	}
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

// Get returns the buffered value when present, falling back to the backing
// store otherwise.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if value, ok := o.writes[string(key)]; ok {
		return value, nil
	}
	return o.backing.Get(key)
}

// Commit flushes the buffered writes to the backing store in insertion order
// and resets the overlay.
func (o *Overlay) Commit() error {
	for _, k := range o.order {
		if err := o.backing.Put([]byte(k), o.writes[k]); err != nil {
			return fmt.Errorf("overlay commit: %w", err)
		}
	}
	o.Discard()
	return nil
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.writes = make(map[string][]byte)
	o.order = nil
}

// Close satisfies the Database interface; the backing store stays open.
func (o *Overlay) Close() {}
