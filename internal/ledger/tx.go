package ledger

import (
	"bytes"
	"sort"

	"github.com/agentoven/agentmarket/internal/store"
)

// txEntry is the pending state of one key inside a transaction.
type txEntry struct {
	value   []byte
	deleted bool
}

// txChange is a journal entry: the state a key had before a write.
type txChange struct {
	key  string
	prev txEntry
	had  bool // whether the key had a pending entry before the write
}

// Tx is a write overlay over the store with an undo journal.
// Nested call frames take a Snapshot on entry and RevertToSnapshot on
// failure, so a failing inner call never leaks writes into its caller.
type Tx struct {
	base     store.Store
	dirty    map[string]txEntry
	journal  []txChange
	readOnly bool
}

func newTx(base store.Store) *Tx {
	return &Tx{base: base, dirty: make(map[string]txEntry)}
}

// Get returns the value for key as seen by this transaction.
func (t *Tx) Get(key []byte) ([]byte, bool, error) {
	if e, ok := t.dirty[string(key)]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	v, err := t.base.Get(key)
	if store.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put records a write, journaling the previous pending state.
func (t *Tx) Put(key, value []byte) {
	t.record(string(key))
	t.dirty[string(key)] = txEntry{value: append([]byte(nil), value...)}
}

// Delete records a deletion.
func (t *Tx) Delete(key []byte) {
	t.record(string(key))
	t.dirty[string(key)] = txEntry{deleted: true}
}

func (t *Tx) record(key string) {
	prev, had := t.dirty[key]
	t.journal = append(t.journal, txChange{key: key, prev: prev, had: had})
}

// Iterate merges committed and pending entries under prefix in key order.
func (t *Tx) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	err := t.base.Iterate(prefix, func(k, v []byte) bool {
		merged[string(k)] = v
		return true
	})
	if err != nil {
		return err
	}
	for k, e := range t.dirty {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if e.deleted {
			delete(merged, k)
		} else {
			merged[k] = e.value
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), merged[k]) {
			break
		}
	}
	return nil
}

// Snapshot returns an identifier for the current journal position.
func (t *Tx) Snapshot() int {
	return len(t.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (t *Tx) RevertToSnapshot(id int) {
	for i := len(t.journal) - 1; i >= id; i-- {
		c := t.journal[i]
		if c.had {
			t.dirty[c.key] = c.prev
		} else {
			delete(t.dirty, c.key)
		}
	}
	t.journal = t.journal[:id]
}

// Commit flushes all pending writes to the store as a single batch.
func (t *Tx) Commit() error {
	if t.readOnly || len(t.dirty) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.dirty))
	for k := range t.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := t.base.NewBatch()
	for _, k := range keys {
		e := t.dirty[k]
		if e.deleted {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), e.value)
		}
	}
	return batch.Write()
}
