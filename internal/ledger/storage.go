package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/agentoven/agentmarket/internal/codec"
)

// Reader is read access to a key space.
type Reader interface {
	Get(key []byte) ([]byte, bool, error)
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
}

// Writer is read-write access to a key space.
type Writer interface {
	Reader
	Put(key, value []byte)
	Delete(key []byte)
}

// programPrefix namespaces every key a program writes.
func programPrefix(addr Address) []byte {
	p := make([]byte, 0, 2+AddressLength+1)
	p = append(p, 'p', '/')
	p = append(p, addr[:]...)
	return append(p, '/')
}

// view is a prefixed, read-only window on a key space.
type view struct {
	r      Reader
	prefix []byte
}

func (v view) Get(key []byte) ([]byte, bool, error) {
	return v.r.Get(concat(v.prefix, key))
}

func (v view) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	return v.r.Iterate(concat(v.prefix, prefix), func(k, val []byte) bool {
		return fn(k[len(v.prefix):], val)
	})
}

// Storage is a program's own key space inside the current transaction.
type Storage struct {
	view
	w Writer
}

func newStorage(w Writer, addr Address) *Storage {
	prefix := programPrefix(addr)
	return &Storage{view: view{r: w, prefix: prefix}, w: w}
}

func (s *Storage) Put(key, value []byte) { s.w.Put(concat(s.prefix, key), value) }
func (s *Storage) Delete(key []byte)     { s.w.Delete(concat(s.prefix, key)) }

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// ── Typed collections ───────────────────────────────────────

// Mapper is a named, typed collection in a program's storage.
// Keys are the mapper name followed by the given key parts. Only the last
// part may be variable length; fixed-width parts come from U32, U64 and
// AddressKey.
type Mapper[V any] struct {
	name string
}

// NewMapper declares a collection stored under name.
func NewMapper[V any](name string) Mapper[V] {
	return Mapper[V]{name: name}
}

func (m Mapper[V]) Name() string { return m.name }

func (m Mapper[V]) key(parts ...[]byte) []byte {
	return concat(append([][]byte{[]byte(m.name + ":")}, parts...)...)
}

// Get decodes the value under the key, reporting whether it exists.
func (m Mapper[V]) Get(r Reader, parts ...[]byte) (V, bool, error) {
	var v V
	raw, ok, err := r.Get(m.key(parts...))
	if err != nil || !ok {
		return v, false, err
	}
	if err := codec.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", m.name, err)
	}
	return v, true, nil
}

// Set encodes v under the key.
func (m Mapper[V]) Set(w Writer, v V, parts ...[]byte) error {
	raw, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.name, err)
	}
	w.Put(m.key(parts...), raw)
	return nil
}

// SetIfAbsent stores v only when the key is unset and reports whether it
// wrote.
func (m Mapper[V]) SetIfAbsent(w Writer, v V, parts ...[]byte) (bool, error) {
	ok, err := m.Has(w, parts...)
	if err != nil || ok {
		return false, err
	}
	return true, m.Set(w, v, parts...)
}

func (m Mapper[V]) Delete(w Writer, parts ...[]byte) {
	w.Delete(m.key(parts...))
}

func (m Mapper[V]) Has(r Reader, parts ...[]byte) (bool, error) {
	_, ok, err := r.Get(m.key(parts...))
	return ok, err
}

// Each visits every entry whose key starts with the given parts. rest is the
// remainder of the key after those parts.
func (m Mapper[V]) Each(r Reader, fn func(rest []byte, v V) bool, parts ...[]byte) error {
	prefix := m.key(parts...)
	var decodeErr error
	err := r.Iterate(prefix, func(k, raw []byte) bool {
		var v V
		if err := codec.Unmarshal(raw, &v); err != nil {
			decodeErr = fmt.Errorf("decode %s: %w", m.name, err)
			return false
		}
		return fn(bytes.Clone(k[len(prefix):]), v)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// ── Key parts ───────────────────────────────────────────────

func U32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func U64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func DecodeU32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func DecodeU64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func AddressKey(a Address) []byte { return a[:] }

func Str(s string) []byte { return []byte(s) }
