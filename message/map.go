package message

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"slices"

	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/minitable"
)

// ErrIteratorInvalidated is reported by a [MapIterator] whose map changed.
var ErrIteratorInvalidated = errors.New("message: map modified during iteration")

// Map is a map field. Keys are held as strings: integer and bool keys in
// their native little-endian width, and string keys as their bytes. A nil
// *Map reads as empty.
type Map struct {
	arena   *arena.Arena
	entries map[string]MsgVal
	version uint64
	keyType minitable.FieldType
	valType minitable.FieldType

	frozen bool
}

// NewMap returns an empty map, allocating values from a.
func NewMap(a *arena.Arena, keyType, valueType minitable.FieldType) *Map {
	return &Map{
		arena:   a,
		entries: make(map[string]MsgVal),
		keyType: keyType,
		valType: valueType,
	}
}

func (x *Map) KeyType() minitable.FieldType { return x.keyType }

func (x *Map) ValueType() minitable.FieldType { return x.valType }

// Freeze makes x read-only, along with any message values.
func (x *Map) Freeze() {
	if x == nil || x.frozen {
		return
	}
	x.frozen = true
	if x.valType.IsSubMessage() {
		for _, v := range x.entries {
			if sub := v.Message(); sub != nil {
				sub.Freeze()
			}
		}
	}
}

func (x *Map) IsFrozen() bool { return x.frozen }

func (x *Map) checkMutable() {
	if x.frozen {
		panic("message: mutation of frozen map")
	}
}

// Len returns the number of entries.
func (x *Map) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}

func encodeKey(t minitable.FieldType, k MsgVal) string {
	if t.IsString() {
		return string(k.StringView())
	}
	var buf [8]byte
	switch t.Rep() {
	case minitable.Rep1Byte:
		buf[0] = byte(k.bits)
		return string(buf[:1])
	case minitable.Rep4Byte:
		binary.LittleEndian.PutUint32(buf[:], uint32(k.bits))
		return string(buf[:4])
	default:
		binary.LittleEndian.PutUint64(buf[:], k.bits)
		return string(buf[:])
	}
}

func decodeKey(t minitable.FieldType, s string) MsgVal {
	if t.IsString() {
		return StringVal(s)
	}
	switch len(s) {
	case 1:
		return MsgVal{bits: uint64(s[0])}
	case 4:
		return MsgVal{bits: uint64(binary.LittleEndian.Uint32([]byte(s)))}
	default:
		return MsgVal{bits: binary.LittleEndian.Uint64([]byte(s))}
	}
}

// Get returns the value for k, and whether it is present.
func (x *Map) Get(k MsgVal) (MsgVal, bool) {
	if x == nil {
		return MsgVal{}, false
	}
	v, ok := x.entries[encodeKey(x.keyType, k)]
	return v, ok
}

// Set stores v under k, reporting whether k is new.
func (x *Map) Set(k, v MsgVal) bool {
	x.checkMutable()
	key := encodeKey(x.keyType, k)
	_, exists := x.entries[key]
	x.entries[key] = v
	x.version++
	return !exists
}

// Delete removes k, reporting whether it was present.
func (x *Map) Delete(k MsgVal) bool {
	x.checkMutable()
	key := encodeKey(x.keyType, k)
	if _, ok := x.entries[key]; !ok {
		return false
	}
	delete(x.entries, key)
	x.version++
	return true
}

// Clear removes every entry.
func (x *Map) Clear() {
	x.checkMutable()
	clear(x.entries)
	x.version++
}

// Range calls fn for each entry, in unspecified order, until fn returns
// false. fn must not modify x.
func (x *Map) Range(fn func(k, v MsgVal) bool) {
	if x == nil {
		return
	}
	for k, v := range x.entries {
		if !fn(decodeKey(x.keyType, k), v) {
			return
		}
	}
}

// MapIterator walks a map in unspecified order. Mutating the map ends the
// iteration, with [MapIterator.Err] reporting [ErrIteratorInvalidated].
type MapIterator struct {
	m       *Map
	err     error
	keys    []string
	key     MsgVal
	value   MsgVal
	i       int
	version uint64
}

// Iterator returns an iterator positioned before the first entry.
func (x *Map) Iterator() *MapIterator {
	it := &MapIterator{m: x}
	if x != nil {
		it.version = x.version
		it.keys = make([]string, 0, len(x.entries))
		for k := range x.entries {
			it.keys = append(it.keys, k)
		}
	}
	return it
}

// Next advances to the next entry.
func (it *MapIterator) Next() bool {
	if it.err != nil || it.m == nil {
		return false
	}
	if it.m.version != it.version {
		it.err = ErrIteratorInvalidated
		return false
	}
	if it.i >= len(it.keys) {
		return false
	}
	k := it.keys[it.i]
	it.i++
	it.key = decodeKey(it.m.keyType, k)
	it.value = it.m.entries[k]
	return true
}

func (it *MapIterator) Key() MsgVal { return it.key }

func (it *MapIterator) Value() MsgVal { return it.value }

func (it *MapIterator) Err() error { return it.err }

// MapEntry is one entry of a sorted snapshot.
type MapEntry struct {
	Key   MsgVal
	Value MsgVal
}

// compareKeys orders keys of type t: strings by bytes, integers
// numerically, and false before true.
func compareKeys(t minitable.FieldType, a, b MsgVal) int {
	switch {
	case t.IsString():
		return bytes.Compare(a.StringView(), b.StringView())
	case t == minitable.TypeBool:
		return cmp.Compare(a.bits, b.bits)
	case t.IsSigned() && t.Is64Bit():
		return cmp.Compare(a.Int64(), b.Int64())
	case t.IsSigned():
		return cmp.Compare(a.Int32(), b.Int32())
	default:
		return cmp.Compare(a.bits, b.bits)
	}
}

// SortedEntries snapshots x into a slice sorted by key, the order used by
// deterministic encoding.
func SortedEntries(x *Map) []MapEntry {
	if x.Len() == 0 {
		return nil
	}
	out := make([]MapEntry, 0, len(x.entries))
	for k, v := range x.entries {
		out = append(out, MapEntry{Key: decodeKey(x.keyType, k), Value: v})
	}
	slices.SortFunc(out, func(a, b MapEntry) int {
		return compareKeys(x.keyType, a.Key, b.Key)
	})
	return out
}
