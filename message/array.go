package message

import (
	"encoding/binary"

	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/minitable"
	"github.com/joeycumines/goja-upb/status"
)

// Array is a repeated field. Scalar elements are packed into arena memory at
// their natural width. String and message elements are kept as values in a
// typed slice. A nil *Array reads as empty.
type Array struct {
	arena *arena.Arena
	// data holds scalar elements; its length is the capacity in bytes
	data []byte
	refs []MsgVal
	n    int
	typ  minitable.FieldType
	lg2  uint8

	frozen bool
}

// NewArray returns an empty array of t, allocating from a.
func NewArray(a *arena.Arena, t minitable.FieldType) *Array {
	x := &Array{arena: a, typ: t}
	switch t.Rep() {
	case minitable.Rep1Byte:
		x.lg2 = 0
	case minitable.Rep4Byte:
		x.lg2 = 2
	case minitable.Rep8Byte:
		x.lg2 = 3
	default:
		x.lg2 = 4
	}
	return x
}

func (x *Array) Type() minitable.FieldType { return x.typ }

// ElemSizeLg2 returns log2 of the element size: 0, 2 or 3 for scalars, and
// 4 for string views and references.
func (x *Array) ElemSizeLg2() int { return int(x.lg2) }

func (x *Array) isRef() bool { return x.lg2 == 4 }

// Len returns the number of elements.
func (x *Array) Len() int {
	if x == nil {
		return 0
	}
	return x.n
}

// Cap returns the number of elements that fit without growing.
func (x *Array) Cap() int {
	if x == nil {
		return 0
	}
	if x.isRef() {
		return cap(x.refs)
	}
	return len(x.data) >> x.lg2
}

// Freeze makes x read-only, along with any message elements.
func (x *Array) Freeze() {
	if x == nil || x.frozen {
		return
	}
	x.frozen = true
	if x.typ.IsSubMessage() {
		for _, v := range x.refs[:x.n] {
			if sub := v.Message(); sub != nil {
				sub.Freeze()
			}
		}
	}
}

func (x *Array) IsFrozen() bool { return x.frozen }

func (x *Array) checkMutable() {
	if x.frozen {
		panic("message: mutation of frozen array")
	}
}

func (x *Array) load(i int) MsgVal {
	if x.isRef() {
		return x.refs[i]
	}
	off := i << x.lg2
	switch x.lg2 {
	case 0:
		return MsgVal{bits: uint64(x.data[off])}
	case 2:
		return MsgVal{bits: uint64(binary.LittleEndian.Uint32(x.data[off:]))}
	default:
		return MsgVal{bits: binary.LittleEndian.Uint64(x.data[off:])}
	}
}

func (x *Array) store(i int, v MsgVal) {
	if x.isRef() {
		x.refs[i] = v
		return
	}
	off := i << x.lg2
	switch x.lg2 {
	case 0:
		x.data[off] = byte(v.bits)
	case 2:
		binary.LittleEndian.PutUint32(x.data[off:], uint32(v.bits))
	default:
		binary.LittleEndian.PutUint64(x.data[off:], v.bits)
	}
}

func (x *Array) outOfRange(i int) error {
	return status.Errorf(status.OutOfRange, "index %d out of range [0, %d)", i, x.Len())
}

// Get returns element i. It panics if i is out of range, like a slice
// index; see [Array.At] for a checked variant.
func (x *Array) Get(i int) MsgVal {
	if i < 0 || i >= x.Len() {
		panic(x.outOfRange(i))
	}
	return x.load(i)
}

// At returns element i, failing with [status.OutOfRange].
func (x *Array) At(i int) (MsgVal, error) {
	if i < 0 || i >= x.Len() {
		return MsgVal{}, x.outOfRange(i)
	}
	return x.load(i), nil
}

// Set replaces element i, failing with [status.OutOfRange].
func (x *Array) Set(i int, v MsgVal) error {
	x.checkMutable()
	if i < 0 || i >= x.Len() {
		return x.outOfRange(i)
	}
	x.store(i, v)
	return nil
}

// reserve ensures capacity for n elements, doubling as needed.
func (x *Array) reserve(n int) error {
	if n <= x.Cap() {
		return nil
	}
	newCap := max(4, 2*x.Cap(), n)
	if x.isRef() {
		refs := make([]MsgVal, x.n, newCap)
		copy(refs, x.refs)
		x.refs = refs
		return nil
	}
	data, err := x.arena.Realloc(x.data, newCap<<x.lg2)
	if err != nil {
		return err
	}
	x.data = data
	return nil
}

// Append adds v to the end. Amortized O(1).
func (x *Array) Append(v MsgVal) error {
	x.checkMutable()
	if err := x.reserve(x.n + 1); err != nil {
		return err
	}
	if x.isRef() {
		x.refs = x.refs[:x.n+1]
	}
	x.store(x.n, v)
	x.n++
	return nil
}

// Resize sets the length to n. New elements are zero.
func (x *Array) Resize(n int) error {
	x.checkMutable()
	if n < 0 {
		return x.outOfRange(n)
	}
	if err := x.reserve(n); err != nil {
		return err
	}
	if x.isRef() {
		if n < x.n {
			clear(x.refs[n:x.n])
		}
		x.refs = x.refs[:n]
	} else if n > x.n {
		clear(x.data[x.n<<x.lg2 : n<<x.lg2])
	}
	x.n = n
	return nil
}

// Clear sets the length to zero.
func (x *Array) Clear() {
	_ = x.Resize(0)
}
