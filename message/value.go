package message

import (
	"math"
	"unsafe"

	"github.com/joeycumines/goja-upb/minitable"
)

// MsgVal holds one field value. The interpretation of the word and pointer
// is given by the field's type, which is carried alongside rather than in
// the value.
//
// Scalars live in bits, zero-extended from their natural width. Strings and
// bytes are a view: ptr addresses the first byte and bits is the length.
// Sub-messages, arrays and maps are a pointer with bits unused.
type MsgVal struct {
	ptr  unsafe.Pointer
	bits uint64
}

func BoolVal(v bool) MsgVal {
	if v {
		return MsgVal{bits: 1}
	}
	return MsgVal{}
}

func Int32Val(v int32) MsgVal { return MsgVal{bits: uint64(uint32(v))} }

func Int64Val(v int64) MsgVal { return MsgVal{bits: uint64(v)} }

func Uint32Val(v uint32) MsgVal { return MsgVal{bits: uint64(v)} }

func Uint64Val(v uint64) MsgVal { return MsgVal{bits: v} }

func Float32Val(v float32) MsgVal { return MsgVal{bits: uint64(math.Float32bits(v))} }

func Float64Val(v float64) MsgVal { return MsgVal{bits: math.Float64bits(v)} }

// StringVal returns a view of s, without copying.
func StringVal(s string) MsgVal {
	return MsgVal{ptr: unsafe.Pointer(unsafe.StringData(s)), bits: uint64(len(s))}
}

// BytesVal returns a view of b, without copying.
func BytesVal(b []byte) MsgVal {
	return MsgVal{ptr: unsafe.Pointer(unsafe.SliceData(b)), bits: uint64(len(b))}
}

func MessageVal(m *Message) MsgVal { return MsgVal{ptr: unsafe.Pointer(m)} }

func ArrayVal(a *Array) MsgVal { return MsgVal{ptr: unsafe.Pointer(a)} }

func MapVal(m *Map) MsgVal { return MsgVal{ptr: unsafe.Pointer(m)} }

func (v MsgVal) Bool() bool { return v.bits != 0 }

func (v MsgVal) Int32() int32 { return int32(uint32(v.bits)) }

func (v MsgVal) Int64() int64 { return int64(v.bits) }

func (v MsgVal) Uint32() uint32 { return uint32(v.bits) }

func (v MsgVal) Uint64() uint64 { return v.bits }

func (v MsgVal) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }

func (v MsgVal) Float64() float64 { return math.Float64frombits(v.bits) }

// Bits returns the raw word.
func (v MsgVal) Bits() uint64 { return v.bits }

// StringView returns the bytes of a string or bytes value. The result
// aliases arena memory, and must not be modified.
func (v MsgVal) StringView() []byte {
	if v.bits == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(v.ptr), int(v.bits))
}

// String returns a copy of a string or bytes value.
func (v MsgVal) String() string {
	if v.bits == 0 {
		return ""
	}
	return string(v.StringView())
}

// Len returns the length of a string or bytes value.
func (v MsgVal) Len() int { return int(v.bits) }

func (v MsgVal) Message() *Message { return (*Message)(v.ptr) }

func (v MsgVal) Array() *Array { return (*Array)(v.ptr) }

func (v MsgVal) Map() *Map { return (*Map)(v.ptr) }

// IsZero reports whether v is the zero of any type.
func (v MsgVal) IsZero() bool { return v.bits == 0 && v.ptr == nil }

// isZeroScalar reports whether v holds the zero of a scalar or string type.
// A string view is zero when empty, wherever it points.
func isZeroScalar(v MsgVal, t minitable.FieldType) bool {
	if t.IsString() {
		return v.bits == 0
	}
	if t.IsSubMessage() {
		return v.ptr == nil
	}
	return v.bits == 0
}

// width returns the number of meaningful bytes in the word for t.
func width(t minitable.FieldType) int {
	switch t.Rep() {
	case minitable.Rep1Byte:
		return 1
	case minitable.Rep4Byte:
		return 4
	}
	return 8
}
