// Package minitable computes the compact layout of a message: where each
// field lives in the message store, how its presence is tracked, and how
// the decoder finds it from a wire tag.
//
// Tables are immutable once built, and safe for concurrent use. Sub-table
// references are linked after construction, allowing cyclic schemas.
package minitable

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field describes one field of a [Message].
type Field struct {
	// Number is the field number.
	Number uint32
	// Offset is a byte offset into the data region, or an index into the
	// pointer slots for [RepPointer] fields.
	Offset uint16
	// Presence is a hasbit index when positive, the bitwise complement of a
	// oneof case offset when negative, or zero for no presence.
	Presence int16
	// SubIndex indexes [Message.Subs] for message, group and closed enum
	// fields.
	SubIndex uint16
	Type     FieldType
	Mode     Mode
}

func (f *Field) Kind() Kind { return f.Mode.Kind() }

// Rep returns the storage class of the slot, which is always [RepPointer]
// for arrays and maps.
func (f *Field) Rep() Rep { return f.Mode.Rep() }

func (f *Field) IsRepeated() bool { return f.Mode.Kind() == KindArray }

func (f *Field) IsMap() bool { return f.Mode.Kind() == KindMap }

func (f *Field) IsScalar() bool { return f.Mode.Kind() == KindScalar }

func (f *Field) IsPacked() bool { return f.Mode&FlagPacked != 0 }

func (f *Field) IsExtension() bool { return f.Mode&FlagExtension != 0 }

func (f *Field) ValidateUTF8() bool { return f.Mode&FlagValidateUTF8 != 0 }

func (f *Field) IsClosedEnum() bool { return f.Mode&FlagClosedEnum != 0 }

func (f *Field) IsRequired() bool { return f.Mode&FlagRequired != 0 }

// HasHasbit reports whether presence is tracked by a hasbit.
func (f *Field) HasHasbit() bool { return f.Presence > 0 }

// Hasbit returns the hasbit index. Only valid when [Field.HasHasbit].
func (f *Field) Hasbit() int { return int(f.Presence) }

// IsOneof reports whether the field belongs to a oneof, including
// synthetic ones.
func (f *Field) IsOneof() bool { return f.Presence < 0 }

// CaseOffset returns the byte offset of the oneof case word. Only valid
// when [Field.IsOneof].
func (f *Field) CaseOffset() int { return int(^f.Presence) }

// HasPresence reports whether has() is independent of the value, which is
// true for hasbit fields, oneof members and singular sub-messages.
func (f *Field) HasPresence() bool {
	return f.Presence != 0 || (f.IsScalar() && f.Type.IsSubMessage())
}

// WireType returns the wire type the encoder emits for this field.
func (f *Field) WireType() protowire.Type {
	if f.IsPacked() {
		return protowire.BytesType
	}
	return f.Type.WireType()
}

// Sub is one entry of a message's sub-table references. Exactly one of its
// fields is set once linking is complete.
type Sub struct {
	Message *Message
	Enum    *Enum
}

// ExtMode describes whether a message accepts extensions.
type ExtMode uint8

const (
	NoExtensions ExtMode = iota
	Extendable
)

// Message is the layout of one message type.
type Message struct {
	// Name is the fully qualified message name, for diagnostics.
	Name string
	// Fields are sorted by number.
	Fields []Field
	Subs   []Sub
	// Size is the length of the data region, in bytes.
	Size int
	// PointerSlots is the number of pointer-class slots.
	PointerSlots  int
	HasbitBytes   int
	RequiredCount int
	OneofCount    int
	// DenseBelow is the count of leading fields numbered 1..n.
	DenseBelow int
	// Fast maps the low six bits of (number<<3 | wire type) to a field
	// index plus one.
	Fast       [64]uint8
	Ext        ExtMode
	IsMapEntry bool
}

// FindFieldByNumber returns the field with number n, or nil.
func (m *Message) FindFieldByNumber(n uint32) *Field {
	if n == 0 {
		return nil
	}
	if int(n) <= m.DenseBelow {
		return &m.Fields[n-1]
	}
	i := sort.Search(len(m.Fields), func(i int) bool { return m.Fields[i].Number >= n })
	if i < len(m.Fields) && m.Fields[i].Number == n {
		return &m.Fields[i]
	}
	return nil
}

// FastLookup finds the field for a decoded tag, consulting the fast table
// before falling back to [Message.FindFieldByNumber]. The wire type of the
// result may differ from wt.
func (m *Message) FastLookup(num protowire.Number, wt protowire.Type) *Field {
	slot := (uint64(num)<<3 | uint64(wt)) & 0x3f
	if idx := m.Fast[slot]; idx != 0 {
		if f := &m.Fields[idx-1]; f.Number == uint32(num) {
			return f
		}
	}
	return m.FindFieldByNumber(uint32(num))
}

// SubMessage returns the sub-table for a message, group or map field.
func (m *Message) SubMessage(f *Field) *Message {
	return m.Subs[f.SubIndex].Message
}

// SubEnum returns the value set for a closed enum field.
func (m *Message) SubEnum(f *Field) *Enum {
	return m.Subs[f.SubIndex].Enum
}

// RequiredMask returns the hasbit mask covering every required field. The
// builder assigns required fields the lowest hasbits, so the mask covers
// bits 1..RequiredCount of the first word.
func (m *Message) RequiredMask() uint64 {
	if m.RequiredCount == 0 {
		return 0
	}
	return (uint64(1)<<m.RequiredCount - 1) << 1
}

// MapKey returns the key field of a map entry table.
func (m *Message) MapKey() *Field { return &m.Fields[0] }

// MapValue returns the value field of a map entry table.
func (m *Message) MapValue() *Field { return &m.Fields[1] }

// Enum is the set of numbers a closed enum accepts.
type Enum struct {
	// low has bit v set for accepted values 0..63
	low uint64
	// rest holds other accepted values, sorted
	rest []int32
}

// NewEnum returns the value set for values. Duplicates are ignored.
func NewEnum(values []int32) *Enum {
	e := new(Enum)
	for _, v := range values {
		if v >= 0 && v < 64 {
			e.low |= 1 << uint(v)
			continue
		}
		e.rest = append(e.rest, v)
	}
	sort.Slice(e.rest, func(i, j int) bool { return e.rest[i] < e.rest[j] })
	out := e.rest[:0]
	for i, v := range e.rest {
		if i == 0 || v != e.rest[i-1] {
			out = append(out, v)
		}
	}
	e.rest = out
	return e
}

// CheckValue reports whether v is a member of the enum.
func (e *Enum) CheckValue(v int32) bool {
	if v >= 0 && v < 64 {
		return e.low&(1<<uint(v)) != 0
	}
	i := sort.Search(len(e.rest), func(i int) bool { return e.rest[i] >= v })
	return i < len(e.rest) && e.rest[i] == v
}
