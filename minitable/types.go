package minitable

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// FieldType is a descriptor field type, numbered as in descriptor.proto.
type FieldType uint8

const (
	TypeDouble   FieldType = 1
	TypeFloat    FieldType = 2
	TypeInt64    FieldType = 3
	TypeUInt64   FieldType = 4
	TypeInt32    FieldType = 5
	TypeFixed64  FieldType = 6
	TypeFixed32  FieldType = 7
	TypeBool     FieldType = 8
	TypeString   FieldType = 9
	TypeGroup    FieldType = 10
	TypeMessage  FieldType = 11
	TypeBytes    FieldType = 12
	TypeUInt32   FieldType = 13
	TypeEnum     FieldType = 14
	TypeSFixed32 FieldType = 15
	TypeSFixed64 FieldType = 16
	TypeSInt32   FieldType = 17
	TypeSInt64   FieldType = 18
)

var typeNames = [...]string{
	TypeDouble:   "double",
	TypeFloat:    "float",
	TypeInt64:    "int64",
	TypeUInt64:   "uint64",
	TypeInt32:    "int32",
	TypeFixed64:  "fixed64",
	TypeFixed32:  "fixed32",
	TypeBool:     "bool",
	TypeString:   "string",
	TypeGroup:    "group",
	TypeMessage:  "message",
	TypeBytes:    "bytes",
	TypeUInt32:   "uint32",
	TypeEnum:     "enum",
	TypeSFixed32: "sfixed32",
	TypeSFixed64: "sfixed64",
	TypeSInt32:   "sint32",
	TypeSInt64:   "sint64",
}

func (t FieldType) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("FieldType(%d)", uint8(t))
}

// Valid reports whether t is a known type.
func (t FieldType) Valid() bool {
	return t >= TypeDouble && t <= TypeSInt64
}

// WireType returns the wire type of a single, unpacked value.
func (t FieldType) WireType() protowire.Type {
	switch t {
	case TypeDouble, TypeFixed64, TypeSFixed64:
		return protowire.Fixed64Type
	case TypeFloat, TypeFixed32, TypeSFixed32:
		return protowire.Fixed32Type
	case TypeString, TypeBytes, TypeMessage:
		return protowire.BytesType
	case TypeGroup:
		return protowire.StartGroupType
	default:
		return protowire.VarintType
	}
}

// IsPackable reports whether repeated values of t may use the packed
// encoding.
func (t FieldType) IsPackable() bool {
	switch t {
	case TypeString, TypeBytes, TypeMessage, TypeGroup:
		return false
	}
	return t.Valid()
}

// IsZigZag reports whether t is a sint type.
func (t FieldType) IsZigZag() bool { return t == TypeSInt32 || t == TypeSInt64 }

// IsString reports whether t is string or bytes.
func (t FieldType) IsString() bool { return t == TypeString || t == TypeBytes }

// IsSubMessage reports whether t is message or group.
func (t FieldType) IsSubMessage() bool { return t == TypeMessage || t == TypeGroup }

// Is64Bit reports whether t holds a 64-bit integer.
func (t FieldType) Is64Bit() bool {
	switch t {
	case TypeInt64, TypeUInt64, TypeFixed64, TypeSFixed64, TypeSInt64:
		return true
	}
	return false
}

// IsSigned reports whether t is a signed integer type, including enum.
func (t FieldType) IsSigned() bool {
	switch t {
	case TypeInt32, TypeInt64, TypeSFixed32, TypeSFixed64, TypeSInt32, TypeSInt64, TypeEnum:
		return true
	}
	return false
}

// Rep returns the storage size class of a singular value of t.
func (t FieldType) Rep() Rep {
	switch t {
	case TypeBool:
		return Rep1Byte
	case TypeInt32, TypeUInt32, TypeSInt32, TypeFixed32, TypeSFixed32, TypeFloat, TypeEnum:
		return Rep4Byte
	case TypeInt64, TypeUInt64, TypeSInt64, TypeFixed64, TypeSFixed64, TypeDouble:
		return Rep8Byte
	default:
		return RepPointer
	}
}

// ValidMapKey reports whether t may be used as a map key.
func (t FieldType) ValidMapKey() bool {
	switch t {
	case TypeDouble, TypeFloat, TypeBytes, TypeMessage, TypeGroup, TypeEnum:
		return false
	}
	return t.Valid()
}

// Rep is a storage size class.
type Rep uint8

const (
	Rep1Byte Rep = iota
	Rep4Byte
	Rep8Byte
	// RepPointer values live in a message's pointer slots rather than its
	// data bytes.
	RepPointer
)

// Size returns the byte width of a data slot, or 0 for [RepPointer].
func (r Rep) Size() int {
	switch r {
	case Rep1Byte:
		return 1
	case Rep4Byte:
		return 4
	case Rep8Byte:
		return 8
	}
	return 0
}

// Kind is the storage kind of a field.
type Kind uint8

const (
	KindScalar Kind = iota
	KindArray
	KindMap
)

// Mode packs a field's kind, size class, and flags.
type Mode uint16

const (
	modeKindMask Mode = 0x3
	modeRepShift      = 2
	modeRepMask  Mode = 0x3 << modeRepShift

	FlagPacked       Mode = 1 << 4
	FlagExtension    Mode = 1 << 5
	FlagValidateUTF8 Mode = 1 << 6
	FlagClosedEnum   Mode = 1 << 7
	FlagRequired     Mode = 1 << 8
)

// MakeMode returns a mode for kind and rep, with no flags.
func MakeMode(kind Kind, rep Rep) Mode {
	return Mode(kind) | Mode(rep)<<modeRepShift
}

func (m Mode) Kind() Kind { return Kind(m & modeKindMask) }

func (m Mode) Rep() Rep { return Rep((m & modeRepMask) >> modeRepShift) }
