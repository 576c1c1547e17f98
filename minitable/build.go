package minitable

import (
	"cmp"
	"slices"

	"github.com/joeycumines/goja-upb/status"
)

// MaxFieldNumber is the largest valid field number.
const MaxFieldNumber = 1<<29 - 1

// FieldSpec is the builder input for one field.
type FieldSpec struct {
	Number uint32
	Type   FieldType
	Kind   Kind
	// Oneof is the 1-based ordinal of the field's oneof, or zero.
	Oneof        int
	Packed       bool
	Required     bool
	Presence     bool
	ClosedEnum   bool
	ValidateUTF8 bool
}

// Options configures [Build].
type Options struct {
	Name       string
	Extendable bool
	MapEntry   bool
}

func (s *FieldSpec) rep() Rep {
	if s.Kind != KindScalar {
		return RepPointer
	}
	return s.Type.Rep()
}

func (s *FieldSpec) mode() Mode {
	m := MakeMode(s.Kind, s.rep())
	if s.Packed && s.Kind == KindArray {
		m |= FlagPacked
	}
	if s.ValidateUTF8 && s.Type == TypeString {
		m |= FlagValidateUTF8
	}
	if s.ClosedEnum && s.Type == TypeEnum {
		m |= FlagClosedEnum
	}
	if s.Required {
		m |= FlagRequired
	}
	return m
}

func (s *FieldSpec) needsSub() bool {
	return s.Type.IsSubMessage() || (s.Type == TypeEnum && s.ClosedEnum)
}

func alignTo(n, a int) int { return (n + a - 1) &^ (a - 1) }

// Build lays out a message. Sub-table references start empty, and are
// filled in with [Message.LinkMessage] and [Message.LinkEnum].
//
// The data region holds, in order: the hasbit bitmap, one uint32 case word
// per oneof, then 8-byte, 4-byte and 1-byte slots. Required fields take the
// lowest hasbits. Members of a oneof share one 8-byte slot and one pointer
// slot.
func Build(opts Options, specs []FieldSpec) (*Message, error) {
	specs = slices.Clone(specs)
	slices.SortStableFunc(specs, func(a, b FieldSpec) int {
		return cmp.Compare(a.Number, b.Number)
	})
	for i := range specs {
		s := &specs[i]
		if s.Number == 0 || s.Number > MaxFieldNumber {
			return nil, status.Errorf(status.Invalid, "%s: field number %d out of range", opts.Name, s.Number)
		}
		if i > 0 && specs[i-1].Number == s.Number {
			return nil, status.Errorf(status.Duplicate, "%s: duplicate field number %d", opts.Name, s.Number)
		}
		if !s.Type.Valid() {
			return nil, status.Errorf(status.Invalid, "%s: field %d has invalid type %d", opts.Name, s.Number, s.Type)
		}
		if s.Oneof != 0 && s.Kind != KindScalar {
			return nil, status.Errorf(status.Invalid, "%s: repeated field %d in oneof", opts.Name, s.Number)
		}
	}

	m := &Message{
		Name:       opts.Name,
		Fields:     make([]Field, len(specs)),
		IsMapEntry: opts.MapEntry,
	}
	if opts.Extendable {
		m.Ext = Extendable
	}

	for i := range specs {
		s := &specs[i]
		f := &m.Fields[i]
		f.Number = s.Number
		f.Type = s.Type
		f.Mode = s.mode()
		if s.needsSub() {
			f.SubIndex = uint16(len(m.Subs))
			m.Subs = append(m.Subs, Sub{})
		}
	}

	// hasbits, required first
	hasbit := 1
	for pass := range 2 {
		for i := range specs {
			s := &specs[i]
			if s.Kind != KindScalar || s.Oneof != 0 {
				continue
			}
			if (pass == 0 && s.Required) || (pass == 1 && !s.Required && s.Presence) {
				m.Fields[i].Presence = int16(hasbit)
				if s.Required {
					m.RequiredCount++
				}
				hasbit++
			}
		}
	}
	if hasbit > 1 {
		m.HasbitBytes = hasbit/8 + 1
	}

	// oneof case words
	var oneofs []int
	for i := range specs {
		if o := specs[i].Oneof; o != 0 && !slices.Contains(oneofs, o) {
			oneofs = append(oneofs, o)
		}
	}
	slices.Sort(oneofs)
	m.OneofCount = len(oneofs)
	off := alignTo(m.HasbitBytes, 4)
	caseOffsets := make(map[int]int, len(oneofs))
	for _, o := range oneofs {
		caseOffsets[o] = off
		off += 4
	}

	// shared oneof slots
	off = alignTo(off, 8)
	type shared struct{ data, ptr int }
	oneofSlots := make(map[int]*shared, len(oneofs))
	for _, o := range oneofs {
		sl := &shared{data: -1, ptr: -1}
		for i := range specs {
			if specs[i].Oneof != o {
				continue
			}
			if specs[i].rep() == RepPointer {
				if sl.ptr < 0 {
					sl.ptr = m.PointerSlots
					m.PointerSlots++
				}
			} else if sl.data < 0 {
				sl.data = off
				off += 8
			}
		}
		oneofSlots[o] = sl
	}

	for _, rep := range []Rep{Rep8Byte, Rep4Byte, Rep1Byte, RepPointer} {
		if size := rep.Size(); size > 0 {
			off = alignTo(off, size)
		}
		for i := range specs {
			s := &specs[i]
			if s.rep() != rep {
				continue
			}
			f := &m.Fields[i]
			if s.Oneof != 0 {
				f.Presence = ^int16(caseOffsets[s.Oneof])
				if rep == RepPointer {
					f.Offset = uint16(oneofSlots[s.Oneof].ptr)
				} else {
					f.Offset = uint16(oneofSlots[s.Oneof].data)
				}
				continue
			}
			if rep == RepPointer {
				f.Offset = uint16(m.PointerSlots)
				m.PointerSlots++
			} else {
				f.Offset = uint16(off)
				off += rep.Size()
			}
		}
	}
	m.Size = alignTo(off, 8)
	if m.Size > 0xffff {
		return nil, status.Errorf(status.Invalid, "%s: message too large", opts.Name)
	}

	for i := range m.Fields {
		if m.Fields[i].Number != uint32(i+1) {
			break
		}
		m.DenseBelow = i + 1
	}
	for i := range m.Fields {
		if i >= 0xff {
			break
		}
		f := &m.Fields[i]
		slot := (uint64(f.Number)<<3 | uint64(f.WireType())) & 0x3f
		if m.Fast[slot] == 0 {
			m.Fast[slot] = uint8(i + 1)
		}
	}

	if opts.MapEntry {
		if len(m.Fields) != 2 || m.Fields[0].Number != 1 || m.Fields[1].Number != 2 {
			return nil, status.Errorf(status.Invalid, "%s: map entry must have exactly fields 1 and 2", opts.Name)
		}
		if !m.Fields[0].Type.ValidMapKey() {
			return nil, status.Errorf(status.Invalid, "%s: invalid map key type %s", opts.Name, m.Fields[0].Type)
		}
	}

	return m, nil
}

// LinkMessage sets the sub-table of a message, group or map field.
func (m *Message) LinkMessage(f *Field, sub *Message) error {
	if !f.Type.IsSubMessage() || int(f.SubIndex) >= len(m.Subs) {
		return status.Errorf(status.Invalid, "%s: field %d takes no sub-message", m.Name, f.Number)
	}
	if f.IsMap() && !sub.IsMapEntry {
		return status.Errorf(status.Invalid, "%s: map field %d linked to non-entry %s", m.Name, f.Number, sub.Name)
	}
	m.Subs[f.SubIndex].Message = sub
	return nil
}

// LinkEnum sets the value set of a closed enum field.
func (m *Message) LinkEnum(f *Field, e *Enum) error {
	if !f.IsClosedEnum() || int(f.SubIndex) >= len(m.Subs) {
		return status.Errorf(status.Invalid, "%s: field %d is not a closed enum", m.Name, f.Number)
	}
	m.Subs[f.SubIndex].Enum = e
	return nil
}
