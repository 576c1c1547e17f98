// Package message implements the message store: a message's field values
// laid out per its mini-table, on an arena, together with the repeated
// field and map containers, unknown fields, extensions, and structural
// equality and hashing.
//
// A Message, Array or Map must not be mutated by more than one goroutine
// at a time.
package message

import (
	"cmp"
	"encoding/binary"
	"slices"
	"sync"

	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/minitable"
)

// Message is one message instance.
//
// Scalar slots and the presence bitmap live in data, which is allocated
// from the arena. Strings, sub-messages, arrays and maps are held in ptrs,
// a typed region the garbage collector can scan.
type Message struct {
	table *minitable.Message
	arena *arena.Arena
	in    *internalData
	data  []byte
	ptrs  []MsgVal

	frozen bool
}

// internalData grows on demand, holding unknown field bytes and extension
// values.
type internalData struct {
	// unknown is arena-backed, with cap the allocated size
	unknown []byte
	// exts is sorted by field number
	exts []ExtensionValue
}

// ExtensionValue is a set extension.
type ExtensionValue struct {
	Ext   *minitable.Extension
	Value MsgVal
}

// New returns a zeroed message of type t, allocated on a.
func New(t *minitable.Message, a *arena.Arena) (*Message, error) {
	data, err := a.Malloc(t.Size)
	if err != nil {
		return nil, err
	}
	m := &Message{
		table: t,
		arena: a,
		data:  data,
	}
	if t.PointerSlots > 0 {
		m.ptrs = make([]MsgVal, t.PointerSlots)
	}
	return m, nil
}

var empties sync.Map // *minitable.Message -> *Message

// Empty returns the shared, frozen, empty message of type t. It is what
// unset sub-message accessors return.
func Empty(t *minitable.Message) *Message {
	if v, ok := empties.Load(t); ok {
		return v.(*Message)
	}
	m, err := New(t, arena.New())
	if err != nil {
		panic(err)
	}
	m.frozen = true
	v, _ := empties.LoadOrStore(t, m)
	return v.(*Message)
}

func (m *Message) Table() *minitable.Message { return m.table }

func (m *Message) Arena() *arena.Arena { return m.arena }

// Freeze makes m, and everything reachable from it, read-only. Mutating a
// frozen message panics.
func (m *Message) Freeze() {
	if m.frozen {
		return
	}
	m.frozen = true
	for i := range m.table.Fields {
		f := &m.table.Fields[i]
		if f.Rep() != minitable.RepPointer {
			continue
		}
		freezeValue(m.Get(f), f.Kind(), f.Type)
	}
	if m.in != nil {
		for _, e := range m.in.exts {
			freezeValue(e.Value, e.Ext.Field.Kind(), e.Ext.Field.Type)
		}
	}
}

func freezeValue(v MsgVal, kind minitable.Kind, t minitable.FieldType) {
	if v.ptr == nil {
		return
	}
	switch kind {
	case minitable.KindArray:
		v.Array().Freeze()
	case minitable.KindMap:
		v.Map().Freeze()
	default:
		if t.IsSubMessage() {
			v.Message().Freeze()
		}
	}
}

func (m *Message) IsFrozen() bool { return m.frozen }

func (m *Message) checkMutable() {
	if m.frozen {
		panic("message: mutation of frozen " + m.table.Name)
	}
}

func (m *Message) hasbit(i int) bool {
	return m.data[i>>3]&(1<<(i&7)) != 0
}

func (m *Message) setHasbit(i int) {
	m.data[i>>3] |= 1 << (i & 7)
}

func (m *Message) clearHasbit(i int) {
	m.data[i>>3] &^= 1 << (i & 7)
}

func (m *Message) oneofCase(f *minitable.Field) uint32 {
	return binary.LittleEndian.Uint32(m.data[f.CaseOffset():])
}

func (m *Message) setOneofCase(f *minitable.Field, n uint32) {
	binary.LittleEndian.PutUint32(m.data[f.CaseOffset():], n)
}

// WhichOneof returns the number of the set member of f's oneof, or zero.
func (m *Message) WhichOneof(f *minitable.Field) uint32 {
	if !f.IsOneof() {
		return 0
	}
	return m.oneofCase(f)
}

// readSlot returns the raw slot value, ignoring presence.
func (m *Message) readSlot(f *minitable.Field) MsgVal {
	off := int(f.Offset)
	switch f.Rep() {
	case minitable.Rep1Byte:
		return MsgVal{bits: uint64(m.data[off])}
	case minitable.Rep4Byte:
		return MsgVal{bits: uint64(binary.LittleEndian.Uint32(m.data[off:]))}
	case minitable.Rep8Byte:
		return MsgVal{bits: binary.LittleEndian.Uint64(m.data[off:])}
	default:
		return m.ptrs[off]
	}
}

func (m *Message) writeSlot(f *minitable.Field, v MsgVal) {
	off := int(f.Offset)
	switch f.Rep() {
	case minitable.Rep1Byte:
		m.data[off] = byte(v.bits)
	case minitable.Rep4Byte:
		binary.LittleEndian.PutUint32(m.data[off:], uint32(v.bits))
	case minitable.Rep8Byte:
		binary.LittleEndian.PutUint64(m.data[off:], v.bits)
	default:
		m.ptrs[off] = v
	}
}

func (m *Message) zeroSlot(f *minitable.Field) {
	off := int(f.Offset)
	switch {
	case f.Rep() == minitable.RepPointer:
		m.ptrs[off] = MsgVal{}
	case f.IsOneof():
		clear(m.data[off : off+8])
	default:
		clear(m.data[off : off+f.Rep().Size()])
	}
}

// Get returns the value of f. A oneof member that is not the set case
// reads as zero, without changing state. Unset sub-messages, arrays and
// maps read as a zero MsgVal: see [Message.GetMessage].
func (m *Message) Get(f *minitable.Field) MsgVal {
	if f.IsOneof() && m.oneofCase(f) != f.Number {
		return MsgVal{}
	}
	return m.readSlot(f)
}

// Has reports whether f is set. Fields without presence are set when
// their value differs from the zero of their type, or, for arrays and
// maps, when they are non-empty.
func (m *Message) Has(f *minitable.Field) bool {
	switch {
	case f.HasHasbit():
		return m.hasbit(f.Hasbit())
	case f.IsOneof():
		return m.oneofCase(f) == f.Number
	case f.IsRepeated():
		return m.ptrs[f.Offset].Array().Len() > 0
	case f.IsMap():
		return m.ptrs[f.Offset].Map().Len() > 0
	case f.Type.IsSubMessage():
		return m.ptrs[f.Offset].ptr != nil
	default:
		return !isZeroScalar(m.readSlot(f), f.Type)
	}
}

// Set assigns f, marking its hasbit or oneof case. Assigning a oneof
// member zeroes the slot of the previous case first.
func (m *Message) Set(f *minitable.Field, v MsgVal) {
	m.checkMutable()
	if f.Type.IsSubMessage() && f.IsScalar() && v.ptr != nil && v.Message().table != m.table.SubMessage(f) {
		panic("message: sub-message type mismatch for field of " + m.table.Name)
	}
	switch {
	case f.HasHasbit():
		m.setHasbit(f.Hasbit())
	case f.IsOneof():
		if prev := m.oneofCase(f); prev != f.Number {
			if prev != 0 {
				if pf := m.table.FindFieldByNumber(prev); pf != nil {
					m.zeroSlot(pf)
				}
			}
			m.setOneofCase(f, f.Number)
		}
	}
	m.writeSlot(f, v)
}

// ClearField resets f to its zero, clearing its hasbit, or its oneof case
// when f is the set member.
func (m *Message) ClearField(f *minitable.Field) {
	m.checkMutable()
	if f.IsOneof() {
		if m.oneofCase(f) == f.Number {
			m.zeroSlot(f)
			m.setOneofCase(f, 0)
		}
		return
	}
	m.zeroSlot(f)
	if f.HasHasbit() {
		m.clearHasbit(f.Hasbit())
	}
}

// GetMessage returns the sub-message in f, or the empty singleton of its
// type when unset.
func (m *Message) GetMessage(f *minitable.Field) *Message {
	if sub := m.Get(f).Message(); sub != nil {
		return sub
	}
	return Empty(m.table.SubMessage(f))
}

// GetArray returns the array in f, which may be nil.
func (m *Message) GetArray(f *minitable.Field) *Array {
	return m.ptrs[f.Offset].Array()
}

// GetMap returns the map in f, which may be nil.
func (m *Message) GetMap(f *minitable.Field) *Map {
	return m.ptrs[f.Offset].Map()
}

// MutableMessage returns the sub-message in f, creating and setting it on
// m's arena when absent.
func (m *Message) MutableMessage(f *minitable.Field) (*Message, error) {
	m.checkMutable()
	if sub := m.Get(f).Message(); sub != nil {
		return sub, nil
	}
	sub, err := New(m.table.SubMessage(f), m.arena)
	if err != nil {
		return nil, err
	}
	m.Set(f, MessageVal(sub))
	return sub, nil
}

// MutableArray returns the array in f, creating it when absent.
func (m *Message) MutableArray(f *minitable.Field) *Array {
	m.checkMutable()
	if a := m.ptrs[f.Offset].Array(); a != nil {
		return a
	}
	a := NewArray(m.arena, f.Type)
	m.ptrs[f.Offset] = ArrayVal(a)
	return a
}

// MutableMap returns the map in f, creating it when absent.
func (m *Message) MutableMap(f *minitable.Field) *Map {
	m.checkMutable()
	if x := m.ptrs[f.Offset].Map(); x != nil {
		return x
	}
	entry := m.table.SubMessage(f)
	x := NewMap(m.arena, entry.MapKey().Type, entry.MapValue().Type)
	m.ptrs[f.Offset] = MapVal(x)
	return x
}

// Clear zeroes every field, the unknown fields and the extensions. Memory
// stays with the arena.
func (m *Message) Clear() {
	m.checkMutable()
	clear(m.data)
	clear(m.ptrs)
	if m.in != nil {
		m.in.unknown = m.in.unknown[:0]
		m.in.exts = nil
	}
}

func (m *Message) internal() *internalData {
	if m.in == nil {
		m.in = new(internalData)
	}
	return m.in
}

// AppendUnknown appends raw, already encoded fields to the unknown area.
func (m *Message) AppendUnknown(b []byte) error {
	m.checkMutable()
	if len(b) == 0 {
		return nil
	}
	in := m.internal()
	u := in.unknown
	if need := len(u) + len(b); need > cap(u) {
		buf, err := m.arena.Realloc(u[:cap(u)], max(2*cap(u), need, 64))
		if err != nil {
			return err
		}
		in.unknown = buf[:len(u)]
	}
	in.unknown = append(in.unknown, b...)
	return nil
}

// Unknown returns the unknown field bytes. The result aliases m.
func (m *Message) Unknown() []byte {
	if m.in == nil {
		return nil
	}
	return m.in.unknown
}

// DiscardUnknown drops the unknown fields of m and of every sub-message.
func (m *Message) DiscardUnknown() {
	m.checkMutable()
	if m.in != nil {
		m.in.unknown = m.in.unknown[:0]
	}
	m.rangeSubMessages(func(sub *Message) { sub.DiscardUnknown() })
}

// rangeSubMessages calls fn for each direct sub-message, including those in
// arrays, map values and extensions.
func (m *Message) rangeSubMessages(fn func(*Message)) {
	visit := func(v MsgVal, kind minitable.Kind, t minitable.FieldType) {
		if v.ptr == nil {
			return
		}
		switch kind {
		case minitable.KindArray:
			if t.IsSubMessage() {
				a := v.Array()
				for i := range a.Len() {
					fn(a.Get(i).Message())
				}
			}
		case minitable.KindMap:
			x := v.Map()
			if x.valType.IsSubMessage() {
				for _, mv := range x.entries {
					fn(mv.Message())
				}
			}
		default:
			if t.IsSubMessage() {
				fn(v.Message())
			}
		}
	}
	for i := range m.table.Fields {
		f := &m.table.Fields[i]
		if f.Rep() == minitable.RepPointer {
			visit(m.Get(f), f.Kind(), f.Type)
		}
	}
	if m.in != nil {
		for _, e := range m.in.exts {
			visit(e.Value, e.Ext.Field.Kind(), e.Ext.Field.Type)
		}
	}
}

// IsInitialized reports whether every required field of m, and of every
// sub-message, is set.
func (m *Message) IsInitialized() bool {
	if !m.CheckRequired() {
		return false
	}
	ok := true
	m.rangeSubMessages(func(sub *Message) {
		if ok && !sub.IsInitialized() {
			ok = false
		}
	})
	return ok
}

// CheckRequired reports whether every required field of m is set.
func (m *Message) CheckRequired() bool {
	if m.table.RequiredCount == 0 {
		return true
	}
	if m.table.RequiredCount < 64 {
		var buf [8]byte
		copy(buf[:], m.data[:m.table.HasbitBytes])
		mask := m.table.RequiredMask()
		return binary.LittleEndian.Uint64(buf[:])&mask == mask
	}
	return len(m.MissingRequired()) == 0
}

// MissingRequired returns the numbers of the unset required fields of m.
func (m *Message) MissingRequired() []uint32 {
	var out []uint32
	for i := range m.table.Fields {
		f := &m.table.Fields[i]
		if f.IsRequired() && !m.Has(f) {
			out = append(out, f.Number)
		}
	}
	return out
}

func (m *Message) findExt(number uint32) (int, bool) {
	if m.in == nil {
		return 0, false
	}
	return slices.BinarySearchFunc(m.in.exts, number, func(e ExtensionValue, n uint32) int {
		return cmp.Compare(e.Ext.Field.Number, n)
	})
}

// GetExtension returns the value of e, and whether it is set.
func (m *Message) GetExtension(e *minitable.Extension) (MsgVal, bool) {
	if i, ok := m.findExt(e.Field.Number); ok {
		return m.in.exts[i].Value, true
	}
	return MsgVal{}, false
}

// HasExtension reports whether e is set.
func (m *Message) HasExtension(e *minitable.Extension) bool {
	_, ok := m.findExt(e.Field.Number)
	return ok
}

// SetExtension assigns e.
func (m *Message) SetExtension(e *minitable.Extension, v MsgVal) {
	m.checkMutable()
	if e.Extendee != m.table {
		panic("message: extension " + e.Name + " does not extend " + m.table.Name)
	}
	i, ok := m.findExt(e.Field.Number)
	if ok {
		m.in.exts[i] = ExtensionValue{Ext: e, Value: v}
		return
	}
	in := m.internal()
	in.exts = slices.Insert(in.exts, i, ExtensionValue{Ext: e, Value: v})
}

// ClearExtension unsets e.
func (m *Message) ClearExtension(e *minitable.Extension) {
	m.checkMutable()
	if i, ok := m.findExt(e.Field.Number); ok {
		m.in.exts = slices.Delete(m.in.exts, i, i+1)
	}
}

// MutableExtensionMessage returns the message value of e, creating it when
// absent.
func (m *Message) MutableExtensionMessage(e *minitable.Extension) (*Message, error) {
	if v, ok := m.GetExtension(e); ok {
		return v.Message(), nil
	}
	sub, err := New(e.SubMessage(), m.arena)
	if err != nil {
		return nil, err
	}
	m.SetExtension(e, MessageVal(sub))
	return sub, nil
}

// MutableExtensionArray returns the array value of a repeated extension,
// creating it when absent.
func (m *Message) MutableExtensionArray(e *minitable.Extension) *Array {
	if v, ok := m.GetExtension(e); ok {
		return v.Array()
	}
	a := NewArray(m.arena, e.Field.Type)
	m.SetExtension(e, ArrayVal(a))
	return a
}

// Extensions returns the set extensions, ordered by number. The result must
// not be modified.
func (m *Message) Extensions() []ExtensionValue {
	if m.in == nil {
		return nil
	}
	return m.in.exts
}
