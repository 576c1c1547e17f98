package message

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/joeycumines/goja-upb/internal/wyhash"
	"github.com/joeycumines/goja-upb/minitable"
	"google.golang.org/protobuf/encoding/protowire"
)

// Equal reports whether a and b hold the same value. Messages of different
// types are never equal. Scalars compare by their bits, so NaN equals NaN
// only with identical bits, and 0 differs from -0. Repeated fields compare
// in order, maps by key set and values. Unknown fields compare per field
// number, preserving the order within each number.
func Equal(a, b *Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a == b {
		return true
	}
	if a.table != b.table {
		return false
	}
	for i := range a.table.Fields {
		if !equalField(a, b, &a.table.Fields[i]) {
			return false
		}
	}
	ea, eb := a.Extensions(), b.Extensions()
	if len(ea) != len(eb) {
		return false
	}
	for i := range ea {
		if ea[i].Ext != eb[i].Ext || !equalValue(ea[i].Value, eb[i].Value, ea[i].Ext.Field.Kind(), ea[i].Ext.Field.Type) {
			return false
		}
	}
	return equalUnknown(a.Unknown(), b.Unknown())
}

func equalField(a, b *Message, f *minitable.Field) bool {
	switch f.Kind() {
	case minitable.KindArray:
		return equalArray(a.GetArray(f), b.GetArray(f))
	case minitable.KindMap:
		return equalMap(a.GetMap(f), b.GetMap(f))
	}
	ha, hb := a.Has(f), b.Has(f)
	if ha != hb {
		return false
	}
	return !ha || equalScalar(a.Get(f), b.Get(f), f.Type)
}

func equalValue(a, b MsgVal, kind minitable.Kind, t minitable.FieldType) bool {
	switch kind {
	case minitable.KindArray:
		return equalArray(a.Array(), b.Array())
	case minitable.KindMap:
		return equalMap(a.Map(), b.Map())
	}
	return equalScalar(a, b, t)
}

func equalScalar(a, b MsgVal, t minitable.FieldType) bool {
	switch {
	case t.IsString():
		return bytes.Equal(a.StringView(), b.StringView())
	case t.IsSubMessage():
		return Equal(a.Message(), b.Message())
	}
	return a.bits == b.bits
}

func equalArray(a, b *Array) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.Len() {
		if !equalScalar(a.load(i), b.load(i), a.typ) {
			return false
		}
	}
	return true
}

func equalMap(a, b *Map) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.Len() == 0 {
		return true
	}
	for k, va := range a.entries {
		vb, ok := b.entries[k]
		if !ok || !equalScalar(va, vb, a.valType) {
			return false
		}
	}
	return true
}

func equalUnknown(x, y []byte) bool {
	if bytes.Equal(x, y) {
		return true
	}
	mx, my := groupUnknown(x), groupUnknown(y)
	if len(mx) != len(my) {
		return false
	}
	for num, bx := range mx {
		if by, ok := my[num]; !ok || !bytes.Equal(bx, by) {
			return false
		}
	}
	return true
}

// groupUnknown splits raw fields by number. Bytes that do not parse are
// kept under number zero.
func groupUnknown(b []byte) map[protowire.Number][]byte {
	m := make(map[protowire.Number][]byte)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			m[0] = append(m[0], b...)
			break
		}
		vn := protowire.ConsumeFieldValue(num, typ, b[n:])
		if vn < 0 {
			m[0] = append(m[0], b...)
			break
		}
		m[num] = append(m[num], b[:n+vn]...)
		b = b[n+vn:]
	}
	return m
}

// Hash returns a seeded hash of m. Messages that are [Equal] hash equally
// under every seed.
func Hash(m *Message, seed uint64) uint64 {
	if m == nil {
		return wyhash.Hash(nil, seed)
	}
	return wyhash.Hash(appendMessageHash(nil, m, seed), seed)
}

func appendUint64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

func appendFieldHeader(b []byte, number uint32, t minitable.FieldType) []byte {
	b = binary.LittleEndian.AppendUint32(b, number)
	return append(b, byte(t))
}

func appendMessageHash(b []byte, m *Message, seed uint64) []byte {
	b = append(b, m.table.Name...)
	for i := range m.table.Fields {
		f := &m.table.Fields[i]
		switch f.Kind() {
		case minitable.KindArray, minitable.KindMap:
			b = appendContainerHash(b, f.Number, f.Type, m.ptrs[f.Offset], f.Kind(), seed)
		default:
			if !m.Has(f) {
				continue
			}
			b = appendFieldHeader(b, f.Number, f.Type)
			b = appendScalarHash(b, m.Get(f), f.Type, seed)
		}
	}
	for _, e := range m.Extensions() {
		f := &e.Ext.Field
		if f.Kind() != minitable.KindScalar {
			b = appendContainerHash(b, f.Number, f.Type, e.Value, f.Kind(), seed)
			continue
		}
		b = appendFieldHeader(b, f.Number, f.Type)
		b = appendScalarHash(b, e.Value, f.Type, seed)
	}
	if u := m.Unknown(); len(u) > 0 {
		groups := groupUnknown(u)
		nums := make([]protowire.Number, 0, len(groups))
		for num := range groups {
			nums = append(nums, num)
		}
		slices.Sort(nums)
		for _, num := range nums {
			b = appendFieldHeader(b, uint32(num), 0)
			b = appendUint64(b, uint64(len(groups[num])))
			b = append(b, groups[num]...)
		}
	}
	return b
}

func appendContainerHash(b []byte, number uint32, t minitable.FieldType, v MsgVal, kind minitable.Kind, seed uint64) []byte {
	if kind == minitable.KindArray {
		a := v.Array()
		if a.Len() == 0 {
			return b
		}
		b = appendFieldHeader(b, number, t)
		b = appendUint64(b, uint64(a.Len()))
		for i := range a.Len() {
			b = appendScalarHash(b, a.load(i), t, seed)
		}
		return b
	}
	x := v.Map()
	if x.Len() == 0 {
		return b
	}
	var acc uint64
	var entry []byte
	for k, mv := range x.entries {
		entry = appendUint64(entry[:0], uint64(len(k)))
		entry = append(entry, k...)
		entry = appendScalarHash(entry, mv, x.valType, seed)
		acc ^= wyhash.Hash(entry, seed)
	}
	b = appendFieldHeader(b, number, t)
	b = appendUint64(b, uint64(x.Len()))
	return appendUint64(b, acc)
}

func appendScalarHash(b []byte, v MsgVal, t minitable.FieldType, seed uint64) []byte {
	switch {
	case t.IsString():
		b = appendUint64(b, v.bits)
		return append(b, v.StringView()...)
	case t.IsSubMessage():
		return appendUint64(b, Hash(v.Message(), seed))
	}
	switch width(t) {
	case 1:
		return append(b, byte(v.bits))
	case 4:
		return binary.LittleEndian.AppendUint32(b, uint32(v.bits))
	}
	return appendUint64(b, v.bits)
}
