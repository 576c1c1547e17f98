package message

import (
	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/minitable"
)

// CopyBytes returns a string or bytes value holding a copy of b on a.
func CopyBytes(a *arena.Arena, b []byte) (MsgVal, error) {
	if len(b) == 0 {
		return MsgVal{}, nil
	}
	buf, err := a.Malloc(len(b))
	if err != nil {
		return MsgVal{}, err
	}
	copy(buf, b)
	return BytesVal(buf), nil
}

// DeepCopy returns an unfrozen copy of m on dst. Sub-messages, arrays and
// maps are copied recursively, and strings are duplicated into dst.
func (m *Message) DeepCopy(dst *arena.Arena) (*Message, error) {
	out, err := New(m.table, dst)
	if err != nil {
		return nil, err
	}
	copy(out.data, m.data)
	for i := range m.table.Fields {
		f := &m.table.Fields[i]
		if f.Rep() != minitable.RepPointer {
			continue
		}
		v := m.Get(f)
		if v.IsZero() {
			continue
		}
		cv, err := copyValue(dst, v, f.Kind(), f.Type)
		if err != nil {
			return nil, err
		}
		out.ptrs[f.Offset] = cv
	}
	if m.in != nil {
		if err := out.AppendUnknown(m.in.unknown); err != nil {
			return nil, err
		}
		for _, e := range m.in.exts {
			cv, err := copyValue(dst, e.Value, e.Ext.Field.Kind(), e.Ext.Field.Type)
			if err != nil {
				return nil, err
			}
			out.SetExtension(e.Ext, cv)
		}
	}
	return out, nil
}

func copyValue(dst *arena.Arena, v MsgVal, kind minitable.Kind, t minitable.FieldType) (MsgVal, error) {
	switch kind {
	case minitable.KindArray:
		a, err := v.Array().DeepCopy(dst)
		if err != nil {
			return MsgVal{}, err
		}
		return ArrayVal(a), nil
	case minitable.KindMap:
		x, err := v.Map().DeepCopy(dst)
		if err != nil {
			return MsgVal{}, err
		}
		return MapVal(x), nil
	}
	return copyScalar(dst, v, t)
}

func copyScalar(dst *arena.Arena, v MsgVal, t minitable.FieldType) (MsgVal, error) {
	switch {
	case t.IsString():
		return CopyBytes(dst, v.StringView())
	case t.IsSubMessage():
		if v.ptr == nil {
			return v, nil
		}
		sub, err := v.Message().DeepCopy(dst)
		if err != nil {
			return MsgVal{}, err
		}
		return MessageVal(sub), nil
	}
	return v, nil
}

// DeepCopy returns an unfrozen copy of x on dst.
func (x *Array) DeepCopy(dst *arena.Arena) (*Array, error) {
	out := NewArray(dst, x.typ)
	if err := out.reserve(x.Len()); err != nil {
		return nil, err
	}
	for i := range x.Len() {
		v, err := copyScalar(dst, x.load(i), x.typ)
		if err != nil {
			return nil, err
		}
		if err := out.Append(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeepCopy returns an unfrozen copy of x on dst.
func (x *Map) DeepCopy(dst *arena.Arena) (*Map, error) {
	out := NewMap(dst, x.keyType, x.valType)
	for k, v := range x.entries {
		cv, err := copyScalar(dst, v, x.valType)
		if err != nil {
			return nil, err
		}
		out.entries[k] = cv
	}
	return out, nil
}
