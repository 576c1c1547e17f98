package wire

import (
	"slices"

	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/minitable"
	"github.com/joeycumines/goja-upb/status"
	"google.golang.org/protobuf/encoding/protowire"
)

// encoder runs in two passes. The size pass validates the tree and caches
// the body size of every sub-message. The emit pass then writes each body
// exactly once, behind its length prefix.
type encoder struct {
	sizes map[*message.Message]int
	opts  encodeOptions
}

func newEncoder(opts []EncodeOption) *encoder {
	return &encoder{
		opts:  resolveEncodeOptions(opts),
		sizes: make(map[*message.Message]int),
	}
}

// Size returns the encoded length of m.
func Size(m *message.Message, opts ...EncodeOption) (int, error) {
	return newEncoder(opts).messageSize(m, 0)
}

// Encode serializes m into a buffer allocated on a.
func Encode(m *message.Message, a *arena.Arena, opts ...EncodeOption) ([]byte, error) {
	e := newEncoder(opts)
	n, err := e.messageSize(m, 0)
	if err != nil {
		return nil, err
	}
	buf, err := a.Malloc(n)
	if err != nil {
		return nil, err
	}
	return e.finish(e.appendMessage(buf[:0], m), n)
}

// Append serializes m, appending to dst.
func Append(dst []byte, m *message.Message, opts ...EncodeOption) ([]byte, error) {
	e := newEncoder(opts)
	n, err := e.messageSize(m, 0)
	if err != nil {
		return dst, err
	}
	start := len(dst)
	dst = slices.Grow(dst, n)
	out := e.appendMessage(dst, m)
	if _, err := e.finish(out[start:], n); err != nil {
		return dst, err
	}
	return out, nil
}

func (e *encoder) finish(b []byte, want int) ([]byte, error) {
	if len(b) != want {
		return nil, status.Errorf(status.Invalid, "encoded %d bytes, sized %d", len(b), want)
	}
	return b, nil
}

// present returns the value of f and whether it is emitted. Fields without
// presence are emitted when their bits are non-zero, which for strings
// means non-empty.
func present(m *message.Message, f *minitable.Field) (message.MsgVal, bool) {
	switch {
	case f.IsRepeated():
		a := m.GetArray(f)
		return message.ArrayVal(a), a.Len() > 0
	case f.IsMap():
		x := m.GetMap(f)
		return message.MapVal(x), x.Len() > 0
	case f.HasPresence():
		if !m.Has(f) {
			return message.MsgVal{}, false
		}
		return m.Get(f), true
	default:
		v := m.Get(f)
		return v, v.Bits() != 0
	}
}

func (e *encoder) messageSize(m *message.Message, depth int) (int, error) {
	if depth > e.opts.maxNesting {
		return 0, status.Errorf(status.MaxDepthExceeded, "encode exceeds nesting limit %d", e.opts.maxNesting)
	}
	if n, ok := e.sizes[m]; ok {
		return n, nil
	}
	t := m.Table()
	if e.opts.checkRequired && !m.CheckRequired() {
		return 0, status.Errorf(status.MissingRequired, "%s: missing required fields %v", t.Name, m.MissingRequired())
	}
	n := 0
	for i := range t.Fields {
		f := &t.Fields[i]
		v, ok := present(m, f)
		if !ok {
			continue
		}
		fn, err := e.fieldSize(f, t.Subs, v, depth)
		if err != nil {
			return 0, err
		}
		n += fn
	}
	for _, x := range m.Extensions() {
		if x.Ext.Field.IsRepeated() && x.Value.Array().Len() == 0 {
			continue
		}
		fn, err := e.fieldSize(&x.Ext.Field, []minitable.Sub{x.Ext.Sub}, x.Value, depth)
		if err != nil {
			return 0, err
		}
		n += fn
	}
	if !e.opts.skipUnknown {
		n += len(m.Unknown())
	}
	e.sizes[m] = n
	return n, nil
}

func subMessageOf(v message.MsgVal, subs []minitable.Sub, f *minitable.Field) *message.Message {
	if sub := v.Message(); sub != nil {
		return sub
	}
	return message.Empty(subs[f.SubIndex].Message)
}

func (e *encoder) fieldSize(f *minitable.Field, subs []minitable.Sub, v message.MsgVal, depth int) (int, error) {
	num := protowire.Number(f.Number)
	switch f.Kind() {
	case minitable.KindArray:
		a := v.Array()
		if f.IsPacked() {
			body := 0
			for i := range a.Len() {
				body += scalarSize(f.Type, a.Get(i))
			}
			return protowire.SizeTag(num) + protowire.SizeBytes(body), nil
		}
		n := 0
		for i := range a.Len() {
			en, err := e.valueSize(f, subs, a.Get(i), depth)
			if err != nil {
				return 0, err
			}
			n += en
		}
		return n, nil
	case minitable.KindMap:
		entry := subs[f.SubIndex].Message
		n := 0
		var err error
		v.Map().Range(func(k, val message.MsgVal) bool {
			var body int
			body, err = e.entrySize(entry, k, val, depth+1)
			n += protowire.SizeTag(num) + protowire.SizeBytes(body)
			return err == nil
		})
		return n, err
	default:
		return e.valueSize(f, subs, v, depth)
	}
}

// valueSize is the size of one tagged value.
func (e *encoder) valueSize(f *minitable.Field, subs []minitable.Sub, v message.MsgVal, depth int) (int, error) {
	num := protowire.Number(f.Number)
	switch f.Type {
	case minitable.TypeMessage:
		body, err := e.messageSize(subMessageOf(v, subs, f), depth+1)
		return protowire.SizeTag(num) + protowire.SizeBytes(body), err
	case minitable.TypeGroup:
		body, err := e.messageSize(subMessageOf(v, subs, f), depth+1)
		return 2*protowire.SizeTag(num) + body, err
	default:
		return protowire.SizeTag(num) + scalarSize(f.Type, v), nil
	}
}

// entrySize is the body size of a map entry. Key and value are always
// written.
func (e *encoder) entrySize(entry *minitable.Message, k, v message.MsgVal, depth int) (int, error) {
	if depth > e.opts.maxNesting {
		return 0, status.Errorf(status.MaxDepthExceeded, "encode exceeds nesting limit %d", e.opts.maxNesting)
	}
	n := protowire.SizeTag(1) + scalarSize(entry.MapKey().Type, k)
	vn, err := e.valueSize(entry.MapValue(), entry.Subs, v, depth)
	return n + vn, err
}

// scalarSize is the payload size of a non-message value.
func scalarSize(t minitable.FieldType, v message.MsgVal) int {
	switch t {
	case minitable.TypeBool:
		return 1
	case minitable.TypeInt32, minitable.TypeEnum:
		return protowire.SizeVarint(uint64(int64(v.Int32())))
	case minitable.TypeUInt32:
		return protowire.SizeVarint(uint64(v.Uint32()))
	case minitable.TypeSInt32:
		return protowire.SizeVarint(protowire.EncodeZigZag(int64(v.Int32())))
	case minitable.TypeInt64, minitable.TypeUInt64:
		return protowire.SizeVarint(v.Uint64())
	case minitable.TypeSInt64:
		return protowire.SizeVarint(protowire.EncodeZigZag(v.Int64()))
	case minitable.TypeFixed32, minitable.TypeSFixed32, minitable.TypeFloat:
		return protowire.SizeFixed32()
	case minitable.TypeFixed64, minitable.TypeSFixed64, minitable.TypeDouble:
		return protowire.SizeFixed64()
	case minitable.TypeString, minitable.TypeBytes:
		return protowire.SizeBytes(v.Len())
	}
	panic("wire: no scalar size for " + t.String())
}

func appendScalar(b []byte, t minitable.FieldType, v message.MsgVal) []byte {
	switch t {
	case minitable.TypeBool:
		return protowire.AppendVarint(b, protowire.EncodeBool(v.Bool()))
	case minitable.TypeInt32, minitable.TypeEnum:
		return protowire.AppendVarint(b, uint64(int64(v.Int32())))
	case minitable.TypeUInt32:
		return protowire.AppendVarint(b, uint64(v.Uint32()))
	case minitable.TypeSInt32:
		return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v.Int32())))
	case minitable.TypeInt64, minitable.TypeUInt64:
		return protowire.AppendVarint(b, v.Uint64())
	case minitable.TypeSInt64:
		return protowire.AppendVarint(b, protowire.EncodeZigZag(v.Int64()))
	case minitable.TypeFixed32, minitable.TypeSFixed32, minitable.TypeFloat:
		return protowire.AppendFixed32(b, v.Uint32())
	case minitable.TypeFixed64, minitable.TypeSFixed64, minitable.TypeDouble:
		return protowire.AppendFixed64(b, v.Uint64())
	case minitable.TypeString, minitable.TypeBytes:
		return protowire.AppendBytes(b, v.StringView())
	}
	panic("wire: cannot append " + t.String())
}

func (e *encoder) appendMessage(b []byte, m *message.Message) []byte {
	t := m.Table()
	for i := range t.Fields {
		f := &t.Fields[i]
		if v, ok := present(m, f); ok {
			b = e.appendField(b, f, t.Subs, v)
		}
	}
	for _, x := range m.Extensions() {
		if x.Ext.Field.IsRepeated() && x.Value.Array().Len() == 0 {
			continue
		}
		b = e.appendField(b, &x.Ext.Field, []minitable.Sub{x.Ext.Sub}, x.Value)
	}
	if !e.opts.skipUnknown {
		b = append(b, m.Unknown()...)
	}
	return b
}

func (e *encoder) appendField(b []byte, f *minitable.Field, subs []minitable.Sub, v message.MsgVal) []byte {
	num := protowire.Number(f.Number)
	switch f.Kind() {
	case minitable.KindArray:
		a := v.Array()
		if f.IsPacked() {
			body := 0
			for i := range a.Len() {
				body += scalarSize(f.Type, a.Get(i))
			}
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendVarint(b, uint64(body))
			for i := range a.Len() {
				b = appendScalar(b, f.Type, a.Get(i))
			}
			return b
		}
		for i := range a.Len() {
			b = e.appendValue(b, f, subs, a.Get(i))
		}
		return b
	case minitable.KindMap:
		entry := subs[f.SubIndex].Message
		x := v.Map()
		if e.opts.deterministic {
			for _, kv := range message.SortedEntries(x) {
				b = e.appendEntry(b, num, entry, kv.Key, kv.Value)
			}
			return b
		}
		x.Range(func(k, val message.MsgVal) bool {
			b = e.appendEntry(b, num, entry, k, val)
			return true
		})
		return b
	default:
		return e.appendValue(b, f, subs, v)
	}
}

func (e *encoder) appendValue(b []byte, f *minitable.Field, subs []minitable.Sub, v message.MsgVal) []byte {
	num := protowire.Number(f.Number)
	switch f.Type {
	case minitable.TypeMessage:
		sub := subMessageOf(v, subs, f)
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(e.sizes[sub]))
		return e.appendMessage(b, sub)
	case minitable.TypeGroup:
		b = protowire.AppendTag(b, num, protowire.StartGroupType)
		b = e.appendMessage(b, subMessageOf(v, subs, f))
		return protowire.AppendTag(b, num, protowire.EndGroupType)
	default:
		b = protowire.AppendTag(b, num, f.Type.WireType())
		return appendScalar(b, f.Type, v)
	}
}

func (e *encoder) appendEntry(b []byte, num protowire.Number, entry *minitable.Message, k, v message.MsgVal) []byte {
	kf, vf := entry.MapKey(), entry.MapValue()
	body := protowire.SizeTag(1) + scalarSize(kf.Type, k)
	if vf.Type.IsSubMessage() {
		body += protowire.SizeTag(2) + protowire.SizeBytes(e.sizes[subMessageOf(v, entry.Subs, vf)])
	} else {
		body += protowire.SizeTag(2) + scalarSize(vf.Type, v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(body))
	b = protowire.AppendTag(b, 1, kf.Type.WireType())
	b = appendScalar(b, kf.Type, k)
	return e.appendValue(b, vf, entry.Subs, v)
}
