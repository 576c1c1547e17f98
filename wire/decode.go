package wire

import (
	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/internal/utf8"
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/minitable"
	"github.com/joeycumines/goja-upb/status"
	"google.golang.org/protobuf/encoding/protowire"
)

type decoder struct {
	arena *arena.Arena
	opts  decodeOptions
}

// Decode parses buf and merges it into m. On error, the fields decoded
// before the failure remain set.
func Decode(buf []byte, m *message.Message, opts ...DecodeOption) error {
	if m.IsFrozen() {
		return status.New(status.Invalid, "decode into a frozen message")
	}
	d := &decoder{arena: m.Arena(), opts: resolveDecodeOptions(opts)}
	_, err := d.decodeMessage(buf, m, 0, 0)
	return err
}

// DecodeNew parses buf into a new message of type t allocated on a.
func DecodeNew(buf []byte, t *minitable.Message, a *arena.Arena, opts ...DecodeOption) (*message.Message, error) {
	m, err := message.New(t, a)
	if err != nil {
		return nil, err
	}
	if err := Decode(buf, m, opts...); err != nil {
		return m, err
	}
	return m, nil
}

func malformed(format string, args ...any) error {
	return status.Errorf(status.Malformed, format, args...)
}

func (d *decoder) depthError() error {
	return status.Errorf(status.MaxDepthExceeded, "decode exceeds nesting limit %d", d.opts.maxNesting)
}

// decodeMessage consumes fields from b into m. When endGroup is non-zero,
// m is a group body, and decoding stops after the matching end-group tag.
// It returns the number of bytes consumed.
func (d *decoder) decodeMessage(b []byte, m *message.Message, depth int, endGroup protowire.Number) (int, error) {
	if depth > d.opts.maxNesting {
		return 0, d.depthError()
	}
	t := m.Table()
	i := 0
	for i < len(b) {
		num, wt, n := protowire.ConsumeTag(b[i:])
		if n < 0 {
			return 0, malformed("%s: bad tag at offset %d", t.Name, i)
		}
		if wt == protowire.EndGroupType {
			if endGroup == 0 || num != endGroup {
				return 0, malformed("%s: unexpected end of group %d", t.Name, num)
			}
			i += n
			return i, d.checkRequired(m)
		}
		start := i
		i += n

		f := t.FastLookup(num, wt)
		var (
			subs []minitable.Sub
			ext  *minitable.Extension
		)
		if f != nil {
			subs = t.Subs
		} else if t.Ext == minitable.Extendable {
			if ext = d.opts.extensions.Find(t, uint32(num)); ext != nil {
				f = &ext.Field
				subs = []minitable.Sub{ext.Sub}
			}
		}

		var (
			vn  int
			err error
		)
		if f != nil && wireTypeOK(f, wt) {
			vn, err = d.decodeField(b[i:], m, f, subs, ext, wt, depth)
		} else {
			vn, err = d.skipValue(b[i:], num, wt, depth)
			if err == nil {
				err = d.keepUnknown(m, b[start:i+vn])
			}
		}
		if err != nil {
			return 0, err
		}
		i += vn
	}
	if endGroup != 0 {
		return 0, malformed("%s: group %d is not terminated", t.Name, endGroup)
	}
	return i, d.checkRequired(m)
}

func (d *decoder) checkRequired(m *message.Message) error {
	if d.opts.checkRequired && !m.CheckRequired() {
		return status.Errorf(status.MissingRequired, "%s: missing required fields %v", m.Table().Name, m.MissingRequired())
	}
	return nil
}

func (d *decoder) keepUnknown(m *message.Message, raw []byte) error {
	if d.opts.discardUnknown {
		return nil
	}
	return m.AppendUnknown(raw)
}

// wireTypeOK reports whether wt can be decoded into f. Repeated primitive
// fields take both packed and unpacked encodings.
func wireTypeOK(f *minitable.Field, wt protowire.Type) bool {
	if f.IsMap() {
		return wt == protowire.BytesType
	}
	want := f.Type.WireType()
	if wt == want {
		return true
	}
	return f.IsRepeated() && f.Type.IsPackable() && wt == protowire.BytesType
}

// skipValue returns the length of the value of an unknown field. Groups are
// walked, and count toward the nesting limit.
func (d *decoder) skipValue(b []byte, num protowire.Number, wt protowire.Type, depth int) (int, error) {
	if wt != protowire.StartGroupType {
		n := protowire.ConsumeFieldValue(num, wt, b)
		if n < 0 {
			return 0, malformed("field %d: %v", num, protowire.ParseError(n))
		}
		return n, nil
	}
	if depth+1 > d.opts.maxNesting {
		return 0, d.depthError()
	}
	i := 0
	for i < len(b) {
		gnum, gwt, n := protowire.ConsumeTag(b[i:])
		if n < 0 {
			return 0, malformed("group %d: bad tag", num)
		}
		i += n
		if gwt == protowire.EndGroupType {
			if gnum != num {
				return 0, malformed("group %d closed by %d", num, gnum)
			}
			return i, nil
		}
		vn, err := d.skipValue(b[i:], gnum, gwt, depth+1)
		if err != nil {
			return 0, err
		}
		i += vn
	}
	return 0, malformed("group %d is not terminated", num)
}

func (d *decoder) decodeField(b []byte, m *message.Message, f *minitable.Field, subs []minitable.Sub, ext *minitable.Extension, wt protowire.Type, depth int) (int, error) {
	switch {
	case f.IsMap():
		return d.decodeMapEntry(b, m, f, subs[f.SubIndex].Message, depth)
	case f.Type.IsSubMessage():
		return d.decodeSubMessage(b, m, f, subs[f.SubIndex].Message, ext, wt, depth)
	case f.IsRepeated() && wt == protowire.BytesType && f.Type.IsPackable():
		return d.decodePacked(b, m, f, subs, ext)
	}

	v, n, err := d.consumeScalar(b, f)
	if err != nil {
		return 0, err
	}
	if f.IsClosedEnum() && !subs[f.SubIndex].Enum.CheckValue(v.Int32()) {
		return n, d.keepUnknown(m, appendEnumUnknown(nil, f.Number, v))
	}
	switch {
	case ext != nil && f.IsRepeated():
		err = m.MutableExtensionArray(ext).Append(v)
	case ext != nil:
		m.SetExtension(ext, v)
	case f.IsRepeated():
		err = m.MutableArray(f).Append(v)
	default:
		m.Set(f, v)
	}
	return n, err
}

// appendEnumUnknown encodes an out-of-set closed enum value as its own
// varint field.
func appendEnumUnknown(b []byte, num uint32, v message.MsgVal) []byte {
	b = protowire.AppendTag(b, protowire.Number(num), protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v.Int32())))
}

func (d *decoder) consumeScalar(b []byte, f *minitable.Field) (message.MsgVal, int, error) {
	switch f.Type.WireType() {
	case protowire.VarintType:
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return message.MsgVal{}, 0, malformed("field %d: %v", f.Number, protowire.ParseError(n))
		}
		return varintValue(f.Type, x), n, nil
	case protowire.Fixed32Type:
		x, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return message.MsgVal{}, 0, malformed("field %d: %v", f.Number, protowire.ParseError(n))
		}
		return message.Uint32Val(x), n, nil
	case protowire.Fixed64Type:
		x, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return message.MsgVal{}, 0, malformed("field %d: %v", f.Number, protowire.ParseError(n))
		}
		return message.Uint64Val(x), n, nil
	default:
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return message.MsgVal{}, 0, malformed("field %d: %v", f.Number, protowire.ParseError(n))
		}
		if f.ValidateUTF8() && !utf8.Valid(raw) {
			return message.MsgVal{}, 0, status.Errorf(status.BadUTF8, "field %d: invalid UTF-8", f.Number)
		}
		if d.opts.aliasString {
			return message.BytesVal(raw), n, nil
		}
		v, err := message.CopyBytes(d.arena, raw)
		return v, n, err
	}
}

func varintValue(t minitable.FieldType, x uint64) message.MsgVal {
	switch t {
	case minitable.TypeBool:
		return message.BoolVal(x != 0)
	case minitable.TypeInt32, minitable.TypeEnum:
		return message.Int32Val(int32(x))
	case minitable.TypeUInt32:
		return message.Uint32Val(uint32(x))
	case minitable.TypeSInt32:
		u := uint32(x)
		return message.Int32Val(int32(u>>1) ^ -int32(u&1))
	case minitable.TypeSInt64:
		return message.Int64Val(protowire.DecodeZigZag(x))
	default:
		return message.Uint64Val(x)
	}
}

func (d *decoder) decodePacked(b []byte, m *message.Message, f *minitable.Field, subs []minitable.Sub, ext *minitable.Extension) (int, error) {
	run, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, malformed("field %d: %v", f.Number, protowire.ParseError(n))
	}
	var a *message.Array
	if ext != nil {
		a = m.MutableExtensionArray(ext)
	} else {
		a = m.MutableArray(f)
	}
	var rejected []byte
	for len(run) > 0 {
		v, vn, err := d.consumeScalar(run, f)
		if err != nil {
			return 0, err
		}
		run = run[vn:]
		if f.IsClosedEnum() && !subs[f.SubIndex].Enum.CheckValue(v.Int32()) {
			rejected = appendEnumUnknown(rejected, f.Number, v)
			continue
		}
		if err := a.Append(v); err != nil {
			return 0, err
		}
	}
	return n, d.keepUnknown(m, rejected)
}

func (d *decoder) decodeSubMessage(b []byte, m *message.Message, f *minitable.Field, t *minitable.Message, ext *minitable.Extension, wt protowire.Type, depth int) (int, error) {
	var (
		sub *message.Message
		err error
	)
	switch {
	case f.IsRepeated():
		sub, err = message.New(t, d.arena)
		if err == nil {
			if ext != nil {
				err = m.MutableExtensionArray(ext).Append(message.MessageVal(sub))
			} else {
				err = m.MutableArray(f).Append(message.MessageVal(sub))
			}
		}
	case ext != nil:
		sub, err = m.MutableExtensionMessage(ext)
	default:
		// merges into the existing instance
		sub, err = m.MutableMessage(f)
	}
	if err != nil {
		return 0, err
	}

	if wt == protowire.StartGroupType {
		return d.decodeMessage(b, sub, depth+1, protowire.Number(f.Number))
	}
	body, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, malformed("field %d: %v", f.Number, protowire.ParseError(n))
	}
	if _, err := d.decodeMessage(body, sub, depth+1, 0); err != nil {
		return 0, err
	}
	return n, nil
}

// decodeMapEntry decodes one entry into a scratch entry message, then moves
// its key and value into the map. Missing keys and values read as zero, and
// a repeated key replaces the earlier entry. An entry whose closed enum
// value is out of set is kept whole as an unknown field.
func (d *decoder) decodeMapEntry(b []byte, m *message.Message, f *minitable.Field, entry *minitable.Message, depth int) (int, error) {
	body, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, malformed("field %d: %v", f.Number, protowire.ParseError(n))
	}
	tmp, err := message.New(entry, d.arena)
	if err != nil {
		return 0, err
	}
	scratch := *d
	scratch.opts.discardUnknown = false
	if _, err := scratch.decodeMessage(body, tmp, depth+1, 0); err != nil {
		return 0, err
	}
	kf, vf := entry.MapKey(), entry.MapValue()
	if vf.IsClosedEnum() && !tmp.Has(vf) && len(tmp.Unknown()) != 0 {
		raw := protowire.AppendTag(nil, protowire.Number(f.Number), protowire.BytesType)
		return n, d.keepUnknown(m, append(raw, b[:n]...))
	}
	val := tmp.Get(vf)
	if vf.Type.IsSubMessage() && val.Message() == nil {
		sub, err := message.New(entry.SubMessage(vf), d.arena)
		if err != nil {
			return 0, err
		}
		val = message.MessageVal(sub)
	}
	m.MutableMap(f).Set(tmp.Get(kf), val)
	return n, nil
}
