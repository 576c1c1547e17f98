package gojaupb

import (
	"math/big"
	"strconv"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/def"
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/minitable"
	"github.com/joeycumines/goja-upb/status"
)

// initMessage sets the fields of msg from the own properties of init,
// looked up by proto name, then by JSON name. A wrapper of the same type
// is merged field by field. Nullish properties are skipped.
func (m *Module) initMessage(msg *message.Message, md *def.MessageDef, init goja.Value) error {
	if isNullish(init) {
		return nil
	}
	obj, ok := init.(*goja.Object)
	if !ok {
		return status.Errorf(status.TypeError, "%s: expected object initializer, got %s", md.FullName(), typeOf(init))
	}
	if ref, err := m.unwrapMessage(obj); err == nil {
		if ref.def != md {
			return status.Errorf(status.TypeError, "expected %s, got %s", md.FullName(), ref.def.FullName())
		}
		return mergeMessage(msg, ref.msg)
	}
	for _, fd := range md.Fields() {
		val := obj.Get(fd.Name())
		if val == nil && fd.JSONName() != fd.Name() {
			val = obj.Get(fd.JSONName())
		}
		if isNullish(val) {
			continue
		}
		if err := m.assignField(msg, fd, val); err != nil {
			return err
		}
	}
	return nil
}

// mergeMessage copies the set fields of src over dst, which share a type.
func mergeMessage(dst, src *message.Message) error {
	cp, err := src.DeepCopy(dst.Arena())
	if err != nil {
		return err
	}
	t := dst.Table()
	for i := range t.Fields {
		f := &t.Fields[i]
		if cp.Has(f) {
			dst.Set(f, cp.Get(f))
		}
	}
	for _, e := range cp.Extensions() {
		dst.SetExtension(e.Ext, e.Value)
	}
	return dst.AppendUnknown(cp.Unknown())
}

// assignField replaces the value of fd in msg. Repeated and map fields are
// converted in full before msg is touched.
func (m *Module) assignField(msg *message.Message, fd *def.FieldDef, val goja.Value) error {
	f := fd.MiniField()
	a := msg.Arena()
	switch {
	case fd.IsMap():
		entries, err := m.mapEntriesFromHost(val, fd, a)
		if err != nil {
			return err
		}
		x := msg.MutableMap(f)
		x.Clear()
		for _, e := range entries {
			x.Set(e.Key, e.Value)
		}
	case fd.IsRepeated():
		vals, err := m.elementsFromHost(val, fd, a)
		if err != nil {
			return err
		}
		arr := msg.MutableArray(f)
		arr.Clear()
		for _, v := range vals {
			if err := arr.Append(v); err != nil {
				return err
			}
		}
	default:
		v, err := m.elementFromHost(val, fd, a)
		if err != nil {
			return err
		}
		msg.Set(f, v)
	}
	return nil
}

// elementFromHost is [Module.FromHost], plus plain object initializers for
// message values.
func (m *Module) elementFromHost(val goja.Value, fd *def.FieldDef, a *arena.Arena) (message.MsgVal, error) {
	if fd.IsSubMessage() {
		if obj, ok := val.(*goja.Object); ok && !m.isMessage(obj) {
			md := fd.MessageType()
			sub, err := message.New(md.MiniTable(), a)
			if err != nil {
				return message.MsgVal{}, err
			}
			if err := m.initMessage(sub, md, obj); err != nil {
				return message.MsgVal{}, err
			}
			return message.MessageVal(sub), nil
		}
	}
	return m.FromHost(val, fd, a)
}

func (m *Module) isMessage(obj *goja.Object) bool {
	_, err := m.unwrapMessage(obj)
	return err == nil
}

// elementsFromHost converts an array-like value, or a repeated field
// wrapper, to the elements of fd.
func (m *Module) elementsFromHost(val goja.Value, fd *def.FieldDef, a *arena.Arena) ([]message.MsgVal, error) {
	obj, ok := val.(*goja.Object)
	if !ok {
		return nil, status.Errorf(status.TypeError, "field %s: expected array, got %s", fd.FullName(), typeOf(val))
	}
	var items []goja.Value
	if ref := unwrapField(obj); ref != nil && !ref.fd.IsMap() {
		arr := ref.msg.GetArray(ref.fd.MiniField())
		for i := 0; i < arr.Len(); i++ {
			items = append(items, m.ToHost(arr.Get(i), ref.fd))
		}
	} else {
		length := obj.Get("length")
		if length == nil || !goja.IsNumber(length) {
			return nil, status.Errorf(status.TypeError, "field %s: expected array, got %s", fd.FullName(), typeOf(val))
		}
		n := int(length.ToInteger())
		items = make([]goja.Value, n)
		for i := range items {
			items[i] = obj.Get(strconv.Itoa(i))
		}
	}
	out := make([]message.MsgVal, 0, len(items))
	for i, item := range items {
		if isNullish(item) {
			return nil, status.Errorf(status.TypeError, "field %s[%d]: cannot add null/undefined to repeated field", fd.FullName(), i)
		}
		v, err := m.elementFromHost(item, fd, a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// mapEntriesFromHost converts a JS Map, a map field wrapper, or a plain
// object, to the entries of fd. Entries with nullish values are skipped.
func (m *Module) mapEntriesFromHost(val goja.Value, fd *def.FieldDef, a *arena.Arena) ([]message.MapEntry, error) {
	obj, ok := val.(*goja.Object)
	if !ok {
		return nil, status.Errorf(status.TypeError, "field %s: expected object or Map, got %s", fd.FullName(), typeOf(val))
	}
	keyFD, valueFD := fd.MapKey(), fd.MapValue()

	var pairs [][2]goja.Value
	switch ref := unwrapField(obj); {
	case ref != nil && ref.fd.IsMap():
		rk, rv := ref.fd.MapKey(), ref.fd.MapValue()
		for _, e := range message.SortedEntries(ref.msg.GetMap(ref.fd.MiniField())) {
			pairs = append(pairs, [2]goja.Value{m.ToHost(e.Key, rk), m.ToHost(e.Value, rv)})
		}
	case obj.ClassName() == "Map":
		var iterErr error
		m.runtime.ForOf(obj, func(entry goja.Value) bool {
			e, ok := entry.(*goja.Object)
			if !ok {
				iterErr = status.Errorf(status.TypeError, "field %s: invalid Map entry", fd.FullName())
				return false
			}
			pairs = append(pairs, [2]goja.Value{e.Get("0"), e.Get("1")})
			return true
		})
		if iterErr != nil {
			return nil, iterErr
		}
	default:
		for _, k := range obj.Keys() {
			pairs = append(pairs, [2]goja.Value{m.runtime.ToValue(k), obj.Get(k)})
		}
	}

	out := make([]message.MapEntry, 0, len(pairs))
	for _, p := range pairs {
		if isNullish(p[1]) {
			continue
		}
		k, err := m.mapKeyFromHost(p[0], keyFD)
		if err != nil {
			return nil, err
		}
		v, err := m.elementFromHost(p[1], valueFD, a)
		if err != nil {
			return nil, err
		}
		out = append(out, message.MapEntry{Key: k, Value: v})
	}
	return out, nil
}

// mapKeyFromHost converts a map key. Keys of plain objects are always
// strings, so numeric and bool keys also accept their decimal or
// "true"/"false" spelling.
func (m *Module) mapKeyFromHost(val goja.Value, fd *def.FieldDef) (message.MsgVal, error) {
	switch fd.Type() {
	case minitable.TypeString:
		b, err := toUTF8(val)
		if err != nil {
			return message.MsgVal{}, fieldError(fd, err)
		}
		return message.StringVal(string(b)), nil
	case minitable.TypeBool:
		if goja.IsString(val) {
			switch val.String() {
			case "true":
				return message.BoolVal(true), nil
			case "false":
				return message.BoolVal(false), nil
			}
			return message.MsgVal{}, fieldError(fd, status.Errorf(status.TypeError, "invalid bool map key %q", val.String()))
		}
	default:
		if goja.IsString(val) {
			n, ok := new(big.Int).SetString(val.String(), 10)
			if !ok {
				return message.MsgVal{}, fieldError(fd, status.Errorf(status.TypeError, "invalid integer map key %q", val.String()))
			}
			val = m.runtime.ToValue(n)
		}
	}
	return m.FromHost(val, fd, nil)
}
