package gojaupb

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/def"
	"github.com/joeycumines/goja-upb/message"
)

// messageRef is stored on every message wrapper, as _pbMsg.
type messageRef struct {
	msg *message.Message
	def *def.MessageDef
}

// fieldRef is stored on repeated and map field wrappers, as _pbField.
type fieldRef struct {
	msg *message.Message
	fd  *def.FieldDef
}

// wrapMessage returns the JS object wrapping msg, creating it on first use.
// The object has get/set/has/clear/whichOneof/clearOneof methods and a
// $type read-only property.
func (m *Module) wrapMessage(msg *message.Message, md *def.MessageDef) *goja.Object {
	key := keyOf(msg, 0)
	if obj := m.cache.get(key); obj != nil {
		return obj
	}
	obj := m.newMessageObject(msg, md)
	m.cache.put(key, obj)
	return obj
}

func (m *Module) newMessageObject(msg *message.Message, md *def.MessageDef) *goja.Object {
	rt := m.runtime
	obj := rt.NewObject()

	_ = obj.Set("_pbMsg", &messageRef{msg: msg, def: md})

	_ = obj.DefineAccessorProperty("$type",
		rt.ToValue(func(goja.FunctionCall) goja.Value {
			return rt.ToValue(md.FullName())
		}),
		nil,
		goja.FLAG_FALSE,
		goja.FLAG_TRUE,
	)

	// get(fieldName): repeated and map fields return live wrappers, and an
	// unset sub-message is null.
	_ = obj.Set("get", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		fd := m.resolveField(md, call.Argument(0).String())
		switch {
		case fd.IsMap():
			return m.wrapMapField(msg, fd)
		case fd.IsRepeated():
			return m.wrapRepeatedField(msg, fd)
		case fd.IsSubMessage():
			if !msg.Has(fd.MiniField()) {
				return goja.Null()
			}
		}
		return m.ToHost(fd.Get(msg), fd)
	}))

	// set(fieldName, value): null or undefined clears the field.
	_ = obj.Set("set", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		fd := m.resolveField(md, call.Argument(0).String())
		m.checkMutable(msg)
		val := call.Argument(1)
		if isNullish(val) {
			msg.ClearField(fd.MiniField())
			return goja.Undefined()
		}
		if err := m.assignField(msg, fd, val); err != nil {
			m.throw(err)
		}
		return goja.Undefined()
	}))

	_ = obj.Set("has", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		fd := m.resolveField(md, call.Argument(0).String())
		return rt.ToValue(msg.Has(fd.MiniField()))
	}))

	_ = obj.Set("clear", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		fd := m.resolveField(md, call.Argument(0).String())
		m.checkMutable(msg)
		msg.ClearField(fd.MiniField())
		return goja.Undefined()
	}))

	// whichOneof(oneofName): the name of the set member, or undefined.
	_ = obj.Set("whichOneof", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		od := m.resolveOneof(md, call.Argument(0).String())
		if fd := whichOneof(msg, od); fd != nil {
			return rt.ToValue(fd.Name())
		}
		return goja.Undefined()
	}))

	_ = obj.Set("clearOneof", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		od := m.resolveOneof(md, call.Argument(0).String())
		m.checkMutable(msg)
		if fd := whichOneof(msg, od); fd != nil {
			msg.ClearField(fd.MiniField())
		}
		return goja.Undefined()
	}))

	return obj
}

func whichOneof(msg *message.Message, od *def.OneofDef) *def.FieldDef {
	fields := od.Fields()
	if len(fields) == 0 {
		return nil
	}
	return od.FieldByNumber(msg.WhichOneof(fields[0].MiniField()))
}

// unwrapMessage extracts the message from a JS value that was created by
// [Module.wrapMessage].
func (m *Module) unwrapMessage(val goja.Value) (*messageRef, error) {
	if isNullish(val) {
		return nil, errors.New("expected protobuf message, got null/undefined")
	}
	obj, ok := val.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("expected protobuf message, got %s", typeOf(val))
	}
	v := obj.Get("_pbMsg")
	if v == nil {
		return nil, errors.New("not a protobuf message wrapper")
	}
	ref, ok := v.Export().(*messageRef)
	if !ok || ref == nil {
		return nil, errors.New("not a protobuf message wrapper")
	}
	return ref, nil
}

// unwrapField returns the field behind a repeated or map wrapper, or nil.
func unwrapField(obj *goja.Object) *fieldRef {
	v := obj.Get("_pbField")
	if v == nil {
		return nil
	}
	ref, _ := v.Export().(*fieldRef)
	return ref
}

// resolveField looks up a field by proto name, then by JSON name. Panics
// with a JS TypeError if the field is not found.
func (m *Module) resolveField(md *def.MessageDef, name string) *def.FieldDef {
	fd := md.FieldByName(name)
	if fd == nil {
		fd = md.FieldByJSONName(name)
	}
	if fd == nil {
		panic(m.runtime.NewTypeError("field %q not found on message %q", name, md.FullName()))
	}
	return fd
}

func (m *Module) resolveOneof(md *def.MessageDef, name string) *def.OneofDef {
	od := md.OneofByName(name)
	if od == nil {
		panic(m.runtime.NewTypeError("oneof %q not found on message %q", name, md.FullName()))
	}
	return od
}

// checkMutable throws a TypeError for frozen messages, which the core
// would otherwise panic on.
func (m *Module) checkMutable(msg *message.Message) {
	if msg.IsFrozen() {
		panic(m.runtime.NewTypeError("message %s is frozen", msg.Table().Name))
	}
}

// ---------- Repeated field wrapper ----------

// wrapRepeatedField returns a JS object with array-like methods that
// operates on a repeated field of msg.
func (m *Module) wrapRepeatedField(msg *message.Message, fd *def.FieldDef) *goja.Object {
	key := keyOf(msg, fd.Number())
	if obj := m.cache.get(key); obj != nil {
		return obj
	}
	obj := m.newRepeatedObject(msg, fd)
	m.cache.put(key, obj)
	return obj
}

func (m *Module) newRepeatedObject(msg *message.Message, fd *def.FieldDef) *goja.Object {
	rt := m.runtime
	obj := rt.NewObject()
	f := fd.MiniField()

	_ = obj.Set("_pbField", &fieldRef{msg: msg, fd: fd})

	_ = obj.DefineAccessorProperty("length",
		rt.ToValue(func(goja.FunctionCall) goja.Value {
			return rt.ToValue(msg.GetArray(f).Len())
		}),
		nil,
		goja.FLAG_FALSE,
		goja.FLAG_TRUE,
	)

	// get(index): undefined when out of range.
	_ = obj.Set("get", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		v, err := msg.GetArray(f).At(int(call.Argument(0).ToInteger()))
		if err != nil {
			return goja.Undefined()
		}
		return m.ToHost(v, fd)
	}))

	_ = obj.Set("set", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		idx := int(call.Argument(0).ToInteger())
		val := call.Argument(1)
		m.checkMutable(msg)
		if isNullish(val) {
			panic(rt.NewTypeError("cannot set null/undefined in repeated field"))
		}
		v, err := m.elementFromHost(val, fd, msg.Arena())
		if err != nil {
			m.throw(err)
		}
		if err := msg.MutableArray(f).Set(idx, v); err != nil {
			m.throw(err)
		}
		return goja.Undefined()
	}))

	// add(...values): nothing is appended unless every value converts.
	_ = obj.Set("add", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		m.checkMutable(msg)
		vals := make([]message.MsgVal, 0, len(call.Arguments))
		for _, val := range call.Arguments {
			if isNullish(val) {
				panic(rt.NewTypeError("cannot add null/undefined to repeated field"))
			}
			v, err := m.elementFromHost(val, fd, msg.Arena())
			if err != nil {
				m.throw(err)
			}
			vals = append(vals, v)
		}
		arr := msg.MutableArray(f)
		for _, v := range vals {
			if err := arr.Append(v); err != nil {
				m.throw(err)
			}
		}
		return rt.ToValue(arr.Len())
	}))

	_ = obj.Set("clear", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		m.checkMutable(msg)
		if msg.GetArray(f) != nil {
			msg.MutableArray(f).Clear()
		}
		return goja.Undefined()
	}))

	// resize(n): new elements are zero, or empty messages.
	_ = obj.Set("resize", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		n, err := toInteger[int32](call.Argument(0))
		if err != nil {
			m.throw(err)
		}
		m.checkMutable(msg)
		arr := msg.MutableArray(f)
		old := arr.Len()
		if err := arr.Resize(int(n)); err != nil {
			m.throw(err)
		}
		if fd.IsSubMessage() {
			for i := old; i < int(n); i++ {
				sub, err := message.New(fd.MessageType().MiniTable(), msg.Arena())
				if err != nil {
					m.throw(err)
				}
				_ = arr.Set(i, message.MessageVal(sub))
			}
		}
		return goja.Undefined()
	}))

	// forEach(callback): callback(value, index, wrapper).
	_ = obj.Set("forEach", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		callback, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(rt.NewTypeError("forEach requires a function"))
		}
		for i := 0; i < msg.GetArray(f).Len(); i++ {
			val := m.ToHost(msg.GetArray(f).Get(i), fd)
			if _, err := callback(goja.Undefined(), val, rt.ToValue(i), obj); err != nil {
				panic(err)
			}
		}
		return goja.Undefined()
	}))

	// toArray(): a JS array snapshot of the elements.
	_ = obj.Set("toArray", rt.ToValue(func(goja.FunctionCall) goja.Value {
		arr := msg.GetArray(f)
		items := make([]any, arr.Len())
		for i := range items {
			items[i] = m.ToHost(arr.Get(i), fd)
		}
		return rt.NewArray(items...)
	}))

	return obj
}

// ---------- Map field wrapper ----------

// wrapMapField returns a JS object with Map-like methods that operates on
// a map field of msg.
func (m *Module) wrapMapField(msg *message.Message, fd *def.FieldDef) *goja.Object {
	key := keyOf(msg, fd.Number())
	if obj := m.cache.get(key); obj != nil {
		return obj
	}
	obj := m.newMapObject(msg, fd)
	m.cache.put(key, obj)
	return obj
}

func (m *Module) newMapObject(msg *message.Message, fd *def.FieldDef) *goja.Object {
	rt := m.runtime
	obj := rt.NewObject()
	f := fd.MiniField()
	keyFD := fd.MapKey()
	valueFD := fd.MapValue()

	mapKey := func(val goja.Value) message.MsgVal {
		k, err := m.mapKeyFromHost(val, keyFD)
		if err != nil {
			m.throw(err)
		}
		return k
	}

	_ = obj.Set("_pbField", &fieldRef{msg: msg, fd: fd})

	_ = obj.DefineAccessorProperty("size",
		rt.ToValue(func(goja.FunctionCall) goja.Value {
			return rt.ToValue(msg.GetMap(f).Len())
		}),
		nil,
		goja.FLAG_FALSE,
		goja.FLAG_TRUE,
	)

	_ = obj.Set("get", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		v, ok := msg.GetMap(f).Get(mapKey(call.Argument(0)))
		if !ok {
			return goja.Undefined()
		}
		return m.ToHost(v, valueFD)
	}))

	// set(key, value): null or undefined removes the entry.
	_ = obj.Set("set", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		k := mapKey(call.Argument(0))
		val := call.Argument(1)
		m.checkMutable(msg)
		if isNullish(val) {
			if msg.GetMap(f) != nil {
				msg.MutableMap(f).Delete(k)
			}
			return obj
		}
		v, err := m.elementFromHost(val, valueFD, msg.Arena())
		if err != nil {
			m.throw(err)
		}
		msg.MutableMap(f).Set(k, v)
		return obj
	}))

	_ = obj.Set("has", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		_, ok := msg.GetMap(f).Get(mapKey(call.Argument(0)))
		return rt.ToValue(ok)
	}))

	_ = obj.Set("delete", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		k := mapKey(call.Argument(0))
		m.checkMutable(msg)
		if msg.GetMap(f) == nil {
			return rt.ToValue(false)
		}
		return rt.ToValue(msg.MutableMap(f).Delete(k))
	}))

	_ = obj.Set("clear", rt.ToValue(func(goja.FunctionCall) goja.Value {
		m.checkMutable(msg)
		if msg.GetMap(f) != nil {
			msg.MutableMap(f).Clear()
		}
		return goja.Undefined()
	}))

	// forEach(callback): callback(value, key, wrapper), in key order.
	_ = obj.Set("forEach", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		callback, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(rt.NewTypeError("forEach requires a function"))
		}
		for _, e := range message.SortedEntries(msg.GetMap(f)) {
			jv := m.ToHost(e.Value, valueFD)
			jk := m.ToHost(e.Key, keyFD)
			if _, err := callback(goja.Undefined(), jv, jk, obj); err != nil {
				panic(err)
			}
		}
		return goja.Undefined()
	}))

	// entries(): an iterator of [key, value] pairs. Modifying the map
	// during iteration makes next() throw, including when the field's map
	// is created or dropped after the iterator was.
	_ = obj.Set("entries", rt.ToValue(func(goja.FunctionCall) goja.Value {
		start := msg.GetMap(f)
		it := start.Iterator()
		iter := rt.NewObject()
		_ = iter.Set("next", rt.ToValue(func(goja.FunctionCall) goja.Value {
			if msg.GetMap(f) != start {
				m.throw(message.ErrIteratorInvalidated)
			}
			result := rt.NewObject()
			if !it.Next() {
				if err := it.Err(); err != nil {
					m.throw(err)
				}
				_ = result.Set("done", true)
				_ = result.Set("value", goja.Undefined())
				return result
			}
			pair := rt.NewArray(m.ToHost(it.Key(), keyFD), m.ToHost(it.Value(), valueFD))
			_ = result.Set("done", false)
			_ = result.Set("value", pair)
			return result
		}))
		_ = iter.SetSymbol(goja.SymIterator, func(call goja.FunctionCall) goja.Value {
			return call.This
		})
		return iter
	}))

	return obj
}
