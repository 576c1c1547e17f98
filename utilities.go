package gojaupb

import (
	"math/big"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/def"
	"github.com/joeycumines/goja-upb/message"
)

// jsEquals is the JS-facing implementation of pb.equals(msg1, msg2). It
// compares two wrapped messages for structural equality, using
// [message.Equal]. Messages of different types are never equal.
func (m *Module) jsEquals(call goja.FunctionCall) goja.Value {
	a, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("equals: first argument: %s", err))
	}

	b, err := m.unwrapMessage(call.Argument(1))
	if err != nil {
		panic(m.runtime.NewTypeError("equals: second argument: %s", err))
	}

	return m.runtime.ToValue(message.Equal(a.msg, b.msg))
}

// jsHash is the JS-facing implementation of pb.hash(msg, seed?). It
// returns a BigInt, equal for messages that are equal.
func (m *Module) jsHash(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("hash: %s", err))
	}

	var seed uint64
	if v := call.Argument(1); !isNullish(v) {
		if seed, err = toInteger[uint64](v); err != nil {
			m.throw(err)
		}
	}
	return m.runtime.ToValue(new(big.Int).SetUint64(message.Hash(ref.msg, seed)))
}

// jsClone is the JS-facing implementation of pb.clone(msg). It creates a
// deep copy of a wrapped message on a new arena. The clone is independent
// of, and never frozen like, the original.
func (m *Module) jsClone(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("clone: %s", err))
	}

	cloned, err := ref.msg.DeepCopy(m.NewArena())
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	return m.wrapMessage(cloned, ref.def)
}

// jsIsMessage is the JS-facing implementation of
// pb.isMessage(value[, typeName]).
//
// With one argument, it returns true if the value is a wrapped protobuf
// message object. With two arguments, it also checks that the message's
// fully-qualified type name matches the given string.
func (m *Module) jsIsMessage(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		return m.runtime.ToValue(false)
	}

	if typeArg := call.Argument(1); !isNullish(typeArg) {
		return m.runtime.ToValue(ref.def.FullName() == typeArg.String())
	}
	return m.runtime.ToValue(true)
}

// jsIsFieldSet is the JS-facing implementation of
// pb.isFieldSet(msg, fieldName). It returns true if the named field has
// been explicitly set on the message.
func (m *Module) jsIsFieldSet(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("isFieldSet: %s", err))
	}

	fd := m.resolveField(ref.def, call.Argument(1).String())
	return m.runtime.ToValue(ref.msg.Has(fd.MiniField()))
}

// jsClearField is the JS-facing implementation of
// pb.clearField(msg, fieldName). It resets the named field to its
// default value.
func (m *Module) jsClearField(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("clearField: %s", err))
	}

	fd := m.resolveField(ref.def, call.Argument(1).String())
	m.checkMutable(ref.msg)
	ref.msg.ClearField(fd.MiniField())
	return goja.Undefined()
}

// jsClear is the JS-facing implementation of pb.clear(msg). It resets
// every field, and drops unknown fields and extensions.
func (m *Module) jsClear(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("clear: %s", err))
	}

	m.checkMutable(ref.msg)
	ref.msg.Clear()
	return goja.Undefined()
}

// jsUnknownFields is the JS-facing implementation of
// pb.unknownFields(msg). It returns a copy of the preserved unknown field
// bytes, in wire order.
func (m *Module) jsUnknownFields(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("unknownFields: %s", err))
	}

	return m.newUint8Array(append([]byte{}, ref.msg.Unknown()...))
}

// jsFreeze implements pb.freeze(msg). Everything reachable from msg
// becomes read-only, and writes through any wrapper throw a TypeError.
// It returns msg.
func (m *Module) jsFreeze(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("freeze: %s", err))
	}
	ref.msg.Freeze()
	return call.Argument(0)
}

// jsIsFrozen implements pb.isFrozen(msg).
func (m *Module) jsIsFrozen(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("isFrozen: %s", err))
	}
	return m.runtime.ToValue(ref.msg.IsFrozen())
}

// jsToObject implements pb.toObject(msg): a plain object snapshot keyed by
// proto field name, holding only present fields. Sub-messages nest as
// plain objects, repeated fields become arrays, and maps become objects
// keyed by the string form of the key. Known enum numbers read as their
// names. Extensions are left out.
func (m *Module) jsToObject(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("toObject: %s", err))
	}
	return m.plainMessage(ref.msg, ref.def)
}

func (m *Module) plainMessage(msg *message.Message, md *def.MessageDef) *goja.Object {
	rt := m.runtime
	obj := rt.NewObject()
	for _, fd := range md.Fields() {
		f := fd.MiniField()
		if !msg.Has(f) {
			continue
		}
		switch {
		case fd.IsMap():
			entries := rt.NewObject()
			for _, e := range message.SortedEntries(msg.GetMap(f)) {
				k := m.ToHost(e.Key, fd.MapKey()).String()
				_ = entries.Set(k, m.plainValue(e.Value, fd.MapValue()))
			}
			_ = obj.Set(fd.Name(), entries)
		case fd.IsRepeated():
			arr := msg.GetArray(f)
			items := make([]any, arr.Len())
			for i := range items {
				items[i] = m.plainValue(arr.Get(i), fd)
			}
			_ = obj.Set(fd.Name(), rt.NewArray(items...))
		default:
			_ = obj.Set(fd.Name(), m.plainValue(msg.Get(f), fd))
		}
	}
	return obj
}

func (m *Module) plainValue(v message.MsgVal, fd *def.FieldDef) goja.Value {
	switch {
	case fd.IsSubMessage():
		if v.Message() == nil {
			return goja.Null()
		}
		return m.plainMessage(v.Message(), fd.MessageType())
	case fd.EnumType() != nil:
		if ev := fd.EnumType().ValueByNumber(v.Int32()); ev != nil {
			return m.runtime.ToValue(ev.Name())
		}
	}
	return m.ToHost(v, fd)
}
