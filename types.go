package gojaupb

import (
	"strconv"

	"github.com/dop251/goja"
)

// jsMessageType is the JS-facing implementation of
// pb.messageType(fullName). It returns a constructor function that, when
// called with new, creates a message on a fresh arena and wraps it. The
// optional argument initializes fields from a plain object or a message of
// the same type.
func (m *Module) jsMessageType(call goja.FunctionCall) goja.Value {
	fullName := call.Argument(0).String()

	md := m.pool.FindMessageByName(fullName)
	if md == nil || md.IsMapEntry() {
		panic(m.runtime.NewTypeError("message type %q not found", fullName))
	}

	ctorFn := func(call goja.ConstructorCall) *goja.Object {
		ref, err := m.newMessage(md)
		if err != nil {
			m.throw(err)
		}
		if err := m.initMessage(ref.msg, md, call.Argument(0)); err != nil {
			m.throw(err)
		}
		return m.wrapMessage(ref.msg, md)
	}

	ctorVal := m.runtime.ToValue(ctorFn)
	ctorObj := ctorVal.ToObject(m.runtime)

	_ = ctorObj.Set("_pbMsgDesc", &messageDefHolder{def: md})
	_ = ctorObj.Set("typeName", fullName)

	return ctorVal
}

// jsEnumType is the JS-facing implementation of pb.enumType(fullName).
// It returns a frozen object mapping name→number and number→name. Where
// numbers are aliased, the first name declared wins.
func (m *Module) jsEnumType(call goja.FunctionCall) goja.Value {
	fullName := call.Argument(0).String()

	ed := m.pool.FindEnumByName(fullName)
	if ed == nil {
		panic(m.runtime.NewTypeError("enum type %q not found", fullName))
	}

	obj := m.runtime.NewObject()
	for _, ev := range ed.Values() {
		_ = obj.Set(ev.Name(), ev.Number())
		key := strconv.Itoa(int(ev.Number()))
		if v := obj.Get(key); v == nil || goja.IsUndefined(v) {
			_ = obj.Set(key, ev.Name())
		}
	}

	freezeVal := m.runtime.Get("Object").ToObject(m.runtime).Get("freeze")
	if freezeFn, ok := goja.AssertFunction(freezeVal); ok {
		_, _ = freezeFn(goja.Undefined(), obj)
	}
	return obj
}
