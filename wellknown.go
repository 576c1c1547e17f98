package gojaupb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/def"
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/wire"
)

const (
	timestampName = "google.protobuf.Timestamp"
	durationName  = "google.protobuf.Duration"
	anyName       = "google.protobuf.Any"

	anyURLPrefix = "type.googleapis.com/"
)

// jsTimestampNow implements pb.timestampNow().
func (m *Module) jsTimestampNow(goja.FunctionCall) goja.Value {
	now := time.Now()
	return m.newSecondsNanos(timestampName, now.Unix(), int32(now.Nanosecond()))
}

// jsTimestampFromDate implements pb.timestampFromDate(date). It accepts
// a Date, or anything with a getTime method, or a number of epoch millis.
func (m *Module) jsTimestampFromDate(call goja.FunctionCall) goja.Value {
	ms, err := m.extractDateMs(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("timestampFromDate: %s", err))
	}
	seconds, nanos := timestampFromMs(ms)
	return m.newSecondsNanos(timestampName, seconds, nanos)
}

// jsTimestampDate implements pb.timestampDate(ts). It truncates to
// millisecond precision.
func (m *Module) jsTimestampDate(call goja.FunctionCall) goja.Value {
	seconds, nanos, err := m.secondsNanos(call.Argument(0), timestampName)
	if err != nil {
		panic(m.runtime.NewTypeError("timestampDate: %s", err))
	}
	return m.newDate(secondsNanosToMs(seconds, nanos))
}

// jsTimestampFromMs implements pb.timestampFromMs(ms).
func (m *Module) jsTimestampFromMs(call goja.FunctionCall) goja.Value {
	seconds, nanos := timestampFromMs(call.Argument(0).ToInteger())
	return m.newSecondsNanos(timestampName, seconds, nanos)
}

// jsTimestampMs implements pb.timestampMs(ts).
func (m *Module) jsTimestampMs(call goja.FunctionCall) goja.Value {
	seconds, nanos, err := m.secondsNanos(call.Argument(0), timestampName)
	if err != nil {
		panic(m.runtime.NewTypeError("timestampMs: %s", err))
	}
	return m.runtime.ToValue(secondsNanosToMs(seconds, nanos))
}

// jsDurationFromMs implements pb.durationFromMs(ms).
func (m *Module) jsDurationFromMs(call goja.FunctionCall) goja.Value {
	ms := call.Argument(0).ToInteger()
	// truncation toward zero keeps seconds and nanos the same sign
	return m.newSecondsNanos(durationName, ms/1000, int32(ms%1000*1_000_000))
}

// jsDurationMs implements pb.durationMs(dur).
func (m *Module) jsDurationMs(call goja.FunctionCall) goja.Value {
	seconds, nanos, err := m.secondsNanos(call.Argument(0), durationName)
	if err != nil {
		panic(m.runtime.NewTypeError("durationMs: %s", err))
	}
	return m.runtime.ToValue(secondsNanosToMs(seconds, nanos))
}

// jsAnyPack implements pb.anyPack(msgType, msg). It encodes msg
// deterministically under a type.googleapis.com URL. msg must be exactly
// of msgType.
func (m *Module) jsAnyPack(call goja.FunctionCall) goja.Value {
	md, err := m.messageDefOf(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("anyPack: first argument: %s", err))
	}

	ref, err := m.unwrapMessage(call.Argument(1))
	if err != nil {
		panic(m.runtime.NewTypeError("anyPack: second argument: %s", err))
	}
	if ref.def != md {
		panic(m.runtime.NewTypeError("anyPack: got a %s, want a %s",
			ref.def.FullName(), md.FullName()))
	}

	data, err := wire.Append(nil, ref.msg, wire.Deterministic())
	if err != nil {
		panic(m.runtime.NewGoError(fmt.Errorf("anyPack: encode: %w", err)))
	}

	anyDef := m.wellKnown(anyName)
	out, err := m.newMessage(anyDef)
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	if err := m.setBytes(out, "type_url", []byte(anyURLPrefix+md.FullName())); err != nil {
		panic(m.runtime.NewGoError(err))
	}
	if err := m.setBytes(out, "value", data); err != nil {
		panic(m.runtime.NewGoError(err))
	}
	return m.wrapMessage(out.msg, anyDef)
}

// jsAnyUnpack implements pb.anyUnpack(anyMsg, msgType). It decodes onto
// a new arena, and throws a TypeError if the Any holds some other type.
func (m *Module) jsAnyUnpack(call goja.FunctionCall) goja.Value {
	typeURL, data, err := m.anyContents(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("anyUnpack: first argument: %s", err))
	}

	md, err := m.messageDefOf(call.Argument(1))
	if err != nil {
		panic(m.runtime.NewTypeError("anyUnpack: second argument: %s", err))
	}
	if got := anyTypeName(typeURL); got != md.FullName() {
		panic(m.runtime.NewTypeError("anyUnpack: Any holds %q, not %q", got, md.FullName()))
	}

	msg, err := wire.DecodeNew(data, md.MiniTable(), m.NewArena(),
		wire.WithExtensionRegistry(m.pool.ExtensionRegistry()))
	if err != nil {
		panic(m.runtime.NewGoError(fmt.Errorf("anyUnpack: decode: %w", err)))
	}
	return m.wrapMessage(msg, md)
}

// jsAnyIs implements pb.anyIs(anyMsg, typeNameOrMsgType). Only the name
// after the last slash of the type URL is compared.
func (m *Module) jsAnyIs(call goja.FunctionCall) goja.Value {
	typeURL, _, err := m.anyContents(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("anyIs: first argument: %s", err))
	}

	want := call.Argument(1)
	if isNullish(want) {
		panic(m.runtime.NewTypeError("%s", "anyIs: second argument must be a type name or message type"))
	}
	if md, err := m.extractMessageDef(want); err == nil {
		return m.runtime.ToValue(anyTypeName(typeURL) == md.FullName())
	}
	return m.runtime.ToValue(anyTypeName(typeURL) == want.String())
}

// wellKnown returns a well-known type, which New installs in every pool.
func (m *Module) wellKnown(name string) *def.MessageDef {
	md := m.pool.FindMessageByName(name)
	if md == nil {
		panic(m.runtime.NewTypeError("message type %q not found", name))
	}
	return md
}

// newSecondsNanos wraps a new Timestamp or Duration.
func (m *Module) newSecondsNanos(name string, seconds int64, nanos int32) *goja.Object {
	md := m.wellKnown(name)
	ref, err := m.newMessage(md)
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	ref.msg.Set(md.FieldByName("seconds").MiniField(), message.Int64Val(seconds))
	ref.msg.Set(md.FieldByName("nanos").MiniField(), message.Int32Val(nanos))
	return m.wrapMessage(ref.msg, md)
}

// secondsNanos reads a wrapped Timestamp or Duration.
func (m *Module) secondsNanos(val goja.Value, name string) (int64, int32, error) {
	ref, err := m.unwrapMessage(val)
	if err != nil {
		return 0, 0, err
	}
	if ref.def.FullName() != name {
		return 0, 0, fmt.Errorf("expected %s, got %s", name, ref.def.FullName())
	}
	seconds := ref.def.FieldByName("seconds").Get(ref.msg).Int64()
	nanos := ref.def.FieldByName("nanos").Get(ref.msg).Int32()
	return seconds, nanos, nil
}

func (m *Module) setBytes(ref *messageRef, field string, b []byte) error {
	v, err := message.CopyBytes(ref.msg.Arena(), b)
	if err != nil {
		return err
	}
	ref.msg.Set(ref.def.FieldByName(field).MiniField(), v)
	return nil
}

// anyContents returns the type URL and value of a wrapped Any.
func (m *Module) anyContents(val goja.Value) (string, []byte, error) {
	ref, err := m.unwrapMessage(val)
	if err != nil {
		return "", nil, err
	}
	if ref.def.FullName() != anyName {
		return "", nil, errors.New("expected " + anyName + ", got " + ref.def.FullName())
	}
	typeURL := ref.def.FieldByName("type_url").Get(ref.msg).String()
	data := ref.def.FieldByName("value").Get(ref.msg).StringView()
	return typeURL, data, nil
}

// anyTypeName returns the part of a type URL after the last slash.
func anyTypeName(typeURL string) string {
	return typeURL[strings.LastIndexByte(typeURL, '/')+1:]
}

// timestampFromMs splits epoch millis with nanos in [0, 999999999], as
// Timestamp requires.
func timestampFromMs(ms int64) (int64, int32) {
	seconds := ms / 1000
	nanos := (ms % 1000) * 1_000_000
	if nanos < 0 {
		seconds--
		nanos += 1_000_000_000
	}
	return seconds, int32(nanos)
}

func secondsNanosToMs(seconds int64, nanos int32) int64 {
	return seconds*1000 + int64(nanos)/1_000_000
}

func (m *Module) extractDateMs(val goja.Value) (int64, error) {
	if isNullish(val) {
		return 0, errors.New("want a Date or a number")
	}
	obj, ok := val.(*goja.Object)
	if !ok {
		return val.ToInteger(), nil
	}
	getTime, ok := goja.AssertFunction(obj.Get("getTime"))
	if !ok {
		return val.ToInteger(), nil
	}
	v, err := getTime(obj)
	if err != nil {
		return 0, fmt.Errorf("getTime: %w", err)
	}
	return v.ToInteger(), nil
}

// newDate falls back to plain millis when Date is unavailable.
func (m *Module) newDate(ms int64) goja.Value {
	msv := m.runtime.ToValue(ms)
	ctor := m.runtime.Get("Date")
	if ctor == nil || goja.IsUndefined(ctor) {
		return msv
	}
	date, err := m.runtime.New(ctor, msv)
	if err != nil {
		return msv
	}
	return date
}
