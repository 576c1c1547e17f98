package gojaupb

import (
	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/wire"
)

// jsEncode is the JS-facing implementation of pb.encode(msg, opts?). It
// serialises a wrapped message to binary format and returns a Uint8Array.
//
// Supported options:
//   - deterministic (bool): sort map entries by key
//   - skipUnknown (bool): omit unknown fields
//   - checkRequired (bool): fail if a required field is missing
func (m *Module) jsEncode(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("encode: %s", err))
	}

	data, err := wire.Append(nil, ref.msg, m.parseEncodeOptions(call.Argument(1))...)
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	return m.newUint8Array(data)
}

// jsDecode is the JS-facing implementation of
// pb.decode(msgType, bytes, opts?). It deserialises binary data into a new
// message, on a new arena. msgType is a constructor returned by
// messageType(), or a fully-qualified type name.
//
// Supported options:
//   - checkRequired (bool): fail if a required field is missing
//   - maxNesting (number): the sub-message depth limit
//   - aliasString (bool): strings share one arena copy of the input
//   - discardUnknown (bool): drop unknown fields
func (m *Module) jsDecode(call goja.FunctionCall) goja.Value {
	md, err := m.messageDefOf(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("decode: %s", err))
	}

	data, err := m.extractBytes(call.Argument(1))
	if err != nil {
		panic(m.runtime.NewTypeError("decode: %s", err))
	}

	opts, alias := m.parseDecodeOptions(call.Argument(2))
	a := m.NewArena()
	if alias {
		// the input belongs to JS, which may modify it later
		if data, err = arenaCopy(a, data); err != nil {
			panic(m.runtime.NewGoError(err))
		}
	}
	msg, err := wire.DecodeNew(data, md.MiniTable(), a, opts...)
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	return m.wrapMessage(msg, md)
}

func arenaCopy(a *arena.Arena, b []byte) ([]byte, error) {
	v, err := message.CopyBytes(a, b)
	if err != nil {
		return nil, err
	}
	return v.StringView(), nil
}

func (m *Module) parseEncodeOptions(val goja.Value) []wire.EncodeOption {
	opts := append([]wire.EncodeOption(nil), m.encodeOpts...)
	if isNullish(val) {
		return opts
	}
	obj := val.ToObject(m.runtime)
	if optionSet(obj, "deterministic") {
		opts = append(opts, wire.Deterministic())
	}
	if optionSet(obj, "skipUnknown") {
		opts = append(opts, wire.SkipUnknown())
	}
	if optionSet(obj, "checkRequired") {
		opts = append(opts, wire.CheckRequired())
	}
	return opts
}

// parseDecodeOptions returns the decode options, with the extensions of
// the pool always registered, and whether strings alias the input.
func (m *Module) parseDecodeOptions(val goja.Value) ([]wire.DecodeOption, bool) {
	opts := []wire.DecodeOption{wire.WithExtensionRegistry(m.pool.ExtensionRegistry())}
	opts = append(opts, m.decodeOpts...)
	if isNullish(val) {
		return opts, false
	}
	obj := val.ToObject(m.runtime)
	if optionSet(obj, "checkRequired") {
		opts = append(opts, wire.CheckRequired())
	}
	if v := obj.Get("maxNesting"); !isNullish(v) {
		opts = append(opts, wire.MaxNesting(int(v.ToInteger())))
	}
	if optionSet(obj, "discardUnknown") {
		opts = append(opts, wire.DiscardUnknown())
	}
	alias := optionSet(obj, "aliasString")
	if alias {
		opts = append(opts, wire.AliasString())
	}
	return opts, alias
}

func optionSet(obj *goja.Object, name string) bool {
	v := obj.Get(name)
	return !isNullish(v) && v.ToBoolean()
}
