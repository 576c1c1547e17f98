package gojaupb

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/def"
	"github.com/joeycumines/goja-upb/wire"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// jsToJSON is the JS-facing implementation of pb.toJSON(msg, opts?). It
// converts a wrapped message to its proto3 JSON representation, as a
// plain JS object, or as a string when indent is given.
//
// Supported options:
//   - emitDefaults (bool): emit fields with default values
//   - enumAsNumber (bool): use enum numeric values instead of names
//   - useProtoNames (bool): use proto field names instead of camelCase
//   - indent (string): indentation string; if set, enables multiline
func (m *Module) jsToJSON(call goja.FunctionCall) goja.Value {
	ref, err := m.unwrapMessage(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("toJSON: %s", err))
	}

	opts := m.parseMarshalOptions(call.Argument(1))

	dm, err := m.toDynamic(ref)
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	jsonBytes, err := opts.Marshal(dm)
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	if opts.Multiline {
		return m.runtime.ToValue(string(jsonBytes))
	}

	jsonParseVal := m.runtime.Get("JSON").ToObject(m.runtime).Get("parse")
	parseFn, ok := goja.AssertFunction(jsonParseVal)
	if !ok {
		panic(m.runtime.NewTypeError("toJSON: JSON.parse is not available"))
	}
	result, err := parseFn(goja.Undefined(), m.runtime.ToValue(string(jsonBytes)))
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	return result
}

// jsFromJSON is the JS-facing implementation of
// pb.fromJSON(msgType, json, opts?). json is a proto3 JSON object, or its
// string form. Unknown JSON fields are ignored unless discardUnknown is
// false.
func (m *Module) jsFromJSON(call goja.FunctionCall) goja.Value {
	md, err := m.messageDefOf(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("fromJSON: %s", err))
	}

	val := call.Argument(1)
	var jsonStr string
	if goja.IsString(val) {
		jsonStr = val.String()
	} else {
		jsonStringifyVal := m.runtime.Get("JSON").ToObject(m.runtime).Get("stringify")
		stringifyFn, ok := goja.AssertFunction(jsonStringifyVal)
		if !ok {
			panic(m.runtime.NewTypeError("fromJSON: JSON.stringify is not available"))
		}
		out, err := stringifyFn(goja.Undefined(), val)
		if err != nil {
			panic(m.runtime.NewGoError(err))
		}
		if isNullish(out) {
			panic(m.runtime.NewTypeError("fromJSON: expected object or string, got %s", typeOf(val)))
		}
		jsonStr = out.String()
	}

	uOpts := protojson.UnmarshalOptions{
		Resolver:       m.TypeResolver(),
		DiscardUnknown: true,
	}
	if o := call.Argument(2); !isNullish(o) {
		if v := o.ToObject(m.runtime).Get("discardUnknown"); !isNullish(v) {
			uOpts.DiscardUnknown = v.ToBoolean()
		}
	}

	ref, err := m.fromDynamic(md, func(dm *dynamicpb.Message) error {
		return uOpts.Unmarshal([]byte(jsonStr), dm)
	})
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	return m.wrapMessage(ref.msg, ref.def)
}

// parseMarshalOptions extracts MarshalOptions from a JS options object.
func (m *Module) parseMarshalOptions(val goja.Value) protojson.MarshalOptions {
	opts := protojson.MarshalOptions{
		Resolver: m.TypeResolver(),
	}
	if isNullish(val) {
		return opts
	}

	obj := val.ToObject(m.runtime)

	if v := obj.Get("emitDefaults"); !isNullish(v) {
		opts.EmitDefaultValues = v.ToBoolean()
	}
	if v := obj.Get("enumAsNumber"); !isNullish(v) {
		opts.UseEnumNumbers = v.ToBoolean()
	}
	if v := obj.Get("useProtoNames"); !isNullish(v) {
		opts.UseProtoNames = v.ToBoolean()
	}
	if v := obj.Get("indent"); !isNullish(v) {
		opts.Indent = v.String()
		if opts.Indent != "" {
			opts.Multiline = true
		}
	}
	return opts
}

// mirrorDescriptor returns the mirrored descriptor of md.
func (m *Module) mirrorDescriptor(md *def.MessageDef) (protoreflect.MessageDescriptor, error) {
	d, err := m.files.FindDescriptorByName(protoreflect.FullName(md.FullName()))
	if err != nil {
		return nil, fmt.Errorf("JSON is unavailable for %s: %w", md.FullName(), err)
	}
	desc, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message", md.FullName())
	}
	return desc, nil
}

// toDynamic copies a message into a dynamicpb.Message of its mirrored
// descriptor, through the wire format.
func (m *Module) toDynamic(ref *messageRef) (*dynamicpb.Message, error) {
	desc, err := m.mirrorDescriptor(ref.def)
	if err != nil {
		return nil, err
	}
	data, err := wire.Append(nil, ref.msg, wire.Deterministic())
	if err != nil {
		return nil, err
	}
	dm := dynamicpb.NewMessage(desc)
	uOpts := proto.UnmarshalOptions{Resolver: m.TypeResolver()}
	if err := uOpts.Unmarshal(data, dm); err != nil {
		return nil, err
	}
	return dm, nil
}

// fromDynamic fills a dynamicpb.Message of the mirrored descriptor of md
// with fill, then decodes it into a new message.
func (m *Module) fromDynamic(md *def.MessageDef, fill func(*dynamicpb.Message) error) (*messageRef, error) {
	desc, err := m.mirrorDescriptor(md)
	if err != nil {
		return nil, err
	}
	dm := dynamicpb.NewMessage(desc)
	if err := fill(dm); err != nil {
		return nil, err
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(dm)
	if err != nil {
		return nil, err
	}
	msg, err := wire.DecodeNew(data, md.MiniTable(), m.NewArena(),
		wire.WithExtensionRegistry(m.pool.ExtensionRegistry()))
	if err != nil {
		return nil, err
	}
	return &messageRef{msg: msg, def: md}, nil
}
