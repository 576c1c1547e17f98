// Package gojaupb provides Protocol Buffers support for the [goja]
// JavaScript runtime, over an arena-allocated, table-driven message store.
//
// Message types are loaded at runtime from serialized descriptors into a
// [def.Pool], which derives a compact layout ([minitable.Message]) for each
// type. Messages are stored by the [message] package on an [arena.Arena],
// and the [wire] package encodes and decodes them against those layouts.
// This package is the conversion layer between those values and JavaScript.
//
// # Overview
//
// The module is exposed through the [goja_nodejs/require] module system:
//
//	const pb = require('protobuf');
//
// # JavaScript API
//
// Descriptor loading:
//   - pb.loadDescriptorSet(bytes): loads a serialized FileDescriptorSet
//   - pb.loadFileDescriptorProto(bytes): loads a single FileDescriptorProto
//
// Message types:
//   - pb.messageType(fullName): a constructor; new T(init?) accepts a plain
//     object of field values, or a message of the same type
//   - pb.enumType(fullName): a frozen name/number lookup object
//
// Serialization:
//   - pb.encode(msg, {deterministic, skipUnknown, checkRequired}?)
//   - pb.decode(msgType, bytes, {checkRequired, maxNesting, aliasString,
//     discardUnknown}?)
//   - pb.toJSON(msg, {emitDefaults, enumAsNumber, useProtoNames, indent}?)
//   - pb.fromJSON(msgType, objOrString, {discardUnknown}?)
//
// Message utilities:
//   - pb.equals(msg1, msg2), pb.hash(msg, seed?), pb.clone(msg)
//   - pb.isMessage(value[, typeName]), pb.isFieldSet(msg, fieldName)
//   - pb.clearField(msg, fieldName), pb.clear(msg), pb.unknownFields(msg)
//   - pb.freeze(msg), pb.isFrozen(msg): a frozen message, and everything
//     reachable from it, rejects writes with a TypeError
//   - pb.toObject(msg): a plain object snapshot of the present fields
//
// Well-known type helpers:
//   - pb.timestampNow(), pb.timestampFromDate(date), pb.timestampDate(ts)
//   - pb.timestampFromMs(ms), pb.timestampMs(ts)
//   - pb.durationFromMs(ms), pb.durationMs(dur)
//   - pb.anyPack(msgType, msg), pb.anyUnpack(any, msgType),
//     pb.anyIs(any, typeNameOrMsgType)
//
// # Message Wrapper
//
// Message objects have get, set, has, clear, whichOneof and clearOneof
// methods, and a $type property. Repeated fields read as array-like
// objects (length, get, set, add, clear, resize, forEach, toArray), and
// map fields as Map-like objects (size, get, set, has, delete, clear,
// forEach, entries). Reading the same sub-message, repeated field or map
// field twice returns the same object.
//
// # Type Mapping
//
//   - int32, sint32, sfixed32, uint32, fixed32, enum → number
//   - int64, sint64, sfixed64, uint64, fixed64 → number, or BigInt beyond
//     2^53
//   - float, double → number
//   - bool → boolean
//   - string → string
//   - bytes → Uint8Array (a copy)
//
// Assignments are checked: integers must be integral and in range, strings
// must be valid UTF-16 (or, given as bytes, valid UTF-8), and messages must
// be of the field's type. A message from another arena is attached by
// fusing arenas, or copied when one of them has a fixed size.
//
// # Usage
//
//	registry := require.NewRegistry()
//	registry.RegisterNativeModule("protobuf", gojaupb.Require())
//
//	rt := goja.New()
//	registry.Enable(rt)
//
//	_, err := rt.RunString(`
//	    const pb = require('protobuf');
//	    pb.loadDescriptorSet(descriptorBytes);
//	    const MyMsg = pb.messageType('my.package.MyMessage');
//	    const msg = new MyMsg({name: 'hello'});
//	    const encoded = pb.encode(msg);
//	`)
//
// [goja]: github.com/dop251/goja
// [goja_nodejs/require]: github.com/dop251/goja_nodejs/require
package gojaupb
