package gojaupb

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/def"
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/wire"
	"github.com/joeycumines/logiface"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Module provides Protocol Buffers support for a [goja.Runtime]. Each
// Module instance is bound to a single runtime. Message types resolve from
// its [def.Pool], and every message lives on an [arena.Arena].
//
// The module keeps a [protoregistry.Files] mirror of the pool, which backs
// the JSON conversions.
type Module struct {
	runtime    *goja.Runtime
	pool       *def.Pool
	files      *protoregistry.Files
	logger     *logiface.Logger[logiface.Event]
	allocator  arena.Allocator
	decodeOpts []wire.DecodeOption
	encodeOpts []wire.EncodeOption
	cache      *objectCache
	loaded     map[*def.FileDef]bool
}

// wellKnownFiles are installed into every module's pool.
var wellKnownFiles = []protoreflect.FileDescriptor{
	timestamppb.File_google_protobuf_timestamp_proto,
	durationpb.File_google_protobuf_duration_proto,
	anypb.File_google_protobuf_any_proto,
}

// New binds a [Module] to runtime, installing the well-known types into
// its pool. A nil runtime panics. Invalid options, or a pool already
// holding a different copy of a well-known file, return an error.
func New(runtime *goja.Runtime, opts ...Option) (*Module, error) {
	if runtime == nil {
		panic("gojaupb: runtime must not be nil")
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("gojaupb: %w", err)
	}

	pool := cfg.pool
	if pool == nil {
		pool = def.NewPool(def.WithLogger(cfg.logger))
	}

	m := &Module{
		runtime:    runtime,
		pool:       pool,
		files:      new(protoregistry.Files),
		logger:     cfg.logger,
		allocator:  cfg.allocator,
		decodeOpts: cfg.decodeOpts,
		encodeOpts: cfg.encodeOpts,
		cache:      newObjectCache(),
		loaded:     make(map[*def.FileDef]bool),
	}

	for _, fd := range wellKnownFiles {
		if _, err := pool.AddFile(protodesc.ToFileDescriptorProto(fd)); err != nil {
			return nil, fmt.Errorf("gojaupb: install %s: %w", fd.Path(), err)
		}
	}
	for _, f := range pool.Files() {
		m.loaded[f] = true
		m.mirror(f)
	}
	return m, nil
}

// Runtime returns the [goja.Runtime] this module is bound to.
func (m *Module) Runtime() *goja.Runtime {
	return m.runtime
}

// Pool returns the descriptor pool message types are resolved from.
func (m *Module) Pool() *def.Pool {
	return m.pool
}

// NewArena returns an arena configured the way the module allocates its
// own messages.
func (m *Module) NewArena() *arena.Arena {
	if m.allocator == nil {
		return arena.New()
	}
	return arena.New(arena.WithAllocator(m.allocator))
}

// WrapMessage wraps msg, of type md, as a JavaScript object. The returned
// object has the same shape as objects created by messageType
// constructors. Wrapping the same message twice returns the same object
// while the first one is reachable.
func (m *Module) WrapMessage(msg *message.Message, md *def.MessageDef) *goja.Object {
	return m.wrapMessage(msg, md)
}

// UnwrapMessage extracts the message from a JavaScript value created by
// [Module.WrapMessage] or a messageType constructor.
func (m *Module) UnwrapMessage(val goja.Value) (*message.Message, *def.MessageDef, error) {
	ref, err := m.unwrapMessage(val)
	if err != nil {
		return nil, nil, err
	}
	return ref.msg, ref.def, nil
}

// SetupExports installs the JS API on exports, as [Require] does, for
// hosts that do not use goja_nodejs.
func (m *Module) SetupExports(exports *goja.Object) {
	m.setupExports(exports)
}

// LoadDescriptorSetBytes parses a serialized
// [google.golang.org/protobuf/types/descriptorpb.FileDescriptorSet]
// and installs all contained files into the module's pool. Returns the
// list of fully-qualified type names of the files it installed.
func (m *Module) LoadDescriptorSetBytes(data []byte) ([]string, error) {
	return m.loadDescriptorSetBytes(data)
}

// FileResolver returns the mirror of the pool as a [protodesc.Resolver]
// style registry, for integrating with code built on
// google.golang.org/protobuf.
func (m *Module) FileResolver() interface {
	FindFileByPath(string) (protoreflect.FileDescriptor, error)
	FindDescriptorByName(protoreflect.FullName) (protoreflect.Descriptor, error)
} {
	return m.files
}

// TypeResolver returns a resolver over the mirror of the pool. It
// satisfies the Resolver interface required by [protojson.MarshalOptions]
// and [protojson.UnmarshalOptions].
func (m *Module) TypeResolver() *dynamicpb.Types {
	return dynamicpb.NewTypes(m.files)
}

// mirror registers f, and its dependencies, with the file mirror. A file
// the mirror rejects is logged and left out, which only affects JSON.
func (m *Module) mirror(f *def.FileDef) bool {
	if _, err := m.files.FindFileByPath(f.Name()); err == nil {
		return false
	}
	for _, dep := range f.Dependencies() {
		m.mirror(dep)
	}
	fd, err := protodesc.NewFile(f.Proto(), m.files)
	if err == nil {
		err = m.files.RegisterFile(fd)
	}
	if err != nil {
		m.logger.Warning().
			Str("file", f.Name()).
			Err(err).
			Log("file not mirrored, JSON is unavailable for its types")
		return false
	}
	return true
}

// setupExports wires the module's JS API onto the given exports object.
func (m *Module) setupExports(exports *goja.Object) {
	_ = exports.Set("loadDescriptorSet", m.jsLoadDescriptorSet)
	_ = exports.Set("loadFileDescriptorProto", m.jsLoadFileDescriptorProto)
	_ = exports.Set("messageType", m.jsMessageType)
	_ = exports.Set("enumType", m.jsEnumType)
	_ = exports.Set("encode", m.jsEncode)
	_ = exports.Set("decode", m.jsDecode)
	_ = exports.Set("toJSON", m.jsToJSON)
	_ = exports.Set("fromJSON", m.jsFromJSON)
	_ = exports.Set("equals", m.jsEquals)
	_ = exports.Set("hash", m.jsHash)
	_ = exports.Set("clone", m.jsClone)
	_ = exports.Set("isMessage", m.jsIsMessage)
	_ = exports.Set("isFieldSet", m.jsIsFieldSet)
	_ = exports.Set("clearField", m.jsClearField)
	_ = exports.Set("clear", m.jsClear)
	_ = exports.Set("unknownFields", m.jsUnknownFields)
	_ = exports.Set("freeze", m.jsFreeze)
	_ = exports.Set("isFrozen", m.jsIsFrozen)
	_ = exports.Set("toObject", m.jsToObject)
	_ = exports.Set("timestampNow", m.jsTimestampNow)
	_ = exports.Set("timestampFromDate", m.jsTimestampFromDate)
	_ = exports.Set("timestampDate", m.jsTimestampDate)
	_ = exports.Set("timestampFromMs", m.jsTimestampFromMs)
	_ = exports.Set("timestampMs", m.jsTimestampMs)
	_ = exports.Set("durationFromMs", m.jsDurationFromMs)
	_ = exports.Set("durationMs", m.jsDurationMs)
	_ = exports.Set("anyPack", m.jsAnyPack)
	_ = exports.Set("anyUnpack", m.jsAnyUnpack)
	_ = exports.Set("anyIs", m.jsAnyIs)
}
