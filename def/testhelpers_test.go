package def

import (
	"sync"
	"testing"

	"github.com/joeycumines/logiface"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// testEvent records the level and fields of one log line.
type testEvent struct {
	logiface.UnimplementedEvent
	fields map[string]any
	msg    string
	level  logiface.Level
}

func (e *testEvent) Level() logiface.Level { return e.level }

func (e *testEvent) AddField(key string, val any) { e.fields[key] = val }

func (e *testEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

type testEventFactory struct{}

func (testEventFactory) NewEvent(level logiface.Level) *testEvent {
	return &testEvent{level: level, fields: make(map[string]any)}
}

// testEventWriter collects written events.
type testEventWriter struct {
	events []*testEvent
	mu     sync.Mutex
}

func (w *testEventWriter) Write(event *testEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func (w *testEventWriter) messages(level logiface.Level) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, e := range w.events {
		if e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}

func newTestLogger(t *testing.T) (*logiface.Logger[logiface.Event], *testEventWriter) {
	t.Helper()
	w := &testEventWriter{}
	l := logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](testEventFactory{}),
		logiface.WithWriter[*testEvent](w),
		logiface.WithLevel[*testEvent](logiface.LevelTrace),
	)
	return l.Logger(), w
}

type fieldOpt func(*descriptorpb.FieldDescriptorProto)

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, opts ...fieldOpt) *descriptorpb.FieldDescriptorProto {
	fp := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
	for _, o := range opts {
		o(fp)
	}
	return fp
}

func typeName(name string) fieldOpt {
	return func(fp *descriptorpb.FieldDescriptorProto) { fp.TypeName = proto.String(name) }
}

// untyped clears the declared type, leaving it to resolution.
func untyped(fp *descriptorpb.FieldDescriptorProto) { fp.Type = nil }

func repeated(fp *descriptorpb.FieldDescriptorProto) {
	fp.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
}

func required(fp *descriptorpb.FieldDescriptorProto) {
	fp.Label = descriptorpb.FieldDescriptorProto_LABEL_REQUIRED.Enum()
}

func inOneof(i int32) fieldOpt {
	return func(fp *descriptorpb.FieldDescriptorProto) { fp.OneofIndex = proto.Int32(i) }
}

func defaultValue(s string) fieldOpt {
	return func(fp *descriptorpb.FieldDescriptorProto) { fp.DefaultValue = proto.String(s) }
}

func packed(v bool) fieldOpt {
	return func(fp *descriptorpb.FieldDescriptorProto) {
		fp.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(v)}
	}
}

func proto3Optional(fp *descriptorpb.FieldDescriptorProto) { fp.Proto3Optional = proto.Bool(true) }

func extendee(name string) fieldOpt {
	return func(fp *descriptorpb.FieldDescriptorProto) { fp.Extendee = proto.String(name) }
}

func msg(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func enum(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	ep := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		ep.Value = append(ep.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return ep
}

func mapEntry(name string, key, value *descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	m := msg(name, key, value)
	m.Options = &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)}
	return m
}

func file(name, pkg, syntax string) *descriptorpb.FileDescriptorProto {
	fd := &descriptorpb.FileDescriptorProto{Name: proto.String(name)}
	if pkg != "" {
		fd.Package = proto.String(pkg)
	}
	if syntax != "" {
		fd.Syntax = proto.String(syntax)
	}
	return fd
}

const (
	tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tInt64   = descriptorpb.FieldDescriptorProto_TYPE_INT64
	tUint32  = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tFloat   = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	tDouble  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

// proto3File is a proto3 schema exercising maps, oneofs, optional fields
// and nested types.
func proto3File() *descriptorpb.FileDescriptorProto {
	fd := file("test/p3.proto", "test.p3", "proto3")
	item := msg("Item",
		field("id", 1, tInt64),
		field("display_name", 2, tString),
		field("tags", 3, tInt32, repeated),
		field("attrs", 4, tMessage, repeated, typeName("AttrsEntry")),
		field("kind", 5, tEnum, typeName("Kind")),
		field("text", 6, tString, inOneof(0)),
		field("blob", 7, tBytes, inOneof(0)),
		field("count", 8, tUint32, proto3Optional),
		field("child", 9, tMessage, typeName(".test.p3.Item")),
		field("raw", 10, tInt32, repeated, packed(false)),
	)
	item.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String("payload")}}
	item.NestedType = []*descriptorpb.DescriptorProto{
		mapEntry("AttrsEntry", field("key", 1, tString), field("value", 2, tInt32)),
	}
	item.EnumType = []*descriptorpb.EnumDescriptorProto{enum("Kind", "KIND_UNSPECIFIED", "KIND_A", "KIND_B")}
	fd.MessageType = []*descriptorpb.DescriptorProto{item}
	return fd
}
