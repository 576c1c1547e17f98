package gojaupb

import (
	"sync"
	"testing"

	"github.com/dop251/goja"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

type testEnv struct {
	rt *goja.Runtime
	m  *Module
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	rt := goja.New()
	m, err := New(rt, opts...)
	require.NoError(t, err)
	_, err = m.loadDescriptorSetBytes(testDescriptorSetBytes())
	require.NoError(t, err)
	pb := rt.NewObject()
	m.setupExports(pb)
	require.NoError(t, rt.Set("pb", pb))
	return &testEnv{rt: rt, m: m}
}

func (e *testEnv) run(t *testing.T, code string) goja.Value {
	t.Helper()
	v, err := e.rt.RunString(code)
	require.NoError(t, err)
	return v
}

func (e *testEnv) mustFail(t *testing.T, code string) error {
	t.Helper()
	_, err := e.rt.RunString(code)
	require.Error(t, err)
	return err
}

// errorName runs code, which must throw, and returns the constructor name
// of the thrown value.
func (e *testEnv) errorName(t *testing.T, code string) string {
	t.Helper()
	return e.run(t, `(function() { try { `+code+` } catch (e) { return e.name } return 'none' })()`).String()
}

const (
	optional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	repeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	required = descriptorpb.FieldDescriptorProto_LABEL_REQUIRED

	tInt32    = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tInt64    = descriptorpb.FieldDescriptorProto_TYPE_INT64
	tUInt32   = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tUInt64   = descriptorpb.FieldDescriptorProto_TYPE_UINT64
	tSInt32   = descriptorpb.FieldDescriptorProto_TYPE_SINT32
	tSInt64   = descriptorpb.FieldDescriptorProto_TYPE_SINT64
	tFixed32  = descriptorpb.FieldDescriptorProto_TYPE_FIXED32
	tFixed64  = descriptorpb.FieldDescriptorProto_TYPE_FIXED64
	tSFixed32 = descriptorpb.FieldDescriptorProto_TYPE_SFIXED32
	tSFixed64 = descriptorpb.FieldDescriptorProto_TYPE_SFIXED64
	tFloat    = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	tDouble   = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	tBool     = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tString   = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes    = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tEnum     = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	tMessage  = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

func fd(name string, number int32, label descriptorpb.FieldDescriptorProto_Label, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  label.Enum(),
		Type:   typ.Enum(),
	}
	if typeName != "" {
		f.TypeName = proto.String(typeName)
	}
	return f
}

func inOneof(f *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(index)
	return f
}

func mapEntry(name string, key, value *descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name:    proto.String(name),
		Field:   []*descriptorpb.FieldDescriptorProto{key, value},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}
}

func testDescriptorSetBytes() []byte {
	data, err := proto.Marshal(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{testFileDescriptorProto(), legacyFileDescriptorProto()},
	})
	if err != nil {
		panic("testDescriptorSetBytes: " + err.Error())
	}
	return data
}

// testFileDescriptorProto is a proto3 file covering every field type.
func testFileDescriptorProto() *descriptorpb.FileDescriptorProto {
	optionalString := fd("optional_string", 21, optional, tString, "")
	optionalString.Proto3Optional = proto.Bool(true)
	optionalString.OneofIndex = proto.Int32(1)

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("test.proto"),
		Package:    proto.String("test"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/timestamp.proto"},
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Color"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("COLOR_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("RED"), Number: proto.Int32(1)},
				{Name: proto.String("GREEN"), Number: proto.Int32(2)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name:  proto.String("Inner"),
				Field: []*descriptorpb.FieldDescriptorProto{fd("value", 1, optional, tInt32, "")},
			},
			{
				Name: proto.String("AllTypes"),
				Field: []*descriptorpb.FieldDescriptorProto{
					fd("int32_val", 1, optional, tInt32, ""),
					fd("int64_val", 2, optional, tInt64, ""),
					fd("uint32_val", 3, optional, tUInt32, ""),
					fd("uint64_val", 4, optional, tUInt64, ""),
					fd("float_val", 5, optional, tFloat, ""),
					fd("double_val", 6, optional, tDouble, ""),
					fd("bool_val", 7, optional, tBool, ""),
					fd("string_val", 8, optional, tString, ""),
					fd("bytes_val", 9, optional, tBytes, ""),
					fd("color", 10, optional, tEnum, ".test.Color"),
					fd("inner", 11, optional, tMessage, ".test.Inner"),
					fd("repeated_int32", 12, repeated, tInt32, ""),
					fd("repeated_string", 13, repeated, tString, ""),
					fd("tags", 14, repeated, tMessage, ".test.AllTypes.TagsEntry"),
					fd("sint32_val", 15, optional, tSInt32, ""),
					fd("sint64_val", 16, optional, tSInt64, ""),
					fd("fixed32_val", 17, optional, tFixed32, ""),
					fd("fixed64_val", 18, optional, tFixed64, ""),
					fd("sfixed32_val", 19, optional, tSFixed32, ""),
					fd("sfixed64_val", 20, optional, tSFixed64, ""),
					optionalString,
					fd("children", 22, repeated, tMessage, ".test.Inner"),
					fd("counts", 23, repeated, tMessage, ".test.AllTypes.CountsEntry"),
					fd("flags", 24, repeated, tMessage, ".test.AllTypes.FlagsEntry"),
					inOneof(fd("str_choice", 25, optional, tString, ""), 0),
					inOneof(fd("inner_choice", 26, optional, tMessage, ".test.Inner"), 0),
					fd("ts", 27, optional, tMessage, ".google.protobuf.Timestamp"),
					fd("colors", 28, repeated, tEnum, ".test.Color"),
				},
				NestedType: []*descriptorpb.DescriptorProto{
					mapEntry("TagsEntry", fd("key", 1, optional, tString, ""), fd("value", 2, optional, tString, "")),
					mapEntry("CountsEntry", fd("key", 1, optional, tInt64, ""), fd("value", 2, optional, tMessage, ".test.Inner")),
					mapEntry("FlagsEntry", fd("key", 1, optional, tBool, ""), fd("value", 2, optional, tInt32, "")),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{
					{Name: proto.String("choice")},
					{Name: proto.String("_optional_string")},
				},
			},
		},
	}
}

// legacyFileDescriptorProto is a proto2 file with a required field, a
// closed enum and an extension.
func legacyFileDescriptorProto() *descriptorpb.FileDescriptorProto {
	note := fd("note", 100, optional, tString, "")
	note.Extendee = proto.String(".legacy.Req")

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("legacy.proto"),
		Package: proto.String("legacy"),
		Syntax:  proto.String("proto2"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Mode"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("A"), Number: proto.Int32(1)},
				{Name: proto.String("B"), Number: proto.Int32(2)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Req"),
			Field: []*descriptorpb.FieldDescriptorProto{
				fd("id", 1, required, tInt32, ""),
				fd("mode", 2, optional, tEnum, ".legacy.Mode"),
				fd("next", 3, optional, tMessage, ".legacy.Req"),
			},
			ExtensionRange: []*descriptorpb.DescriptorProto_ExtensionRange{
				{Start: proto.Int32(100), End: proto.Int32(201)},
			},
		}},
		Extension: []*descriptorpb.FieldDescriptorProto{note},
	}
}

// testEvent records the level and message of one log line.
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
