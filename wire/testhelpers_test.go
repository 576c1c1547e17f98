package wire

import (
	"testing"

	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/def"
	"github.com/joeycumines/goja-upb/message"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	optional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	repeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	required = descriptorpb.FieldDescriptorProto_LABEL_REQUIRED
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

func entry(name string, key, value *descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name:    proto.String(name),
		Field:   []*descriptorpb.FieldDescriptorProto{key, value},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}
}

// wire3 is a proto3 schema. Fields are declared in number order, so that
// reference encoders emit them in the same order.
func wire3File() *descriptorpb.FileDescriptorProto {
	const (
		tInt32    = descriptorpb.FieldDescriptorProto_TYPE_INT32
		tSInt32   = descriptorpb.FieldDescriptorProto_TYPE_SINT32
		tSInt64   = descriptorpb.FieldDescriptorProto_TYPE_SINT64
		tUInt64   = descriptorpb.FieldDescriptorProto_TYPE_UINT64
		tInt64    = descriptorpb.FieldDescriptorProto_TYPE_INT64
		tFixed64  = descriptorpb.FieldDescriptorProto_TYPE_FIXED64
		tSFixed32 = descriptorpb.FieldDescriptorProto_TYPE_SFIXED32
		tDouble   = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
		tFloat    = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
		tBool     = descriptorpb.FieldDescriptorProto_TYPE_BOOL
		tString   = descriptorpb.FieldDescriptorProto_TYPE_STRING
		tBytes    = descriptorpb.FieldDescriptorProto_TYPE_BYTES
		tEnum     = descriptorpb.FieldDescriptorProto_TYPE_ENUM
		tMessage  = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)
	name := fd("name", 16, optional, tString, "")
	name.OneofIndex = proto.Int32(0)
	nested := fd("nested", 17, optional, tMessage, ".wt3.Scalars")
	nested.OneofIndex = proto.Int32(0)
	opt := fd("opt", 18, optional, tInt32, "")
	opt.Proto3Optional = proto.Bool(true)

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("wire3.proto"),
		Package: proto.String("wt3"),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Color"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("COLOR_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("RED"), Number: proto.Int32(1)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Scalars"),
				Field: []*descriptorpb.FieldDescriptorProto{
					fd("s32", 1, optional, tSInt32, ""),
					fd("str", 2, optional, tString, ""),
					fd("nums", 3, repeated, tInt32, ""),
					fd("d", 4, optional, tDouble, ""),
					fd("b", 5, optional, tBool, ""),
					fd("raw", 6, optional, tBytes, ""),
					fd("i32", 7, optional, tInt32, ""),
					fd("f64", 8, optional, tFixed64, ""),
					fd("s64", 9, optional, tSInt64, ""),
					fd("f", 10, optional, tFloat, ""),
					fd("u64", 11, optional, tUInt64, ""),
					fd("sf32", 12, optional, tSFixed32, ""),
					fd("counts", 13, repeated, tMessage, ".wt3.Scalars.CountsEntry"),
					fd("children", 14, repeated, tMessage, ".wt3.Scalars.ChildrenEntry"),
					fd("child", 15, optional, tMessage, ".wt3.Scalars"),
					name,
					nested,
					opt,
					fd("words", 19, repeated, tString, ""),
					fd("color", 20, optional, tEnum, ".wt3.Color"),
					fd("flags", 21, repeated, tMessage, ".wt3.Scalars.FlagsEntry"),
					fd("i64", 22, optional, tInt64, ""),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("choice")}},
				NestedType: []*descriptorpb.DescriptorProto{
					entry("CountsEntry", fd("key", 1, optional, tString, ""), fd("value", 2, optional, tInt32, "")),
					entry("ChildrenEntry", fd("key", 1, optional, tInt64, ""), fd("value", 2, optional, tMessage, ".wt3.Scalars")),
					entry("FlagsEntry", fd("key", 1, optional, tBool, ""), fd("value", 2, optional, tString, "")),
				},
			},
			{
				Name:  proto.String("One"),
				Field: []*descriptorpb.FieldDescriptorProto{fd("a", 1, optional, tInt32, "")},
			},
		},
	}
}

// wire2 is a proto2 schema with required fields, closed enums, groups and
// extensions.
func wire2File() *descriptorpb.FileDescriptorProto {
	const (
		tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
		tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
		tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
		tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
		tGroup   = descriptorpb.FieldDescriptorProto_TYPE_GROUP
	)
	modes := fd("modes", 3, repeated, tEnum, ".wt2.Mode")
	modes.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(true)}
	note := fd("note", 100, optional, tString, "")
	note.Extendee = proto.String(".wt2.Legacy")
	extNums := fd("ext_nums", 101, repeated, tInt32, "")
	extNums.Extendee = proto.String(".wt2.Legacy")
	extMsg := fd("ext_msg", 102, optional, tMessage, ".wt2.Legacy")
	extMsg.Extendee = proto.String(".wt2.Legacy")

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("wire2.proto"),
		Package: proto.String("wt2"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Mode"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("A"), Number: proto.Int32(1)},
				{Name: proto.String("B"), Number: proto.Int32(2)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{{
			Name:  proto.String("Unpacked"),
			Field: []*descriptorpb.FieldDescriptorProto{fd("vals", 3, repeated, tInt32, "")},
		}, {
			Name: proto.String("Legacy"),
			Field: []*descriptorpb.FieldDescriptorProto{
				fd("x", 1, required, tInt32, ""),
				fd("mode", 2, optional, tEnum, ".wt2.Mode"),
				modes,
				fd("plain", 4, repeated, tInt32, ""),
				fd("g", 5, optional, tGroup, ".wt2.Legacy.G"),
				fd("next", 7, optional, tMessage, ".wt2.Legacy"),
				fd("modemap", 8, repeated, tMessage, ".wt2.Legacy.ModemapEntry"),
			},
			NestedType: []*descriptorpb.DescriptorProto{
				{
					Name:  proto.String("G"),
					Field: []*descriptorpb.FieldDescriptorProto{fd("y", 6, optional, tInt32, "")},
				},
				entry("ModemapEntry", fd("key", 1, optional, tInt32, ""), fd("value", 2, optional, tEnum, ".wt2.Mode")),
			},
			ExtensionRange: []*descriptorpb.DescriptorProto_ExtensionRange{{Start: proto.Int32(100), End: proto.Int32(200)}},
		}},
		Extension: []*descriptorpb.FieldDescriptorProto{note, extNums, extMsg},
	}
}

type testSchema struct {
	pool  *def.Pool
	files *protoregistry.Files
}

func newTestSchema(t testing.TB) *testSchema {
	t.Helper()
	p := def.NewPool()
	files := new(protoregistry.Files)
	for _, fdp := range []*descriptorpb.FileDescriptorProto{wire3File(), wire2File()} {
		f, err := p.AddFile(fdp)
		require.NoError(t, err)
		// the installed descriptor is what reference implementations see
		rf, err := protodesc.NewFile(f.Proto(), files)
		require.NoError(t, err)
		require.NoError(t, files.RegisterFile(rf))
	}
	return &testSchema{pool: p, files: files}
}

func (s *testSchema) msg(t testing.TB, name string) *def.MessageDef {
	t.Helper()
	m := s.pool.FindMessageByName(name)
	require.NotNil(t, m, name)
	return m
}

func (s *testSchema) reflect(t testing.TB, name string) protoreflect.MessageDescriptor {
	t.Helper()
	d, err := s.files.FindDescriptorByName(protoreflect.FullName(name))
	require.NoError(t, err)
	return d.(protoreflect.MessageDescriptor)
}

func newMessage(t testing.TB, md *def.MessageDef) *message.Message {
	t.Helper()
	m, err := message.New(md.MiniTable(), arena.New())
	require.NoError(t, err)
	return m
}

func set(m *message.Message, md *def.MessageDef, name string, v message.MsgVal) {
	m.Set(md.FieldByName(name).MiniField(), v)
}

func appendTo(t testing.TB, m *message.Message, md *def.MessageDef, name string, vs ...message.MsgVal) {
	t.Helper()
	a := m.MutableArray(md.FieldByName(name).MiniField())
	for _, v := range vs {
		require.NoError(t, a.Append(v))
	}
}

func mustEncode(t testing.TB, m *message.Message, opts ...EncodeOption) []byte {
	t.Helper()
	b, err := Encode(m, arena.New(), opts...)
	require.NoError(t, err)
	return b
}
