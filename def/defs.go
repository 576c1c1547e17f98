package def

import (
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/minitable"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Syntax is the syntax of a file.
type Syntax int

const (
	SyntaxProto2 Syntax = iota + 2
	SyntaxProto3
)

func (s Syntax) String() string {
	if s == SyntaxProto3 {
		return "proto3"
	}
	return "proto2"
}

// Label is the cardinality of a field.
type Label int

const (
	LabelOptional Label = 1
	LabelRequired Label = 2
	LabelRepeated Label = 3
)

// FileDef is an installed file.
type FileDef struct {
	pool        *Pool
	input       *descriptorpb.FileDescriptorProto
	proto       *descriptorpb.FileDescriptorProto
	name        string
	pkg         string
	deps        []*FileDef
	messages    []*MessageDef
	enums       []*EnumDef
	exts        []*FieldDef
	allMessages []*MessageDef
	allEnums    []*EnumDef
	allExts     []*FieldDef
	syntax      Syntax
}

func (f *FileDef) Name() string { return f.name }

func (f *FileDef) Package() string { return f.pkg }

func (f *FileDef) Syntax() Syntax { return f.syntax }

func (f *FileDef) Pool() *Pool { return f.pool }

// Dependencies returns the files f imports.
func (f *FileDef) Dependencies() []*FileDef { return f.deps }

// Messages returns the top-level messages.
func (f *FileDef) Messages() []*MessageDef { return f.messages }

// Enums returns the top-level enums.
func (f *FileDef) Enums() []*EnumDef { return f.enums }

// Extensions returns the top-level extensions.
func (f *FileDef) Extensions() []*FieldDef { return f.exts }

// Proto returns a copy of the descriptor as installed, after rewriting of
// legacy enum defaults and synthesis of proto3 optional oneofs.
func (f *FileDef) Proto() *descriptorpb.FileDescriptorProto {
	return proto.Clone(f.proto).(*descriptorpb.FileDescriptorProto)
}

// MessageDef is a message type.
type MessageDef struct {
	file      *FileDef
	parent    *MessageDef
	proto     *descriptorpb.DescriptorProto
	table     *minitable.Message
	byNumber  map[uint32]*FieldDef
	byName    map[string]*FieldDef
	byJSON    map[string]*FieldDef
	fullName  string
	name      string
	fields    []*FieldDef
	oneofs    []*OneofDef
	nested    []*MessageDef
	enums     []*EnumDef
	exts      []*FieldDef
	extRanges [][2]uint32
	mapEntry  bool
}

func (m *MessageDef) FullName() string { return m.fullName }

func (m *MessageDef) Name() string { return m.name }

func (m *MessageDef) File() *FileDef { return m.file }

// Parent returns the enclosing message, or nil.
func (m *MessageDef) Parent() *MessageDef { return m.parent }

func (m *MessageDef) Syntax() Syntax { return m.file.syntax }

// Fields returns the fields in declaration order.
func (m *MessageDef) Fields() []*FieldDef { return m.fields }

func (m *MessageDef) FieldByNumber(n uint32) *FieldDef { return m.byNumber[n] }

func (m *MessageDef) FieldByName(name string) *FieldDef { return m.byName[name] }

func (m *MessageDef) FieldByJSONName(name string) *FieldDef { return m.byJSON[name] }

// Oneofs returns every oneof, including synthetic ones.
func (m *MessageDef) Oneofs() []*OneofDef { return m.oneofs }

// RealOneofs returns the oneofs that are not synthetic.
func (m *MessageDef) RealOneofs() []*OneofDef {
	var out []*OneofDef
	for _, o := range m.oneofs {
		if !o.synthetic {
			out = append(out, o)
		}
	}
	return out
}

func (m *MessageDef) OneofByName(name string) *OneofDef {
	for _, o := range m.oneofs {
		if o.name == name {
			return o
		}
	}
	return nil
}

func (m *MessageDef) NestedMessages() []*MessageDef { return m.nested }

func (m *MessageDef) NestedEnums() []*EnumDef { return m.enums }

// Extensions returns the extensions declared inside m.
func (m *MessageDef) Extensions() []*FieldDef { return m.exts }

// ExtensionRanges returns the [start, end) ranges open to extensions.
func (m *MessageDef) ExtensionRanges() [][2]uint32 { return m.extRanges }

func (m *MessageDef) IsExtendable() bool { return len(m.extRanges) > 0 }

func (m *MessageDef) IsMapEntry() bool { return m.mapEntry }

func (m *MessageDef) MiniTable() *minitable.Message { return m.table }

func (m *MessageDef) inExtensionRange(n uint32) bool {
	for _, r := range m.extRanges {
		if n >= r[0] && n < r[1] {
			return true
		}
	}
	return false
}

// FieldDef is a field or an extension.
type FieldDef struct {
	file *FileDef
	// parent is the containing message, which is the extendee for
	// extensions
	parent *MessageDef
	// scope is the message an extension is declared in, or nil
	scope      *MessageDef
	proto      *descriptorpb.FieldDescriptorProto
	oneof      *OneofDef
	msgType    *MessageDef
	enumType   *EnumDef
	mini       *minitable.Field
	ext        *minitable.Extension
	name       string
	fullName   string
	jsonName   string
	defaultVal message.MsgVal
	index      int
	number     uint32
	label      Label
	typ        minitable.FieldType
	hasDefault bool
	packed     bool
	isExt      bool
	proto3Opt  bool
}

func (f *FieldDef) Name() string { return f.name }

func (f *FieldDef) FullName() string { return f.fullName }

func (f *FieldDef) JSONName() string { return f.jsonName }

func (f *FieldDef) Number() uint32 { return f.number }

func (f *FieldDef) Type() minitable.FieldType { return f.typ }

func (f *FieldDef) Label() Label { return f.label }

func (f *FieldDef) File() *FileDef { return f.file }

// Index returns the position of f in its message's declaration order.
func (f *FieldDef) Index() int { return f.index }

// ContainingType returns the message f belongs to, which for an extension
// is the extendee.
func (f *FieldDef) ContainingType() *MessageDef { return f.parent }

// ExtensionScope returns the message an extension is declared in, or nil
// for a top-level extension.
func (f *FieldDef) ExtensionScope() *MessageDef { return f.scope }

func (f *FieldDef) IsExtension() bool { return f.isExt }

func (f *FieldDef) IsRepeated() bool { return f.label == LabelRepeated }

func (f *FieldDef) IsRequired() bool { return f.label == LabelRequired }

func (f *FieldDef) IsMap() bool {
	return f.label == LabelRepeated && f.msgType != nil && f.msgType.mapEntry
}

func (f *FieldDef) IsPacked() bool { return f.packed }

func (f *FieldDef) IsSubMessage() bool { return f.typ.IsSubMessage() }

// IsProto3Optional reports whether f was declared with the proto3
// optional keyword.
func (f *FieldDef) IsProto3Optional() bool { return f.proto3Opt }

// HasPresence reports whether f distinguishes unset from zero.
func (f *FieldDef) HasPresence() bool {
	if f.IsRepeated() {
		return false
	}
	return f.isExt || f.typ.IsSubMessage() || f.oneof != nil || f.file.syntax == SyntaxProto2
}

// ContainingOneof returns the oneof of f, including synthetic ones.
func (f *FieldDef) ContainingOneof() *OneofDef { return f.oneof }

// RealContainingOneof returns the oneof of f, unless it is synthetic.
func (f *FieldDef) RealContainingOneof() *OneofDef {
	if f.oneof == nil || f.oneof.synthetic {
		return nil
	}
	return f.oneof
}

// MessageType returns the type of a message, group or map field.
func (f *FieldDef) MessageType() *MessageDef { return f.msgType }

func (f *FieldDef) EnumType() *EnumDef { return f.enumType }

// MapKey returns the key field of a map field's entry.
func (f *FieldDef) MapKey() *FieldDef {
	if !f.IsMap() {
		return nil
	}
	return f.msgType.byNumber[1]
}

// MapValue returns the value field of a map field's entry.
func (f *FieldDef) MapValue() *FieldDef {
	if !f.IsMap() {
		return nil
	}
	return f.msgType.byNumber[2]
}

// ValidateUTF8 reports whether string values must be valid UTF-8.
func (f *FieldDef) ValidateUTF8() bool {
	return f.typ == minitable.TypeString && f.file.syntax == SyntaxProto3
}

// HasDefault reports whether f has an explicit default.
func (f *FieldDef) HasDefault() bool { return f.hasDefault }

// Default returns the default of a singular field: the explicit default,
// or the zero of the type, or the first value of an enum. Sub-message
// defaults are the empty singleton of their type.
func (f *FieldDef) Default() message.MsgVal {
	if f.typ.IsSubMessage() && !f.IsRepeated() {
		return message.MessageVal(message.Empty(f.msgType.table))
	}
	return f.defaultVal
}

// MiniField returns the layout of a non-extension field.
func (f *FieldDef) MiniField() *minitable.Field { return f.mini }

// MiniExtension returns the layout of an extension.
func (f *FieldDef) MiniExtension() *minitable.Extension { return f.ext }

// Get returns the value of f in m, or its default when unset.
func (f *FieldDef) Get(m *message.Message) message.MsgVal {
	if f.isExt {
		if v, ok := m.GetExtension(f.ext); ok {
			return v
		}
		if f.IsRepeated() {
			return message.MsgVal{}
		}
		return f.Default()
	}
	if f.IsRepeated() || m.Has(f.mini) {
		return m.Get(f.mini)
	}
	return f.Default()
}

// OneofDef is a oneof. A synthetic oneof holds a single proto3 optional
// field.
type OneofDef struct {
	parent    *MessageDef
	name      string
	fullName  string
	fields    []*FieldDef
	index     int
	synthetic bool
}

func (o *OneofDef) Name() string { return o.name }

func (o *OneofDef) FullName() string { return o.fullName }

func (o *OneofDef) ContainingType() *MessageDef { return o.parent }

func (o *OneofDef) Fields() []*FieldDef { return o.fields }

func (o *OneofDef) IsSynthetic() bool { return o.synthetic }

func (o *OneofDef) Index() int { return o.index }

func (o *OneofDef) FieldByNumber(n uint32) *FieldDef {
	for _, f := range o.fields {
		if f.number == n {
			return f
		}
	}
	return nil
}

// EnumDef is an enum type.
type EnumDef struct {
	file     *FileDef
	parent   *MessageDef
	table    *minitable.Enum
	byName   map[string]*EnumValueDef
	byNumber map[int32]*EnumValueDef
	fullName string
	name     string
	values   []*EnumValueDef
	closed   bool
}

func (e *EnumDef) FullName() string { return e.fullName }

func (e *EnumDef) Name() string { return e.name }

func (e *EnumDef) File() *FileDef { return e.file }

// Values returns the values in declaration order.
func (e *EnumDef) Values() []*EnumValueDef { return e.values }

func (e *EnumDef) ValueByName(name string) *EnumValueDef { return e.byName[name] }

// ValueByNumber returns the first value declared with number n.
func (e *EnumDef) ValueByNumber(n int32) *EnumValueDef { return e.byNumber[n] }

// IsClosed reports whether unknown numbers are rejected into the unknown
// field area on decode.
func (e *EnumDef) IsClosed() bool { return e.closed }

// Default returns the first declared value.
func (e *EnumDef) Default() *EnumValueDef { return e.values[0] }

func (e *EnumDef) MiniTable() *minitable.Enum { return e.table }

// EnumValueDef is one enum value. Its full name is scoped as a sibling of
// the enum.
type EnumValueDef struct {
	enum     *EnumDef
	name     string
	fullName string
	number   int32
}

func (v *EnumValueDef) Name() string { return v.name }

func (v *EnumValueDef) FullName() string { return v.fullName }

func (v *EnumValueDef) Number() int32 { return v.number }

func (v *EnumValueDef) Enum() *EnumDef { return v.enum }

// Extendee returns the message an extension extends, or nil for a regular
// field.
func (f *FieldDef) Extendee() *MessageDef {
	if !f.isExt {
		return nil
	}
	return f.parent
}
