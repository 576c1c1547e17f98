package def

import (
	"strconv"
	"strings"

	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/minitable"
	"github.com/joeycumines/goja-upb/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Field numbers reserved for the protobuf implementation.
const (
	firstReservedNumber = 19000
	lastReservedNumber  = 19999
)

// fileBuilder turns one FileDescriptorProto into defs and mini-tables. It
// writes nothing to the pool: AddFile commits its symbols once every step
// has succeeded. It runs with the pool's write lock held.
type fileBuilder struct {
	pool     *Pool
	file     *FileDef
	symbols  map[string]any
	miniExts []*minitable.Extension
}

func newFileBuilder(p *Pool, fd *descriptorpb.FileDescriptorProto) *fileBuilder {
	return &fileBuilder{
		pool: p,
		file: &FileDef{
			pool:  p,
			input: proto.Clone(fd).(*descriptorpb.FileDescriptorProto),
			proto: proto.Clone(fd).(*descriptorpb.FileDescriptorProto),
			name:  fd.GetName(),
			pkg:   fd.GetPackage(),
		},
		symbols: make(map[string]any),
	}
}

// errorf formats an error through a bounded status buffer, prefixed with
// the file name.
func (b *fileBuilder) errorf(code status.Code, format string, args ...any) error {
	var st status.Status
	st.SetErrorf(code, "%s: ", b.file.name)
	st.AppendErrorf(format, args...)
	return st.Err()
}

func join(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

func (b *fileBuilder) build() error {
	f := b.file
	if f.name == "" {
		return status.New(status.Invalid, "file descriptor has no name")
	}
	switch syntax := f.proto.GetSyntax(); syntax {
	case "", "proto2":
		f.syntax = SyntaxProto2
	case "proto3":
		f.syntax = SyntaxProto3
	default:
		return b.errorf(status.Invalid, "unsupported syntax %q", syntax)
	}
	for _, dep := range f.proto.GetDependency() {
		d := b.pool.files[dep]
		if d == nil {
			return b.errorf(status.SymbolNotFound, "dependency %q is not loaded", dep)
		}
		f.deps = append(f.deps, d)
	}
	if err := b.addPackage(); err != nil {
		return err
	}

	// declare
	for _, mp := range f.proto.GetMessageType() {
		m, err := b.createMessage(nil, f.pkg, mp)
		if err != nil {
			return err
		}
		f.messages = append(f.messages, m)
	}
	for _, ep := range f.proto.GetEnumType() {
		e, err := b.createEnum(nil, f.pkg, ep)
		if err != nil {
			return err
		}
		f.enums = append(f.enums, e)
	}
	for i, xp := range f.proto.GetExtension() {
		x, err := b.createExtension(nil, f.pkg, i, xp)
		if err != nil {
			return err
		}
		f.exts = append(f.exts, x)
	}

	// resolve and validate
	for _, m := range f.allMessages {
		if err := b.resolveMessage(m); err != nil {
			return err
		}
	}
	for _, m := range f.allMessages {
		if err := b.checkMapEntries(m); err != nil {
			return err
		}
	}
	for _, x := range f.allExts {
		if err := b.resolveExtension(x); err != nil {
			return err
		}
	}

	// defaults
	for _, m := range f.allMessages {
		for _, fd := range m.fields {
			if err := b.parseDefault(fd); err != nil {
				return err
			}
		}
	}
	for _, x := range f.allExts {
		if err := b.parseDefault(x); err != nil {
			return err
		}
	}

	return b.buildTables()
}

func (b *fileBuilder) lookupAny(name string) any {
	if sym, ok := b.symbols[name]; ok {
		return sym
	}
	return b.pool.lookup(name)
}

func (b *fileBuilder) addSymbol(name string, def any) error {
	if b.lookupAny(name) != nil {
		return b.errorf(status.Duplicate, "duplicate symbol %q", name)
	}
	b.symbols[name] = def
	return nil
}

// addPackage declares each component of the package name, so that a
// message can't later claim one.
func (b *fileBuilder) addPackage() error {
	pkg := b.file.pkg
	for pkg != "" {
		switch b.lookupAny(pkg).(type) {
		case nil:
			b.symbols[pkg] = packageSymbol{}
		case packageSymbol:
		default:
			return b.errorf(status.Duplicate, "package %q collides with a symbol", pkg)
		}
		i := strings.LastIndexByte(pkg, '.')
		if i < 0 {
			break
		}
		pkg = pkg[:i]
	}
	return nil
}

// resolve finds the type a reference names. Names with a leading dot are
// fully qualified. Others are searched for from the innermost scope
// outward.
func (b *fileBuilder) resolve(scope, name string) (any, error) {
	if name == "" {
		return nil, b.errorf(status.Invalid, "empty type reference in %s", scope)
	}
	if name[0] == '.' {
		if sym := b.lookupType(name[1:]); sym != nil {
			return sym, nil
		}
		return nil, b.errorf(status.SymbolNotFound, "%q not found", name)
	}
	base := scope
	for {
		if sym := b.lookupType(join(base, name)); sym != nil {
			return sym, nil
		}
		if base == "" {
			break
		}
		if i := strings.LastIndexByte(base, '.'); i >= 0 {
			base = base[:i]
		} else {
			base = ""
		}
	}
	return nil, b.errorf(status.SymbolNotFound, "%q not found in scope %q", name, scope)
}

func (b *fileBuilder) lookupType(name string) any {
	switch sym := b.lookupAny(name).(type) {
	case *MessageDef, *EnumDef:
		return sym
	}
	return nil
}

func (b *fileBuilder) createMessage(parent *MessageDef, scope string, mp *descriptorpb.DescriptorProto) (*MessageDef, error) {
	if mp.GetName() == "" {
		return nil, b.errorf(status.Invalid, "message in %q has no name", scope)
	}
	m := &MessageDef{
		file:     b.file,
		parent:   parent,
		proto:    mp,
		fullName: join(scope, mp.GetName()),
		name:     mp.GetName(),
		byNumber: make(map[uint32]*FieldDef, len(mp.GetField())),
		byName:   make(map[string]*FieldDef, len(mp.GetField())),
		byJSON:   make(map[string]*FieldDef, len(mp.GetField())),
		mapEntry: mp.GetOptions().GetMapEntry(),
	}
	if m.mapEntry && parent == nil {
		return nil, b.errorf(status.Invalid, "map entry %s is not nested", m.fullName)
	}
	if err := b.addSymbol(m.fullName, m); err != nil {
		return nil, err
	}
	b.file.allMessages = append(b.file.allMessages, m)

	for _, r := range mp.GetExtensionRange() {
		start, end := r.GetStart(), r.GetEnd()
		if start < 1 || end <= start || end > minitable.MaxFieldNumber+1 {
			return nil, b.errorf(status.Invalid, "%s: bad extension range %d to %d", m.fullName, start, end)
		}
		m.extRanges = append(m.extRanges, [2]uint32{uint32(start), uint32(end)})
	}

	synthesizeOneofs(mp)
	for i, op := range mp.GetOneofDecl() {
		m.oneofs = append(m.oneofs, &OneofDef{
			parent:   m,
			name:     op.GetName(),
			fullName: join(m.fullName, op.GetName()),
			index:    i,
		})
	}
	for i, fp := range mp.GetField() {
		m.fields = append(m.fields, &FieldDef{
			file:      b.file,
			parent:    m,
			proto:     fp,
			name:      fp.GetName(),
			fullName:  join(m.fullName, fp.GetName()),
			index:     i,
			proto3Opt: fp.GetProto3Optional(),
		})
	}

	for _, np := range mp.GetNestedType() {
		n, err := b.createMessage(m, m.fullName, np)
		if err != nil {
			return nil, err
		}
		m.nested = append(m.nested, n)
	}
	for _, ep := range mp.GetEnumType() {
		e, err := b.createEnum(m, m.fullName, ep)
		if err != nil {
			return nil, err
		}
		m.enums = append(m.enums, e)
	}
	for i, xp := range mp.GetExtension() {
		x, err := b.createExtension(m, m.fullName, i, xp)
		if err != nil {
			return nil, err
		}
		m.exts = append(m.exts, x)
	}
	return m, nil
}

// synthesizeOneofs gives each proto3 optional field that lacks one its own
// oneof, named after the field with a leading underscore.
func synthesizeOneofs(mp *descriptorpb.DescriptorProto) {
	taken := make(map[string]bool)
	for _, fp := range mp.GetField() {
		taken[fp.GetName()] = true
	}
	for _, op := range mp.GetOneofDecl() {
		taken[op.GetName()] = true
	}
	for _, fp := range mp.GetField() {
		if !fp.GetProto3Optional() || fp.OneofIndex != nil {
			continue
		}
		name := "_" + fp.GetName()
		for taken[name] {
			name = "X" + name
		}
		taken[name] = true
		mp.OneofDecl = append(mp.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String(name)})
		fp.OneofIndex = proto.Int32(int32(len(mp.OneofDecl) - 1))
	}
}

func (b *fileBuilder) createEnum(parent *MessageDef, scope string, ep *descriptorpb.EnumDescriptorProto) (*EnumDef, error) {
	e := &EnumDef{
		file:     b.file,
		parent:   parent,
		fullName: join(scope, ep.GetName()),
		name:     ep.GetName(),
		byName:   make(map[string]*EnumValueDef, len(ep.GetValue())),
		byNumber: make(map[int32]*EnumValueDef, len(ep.GetValue())),
		closed:   b.file.syntax == SyntaxProto2,
	}
	if e.name == "" {
		return nil, b.errorf(status.Invalid, "enum in %q has no name", scope)
	}
	if len(ep.GetValue()) == 0 {
		return nil, b.errorf(status.Invalid, "enum %s has no values", e.fullName)
	}
	if b.file.syntax == SyntaxProto3 && ep.GetValue()[0].GetNumber() != 0 {
		return nil, b.errorf(status.Invalid, "first value of proto3 enum %s must be zero", e.fullName)
	}
	if err := b.addSymbol(e.fullName, e); err != nil {
		return nil, err
	}
	numbers := make([]int32, 0, len(ep.GetValue()))
	for _, vp := range ep.GetValue() {
		v := &EnumValueDef{
			enum: e,
			name: vp.GetName(),
			// values are siblings of their enum
			fullName: join(scope, vp.GetName()),
			number:   vp.GetNumber(),
		}
		if _, dup := e.byName[v.name]; dup {
			return nil, b.errorf(status.Duplicate, "duplicate value %s in enum %s", v.name, e.fullName)
		}
		if err := b.addSymbol(v.fullName, v); err != nil {
			return nil, err
		}
		e.byName[v.name] = v
		if _, ok := e.byNumber[v.number]; !ok {
			e.byNumber[v.number] = v
		}
		e.values = append(e.values, v)
		numbers = append(numbers, v.number)
	}
	e.table = minitable.NewEnum(numbers)
	b.file.allEnums = append(b.file.allEnums, e)
	return e, nil
}

func (b *fileBuilder) createExtension(scope *MessageDef, scopeName string, index int, xp *descriptorpb.FieldDescriptorProto) (*FieldDef, error) {
	x := &FieldDef{
		file:      b.file,
		scope:     scope,
		proto:     xp,
		name:      xp.GetName(),
		fullName:  join(scopeName, xp.GetName()),
		index:     index,
		isExt:     true,
		proto3Opt: xp.GetProto3Optional(),
	}
	if err := b.addSymbol(x.fullName, x); err != nil {
		return nil, err
	}
	b.file.allExts = append(b.file.allExts, x)
	return x, nil
}

func (b *fileBuilder) resolveMessage(m *MessageDef) error {
	mp := m.proto
	reservedNames := make(map[string]bool, len(mp.GetReservedName()))
	for _, n := range mp.GetReservedName() {
		reservedNames[n] = true
	}
	for _, f := range m.fields {
		if err := b.resolveField(m.fullName, f); err != nil {
			return err
		}
		if f.name == "" {
			return b.errorf(status.Invalid, "%s: field %d has no name", m.fullName, f.number)
		}
		if reservedNames[f.name] {
			return b.errorf(status.Invalid, "%s: field name %q is reserved", m.fullName, f.name)
		}
		for _, r := range mp.GetReservedRange() {
			if int32(f.number) >= r.GetStart() && int32(f.number) < r.GetEnd() {
				return b.errorf(status.Invalid, "%s: field number %d is reserved", m.fullName, f.number)
			}
		}
		if m.inExtensionRange(f.number) {
			return b.errorf(status.Invalid, "%s: field number %d is in an extension range", m.fullName, f.number)
		}
		if _, dup := m.byNumber[f.number]; dup {
			return b.errorf(status.Duplicate, "%s: duplicate field number %d", m.fullName, f.number)
		}
		if _, dup := m.byName[f.name]; dup {
			return b.errorf(status.Duplicate, "%s: duplicate field name %q", m.fullName, f.name)
		}
		if other, dup := m.byJSON[f.jsonName]; dup {
			if b.file.syntax == SyntaxProto3 {
				return b.errorf(status.Duplicate, "%s: fields %s and %s share JSON name %q", m.fullName, other.name, f.name, f.jsonName)
			}
		} else {
			m.byJSON[f.jsonName] = f
		}
		m.byNumber[f.number] = f
		m.byName[f.name] = f

		if fp := f.proto; fp.OneofIndex != nil {
			i := int(fp.GetOneofIndex())
			if i < 0 || i >= len(m.oneofs) {
				return b.errorf(status.Invalid, "%s: field %s has oneof index %d out of range", m.fullName, f.name, i)
			}
			if f.label != LabelOptional {
				return b.errorf(status.Invalid, "%s: oneof member %s must be optional", m.fullName, f.name)
			}
			f.oneof = m.oneofs[i]
			f.oneof.fields = append(f.oneof.fields, f)
		} else if f.proto3Opt {
			return b.errorf(status.Invalid, "%s: proto3 optional field %s has no oneof", m.fullName, f.name)
		}
	}
	sawSynthetic := false
	for _, o := range m.oneofs {
		if len(o.fields) == 0 {
			return b.errorf(status.Invalid, "%s: oneof %s is empty", m.fullName, o.name)
		}
		o.synthetic = len(o.fields) == 1 && o.fields[0].proto3Opt
		if !o.synthetic && sawSynthetic {
			return b.errorf(status.Invalid, "%s: oneof %s follows a synthetic oneof", m.fullName, o.name)
		}
		sawSynthetic = sawSynthetic || o.synthetic
	}
	return nil
}

// resolveField resolves the type of a field or extension and validates the
// properties that don't depend on its message. The type reference in the
// stored descriptor is rewritten to its fully qualified form.
func (b *fileBuilder) resolveField(scope string, f *FieldDef) error {
	fp := f.proto
	n := fp.GetNumber()
	if n <= 0 || n > minitable.MaxFieldNumber {
		return b.errorf(status.Invalid, "%s: field number %d out of range", f.fullName, n)
	}
	if n >= firstReservedNumber && n <= lastReservedNumber {
		return b.errorf(status.Invalid, "%s: field number %d is reserved for the implementation", f.fullName, n)
	}
	f.number = uint32(n)

	switch fp.GetLabel() {
	case descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL:
		f.label = LabelOptional
	case descriptorpb.FieldDescriptorProto_LABEL_REQUIRED:
		f.label = LabelRequired
	case descriptorpb.FieldDescriptorProto_LABEL_REPEATED:
		f.label = LabelRepeated
	default:
		return b.errorf(status.Invalid, "%s: bad label %d", f.fullName, fp.GetLabel())
	}

	if t := fp.GetType(); fp.Type != nil && (t < 1 || t > descriptorpb.FieldDescriptorProto_TYPE_SINT64) {
		return b.errorf(status.Invalid, "%s: bad field type %d", f.fullName, t)
	}
	declared := minitable.FieldType(fp.GetType())
	if fp.TypeName != nil {
		sym, err := b.resolve(scope, fp.GetTypeName())
		if err != nil {
			return err
		}
		switch d := sym.(type) {
		case *MessageDef:
			switch {
			case fp.Type == nil:
				f.typ = minitable.TypeMessage
			case declared.IsSubMessage():
				f.typ = declared
			default:
				return b.errorf(status.Invalid, "%s: %s is a message, not %s", f.fullName, d.fullName, declared)
			}
			f.msgType = d
			fp.TypeName = proto.String("." + d.fullName)
		case *EnumDef:
			if fp.Type != nil && declared != minitable.TypeEnum {
				return b.errorf(status.Invalid, "%s: %s is an enum, not %s", f.fullName, d.fullName, declared)
			}
			f.typ = minitable.TypeEnum
			f.enumType = d
			fp.TypeName = proto.String("." + d.fullName)
		}
		fp.Type = descriptorpb.FieldDescriptorProto_Type(f.typ).Enum()
	} else {
		if fp.Type == nil || !declared.Valid() {
			return b.errorf(status.Invalid, "%s: bad field type %d", f.fullName, fp.GetType())
		}
		if declared.IsSubMessage() || declared == minitable.TypeEnum {
			return b.errorf(status.Invalid, "%s: %s field has no type name", f.fullName, declared)
		}
		f.typ = declared
	}

	proto3 := b.file.syntax == SyntaxProto3
	switch {
	case proto3 && f.label == LabelRequired:
		return b.errorf(status.Invalid, "%s: required fields are not allowed in proto3", f.fullName)
	case proto3 && f.typ == minitable.TypeGroup:
		return b.errorf(status.Invalid, "%s: groups are not allowed in proto3", f.fullName)
	case proto3 && fp.DefaultValue != nil:
		return b.errorf(status.Invalid, "%s: explicit defaults are not allowed in proto3", f.fullName)
	case !proto3 && f.proto3Opt:
		return b.errorf(status.Invalid, "%s: proto3 optional in a proto2 file", f.fullName)
	case fp.DefaultValue != nil && (f.label == LabelRepeated || f.typ.IsSubMessage()):
		return b.errorf(status.Invalid, "%s: field cannot have a default", f.fullName)
	}

	if opts := fp.GetOptions(); opts != nil && opts.Packed != nil {
		if opts.GetPacked() && (f.label != LabelRepeated || !f.typ.IsPackable()) {
			return b.errorf(status.Invalid, "%s: only repeated primitive fields can be packed", f.fullName)
		}
		f.packed = opts.GetPacked()
	} else {
		f.packed = proto3 && f.label == LabelRepeated && f.typ.IsPackable()
	}

	if fp.JsonName != nil {
		f.jsonName = fp.GetJsonName()
	} else {
		f.jsonName = jsonName(f.name)
		fp.JsonName = proto.String(f.jsonName)
	}
	return nil
}

// jsonName upper-cases each letter that follows an underscore, and drops
// the underscores.
func jsonName(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	upper := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		sb.WriteByte(c)
	}
	return sb.String()
}

// checkMapEntries requires that every field typed by a map entry is a
// repeated field of the entry's parent, and that entries are well formed.
func (b *fileBuilder) checkMapEntries(m *MessageDef) error {
	if m.mapEntry {
		key, val := m.byNumber[1], m.byNumber[2]
		if len(m.fields) != 2 || key == nil || val == nil || key.name != "key" || val.name != "value" {
			return b.errorf(status.Invalid, "%s: map entry must have exactly key = 1 and value = 2", m.fullName)
		}
		if key.label != LabelOptional || val.label != LabelOptional {
			return b.errorf(status.Invalid, "%s: map entry fields must be optional", m.fullName)
		}
		if !key.typ.ValidMapKey() {
			return b.errorf(status.Invalid, "%s: %s is not a valid map key type", m.fullName, key.typ)
		}
		if val.typ == minitable.TypeGroup {
			return b.errorf(status.Invalid, "%s: map values cannot be groups", m.fullName)
		}
		if len(m.nested) != 0 || len(m.enums) != 0 || len(m.exts) != 0 || len(m.oneofs) != 0 || len(m.extRanges) != 0 {
			return b.errorf(status.Invalid, "%s: map entry cannot declare nested types", m.fullName)
		}
	}
	for _, f := range m.fields {
		if f.msgType == nil || !f.msgType.mapEntry {
			continue
		}
		if f.label != LabelRepeated || f.msgType.parent != m || f.typ != minitable.TypeMessage {
			return b.errorf(status.Invalid, "%s: map entry %s used by a field that is not its map", m.fullName, f.msgType.fullName)
		}
	}
	return nil
}

func (b *fileBuilder) resolveExtension(x *FieldDef) error {
	scope := b.file.pkg
	if x.scope != nil {
		scope = x.scope.fullName
	}
	if err := b.resolveField(scope, x); err != nil {
		return err
	}
	xp := x.proto
	if xp.Extendee == nil {
		return b.errorf(status.Invalid, "extension %s has no extendee", x.fullName)
	}
	sym, err := b.resolve(scope, xp.GetExtendee())
	if err != nil {
		return err
	}
	extendee, ok := sym.(*MessageDef)
	if !ok {
		return b.errorf(status.Invalid, "extension %s extends a non-message", x.fullName)
	}
	xp.Extendee = proto.String("." + extendee.fullName)
	x.parent = extendee
	switch {
	case !extendee.inExtensionRange(x.number):
		return b.errorf(status.Invalid, "extension %s: %s has no extension range holding %d", x.fullName, extendee.fullName, x.number)
	case xp.OneofIndex != nil:
		return b.errorf(status.Invalid, "extension %s cannot be in a oneof", x.fullName)
	case x.label == LabelRequired:
		return b.errorf(status.Invalid, "extension %s cannot be required", x.fullName)
	case x.msgType != nil && x.msgType.mapEntry:
		return b.errorf(status.Invalid, "extension %s cannot be a map", x.fullName)
	}
	return nil
}

// parseDefault computes the default of f. A numeric enum default, as
// written by old descriptor generators, is rewritten to the name of the
// matching value.
func (b *fileBuilder) parseDefault(f *FieldDef) error {
	fp := f.proto
	if f.label == LabelRepeated || f.typ.IsSubMessage() {
		return nil
	}
	if f.typ == minitable.TypeEnum {
		return b.parseEnumDefault(f)
	}
	if fp.DefaultValue == nil {
		return nil
	}
	s := fp.GetDefaultValue()
	var (
		v   message.MsgVal
		err error
	)
	switch f.typ {
	case minitable.TypeBool:
		switch s {
		case "true":
			v = message.BoolVal(true)
		case "false":
			v = message.BoolVal(false)
		default:
			err = strconv.ErrSyntax
		}
	case minitable.TypeInt32, minitable.TypeSInt32, minitable.TypeSFixed32:
		var n int64
		n, err = strconv.ParseInt(s, 0, 32)
		v = message.Int32Val(int32(n))
	case minitable.TypeInt64, minitable.TypeSInt64, minitable.TypeSFixed64:
		var n int64
		n, err = strconv.ParseInt(s, 0, 64)
		v = message.Int64Val(n)
	case minitable.TypeUInt32, minitable.TypeFixed32:
		var n uint64
		n, err = strconv.ParseUint(s, 0, 32)
		v = message.Uint32Val(uint32(n))
	case minitable.TypeUInt64, minitable.TypeFixed64:
		var n uint64
		n, err = strconv.ParseUint(s, 0, 64)
		v = message.Uint64Val(n)
	case minitable.TypeFloat:
		var n float64
		n, err = strconv.ParseFloat(s, 32)
		v = message.Float32Val(float32(n))
	case minitable.TypeDouble:
		var n float64
		n, err = strconv.ParseFloat(s, 64)
		v = message.Float64Val(n)
	case minitable.TypeString:
		v = message.StringVal(s)
	case minitable.TypeBytes:
		var raw []byte
		raw, err = unescapeBytes(s)
		v = message.BytesVal(raw)
	}
	if err != nil {
		return b.errorf(status.Invalid, "%s: bad default %q", f.fullName, s)
	}
	f.defaultVal = v
	f.hasDefault = true
	return nil
}

func (b *fileBuilder) parseEnumDefault(f *FieldDef) error {
	fp := f.proto
	e := f.enumType
	if fp.DefaultValue == nil {
		f.defaultVal = message.Int32Val(e.values[0].number)
		return nil
	}
	s := fp.GetDefaultValue()
	if v := e.byName[s]; v != nil {
		f.defaultVal = message.Int32Val(v.number)
		f.hasDefault = true
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return b.errorf(status.Invalid, "%s: default %q is not a value of %s", f.fullName, s, e.fullName)
	}
	v := e.byNumber[int32(n)]
	if v == nil {
		return b.errorf(status.Invalid, "%s: default %d is not a value of %s", f.fullName, n, e.fullName)
	}
	if b.pool.strict {
		return b.errorf(status.Invalid, "%s: numeric enum default %q", f.fullName, s)
	}
	b.pool.logger.Warning().
		Str("field", f.fullName).
		Str("default", s).
		Str("value", v.name).
		Log("rewrote numeric enum default")
	fp.DefaultValue = proto.String(v.name)
	f.defaultVal = message.Int32Val(v.number)
	f.hasDefault = true
	return nil
}

// unescapeBytes decodes the C escapes used by bytes defaults.
func unescapeBytes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(s) {
			return nil, strconv.ErrSyntax
		}
		switch c = s[i]; c {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'a':
			out = append(out, '\a')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'v':
			out = append(out, '\v')
		case '\\', '\'', '"', '?':
			out = append(out, c)
		case 'x', 'X':
			var v, n int
			for n < 2 && i+1 < len(s) && isHex(s[i+1]) {
				i++
				v = v<<4 | hexVal(s[i])
				n++
			}
			if n == 0 {
				return nil, strconv.ErrSyntax
			}
			out = append(out, byte(v))
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := int(c - '0')
			for n := 1; n < 3 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; n++ {
				i++
				v = v<<3 | int(s[i]-'0')
			}
			if v > 0xff {
				return nil, strconv.ErrRange
			}
			out = append(out, byte(v))
		default:
			return nil, strconv.ErrSyntax
		}
	}
	return out, nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) int {
	switch {
	case c >= 'a':
		return int(c-'a') + 10
	case c >= 'A':
		return int(c-'A') + 10
	}
	return int(c - '0')
}

func (b *fileBuilder) fieldSpec(f *FieldDef) minitable.FieldSpec {
	s := minitable.FieldSpec{
		Number:       f.number,
		Type:         f.typ,
		Kind:         minitable.KindScalar,
		Packed:       f.packed,
		Required:     f.label == LabelRequired,
		ClosedEnum:   f.enumType != nil && f.enumType.closed,
		ValidateUTF8: f.ValidateUTF8(),
	}
	switch {
	case f.IsMap():
		s.Kind = minitable.KindMap
	case f.label == LabelRepeated:
		s.Kind = minitable.KindArray
	}
	if f.oneof != nil {
		s.Oneof = f.oneof.index + 1
	}
	s.Presence = s.Kind == minitable.KindScalar && f.oneof == nil &&
		(b.file.syntax == SyntaxProto2 || f.typ.IsSubMessage())
	return s
}

// buildTables lays out every message of the file, then links sub-tables.
// Linking happens once all tables exist, so recursive and mutually
// recursive types need no special handling.
func (b *fileBuilder) buildTables() error {
	for _, m := range b.file.allMessages {
		specs := make([]minitable.FieldSpec, 0, len(m.fields))
		for _, f := range m.fields {
			specs = append(specs, b.fieldSpec(f))
		}
		t, err := minitable.Build(minitable.Options{
			Name:       m.fullName,
			Extendable: len(m.extRanges) > 0,
			MapEntry:   m.mapEntry,
		}, specs)
		if err != nil {
			return err
		}
		m.table = t
		for _, f := range m.fields {
			f.mini = t.FindFieldByNumber(f.number)
		}
	}
	for _, m := range b.file.allMessages {
		for _, f := range m.fields {
			var err error
			switch {
			case f.msgType != nil:
				err = m.table.LinkMessage(f.mini, f.msgType.table)
			case f.mini.IsClosedEnum():
				err = m.table.LinkEnum(f.mini, f.enumType.table)
			}
			if err != nil {
				return err
			}
		}
	}
	for _, x := range b.file.allExts {
		ext, err := minitable.NewExtension(x.fullName, x.parent.table, b.fieldSpec(x))
		if err != nil {
			return err
		}
		if x.msgType != nil {
			ext.Sub.Message = x.msgType.table
		} else if x.enumType != nil && x.enumType.closed {
			ext.Sub.Enum = x.enumType.table
		}
		x.ext = ext
		b.miniExts = append(b.miniExts, ext)
	}
	return nil
}
