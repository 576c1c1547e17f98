package gojaupb

import (
	"strconv"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/def"
)

// jsLoadDescriptorSet is the JS-facing implementation of
// pb.loadDescriptorSet(bytes). It accepts serialized FileDescriptorSet
// bytes and installs all contained files into the module's pool. Returns
// an array of fully-qualified type names that became available.
func (m *Module) jsLoadDescriptorSet(call goja.FunctionCall) goja.Value {
	data, err := m.extractBytes(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("loadDescriptorSet: %s", err))
	}

	names, err := m.loadDescriptorSetBytes(data)
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	return m.namesArray(names)
}

// jsLoadFileDescriptorProto is the JS-facing implementation of
// pb.loadFileDescriptorProto(bytes). It accepts serialized
// FileDescriptorProto bytes and installs the file.
func (m *Module) jsLoadFileDescriptorProto(call goja.FunctionCall) goja.Value {
	data, err := m.extractBytes(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("loadFileDescriptorProto: %s", err))
	}

	f, err := m.pool.AddFileBytes(data)
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}
	return m.namesArray(m.register([]*def.FileDef{f}))
}

func (m *Module) namesArray(names []string) *goja.Object {
	arr := m.runtime.NewArray()
	for i, name := range names {
		_ = arr.Set(strconv.Itoa(i), m.runtime.ToValue(name))
	}
	return arr
}

// loadDescriptorSetBytes installs a serialized FileDescriptorSet. Files
// installed before an error stay installed, and usable.
func (m *Module) loadDescriptorSetBytes(data []byte) ([]string, error) {
	files, err := m.pool.AddFileSetBytes(data)
	names := m.register(files)
	if err != nil {
		return names, err
	}
	m.logger.Debug().
		Int("files", len(files)).
		Int("types", len(names)).
		Log("descriptor set loaded")
	return names, nil
}

// register mirrors files and returns the type names of those not seen
// before by this module.
func (m *Module) register(files []*def.FileDef) []string {
	var names []string
	for _, f := range files {
		m.mirror(f)
		if m.loaded[f] {
			continue
		}
		m.loaded[f] = true
		names = appendMessageNames(names, f.Messages())
		names = appendEnumNames(names, f.Enums())
	}
	return names
}

// appendMessageNames appends the names of msgs and their nested types,
// depth first. Map entries are skipped.
func appendMessageNames(names []string, msgs []*def.MessageDef) []string {
	for _, md := range msgs {
		if md.IsMapEntry() {
			continue
		}
		names = append(names, md.FullName())
		names = appendMessageNames(names, md.NestedMessages())
		names = appendEnumNames(names, md.NestedEnums())
	}
	return names
}

func appendEnumNames(names []string, enums []*def.EnumDef) []string {
	for _, ed := range enums {
		names = append(names, ed.FullName())
	}
	return names
}
