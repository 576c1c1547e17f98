package def

import (
	"strings"
	"sync"

	"github.com/joeycumines/goja-upb/minitable"
	"github.com/joeycumines/goja-upb/status"
	"github.com/joeycumines/logiface"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// packageSymbol marks a package name component in the symbol table.
type packageSymbol struct{}

// Pool is a set of installed files and the symbols they declare. It is safe
// for concurrent use: insertion is serialized, and readers only ever observe
// fully installed files.
type Pool struct {
	files   map[string]*FileDef
	symbols map[string]any
	extDefs map[*minitable.Extension]*FieldDef
	extReg  *minitable.ExtensionRegistry
	logger  *logiface.Logger[logiface.Event]
	order   []*FileDef
	mu      sync.RWMutex
	strict  bool
}

// NewPool returns an empty pool.
func NewPool(opts ...PoolOption) *Pool {
	cfg := resolveOptions(opts)
	return &Pool{
		files:   make(map[string]*FileDef),
		symbols: make(map[string]any),
		extDefs: make(map[*minitable.Extension]*FieldDef),
		extReg:  minitable.NewExtensionRegistry(),
		logger:  cfg.logger,
		strict:  cfg.strictEnumDefaults,
	}
}

// AddFile installs fd. Either the whole file installs, or the pool is left
// untouched and an error is returned. Adding a file identical to one
// already installed returns the existing [FileDef].
func (p *Pool) AddFile(fd *descriptorpb.FileDescriptorProto) (*FileDef, error) {
	if fd == nil {
		return nil, status.New(status.Invalid, "nil file descriptor")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.files[fd.GetName()]; ok {
		if proto.Equal(existing.input, fd) {
			return existing, nil
		}
		return nil, status.Errorf(status.Duplicate, "file %q already loaded", fd.GetName())
	}

	b := newFileBuilder(p, fd)
	if err := b.build(); err != nil {
		p.logger.Debug().
			Str("file", fd.GetName()).
			Err(err).
			Log("file rejected")
		return nil, err
	}
	if err := p.extReg.Add(b.miniExts...); err != nil {
		return nil, err
	}

	f := b.file
	for name, sym := range b.symbols {
		p.symbols[name] = sym
	}
	for _, e := range f.allExts {
		p.extDefs[e.ext] = e
	}
	p.files[f.name] = f
	p.order = append(p.order, f)

	p.logger.Debug().
		Str("file", f.name).
		Str("package", f.pkg).
		Str("syntax", f.syntax.String()).
		Int("messages", len(f.allMessages)).
		Int("enums", len(f.allEnums)).
		Int("extensions", len(f.allExts)).
		Log("file installed")
	return f, nil
}

// AddFileBytes installs a serialized FileDescriptorProto.
func (p *Pool) AddFileBytes(b []byte) (*FileDef, error) {
	fd := new(descriptorpb.FileDescriptorProto)
	if err := proto.Unmarshal(b, fd); err != nil {
		return nil, status.Wrap(status.Malformed, err, "parse file descriptor")
	}
	return p.AddFile(fd)
}

// AddFileSet installs every file of set, in dependency order. Files are
// installed one at a time, so on error the files installed before the
// failure remain.
func (p *Pool) AddFileSet(set *descriptorpb.FileDescriptorSet) ([]*FileDef, error) {
	pending := set.GetFile()
	out := make([]*FileDef, 0, len(pending))
	for len(pending) > 0 {
		var retry []*descriptorpb.FileDescriptorProto
		for _, fd := range pending {
			if !p.depsLoaded(fd) {
				retry = append(retry, fd)
				continue
			}
			f, err := p.AddFile(fd)
			if err != nil {
				return out, err
			}
			out = append(out, f)
		}
		if len(retry) == len(pending) {
			// no progress: report the first missing dependency
			_, err := p.AddFile(retry[0])
			return out, err
		}
		pending = retry
	}
	return out, nil
}

// AddFileSetBytes installs a serialized FileDescriptorSet.
func (p *Pool) AddFileSetBytes(b []byte) ([]*FileDef, error) {
	set := new(descriptorpb.FileDescriptorSet)
	if err := proto.Unmarshal(b, set); err != nil {
		return nil, status.Wrap(status.Malformed, err, "parse file descriptor set")
	}
	return p.AddFileSet(set)
}

func (p *Pool) depsLoaded(fd *descriptorpb.FileDescriptorProto) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, dep := range fd.GetDependency() {
		if _, ok := p.files[dep]; !ok {
			return false
		}
	}
	return true
}

func trimDot(name string) string { return strings.TrimPrefix(name, ".") }

// FindSymbol returns the def declared under the fully qualified name, which
// may carry a leading dot. The result is a [*MessageDef], [*EnumDef],
// [*EnumValueDef] or extension [*FieldDef].
func (p *Pool) FindSymbol(name string) any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sym := p.symbols[trimDot(name)]
	if _, ok := sym.(packageSymbol); ok {
		return nil
	}
	return sym
}

func (p *Pool) FindMessageByName(name string) *MessageDef {
	m, _ := p.FindSymbol(name).(*MessageDef)
	return m
}

func (p *Pool) FindEnumByName(name string) *EnumDef {
	e, _ := p.FindSymbol(name).(*EnumDef)
	return e
}

func (p *Pool) FindExtensionByName(name string) *FieldDef {
	f, _ := p.FindSymbol(name).(*FieldDef)
	return f
}

// FindExtensionByNumber returns the extension of extendee with the given
// number.
func (p *Pool) FindExtensionByNumber(extendee *MessageDef, number uint32) *FieldDef {
	e := p.extReg.Find(extendee.table, number)
	if e == nil {
		return nil
	}
	return p.ExtensionDef(e)
}

// ExtensionDef returns the def an extension layout was built from.
func (p *Pool) ExtensionDef(e *minitable.Extension) *FieldDef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.extDefs[e]
}

func (p *Pool) FindFileByName(name string) *FileDef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.files[name]
}

// Files returns the installed files in installation order.
func (p *Pool) Files() []*FileDef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*FileDef(nil), p.order...)
}

// ExtensionRegistry returns the registry of every installed extension, for
// the decoder.
func (p *Pool) ExtensionRegistry() *minitable.ExtensionRegistry { return p.extReg }

// lookup is called with p.mu held.
func (p *Pool) lookup(name string) any { return p.symbols[name] }
