package minitable

import (
	"sync"

	"github.com/joeycumines/goja-upb/status"
)

// Extension is the layout of an extension field. Its Field has no offset
// or presence: extension values are stored beside the message's unknown
// fields.
type Extension struct {
	Extendee *Message
	Sub      Sub
	Name     string
	Field    Field
}

// NewExtension builds the layout of an extension of extendee.
func NewExtension(name string, extendee *Message, spec FieldSpec) (*Extension, error) {
	if extendee == nil || extendee.Ext != Extendable {
		return nil, status.Errorf(status.Invalid, "%s: extendee is not extendable", name)
	}
	if spec.Number == 0 || spec.Number > MaxFieldNumber {
		return nil, status.Errorf(status.Invalid, "%s: field number %d out of range", name, spec.Number)
	}
	if spec.Kind == KindMap || spec.Oneof != 0 {
		return nil, status.Errorf(status.Invalid, "%s: extensions cannot be maps or oneof members", name)
	}
	return &Extension{
		Extendee: extendee,
		Name:     name,
		Field: Field{
			Number: spec.Number,
			Type:   spec.Type,
			Mode:   spec.mode() | FlagExtension,
		},
	}, nil
}

// SubMessage returns the sub-table of a message or group extension.
func (e *Extension) SubMessage() *Message { return e.Sub.Message }

type extKey struct {
	extendee *Message
	number   uint32
}

// ExtensionRegistry indexes extensions by extendee and number, for the
// decoder. It is safe for concurrent use.
type ExtensionRegistry struct {
	m  map[extKey]*Extension
	mu sync.RWMutex
}

// NewExtensionRegistry returns an empty registry.
func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{m: make(map[extKey]*Extension)}
}

// Add registers exts. Registration is all or nothing: a conflict with an
// existing extension, or within exts, fails with [status.Duplicate].
func (r *ExtensionRegistry) Add(exts ...*Extension) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[extKey]struct{}, len(exts))
	for _, e := range exts {
		k := extKey{e.Extendee, e.Field.Number}
		if _, ok := seen[k]; ok {
			return status.Errorf(status.Duplicate, "%s: extension number %d already used on %s", e.Name, k.number, e.Extendee.Name)
		}
		if prev, ok := r.m[k]; ok && prev != e {
			return status.Errorf(status.Duplicate, "%s: extension number %d already used on %s", e.Name, k.number, e.Extendee.Name)
		}
		seen[k] = struct{}{}
	}
	for _, e := range exts {
		r.m[extKey{e.Extendee, e.Field.Number}] = e
	}
	return nil
}

// Find returns the extension of extendee with the given number, or nil. A
// nil registry finds nothing.
func (r *ExtensionRegistry) Find(extendee *Message, number uint32) *Extension {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m[extKey{extendee, number}]
}

// Len returns the number of registered extensions.
func (r *ExtensionRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
