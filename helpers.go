package gojaupb

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/def"
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/status"
)

// throw raises err as a JS exception. Type errors become TypeError, and
// everything else a GoError carrying err as its value property.
func (m *Module) throw(err error) {
	if status.CodeOf(err) == status.TypeError {
		panic(m.runtime.NewTypeError("%s", err.Error()))
	}
	panic(m.runtime.NewGoError(err))
}

func isNullish(val goja.Value) bool {
	return val == nil || goja.IsUndefined(val) || goja.IsNull(val)
}

// extractBytes extracts a []byte from a JS value that represents binary
// data. It accepts Uint8Array or ArrayBuffer.
func (m *Module) extractBytes(val goja.Value) ([]byte, error) {
	if isNullish(val) {
		return nil, errors.New("expected Uint8Array or ArrayBuffer, got null/undefined")
	}
	b, ok := exportBytes(val)
	if !ok {
		return nil, fmt.Errorf("expected Uint8Array or ArrayBuffer, got %s", typeOf(val))
	}
	return b, nil
}

// newUint8Array creates a JavaScript Uint8Array over data.
func (m *Module) newUint8Array(data []byte) goja.Value {
	ab := m.runtime.NewArrayBuffer(data)
	ctor := m.runtime.Get("Uint8Array")
	if ctor == nil || goja.IsUndefined(ctor) {
		return m.runtime.ToValue(ab)
	}
	result, err := m.runtime.New(ctor, m.runtime.ToValue(ab))
	if err != nil {
		return m.runtime.ToValue(ab)
	}
	return result
}

// messageDefHolder stores a [def.MessageDef] on a constructor, as
// _pbMsgDesc.
type messageDefHolder struct {
	def *def.MessageDef
}

// extractMessageDef extracts the message type from a constructor created
// by [Module.jsMessageType].
func (m *Module) extractMessageDef(val goja.Value) (*def.MessageDef, error) {
	if isNullish(val) {
		return nil, errors.New("expected message type constructor, got null/undefined")
	}
	obj, ok := val.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("expected message type constructor, got %s", typeOf(val))
	}
	holderVal := obj.Get("_pbMsgDesc")
	if holderVal == nil || goja.IsUndefined(holderVal) {
		return nil, errors.New("not a protobuf message type constructor")
	}
	holder, ok := holderVal.Export().(*messageDefHolder)
	if !ok || holder == nil {
		return nil, errors.New("not a protobuf message type constructor")
	}
	return holder.def, nil
}

// messageDefOf accepts a constructor or a fully-qualified type name.
func (m *Module) messageDefOf(val goja.Value) (*def.MessageDef, error) {
	if goja.IsString(val) {
		md := m.pool.FindMessageByName(val.String())
		if md == nil {
			return nil, fmt.Errorf("message type %q not found", val.String())
		}
		return md, nil
	}
	return m.extractMessageDef(val)
}

// newMessage allocates a message of type md on a new arena.
func (m *Module) newMessage(md *def.MessageDef) (*messageRef, error) {
	msg, err := message.New(md.MiniTable(), m.NewArena())
	if err != nil {
		return nil, err
	}
	return &messageRef{msg: msg, def: md}, nil
}
