package gojaupb

import (
	"errors"
	"math"
	"math/big"
	"reflect"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
	"unsafe"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/def"
	upbutf8 "github.com/joeycumines/goja-upb/internal/utf8"
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/minitable"
	"github.com/joeycumines/goja-upb/status"
	"golang.org/x/exp/constraints"
)

// maxSafeInteger is Number.MAX_SAFE_INTEGER. Integers beyond it read back
// as BigInt.
const maxSafeInteger = 1<<53 - 1

// FromHost converts val to the representation of a singular value of f,
// or of one element when f is repeated. For a map field, convert keys and
// values against [def.FieldDef.MapKey] and [def.FieldDef.MapValue].
// Strings and bytes are copied onto a, and a message on another arena is
// fused with a, or copied onto it when the arenas cannot be fused.
//
// The returned error is a [*status.Error] with code TypeError, RangeError,
// EncodingError or OutOfMemory.
func (m *Module) FromHost(val goja.Value, f *def.FieldDef, a *arena.Arena) (message.MsgVal, error) {
	switch f.Type() {
	case minitable.TypeInt32, minitable.TypeSInt32, minitable.TypeSFixed32:
		n, err := toInteger[int32](val)
		return message.Int32Val(n), fieldError(f, err)
	case minitable.TypeInt64, minitable.TypeSInt64, minitable.TypeSFixed64:
		n, err := toInteger[int64](val)
		return message.Int64Val(n), fieldError(f, err)
	case minitable.TypeUInt32, minitable.TypeFixed32:
		n, err := toInteger[uint32](val)
		return message.Uint32Val(n), fieldError(f, err)
	case minitable.TypeUInt64, minitable.TypeFixed64:
		n, err := toInteger[uint64](val)
		return message.Uint64Val(n), fieldError(f, err)
	case minitable.TypeFloat:
		x, err := toFloat(val)
		return message.Float32Val(float32(x)), fieldError(f, err)
	case minitable.TypeDouble:
		x, err := toFloat(val)
		return message.Float64Val(x), fieldError(f, err)
	case minitable.TypeBool:
		b, err := toBool(val)
		return message.BoolVal(b), fieldError(f, err)
	case minitable.TypeEnum:
		n, err := toEnum(val, f.EnumType())
		return message.Int32Val(n), fieldError(f, err)
	case minitable.TypeString:
		b, err := toUTF8(val)
		if err != nil {
			return message.MsgVal{}, fieldError(f, err)
		}
		return message.CopyBytes(a, b)
	case minitable.TypeBytes:
		b, ok := exportBytes(val)
		if !ok {
			return message.MsgVal{}, fieldError(f, status.Errorf(status.TypeError, "expected Uint8Array or ArrayBuffer, got %s", typeOf(val)))
		}
		return message.CopyBytes(a, b)
	case minitable.TypeMessage, minitable.TypeGroup:
		sub, err := m.messageFromHost(val, f.MessageType(), a)
		if err != nil {
			return message.MsgVal{}, fieldError(f, err)
		}
		return message.MessageVal(sub), nil
	default:
		return message.MsgVal{}, status.Errorf(status.Invalid, "field %s: unsupported type %s", f.FullName(), f.Type())
	}
}

// ToHost converts a singular value, or one element, of f to a JavaScript
// value. Sub-messages are wrapped, and share the wrapper cache of
// [Module.WrapMessage].
func (m *Module) ToHost(v message.MsgVal, f *def.FieldDef) goja.Value {
	switch f.Type() {
	case minitable.TypeInt32, minitable.TypeSInt32, minitable.TypeSFixed32, minitable.TypeEnum:
		return m.runtime.ToValue(v.Int32())
	case minitable.TypeUInt32, minitable.TypeFixed32:
		return m.runtime.ToValue(v.Uint32())
	case minitable.TypeInt64, minitable.TypeSInt64, minitable.TypeSFixed64:
		return m.int64ToGoja(v.Int64())
	case minitable.TypeUInt64, minitable.TypeFixed64:
		return m.uint64ToGoja(v.Uint64())
	case minitable.TypeFloat:
		return m.runtime.ToValue(float64(v.Float32()))
	case minitable.TypeDouble:
		return m.runtime.ToValue(v.Float64())
	case minitable.TypeBool:
		return m.runtime.ToValue(v.Bool())
	case minitable.TypeString:
		return m.runtime.ToValue(v.String())
	case minitable.TypeBytes:
		return m.newUint8Array(append([]byte(nil), v.StringView()...))
	case minitable.TypeMessage, minitable.TypeGroup:
		if v.Message() == nil {
			return goja.Null()
		}
		return m.wrapMessage(v.Message(), f.MessageType())
	default:
		return goja.Undefined()
	}
}

// fieldError prefixes the message of err with the name of f, keeping its
// code.
func fieldError(f *def.FieldDef, err error) error {
	if err == nil {
		return nil
	}
	var e *status.Error
	if !errors.As(err, &e) {
		return status.Wrap(status.CodeOf(err), err, "field "+f.FullName())
	}
	return &status.Error{Code: e.Code, Message: "field " + f.FullName() + ": " + e.Message, Cause: e.Cause}
}

// int64ToGoja converts an int64 to a number, or to a BigInt when it is
// beyond the safe integer range.
func (m *Module) int64ToGoja(v int64) goja.Value {
	if v > maxSafeInteger || v < -maxSafeInteger {
		return m.runtime.ToValue(big.NewInt(v))
	}
	return m.runtime.ToValue(v)
}

func (m *Module) uint64ToGoja(v uint64) goja.Value {
	if v > maxSafeInteger {
		return m.runtime.ToValue(new(big.Int).SetUint64(v))
	}
	return m.runtime.ToValue(int64(v))
}

// integerBounds returns the inclusive range of T.
func integerBounds[T constraints.Integer]() (lo, hi *big.Int) {
	var zero T
	bits := uint(unsafe.Sizeof(zero)) * 8
	one := big.NewInt(1)
	if ^zero < 0 {
		hi = new(big.Int).Lsh(one, bits-1)
		lo = new(big.Int).Neg(hi)
		hi.Sub(hi, one)
		return lo, hi
	}
	hi = new(big.Int).Lsh(one, bits)
	hi.Sub(hi, one)
	return new(big.Int), hi
}

// toInteger converts a number or BigInt to T.
func toInteger[T constraints.Integer](val goja.Value) (T, error) {
	var n *big.Int
	switch {
	case goja.IsBigInt(val):
		n, _ = val.Export().(*big.Int)
		if n == nil {
			return 0, status.New(status.TypeError, "invalid BigInt")
		}
	case goja.IsNumber(val):
		if i, ok := val.Export().(int64); ok {
			n = big.NewInt(i)
			break
		}
		x := val.ToFloat()
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, status.Errorf(status.RangeError, "%v is not an integer", x)
		}
		n, _ = big.NewFloat(x).Int(nil)
	default:
		return 0, status.Errorf(status.TypeError, "expected number or BigInt, got %s", typeOf(val))
	}
	lo, hi := integerBounds[T]()
	if n.Cmp(lo) < 0 || n.Cmp(hi) > 0 {
		return 0, status.Errorf(status.RangeError, "%s is out of range [%s, %s]", n, lo, hi)
	}
	if n.Sign() < 0 {
		return T(n.Int64()), nil
	}
	return T(n.Uint64()), nil
}

func toFloat(val goja.Value) (float64, error) {
	switch {
	case goja.IsNumber(val):
		return val.ToFloat(), nil
	case goja.IsBigInt(val):
		n, _ := val.Export().(*big.Int)
		if n == nil {
			return 0, status.New(status.TypeError, "invalid BigInt")
		}
		x, _ := new(big.Float).SetInt(n).Float64()
		return x, nil
	default:
		return 0, status.Errorf(status.TypeError, "expected number or BigInt, got %s", typeOf(val))
	}
}

func toBool(val goja.Value) (bool, error) {
	if _, ok := val.(*goja.Object); !ok && val != nil {
		if b, ok := val.Export().(bool); ok {
			return b, nil
		}
	}
	return false, status.Errorf(status.TypeError, "expected boolean, got %s", typeOf(val))
}

// toEnum accepts a number, a value name, or a Symbol described by a value
// name.
func toEnum(val goja.Value, ed *def.EnumDef) (int32, error) {
	var name string
	switch {
	case isSymbol(val):
		name = val.(*goja.Symbol).String()
	case goja.IsString(val):
		name = val.String()
	default:
		return toInteger[int32](val)
	}
	ev := ed.ValueByName(name)
	if ev == nil {
		return 0, status.Errorf(status.RangeError, "%q is not a value of %s", name, ed.FullName())
	}
	return ev.Number(), nil
}

func isSymbol(val goja.Value) bool {
	_, ok := val.(*goja.Symbol)
	return ok
}

// toUTF8 converts a JavaScript string, or 8-bit host bytes, to UTF-8.
func toUTF8(val goja.Value) ([]byte, error) {
	if s, ok := val.(goja.String); ok {
		return utf16ToUTF8(s)
	}
	if b, ok := exportBytes(val); ok {
		if !upbutf8.Valid(b) {
			return nil, status.New(status.EncodingError, "bytes are not valid UTF-8")
		}
		return b, nil
	}
	return nil, status.Errorf(status.TypeError, "expected string, got %s", typeOf(val))
}

// utf16ToUTF8 transcodes s. The fast path relies on goja rendering lone
// surrogates as U+FFFD, so only strings containing it are walked.
func utf16ToUTF8(s goja.String) ([]byte, error) {
	str := s.String()
	if !strings.ContainsRune(str, utf8.RuneError) {
		return []byte(str), nil
	}
	n := s.Length()
	out := make([]byte, 0, len(str))
	for i := 0; i < n; i++ {
		c := rune(s.CharAt(i))
		if !utf16.IsSurrogate(c) {
			out = utf8.AppendRune(out, c)
			continue
		}
		if c >= 0xDC00 || i+1 >= n {
			return nil, status.Errorf(status.EncodingError, "lone surrogate at index %d", i)
		}
		r := utf16.DecodeRune(c, rune(s.CharAt(i+1)))
		if r == utf8.RuneError {
			return nil, status.Errorf(status.EncodingError, "lone surrogate at index %d", i)
		}
		out = utf8.AppendRune(out, r)
		i++
	}
	return out, nil
}

var (
	bytesType       = reflect.TypeOf([]byte(nil))
	arrayBufferType = reflect.TypeOf(goja.ArrayBuffer{})
)

// exportBytes returns the contents of a Uint8Array or ArrayBuffer.
func exportBytes(val goja.Value) ([]byte, bool) {
	obj, ok := val.(*goja.Object)
	if !ok {
		return nil, false
	}
	if t := obj.ExportType(); t != bytesType && t != arrayBufferType {
		return nil, false
	}
	switch x := obj.Export().(type) {
	case []byte:
		return x, true
	case goja.ArrayBuffer:
		return x.Bytes(), true
	}
	return nil, false
}

// messageFromHost resolves a wrapper of type md, making it reachable from
// a.
func (m *Module) messageFromHost(val goja.Value, md *def.MessageDef, a *arena.Arena) (*message.Message, error) {
	ref, err := m.unwrapMessage(val)
	if err != nil {
		return nil, status.Wrap(status.TypeError, err, "expected "+md.FullName())
	}
	if ref.def != md {
		return nil, status.Errorf(status.TypeError, "expected %s, got %s", md.FullName(), ref.def.FullName())
	}
	src := ref.msg
	if src.Arena() == a || a.Fuse(src.Arena()) {
		return src, nil
	}
	m.logger.Notice().
		Str("type", md.FullName()).
		Log("arenas cannot be fused, copying message")
	return src.DeepCopy(a)
}

// typeOf describes val the way the typeof operator would.
func typeOf(val goja.Value) string {
	switch {
	case val == nil || goja.IsUndefined(val):
		return "undefined"
	case goja.IsNull(val):
		return "null"
	case goja.IsString(val):
		return "string"
	case goja.IsNumber(val):
		return "number"
	case goja.IsBigInt(val):
		return "bigint"
	case isSymbol(val):
		return "symbol"
	}
	if _, ok := val.(*goja.Object); ok {
		if _, ok := goja.AssertFunction(val); ok {
			return "function"
		}
		return "object"
	}
	if _, ok := val.Export().(bool); ok {
		return "boolean"
	}
	return "unknown"
}
