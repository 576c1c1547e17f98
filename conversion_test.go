package gojaupb

import (
	"math"
	"math/big"
	"testing"

	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/message"
	"github.com/joeycumines/goja-upb/status"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHost_UTF8(t *testing.T) {
	env := newTestEnv(t)
	md := env.m.Pool().FindMessageByName("test.AllTypes")
	str, raw := md.FieldByName("string_val"), md.FieldByName("bytes_val")
	a := arena.New()

	invalid := env.run(t, `new Uint8Array([0xFF, 0xFE])`)

	_, err := env.m.FromHost(invalid, str, a)
	require.ErrorIs(t, err, status.ErrEncodingError)

	v, err := env.m.FromHost(invalid, raw, a)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFE}, v.StringView())

	for _, tc := range []struct {
		name string
		expr string
		want string
		code status.Code
	}{
		{name: "ascii", expr: `'hello'`, want: "hello"},
		{name: "bmp", expr: `'héllo'`, want: "héllo"},
		{name: "surrogate pair", expr: `'😀'`, want: "\U0001F600"},
		{name: "replacement character", expr: `'a�b'`, want: "a�b"},
		{name: "valid utf-8 bytes", expr: `new Uint8Array([0x68, 0x69])`, want: "hi"},
		{name: "empty", expr: `''`, want: ""},
		{name: "lone high surrogate", expr: `'a\uD800'`, code: status.EncodingError},
		{name: "lone low surrogate", expr: `'\uDC00b'`, code: status.EncodingError},
		{name: "reversed pair", expr: `'\uDE00\uD83D'`, code: status.EncodingError},
		{name: "number", expr: `42`, code: status.TypeError},
		{name: "array buffer", expr: `new Uint8Array([0xC3, 0x28]).buffer`, code: status.EncodingError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v, err := env.m.FromHost(env.run(t, tc.expr), str, a)
			if tc.code != status.OK {
				require.Error(t, err)
				assert.Equal(t, tc.code, status.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.String())
		})
	}

	t.Run("bytes rejects strings", func(t *testing.T) {
		_, err := env.m.FromHost(env.run(t, `'abc'`), raw, a)
		require.ErrorIs(t, err, status.ErrTypeError)
	})

	t.Run("js", func(t *testing.T) {
		env.run(t, `var s8 = new (pb.messageType('test.AllTypes'))()`)
		assert.Equal(t, "GoError", env.errorName(t, `s8.set('string_val', new Uint8Array([0xFF, 0xFE]))`))
		env.run(t, `s8.set('bytes_val', new Uint8Array([0xFF, 0xFE]))`)
		assert.Equal(t, int64(2), env.run(t, `s8.get('bytes_val').length`).ToInteger())
		assert.False(t, env.run(t, `s8.has('string_val')`).ToBoolean())
	})
}

func TestFromHost_Numbers(t *testing.T) {
	env := newTestEnv(t)
	md := env.m.Pool().FindMessageByName("test.AllTypes")
	a := arena.New()

	for _, tc := range []struct {
		field string
		expr  string
		check func(t *testing.T, v message.MsgVal)
		code  status.Code
	}{
		{field: "int32_val", expr: `2147483647`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int32(math.MaxInt32), v.Int32()) }},
		{field: "int32_val", expr: `-2147483648`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int32(math.MinInt32), v.Int32()) }},
		{field: "int32_val", expr: `BigInt(7)`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int32(7), v.Int32()) }},
		{field: "int32_val", expr: `-0`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int32(0), v.Int32()) }},
		{field: "int32_val", expr: `3.0`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int32(3), v.Int32()) }},
		{field: "int32_val", expr: `2147483648`, code: status.RangeError},
		{field: "int32_val", expr: `-2147483649`, code: status.RangeError},
		{field: "int32_val", expr: `1.5`, code: status.RangeError},
		{field: "int32_val", expr: `NaN`, code: status.RangeError},
		{field: "int32_val", expr: `Infinity`, code: status.RangeError},
		{field: "int32_val", expr: `'1'`, code: status.TypeError},
		{field: "int32_val", expr: `true`, code: status.TypeError},
		{field: "int32_val", expr: `null`, code: status.TypeError},
		{field: "sint32_val", expr: `-5`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int32(-5), v.Int32()) }},
		{field: "sfixed32_val", expr: `BigInt(-2147483649)`, code: status.RangeError},
		{field: "uint32_val", expr: `4294967295`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, uint32(math.MaxUint32), v.Uint32()) }},
		{field: "uint32_val", expr: `-1`, code: status.RangeError},
		{field: "fixed32_val", expr: `4294967296`, code: status.RangeError},
		{field: "int64_val", expr: `BigInt('9223372036854775807')`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int64(math.MaxInt64), v.Int64()) }},
		{field: "int64_val", expr: `BigInt('-9223372036854775808')`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int64(math.MinInt64), v.Int64()) }},
		{field: "int64_val", expr: `BigInt('9223372036854775808')`, code: status.RangeError},
		{field: "sint64_val", expr: `9007199254740991`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int64(1<<53-1), v.Int64()) }},
		{field: "sfixed64_val", expr: `2 ** 63`, code: status.RangeError},
		{field: "uint64_val", expr: `BigInt('18446744073709551615')`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, uint64(math.MaxUint64), v.Uint64()) }},
		{field: "uint64_val", expr: `BigInt('18446744073709551616')`, code: status.RangeError},
		{field: "fixed64_val", expr: `-1`, code: status.RangeError},
		{field: "fixed64_val", expr: `2 ** 60`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, uint64(1<<60), v.Uint64()) }},
		{field: "float_val", expr: `1.5`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, float32(1.5), v.Float32()) }},
		{field: "float_val", expr: `'1.5'`, code: status.TypeError},
		{field: "double_val", expr: `BigInt(3)`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, 3.0, v.Float64()) }},
		{field: "double_val", expr: `NaN`, check: func(t *testing.T, v message.MsgVal) { assert.True(t, math.IsNaN(v.Float64())) }},
		{field: "double_val", expr: `-0`, check: func(t *testing.T, v message.MsgVal) { assert.True(t, math.Signbit(v.Float64())) }},
		{field: "bool_val", expr: `true`, check: func(t *testing.T, v message.MsgVal) { assert.True(t, v.Bool()) }},
		{field: "bool_val", expr: `false`, check: func(t *testing.T, v message.MsgVal) { assert.False(t, v.Bool()) }},
		{field: "bool_val", expr: `1`, code: status.TypeError},
		{field: "bool_val", expr: `'true'`, code: status.TypeError},
		{field: "bool_val", expr: `new Boolean(true)`, code: status.TypeError},
		{field: "color", expr: `'RED'`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int32(1), v.Int32()) }},
		{field: "color", expr: `Symbol('GREEN')`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int32(2), v.Int32()) }},
		{field: "color", expr: `7`, check: func(t *testing.T, v message.MsgVal) { assert.Equal(t, int32(7), v.Int32()) }},
		{field: "color", expr: `'BLUE'`, code: status.RangeError},
		{field: "color", expr: `Symbol('BLUE')`, code: status.RangeError},
		{field: "color", expr: `2147483648`, code: status.RangeError},
		{field: "color", expr: `({})`, code: status.TypeError},
	} {
		t.Run(tc.field+"="+tc.expr, func(t *testing.T) {
			v, err := env.m.FromHost(env.run(t, tc.expr), md.FieldByName(tc.field), a)
			if tc.code != status.OK {
				require.Error(t, err)
				assert.Equal(t, tc.code, status.CodeOf(err), err.Error())
				assert.Contains(t, err.Error(), "test.AllTypes."+tc.field)
				return
			}
			require.NoError(t, err)
			tc.check(t, v)
		})
	}
}

func TestFromHost_Message(t *testing.T) {
	l, w := newTestLogger(t)
	env := newTestEnv(t, WithLogger(l))
	inner := env.m.Pool().FindMessageByName("test.Inner")
	field := env.m.Pool().FindMessageByName("test.AllTypes").FieldByName("inner")

	t.Run("wrong type", func(t *testing.T) {
		_, err := env.m.FromHost(env.run(t, `new (pb.messageType('test.AllTypes'))()`), field, arena.New())
		require.ErrorIs(t, err, status.ErrTypeError)
		_, err = env.m.FromHost(env.run(t, `({value: 1})`), field, arena.New())
		require.ErrorIs(t, err, status.ErrTypeError)
	})

	t.Run("fuse", func(t *testing.T) {
		val := env.run(t, `new (pb.messageType('test.Inner'))({value: 4})`)
		src, _, err := env.m.UnwrapMessage(val)
		require.NoError(t, err)
		a := arena.New()
		v, err := env.m.FromHost(val, field, a)
		require.NoError(t, err)
		assert.Same(t, src, v.Message())
		assert.True(t, a.IsFused(src.Arena()))
	})

	t.Run("copy from fixed arena", func(t *testing.T) {
		fixed := arena.New(arena.WithAllocator(nil), arena.WithInitialBlock(make([]byte, 4096)))
		msg, err := message.New(inner.MiniTable(), fixed)
		require.NoError(t, err)
		msg.Set(inner.FieldByName("value").MiniField(), message.Int32Val(5))
		require.NoError(t, env.rt.Set("fixed", env.m.WrapMessage(msg, inner)))

		env.run(t, `var holder = new (pb.messageType('test.AllTypes'))(); holder.set('inner', fixed)`)
		assert.False(t, env.run(t, `holder.get('inner') === fixed`).ToBoolean())
		assert.Equal(t, int64(5), env.run(t, `holder.get('inner').get('value')`).ToInteger())
		assert.Contains(t, w.messages(logiface.LevelNotice), "arenas cannot be fused, copying message")

		env.run(t, `fixed.set('value', 6)`)
		assert.Equal(t, int64(5), env.run(t, `holder.get('inner').get('value')`).ToInteger())
	})
}

func TestToHost(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `var AllTypes = pb.messageType('test.AllTypes'); var msg = new AllTypes()`)

	t.Run("int64 beyond safe range", func(t *testing.T) {
		env.run(t, `msg.set('int64_val', BigInt('9007199254740993'))`)
		v := env.run(t, `msg.get('int64_val')`)
		bi, ok := v.Export().(*big.Int)
		require.True(t, ok, "expected *big.Int, got %T", v.Export())
		assert.Equal(t, "9007199254740993", bi.String())

		env.run(t, `msg.set('int64_val', BigInt('-9007199254740993'))`)
		assert.Equal(t, "bigint", env.run(t, `typeof msg.get('int64_val')`).String())
	})

	t.Run("int64 in safe range", func(t *testing.T) {
		env.run(t, `msg.set('int64_val', BigInt(42))`)
		assert.Equal(t, "number", env.run(t, `typeof msg.get('int64_val')`).String())
		env.run(t, `msg.set('sfixed64_val', -9007199254740991)`)
		assert.Equal(t, int64(-9007199254740991), env.run(t, `msg.get('sfixed64_val')`).ToInteger())
	})

	t.Run("uint64 max", func(t *testing.T) {
		env.run(t, `msg.set('uint64_val', BigInt('18446744073709551615'))`)
		assert.Equal(t, "18446744073709551615", env.run(t, `msg.get('uint64_val').toString()`).String())
	})

	t.Run("uint32 above int32", func(t *testing.T) {
		env.run(t, `msg.set('fixed32_val', 4294967295)`)
		assert.Equal(t, int64(math.MaxUint32), env.run(t, `msg.get('fixed32_val')`).ToInteger())
	})

	t.Run("float", func(t *testing.T) {
		env.run(t, `msg.set('float_val', 0.1)`)
		assert.Equal(t, float64(float32(0.1)), env.run(t, `msg.get('float_val')`).ToFloat())
	})

	t.Run("bytes are copies", func(t *testing.T) {
		env.run(t, `msg.set('bytes_val', new Uint8Array([1, 2, 3])); var b = msg.get('bytes_val'); b[0] = 9`)
		assert.Equal(t, int64(1), env.run(t, `msg.get('bytes_val')[0]`).ToInteger())
		assert.False(t, env.run(t, `msg.get('bytes_val') === msg.get('bytes_val')`).ToBoolean())
	})

	t.Run("input bytes are copied", func(t *testing.T) {
		env.run(t, `var input = new Uint8Array([1, 2, 3]); msg.set('bytes_val', input); input[0] = 7`)
		assert.Equal(t, int64(1), env.run(t, `msg.get('bytes_val')[0]`).ToInteger())
	})

	t.Run("enum", func(t *testing.T) {
		env.run(t, `msg.set('color', 'GREEN')`)
		assert.Equal(t, int64(2), env.run(t, `msg.get('color')`).ToInteger())
	})

	t.Run("defaults", func(t *testing.T) {
		env.run(t, `var fresh = new AllTypes()`)
		assert.Equal(t, int64(0), env.run(t, `fresh.get('int32_val')`).ToInteger())
		assert.Equal(t, "", env.run(t, `fresh.get('string_val')`).String())
		assert.Equal(t, int64(0), env.run(t, `fresh.get('bytes_val').length`).ToInteger())
		assert.False(t, env.run(t, `fresh.get('bool_val')`).ToBoolean())
		assert.True(t, env.run(t, `fresh.get('inner') === null`).ToBoolean())
	})
}

func TestAssign_Initializer(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `
		var AllTypes = pb.messageType('test.AllTypes');
		var Inner = pb.messageType('test.Inner');
		var msg = new AllTypes({
			int32_val: 1,
			stringVal: 'json name',
			inner: {value: 2},
			repeated_int32: [1, 2, 3],
			children: [{value: 4}, new Inner({value: 5})],
			tags: {a: 'x', b: 'y'},
			counts: new Map([[BigInt(-7), {value: 6}], [9, new Inner({value: 7})]]),
			flags: {'true': 1, 'false': 0},
			colors: ['RED', 2, Symbol('RED')],
			str_choice: undefined,
			inner_choice: {value: 8},
		});
	`)
	assert.Equal(t, int64(1), env.run(t, `msg.get('int32_val')`).ToInteger())
	assert.Equal(t, "json name", env.run(t, `msg.get('string_val')`).String())
	assert.Equal(t, int64(2), env.run(t, `msg.get('inner').get('value')`).ToInteger())
	assert.Equal(t, "1,2,3", env.run(t, `msg.get('repeated_int32').toArray().join(',')`).String())
	assert.Equal(t, int64(5), env.run(t, `msg.get('children').get(1).get('value')`).ToInteger())
	assert.Equal(t, "y", env.run(t, `msg.get('tags').get('b')`).String())
	assert.Equal(t, int64(6), env.run(t, `msg.get('counts').get(-7).get('value')`).ToInteger())
	assert.Equal(t, int64(7), env.run(t, `msg.get('counts').get('9').get('value')`).ToInteger())
	assert.Equal(t, int64(1), env.run(t, `msg.get('flags').get(true)`).ToInteger())
	assert.Equal(t, int64(2), env.run(t, `msg.get('flags').size`).ToInteger())
	assert.Equal(t, "1,2,1", env.run(t, `msg.get('colors').toArray().join(',')`).String())
	assert.Equal(t, "inner_choice", env.run(t, `msg.whichOneof('choice')`).String())

	t.Run("copy constructor", func(t *testing.T) {
		env.run(t, `var copy = new AllTypes(msg)`)
		assert.True(t, env.run(t, `pb.equals(copy, msg)`).ToBoolean())
		env.run(t, `copy.get('inner').set('value', 99)`)
		assert.Equal(t, int64(2), env.run(t, `msg.get('inner').get('value')`).ToInteger())
	})

	t.Run("errors", func(t *testing.T) {
		assert.Equal(t, "TypeError", env.errorName(t, `new AllTypes(5)`))
		assert.Equal(t, "TypeError", env.errorName(t, `new AllTypes({repeated_int32: 5})`))
		assert.Equal(t, "TypeError", env.errorName(t, `new AllTypes({repeated_int32: [1, null]})`))
		assert.Equal(t, "TypeError", env.errorName(t, `new AllTypes({counts: {x: {value: 1}}})`))
		assert.Equal(t, "TypeError", env.errorName(t, `new AllTypes({flags: {yes: 1}})`))
		assert.Equal(t, "TypeError", env.errorName(t, `new AllTypes(new Inner())`))
		assert.Equal(t, "GoError", env.errorName(t, `new AllTypes({int32_val: 1.5})`))
	})

	t.Run("failed assignment leaves the field unchanged", func(t *testing.T) {
		env.run(t, `try { msg.set('repeated_int32', [4, 'x']) } catch (e) {}`)
		assert.Equal(t, "1,2,3", env.run(t, `msg.get('repeated_int32').toArray().join(',')`).String())
		env.run(t, `try { msg.set('tags', {c: 1}) } catch (e) {}`)
		assert.Equal(t, int64(2), env.run(t, `msg.get('tags').size`).ToInteger())
	})

	t.Run("assign from wrappers", func(t *testing.T) {
		env.run(t, `var other = new AllTypes(); other.set('repeated_int32', msg.get('repeated_int32')); other.set('tags', msg.get('tags'))`)
		assert.Equal(t, "1,2,3", env.run(t, `other.get('repeated_int32').toArray().join(',')`).String())
		assert.Equal(t, "x", env.run(t, `other.get('tags').get('a')`).String())
		env.run(t, `msg.set('repeated_int32', msg.get('repeated_int32'))`)
		assert.Equal(t, "1,2,3", env.run(t, `msg.get('repeated_int32').toArray().join(',')`).String())
	})
}
