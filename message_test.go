package gojaupb

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageWrapper_Basics(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `var AllTypes = pb.messageType('test.AllTypes'); var msg = new AllTypes()`)

	assert.Equal(t, "test.AllTypes", env.run(t, `msg.$type`).String())
	assert.Equal(t, "test.AllTypes", env.run(t, `AllTypes.typeName`).String())

	assert.False(t, env.run(t, `msg.has('int32_val')`).ToBoolean())
	env.run(t, `msg.set('int32_val', 42)`)
	assert.True(t, env.run(t, `msg.has('int32_val')`).ToBoolean())
	assert.Equal(t, int64(42), env.run(t, `msg.get('int32_val')`).ToInteger())

	// JSON names resolve too
	env.run(t, `msg.set('stringVal', 'hi')`)
	assert.Equal(t, "hi", env.run(t, `msg.get('string_val')`).String())

	env.run(t, `msg.clear('int32_val')`)
	assert.False(t, env.run(t, `msg.has('int32_val')`).ToBoolean())

	env.run(t, `msg.set('string_val', null)`)
	assert.False(t, env.run(t, `msg.has('string_val')`).ToBoolean())

	assert.Equal(t, "TypeError", env.errorName(t, `msg.get('nope')`))
	assert.Equal(t, "TypeError", env.errorName(t, `msg.set('nope', 1)`))
	assert.Equal(t, "TypeError", env.errorName(t, `msg.whichOneof('nope')`))
	assert.Equal(t, "TypeError", env.errorName(t, `pb.messageType('test.Missing')`))
	assert.Equal(t, "TypeError", env.errorName(t, `pb.messageType('test.AllTypes.TagsEntry')`))
}

func TestMessageWrapper_Presence(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `var msg = new (pb.messageType('test.AllTypes'))()`)

	// implicit presence: setting the default is indistinguishable from unset
	env.run(t, `msg.set('int32_val', 0)`)
	assert.False(t, env.run(t, `msg.has('int32_val')`).ToBoolean())

	// explicit presence: proto3 optional
	env.run(t, `msg.set('optional_string', '')`)
	assert.True(t, env.run(t, `msg.has('optional_string')`).ToBoolean())

	env.run(t, `var Req = pb.messageType('legacy.Req'); var req = new Req({id: 0})`)
	assert.True(t, env.run(t, `req.has('id')`).ToBoolean())
	assert.False(t, env.run(t, `req.has('mode')`).ToBoolean())
	// closed enums default to their first value
	assert.Equal(t, int64(1), env.run(t, `req.get('mode')`).ToInteger())
}

func TestMessageWrapper_Oneof(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `var msg = new (pb.messageType('test.AllTypes'))()`)

	assert.True(t, goja.IsUndefined(env.run(t, `msg.whichOneof('choice')`)))

	env.run(t, `msg.set('str_choice', 'a')`)
	assert.Equal(t, "str_choice", env.run(t, `msg.whichOneof('choice')`).String())

	env.run(t, `msg.set('inner_choice', {value: 1})`)
	assert.Equal(t, "inner_choice", env.run(t, `msg.whichOneof('choice')`).String())
	assert.False(t, env.run(t, `msg.has('str_choice')`).ToBoolean())
	assert.Equal(t, "", env.run(t, `msg.get('str_choice')`).String())

	env.run(t, `msg.clearOneof('choice')`)
	assert.True(t, goja.IsUndefined(env.run(t, `msg.whichOneof('choice')`)))
	assert.True(t, env.run(t, `msg.get('inner_choice') === null`).ToBoolean())

	// proto3 optional fields live in a synthetic oneof
	env.run(t, `msg.set('optional_string', 'x')`)
	assert.Equal(t, "optional_string", env.run(t, `msg.whichOneof('_optional_string')`).String())
}

func TestMessageWrapper_Identity(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `
		var AllTypes = pb.messageType('test.AllTypes');
		var msg = new AllTypes({inner: {value: 1}, repeated_int32: [1], tags: {a: 'b'}, children: [{value: 2}]});
	`)

	assert.True(t, env.run(t, `msg.get('inner') === msg.get('inner')`).ToBoolean())
	assert.True(t, env.run(t, `msg.get('repeated_int32') === msg.get('repeated_int32')`).ToBoolean())
	assert.True(t, env.run(t, `msg.get('tags') === msg.get('tags')`).ToBoolean())
	assert.True(t, env.run(t, `msg.get('children').get(0) === msg.get('children').get(0)`).ToBoolean())

	// wrappers are live views
	env.run(t, `var inner = msg.get('inner'); inner.set('value', 5)`)
	assert.Equal(t, int64(5), env.run(t, `msg.get('inner').get('value')`).ToInteger())

	// replacing a sub-message yields a different wrapper
	env.run(t, `msg.set('inner', {value: 6})`)
	assert.False(t, env.run(t, `msg.get('inner') === inner`).ToBoolean())
	assert.Equal(t, int64(5), env.run(t, `inner.get('value')`).ToInteger())

	// assigning a wrapper attaches that exact message
	env.run(t, `var other = new (pb.messageType('test.Inner'))({value: 9}); msg.set('inner', other)`)
	assert.True(t, env.run(t, `msg.get('inner') === other`).ToBoolean())

	t.Run("go", func(t *testing.T) {
		val := env.run(t, `msg`)
		msg, md, err := env.m.UnwrapMessage(val)
		require.NoError(t, err)
		assert.Equal(t, "test.AllTypes", md.FullName())
		assert.Same(t, val.(*goja.Object), env.m.WrapMessage(msg, md))

		_, _, err = env.m.UnwrapMessage(env.run(t, `({})`))
		require.Error(t, err)
		_, _, err = env.m.UnwrapMessage(goja.Undefined())
		require.Error(t, err)
	})
}

func TestMessageWrapper_Frozen(t *testing.T) {
	env := newTestEnv(t)
	md := env.m.Pool().FindMessageByName("test.AllTypes")
	msg, err := message.New(md.MiniTable(), env.m.NewArena())
	require.NoError(t, err)
	msg.Set(md.FieldByName("int32_val").MiniField(), message.Int32Val(3))
	arr := msg.MutableArray(md.FieldByName("repeated_int32").MiniField())
	require.NoError(t, arr.Append(message.Int32Val(1)))
	msg.MutableMap(md.FieldByName("tags").MiniField()).Set(message.StringVal("k"), message.StringVal("v"))
	msg.Freeze()
	require.NoError(t, env.rt.Set("frozen", env.m.WrapMessage(msg, md)))

	assert.Equal(t, int64(3), env.run(t, `frozen.get('int32_val')`).ToInteger())
	for _, code := range []string{
		`frozen.set('int32_val', 1)`,
		`frozen.clear('int32_val')`,
		`frozen.clearOneof('choice')`,
		`frozen.get('repeated_int32').add(2)`,
		`frozen.get('repeated_int32').set(0, 2)`,
		`frozen.get('repeated_int32').clear()`,
		`frozen.get('tags').set('k', 'w')`,
		`frozen.get('tags').delete('k')`,
		`pb.clear(frozen)`,
		`pb.clearField(frozen, 'int32_val')`,
	} {
		assert.Equal(t, "TypeError", env.errorName(t, code), code)
	}
	assert.Equal(t, int64(3), env.run(t, `frozen.get('int32_val')`).ToInteger())

	env.run(t, `var thawed = pb.clone(frozen); thawed.set('int32_val', 4)`)
	assert.Equal(t, int64(4), env.run(t, `thawed.get('int32_val')`).ToInteger())
}

func TestRepeatedWrapper(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `var msg = new (pb.messageType('test.AllTypes'))(); var rep = msg.get('repeated_int32')`)

	assert.Equal(t, int64(0), env.run(t, `rep.length`).ToInteger())
	assert.True(t, goja.IsUndefined(env.run(t, `rep.get(0)`)))
	assert.False(t, env.run(t, `msg.has('repeated_int32')`).ToBoolean())

	assert.Equal(t, int64(3), env.run(t, `rep.add(1, 2, 3)`).ToInteger())
	assert.True(t, env.run(t, `msg.has('repeated_int32')`).ToBoolean())
	assert.Equal(t, int64(2), env.run(t, `rep.get(1)`).ToInteger())
	assert.True(t, goja.IsUndefined(env.run(t, `rep.get(-1)`)))
	assert.True(t, goja.IsUndefined(env.run(t, `rep.get(3)`)))

	env.run(t, `rep.set(1, 20)`)
	assert.Equal(t, "1,20,3", env.run(t, `rep.toArray().join(',')`).String())
	assert.Equal(t, "GoError", env.errorName(t, `rep.set(3, 4)`))
	assert.Equal(t, "TypeError", env.errorName(t, `rep.set(0, null)`))

	// add is all or nothing
	assert.Equal(t, "GoError", env.errorName(t, `rep.add(4, 1.5)`))
	assert.Equal(t, "TypeError", env.errorName(t, `rep.add(4, undefined)`))
	assert.Equal(t, int64(3), env.run(t, `rep.length`).ToInteger())

	env.run(t, `var seen = []; rep.forEach(function(v, i, r) { seen.push(i + ':' + v + ':' + (r === rep)) })`)
	assert.Equal(t, "0:1:true,1:20:true,2:3:true", env.run(t, `seen.join(',')`).String())
	assert.Equal(t, "TypeError", env.errorName(t, `rep.forEach(1)`))

	env.run(t, `rep.resize(5)`)
	assert.Equal(t, "1,20,3,0,0", env.run(t, `rep.toArray().join(',')`).String())
	env.run(t, `rep.resize(2)`)
	assert.Equal(t, "1,20", env.run(t, `rep.toArray().join(',')`).String())

	env.run(t, `rep.clear()`)
	assert.Equal(t, int64(0), env.run(t, `rep.length`).ToInteger())
	assert.True(t, env.run(t, `Array.isArray(rep.toArray())`).ToBoolean())

	t.Run("messages", func(t *testing.T) {
		env.run(t, `var children = msg.get('children'); children.resize(2)`)
		assert.Equal(t, "test.Inner", env.run(t, `children.get(1).$type`).String())
		env.run(t, `children.get(1).set('value', 7)`)
		assert.Equal(t, int64(7), env.run(t, `msg.get('children').get(1).get('value')`).ToInteger())
		env.run(t, `children.add({value: 8}, new (pb.messageType('test.Inner'))({value: 9}))`)
		assert.Equal(t, int64(9), env.run(t, `children.get(3).get('value')`).ToInteger())
		assert.Equal(t, "TypeError", env.errorName(t, `children.add(msg)`))
	})

	t.Run("strings", func(t *testing.T) {
		env.run(t, `var strs = msg.get('repeated_string'); strs.add('a', 'b')`)
		assert.Equal(t, "a|b", env.run(t, `strs.toArray().join('|')`).String())
		assert.Equal(t, "GoError", env.errorName(t, `strs.add('\uD800')`))
		assert.Equal(t, int64(2), env.run(t, `strs.length`).ToInteger())
	})

	t.Run("enums", func(t *testing.T) {
		env.run(t, `var colors = msg.get('colors'); colors.add('GREEN', Symbol('RED'), 0)`)
		assert.Equal(t, "2,1,0", env.run(t, `colors.toArray().join(',')`).String())
	})
}

func TestMapWrapper(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `var msg = new (pb.messageType('test.AllTypes'))(); var tags = msg.get('tags')`)

	assert.Equal(t, int64(0), env.run(t, `tags.size`).ToInteger())
	assert.True(t, goja.IsUndefined(env.run(t, `tags.get('a')`)))
	assert.False(t, env.run(t, `tags.has('a')`).ToBoolean())
	assert.False(t, env.run(t, `tags.delete('a')`).ToBoolean())

	assert.True(t, env.run(t, `tags.set('b', '2').set('a', '1') === tags`).ToBoolean())
	assert.Equal(t, int64(2), env.run(t, `tags.size`).ToInteger())
	assert.Equal(t, "1", env.run(t, `tags.get('a')`).String())
	assert.True(t, env.run(t, `tags.has('b')`).ToBoolean())

	env.run(t, `var seen = []; tags.forEach(function(v, k, m) { seen.push(k + '=' + v + ':' + (m === tags)) })`)
	assert.Equal(t, "a=1:true,b=2:true", env.run(t, `seen.join(',')`).String())

	env.run(t, `var pairs = []; for (var e of tags.entries()) { pairs.push(e[0] + e[1]) } pairs.sort()`)
	assert.Equal(t, "a1,b2", env.run(t, `pairs.join(',')`).String())

	env.run(t, `tags.set('a', null)`)
	assert.False(t, env.run(t, `tags.has('a')`).ToBoolean())
	assert.True(t, env.run(t, `tags.delete('b')`).ToBoolean())
	assert.Equal(t, int64(0), env.run(t, `tags.size`).ToInteger())

	assert.Equal(t, "TypeError", env.errorName(t, `tags.set(1, 'x')`))
	assert.Equal(t, "TypeError", env.errorName(t, `tags.set('x', 1)`))

	t.Run("iterator invalidation", func(t *testing.T) {
		env.run(t, `tags.set('x', '1'); tags.set('y', '2'); var it = tags.entries(); it.next(); tags.set('z', '3')`)
		assert.Equal(t, "GoError", env.errorName(t, `it.next()`))
		env.run(t, `var it2 = tags.entries(); var n = 0; while (!it2.next().done) { n++ }`)
		assert.Equal(t, int64(3), env.run(t, `n`).ToInteger())

		// the map does not exist yet when the iterator is taken
		env.run(t, `var fresh = new (pb.messageType('test.AllTypes'))(); var fit = fresh.get('tags').entries(); fresh.get('tags').set('k', 'v')`)
		assert.Equal(t, "GoError", env.errorName(t, `fit.next()`))

		// clearing the message drops the map being walked
		env.run(t, `var cit = fresh.get('tags').entries(); pb.clear(fresh)`)
		assert.Equal(t, "GoError", env.errorName(t, `cit.next()`))

		// an empty, never created map iterates as done
		assert.True(t, env.run(t, `new (pb.messageType('test.AllTypes'))().get('tags').entries().next().done`).ToBoolean())
	})

	t.Run("integer keys", func(t *testing.T) {
		env.run(t, `var counts = msg.get('counts'); counts.set(BigInt('9223372036854775807'), {value: 1}); counts.set(-3, {value: 2}); counts.set('10', {value: 3})`)
		assert.Equal(t, int64(1), env.run(t, `counts.get('9223372036854775807').get('value')`).ToInteger())
		assert.Equal(t, int64(2), env.run(t, `counts.get(BigInt(-3)).get('value')`).ToInteger())
		assert.True(t, env.run(t, `counts.has(10)`).ToBoolean())
		assert.True(t, env.run(t, `counts.get(10) === counts.get(10)`).ToBoolean())

		env.run(t, `var keys = []; counts.forEach(function(v, k) { keys.push(String(k)) })`)
		assert.Equal(t, "-3,10,9223372036854775807", env.run(t, `keys.join(',')`).String())
		assert.Equal(t, "bigint", env.run(t, `typeof (function() { var k; counts.forEach(function(v, key) { k = key }); return k })()`).String())

		assert.Equal(t, "TypeError", env.errorName(t, `counts.get('1.5')`))
		assert.Equal(t, "GoError", env.errorName(t, `counts.get(1.5)`))
		assert.Equal(t, "GoError", env.errorName(t, `counts.get(BigInt('9223372036854775808'))`))
		assert.Equal(t, "TypeError", env.errorName(t, `counts.set(1, 'x')`))
	})

	t.Run("bool keys", func(t *testing.T) {
		env.run(t, `var flags = msg.get('flags'); flags.set(true, 1); flags.set('false', 2)`)
		assert.Equal(t, int64(2), env.run(t, `flags.get(false)`).ToInteger())
		assert.Equal(t, int64(1), env.run(t, `flags.get('true')`).ToInteger())
		env.run(t, `var bk = []; flags.forEach(function(v, k) { bk.push(typeof k + k) })`)
		assert.Equal(t, "booleanfalse,booleantrue", env.run(t, `bk.join(',')`).String())
		assert.Equal(t, "TypeError", env.errorName(t, `flags.get(1)`))
	})

	t.Run("clear", func(t *testing.T) {
		env.run(t, `tags.clear()`)
		assert.Equal(t, int64(0), env.run(t, `tags.size`).ToInteger())
		assert.True(t, env.run(t, `msg.get('tags') === tags`).ToBoolean())
	})
}

func TestEnumType(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `var Color = pb.enumType('test.Color')`)
	assert.Equal(t, int64(1), env.run(t, `Color.RED`).ToInteger())
	assert.Equal(t, "GREEN", env.run(t, `Color[2]`).String())
	assert.True(t, env.run(t, `Object.isFrozen(Color)`).ToBoolean())
	assert.Equal(t, "TypeError", env.errorName(t, `pb.enumType('test.Nope')`))

	env.run(t, `var msg = new (pb.messageType('test.AllTypes'))({color: Color.GREEN})`)
	assert.Equal(t, "GREEN", env.run(t, `Color[msg.get('color')]`).String())
}
