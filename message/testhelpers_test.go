package message

import (
	"testing"

	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/minitable"
	"github.com/stretchr/testify/require"
)

// testTables is a small schema:
//
//	message Inner { optional int32 v = 1; }
//	message Outer {
//	  int32 implicit = 1;                 // proto3, no presence
//	  optional int32 explicit = 2;
//	  required string name = 3;
//	  optional Inner inner = 4;
//	  repeated int32 nums = 5 [packed = true];
//	  repeated string tags = 6;
//	  map<string, Inner> kids = 7;
//	  oneof choice { int64 a = 8; string b = 9; Inner c = 10; }
//	  double d = 11;
//	  extensions 100 to 200;
//	}
type testTables struct {
	inner, outer, entry *minitable.Message
}

func newTestTables(t testing.TB) *testTables {
	t.Helper()
	inner, err := minitable.Build(minitable.Options{Name: "test.Inner"}, []minitable.FieldSpec{
		{Number: 1, Type: minitable.TypeInt32, Presence: true},
	})
	require.NoError(t, err)
	entry, err := minitable.Build(minitable.Options{Name: "test.Outer.KidsEntry", MapEntry: true}, []minitable.FieldSpec{
		{Number: 1, Type: minitable.TypeString},
		{Number: 2, Type: minitable.TypeMessage},
	})
	require.NoError(t, err)
	require.NoError(t, entry.LinkMessage(entry.FindFieldByNumber(2), inner))
	outer, err := minitable.Build(minitable.Options{Name: "test.Outer", Extendable: true}, []minitable.FieldSpec{
		{Number: 1, Type: minitable.TypeInt32},
		{Number: 2, Type: minitable.TypeInt32, Presence: true},
		{Number: 3, Type: minitable.TypeString, Required: true},
		{Number: 4, Type: minitable.TypeMessage, Presence: true},
		{Number: 5, Type: minitable.TypeInt32, Kind: minitable.KindArray, Packed: true},
		{Number: 6, Type: minitable.TypeString, Kind: minitable.KindArray},
		{Number: 7, Type: minitable.TypeMessage, Kind: minitable.KindMap},
		{Number: 8, Type: minitable.TypeInt64, Oneof: 1},
		{Number: 9, Type: minitable.TypeString, Oneof: 1},
		{Number: 10, Type: minitable.TypeMessage, Oneof: 1},
		{Number: 11, Type: minitable.TypeDouble},
	})
	require.NoError(t, err)
	require.NoError(t, outer.LinkMessage(outer.FindFieldByNumber(4), inner))
	require.NoError(t, outer.LinkMessage(outer.FindFieldByNumber(7), entry))
	require.NoError(t, outer.LinkMessage(outer.FindFieldByNumber(10), inner))
	return &testTables{inner: inner, outer: outer, entry: entry}
}

func (x *testTables) field(n uint32) *minitable.Field {
	return x.outer.FindFieldByNumber(n)
}

func mustNew(t testing.TB, table *minitable.Message, a *arena.Arena) *Message {
	t.Helper()
	m, err := New(table, a)
	require.NoError(t, err)
	return m
}

// populate fills most fields of an Outer.
func (x *testTables) populate(t testing.TB, m *Message) {
	t.Helper()
	m.Set(x.field(1), Int32Val(7))
	m.Set(x.field(2), Int32Val(0))
	m.Set(x.field(3), StringVal("outer"))
	inner, err := m.MutableMessage(x.field(4))
	require.NoError(t, err)
	inner.Set(x.inner.FindFieldByNumber(1), Int32Val(42))
	nums := m.MutableArray(x.field(5))
	for _, v := range []int32{1, 300, 65536} {
		require.NoError(t, nums.Append(Int32Val(v)))
	}
	tags := m.MutableArray(x.field(6))
	require.NoError(t, tags.Append(StringVal("a")))
	require.NoError(t, tags.Append(StringVal("bb")))
	kids := m.MutableMap(x.field(7))
	for i, k := range []string{"x", "y"} {
		kid := mustNew(t, x.inner, m.Arena())
		kid.Set(x.inner.FindFieldByNumber(1), Int32Val(int32(i)))
		kids.Set(StringVal(k), MessageVal(kid))
	}
	m.Set(x.field(9), StringVal("choice"))
	m.Set(x.field(11), Float64Val(1.5))
	require.NoError(t, m.AppendUnknown([]byte{0xa0, 0x06, 0x01})) // field 100 varint 1
}
