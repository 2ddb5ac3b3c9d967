package value_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/value"
)

func TestTableSetGetDelete(t *testing.T) {
	tbl := value.NewTable()
	key := value.NewString("x")

	_, ok := tbl.Get(key)
	require.False(t, ok)

	isNew := tbl.Set(key, value.Number(1))
	require.True(t, isNew)

	v, ok := tbl.Get(key)
	require.True(t, ok)
	require.Equal(t, value.Number(1), v)

	isNew = tbl.Set(key, value.Number(2))
	require.False(t, isNew, "overwriting an existing key is not a new entry")

	require.True(t, tbl.Delete(key))
	_, ok = tbl.Get(key)
	require.False(t, ok)
}

func TestTableGrowsAndKeepsEntries(t *testing.T) {
	tbl := value.NewTable()
	keys := make([]*value.ObjString, 200)
	for i := range keys {
		keys[i] = value.NewString(fmt.Sprintf("key-%d", i))
		tbl.Set(keys[i], value.Number(float64(i)))
	}
	for i, k := range keys {
		v, ok := tbl.Get(k)
		require.True(t, ok)
		require.Equal(t, value.Number(float64(i)), v)
	}
}

func TestTableTombstonesDontBreakProbing(t *testing.T) {
	tbl := value.NewTable()
	a := value.NewString("a")
	b := value.NewString("b")
	c := value.NewString("c")
	tbl.Set(a, value.Number(1))
	tbl.Set(b, value.Number(2))
	tbl.Set(c, value.Number(3))

	tbl.Delete(b)

	v, ok := tbl.Get(a)
	require.True(t, ok)
	require.Equal(t, value.Number(1), v)
	v, ok = tbl.Get(c)
	require.True(t, ok)
	require.Equal(t, value.Number(3), v)
}

func TestFindString(t *testing.T) {
	tbl := value.NewTable()
	s := value.NewString("hello")
	tbl.Set(s, value.Nil)

	found := tbl.FindString("hello", value.HashString("hello"))
	require.Same(t, s, found)

	require.Nil(t, tbl.FindString("nope", value.HashString("nope")))
}
