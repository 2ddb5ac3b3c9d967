package value_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/value"
)

func TestTruthiness(t *testing.T) {
	require.True(t, value.Nil.IsFalsy())
	require.True(t, value.Bool(false).IsFalsy())
	require.False(t, value.Bool(true).IsFalsy())
	require.False(t, value.Number(0).IsFalsy(), "0 is truthy")
	require.False(t, value.FromObj(value.NewString("")).IsFalsy(), "empty string is truthy")
}

func TestEqual(t *testing.T) {
	require.True(t, value.Equal(value.Number(3), value.Number(3)))
	require.False(t, value.Equal(value.Number(3), value.Number(4)))
	require.True(t, value.Equal(value.Nil, value.Nil))
	require.False(t, value.Equal(value.Nil, value.Bool(false)), "nil and false are distinct kinds")

	a := value.NewString("hi")
	b := value.NewString("hi")
	require.False(t, value.Equal(value.FromObj(a), value.FromObj(b)),
		"distinct allocations compare unequal without interning")
	require.True(t, value.Equal(value.FromObj(a), value.FromObj(a)))
}

func TestNumberFormatting(t *testing.T) {
	require.Equal(t, "3", value.Number(3).String())
	require.Equal(t, "3.5", value.Number(3.5).String())
	require.Equal(t, "-2", value.Number(-2).String())
}

func TestTypeName(t *testing.T) {
	require.Equal(t, "nil", value.Nil.TypeName())
	require.Equal(t, "boolean", value.Bool(true).TypeName())
	require.Equal(t, "number", value.Number(1).TypeName())
	require.Equal(t, "string", value.FromObj(value.NewString("x")).TypeName())
}
