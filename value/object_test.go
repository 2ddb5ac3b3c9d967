package value_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/value"
)

func TestHashStringIsStable(t *testing.T) {
	require.Equal(t, value.HashString("abc"), value.HashString("abc"))
	require.NotEqual(t, value.HashString("abc"), value.HashString("abd"))
}

func TestObjHeaderIsPerInstance(t *testing.T) {
	a := value.NewString("a")
	b := value.NewString("b")
	a.ObjHeader().Marked = true
	require.True(t, a.ObjHeader().Marked)
	require.False(t, b.ObjHeader().Marked)
}

func TestFunctionStringsScriptVsNamed(t *testing.T) {
	fn := &value.ObjFunction{}
	require.Equal(t, "<script>", fn.String())

	fn.Name = value.NewString("add")
	require.Equal(t, "<fn add>", fn.String())
}

func TestClassAndInstanceString(t *testing.T) {
	class := value.NewClass(value.NewString("Point"))
	require.Equal(t, "Point", class.String())

	inst := value.NewInstance(class)
	require.Equal(t, "<Point instance>", inst.String())
}
