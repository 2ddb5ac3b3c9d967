package vm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/token"
	"dyms/value"
)

func TestCompileProgramEmitsExpectedOpcodes(t *testing.T) {
	g := newGC(io.Discard, false, false)
	fn, cerrs := compileProgram(`1 + 2;`, g)
	require.Empty(t, cerrs)

	require.Contains(t, fn.Chunk.Code, byte(value.OpConstant))
	require.Contains(t, fn.Chunk.Code, byte(value.OpAdd))
	require.Contains(t, fn.Chunk.Code, byte(value.OpPop))
	require.Equal(t, byte(value.OpReturn), fn.Chunk.Code[len(fn.Chunk.Code)-1])
}

func TestCompileProgramReservesSlotZero(t *testing.T) {
	g := newGC(io.Discard, false, false)
	_, cerrs := compileProgram(`var x = 1; print x;`, g)
	require.Empty(t, cerrs)

	// The first block-scoped local lands in slot 1, after the reserved slot 0.
	fn, cerrs := compileProgram(`{ var x = 1; print x; }`, g)
	require.Empty(t, cerrs)
	require.Equal(t, []byte{byte(value.OpGetLocal), 1}, fn.Chunk.Code[2:4])
}

func TestGetRuleCoversEveryTokenKind(t *testing.T) {
	for k := token.Kind(0); k <= token.EOF; k++ {
		require.NotPanics(t, func() { getRule(k) })
	}
}

func TestCompileErrorReportsLineAndMessage(t *testing.T) {
	_, cerrs := Compile("var = 1;\n")
	require.NotEmpty(t, cerrs)
	require.Equal(t, 1, cerrs[0].Line)
	require.Equal(t, "Expect variable name.", cerrs[0].Message)
}

func TestCompileCollectsMultipleErrorsViaSynchronize(t *testing.T) {
	_, cerrs := Compile(`
		var = 1;
		var = 2;
	`)
	require.GreaterOrEqual(t, len(cerrs), 2)
}

func TestResolveLocalSentinelForOwnInitializer(t *testing.T) {
	fc := &funcCompiler{}
	fc.locals = append(fc.locals, localVar{name: "a", depth: -1})
	require.Equal(t, -2, resolveLocal(fc, "a"))
}

func TestResolveLocalFindsMostRecentDeclaration(t *testing.T) {
	fc := &funcCompiler{}
	fc.locals = append(fc.locals, localVar{name: "a", depth: 0})
	fc.locals = append(fc.locals, localVar{name: "a", depth: 1})
	require.Equal(t, 1, resolveLocal(fc, "a"))
}
