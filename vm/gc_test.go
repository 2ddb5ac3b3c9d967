package vm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/value"
)

func TestCopyStringInterns(t *testing.T) {
	g := newGC(io.Discard, false, false)
	a := g.CopyString("hello")
	b := g.CopyString("hello")
	require.Same(t, a, b)

	c := g.CopyString("world")
	require.NotSame(t, a, c)
}

func TestCollectSweepsUnreachableStrings(t *testing.T) {
	g := newGC(io.Discard, false, false)
	vm := newVM(g, io.Discard, io.Discard, nil)

	kept := g.CopyString("kept")
	vm.push(value.FromObj(kept))

	g.CopyString("garbage")
	require.NotNil(t, g.strings.FindString("garbage", value.HashString("garbage")))

	g.collect()

	require.Nil(t, g.strings.FindString("garbage", value.HashString("garbage")))
	require.NotNil(t, g.strings.FindString("kept", value.HashString("kept")))
	require.True(t, kept.ObjHeader().Marked == false, "Marked resets after a sweep so the next cycle starts white")
}

func TestCollectKeepsGlobalsReachable(t *testing.T) {
	g := newGC(io.Discard, false, false)
	vm := newVM(g, io.Discard, io.Discard, nil)

	name := g.CopyString("greeting")
	vm.push(value.FromObj(name))
	str := g.CopyString("hi there")
	vm.globals.Set(name, value.FromObj(str))
	vm.pop()

	g.collect()

	v, ok := vm.globals.Get(name)
	require.True(t, ok)
	require.Equal(t, "hi there", v.AsObj().(*value.ObjString).Chars)
}

func TestStressGCCollectsOnEveryAllocation(t *testing.T) {
	g := newGC(io.Discard, true, false)
	before := g.bytesAllocated
	g.CopyString("x")
	require.GreaterOrEqual(t, g.bytesAllocated, before)

	// Nothing roots "x", so the collection run by the next allocation frees it.
	g.CopyString("y")
	require.Nil(t, g.strings.FindString("x", value.HashString("x")))
}

func TestNewClosureRootsFunctionViaStack(t *testing.T) {
	fn, cerrs := Compile(`fun f() { return 1; }`)
	require.Empty(t, cerrs)

	g := newGC(io.Discard, true, false)
	vm := newVM(g, io.Discard, io.Discard, nil)
	require.NoError(t, vmErr(vm.prepare(fn)))

	require.Equal(t, value.FunctionKind, fn.Kind())
	require.Equal(t, 1, vm.frameCount)
}

func TestNewGCWithHeapSetsInitialThreshold(t *testing.T) {
	g := newGCWithHeap(io.Discard, false, false, 4096)
	require.EqualValues(t, 4096, g.nextGC)

	fallback := newGCWithHeap(io.Discard, false, false, 0)
	require.EqualValues(t, 1<<20, fallback.nextGC)
}

func vmErr(e *RuntimeError) error {
	if e == nil {
		return nil
	}
	return e
}
