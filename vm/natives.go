package vm

import (
	"fmt"
	"math"
	"time"

	"dyms/value"
)

// registerNatives installs the built-in native functions plus any
// caller-supplied ones (WithNative) into the VM's global table. clock
// mirrors clox's clockNative; the math natives generalize the teacher's
// "fmaths" module (runtime/interpreter.go) from a bespoke bytecode fast
// path into ordinary native-function globals.
func registerNatives(vm *VM, extra map[string]value.NativeFn) {
	// Both allocations are pushed onto the stack before Set, then popped —
	// the same dance clox's defineNative does — so neither the name string
	// nor the native object is ever unrooted while the other allocates.
	define := func(name string, fn value.NativeFn) {
		vm.push(value.FromObj(vm.gc.CopyString(name)))
		vm.push(value.FromObj(vm.gc.NewNative(name, fn)))
		key := vm.stack[vm.sp-2].AsObj().(*value.ObjString)
		vm.globals.Set(key, vm.stack[vm.sp-1])
		vm.pop()
		vm.pop()
	}

	define("clock", func(args []value.Value) (value.Value, error) {
		return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
	})

	mathFn := func(f func(float64) float64) value.NativeFn {
		return func(args []value.Value) (value.Value, error) {
			if len(args) != 1 || !args[0].IsNumber() {
				return value.Nil, fmt.Errorf("expected a single number argument")
			}
			return value.Number(f(args[0].AsNumber())), nil
		}
	}
	define("sqrt", mathFn(math.Sqrt))
	define("abs", mathFn(math.Abs))
	define("floor", mathFn(math.Floor))
	define("ceil", mathFn(math.Ceil))
	define("sin", mathFn(math.Sin))
	define("cos", mathFn(math.Cos))

	define("pow", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 || !args[0].IsNumber() || !args[1].IsNumber() {
			return value.Nil, fmt.Errorf("expected two number arguments")
		}
		return value.Number(math.Pow(args[0].AsNumber(), args[1].AsNumber())), nil
	})

	for name, fn := range extra {
		define(name, fn)
	}
}
