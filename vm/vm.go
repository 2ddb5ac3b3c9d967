package vm

import (
	"fmt"
	"io"

	"dyms/value"
)

const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// callFrame is one active function invocation: which closure is running,
// the instruction pointer into its chunk, and the base slot of this call's
// window into the shared value stack (spec §4.4, §5).
type callFrame struct {
	closure *value.ObjClosure
	ip      int
	base    int
}

// VM is a stack-based bytecode interpreter. It is not safe for concurrent
// use: all state (the stack, call frames, globals, the heap) is unshared,
// single-threaded mutable state, matching spec §5's single-goroutine
// execution model.
type VM struct {
	stack [stackMax]value.Value
	sp    int

	frames     [framesMax]callFrame
	frameCount int

	openUpvalues *value.ObjUpvalue
	globals      *value.Table

	gc *gc

	stdout io.Writer
	stderr io.Writer

	traceHook func(frame int, ip int, op value.OpCode, line int)
}

func newVM(g *gc, stdout, stderr io.Writer, traceHook func(int, int, value.OpCode, int)) *VM {
	vm := &VM{globals: value.NewTable(), gc: g, stdout: stdout, stderr: stderr, traceHook: traceHook}
	g.vm = vm
	return vm
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) resetStack() {
	vm.sp = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// prepare wraps fn's top-level script in a closure and sets up its call
// frame, rooting fn via the stack. Callers must call this before any
// further allocation (e.g. registering native globals) — until it runs,
// fn is reachable only from a bare Go variable, invisible to the
// collector's root set.
func (vm *VM) prepare(fn *value.ObjFunction) *RuntimeError {
	// fn comes straight out of the compiler with activeCompiler already nil'd
	// out (compileProgram's last step) — it is reachable from no root at all
	// until it's on the stack, so root it before NewClosure can trigger a
	// collection that would otherwise overlook it.
	vm.push(value.FromObj(fn))
	closure := vm.gc.NewClosure(fn)
	vm.pop()
	vm.push(value.FromObj(closure))
	return vm.call(closure, 0)
}

func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	msg := fmt.Sprintf(format, args...)
	line := 0
	if vm.frameCount > 0 {
		f := &vm.frames[vm.frameCount-1]
		line = f.closure.Fn.Chunk.Lines[f.ip-1]
	}
	stack := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		name := "<script>"
		if f.closure.Fn.Name != nil {
			name = "fn " + f.closure.Fn.Name.Chars
		}
		stack = append(stack, StackFrame{Line: f.closure.Fn.Chunk.Lines[f.ip-1], Name: name})
	}
	vm.resetStack()
	return &RuntimeError{Message: msg, Line: line, Stack: stack}
}

// --- main dispatch loop --------------------------------------------------

func (vm *VM) dispatch() (value.Value, *RuntimeError) {
	frame := &vm.frames[vm.frameCount-1]
	chunk := frame.closure.Fn.Chunk

	readByte := func() byte {
		b := chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi, lo := chunk.Code[frame.ip], chunk.Code[frame.ip+1]
		frame.ip += 2
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value { return chunk.Constants[readByte()] }
	readString := func() *value.ObjString { return readConstant().AsObj().(*value.ObjString) }

	for {
		if vm.traceHook != nil {
			op := value.OpCode(chunk.Code[frame.ip])
			vm.traceHook(vm.frameCount-1, frame.ip, op, chunk.Lines[frame.ip])
		}

		op := value.OpCode(readByte())
		switch op {
		case value.OpConstant:
			vm.push(readConstant())

		case value.OpNil:
			vm.push(value.Nil)
		case value.OpTrue:
			vm.push(value.Bool(true))
		case value.OpFalse:
			vm.push(value.Bool(false))
		case value.OpPop:
			vm.pop()

		case value.OpGetLocal:
			vm.push(vm.stack[frame.base+int(readByte())])
		case value.OpSetLocal:
			vm.stack[frame.base+int(readByte())] = vm.peek(0)

		case value.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return value.Nil, vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case value.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case value.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return value.Nil, vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case value.OpGetUpvalue:
			vm.push(*frame.closure.Upvalues[readByte()].Location)
		case value.OpSetUpvalue:
			*frame.closure.Upvalues[readByte()].Location = vm.peek(0)

		case value.OpGetProperty:
			if !vm.peek(0).IsObj() {
				return value.Nil, vm.runtimeError("Only instances have properties.")
			}
			inst, ok := vm.peek(0).AsObj().(*value.ObjInstance)
			if !ok {
				return value.Nil, vm.runtimeError("Only instances have properties.")
			}
			name := readString()
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if !vm.bindMethod(inst.Class, name) {
				return value.Nil, vm.runtimeError("Undefined property '%s'.", name.Chars)
			}

		case value.OpSetProperty:
			inst, ok := vm.peek(1).AsObj().(*value.ObjInstance)
			if !vm.peek(1).IsObj() || !ok {
				return value.Nil, vm.runtimeError("Only instances have fields.")
			}
			name := readString()
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case value.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case value.OpGreater, value.OpLess:
			res, rerr := vm.numericCompare(op)
			if rerr != nil {
				return value.Nil, rerr
			}
			vm.push(res)

		case value.OpAdd:
			if rerr := vm.add(); rerr != nil {
				return value.Nil, rerr
			}
		case value.OpSubtract, value.OpMultiply, value.OpDivide:
			if rerr := vm.arithmetic(op); rerr != nil {
				return value.Nil, rerr
			}

		case value.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsy()))
		case value.OpNegate:
			if !vm.peek(0).IsNumber() {
				return value.Nil, vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case value.OpPrint:
			fmt.Fprintln(vm.stdout, vm.pop().String())

		case value.OpJump:
			offset := readShort()
			frame.ip += offset
		case value.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).IsFalsy() {
				frame.ip += offset
			}
		case value.OpLoop:
			offset := readShort()
			frame.ip -= offset

		case value.OpCall:
			argCount := int(readByte())
			if rerr := vm.callValue(vm.peek(argCount), argCount); rerr != nil {
				return value.Nil, rerr
			}
			frame = &vm.frames[vm.frameCount-1]
			chunk = frame.closure.Fn.Chunk

		case value.OpInvoke:
			name := readString()
			argCount := int(readByte())
			if rerr := vm.invoke(name, argCount); rerr != nil {
				return value.Nil, rerr
			}
			frame = &vm.frames[vm.frameCount-1]
			chunk = frame.closure.Fn.Chunk

		case value.OpClosure:
			fn := readConstant().AsObj().(*value.ObjFunction)
			closure := vm.gc.NewClosure(fn)
			// Root the closure before capturing upvalues: capturing can
			// itself allocate (a fresh ObjUpvalue), and a collection
			// triggered mid-loop must not sweep this still-being-built
			// closure out from under us.
			vm.push(value.FromObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.base + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case value.OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case value.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return result, nil
			}
			vm.sp = frame.base
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]
			chunk = frame.closure.Fn.Chunk

		case value.OpClass:
			vm.push(value.FromObj(vm.gc.NewClass(readString())))

		case value.OpMethod:
			vm.defineMethod(readString())

		default:
			return value.Nil, vm.runtimeError("Unknown opcode %d.", byte(op))
		}
	}
}

func (vm *VM) numericCompare(op value.OpCode) (value.Value, *RuntimeError) {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return value.Nil, vm.runtimeError("Operands must be numbers.")
	}
	b, a := vm.pop().AsNumber(), vm.pop().AsNumber()
	if op == value.OpGreater {
		return value.Bool(a > b), nil
	}
	return value.Bool(a < b), nil
}

func (vm *VM) arithmetic(op value.OpCode) *RuntimeError {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b, a := vm.pop().AsNumber(), vm.pop().AsNumber()
	switch op {
	case value.OpSubtract:
		vm.push(value.Number(a - b))
	case value.OpMultiply:
		vm.push(value.Number(a * b))
	case value.OpDivide:
		vm.push(value.Number(a / b))
	}
	return nil
}

// add implements '+' on either two numbers or two strings (spec §4.4 /
// §6); mixed operands are a runtime error.
func (vm *VM) add() *RuntimeError {
	bv, av := vm.peek(0), vm.peek(1)
	switch {
	case av.IsNumber() && bv.IsNumber():
		b, a := vm.pop().AsNumber(), vm.pop().AsNumber()
		vm.push(value.Number(a + b))
	case isString(av) && isString(bv):
		as := av.AsObj().(*value.ObjString)
		bs := bv.AsObj().(*value.ObjString)
		// Operands stay on the stack (and so rooted) across this allocation;
		// only popped once the new string safely exists.
		result := vm.gc.CopyString(as.Chars + bs.Chars)
		vm.pop()
		vm.pop()
		vm.push(value.FromObj(result))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

func isString(v value.Value) bool {
	if !v.IsObj() {
		return false
	}
	_, ok := v.AsObj().(*value.ObjString)
	return ok
}

// --- calls, closures, classes ----------------------------------------------

func (vm *VM) callValue(callee value.Value, argCount int) *RuntimeError {
	if !callee.IsObj() {
		return vm.runtimeError("Can only call functions and classes.")
	}
	switch obj := callee.AsObj().(type) {
	case *value.ObjClosure:
		return vm.call(obj, argCount)
	case *value.ObjNative:
		args := vm.stack[vm.sp-argCount : vm.sp]
		result, err := obj.Fn(args)
		if err != nil {
			return vm.runtimeError("%s", err.Error())
		}
		vm.sp -= argCount + 1
		vm.push(result)
		return nil
	case *value.ObjClass:
		inst := vm.gc.NewInstance(obj)
		vm.stack[vm.sp-argCount-1] = value.FromObj(inst)
		if init, ok := obj.Methods.Get(vm.gc.CopyString("init")); ok {
			return vm.call(init.AsObj().(*value.ObjClosure), argCount)
		}
		if argCount != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		}
		return nil
	case *value.ObjBoundMethod:
		vm.stack[vm.sp-argCount-1] = obj.Receiver
		return vm.call(obj.Method, argCount)
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

func (vm *VM) call(closure *value.ObjClosure, argCount int) *RuntimeError {
	if argCount != closure.Fn.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Fn.Arity, argCount)
	}
	if vm.frameCount == framesMax {
		return vm.runtimeError("Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	frame.closure = closure
	frame.ip = 0
	frame.base = vm.sp - argCount - 1
	vm.frameCount++
	return nil
}

func (vm *VM) invoke(name *value.ObjString, argCount int) *RuntimeError {
	receiver := vm.peek(argCount)
	if !receiver.IsObj() {
		return vm.runtimeError("Only instances have methods.")
	}
	inst, ok := receiver.AsObj().(*value.ObjInstance)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if field, ok := inst.Fields.Get(name); ok {
		vm.stack[vm.sp-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	method, ok := inst.Class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method.AsObj().(*value.ObjClosure), argCount)
}

func (vm *VM) bindMethod(class *value.ObjClass, name *value.ObjString) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		return false
	}
	bound := vm.gc.NewBoundMethod(vm.peek(0), method.AsObj().(*value.ObjClosure))
	vm.pop()
	vm.push(value.FromObj(bound))
	return true
}

func (vm *VM) defineMethod(name *value.ObjString) {
	method := vm.peek(0)
	class := vm.peek(1).AsObj().(*value.ObjClass)
	class.Methods.Set(name, method)
	vm.pop()
}

// captureUpvalue returns an open upvalue for the stack slot at index,
// reusing one already open for that slot. The VM's open-upvalue list is
// kept sorted by descending slot so this lookup (and closeUpvalues below)
// can stop at the first entry at or below the target (spec §4.4).
func (vm *VM) captureUpvalue(slot int) *value.ObjUpvalue {
	var prev *value.ObjUpvalue
	cur := vm.openUpvalues
	for cur != nil && cur.Slot > slot {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Slot == slot {
		return cur
	}
	created := vm.gc.NewUpvalue(&vm.stack[slot], slot)
	created.Next = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues hoists every open upvalue at or above slot off the stack
// and into its own Closed field, then unlinks it from the open list —
// performed whenever a scope holding captured locals exits (spec §4.4).
func (vm *VM) closeUpvalues(slot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= slot {
		u := vm.openUpvalues
		u.Closed = *u.Location
		u.Location = &u.Closed
		vm.openUpvalues = u.Next
	}
}
