// Package vm implements the compiler and stack-based virtual machine: a
// single-pass Pratt compiler that emits bytecode directly (no intermediate
// tree), a tracing mark-sweep collector, and the VM dispatch loop that
// executes the compiled chunks. Compiler, GC, and VM share one package —
// mirroring the teacher's single-package runtime — because their state
// (the object graph, the value stack, the chain of in-progress compilers)
// is one tightly coupled whole, not three independent concerns.
package vm

import (
	"fmt"
	"io"
	"os"

	"dyms/value"
)

// Option configures a single Interpret call.
type Option func(*options)

type options struct {
	stdout      io.Writer
	stderr      io.Writer
	stressGC    bool
	trace       bool
	traceHook   func(frame, ip int, op value.OpCode, line int)
	natives     map[string]value.NativeFn
	initialHeap int64
}

// WithStdout redirects `print` output. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option { return func(o *options) { o.stdout = w } }

// WithStderr redirects runtime-error diagnostics. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option { return func(o *options) { o.stderr = w } }

// WithStressGC runs a full collection before every single allocation — a
// torture mode for shaking out GC bugs that only show up under heavy
// pressure (spec §9, Design Notes).
func WithStressGC() Option { return func(o *options) { o.stressGC = true } }

// WithTrace enables execution tracing: every instruction is logged as it
// runs, and GC begin/end summaries are printed to stderr.
func WithTrace() Option { return func(o *options) { o.trace = true } }

// WithTraceHook installs a callback invoked before every instruction,
// letting a caller (e.g. a debugger or test) observe execution without
// parsing log text.
func WithTraceHook(fn func(frame, ip int, op value.OpCode, line int)) Option {
	return func(o *options) { o.traceHook = fn }
}

// WithInitialHeap sets the byte threshold the first collection triggers at;
// after each collection the threshold becomes twice the bytes still live,
// and never less than 1MiB (spec §9's HEAP_GROW_FACTOR). Defaults to 1MiB;
// a larger value trades peak memory for fewer early collections on scripts
// known to allocate heavily.
func WithInitialHeap(bytes int64) Option {
	return func(o *options) { o.initialHeap = bytes }
}

// WithNative registers an additional native function under name, available
// as a global in the interpreted program.
func WithNative(name string, fn value.NativeFn) Option {
	return func(o *options) {
		if o.natives == nil {
			o.natives = make(map[string]value.NativeFn)
		}
		o.natives[name] = fn
	}
}

func newOptions(opts []Option) *options {
	o := &options{stdout: os.Stdout, stderr: os.Stderr}
	for _, apply := range opts {
		apply(o)
	}
	return o
}

// Compile runs the single-pass compiler over source and returns the
// top-level function it produced, or every diagnostic collected along the
// way (spec §4.1, §7). A nil function return always pairs with a non-empty
// error slice.
func Compile(source string) (*value.ObjFunction, []*CompileError) {
	g := newGC(io.Discard, false, false)
	return compileProgram(source, g)
}

// InterpretResult is the value produced by running a script to completion
// — the result of its implicit top-level return (spec §6).
type InterpretResult struct {
	Value value.Value
}

// Interpret compiles and runs source in one shared heap: the GC that backs
// compile-time constant allocation is the same one the VM allocates
// against while running, matching spec §4.1/§4.2's single continuous
// object graph.
func Interpret(source string, opts ...Option) (InterpretResult, error) {
	o := newOptions(opts)
	g := newGCWithHeap(o.stderr, o.stressGC, o.trace, o.initialHeap)

	fn, cerrs := compileProgram(source, g)
	if len(cerrs) > 0 {
		return InterpretResult{}, CompileErrors(cerrs)
	}

	hook := o.traceHook
	if hook == nil && o.trace {
		hook = func(frame, ip int, op value.OpCode, line int) {
			fmt.Fprintf(o.stderr, "%*s[line %4d] %04d %s\n", frame*2, "", line, ip, op)
		}
	}
	vm := newVM(g, o.stdout, o.stderr, hook)
	if rerr := vm.prepare(fn); rerr != nil {
		return InterpretResult{}, rerr
	}
	registerNatives(vm, o.natives)

	result, rerr := vm.dispatch()
	if rerr != nil {
		return InterpretResult{}, rerr
	}
	return InterpretResult{Value: result}, nil
}
