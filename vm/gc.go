package vm

import (
	"fmt"
	"io"
	"reflect"

	"github.com/dustin/go-humanize"

	"dyms/value"
)

const heapGrowFactor = 2

// gc is the precise tracing mark-sweep collector (spec §4.2). Every heap
// Object is allocated through one of its New* methods, which link the
// object into objects (the sweep list) and charge its estimated size
// against bytesAllocated before possibly triggering a collection.
//
// Roots come from three places: the VM's value stack and call frames
// (including each frame's open upvalues), the global table, and — only
// while a Compile is in progress — the chain of active Compiler frames,
// whose half-built functions are not yet reachable from any chunk.
type gc struct {
	objects value.Obj
	strings *value.Table // weak: entries are pruned of unmarked strings before sweep

	bytesAllocated int64
	nextGC         int64

	gray []value.Obj

	vm             *VM
	activeCompiler *funcCompiler

	stressGC bool
	trace    bool
	out      io.Writer
}

func newGC(out io.Writer, stressGC, trace bool) *gc {
	return newGCWithHeap(out, stressGC, trace, 1<<20)
}

func newGCWithHeap(out io.Writer, stressGC, trace bool, initialHeap int64) *gc {
	if initialHeap <= 0 {
		initialHeap = 1 << 20
	}
	return &gc{
		strings:  value.NewTable(),
		nextGC:   initialHeap,
		stressGC: stressGC,
		trace:    trace,
		out:      out,
	}
}

func (g *gc) logf(format string, args ...interface{}) {
	if g.trace && g.out != nil {
		fmt.Fprintf(g.out, format, args...)
	}
}

// --- allocation ---------------------------------------------------------

// track links a freshly built Object into the GC's sweep list. The
// pressure check runs BEFORE linking o in and before counting its size, so
// a collection it triggers can never sweep o itself — o doesn't exist in
// the collector's world yet. Collections triggered by a LATER allocation
// can still reach it once linked, so callers must root a multi-step
// construction (e.g. push it on the stack) before allocating again.
func (g *gc) track(o value.Obj, size int64) {
	if g.stressGC {
		g.collect()
	} else if g.bytesAllocated+size > g.nextGC {
		g.collect()
	}

	hdr := o.ObjHeader()
	hdr.Next = g.objects
	g.objects = o
	g.bytesAllocated += size
}

// CopyString interns a copy of chars, returning the existing ObjString if
// one with the same content is already interned (spec §4.2).
func (g *gc) CopyString(chars string) *value.ObjString {
	hash := value.HashString(chars)
	if interned := g.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	s := value.NewString(chars)
	g.track(s, int64(len(chars))+32)
	g.strings.Set(s, value.Nil)
	return s
}

func (g *gc) NewFunction() *value.ObjFunction {
	fn := &value.ObjFunction{Chunk: &value.Chunk{}}
	g.track(fn, 64)
	return fn
}

func (g *gc) NewClosure(fn *value.ObjFunction) *value.ObjClosure {
	c := &value.ObjClosure{Fn: fn, Upvalues: make([]*value.ObjUpvalue, fn.UpvalueCount)}
	g.track(c, int64(32+8*fn.UpvalueCount))
	return c
}

func (g *gc) NewUpvalue(loc *value.Value, slot int) *value.ObjUpvalue {
	u := &value.ObjUpvalue{Location: loc, Slot: slot}
	g.track(u, 32)
	return u
}

func (g *gc) NewNative(name string, fn value.NativeFn) *value.ObjNative {
	n := &value.ObjNative{Name: name, Fn: fn}
	g.track(n, 32)
	return n
}

func (g *gc) NewClass(name *value.ObjString) *value.ObjClass {
	c := value.NewClass(name)
	g.track(c, 48)
	return c
}

func (g *gc) NewInstance(class *value.ObjClass) *value.ObjInstance {
	i := value.NewInstance(class)
	g.track(i, 48)
	return i
}

func (g *gc) NewBoundMethod(receiver value.Value, method *value.ObjClosure) *value.ObjBoundMethod {
	b := &value.ObjBoundMethod{Receiver: receiver, Method: method}
	g.track(b, 32)
	return b
}

// --- collection ----------------------------------------------------------

func (g *gc) collect() {
	before := g.bytesAllocated
	g.logf("-- gc begin\n")

	g.markRoots()
	g.traceReferences()
	g.removeUnreachableStrings()
	g.sweep()

	g.nextGC = g.bytesAllocated * heapGrowFactor
	if g.nextGC < 1<<20 {
		g.nextGC = 1 << 20
	}

	g.logf("-- gc end   collected %s, next at %s\n",
		humanize.Bytes(uint64(before-g.bytesAllocated)), humanize.Bytes(uint64(g.nextGC)))
}

func (g *gc) markRoots() {
	if g.vm != nil {
		for i := 0; i < g.vm.sp; i++ {
			g.markValue(g.vm.stack[i])
		}
		for i := 0; i < g.vm.frameCount; i++ {
			g.markObject(g.vm.frames[i].closure)
		}
		for u := g.vm.openUpvalues; u != nil; u = u.Next {
			g.markObject(u)
		}
		g.markTable(g.vm.globals)
	}
	for c := g.activeCompiler; c != nil; c = c.enclosing {
		g.markObject(c.function)
	}
}

func (g *gc) markValue(v value.Value) {
	if v.IsObj() {
		g.markObject(v.AsObj())
	}
}

func (g *gc) markObject(o value.Obj) {
	// o can be a typed nil (e.g. blacken on the top-level script's
	// ObjFunction, whose Name is a nil *value.ObjString boxed into a
	// non-nil Obj interface) — o == nil wouldn't catch that and
	// ObjHeader() would panic on the nil receiver.
	if o == nil || reflect.ValueOf(o).IsNil() {
		return
	}
	hdr := o.ObjHeader()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	g.gray = append(g.gray, o)
}

func (g *gc) markTable(t *value.Table) {
	if t == nil {
		return
	}
	for _, k := range t.Keys() {
		g.markObject(k)
		if v, ok := t.Get(k); ok {
			g.markValue(v)
		}
	}
}

func (g *gc) traceReferences() {
	for len(g.gray) > 0 {
		o := g.gray[len(g.gray)-1]
		g.gray = g.gray[:len(g.gray)-1]
		g.blacken(o)
	}
}

func (g *gc) blacken(o value.Obj) {
	switch obj := o.(type) {
	case *value.ObjFunction:
		g.markObject(obj.Name)
		for _, c := range obj.Chunk.Constants {
			g.markValue(c)
		}
	case *value.ObjClosure:
		g.markObject(obj.Fn)
		for _, u := range obj.Upvalues {
			g.markObject(u)
		}
	case *value.ObjUpvalue:
		g.markValue(obj.Closed)
	case *value.ObjClass:
		g.markObject(obj.Name)
		g.markTable(obj.Methods)
	case *value.ObjInstance:
		g.markObject(obj.Class)
		g.markTable(obj.Fields)
	case *value.ObjBoundMethod:
		g.markValue(obj.Receiver)
		g.markObject(obj.Method)
	case *value.ObjString, *value.ObjNative:
		// no outgoing references
	}
}

// removeUnreachableStrings prunes the intern table of strings that marking
// didn't reach, before sweep frees their backing ObjStrings — this is the
// "weak reference" table behavior spec §4.2 requires, done manually since
// the table holds strong Go pointers.
func (g *gc) removeUnreachableStrings() {
	for _, k := range g.strings.Keys() {
		if !k.ObjHeader().Marked {
			g.strings.Delete(k)
		}
	}
}

func (g *gc) sweep() {
	var prev value.Obj
	obj := g.objects
	for obj != nil {
		hdr := obj.ObjHeader()
		if hdr.Marked {
			hdr.Marked = false
			prev = obj
			obj = hdr.Next
			continue
		}
		unreached := obj
		obj = hdr.Next
		if prev != nil {
			prev.ObjHeader().Next = obj
		} else {
			g.objects = obj
		}
		g.bytesAllocated -= objectSize(unreached)
	}
}

func objectSize(o value.Obj) int64 {
	switch obj := o.(type) {
	case *value.ObjString:
		return int64(len(obj.Chars)) + 32
	case *value.ObjClosure:
		return int64(32 + 8*len(obj.Upvalues))
	case *value.ObjFunction:
		return 64
	case *value.ObjClass, *value.ObjInstance:
		return 48
	default:
		return 32
	}
}
