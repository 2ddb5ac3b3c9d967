package value

import "fmt"

// ObjKind tags the variant of a heap Object (spec §3, "Heap objects").
type ObjKind uint8

const (
	StringKind ObjKind = iota
	FunctionKind
	ClosureKind
	UpvalueKind
	NativeKind
	ClassKind
	InstanceKind
	BoundMethodKind
)

func (k ObjKind) String() string {
	switch k {
	case StringKind:
		return "string"
	case FunctionKind:
		return "function"
	case ClosureKind:
		return "function"
	case UpvalueKind:
		return "upvalue"
	case NativeKind:
		return "native function"
	case ClassKind:
		return "class"
	case InstanceKind:
		return "instance"
	case BoundMethodKind:
		return "function"
	default:
		return "object"
	}
}

// Header is the common prefix every heap Object carries: a mark bit for
// the tracing collector and an intrusive next-pointer threading every
// allocated object into the memory manager's sweep list (spec §3).
type Header struct {
	Marked bool
	Next   Obj
}

// Obj is implemented by every heap-allocated variant. ObjHeader exposes the
// mark bit/next pointer to the GC (package vm) without requiring Object
// variants to live in the same package as the collector.
type Obj interface {
	Kind() ObjKind
	String() string
	ObjHeader() *Header
}

// base factors out the header plumbing every Object variant needs.
type base struct {
	hdr Header
}

func (b *base) ObjHeader() *Header { return &b.hdr }

// ObjString is an interned, immutable byte sequence with a precomputed
// hash (spec §3, §4.2). At most one ObjString exists per distinct byte
// sequence for the lifetime of a VM — that invariant is enforced by the
// memory manager's intern table, not by this type itself.
type ObjString struct {
	base
	Chars string
	Hash  uint32
}

func (s *ObjString) Kind() ObjKind  { return StringKind }
func (s *ObjString) String() string { return s.Chars }

// HashString computes the FNV-1a hash spec §3 requires for ObjString.
func HashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// NewString builds an unregistered ObjString. Callers in package vm intern
// it (or reuse an existing interned string) before it is ever observable —
// see the CopyString method of package vm's collector.
func NewString(chars string) *ObjString {
	return &ObjString{Chars: chars, Hash: HashString(chars)}
}

// ObjFunction is a compiled function: arity, upvalue count, its Chunk, and
// an optional name (nil for the implicit top-level script, spec §3).
type ObjFunction struct {
	base
	Name         *ObjString
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
}

func (f *ObjFunction) Kind() ObjKind { return FunctionKind }
func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// ObjUpvalue mediates a closure's access to a variable declared in an
// enclosing function. While Location points into the VM value stack the
// upvalue is "open"; once its frame returns, Location is retargeted at
// Closed and the upvalue is "closed" (spec §3, GLOSSARY "Upvalue").
type ObjUpvalue struct {
	base
	Location *Value
	Closed   Value
	Slot     int // stack slot Location points at while open; meaningless once closed
	Next     *ObjUpvalue // threads the VM's open-upvalue list, sorted by descending Slot
}

func (u *ObjUpvalue) Kind() ObjKind  { return UpvalueKind }
func (u *ObjUpvalue) String() string { return "<upvalue>" }

// ObjClosure pairs a Function with the upvalues it captured at creation
// time — the form in which the VM calls every compiled function; natives
// are called through ObjNative instead (spec §3).
type ObjClosure struct {
	base
	Fn        *ObjFunction
	Upvalues  []*ObjUpvalue
}

func (c *ObjClosure) Kind() ObjKind  { return ClosureKind }
func (c *ObjClosure) String() string { return c.Fn.String() }

// NativeFn is a foreign function exposed to the language; it returns a
// plain Go error (rather than a vm.RuntimeError) so package value never
// needs to import package vm.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a NativeFn for calling from the VM dispatch loop.
type ObjNative struct {
	base
	Name string
	Fn   NativeFn
}

func (n *ObjNative) Kind() ObjKind  { return NativeKind }
func (n *ObjNative) String() string { return fmt.Sprintf("<native fn %s>", n.Name) }

// ObjClass is a class's runtime representation: its name and its method
// table (spec §3 names Class as just a name; §4.6/§6 name CLASS, METHOD,
// INVOKE opcodes that require a per-class method table, which
// SPEC_FULL.md §3 makes explicit).
type ObjClass struct {
	base
	Name    *ObjString
	Methods *Table
}

func (c *ObjClass) Kind() ObjKind  { return ClassKind }
func (c *ObjClass) String() string { return c.Name.Chars }

// NewClass allocates a class with an empty method table.
func NewClass(name *ObjString) *ObjClass {
	return &ObjClass{Name: name, Methods: NewTable()}
}

// ObjInstance is an instance of a Class plus its own property table
// (spec §3).
type ObjInstance struct {
	base
	Class  *ObjClass
	Fields *Table
}

func (i *ObjInstance) Kind() ObjKind  { return InstanceKind }
func (i *ObjInstance) String() string { return fmt.Sprintf("<%s instance>", i.Class.Name.Chars) }

// NewInstance allocates an instance with an empty field table.
func NewInstance(class *ObjClass) *ObjInstance {
	return &ObjInstance{Class: class, Fields: NewTable()}
}

// ObjBoundMethod is the result of looking up a method on an instance: the
// receiver plus the closure, bound together so a later CALL sees the
// instance as slot 0 (SPEC_FULL.md §3/§4.6, "bindMethod").
type ObjBoundMethod struct {
	base
	Receiver Value
	Method   *ObjClosure
}

func (m *ObjBoundMethod) Kind() ObjKind  { return BoundMethodKind }
func (m *ObjBoundMethod) String() string { return m.Method.String() }
