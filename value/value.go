// Package value implements the runtime data model shared by the compiler
// and the VM: the tagged-union Value, the heap Object variants, the
// open-addressing hash table used for globals/fields/interning, and the
// bytecode Chunk. These live together because they are the binary contract
// between compiler and VM (spec §3–§4.4): the compiler builds Chunks full
// of Values, the VM walks them, and the GC traces Values and Objects as one
// graph.
package value

import "fmt"

// Kind discriminates the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is a tagged union: exactly one of the fields below is meaningful,
// selected by Kind. We chose a tagged struct over NaN-boxing (spec §9,
// Design Notes) — both are behaviorally equivalent from the VM's point of
// view, but the struct form needs no unsafe bit-twiddling to keep object
// pointers from colliding with valid IEEE-754 payloads, at the cost of a
// larger Value (still copied by value, never heap-allocated itself).
type Value struct {
	Kind Kind
	num  float64
	obj  Obj
}

// Nil is the language's nil value.
var Nil = Value{Kind: KindNil}

// Bool wraps a boolean as a Value.
func Bool(b bool) Value {
	if b {
		return Value{Kind: KindBool, num: 1}
	}
	return Value{Kind: KindBool, num: 0}
}

// Number wraps a float64 as a Value.
func Number(n float64) Value { return Value{Kind: KindNumber, num: n} }

// FromObj wraps a heap Object reference as a Value.
func FromObj(o Obj) Value { return Value{Kind: KindObj, obj: o} }

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsObj() bool    { return v.Kind == KindObj }

func (v Value) AsBool() bool    { return v.num != 0 }
func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsObj() Obj      { return v.obj }

// IsFalsy implements the language's truthiness rule: nil and false are
// falsy, every other value — including 0 and "" — is truthy (spec §3,
// GLOSSARY "Falsy").
func (v Value) IsFalsy() bool {
	return v.Kind == KindNil || (v.Kind == KindBool && v.num == 0)
}

// Equal implements Value equality per spec §3: same variant and same
// payload, object references compared by identity. Because strings are
// interned (§4.2), identity comparison already gives "equal iff same byte
// sequence" for strings without any special case here.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool, KindNumber:
		return a.num == b.num
	case KindObj:
		return a.obj == b.obj
	default:
		return false
	}
}

// String renders a Value the way `print` and runtime error messages do.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.num)
	case KindObj:
		return v.obj.String()
	default:
		return "<invalid value>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) && n < 1e15 && n > -1e15 {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// TypeName names a Value's variant for runtime error messages.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindObj:
		return v.obj.Kind().String()
	default:
		return "unknown"
	}
}
