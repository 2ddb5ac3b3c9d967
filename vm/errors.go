package vm

import "fmt"

// CompileError is one diagnostic produced while compiling a source file.
// The compiler collects every one it can (panic-mode recovery resumes at
// the next statement boundary, spec §7) rather than stopping at the first.
type CompileError struct {
	Line    int
	Where   string // lexeme near the error, empty when not applicable
	Message string
}

func (e *CompileError) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("[line %d] Error at '%s': %s", e.Line, e.Where, e.Message)
	}
	return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
}

// CompileErrors collects every CompileError from one compilation, so
// callers can use errors.As to recover the full list.
type CompileErrors []*CompileError

func (e CompileErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more error(s))", e[0].Error(), len(e)-1)
}

// RuntimeError is a failure raised by the VM while executing a chunk:
// a type mismatch, an undefined global, a stack overflow, and so on
// (spec §7). Stack carries the call-frame trace captured at the moment
// the error was raised, innermost frame first.
type RuntimeError struct {
	Message string
	Line    int
	Stack   []StackFrame
}

// StackFrame names one call-frame line of a RuntimeError's trace.
type StackFrame struct {
	Line int
	Name string // "<script>" for top level, "fn <name>" otherwise
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("[line %d] %s", e.Line, e.Message)
}

// Trace renders the full call-frame trace the way a REPL or CLI would
// print it beneath the error message.
func (e *RuntimeError) Trace() string {
	out := ""
	for _, f := range e.Stack {
		out += fmt.Sprintf("[line %d] in %s\n", f.Line, f.Name)
	}
	return out
}
