package vm

import (
	"strconv"

	"dyms/scanner"
	"dyms/token"
	"dyms/value"
)

// precedence orders binary operators from loosest to tightest binding, the
// table a Pratt parser climbs (spec §4.1, GLOSSARY "Pratt parsing").
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type parseFn func(p *parser, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// funcType distinguishes the kinds of function body a Compiler may be
// compiling, since each returns and resolves "this" differently.
type funcType int

const (
	typeFunction funcType = iota
	typeScript
	typeMethod
	typeInitializer
)

type localVar struct {
	name       string
	depth      int // -1 while being declared but not yet defined
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

// funcCompiler tracks the locals/upvalues of one function body being
// compiled. Compilers nest: compiling a nested function declaration pushes
// a new funcCompiler whose enclosing field is the outer one, mirroring
// lexical scope (spec §4.1).
type funcCompiler struct {
	enclosing *funcCompiler
	function  *value.ObjFunction
	kind      funcType

	locals     []localVar
	upvalues   []upvalueRef
	scopeDepth int
}

type classCompiler struct {
	enclosing *classCompiler
}

// parser is the single-pass compiler's shared state: token stream, error
// recovery, the GC used to allocate constants, and the chain of nested
// function/class compilers (spec §4.1).
type parser struct {
	sc *scanner.Scanner

	previous token.Token
	current  token.Token

	hadError  bool
	panicMode bool
	errors    []*CompileError

	gc      *gc
	fnc *funcCompiler
	class   *classCompiler
}

var rules [int(token.EOF) + 1]parseRule

func init() {
	rules[token.LeftParen] = parseRule{grouping, call, precCall}
	rules[token.Dot] = parseRule{nil, dot, precCall}
	rules[token.Minus] = parseRule{unary, binary, precTerm}
	rules[token.Plus] = parseRule{nil, binary, precTerm}
	rules[token.Slash] = parseRule{nil, binary, precFactor}
	rules[token.Star] = parseRule{nil, binary, precFactor}
	rules[token.Bang] = parseRule{unary, nil, precNone}
	rules[token.BangEqual] = parseRule{nil, binary, precEquality}
	rules[token.EqualEqual] = parseRule{nil, binary, precEquality}
	rules[token.Greater] = parseRule{nil, binary, precComparison}
	rules[token.GreaterEqual] = parseRule{nil, binary, precComparison}
	rules[token.Less] = parseRule{nil, binary, precComparison}
	rules[token.LessEqual] = parseRule{nil, binary, precComparison}
	rules[token.Identifier] = parseRule{variable, nil, precNone}
	rules[token.String] = parseRule{stringLiteral, nil, precNone}
	rules[token.Number] = parseRule{number, nil, precNone}
	rules[token.And] = parseRule{nil, and_, precAnd}
	rules[token.Or] = parseRule{nil, or_, precOr}
	rules[token.False] = parseRule{literal, nil, precNone}
	rules[token.Nil] = parseRule{literal, nil, precNone}
	rules[token.True] = parseRule{literal, nil, precNone}
	rules[token.This] = parseRule{this_, nil, precNone}
}

func getRule(k token.Kind) *parseRule { return &rules[k] }

// compileProgram runs the whole single-pass compile: scan+parse+emit happen
// together, one token of lookahead, no intermediate tree (spec §4.1).
func compileProgram(source string, gc *gc) (*value.ObjFunction, []*CompileError) {
	p := &parser{sc: scanner.New(source), gc: gc}
	top := &funcCompiler{kind: typeScript, function: gc.NewFunction()}
	// Runtime slot 0 always holds the running closure/receiver (spec §4.4
	// call-frame layout); reserve it here so local-variable indices line up.
	top.locals = append(top.locals, localVar{name: "", depth: 0})
	p.fnc = top
	gc.activeCompiler = top

	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}
	fn := p.endCompiler()
	gc.activeCompiler = nil

	if p.hadError {
		return nil, p.errors
	}
	return fn, nil
}

// --- token stream helpers -------------------------------------------------

func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.sc.Next()
		if p.current.Kind != token.Error {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *parser) check(k token.Kind) bool { return p.current.Kind == k }

func (p *parser) match(k token.Kind) bool {
	if !p.check(k) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) consume(k token.Kind, msg string) {
	if p.current.Kind == k {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

func (p *parser) errorAtCurrent(msg string) { p.errorAt(p.current, msg) }
func (p *parser) error(msg string)          { p.errorAt(p.previous, msg) }

func (p *parser) errorAt(t token.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	where := t.Lexeme
	if t.Kind == token.EOF {
		where = ""
	}
	p.errors = append(p.errors, &CompileError{Line: t.Line, Where: where, Message: msg})
	p.hadError = true
}

// synchronize discards tokens until a likely statement boundary, so one
// error doesn't cascade into a wall of spurious ones (spec §7).
func (p *parser) synchronize() {
	p.panicMode = false
	for p.current.Kind != token.EOF {
		if p.previous.Kind == token.Semicolon {
			return
		}
		switch p.current.Kind {
		case token.Class, token.Fun, token.Var, token.For, token.If, token.While, token.Print, token.Return:
			return
		}
		p.advance()
	}
}

// --- emission --------------------------------------------------------------

func (p *parser) chunk() *value.Chunk { return p.fnc.function.Chunk }

func (p *parser) emitByte(b byte) { p.chunk().Write(b, p.previous.Line) }
func (p *parser) emitOp(op value.OpCode) { p.chunk().WriteOp(op, p.previous.Line) }
func (p *parser) emitOps(op value.OpCode, b byte) {
	p.emitOp(op)
	p.emitByte(b)
}

func (p *parser) emitConstant(v value.Value) {
	p.emitOps(value.OpConstant, p.makeConstant(v))
}

func (p *parser) makeConstant(v value.Value) byte {
	idx := p.chunk().AddConstant(v)
	if idx > 255 {
		p.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (p *parser) emitJump(op value.OpCode) int {
	p.emitOp(op)
	p.emitByte(0xff)
	p.emitByte(0xff)
	return len(p.chunk().Code) - 2
}

func (p *parser) patchJump(offset int) {
	jump := len(p.chunk().Code) - offset - 2
	if jump > 0xffff {
		p.error("Too much code to jump over.")
	}
	p.chunk().Code[offset] = byte(jump >> 8)
	p.chunk().Code[offset+1] = byte(jump & 0xff)
}

func (p *parser) emitLoop(loopStart int) {
	p.emitOp(value.OpLoop)
	offset := len(p.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		p.error("Loop body too large.")
	}
	p.emitByte(byte(offset >> 8))
	p.emitByte(byte(offset & 0xff))
}

func (p *parser) emitReturn() {
	if p.fnc.kind == typeInitializer {
		p.emitOps(value.OpGetLocal, 0)
	} else {
		p.emitOp(value.OpNil)
	}
	p.emitOp(value.OpReturn)
}

func (p *parser) endCompiler() *value.ObjFunction {
	p.emitReturn()
	fn := p.fnc.function
	fn.UpvalueCount = len(p.fnc.upvalues)
	p.fnc = p.fnc.enclosing
	return fn
}

// --- scope / variable resolution -------------------------------------------

func (p *parser) beginScope() { p.fnc.scopeDepth++ }

func (p *parser) endScope() {
	p.fnc.scopeDepth--
	c := p.fnc
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		last := c.locals[len(c.locals)-1]
		if last.isCaptured {
			p.emitOp(value.OpCloseUpvalue)
		} else {
			p.emitOp(value.OpPop)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func identifierConstant(p *parser, name string) byte {
	return p.makeConstant(value.FromObj(p.gc.CopyString(name)))
}

func (p *parser) declareVariable() {
	if p.fnc.scopeDepth == 0 {
		return
	}
	name := p.previous.Lexeme
	c := p.fnc
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *parser) addLocal(name string) {
	if len(p.fnc.locals) >= 256 {
		p.error("Too many local variables in function.")
		return
	}
	p.fnc.locals = append(p.fnc.locals, localVar{name: name, depth: -1})
}

func (p *parser) markInitialized() {
	if p.fnc.scopeDepth == 0 {
		return
	}
	p.fnc.locals[len(p.fnc.locals)-1].depth = p.fnc.scopeDepth
}

func (p *parser) parseVariable(msg string) byte {
	p.consume(token.Identifier, msg)
	p.declareVariable()
	if p.fnc.scopeDepth > 0 {
		return 0
	}
	return identifierConstant(p, p.previous.Lexeme)
}

func (p *parser) defineVariable(global byte) {
	if p.fnc.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOps(value.OpDefineGlobal, global)
}

func resolveLocal(c *funcCompiler, name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				return -2 // sentinel: used in own initializer
			}
			return i
		}
	}
	return -1
}

func addUpvalue(c *funcCompiler, index byte, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(c.upvalues) >= 256 {
		return 0
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(c.upvalues) - 1
}

func resolveUpvalue(p *parser, c *funcCompiler, name string) int {
	if c.enclosing == nil {
		return -1
	}
	local := resolveLocal(c.enclosing, name)
	if local >= 0 {
		c.enclosing.locals[local].isCaptured = true
		return addUpvalue(c, byte(local), true)
	}
	if local == -2 {
		p.error("Can't read local variable in its own initializer.")
	}
	if up := resolveUpvalue(p, c.enclosing, name); up >= 0 {
		return addUpvalue(c, byte(up), false)
	}
	return -1
}

// --- declarations & statements ----------------------------------------------

func (p *parser) declaration() {
	switch {
	case p.match(token.Class):
		p.classDeclaration()
	case p.match(token.Fun):
		p.funDeclaration()
	case p.match(token.Var):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *parser) classDeclaration() {
	p.consume(token.Identifier, "Expect class name.")
	nameTok := p.previous
	nameConst := identifierConstant(p, nameTok.Lexeme)
	p.declareVariable()

	p.emitOps(value.OpClass, nameConst)
	p.defineVariable(nameConst)

	classComp := &classCompiler{enclosing: p.class}
	p.class = classComp

	p.namedVariable(nameTok, false)
	p.consume(token.LeftBrace, "Expect '{' before class body.")
	for !p.check(token.RightBrace) && !p.check(token.EOF) {
		p.method()
	}
	p.consume(token.RightBrace, "Expect '}' after class body.")
	p.emitOp(value.OpPop)

	p.class = classComp.enclosing
}

func (p *parser) method() {
	p.consume(token.Identifier, "Expect method name.")
	nameTok := p.previous
	nameConst := identifierConstant(p, nameTok.Lexeme)

	kind := typeMethod
	if nameTok.Lexeme == "init" {
		kind = typeInitializer
	}
	p.functionBody(kind)
	p.emitOps(value.OpMethod, nameConst)
}

func (p *parser) funDeclaration() {
	global := p.parseVariable("Expect function name.")
	p.markInitialized()
	p.functionBody(typeFunction)
	p.defineVariable(global)
}

func (p *parser) functionBody(kind funcType) {
	fc := &funcCompiler{enclosing: p.fnc, kind: kind, function: p.gc.NewFunction()}
	p.fnc = fc
	// fc must be reachable from gc.activeCompiler before any further
	// allocation (e.g. the name below) can trigger a collection — otherwise
	// fc.function, not yet referenced from anywhere, would be swept.
	p.gc.activeCompiler = fc
	if kind != typeScript {
		fc.function.Name = p.gc.CopyString(p.previous.Lexeme)
	}
	// Slot 0 holds the receiver for methods, or is an unused placeholder for
	// plain functions (spec §4.1, call-frame layout).
	receiver := ""
	if kind == typeMethod || kind == typeInitializer {
		receiver = "this"
	}
	fc.locals = append(fc.locals, localVar{name: receiver, depth: 0})

	p.beginScope()
	p.consume(token.LeftParen, "Expect '(' after function name.")
	if !p.check(token.RightParen) {
		for {
			fc.function.Arity++
			if fc.function.Arity > 255 {
				p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := p.parseVariable("Expect parameter name.")
			p.defineVariable(constant)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RightParen, "Expect ')' after parameters.")
	p.consume(token.LeftBrace, "Expect '{' before function body.")
	p.block()

	fn := p.endCompiler()
	p.gc.activeCompiler = p.fnc

	upvalCount := fn.UpvalueCount
	idx := p.makeConstant(value.FromObj(fn))
	p.emitOps(value.OpClosure, idx)
	for _, uv := range fc.upvalues[:upvalCount] {
		if uv.isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(uv.index)
	}
}

func (p *parser) varDeclaration() {
	global := p.parseVariable("Expect variable name.")
	if p.match(token.Equal) {
		p.expression()
	} else {
		p.emitOp(value.OpNil)
	}
	p.consume(token.Semicolon, "Expect ';' after variable declaration.")
	p.defineVariable(global)
}

func (p *parser) statement() {
	switch {
	case p.match(token.Print):
		p.printStatement()
	case p.match(token.For):
		p.forStatement()
	case p.match(token.If):
		p.ifStatement()
	case p.match(token.Return):
		p.returnStatement()
	case p.match(token.While):
		p.whileStatement()
	case p.match(token.LeftBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *parser) block() {
	for !p.check(token.RightBrace) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RightBrace, "Expect '}' after block.")
}

func (p *parser) printStatement() {
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after value.")
	p.emitOp(value.OpPrint)
}

func (p *parser) returnStatement() {
	if p.fnc.kind == typeScript {
		p.error("Can't return from top-level code.")
	}
	if p.match(token.Semicolon) {
		p.emitReturn()
		return
	}
	if p.fnc.kind == typeInitializer {
		p.error("Can't return a value from an initializer.")
	}
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after return value.")
	p.emitOp(value.OpReturn)
}

func (p *parser) ifStatement() {
	p.consume(token.LeftParen, "Expect '(' after 'if'.")
	p.expression()
	p.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := p.emitJump(value.OpJumpIfFalse)
	p.emitOp(value.OpPop)
	p.statement()

	elseJump := p.emitJump(value.OpJump)
	p.patchJump(thenJump)
	p.emitOp(value.OpPop)

	if p.match(token.Else) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *parser) whileStatement() {
	loopStart := len(p.chunk().Code)
	p.consume(token.LeftParen, "Expect '(' after 'while'.")
	p.expression()
	p.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := p.emitJump(value.OpJumpIfFalse)
	p.emitOp(value.OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(value.OpPop)
}

func (p *parser) forStatement() {
	p.beginScope()
	p.consume(token.LeftParen, "Expect '(' after 'for'.")
	switch {
	case p.match(token.Semicolon):
		// no initializer
	case p.match(token.Var):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := len(p.chunk().Code)
	exitJump := -1
	if !p.match(token.Semicolon) {
		p.expression()
		p.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = p.emitJump(value.OpJumpIfFalse)
		p.emitOp(value.OpPop)
	}

	if !p.match(token.RightParen) {
		bodyJump := p.emitJump(value.OpJump)
		incrementStart := len(p.chunk().Code)
		p.expression()
		p.emitOp(value.OpPop)
		p.consume(token.RightParen, "Expect ')' after for clauses.")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(value.OpPop)
	}
	p.endScope()
}

func (p *parser) expressionStatement() {
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after expression.")
	p.emitOp(value.OpPop)
}

// --- expressions -------------------------------------------------------

func (p *parser) expression() { p.parsePrecedence(precAssignment) }

func (p *parser) parsePrecedence(prec precedence) {
	p.advance()
	prefix := getRule(p.previous.Kind).prefix
	if prefix == nil {
		p.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	prefix(p, canAssign)

	for prec <= getRule(p.current.Kind).precedence {
		p.advance()
		infix := getRule(p.previous.Kind).infix
		infix(p, canAssign)
	}

	if canAssign && p.match(token.Equal) {
		p.error("Invalid assignment target.")
	}
}

func number(p *parser, _ bool) {
	n, err := strconv.ParseFloat(p.previous.Lexeme, 64)
	if err != nil {
		p.error("Invalid number literal.")
		return
	}
	p.emitConstant(value.Number(n))
}

func stringLiteral(p *parser, _ bool) {
	raw := p.previous.Lexeme
	s := raw[1 : len(raw)-1] // strip surrounding quotes; no escape processing
	p.emitConstant(value.FromObj(p.gc.CopyString(s)))
}

func literal(p *parser, _ bool) {
	switch p.previous.Kind {
	case token.False:
		p.emitOp(value.OpFalse)
	case token.True:
		p.emitOp(value.OpTrue)
	case token.Nil:
		p.emitOp(value.OpNil)
	}
}

func grouping(p *parser, _ bool) {
	p.expression()
	p.consume(token.RightParen, "Expect ')' after expression.")
}

func unary(p *parser, _ bool) {
	opKind := p.previous.Kind
	p.parsePrecedence(precUnary)
	switch opKind {
	case token.Bang:
		p.emitOp(value.OpNot)
	case token.Minus:
		p.emitOp(value.OpNegate)
	}
}

func binary(p *parser, _ bool) {
	opKind := p.previous.Kind
	rule := getRule(opKind)
	p.parsePrecedence(rule.precedence + 1)

	switch opKind {
	case token.BangEqual:
		p.emitOp(value.OpEqual)
		p.emitOp(value.OpNot)
	case token.EqualEqual:
		p.emitOp(value.OpEqual)
	case token.Greater:
		p.emitOp(value.OpGreater)
	case token.GreaterEqual:
		p.emitOp(value.OpLess)
		p.emitOp(value.OpNot)
	case token.Less:
		p.emitOp(value.OpLess)
	case token.LessEqual:
		p.emitOp(value.OpGreater)
		p.emitOp(value.OpNot)
	case token.Plus:
		p.emitOp(value.OpAdd)
	case token.Minus:
		p.emitOp(value.OpSubtract)
	case token.Star:
		p.emitOp(value.OpMultiply)
	case token.Slash:
		p.emitOp(value.OpDivide)
	}
}

func and_(p *parser, _ bool) {
	endJump := p.emitJump(value.OpJumpIfFalse)
	p.emitOp(value.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

func or_(p *parser, _ bool) {
	elseJump := p.emitJump(value.OpJumpIfFalse)
	endJump := p.emitJump(value.OpJump)
	p.patchJump(elseJump)
	p.emitOp(value.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func call(p *parser, _ bool) {
	argCount := p.argumentList()
	p.emitOps(value.OpCall, argCount)
}

func (p *parser) argumentList() byte {
	var count int
	if !p.check(token.RightParen) {
		for {
			p.expression()
			if count == 255 {
				p.error("Can't have more than 255 arguments.")
			}
			count++
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RightParen, "Expect ')' after arguments.")
	return byte(count)
}

func dot(p *parser, canAssign bool) {
	p.consume(token.Identifier, "Expect property name after '.'.")
	name := identifierConstant(p, p.previous.Lexeme)

	switch {
	case canAssign && p.match(token.Equal):
		p.expression()
		p.emitOps(value.OpSetProperty, name)
	case p.match(token.LeftParen):
		argCount := p.argumentList()
		p.emitOps(value.OpInvoke, name)
		p.emitByte(argCount)
	default:
		p.emitOps(value.OpGetProperty, name)
	}
}

func this_(p *parser, _ bool) {
	if p.class == nil {
		p.error("Can't use 'this' outside of a class.")
		return
	}
	variable(p, false)
}

func variable(p *parser, canAssign bool) {
	p.namedVariable(p.previous, canAssign)
}

func (p *parser) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp value.OpCode
	arg := resolveLocal(p.fnc, name.Lexeme)
	switch {
	case arg >= 0:
		getOp, setOp = value.OpGetLocal, value.OpSetLocal
	case arg == -2:
		p.error("Can't read local variable in its own initializer.")
		getOp, setOp = value.OpGetLocal, value.OpSetLocal
		arg = 0
	default:
		if up := resolveUpvalue(p, p.fnc, name.Lexeme); up != -1 {
			arg = up
			getOp, setOp = value.OpGetUpvalue, value.OpSetUpvalue
		} else {
			arg = int(identifierConstant(p, name.Lexeme))
			getOp, setOp = value.OpGetGlobal, value.OpSetGlobal
		}
	}

	if canAssign && p.match(token.Equal) {
		p.expression()
		p.emitOps(setOp, byte(arg))
	} else {
		p.emitOps(getOp, byte(arg))
	}
}
