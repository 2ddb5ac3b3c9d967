package scanner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/scanner"
	"dyms/token"
)

func collect(src string) []token.Token {
	s := scanner.New(src)
	var out []token.Token
	for {
		tok := s.Next()
		out = append(out, tok)
		if tok.Kind == token.EOF || tok.Kind == token.Error {
			break
		}
	}
	return out
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	toks := collect("var x = fun andy")
	kinds := make([]token.Kind, len(toks))
	for i, tk := range toks {
		kinds[i] = tk.Kind
	}
	require.Equal(t, []token.Kind{
		token.Var, token.Identifier, token.Equal, token.Fun, token.Identifier, token.EOF,
	}, kinds)
	require.Equal(t, "andy", toks[4].Lexeme, "andy must not be mistaken for the 'and' keyword")
}

func TestTwoCharOperators(t *testing.T) {
	toks := collect("!= == <= >= < > ! =")
	var kinds []token.Kind
	for _, tk := range toks {
		if tk.Kind != token.EOF {
			kinds = append(kinds, tk.Kind)
		}
	}
	require.Equal(t, []token.Kind{
		token.BangEqual, token.EqualEqual, token.LessEqual, token.GreaterEqual,
		token.Less, token.Greater, token.Bang, token.Equal,
	}, kinds)
}

func TestStringLiteral(t *testing.T) {
	toks := collect(`"hello world"`)
	require.Equal(t, token.String, toks[0].Kind)
	require.Equal(t, `"hello world"`, toks[0].Lexeme)
}

func TestUnterminatedString(t *testing.T) {
	toks := collect(`"oops`)
	require.Equal(t, token.Error, toks[0].Kind)
	require.Contains(t, toks[0].Lexeme, "Unterminated")
}

func TestNumberAndLineTracking(t *testing.T) {
	toks := collect("1\n2.5\nx")
	require.Equal(t, token.Number, toks[0].Kind)
	require.Equal(t, 1, toks[0].Line)
	require.Equal(t, "2.5", toks[1].Lexeme)
	require.Equal(t, 2, toks[1].Line)
	require.Equal(t, 3, toks[2].Line)
}

func TestCommentsSkipped(t *testing.T) {
	toks := collect("1 // a comment\n+ 2")
	require.Equal(t, token.Number, toks[0].Kind)
	require.Equal(t, token.Plus, toks[1].Kind)
	require.Equal(t, token.Number, toks[2].Kind)
}

func TestUnexpectedCharacter(t *testing.T) {
	toks := collect("@")
	require.Equal(t, token.Error, toks[0].Kind)
}
