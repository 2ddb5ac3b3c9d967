package token_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/token"
)

func TestLookupFindsKeywords(t *testing.T) {
	k, ok := token.Lookup("class")
	require.True(t, ok)
	require.Equal(t, token.Class, k)
}

func TestLookupRejectsPlainIdentifiers(t *testing.T) {
	_, ok := token.Lookup("myVariable")
	require.False(t, ok)
}

func TestKindStringCoversEveryKind(t *testing.T) {
	for k := token.Kind(0); k <= token.EOF; k++ {
		require.NotEqual(t, "unknown", k.String(), "Kind %d has no String() case", k)
	}
}
