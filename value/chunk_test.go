package value_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/value"
)

func TestChunkWriteAndConstants(t *testing.T) {
	c := &value.Chunk{}
	idx := c.AddConstant(value.Number(42))
	c.WriteOp(value.OpConstant, 1)
	c.Write(byte(idx), 1)
	c.WriteOp(value.OpReturn, 1)

	require.Equal(t, []byte{byte(value.OpConstant), byte(idx), byte(value.OpReturn)}, c.Code)
	require.Equal(t, []int{1, 1, 1}, c.Lines)
	require.Equal(t, value.Number(42), c.Constants[idx])
}

func TestOpCodeString(t *testing.T) {
	require.Equal(t, "OP_RETURN", value.OpReturn.String())
	require.Equal(t, "OP_ADD", value.OpAdd.String())
}
