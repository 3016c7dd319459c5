package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCommand(t *testing.T) {
	out, _, err := execute(t, NewReadCommand(testRootOptions()), "0", "1", "10", "92")
	require.NoError(t, err)
	assert.Equal(t, "0 0\n1 1\n10 55\n92 7540113804746346429\n", out)
}

func TestReadCommand_Clamps(t *testing.T) {
	out, _, err := execute(t, NewReadCommand(testRootOptions()), "100", "--", "-5")
	require.NoError(t, err)
	assert.Equal(t, "92 7540113804746346429\n0 0\n", out)
}

func TestReadCommand_InvalidIndex(t *testing.T) {
	_, _, err := execute(t, NewReadCommand(testRootOptions()), "ten")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid index "ten"`)
}

func TestReadCommand_MissingArgs(t *testing.T) {
	_, _, err := execute(t, NewReadCommand(testRootOptions()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestReadCommand_JSON(t *testing.T) {
	opts := testRootOptions()
	opts.Format = "json"

	out, _, err := execute(t, NewReadCommand(opts), "100")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []ReadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []ReadResult{{Requested: 100, Index: 92, Value: 7540113804746346429}}, resp.Data)
}

func TestSeqCommand(t *testing.T) {
	out, _, err := execute(t, NewSeqCommand(testRootOptions()), "--from", "5", "--to", "9")
	require.NoError(t, err)
	assert.Equal(t, "5 5\n6 8\n7 13\n8 21\n9 34\n", out)
}

func TestSeqCommand_ClampsRange(t *testing.T) {
	out, _, err := execute(t, NewSeqCommand(testRootOptions()), "--from", "90", "--to", "500")
	require.NoError(t, err)
	assert.Equal(t, "90 2880067194370816120\n91 4660046610375530309\n92 7540113804746346429\n", out)
}

func TestSeqCommand_DefaultRangeCoversAll(t *testing.T) {
	out, _, err := execute(t, NewSeqCommand(testRootOptions()))
	require.NoError(t, err)
	assert.Len(t, splitLines(out), 93)
}

func TestSeqCommand_InvertedRange(t *testing.T) {
	_, _, err := execute(t, NewSeqCommand(testRootOptions()), "--from", "9", "--to", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--from 9 is after --to 1")
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
