package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runShellScript(t *testing.T, lines ...string) string {
	t.Helper()
	cmd := NewShellCommand(testRootOptions())
	cmd.SetIn(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	out, _, err := execute(t, cmd)
	require.NoError(t, err)
	return out
}

func TestShell_Session(t *testing.T) {
	out := runShellScript(t,
		"open",
		"seek start 10",
		"read",
		"read",
		"open",
		"write hello",
		"stats",
		"reset x",
		"stats",
		"reset 1",
		"stats",
		"hint",
		"close",
		"close",
		"seek start 1",
		"bogus",
		"quit",
		"read",
	)

	want := strings.Join([]string{
		"opened s-1",
		"position 10",
		"10 55",
		"10 55",
		"error: device busy",
		"wrote 1",
		"10: 2000 / 2",
		"consumed 1",
		"10: 2000 / 2",
		"consumed 1",
		"store 1 to trigger stat data reset",
		"closed",
		"error: no open session",
		"error: no open session",
		"unknown command: bogus (type 'help' for commands)",
	}, "\n") + "\n"
	assert.Equal(t, want, out)
}

func TestShell_SeekWhence(t *testing.T) {
	out := runShellScript(t,
		"open",
		"seek end 2",
		"seek current 5",
		"seek cur -100",
		"seek 7 3",
		"seek start",
		"seek sideways 1",
		"seek start x",
	)

	assert.Equal(t, strings.Join([]string{
		"opened s-1",
		"position 90",
		"position 92",
		"position 0",
		"position 0",
		"usage: seek <whence> <offset>",
		`error: unknown whence "sideways"`,
		`error: invalid offset "x"`,
	}, "\n")+"\n", out)
}

func TestShell_EOFReleasesSession(t *testing.T) {
	opts := testRootOptions()
	rt, err := startRuntime(opts)
	require.NoError(t, err)
	defer rt.stop()

	var out bytes.Buffer
	sh := &Shell{rt: rt, out: &out}
	assert.False(t, sh.Exec("open"))
	sh.release()

	f, err := rt.open()
	require.NoError(t, err, "released session must free the device")
	require.NoError(t, f.Close())
}

func TestShell_ExecQuitAndHelp(t *testing.T) {
	rt, err := startRuntime(testRootOptions())
	require.NoError(t, err)
	defer rt.stop()

	var out bytes.Buffer
	sh := &Shell{rt: rt, out: &out}
	assert.False(t, sh.Exec("   "))
	assert.False(t, sh.Exec("help"))
	assert.True(t, sh.Exec("QUIT"))
	assert.True(t, sh.Exec("exit"))
	assert.Equal(t, strings.Join(shellCommands, " ")+"\n", out.String())
}

func TestParseWhence(t *testing.T) {
	tests := map[string]int{
		"start":   io.SeekStart,
		"SET":     io.SeekStart,
		"current": io.SeekCurrent,
		"cur":     io.SeekCurrent,
		"end":     io.SeekEnd,
		"9":       9,
	}
	for in, want := range tests {
		got, err := parseWhence(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseWhence("middle")
	assert.Error(t, err)
}

func TestCompleteShell(t *testing.T) {
	assert.Equal(t, []string{"read", "reset"}, completeShell("re"))
	assert.Equal(t, []string{"seek", "stats"}, completeShell("S"))
	assert.Nil(t, completeShell("zz"))
}
