package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fibdrv/internal/device"
	"github.com/roach88/fibdrv/internal/testutil"
)

// testRootOptions returns text-format options with a 1µs step clock and
// sequential session IDs, so listings and IDs are deterministic.
func testRootOptions() *RootOptions {
	return &RootOptions{
		Format: "text",
		DeviceOptions: []device.Option{
			device.WithClock(testutil.NewStepClock(time.Microsecond)),
			device.WithIDGenerator(testutil.NewSequentialIDGenerator("s")),
		},
	}
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
