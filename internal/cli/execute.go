package cli

import (
	"context"
	"errors"
	"io"

	"github.com/roach88/fibdrv/internal/device"
	"github.com/roach88/fibdrv/internal/service"
)

// Error codes reported by Execute.
const (
	CodeBusy    = "E_BUSY"
	CodeStart   = "E_START"
	CodeCommand = "E_COMMAND"
	CodeFailed  = "E_FAILED"
)

// Execute runs the root command with args and returns the process exit
// code. Errors are reported on stderr in the selected --format. Cancelling
// ctx interrupts long-running commands such as a rate-limited bench.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	format, _ := cmd.PersistentFlags().GetString("format")
	if !isValidFormat(format) {
		format = "text"
	}
	verbose, _ := cmd.PersistentFlags().GetBool("verbose")
	f := &OutputFormatter{Format: format, Writer: stderr, Verbose: verbose}

	var details any
	if stage, ok := service.FailedStage(err); ok {
		details = map[string]string{"stage": string(stage)}
	}
	_ = f.Error(errorCode(err), err.Error(), details)
	return GetExitCode(err)
}

// errorCode classifies err for CLIError.Code.
func errorCode(err error) string {
	var se *service.StartError
	switch {
	case device.IsBusy(err):
		return CodeBusy
	case errors.As(err, &se):
		return CodeStart
	case GetExitCode(err) == ExitCommandError:
		return CodeCommand
	default:
		return CodeFailed
	}
}
