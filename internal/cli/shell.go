package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/roach88/fibdrv/internal/device"
	"github.com/roach88/fibdrv/internal/host"
)

const shellPrompt = "fibdrv> "

// NewShellCommand creates the shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive console over the device",
		Long: `Start a line-oriented console with one device session slot.

Commands:
  open                  open a session (fails with busy if one is open)
  close                 close the session
  seek <whence> <off>   whence: start, current, end or a number
  read                  read F(position)
  write <text>          write to the session
  stats                 show the result listing
  hint                  show the reset attribute
  reset <text>          write to the reset attribute
  help                  show this list
  quit                  leave the shell`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(rootOpts, cmd)
		},
	}
	return cmd
}

// lineReader yields input lines; io.EOF ends the session.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// scanReader reads lines from a plain reader without echoing prompts.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) Close() error { return nil }

// linerReader adds line editing and persistent history on a terminal.
type linerReader struct {
	state   *liner.State
	history string
}

func newLinerReader() *linerReader {
	r := &linerReader{state: liner.NewLiner(), history: historyFile()}
	r.state.SetCtrlCAborts(true)
	r.state.SetCompleter(completeShell)
	if r.history != "" {
		if f, err := os.Open(r.history); err == nil {
			r.state.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err == nil && strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, err
}

func (r *linerReader) Close() error {
	if r.history != "" {
		var buf bytes.Buffer
		if _, err := r.state.WriteHistory(&buf); err == nil {
			_ = atomic.WriteFile(r.history, &buf)
		}
	}
	return r.state.Close()
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fibdrv_history")
}

var shellCommands = []string{"open", "close", "seek", "read", "write", "stats", "hint", "reset", "help", "quit"}

func completeShell(line string) []string {
	var out []string
	for _, c := range shellCommands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	return out
}

func runShell(opts *RootOptions, cmd *cobra.Command) error {
	rt, err := startRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.stop()

	var in lineReader
	if r := cmd.InOrStdin(); r == os.Stdin {
		in = newLinerReader()
	} else {
		in = &scanReader{sc: bufio.NewScanner(r)}
	}
	defer in.Close()

	sh := &Shell{rt: rt, out: cmd.OutOrStdout()}
	defer sh.release()

	for {
		line, err := in.Prompt(shellPrompt)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return WrapExitError(ExitFailure, "reading input", err)
		}
		if sh.Exec(line) {
			return nil
		}
	}
}

// Shell executes console commands against one session slot.
type Shell struct {
	rt      *runtime
	out     io.Writer
	session host.File
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(s.out, strings.Join(shellCommands, " "))
	case "open":
		s.open()
	case "close":
		s.close()
	case "seek":
		s.seek(rest)
	case "read":
		s.read()
	case "write":
		s.write(rest)
	case "stats":
		s.show(s.rt.listing())
	case "hint":
		s.show(s.rt.hint())
	case "reset":
		n, err := s.rt.reset(rest)
		if err != nil {
			s.fail(err)
			return false
		}
		fmt.Fprintf(s.out, "consumed %d\n", n)
	default:
		fmt.Fprintf(s.out, "unknown command: %s (type 'help' for commands)\n", name)
	}
	return false
}

func (s *Shell) open() {
	f, err := s.rt.open()
	if err != nil {
		s.fail(err)
		return
	}
	s.session = f
	if id, ok := f.(interface{ ID() string }); ok {
		fmt.Fprintf(s.out, "opened %s\n", id.ID())
		return
	}
	fmt.Fprintln(s.out, "opened")
}

func (s *Shell) close() {
	if s.session == nil {
		fmt.Fprintln(s.out, "error: no open session")
		return
	}
	err := s.session.Close()
	s.session = nil
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintln(s.out, "closed")
}

func (s *Shell) seek(args string) {
	if s.session == nil {
		fmt.Fprintln(s.out, "error: no open session")
		return
	}
	fields := strings.Fields(args)
	if len(fields) != 2 {
		fmt.Fprintln(s.out, "usage: seek <whence> <offset>")
		return
	}
	whence, err := parseWhence(fields[0])
	if err != nil {
		s.fail(err)
		return
	}
	offset, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Fprintf(s.out, "error: invalid offset %q\n", fields[1])
		return
	}
	pos, err := s.session.Seek(offset, whence)
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "position %d\n", pos)
}

func (s *Shell) read() {
	if s.session == nil {
		fmt.Fprintln(s.out, "error: no open session")
		return
	}
	pos, err := s.session.Seek(0, io.SeekCurrent)
	if err != nil {
		s.fail(err)
		return
	}
	buf := make([]byte, device.ValueSize)
	if _, err := s.session.Read(buf); err != nil {
		s.fail(err)
		return
	}
	v, _ := device.DecodeValue(buf)
	fmt.Fprintf(s.out, "%d %d\n", pos, v)
}

func (s *Shell) write(text string) {
	if s.session == nil {
		fmt.Fprintln(s.out, "error: no open session")
		return
	}
	n, err := s.session.Write([]byte(text))
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "wrote %d\n", n)
}

func (s *Shell) show(text string, err error) {
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprint(s.out, text)
}

func (s *Shell) fail(err error) {
	fmt.Fprintf(s.out, "error: %v\n", err)
}

// release closes a session left open when the shell exits.
func (s *Shell) release() {
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
}

// parseWhence accepts start, current, end (or set, cur) and raw integers.
func parseWhence(s string) (int, error) {
	switch strings.ToLower(s) {
	case "start", "set":
		return io.SeekStart, nil
	case "current", "cur":
		return io.SeekCurrent, nil
	case "end":
		return io.SeekEnd, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown whence %q", s)
	}
	return n, nil
}
