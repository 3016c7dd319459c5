package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/fibdrv/internal/control"
	"github.com/roach88/fibdrv/internal/device"
	"github.com/roach88/fibdrv/internal/host"
	"github.com/roach88/fibdrv/internal/service"
	"github.com/roach88/fibdrv/internal/testutil"
)

// Error codes recorded in trace events.
const (
	ErrCodeBusy        = "busy"
	ErrCodeClosed      = "closed"
	ErrCodeShortBuffer = "short_buffer"
	ErrCodeNotFound    = "not_found"
	ErrCodePermission  = "permission"
	ErrCodeNoSession   = "no_session"
	ErrCodeOther       = "error"
)

// Harness executes one scenario against a running service.
type Harness struct {
	host     *host.Memory
	svc      *service.Service
	logger   *slog.Logger
	sessions map[string]host.File
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory host and service.
// Execution flow:
// 1. Start the service with a step clock and sequential session IDs
// 2. Execute steps, recording one trace event each
// 3. Check each step's expect clause
// 4. Capture the final statistics listing and stop the service
func Run(scenario *Scenario) (*Result, error) {
	mem := host.NewMemory()
	clock := testutil.NewStepClock(time.Duration(scenario.StepDuration()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios

	svc := service.New(mem, service.Options{
		Logger: logger,
		DeviceOptions: []device.Option{
			device.WithClock(clock),
			device.WithIDGenerator(testutil.NewSequentialIDGenerator("session")),
		},
	})
	if err := svc.Start(); err != nil {
		return nil, fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	h := &Harness{
		host:     mem,
		svc:      svc,
		logger:   logger,
		sessions: make(map[string]host.File),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.AddEvent(ev)
		for _, msg := range checkExpect(ev, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Op, msg))
		}
	}

	stats, err := mem.ReadAttr(svc.Name(), control.AttrResult)
	if err != nil {
		return nil, fmt.Errorf("failed to read final stats: %w", err)
	}
	result.Stats = stats

	// Leave the device free so Stop does not strand open sessions
	for label, f := range h.sessions {
		if err := f.Close(); err != nil && !errors.Is(err, device.ErrClosed) {
			h.logger.Warn("closing session", "session", label, "error", err)
		}
	}

	return result, nil
}

// execute runs one step. Device and host errors are recorded in the event;
// only harness-level problems are returned.
func (h *Harness) execute(i int, step Step) (TraceEvent, error) {
	ev := TraceEvent{Step: i, Op: step.Op}
	name := h.svc.Name()

	switch step.Op {
	case OpReset:
		n, err := h.host.WriteAttr(name, control.AttrReset, step.Input)
		ev.Error = errorCode(err)
		if err == nil {
			ev.Consumed = &n
		}
		return ev, nil
	case OpHint, OpStats:
		attr := control.AttrResult
		if step.Op == OpHint {
			attr = control.AttrReset
		}
		out, err := h.host.ReadAttr(name, attr)
		ev.Output = out
		ev.Error = errorCode(err)
		return ev, nil
	}

	label := step.SessionLabel()
	ev.Session = label

	if step.Op == OpOpen {
		f, err := h.host.Open(name)
		ev.Error = errorCode(err)
		if err == nil {
			h.sessions[label] = f
		}
		return ev, nil
	}

	f, ok := h.sessions[label]
	if !ok {
		ev.Error = ErrCodeNoSession
		return ev, nil
	}

	switch step.Op {
	case OpClose:
		ev.Error = errorCode(f.Close())
	case OpSeek:
		whence, err := step.WhenceValue()
		if err != nil {
			return ev, err
		}
		pos, err := f.Seek(step.Offset, whence)
		ev.Error = errorCode(err)
		if err == nil {
			ev.Position = &pos
		}
	case OpRead:
		size := device.ValueSize
		if step.Size != nil {
			size = *step.Size
		}
		buf := make([]byte, size)
		_, err := f.Read(buf)
		ev.Error = errorCode(err)
		if err == nil {
			v, derr := device.DecodeValue(buf)
			if derr != nil {
				return ev, derr
			}
			ev.Value = &v
			if p, ok := f.(interface{ Position() int64 }); ok {
				pos := p.Position()
				ev.Position = &pos
			}
		}
	case OpWrite:
		n, err := f.Write([]byte(step.Input))
		ev.Error = errorCode(err)
		if err == nil {
			ev.Consumed = &n
		}
	default:
		return ev, fmt.Errorf("unknown op %q", step.Op)
	}
	return ev, nil
}

// errorCode maps device and host errors onto trace codes.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBusy):
		return ErrCodeBusy
	case errors.Is(err, device.ErrClosed):
		return ErrCodeClosed
	case errors.Is(err, io.ErrShortBuffer):
		return ErrCodeShortBuffer
	case errors.Is(err, host.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, host.ErrPermission):
		return ErrCodePermission
	default:
		return ErrCodeOther
	}
}

// checkExpect compares an event against the step's expect clause. An error
// the clause does not name is always reported.
func checkExpect(ev TraceEvent, e *Expect) []string {
	var msgs []string
	want := ""
	if e != nil {
		want = e.Error
	}
	if ev.Error != want {
		switch {
		case want == "":
			msgs = append(msgs, fmt.Sprintf("unexpected error %q", ev.Error))
		case ev.Error == "":
			msgs = append(msgs, fmt.Sprintf("expected error %q, got none", want))
		default:
			msgs = append(msgs, fmt.Sprintf("error = %q, want %q", ev.Error, want))
		}
	}
	if e == nil {
		return msgs
	}
	if e.Position != nil && (ev.Position == nil || *ev.Position != *e.Position) {
		msgs = append(msgs, fmt.Sprintf("position = %s, want %d", fmtInt64(ev.Position), *e.Position))
	}
	if e.Value != nil && (ev.Value == nil || *ev.Value != *e.Value) {
		msgs = append(msgs, fmt.Sprintf("value = %s, want %d", fmtInt64(ev.Value), *e.Value))
	}
	if e.Consumed != nil && (ev.Consumed == nil || *ev.Consumed != *e.Consumed) {
		got := "none"
		if ev.Consumed != nil {
			got = fmt.Sprint(*ev.Consumed)
		}
		msgs = append(msgs, fmt.Sprintf("consumed = %s, want %d", got, *e.Consumed))
	}
	if e.Output != nil && ev.Output != *e.Output {
		msgs = append(msgs, fmt.Sprintf("output = %q, want %q", ev.Output, *e.Output))
	}
	return msgs
}

func fmtInt64(p *int64) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprint(*p)
}
