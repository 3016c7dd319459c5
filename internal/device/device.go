// Package device exposes the Fibonacci sequence through an exclusive,
// file-like session.
//
// # Session Model
//
// A Device admits one Session at a time. Open is a non-blocking
// test-and-set on the device's Gate: while a session is live every other
// Open fails with ErrBusy. Operations inside a session are not locked; the
// gate already guarantees a single holder.
//
// # Position
//
// The session's cursor doubles as the sequence index. Seek moves it with
// clamping to [0, fib.MaxIndex]. Reads compute F(position) and never advance
// the cursor.
//
// # Statistics
//
// Every read is timed with the device Clock and recorded into the shared
// stats.Table, which the control plane may render or reset concurrently.
package device

import (
	"encoding/binary"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/fibdrv/internal/fib"
	"github.com/roach88/fibdrv/internal/stats"
)

// ValueSize is the byte width of a value returned by Session.Read.
const ValueSize = 8

// WriteResult is what Session.Write reports regardless of its input.
const WriteResult = 1

// Clock supplies monotonic timestamps for read timing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock, which carries a monotonic reading.
func SystemClock() Clock {
	return systemClock{}
}

// IDGenerator produces session identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a Device.
type Option func(*Device)

// WithClock overrides the clock used to time reads.
func WithClock(c Clock) Option {
	return func(d *Device) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithIDGenerator overrides how session IDs are generated.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Device) {
		if g != nil {
			d.ids = g
		}
	}
}

// WithLogger sets the logger used for session events.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

// Device is the exclusive-access Fibonacci device.
//
// The stats table is referenced, not owned: the lifecycle that created the
// table is responsible for it.
type Device struct {
	gate   Gate
	stats  *stats.Table
	clock  Clock
	ids    IDGenerator
	logger *slog.Logger
}

// New creates a device recording into table.
func New(table *stats.Table, opts ...Option) *Device {
	d := &Device{
		stats:  table,
		clock:  SystemClock(),
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open begins a session with its cursor at index 0.
// It returns ErrBusy immediately if a session is already open.
func (d *Device) Open() (*Session, error) {
	if !d.gate.TryAcquire() {
		d.logger.Warn("fibdrv is in use")
		return nil, ErrBusy
	}
	s := &Session{
		id:     d.ids.Generate(),
		device: d,
	}
	d.logger.Debug("session opened", "session", s.id)
	return s, nil
}

// InUse reports whether a session is currently open.
func (d *Device) InUse() bool {
	return d.gate.Held()
}

// Stats returns the table the device records into.
func (d *Device) Stats() *stats.Table {
	return d.stats
}

// Session is one exclusive holder of the device.
//
// A Session is owned by a single caller and is not safe for concurrent use.
type Session struct {
	id     string
	device *Device
	cursor Cursor
	closed bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Position returns the cursor's current index.
func (s *Session) Position() int64 {
	return s.cursor.Position()
}

// ReadValue computes F(position), records the elapsed time against the
// position, and returns both. The cursor does not move.
func (s *Session) ReadValue() (int64, time.Duration, error) {
	if s.closed {
		return 0, 0, ErrClosed
	}
	k := int(s.cursor.Position())

	d := s.device
	begin := d.clock.Now()
	v := fib.Compute(k)
	elapsed := d.clock.Now().Sub(begin)

	if d.stats != nil {
		d.stats.Record(k, elapsed)
	}
	return v, elapsed, nil
}

// Read stores F(position) into p as a little-endian int64 and returns
// ValueSize. Reads never reach EOF: reading again yields the same index.
func (s *Session) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) < ValueSize {
		return 0, io.ErrShortBuffer
	}
	v, _, err := s.ReadValue()
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint64(p, uint64(v))
	return ValueSize, nil
}

// Write discards p and reports WriteResult. The device has no writable
// state.
func (s *Session) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return WriteResult, nil
}

// Seek moves the cursor; see Cursor.Seek. It returns an error only when the
// session is closed.
func (s *Session) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.cursor.Seek(offset, whence), nil
}

// Close ends the session and frees the device for the next Open.
// Closing twice returns ErrClosed and leaves the gate alone.
func (s *Session) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.device.gate.Release()
	s.device.logger.Debug("session closed", "session", s.id)
	return nil
}

// DecodeValue reverses the encoding written by Session.Read.
func DecodeValue(p []byte) (int64, error) {
	if len(p) < ValueSize {
		return 0, io.ErrShortBuffer
	}
	return int64(binary.LittleEndian.Uint64(p)), nil
}
