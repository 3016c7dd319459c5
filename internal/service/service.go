// Package service owns the Fibonacci device's lifecycle.
//
// A Service is the single aggregate holding the statistics table, the
// control plane and the device. Start brings them up against a Host in
// dependency order:
//
//  1. allocate the statistics table
//  2. register the control-plane attribute group
//  3. register the device identity
//  4. create the device node
//
// If any stage fails, every completed stage is undone in reverse order
// before Start returns. Registrations the host refuses to drop are kept on
// record and retried by the next Stop or Start.
//
// Stop tears everything down, continuing past individual failures, and is
// safe to call any number of times.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/fibdrv/internal/control"
	"github.com/roach88/fibdrv/internal/device"
	"github.com/roach88/fibdrv/internal/host"
	"github.com/roach88/fibdrv/internal/stats"
)

// DefaultName is the identity, node and control group name.
const DefaultName = "fibonacci"

// Allocator creates the statistics table.
type Allocator func() (*stats.Table, error)

func defaultAllocator() (*stats.Table, error) {
	return stats.New(), nil
}

// Options configures a Service.
type Options struct {
	// Name is used for the identity, the device node and the control group.
	// Empty means DefaultName.
	Name string

	// RenderLimit bounds the control plane's listing; <= 0 uses the default.
	RenderLimit int

	// Allocator overrides how the statistics table is created.
	Allocator Allocator

	// Logger receives lifecycle events; nil uses slog.Default().
	Logger *slog.Logger

	// DeviceOptions are passed to device.New.
	DeviceOptions []device.Option
}

// Service is the device aggregate.
//
// Thread-safety: Start and Stop are serialized internally. Accessors may be
// called concurrently with each other.
type Service struct {
	mu     sync.Mutex
	host   host.Host
	opts   Options
	logger *slog.Logger

	stats    *stats.Table
	control  *control.Plane
	device   *device.Device
	identity host.Identity

	controlRegistered  bool
	identityRegistered bool
	nodeCreated        bool
	running            bool
}

// New creates a stopped service that will register with h.
func New(h host.Host, opts Options) *Service {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Allocator == nil {
		opts.Allocator = defaultAllocator
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		host:   h,
		opts:   opts,
		logger: logger.With("device", opts.Name),
	}
}

// Start brings the service up. On failure it returns a *StartError after
// rolling back every completed stage.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}
	if s.registered() {
		s.logger.Warn("retrying teardown left by stop")
		if err := s.unwind(); err != nil {
			return fmt.Errorf("%w: %w", ErrTeardownIncomplete, err)
		}
	}

	s.logger.Debug("allocating statistics")
	tbl, err := s.opts.Allocator()
	if err == nil && tbl == nil {
		err = errors.New("allocator returned no table")
	}
	if err != nil {
		return s.fail(newStartError(StageStats, ErrResourceExhausted, err))
	}
	s.stats = tbl
	s.control = control.New(tbl, s.opts.RenderLimit)

	s.logger.Debug("registering control group")
	if err := s.host.RegisterControlGroup(s.control.Group(s.opts.Name)); err != nil {
		return s.fail(newStartError(StageControl, ErrRegistration, err))
	}
	s.controlRegistered = true

	s.logger.Debug("registering identity")
	id, err := s.host.RegisterIdentity(s.opts.Name)
	if err != nil {
		return s.fail(newStartError(StageIdentity, ErrRegistration, err))
	}
	s.identity = id
	s.identityRegistered = true

	devOpts := append([]device.Option{device.WithLogger(s.logger)}, s.opts.DeviceOptions...)
	s.device = device.New(tbl, devOpts...)

	s.logger.Debug("creating device node", "identity", id.String())
	if err := s.host.CreateNode(id, host.OpenerFunc(s.open)); err != nil {
		return s.fail(newStartError(StageNode, ErrRegistration, err))
	}
	s.nodeCreated = true

	s.running = true
	s.logger.Info("device ready", "identity", id.String())
	return nil
}

// open adapts device.Open to host.Opener without leaking a typed nil. A
// node opener held past Stop reports ErrNotFound.
func (s *Service) open() (host.File, error) {
	s.mu.Lock()
	dev := s.device
	s.mu.Unlock()
	if dev == nil {
		return nil, fmt.Errorf("device %q: %w", s.opts.Name, host.ErrNotFound)
	}
	sess, err := dev.Open()
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// fail rolls back whatever Start completed and returns se.
func (s *Service) fail(se *StartError) error {
	s.logger.Error("start failed", "stage", se.Stage, "error", se.Err)
	se.Rollback = s.unwind()
	return se
}

// registered reports whether any host registration is outstanding.
func (s *Service) registered() bool {
	return s.controlRegistered || s.identityRegistered || s.nodeCreated
}

// unwind undoes completed stages in reverse start order.
func (s *Service) unwind() error {
	var errs []error
	errs = appendErr(errs, s.removeNode())
	errs = appendErr(errs, s.unregisterIdentity())
	errs = appendErr(errs, s.unregisterControl())
	s.releaseStats()
	s.device = nil
	return errors.Join(errs...)
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

// The teardown steps below clear their flag only on success, so a later
// Stop or Start retries whatever the host refused.

func (s *Service) unregisterControl() error {
	if !s.controlRegistered {
		return nil
	}
	if err := s.host.UnregisterControlGroup(s.opts.Name); err != nil {
		return fmt.Errorf("unregister control group: %w", err)
	}
	s.controlRegistered = false
	return nil
}

func (s *Service) removeNode() error {
	if !s.nodeCreated {
		return nil
	}
	if err := s.host.RemoveNode(s.identity); err != nil {
		return fmt.Errorf("remove node: %w", err)
	}
	s.nodeCreated = false
	return nil
}

// unregisterIdentity leaves the identity alone while its node is still
// published; the host refuses that anyway.
func (s *Service) unregisterIdentity() error {
	if !s.identityRegistered || s.nodeCreated {
		return nil
	}
	if err := s.host.UnregisterIdentity(s.identity); err != nil {
		return fmt.Errorf("unregister identity: %w", err)
	}
	s.identityRegistered = false
	s.identity = host.Identity{}
	return nil
}

func (s *Service) releaseStats() {
	s.stats = nil
	s.control = nil
}

// Stop tears the service down: it releases the statistics table, then
// unregisters the control group, removes the device node and finally the
// identity. It keeps going past failures and returns them joined; the
// identity stays registered while its node could not be removed. Whatever
// the host refused is retried by the next Stop or Start. Calling Stop on a
// stopped service does nothing.
//
// Sessions still open keep working against the released table; they are
// simply no longer reachable through the host.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running && !s.registered() && s.stats == nil {
		return nil
	}

	var errs []error
	s.releaseStats()
	errs = appendErr(errs, s.unregisterControl())
	errs = appendErr(errs, s.removeNode())
	errs = appendErr(errs, s.unregisterIdentity())
	s.device = nil
	s.running = false

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("stop finished with errors", "error", err, "pending", s.registered())
	} else {
		s.logger.Info("device stopped")
	}
	return err
}

// Running reports whether Start succeeded and Stop has not run since.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Name returns the registration name.
func (s *Service) Name() string {
	return s.opts.Name
}

// Identity returns the registered identity; zero when stopped.
func (s *Service) Identity() host.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Device returns the device; nil when stopped.
func (s *Service) Device() *device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Control returns the control plane; nil when stopped.
func (s *Service) Control() *control.Plane {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control
}

// Stats returns the statistics table; nil when stopped.
func (s *Service) Stats() *stats.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
