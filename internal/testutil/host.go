package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/fibdrv/internal/host"
)

// Host operation names accepted by FaultyHost.FailOn.
const (
	OpRegisterControlGroup   = "RegisterControlGroup"
	OpUnregisterControlGroup = "UnregisterControlGroup"
	OpRegisterIdentity       = "RegisterIdentity"
	OpUnregisterIdentity     = "UnregisterIdentity"
	OpCreateNode             = "CreateNode"
	OpRemoveNode             = "RemoveNode"
)

// FaultyHost wraps a host.Memory and fails chosen operations.
//
// Every call, failed or not, is appended to Calls so tests can assert the
// exact order of registration and teardown.
//
// Thread-safety: FaultyHost is safe for concurrent use via internal mutex.
type FaultyHost struct {
	*host.Memory

	mu     sync.Mutex
	faults map[string]error
	calls  []string
}

// NewFaultyHost creates a FaultyHost over a fresh host.Memory.
func NewFaultyHost() *FaultyHost {
	return &FaultyHost{
		Memory: host.NewMemory(),
		faults: make(map[string]error),
	}
}

// FailOn makes op return err until cleared with a nil err.
func (h *FaultyHost) FailOn(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.faults, op)
		return
	}
	h.faults[op] = err
}

// Calls returns the operations invoked so far, in order.
func (h *FaultyHost) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *FaultyHost) enter(op string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, op)
	if err, ok := h.faults[op]; ok {
		return fmt.Errorf("injected %s failure: %w", op, err)
	}
	return nil
}

// RegisterControlGroup implements host.Host.
func (h *FaultyHost) RegisterControlGroup(g host.Group) error {
	if err := h.enter(OpRegisterControlGroup); err != nil {
		return err
	}
	return h.Memory.RegisterControlGroup(g)
}

// UnregisterControlGroup implements host.Host.
func (h *FaultyHost) UnregisterControlGroup(name string) error {
	if err := h.enter(OpUnregisterControlGroup); err != nil {
		return err
	}
	return h.Memory.UnregisterControlGroup(name)
}

// RegisterIdentity implements host.Host.
func (h *FaultyHost) RegisterIdentity(name string) (host.Identity, error) {
	if err := h.enter(OpRegisterIdentity); err != nil {
		return host.Identity{}, err
	}
	return h.Memory.RegisterIdentity(name)
}

// UnregisterIdentity implements host.Host.
func (h *FaultyHost) UnregisterIdentity(id host.Identity) error {
	if err := h.enter(OpUnregisterIdentity); err != nil {
		return err
	}
	return h.Memory.UnregisterIdentity(id)
}

// CreateNode implements host.Host.
func (h *FaultyHost) CreateNode(id host.Identity, o host.Opener) error {
	if err := h.enter(OpCreateNode); err != nil {
		return err
	}
	return h.Memory.CreateNode(id, o)
}

// RemoveNode implements host.Host.
func (h *FaultyHost) RemoveNode(id host.Identity) error {
	if err := h.enter(OpRemoveNode); err != nil {
		return err
	}
	return h.Memory.RemoveNode(id)
}
