package host

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// firstMajor is the first major number handed out by Memory.
const firstMajor = 240

// Memory is an in-process Host.
//
// Names are NFC-normalized at the registration boundary so that visually
// identical names always refer to the same registration.
//
// Thread-safety: Memory is safe for concurrent use. Attribute callbacks and
// Opener.Open run outside the registry lock.
type Memory struct {
	mu         sync.Mutex
	identities map[string]Identity
	groups     map[string]Group
	nodes      map[string]Opener
	nextMajor  int
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{
		identities: make(map[string]Identity),
		groups:     make(map[string]Group),
		nodes:      make(map[string]Opener),
		nextMajor:  firstMajor,
	}
}

func canonicalName(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	if n == "" || strings.ContainsAny(n, "/\x00") {
		return "", fmt.Errorf("%w: name %q", ErrInvalid, name)
	}
	return n, nil
}

// RegisterControlGroup adds an attribute group.
func (m *Memory) RegisterControlGroup(g Group) error {
	name, err := canonicalName(g.Name)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(g.Attrs))
	for _, a := range g.Attrs {
		attr, err := canonicalName(a.Name)
		if err != nil {
			return err
		}
		if seen[attr] {
			return fmt.Errorf("%w: duplicate attribute %q", ErrInvalid, attr)
		}
		seen[attr] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[name]; ok {
		return fmt.Errorf("control group %q: %w", name, ErrExists)
	}
	g.Name = name
	m.groups[name] = g
	return nil
}

// UnregisterControlGroup removes an attribute group.
func (m *Memory) UnregisterControlGroup(name string) error {
	name, err := canonicalName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[name]; !ok {
		return fmt.Errorf("control group %q: %w", name, ErrNotFound)
	}
	delete(m.groups, name)
	return nil
}

// RegisterIdentity allocates a major number for name, minor 0.
func (m *Memory) RegisterIdentity(name string) (Identity, error) {
	name, err := canonicalName(name)
	if err != nil {
		return Identity{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[name]; ok {
		return Identity{}, fmt.Errorf("identity %q: %w", name, ErrExists)
	}
	id := Identity{Name: name, Major: m.nextMajor}
	m.nextMajor++
	m.identities[name] = id
	return id, nil
}

// UnregisterIdentity releases an identity. Its node must already be gone.
func (m *Memory) UnregisterIdentity(id Identity) error {
	name, err := canonicalName(id.Name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.identities[name]
	if !ok || cur.Major != id.Major || cur.Minor != id.Minor {
		return fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}
	if _, ok := m.nodes[name]; ok {
		return fmt.Errorf("identity %s: node still present: %w", id, ErrInvalid)
	}
	delete(m.identities, name)
	return nil
}

// CreateNode publishes a device node for a registered identity.
func (m *Memory) CreateNode(id Identity, o Opener) error {
	if o == nil {
		return fmt.Errorf("%w: nil opener", ErrInvalid)
	}
	name, err := canonicalName(id.Name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.identities[name]; !ok || cur != id {
		return fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}
	if _, ok := m.nodes[name]; ok {
		return fmt.Errorf("node %q: %w", name, ErrExists)
	}
	m.nodes[name] = o
	return nil
}

// RemoveNode withdraws a device node.
func (m *Memory) RemoveNode(id Identity) error {
	name, err := canonicalName(id.Name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[name]; !ok {
		return fmt.Errorf("node %q: %w", name, ErrNotFound)
	}
	delete(m.nodes, name)
	return nil
}

// Open opens the device node called name.
func (m *Memory) Open(name string) (File, error) {
	name, err := canonicalName(name)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	o, ok := m.nodes[name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("node %q: %w", name, ErrNotFound)
	}
	return o.Open()
}

// ReadAttr returns the content of group/attr.
func (m *Memory) ReadAttr(group, attr string) (string, error) {
	a, err := m.lookupAttr(group, attr)
	if err != nil {
		return "", err
	}
	if a.Show == nil || a.Mode&0o444 == 0 {
		return "", fmt.Errorf("attribute %s/%s: %w", group, attr, ErrPermission)
	}
	return a.Show(), nil
}

// WriteAttr writes input to group/attr and returns the accepted byte count.
func (m *Memory) WriteAttr(group, attr, input string) (int, error) {
	a, err := m.lookupAttr(group, attr)
	if err != nil {
		return 0, err
	}
	if !a.Writable() {
		return 0, fmt.Errorf("attribute %s/%s: %w", group, attr, ErrPermission)
	}
	return a.Store(input), nil
}

func (m *Memory) lookupAttr(group, attr string) (Attribute, error) {
	g, err := canonicalName(group)
	if err != nil {
		return Attribute{}, err
	}
	an, err := canonicalName(attr)
	if err != nil {
		return Attribute{}, err
	}
	m.mu.Lock()
	grp, ok := m.groups[g]
	m.mu.Unlock()
	if !ok {
		return Attribute{}, fmt.Errorf("control group %q: %w", g, ErrNotFound)
	}
	for _, a := range grp.Attrs {
		if norm.NFC.String(a.Name) == an {
			return a, nil
		}
	}
	return Attribute{}, fmt.Errorf("attribute %s/%s: %w", g, an, ErrNotFound)
}

// Inventory lists what is currently registered.
type Inventory struct {
	Identities []Identity
	Groups     []string
	Nodes      []string
}

// Empty reports whether nothing is registered.
func (inv Inventory) Empty() bool {
	return len(inv.Identities) == 0 && len(inv.Groups) == 0 && len(inv.Nodes) == 0
}

// Inventory returns a sorted listing of all registrations.
func (m *Memory) Inventory() Inventory {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inv Inventory
	for _, id := range m.identities {
		inv.Identities = append(inv.Identities, id)
	}
	for name := range m.groups {
		inv.Groups = append(inv.Groups, name)
	}
	for name := range m.nodes {
		inv.Nodes = append(inv.Nodes, name)
	}
	sort.Slice(inv.Identities, func(i, j int) bool { return inv.Identities[i].Name < inv.Identities[j].Name })
	sort.Strings(inv.Groups)
	sort.Strings(inv.Nodes)
	return inv
}
