// Package host models the environment the device registers itself with:
// an identity registry (major/minor numbers), attribute groups for the
// control plane, and device nodes that clients open by name.
//
// The Host interface is what the lifecycle needs. Memory is an in-process
// implementation that also provides the client side (Open, ReadAttr,
// WriteAttr) used by the CLI and the scenario harness.
package host

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// Registration errors.
var (
	ErrExists     = errors.New("already registered")
	ErrNotFound   = errors.New("not registered")
	ErrPermission = errors.New("permission denied")
	ErrInvalid    = errors.New("invalid registration")
)

// Identity is a registered device identity.
type Identity struct {
	Name  string
	Major int
	Minor int
}

// String formats the identity as "name (major:minor)".
func (id Identity) String() string {
	return fmt.Sprintf("%s (%d:%d)", id.Name, id.Major, id.Minor)
}

// Attribute is one readable and optionally writable control endpoint.
type Attribute struct {
	Name string
	Mode fs.FileMode

	// Show renders the attribute's content.
	Show func() string

	// Store consumes written input and reports how many bytes it accepted.
	// Nil for read-only attributes.
	Store func(input string) int
}

// Writable reports whether the attribute accepts writes.
func (a Attribute) Writable() bool {
	return a.Store != nil && a.Mode&0o200 != 0
}

// Group is a named set of attributes.
type Group struct {
	Name  string
	Attrs []Attribute
}

// File is what a device node hands out on open.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Opener creates File handles for a device node.
type Opener interface {
	Open() (File, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func() (File, error)

// Open calls f.
func (f OpenerFunc) Open() (File, error) {
	return f()
}

// Host registers the pieces a device exposes.
type Host interface {
	RegisterControlGroup(g Group) error
	UnregisterControlGroup(name string) error
	RegisterIdentity(name string) (Identity, error)
	UnregisterIdentity(id Identity) error
	CreateNode(id Identity, o Opener) error
	RemoveNode(id Identity) error
}
