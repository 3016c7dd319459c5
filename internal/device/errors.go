package device

import "errors"

// ErrBusy is returned by Open while another session holds the device.
var ErrBusy = errors.New("device busy")

// ErrClosed is returned by operations on a session that was already closed.
var ErrClosed = errors.New("session closed")

// IsBusy reports whether err is, or wraps, ErrBusy.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
