// Package peripheral defines the capabilities the controller needs from a
// connected thermometer: a duplex frame link and a way to find one.
package peripheral

import (
	"context"
	"errors"
)

var (
	// ErrLinkClosed is returned by Receive and Send once the link is gone.
	ErrLinkClosed = errors.New("peripheral: link closed")

	// ErrFatal marks a discovery failure that retrying cannot fix, such as
	// having no radio hardware at all. Finders wrap it; callers test with
	// errors.Is.
	ErrFatal = errors.New("peripheral: fatal discovery error")

	// ErrNotFound is returned by a finder when no matching device was seen.
	// It is recoverable.
	ErrNotFound = errors.New("peripheral: device not found")
)

// Receiver yields raw frames sent by the device.
type Receiver interface {
	// Receive blocks until the next frame arrives. It returns an error
	// wrapping ErrLinkClosed when the link is lost, or ctx.Err().
	Receive(ctx context.Context) ([]byte, error)
}

// Sender writes raw frames to the device.
type Sender interface {
	// Send writes one whole frame.
	Send(ctx context.Context, frame []byte) error
}

// Link is an established duplex connection to a device.
type Link interface {
	Receiver
	Sender
	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Finder searches for a device and connects to it.
type Finder interface {
	// Connect returns a ready Link. Errors wrapping ErrFatal mean no further
	// attempt can succeed; any other error may be retried.
	Connect(ctx context.Context) (Link, error)
}

// IsFatal reports whether err ends discovery permanently.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
