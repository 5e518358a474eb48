package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/tp25ctl/internal/peripheral"
)

// notifyBuffer is how many notifications may wait for the receiver before
// new ones are dropped.
const notifyBuffer = 64

// link adapts a BLE connection to peripheral.Link.
type link struct {
	conn  Connection
	write Characteristic

	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	discOnce  sync.Once
}

func newLink(conn Connection, writeUUID, notifyUUID string) (*link, error) {
	w, err := conn.DiscoverCharacteristic(writeUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: discover write characteristic: %w", err)
	}
	n, err := conn.DiscoverCharacteristic(notifyUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: discover notify characteristic: %w", err)
	}

	l := &link{
		conn:   conn,
		write:  w,
		frames: make(chan []byte, notifyBuffer),
		closed: make(chan struct{}),
	}
	conn.OnDisconnect(func() {
		slog.Warn("[BLE] disconnected")
		l.markClosed()
	})
	if err := n.Subscribe(l.deliver); err != nil {
		return nil, fmt.Errorf("ble: subscribe to notifications: %w", err)
	}
	return l, nil
}

// deliver is the notification callback. It must not block the BLE stack.
func (l *link) deliver(data []byte) {
	select {
	case <-l.closed:
		return
	default:
	}
	select {
	case l.frames <- data:
	default:
		slog.Warn("[BLE] receiver behind, dropping notification", "frame", fmt.Sprintf("%x", data))
	}
}

func (l *link) Receive(ctx context.Context) ([]byte, error) {
	// Prefer queued frames over a disconnect.
	select {
	case b := <-l.frames:
		return b, nil
	default:
	}
	select {
	case b := <-l.frames:
		return b, nil
	case <-l.closed:
		return nil, fmt.Errorf("ble: receive: %w", peripheral.ErrLinkClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *link) Send(_ context.Context, frame []byte) error {
	select {
	case <-l.closed:
		return fmt.Errorf("ble: send: %w", peripheral.ErrLinkClosed)
	default:
	}
	if err := l.write.Write(frame); err != nil {
		return fmt.Errorf("ble: write: %w", err)
	}
	return nil
}

func (l *link) Close() error {
	l.markClosed()
	var err error
	l.discOnce.Do(func() {
		err = l.conn.Disconnect()
	})
	return err
}

func (l *link) markClosed() {
	l.closeOnce.Do(func() { close(l.closed) })
}

var _ peripheral.Link = (*link)(nil)
