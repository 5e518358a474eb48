package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chaz8081/tp25ctl/internal/peripheral"
)

// FinderOptions configures device discovery.
type FinderOptions struct {
	Name           string        // advertised local name to match
	ScanTimeout    time.Duration // how long one scan may run
	WriteCharUUID  string
	NotifyCharUUID string
}

// DefaultFinderOptions returns the identifiers of a stock TP25.
func DefaultFinderOptions() FinderOptions {
	return FinderOptions{
		Name:           DeviceName,
		ScanTimeout:    10 * time.Second,
		WriteCharUUID:  WriteCharUUID,
		NotifyCharUUID: NotifyCharUUID,
	}
}

// Finder implements peripheral.Finder over a BLE adapter.
type Finder struct {
	adapter Adapter
	opts    FinderOptions

	enableOnce sync.Once
	enableErr  error
}

// NewFinder returns a Finder using adapter. Zero option fields take their
// defaults.
func NewFinder(adapter Adapter, opts FinderOptions) *Finder {
	def := DefaultFinderOptions()
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = def.ScanTimeout
	}
	if opts.WriteCharUUID == "" {
		opts.WriteCharUUID = def.WriteCharUUID
	}
	if opts.NotifyCharUUID == "" {
		opts.NotifyCharUUID = def.NotifyCharUUID
	}
	return &Finder{adapter: adapter, opts: opts}
}

// Connect scans for the first matching device, connects and subscribes to
// its notifications. A radio that cannot be enabled is fatal; not finding a
// device or failing to connect is not.
func (f *Finder) Connect(ctx context.Context) (peripheral.Link, error) {
	f.enableOnce.Do(func() {
		f.enableErr = f.adapter.Enable()
	})
	if f.enableErr != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w: %w", peripheral.ErrFatal, f.enableErr)
	}

	sctx, cancel := context.WithTimeout(ctx, f.opts.ScanTimeout)
	devices, err := f.adapter.Scan(sctx, f.opts.Name, 1)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("ble: no device named %q: %w", f.opts.Name, peripheral.ErrNotFound)
	}

	dev := devices[0]
	slog.Info("[BLE] found device", "name", dev.Name, "address", dev.Address, "rssi", dev.RSSI)

	conn, err := f.adapter.Connect(ctx, dev.Address)
	if err != nil {
		return nil, err
	}
	l, err := newLink(conn, f.opts.WriteCharUUID, f.opts.NotifyCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return nil, err
	}
	slog.Info("[BLE] connected", "address", dev.Address)
	return l, nil
}

// ScanForDevices lists every device advertising name seen within timeout,
// strongest signal first.
func ScanForDevices(ctx context.Context, adapter Adapter, name string, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, name, 0)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].RSSI > devices[j].RSSI })
	return devices, nil
}
