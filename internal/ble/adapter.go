// Package ble connects to a ThermoPro TP25 over Bluetooth Low Energy and
// exposes it as a peripheral.Link. The device has one characteristic for
// commands and one for notifications.
package ble

import "context"

// ThermoPro TP25 identifiers
const (
	DeviceName     = "Thermopro"
	WriteCharUUID  = "1086fff1-3343-4817-8bb2-b32206336ce8"
	NotifyCharUUID = "1086fff2-3343-4817-8bb2-b32206336ce8"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID in any service.
	DiscoverCharacteristic(charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers peripherals advertising the given local name until ctx
	// ends or limit devices were found. A limit of 0 means no limit.
	Scan(ctx context.Context, name string, limit int) ([]Device, error)
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
