package controller

import (
	"slices"
	"sync"
	"time"

	"github.com/chaz8081/tp25ctl/internal/ble/protocol"
)

// Direction says which way a frame travelled.
type Direction uint8

const (
	Outbound Direction = iota + 1
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "sent"
	case Inbound:
		return "received"
	default:
		return "unknown"
	}
}

// TransferEntry is one frame exchanged with the device. Exactly one of
// Command and Notification is set, matching Direction.
type TransferEntry struct {
	Sequence     uint64
	Time         time.Time
	Direction    Direction
	Command      *protocol.Command
	Notification *protocol.Notification
}

// TransferLog records every frame sent and received in order. Sequence
// numbers start at 1 and never repeat, even when old entries are dropped.
type TransferLog struct {
	mu      sync.Mutex
	limit   int
	seq     uint64
	entries []TransferEntry
	now     func() time.Time
}

// NewTransferLog returns an empty log keeping at most limit entries. A limit
// of zero or less keeps everything.
func NewTransferLog(limit int) *TransferLog {
	return &TransferLog{limit: limit, now: time.Now}
}

func (l *TransferLog) addCommand(c protocol.Command) {
	l.add(TransferEntry{Direction: Outbound, Command: &c})
}

func (l *TransferLog) addNotification(n protocol.Notification) {
	l.add(TransferEntry{Direction: Inbound, Notification: &n})
}

func (l *TransferLog) add(e TransferEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	e.Sequence = l.seq
	e.Time = l.now()
	l.entries = append(l.entries, e)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = slices.Delete(l.entries, 0, len(l.entries)-l.limit)
	}
}

// Snapshot returns the retained entries, oldest first.
func (l *TransferLog) Snapshot() []TransferEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Since returns the retained entries with a sequence number above seq.
func (l *TransferLog) Since(seq uint64) []TransferEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, _ := slices.BinarySearchFunc(l.entries, seq+1, func(e TransferEntry, target uint64) int {
		switch {
		case e.Sequence < target:
			return -1
		case e.Sequence > target:
			return 1
		default:
			return 0
		}
	})
	return slices.Clone(l.entries[i:])
}

// Len returns the number of retained entries.
func (l *TransferLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
