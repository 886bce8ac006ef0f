// counters/counters.go
// Package counters reads cumulative per-interface packet counters.
package counters

import (
	"errors"
	"time"
)

var (
	// ErrInterfaceNotFound is returned when the interface is absent from the counter table.
	ErrInterfaceNotFound = errors.New("interface not found")
	// ErrSourceUnavailable is returned when the counter table cannot be read at all.
	ErrSourceUnavailable = errors.New("counter source unavailable")
)

// Snapshot holds the cumulative receive/transmit packet counts of one interface.
// Values only grow between samples unless the counters were reset.
type Snapshot struct {
	RxPackets  uint64
	TxPackets  uint64
	CapturedAt time.Time
}
