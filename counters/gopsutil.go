// counters/gopsutil.go
package counters

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/shirou/gopsutil/v3/net"
)

// Gopsutil reads the kernel's per-NIC counter table (/proc/net/dev on Linux,
// relocatable with HOST_PROC).
type Gopsutil struct {
	clock      clock.Clock
	ioCounters func(ctx context.Context, pernic bool) ([]net.IOCountersStat, error)
}

// NewGopsutil returns a counter source stamped with times from clk.
func NewGopsutil(clk clock.Clock) *Gopsutil {
	if clk == nil {
		clk = clock.New()
	}
	return &Gopsutil{clock: clk, ioCounters: net.IOCountersWithContext}
}

// Sample returns the current rx/tx packet counters of iface.
func (g *Gopsutil) Sample(ctx context.Context, iface string) (Snapshot, error) {
	stats, err := g.ioCounters(ctx, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read interface counters: %v", ErrSourceUnavailable, err)
	}

	for _, st := range stats {
		if st.Name != iface {
			continue
		}
		return Snapshot{
			RxPackets:  st.PacketsRecv,
			TxPackets:  st.PacketsSent,
			CapturedAt: g.clock.Now(),
		}, nil
	}
	return Snapshot{}, fmt.Errorf("%w: %q", ErrInterfaceNotFound, iface)
}
