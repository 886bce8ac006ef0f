// fanout/gopsutil.go
package fanout

import (
	"context"
	"net"
	"strconv"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

// Gopsutil enumerates UDP sockets from the kernel socket tables.
//
// Unconnected sockets count toward Sockets but never as peers. The kernel
// table reports them as 0.0.0.0:0 or [::]:0, which carries no remote host, so
// the wildcard is skipped for every address family. SS keeps the `ss` text
// as printed and only skips "*:*", so on a host with unconnected sockets its
// peer counts can exceed these by the wildcard address and the "*" port.
type Gopsutil struct {
	timeout     time.Duration
	log         *zap.Logger
	connections func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error)
}

// NewGopsutil returns a source whose enumerations give up after timeout.
func NewGopsutil(timeout time.Duration, log *zap.Logger) *Gopsutil {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gopsutil{timeout: timeout, log: log, connections: psnet.ConnectionsWithContext}
}

type connResult struct {
	conns []psnet.ConnectionStat
	err   error
}

// Sample counts UDP sockets and their distinct connected peers.
func (g *Gopsutil) Sample(ctx context.Context) Snapshot {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	// gopsutil walks /proc without checking ctx, so bound it from outside.
	done := make(chan connResult, 1)
	go func() {
		conns, err := g.connections(ctx, "udp")
		done <- connResult{conns, err}
	}()

	var res connResult
	select {
	case <-ctx.Done():
		g.log.Debug("[fanout] udp enumeration timed out", zap.Error(ctx.Err()))
		return Snapshot{}
	case res = <-done:
	}
	if res.err != nil {
		g.log.Debug("[fanout] udp enumeration failed", zap.Error(res.err))
		return Snapshot{}
	}

	t := newTally()
	for _, c := range res.conns {
		if unconnected(c.Raddr) {
			continue
		}
		t.add(c.Raddr.IP, strconv.FormatUint(uint64(c.Raddr.Port), 10))
	}
	return t.snapshot(len(res.conns))
}

// unconnected reports whether addr is the wildcard peer of an unconnected socket.
func unconnected(addr psnet.Addr) bool {
	if addr.IP == "" {
		return true
	}
	ip := net.ParseIP(addr.IP)
	return addr.Port == 0 && (ip == nil || ip.IsUnspecified())
}
