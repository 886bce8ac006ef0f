// fanout/fanout.go
// Package fanout measures how many distinct remote UDP endpoints the host is
// talking to. Every source degrades to a zero Snapshot instead of failing.
package fanout

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single socket enumeration.
const DefaultTimeout = 2 * time.Second

// Snapshot is the UDP fan-out seen by one enumeration.
type Snapshot struct {
	Sockets           int
	UniqueRemoteIPs   int
	UniqueRemotePorts int
}

// Disabled never enumerates anything.
type Disabled struct{}

// Sample always returns a zero snapshot.
func (Disabled) Sample(context.Context) Snapshot { return Snapshot{} }

// tally collects distinct remote hosts and ports.
type tally struct {
	ips   map[string]struct{}
	ports map[string]struct{}
}

func newTally() *tally {
	return &tally{ips: make(map[string]struct{}), ports: make(map[string]struct{})}
}

func (t *tally) add(host, port string) {
	t.ips[host] = struct{}{}
	t.ports[port] = struct{}{}
}

func (t *tally) snapshot(sockets int) Snapshot {
	return Snapshot{
		Sockets:           sockets,
		UniqueRemoteIPs:   len(t.ips),
		UniqueRemotePorts: len(t.ports),
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
