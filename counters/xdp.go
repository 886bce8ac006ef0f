// counters/xdp.go
package counters

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

//go:generate clang -O2 -g -Wall -target bpf -c bpf/xdp_counter.c -o ../xdp_counter.o

// Names expected inside the compiled object built from bpf/xdp_counter.c.
const (
	XDPProgramName    = "xdp_count_packets"
	EgressProgramName = "tc_count_egress"
	XDPCountMap       = "packet_count"
)

// Keys of the per-CPU packet_count array map.
const (
	keyReceived    uint32 = 0
	keyTransmitted uint32 = 1
)

// perCPULookup is the part of *ebpf.Map that Sample reads.
type perCPULookup interface {
	Lookup(key, valueOut interface{}) error
}

// XDP counts ingress packets with an XDP program and egress packets with a
// TCX program, both attached to the interface and sharing one per-CPU map.
type XDP struct {
	iface       string           // network interface name
	coll        *ebpf.Collection // eBPF collection
	links       []link.Link      // XDP and TCX links
	counts      perCPULookup     // per-CPU packet counters
	clock       clock.Clock
	lookupIface func(name string) (*net.Interface, error)
}

// NewXDP loads objectPath, attaches its counting programs to ifaceName and
// returns the source. Callers must remove the memlock rlimit beforehand.
func NewXDP(ifaceName, objectPath string, clk clock.Clock) (*XDP, error) {
	if strings.TrimSpace(ifaceName) == "" {
		return nil, fmt.Errorf("%w: interface name is required", ErrInterfaceNotFound)
	}
	if clk == nil {
		clk = clock.New()
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup interface %q: %v", ErrInterfaceNotFound, ifaceName, err)
	}

	spec, err := ebpf.LoadCollectionSpec(objectPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load collection spec: %v", ErrSourceUnavailable, err)
	}
	if err := checkCollectionSpec(spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, objectPath, err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: create collection: %v", ErrSourceUnavailable, err)
	}

	x := &XDP{
		iface:       ifaceName,
		coll:        coll,
		counts:      coll.Maps[XDPCountMap],
		clock:       clk,
		lookupIface: net.InterfaceByName,
	}

	ingress, err := link.AttachXDP(link.XDPOptions{
		Program:   coll.Programs[XDPProgramName],
		Interface: iface.Index,
		Flags:     link.XDPGenericMode,
	})
	if err != nil {
		x.Close()
		return nil, fmt.Errorf("%w: attach XDP: %v", ErrSourceUnavailable, err)
	}
	x.links = append(x.links, ingress)

	egress, err := link.AttachTCX(link.TCXOptions{
		Program:   coll.Programs[EgressProgramName],
		Interface: iface.Index,
		Attach:    ebpf.AttachTCXEgress,
	})
	if err != nil {
		x.Close()
		return nil, fmt.Errorf("%w: attach TCX egress (needs Linux 6.6+): %v", ErrSourceUnavailable, err)
	}
	x.links = append(x.links, egress)

	return x, nil
}

// checkCollectionSpec makes sure the object can count both directions before
// anything is loaded into the kernel.
func checkCollectionSpec(spec *ebpf.CollectionSpec) error {
	for _, name := range []string{XDPProgramName, EgressProgramName} {
		if _, ok := spec.Programs[name]; !ok {
			return fmt.Errorf("program %q not found", name)
		}
	}
	m, ok := spec.Maps[XDPCountMap]
	if !ok {
		return fmt.Errorf("map %q not found", XDPCountMap)
	}
	if m.Type != ebpf.PerCPUArray {
		return fmt.Errorf("map %q is %s, want %s", XDPCountMap, m.Type, ebpf.PerCPUArray)
	}
	if m.MaxEntries <= keyTransmitted {
		return fmt.Errorf("map %q has %d entries, need a transmitted slot at key %d", XDPCountMap, m.MaxEntries, keyTransmitted)
	}
	return nil
}

// Sample sums the per-CPU counters of the attached programs.
func (x *XDP) Sample(_ context.Context, iface string) (Snapshot, error) {
	if iface != x.iface {
		return Snapshot{}, fmt.Errorf("%w: XDP program is attached to %q, not %q", ErrInterfaceNotFound, x.iface, iface)
	}
	// The links do not notice a removed device, so look it up every time.
	if _, err := x.lookupIface(iface); err != nil {
		return Snapshot{}, fmt.Errorf("%w: lookup interface %q: %v", ErrInterfaceNotFound, iface, err)
	}

	rx, err := x.sumPerCPU(keyReceived)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read received counter: %v", ErrSourceUnavailable, err)
	}
	tx, err := x.sumPerCPU(keyTransmitted)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read transmitted counter: %v", ErrSourceUnavailable, err)
	}

	return Snapshot{RxPackets: rx, TxPackets: tx, CapturedAt: x.clock.Now()}, nil
}

func (x *XDP) sumPerCPU(key uint32) (uint64, error) {
	var percpu []uint64
	if err := x.counts.Lookup(key, &percpu); err != nil {
		return 0, err
	}
	var sum uint64
	for _, v := range percpu {
		sum += v
	}
	return sum, nil
}

// Close detaches the programs and releases the collection.
func (x *XDP) Close() {
	for _, l := range x.links {
		l.Close()
	}
	x.links = nil
	if x.coll != nil {
		x.coll.Close()
	}
}
