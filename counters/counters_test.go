// counters/counters_test.go
package counters

import (
	"context"
	"errors"
	stdnet "net"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cilium/ebpf"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(stats []net.IOCountersStat, err error) (*Gopsutil, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	src := NewGopsutil(clk)
	src.ioCounters = func(context.Context, bool) ([]net.IOCountersStat, error) {
		return stats, err
	}
	return src, clk
}

func TestGopsutil_Sample(t *testing.T) {
	src, clk := newTestSource([]net.IOCountersStat{
		{Name: "lo", PacketsRecv: 1, PacketsSent: 1},
		{Name: "eth0", PacketsRecv: 7000, PacketsSent: 3000},
	}, nil)

	snap, err := src.Sample(context.Background(), "eth0")
	require.NoError(t, err)
	assert.Equal(t, uint64(7000), snap.RxPackets)
	assert.Equal(t, uint64(3000), snap.TxPackets)
	assert.Equal(t, clk.Now(), snap.CapturedAt)
}

func TestGopsutil_InterfaceNotFound(t *testing.T) {
	src, _ := newTestSource([]net.IOCountersStat{{Name: "lo"}}, nil)

	_, err := src.Sample(context.Background(), "eth9")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterfaceNotFound)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
}

func TestGopsutil_SourceUnavailable(t *testing.T) {
	src, _ := newTestSource(nil, errors.New("open /proc/net/dev: no such file or directory"))

	_, err := src.Sample(context.Background(), "eth0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "/proc/net/dev")
}

func TestNewXDP_Errors(t *testing.T) {
	t.Run("EmptyInterface", func(t *testing.T) {
		_, err := NewXDP("  ", "prog.o", nil)
		assert.ErrorIs(t, err, ErrInterfaceNotFound)
	})

	t.Run("UnknownInterface", func(t *testing.T) {
		_, err := NewXDP("botradar-missing0", "prog.o", nil)
		assert.ErrorIs(t, err, ErrInterfaceNotFound)
	})

	t.Run("MissingObject", func(t *testing.T) {
		_, err := NewXDP("lo", filepath.Join(t.TempDir(), "missing.o"), nil)
		if errors.Is(err, ErrInterfaceNotFound) {
			t.Skip("no loopback interface in this environment")
		}
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	})
}

// fakeCounts serves per-CPU values for the packet_count map.
type fakeCounts map[uint32][]uint64

func (f fakeCounts) Lookup(key, valueOut interface{}) error {
	vals, ok := f[key.(uint32)]
	if !ok {
		return ebpf.ErrKeyNotExist
	}
	*valueOut.(*[]uint64) = append([]uint64(nil), vals...)
	return nil
}

func newTestXDP(counts fakeCounts, ifaceErr error) (*XDP, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return &XDP{
		iface:  "eth0",
		counts: counts,
		clock:  clk,
		lookupIface: func(name string) (*stdnet.Interface, error) {
			if ifaceErr != nil {
				return nil, ifaceErr
			}
			return &stdnet.Interface{Name: name, Index: 2}, nil
		},
	}, clk
}

func TestXDP_Sample(t *testing.T) {
	t.Run("SumsPerCPU", func(t *testing.T) {
		x, clk := newTestXDP(fakeCounts{
			keyReceived:    {4000, 2500, 500},
			keyTransmitted: {1000, 0, 1500},
		}, nil)

		snap, err := x.Sample(context.Background(), "eth0")
		require.NoError(t, err)
		assert.Equal(t, uint64(7000), snap.RxPackets)
		assert.Equal(t, uint64(2500), snap.TxPackets)
		assert.Equal(t, clk.Now(), snap.CapturedAt)
	})

	t.Run("MissingTransmittedSlot", func(t *testing.T) {
		x, _ := newTestXDP(fakeCounts{keyReceived: {10}}, nil)

		_, err := x.Sample(context.Background(), "eth0")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
		assert.Contains(t, err.Error(), "transmitted")
	})

	t.Run("InterfaceRemoved", func(t *testing.T) {
		x, _ := newTestXDP(fakeCounts{keyReceived: {1}, keyTransmitted: {1}}, errors.New("no such network interface"))

		_, err := x.Sample(context.Background(), "eth0")
		assert.ErrorIs(t, err, ErrInterfaceNotFound)
	})

	t.Run("OtherInterface", func(t *testing.T) {
		x, _ := newTestXDP(fakeCounts{}, nil)

		_, err := x.Sample(context.Background(), "eth1")
		assert.ErrorIs(t, err, ErrInterfaceNotFound)
	})
}

func TestCheckCollectionSpec(t *testing.T) {
	valid := func() *ebpf.CollectionSpec {
		return &ebpf.CollectionSpec{
			Programs: map[string]*ebpf.ProgramSpec{
				XDPProgramName:    {Name: XDPProgramName, Type: ebpf.XDP},
				EgressProgramName: {Name: EgressProgramName, Type: ebpf.SchedCLS},
			},
			Maps: map[string]*ebpf.MapSpec{
				XDPCountMap: {Name: XDPCountMap, Type: ebpf.PerCPUArray, KeySize: 4, ValueSize: 8, MaxEntries: 2},
			},
		}
	}

	require.NoError(t, checkCollectionSpec(valid()))

	tests := []struct {
		name   string
		mutate func(*ebpf.CollectionSpec)
		want   string
	}{
		{"NoIngressProgram", func(s *ebpf.CollectionSpec) { delete(s.Programs, XDPProgramName) }, XDPProgramName},
		{"NoEgressProgram", func(s *ebpf.CollectionSpec) { delete(s.Programs, EgressProgramName) }, EgressProgramName},
		{"NoMap", func(s *ebpf.CollectionSpec) { delete(s.Maps, XDPCountMap) }, XDPCountMap},
		{"WrongMapType", func(s *ebpf.CollectionSpec) { s.Maps[XDPCountMap].Type = ebpf.Array }, "want"},
		{"IngressOnlyMap", func(s *ebpf.CollectionSpec) { s.Maps[XDPCountMap].MaxEntries = 1 }, "transmitted slot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid()
			tt.mutate(spec)
			err := checkCollectionSpec(spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
