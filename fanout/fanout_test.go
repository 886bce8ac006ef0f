// fanout/fanout_test.go
package fanout

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
)

const ssOutput = `UNCONN 0      0            0.0.0.0:68          0.0.0.0:*
UNCONN 0      0               *:5353               *:*
ESTAB  0      0      10.0.0.5:41000        1.2.3.4:53
ESTAB  0      0      10.0.0.5:41001        1.2.3.4:123
ESTAB  0      0      10.0.0.5:41002        5.6.7.8:53
ESTAB  0      0      [2001:db8::5]:41003   [2001:db8::1]:443
short line
`

func TestParseSS(t *testing.T) {
	snap := ParseSS([]byte(ssOutput))

	assert.Equal(t, 7, snap.Sockets)
	// 0.0.0.0, 1.2.3.4, 5.6.7.8, 2001:db8::1
	assert.Equal(t, 4, snap.UniqueRemoteIPs)
	// *, 53, 123, 443
	assert.Equal(t, 4, snap.UniqueRemotePorts)
}

func TestParseSS_Empty(t *testing.T) {
	assert.Equal(t, Snapshot{}, ParseSS(nil))
	assert.Equal(t, Snapshot{}, ParseSS([]byte("\n  \n")))
}

func TestSS_Sample(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		s := NewSS(time.Second, nil)
		s.run = func(context.Context) ([]byte, error) { return []byte(ssOutput), nil }
		assert.Equal(t, 7, s.Sample(context.Background()).Sockets)
	})

	t.Run("MissingBinary", func(t *testing.T) {
		s := NewSS(time.Second, nil)
		s.run = func(context.Context) ([]byte, error) { return nil, exec.ErrNotFound }
		assert.Equal(t, Snapshot{}, s.Sample(context.Background()))
	})

	t.Run("NonZeroExitStillParses", func(t *testing.T) {
		s := NewSS(time.Second, nil)
		s.run = func(context.Context) ([]byte, error) {
			return []byte(ssOutput), &exec.ExitError{}
		}
		assert.Equal(t, 7, s.Sample(context.Background()).Sockets)
	})

	t.Run("Timeout", func(t *testing.T) {
		s := NewSS(10*time.Millisecond, nil)
		s.run = func(ctx context.Context) ([]byte, error) {
			<-ctx.Done()
			return []byte(ssOutput), ctx.Err()
		}
		assert.Equal(t, Snapshot{}, s.Sample(context.Background()))
	})
}

func TestGopsutil_Sample(t *testing.T) {
	g := NewGopsutil(time.Second, nil)
	g.connections = func(_ context.Context, kind string) ([]psnet.ConnectionStat, error) {
		assert.Equal(t, "udp", kind)
		return []psnet.ConnectionStat{
			{Raddr: psnet.Addr{IP: "0.0.0.0", Port: 0}},
			{Raddr: psnet.Addr{IP: "::", Port: 0}},
			{Raddr: psnet.Addr{}},
			{Raddr: psnet.Addr{IP: "1.2.3.4", Port: 53}},
			{Raddr: psnet.Addr{IP: "1.2.3.4", Port: 123}},
			{Raddr: psnet.Addr{IP: "2001:db8::1", Port: 53}},
		}, nil
	}

	snap := g.Sample(context.Background())
	assert.Equal(t, Snapshot{Sockets: 6, UniqueRemoteIPs: 2, UniqueRemotePorts: 2}, snap)
}

func TestGopsutil_AgreesWithSSOnConnectedPeers(t *testing.T) {
	g := NewGopsutil(time.Second, nil)
	g.connections = func(context.Context, string) ([]psnet.ConnectionStat, error) {
		return []psnet.ConnectionStat{
			{Raddr: psnet.Addr{IP: "1.2.3.4", Port: 53}},
			{Raddr: psnet.Addr{IP: "1.2.3.4", Port: 123}},
			{Raddr: psnet.Addr{IP: "5.6.7.8", Port: 53}},
			{Raddr: psnet.Addr{IP: "2001:db8::1", Port: 443}},
		}, nil
	}

	ss := ParseSS([]byte(`ESTAB  0      0      10.0.0.5:41000        1.2.3.4:53
ESTAB  0      0      10.0.0.5:41001        1.2.3.4:123
ESTAB  0      0      10.0.0.5:41002        5.6.7.8:53
ESTAB  0      0      [2001:db8::5]:41003   [2001:db8::1]:443
`))
	assert.Equal(t, ss, g.Sample(context.Background()))
}

func TestGopsutil_Degrades(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		g := NewGopsutil(time.Second, nil)
		g.connections = func(context.Context, string) ([]psnet.ConnectionStat, error) {
			return nil, errors.New("permission denied")
		}
		assert.Equal(t, Snapshot{}, g.Sample(context.Background()))
	})

	t.Run("Hang", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		g := NewGopsutil(10*time.Millisecond, nil)
		g.connections = func(context.Context, string) ([]psnet.ConnectionStat, error) {
			<-release
			return []psnet.ConnectionStat{{Raddr: psnet.Addr{IP: "1.2.3.4", Port: 53}}}, nil
		}
		assert.Equal(t, Snapshot{}, g.Sample(context.Background()))
	})
}

func TestDisabled(t *testing.T) {
	assert.Equal(t, Snapshot{}, Disabled{}.Sample(context.Background()))
}
