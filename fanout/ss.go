// fanout/ss.go
package fanout

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"botradar/utility"

	"go.uber.org/zap"
)

// SS enumerates UDP sockets by running `ss -uH -a`.
type SS struct {
	timeout time.Duration
	log     *zap.Logger
	run     func(ctx context.Context) ([]byte, error)
}

// NewSS returns a source that kills ss after timeout.
func NewSS(timeout time.Duration, log *zap.Logger) *SS {
	if log == nil {
		log = zap.NewNop()
	}
	return &SS{timeout: timeout, log: log, run: runSS}
}

func runSS(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "ss", "-uH", "-a").Output()
}

// Sample runs ss and parses its output. A missing binary or a timeout yields
// a zero snapshot; a non-zero exit status still parses whatever was printed.
func (s *SS) Sample(ctx context.Context) Snapshot {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.run(ctx)
	if ctx.Err() != nil {
		s.log.Debug("[fanout] ss timed out", zap.Error(ctx.Err()))
		return Snapshot{}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			s.log.Debug("[fanout] ss unavailable", zap.Error(err))
			return Snapshot{}
		}
		s.log.Debug("[fanout] ss exited non-zero", zap.Int("code", exitErr.ExitCode()))
	}
	return ParseSS(out)
}

// ParseSS counts sockets and distinct peers in `ss -uH -a` output, whose
// lines look like: STATE RECV-Q SEND-Q LOCAL_ADDR:PORT PEER_ADDR:PORT.
// Every non-empty line counts as a socket, unconnected ones included.
func ParseSS(out []byte) Snapshot {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return Snapshot{}
	}

	t := newTally()
	sockets := 0
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		sockets++
		parts := strings.Fields(sc.Text())
		if len(parts) < 5 {
			continue
		}
		host, port, ok := utility.SplitPeer(parts[4])
		if !ok {
			continue
		}
		t.add(host, port)
	}
	return t.snapshot(sockets)
}
