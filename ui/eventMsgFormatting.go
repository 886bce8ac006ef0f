// ui/eventMsgFormatting.go
package ui

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"botradar/sensor"

	"github.com/rivo/tview"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	timeColWidth  = 10 // width of the HH:MM:SS column
	levelColWidth = 6  // width of the severity column
)

// pool holds reusable *bytes.Buffer instances
var bufPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// printer groups thousands so large packet counts stay readable.
var printer = message.NewPrinter(language.English)

var severityColor = map[sensor.Severity]string{
	sensor.SeverityInfo:  "green",
	sensor.SeverityWarn:  "yellow",
	sensor.SeverityError: "red",
}

// FormatEventMsg renders one event as a fixed-width line with tview color tags.
func FormatEventMsg(ev sensor.Event) string {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()

	writePadded(buf, ev.Time.UTC().Format(time.TimeOnly), timeColWidth)

	level := string(ev.Severity)
	buf.WriteString("[" + severityColor[ev.Severity] + "]")
	buf.WriteString(level)
	buf.WriteString("[-]")
	writePadding(buf, levelColWidth-len(level))

	buf.WriteString(tview.Escape(ev.Message))

	if s := ev.Sample; s != nil {
		buf.WriteString(printer.Sprintf("  pps=%.2f rx=%+d tx=%+d udp=%d/%d/%d",
			s.PacketsPerSecond, s.RxDelta, s.TxDelta,
			s.Fanout.Sockets, s.Fanout.UniqueRemoteIPs, s.Fanout.UniqueRemotePorts))
		if len(s.Reasons) > 0 {
			buf.WriteString(" alerts=")
			buf.WriteString(joinReasons(s.Reasons, ","))
		}
	}

	// Extract result string (copies once) and return buffer to pool
	result := buf.String()
	bufPool.Put(buf)
	return result
}

// FormatSampleView summarises the latest sample against the configured thresholds.
func FormatSampleView(ev sensor.Event, th sensor.Thresholds) string {
	s := ev.Sample
	if s == nil {
		return "waiting for the first sample…"
	}
	return strings.Join([]string{
		printer.Sprintf("Rate     %.2f pps %s", s.PacketsPerSecond, limit(th.PPS > 0, printer.Sprintf("%.0f", th.PPS))),
		printer.Sprintf("Delta    rx %+d  tx %+d", s.RxDelta, s.TxDelta),
		printer.Sprintf("UDP      %d sockets", s.Fanout.Sockets),
		printer.Sprintf("Peers    %d IPs %s", s.Fanout.UniqueRemoteIPs, limit(th.UniqueIPs > 0, printer.Sprintf("%d", th.UniqueIPs))),
		printer.Sprintf("Ports    %d %s", s.Fanout.UniqueRemotePorts, limit(th.UniquePorts > 0, printer.Sprintf("%d", th.UniquePorts))),
		fmt.Sprintf("Updated  %s", ev.Time.UTC().Format(time.TimeOnly)),
	}, "\n")
}

// AlertCounts tallies samples and tripped rules for the counter pane.
type AlertCounts struct {
	Samples  int
	ByReason map[sensor.AlertReason]int
}

// Add records one sample event.
func (c *AlertCounts) Add(ev sensor.Event) {
	if ev.Sample == nil {
		return
	}
	if c.ByReason == nil {
		c.ByReason = make(map[sensor.AlertReason]int)
	}
	c.Samples++
	for _, r := range ev.Sample.Reasons {
		c.ByReason[r]++
	}
}

// FormatAlertCounts renders the counter pane.
func FormatAlertCounts(c AlertCounts) string {
	return printer.Sprintf("%d samples\nPPS %d  IPs %d  Ports %d",
		c.Samples,
		c.ByReason[sensor.ReasonPPS],
		c.ByReason[sensor.ReasonUniqueIPs],
		c.ByReason[sensor.ReasonUniquePorts],
	)
}

func limit(enabled bool, v string) string {
	if !enabled {
		return "(rule off)"
	}
	return "(alert at " + v + ")"
}

func joinReasons(rs []sensor.AlertReason, sep string) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, sep)
}

// writePadded writes s left-aligned in a field of width w
func writePadded(buf *bytes.Buffer, s string, w int) {
	buf.WriteString(s)
	writePadding(buf, w-len(s))
}

// writePadding writes n spaces (n ≤ 0 → no op)
func writePadding(buf *bytes.Buffer, n int) {
	for n > 0 {
		const chunk = "          " // 10 spaces
		if n >= len(chunk) {
			buf.WriteString(chunk)
			n -= len(chunk)
		} else {
			buf.WriteString(chunk[:n])
			return
		}
	}
}
