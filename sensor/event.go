// sensor/event.go
package sensor

import (
	"time"

	"botradar/fanout"
)

// Severity is the level attached to every emitted event.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// AlertReason names a threshold rule that tripped.
type AlertReason string

const (
	ReasonPPS         AlertReason = "PPS_THRESHOLD_EXCEEDED"
	ReasonUniqueIPs   AlertReason = "UDP_UNIQUE_IP_THRESHOLD_EXCEEDED"
	ReasonUniquePorts AlertReason = "UDP_UNIQUE_PORT_THRESHOLD_EXCEEDED"
)

// Kind tells sinks which of the optional payloads an Event carries.
type Kind int

const (
	KindStarted       Kind = iota + 1 // Settings set
	KindSample                        // Sample set
	KindInterfaceLost                 // counter source lost the interface mid-run
	KindStopped                       // interrupted by the user
)

func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindSample:
		return "sample"
	case KindInterfaceLost:
		return "interface_lost"
	case KindStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is one self-contained output record.
type Event struct {
	Time      time.Time
	Kind      Kind
	Severity  Severity
	Message   string
	Interface string
	Sample    *Sample
	Settings  *Settings
}

// Sample holds the metrics of one tick. RxDelta and TxDelta are reported as
// observed and may be negative after a counter reset; PacketsPerSecond is
// computed from the clamped total and is never rounded.
type Sample struct {
	RxDelta          int64
	TxDelta          int64
	PacketsPerSecond float64
	Fanout           fanout.Snapshot
	Reasons          []AlertReason
}

// Settings is the effective configuration announced when sampling starts.
type Settings struct {
	Interval   time.Duration
	Thresholds Thresholds
}

// EventSink renders or persists events. Errors are reported, never fatal.
type EventSink interface {
	Emit(ev Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ev Event) error

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) error { return f(ev) }
