// sensor/thresholds.go
package sensor

import (
	"fmt"

	"botradar/fanout"
)

// Thresholds configures the three alert rules. A zero value disables a rule.
type Thresholds struct {
	PPS         float64
	UniqueIPs   int
	UniquePorts int
}

// Validate rejects negative thresholds.
func (t Thresholds) Validate() error {
	if t.PPS < 0 {
		return fmt.Errorf("pps threshold must be >= 0, got %v", t.PPS)
	}
	if t.UniqueIPs < 0 {
		return fmt.Errorf("udp unique-ip threshold must be >= 0, got %d", t.UniqueIPs)
	}
	if t.UniquePorts < 0 {
		return fmt.Errorf("udp unique-port threshold must be >= 0, got %d", t.UniquePorts)
	}
	return nil
}

// Evaluate checks every enabled rule, always in the order PPS, unique IPs,
// unique ports. Boundaries are inclusive.
func (t Thresholds) Evaluate(pps float64, f fanout.Snapshot) []AlertReason {
	var reasons []AlertReason
	if t.PPS > 0 && pps >= t.PPS {
		reasons = append(reasons, ReasonPPS)
	}
	if t.UniqueIPs > 0 && f.UniqueRemoteIPs >= t.UniqueIPs {
		reasons = append(reasons, ReasonUniqueIPs)
	}
	if t.UniquePorts > 0 && f.UniqueRemotePorts >= t.UniquePorts {
		reasons = append(reasons, ReasonUniquePorts)
	}
	return reasons
}

// severityFor maps the tripped rules of a sample to its severity.
func severityFor(reasons []AlertReason) Severity {
	if len(reasons) > 0 {
		return SeverityWarn
	}
	return SeverityInfo
}
