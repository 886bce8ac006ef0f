// sink/prometheus.go
package sink

import (
	"botradar/sensor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "botradar"

// Prometheus mirrors the latest sample into gauges and counts alerts.
type Prometheus struct {
	pps         prometheus.Gauge
	sockets     prometheus.Gauge
	uniqueIPs   prometheus.Gauge
	uniquePorts prometheus.Gauge
	severity    prometheus.Gauge
	samples     prometheus.Counter
	rxPackets   prometheus.Counter
	txPackets   prometheus.Counter
	alerts      *prometheus.CounterVec
}

// NewPrometheus registers the sensor metrics for iface on reg.
func NewPrometheus(reg prometheus.Registerer, iface string) *Prometheus {
	f := promauto.With(reg)
	labels := prometheus.Labels{"interface": iface}

	p := &Prometheus{
		pps: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "packets_per_second", ConstLabels: labels,
			Help: "Combined rx+tx packets per second over the last interval.",
		}),
		sockets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "udp_sockets", ConstLabels: labels,
			Help: "UDP sockets seen by the last fan-out enumeration.",
		}),
		uniqueIPs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "udp_unique_remote_ips", ConstLabels: labels,
			Help: "Distinct remote UDP peer addresses.",
		}),
		uniquePorts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "udp_unique_remote_ports", ConstLabels: labels,
			Help: "Distinct remote UDP peer ports.",
		}),
		severity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "severity", ConstLabels: labels,
			Help: "Severity of the latest event (0 INFO, 1 WARN, 2 ERROR).",
		}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_total", ConstLabels: labels,
			Help: "Completed sampling ticks.",
		}),
		rxPackets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rx_packets_total", ConstLabels: labels,
			Help: "Received packets observed across ticks (resets count as zero).",
		}),
		txPackets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tx_packets_total", ConstLabels: labels,
			Help: "Transmitted packets observed across ticks (resets count as zero).",
		}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_total", ConstLabels: labels,
			Help: "Tripped threshold rules by reason.",
		}, []string{"reason"}),
	}

	for _, r := range []sensor.AlertReason{sensor.ReasonPPS, sensor.ReasonUniqueIPs, sensor.ReasonUniquePorts} {
		p.alerts.WithLabelValues(string(r))
	}
	return p
}

// Emit updates the metrics. It never fails.
func (p *Prometheus) Emit(ev sensor.Event) error {
	switch ev.Kind {
	case sensor.KindSample:
		s := ev.Sample
		p.samples.Inc()
		p.pps.Set(s.PacketsPerSecond)
		p.sockets.Set(float64(s.Fanout.Sockets))
		p.uniqueIPs.Set(float64(s.Fanout.UniqueRemoteIPs))
		p.uniquePorts.Set(float64(s.Fanout.UniqueRemotePorts))
		if s.RxDelta > 0 {
			p.rxPackets.Add(float64(s.RxDelta))
		}
		if s.TxDelta > 0 {
			p.txPackets.Add(float64(s.TxDelta))
		}
		for _, r := range s.Reasons {
			p.alerts.WithLabelValues(string(r)).Inc()
		}
		p.severity.Set(severityValue(ev.Severity))
	case sensor.KindInterfaceLost:
		p.severity.Set(severityValue(ev.Severity))
	}
	return nil
}

func severityValue(s sensor.Severity) float64 {
	switch s {
	case sensor.SeverityWarn:
		return 1
	case sensor.SeverityError:
		return 2
	default:
		return 0
	}
}
