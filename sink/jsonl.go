// sink/jsonl.go
// Package sink renders sensor events: JSON lines for stdout and the append-only
// log, Prometheus metrics, and fan-out to several sinks at once.
package sink

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"botradar/sensor"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeLayout renders UTC timestamps with second precision and an explicit offset.
const TimeLayout = "2006-01-02T15:04:05-07:00"

// JSONLines writes one JSON object per event to out and, when logFile is set,
// appends the same line to logFile.
type JSONLines struct {
	enc     zapcore.Encoder
	out     io.Writer
	logFile string
}

// NewJSONLines returns a sink writing to out (may be nil) and logFile (may be empty).
func NewJSONLines(out io.Writer, logFile string) *JSONLines {
	return &JSONLines{enc: zapcore.NewJSONEncoder(EncoderConfig()), out: out, logFile: logFile}
}

// EncoderConfig is the record layout: ts, level and message followed by the
// event's context fields.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.UTC().Truncate(time.Second).Format(TimeLayout))
		},
	}
}

// Emit encodes ev and writes it everywhere. A failed destination does not
// stop the others; all failures are returned together.
func (j *JSONLines) Emit(ev sensor.Event) error {
	entry := zapcore.Entry{Level: levelFor(ev.Severity), Time: ev.Time, Message: ev.Message}
	buf, err := j.enc.EncodeEntry(entry, Fields(ev))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	defer buf.Free()
	line := buf.Bytes()

	var errs error
	if j.out != nil {
		if _, err := j.out.Write(line); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("write output: %w", err))
		}
	}
	if j.logFile != "" {
		if err := appendLine(j.logFile, line); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("append to %s: %w", j.logFile, err))
		}
	}
	return errs
}

// Fields returns the context fields of ev in output order.
func Fields(ev sensor.Event) []zapcore.Field {
	fields := []zapcore.Field{zap.String("interface", ev.Interface)}

	switch {
	case ev.Settings != nil:
		fields = append(fields,
			zap.Float64("interval_seconds", ev.Settings.Interval.Seconds()),
			zap.Float64("pps_threshold", ev.Settings.Thresholds.PPS),
			zap.Int("udp_ip_threshold", ev.Settings.Thresholds.UniqueIPs),
			zap.Int("udp_port_threshold", ev.Settings.Thresholds.UniquePorts),
		)
	case ev.Sample != nil:
		s := ev.Sample
		fields = append(fields,
			zap.Int64("rx_delta", s.RxDelta),
			zap.Int64("tx_delta", s.TxDelta),
			zap.Float64("packets_per_second", RoundPPS(s.PacketsPerSecond)),
			zap.Int("udp_sockets", s.Fanout.Sockets),
			zap.Int("unique_remote_ips", s.Fanout.UniqueRemoteIPs),
			zap.Int("unique_remote_ports", s.Fanout.UniqueRemotePorts),
		)
		if len(s.Reasons) > 0 {
			reasons := make([]string, len(s.Reasons))
			for i, r := range s.Reasons {
				reasons[i] = string(r)
			}
			fields = append(fields, zap.Strings("alert_reasons", reasons))
		}
	}
	return fields
}

// RoundPPS rounds a rate to two decimals for display.
func RoundPPS(pps float64) float64 {
	return math.Round(pps*100) / 100
}

func levelFor(s sensor.Severity) zapcore.Level {
	switch s {
	case sensor.SeverityWarn:
		return zapcore.WarnLevel
	case sensor.SeverityError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// appendLine opens path for every record so a rotated or removed file is
// recreated on the next event.
func appendLine(path string, line []byte) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	_, err = f.Write(line)
	return err
}
