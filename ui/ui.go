// ui/ui.go
// Package ui provides a terminal dashboard for the sensor: diagnostics, the
// event stream, the latest sample and alert counts, using the tview library.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"botradar/sensor"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const MaxLines = 100 // keep the last 100 entries, exported

// ChannelWriter funnels diagnostic log lines into the Diagnostics pane.
// Lines are dropped while the pane is backed up.
type ChannelWriter struct{ Ch chan string }

// Write implements the io.Writer interface for our channel.
func (w ChannelWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	select {
	case w.Ch <- msg:
	default:
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (w ChannelWriter) Sync() error { return nil }

// Dashboard is a tview application that doubles as an event sink.
type Dashboard struct {
	app        *tview.Application
	layout     *tview.Flex
	sysView    *tview.TextView
	eventView  *tview.TextView
	sampleView *tview.TextView
	alertView  *tview.TextView

	thresholds sensor.Thresholds
	SysChan    chan string
	eventChan  chan string
	sampleChan chan sensor.Event
}

// NewDashboard builds the layout for iface.
func NewDashboard(iface string, th sensor.Thresholds) *Dashboard {
	d := &Dashboard{
		thresholds: th,
		SysChan:    make(chan string, 200),
		eventChan:  make(chan string, 200),
		sampleChan: make(chan sensor.Event, 200),
	}
	d.app, d.layout, d.sysView, d.eventView, d.sampleView, d.alertView = SetupUI(iface)
	return d
}

// Emit queues ev for display. It reports an error instead of blocking the
// sensor when the dashboard falls behind.
func (d *Dashboard) Emit(ev sensor.Event) error {
	select {
	case d.eventChan <- FormatEventMsg(ev):
	default:
		return fmt.Errorf("dashboard event queue full, dropped %s event", ev.Kind)
	}
	if ev.Kind != sensor.KindSample {
		return nil
	}
	select {
	case d.sampleChan <- ev:
	default:
		return errors.New("dashboard sample queue full")
	}
	return nil
}

// Run shows the dashboard until the user quits (q, Esc or Ctrl-C) or ctx is done.
func (d *Dashboard) Run(ctx context.Context) error {
	// Buffers to keep only the last MaxLines entries for logs
	var sysLines, eventLines []string

	go PumpTextview(d.app, d.sysView, d.SysChan, &sysLines)
	go PumpTextview(d.app, d.eventView, d.eventChan, &eventLines)
	go PumpSampleView(d.app, d.sampleView, d.alertView, d.sampleChan, d.thresholds)

	d.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
			d.app.Stop()
			return nil
		}
		return ev
	})

	stop := context.AfterFunc(ctx, d.app.Stop)
	defer stop()

	return d.app.SetRoot(d.layout, true).Run()
}

// SetupUI creates and configures the tview application, views, and layout.
// It returns the application, the root layout flexbox, the diagnostics view,
// the event view, the latest-sample view and the alert counter view.
func SetupUI(iface string) (
	*tview.Application,
	*tview.Flex,
	*tview.TextView,
	*tview.TextView,
	*tview.TextView,
	*tview.TextView,
) {
	app := tview.NewApplication()

	sysView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	sysView.SetBorder(true).SetTitle(" Diagnostics ")

	eventView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	eventView.SetBorder(true).SetTitle(fmt.Sprintf(" Events on %s ", iface))

	sampleView := tview.NewTextView()
	sampleView.SetBorder(true).SetTitle(" Latest sample ")
	sampleView.SetText("waiting for the first sample…")

	alertView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter)
	alertView.SetBorder(true).SetTitle(" Alerts ")
	alertView.SetText(FormatAlertCounts(AlertCounts{}))

	// Bottom row: latest sample, then alert counts
	bottomFlex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(sampleView, 0, 3, false).
		AddItem(alertView, 0, 2, false)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(sysView, 0, 2, false).
		AddItem(eventView, 0, 4, false).
		AddItem(bottomFlex, 8, 1, false)

	return app, layout, sysView, eventView, sampleView, alertView
}

// PumpTextview reads lines from a channel and updates a tview.TextView, keeping only MaxLines.
func PumpTextview(app *tview.Application, view *tview.TextView, ch <-chan string, buffer *[]string) {
	for line := range ch {
		*buffer = append(*buffer, line)
		if len(*buffer) > MaxLines {
			*buffer = (*buffer)[1:]
		}
		text := strings.Join(*buffer, "\n")
		app.QueueUpdateDraw(func() {
			view.SetText(text)
			view.ScrollToEnd()
		})
	}
}

// PumpSampleView reads sample events and refreshes the latest-sample and alert panes.
func PumpSampleView(app *tview.Application, sampleView, alertView *tview.TextView, ch <-chan sensor.Event, th sensor.Thresholds) {
	var counts AlertCounts
	for ev := range ch {
		counts.Add(ev)
		sample := FormatSampleView(ev, th)
		alerts := FormatAlertCounts(counts)
		app.QueueUpdateDraw(func() {
			sampleView.SetText(sample)
			alertView.SetText(alerts)
		})
	}
}
