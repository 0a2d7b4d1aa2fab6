// Package trace records scheduler events to the console, CSV files and a
// SQLite database.
package trace

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"llsched/internal/sched"
)

// Console prints one line per event.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole prints events to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Record implements sched.Recorder.
func (c *Console) Record(ev sched.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, FormatEvent(time.Now(), ev))
}

// FormatEvent renders ev the way Console prints it.
func FormatEvent(at time.Time, ev sched.Event) string {
	msg := fmt.Sprintf("%s = RAT: %010d [%s] => Task: %-5s %-12s",
		at.Format("Jan 02 15:04:05.000"),
		uint32(ev.Time),
		center(ev.Kind.String(), 12),
		ev.Handle,
		ev.Role,
	)
	switch ev.Kind {
	case sched.EventSchedule:
		msg += fmt.Sprintf(" at=%010d (%s)", uint32(ev.Start), ev.StartType)
	case sched.EventSlip:
		msg += fmt.Sprintf(" at=%010d", uint32(ev.Start))
	case sched.EventDispatch:
		msg += fmt.Sprintf(" start=%010d", uint32(ev.Start))
	case sched.EventComplete:
		msg += " rf=" + ev.RFEvents.String()
	}
	if ev.Err != nil {
		msg += " err=" + ev.Err.Error()
	}
	return strings.TrimRight(msg, " ")
}

// center pads str on both sides to width.
func center(str string, width int) string {
	if len(str) >= width {
		return str
	}
	spaces := (width - len(str)) / 2
	return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
}

// Multi fans every event out to each recorder in order.
func Multi(recorders ...sched.Recorder) sched.Recorder {
	out := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multi []sched.Recorder

func (m multi) Record(ev sched.Event) {
	for _, r := range m {
		r.Record(ev)
	}
}
