package trace

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"llsched/internal/sched"
)

var csvHeader = []string{"timestamp", "rat", "event", "handle", "role", "start", "start_type", "rf_events", "error"}

// CSV writes every event as a row of a CSV file.
type CSV struct {
	mu  sync.Mutex
	f   *os.File
	w   *csv.Writer
	err error
}

// NewCSV creates the file at path and writes the header.
func NewCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &CSV{f: f, w: w}, nil
}

// Record implements sched.Recorder. The first write error is kept and
// returned by Close.
func (c *CSV) Record(ev sched.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil || c.w == nil {
		return
	}
	errText := ""
	if ev.Err != nil {
		errText = ev.Err.Error()
	}
	rec := []string{
		time.Now().Format(time.RFC3339Nano),
		strconv.FormatUint(uint64(ev.Time), 10),
		ev.Kind.String(),
		ev.Handle.String(),
		ev.Role.String(),
		strconv.FormatUint(uint64(ev.Start), 10),
		ev.StartType.String(),
		ev.RFEvents.String(),
		errText,
	}
	if err := c.w.Write(rec); err != nil {
		c.err = err
		return
	}
	c.w.Flush()
	c.err = c.w.Error()
}

// Close flushes and closes the file.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return c.err
	}
	c.w.Flush()
	if c.err == nil {
		c.err = c.w.Error()
	}
	if err := c.f.Close(); err != nil && c.err == nil {
		c.err = err
	}
	c.w = nil
	return c.err
}
