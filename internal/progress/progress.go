// Package progress carries per-unit progress updates from long-running
// operations to whoever is watching them.
package progress

import (
	"math"
	"sync"
)

// Update is one progress report.
type Update struct {
	JobID     string
	Completed int
	Total     int
	Percent   int
	Label     string
	// Err is set when the unit that triggered this update failed.
	Err error
}

// NewUpdate computes Percent as completed/total rounded to the nearest
// integer.
func NewUpdate(jobID string, completed, total int, label string, err error) Update {
	return Update{
		JobID:     jobID,
		Completed: completed,
		Total:     total,
		Percent:   Percent(completed, total),
		Label:     label,
		Err:       err,
	}
}

// Percent returns round(completed/total*100). A zero total is 100%.
func Percent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Reporter receives progress updates.
type Reporter interface {
	Report(update Update)
}

// Func adapts a function to Reporter.
type Func func(Update)

// Report implements Reporter.
func (f Func) Report(update Update) {
	f(update)
}

// ChannelReporter sends updates to a channel.
type ChannelReporter struct {
	ch chan<- Update
}

// NewChannelReporter creates a reporter that sends updates to ch.
func NewChannelReporter(ch chan<- Update) *ChannelReporter {
	return &ChannelReporter{ch: ch}
}

// Report drops the update if the channel is full.
func (r *ChannelReporter) Report(update Update) {
	select {
	case r.ch <- update:
	default:
	}
}

// MultiReporter fans out to multiple reporters.
type MultiReporter struct {
	mu        sync.RWMutex
	reporters []Reporter
}

// NewMultiReporter creates a reporter that forwards to reporters, skipping nil entries.
func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

// Add registers another reporter.
func (m *MultiReporter) Add(r Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, r)
}

// Report forwards the update to every registered reporter.
func (m *MultiReporter) Report(update Update) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reporters {
		if r != nil {
			r.Report(update)
		}
	}
}

// Noop discards all updates.
type Noop struct{}

// Report implements Reporter.
func (Noop) Report(Update) {}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Reporter) Reporter {
	if r == nil {
		return Noop{}
	}
	return r
}

var (
	_ Reporter = Func(nil)
	_ Reporter = (*ChannelReporter)(nil)
	_ Reporter = (*MultiReporter)(nil)
	_ Reporter = Noop{}
)
