package commands

import (
	"sync"

	"github.com/pterm/pterm"
)

// progressSink renders the progress of one task at a time as a pterm bar.
type progressSink struct {
	mu    sync.Mutex
	title string
	bar   *pterm.ProgressbarPrinter
}

func newProgressSink() *progressSink {
	return &progressSink{}
}

// begin resets the sink for the next task.
func (s *progressSink) begin(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.title = title
}

func (s *progressSink) PublishProgress(current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if total <= 0 {
		return
	}
	if s.bar == nil {
		bar, err := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle(s.title).
			WithRemoveWhenDone(true).
			Start()
		if err != nil {
			return
		}
		s.bar = bar
	}
	if delta := current - s.bar.Current; delta > 0 {
		s.bar.Add(delta)
	}
	if current >= total {
		s.stopLocked()
	}
}

func (s *progressSink) PublishStatus(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		s.bar.UpdateTitle(text)
	}
}

// finish stops a bar left running by a failed task.
func (s *progressSink) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *progressSink) stopLocked() {
	if s.bar != nil {
		_, _ = s.bar.Stop()
		s.bar = nil
	}
}
