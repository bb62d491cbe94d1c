package batch

import (
	"fmt"
	"sync"
	"time"
)

const (
	StateIdle      = "idle"
	StateRendering = "rendering"
	StateFinished  = "finished"
	StateCancelled = "cancelled"
)

// Snapshot is a point-in-time view of a run, served by the status API and
// shown in the tray.
type Snapshot struct {
	State       string    `json:"state"`
	RunID       string    `json:"run_id,omitempty"`
	Index       int       `json:"index"`
	Total       int       `json:"total"`
	CurrentFile string    `json:"current_file,omitempty"`
	Project     string    `json:"project,omitempty"`
	Percent     int       `json:"percent"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

// Label is the one-line form used by the tray.
func (s Snapshot) Label() string {
	switch s.State {
	case StateRendering:
		if s.Percent > 0 {
			return fmt.Sprintf("Rendering %d/%d (%d%%)", s.Index, s.Total, s.Percent)
		}
		return fmt.Sprintf("Rendering %d/%d", s.Index, s.Total)
	case StateFinished:
		return fmt.Sprintf("Finished: %d ok, %d failed", s.Succeeded, s.Failed)
	case StateCancelled:
		return fmt.Sprintf("Cancelled: %d ok, %d failed, %d skipped", s.Succeeded, s.Failed, s.Skipped)
	default:
		return "Idle"
	}
}

// Progress tracks the current run. Safe for concurrent use.
type Progress struct {
	mu sync.RWMutex
	s  Snapshot
}

func NewProgress() *Progress {
	return &Progress{s: Snapshot{State: StateIdle}}
}

func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{State: StateIdle}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s
}

func (p *Progress) update(fn func(*Snapshot)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	fn(&p.s)
	p.mu.Unlock()
}

func (p *Progress) begin(runID string, total int) {
	p.update(func(s *Snapshot) {
		*s = Snapshot{State: StateRendering, RunID: runID, Total: total, StartedAt: time.Now()}
	})
}

func (p *Progress) startFile(index int, path string) {
	p.update(func(s *Snapshot) {
		s.Index = index
		s.CurrentFile = path
		s.Project = ""
		s.Percent = 0
	})
}

func (p *Progress) setProject(name string) {
	p.update(func(s *Snapshot) { s.Project = name })
}

func (p *Progress) setPercent(pct int) {
	p.update(func(s *Snapshot) { s.Percent = pct })
}

func (p *Progress) fileDone(status string) {
	p.update(func(s *Snapshot) {
		switch status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	})
}

func (p *Progress) finish(cancelled bool) {
	p.update(func(s *Snapshot) {
		s.State = StateFinished
		if cancelled {
			s.State = StateCancelled
		}
		s.CurrentFile = ""
		s.Project = ""
		s.Percent = 0
	})
}
