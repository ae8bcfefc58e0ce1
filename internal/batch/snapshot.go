package batch

import "promptbatch/internal/domain"

// Snapshot is an immutable view of the panel. Jobs is never nil so clients
// always receive a JSON array.
type Snapshot struct {
	Version          uint64         `json:"version"`
	Batch            *domain.Batch  `json:"batch,omitempty"`
	Jobs             []domain.Job   `json:"jobs"`
	Progress         Progress       `json:"progress"`
	Active           bool           `json:"active"`
	CurrentIndex     int            `json:"current_index"`
	Notice           *domain.Notice `json:"notice,omitempty"`
	CopiedPromptID   string         `json:"copied_prompt_id,omitempty"`
	Input            string         `json:"input"`
	InputPromptCount int            `json:"input_prompt_count"`
}

// Snapshot returns the current panel state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	// c.jobs is replaced on every change and never mutated in place.
	jobs := c.jobs
	if jobs == nil {
		jobs = []domain.Job{}
	}
	s := Snapshot{
		Version:          c.version,
		Jobs:             jobs,
		Progress:         ComputeProgress(jobs),
		Active:           c.active,
		CurrentIndex:     c.current,
		CopiedPromptID:   c.copiedID,
		Input:            c.input,
		InputPromptCount: len(ParsePrompts(c.input)),
	}
	if c.batch != nil {
		b := *c.batch
		s.Batch = &b
	}
	if c.notice != nil {
		n := *c.notice
		s.Notice = &n
	}
	return s
}
