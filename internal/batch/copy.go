package batch

import (
	"context"
	"fmt"

	"promptbatch/internal/domain"
)

// CopyPrompt writes the prompt of job id to the clipboard and flags it as
// copied for the configured indicator duration.
func (c *Controller) CopyPrompt(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.clipboard == nil {
		c.setNoticeLocked(domain.NoticeError, domain.NoticeClipboardUnavailable, nil)
		c.publishLocked()
		c.mu.Unlock()
		return domain.ErrClipboardUnavailable
	}
	prompt, ok := c.promptLocked(id)
	if !ok {
		c.setNoticeLocked(domain.NoticeError, domain.NoticePromptNotFound, nil)
		c.publishLocked()
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	cb := c.clipboard
	c.mu.Unlock()

	err := cb.WriteText(ctx, prompt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn().Err(err).Str("job_id", id).Msg("clipboard write failed")
		c.setNoticeLocked(domain.NoticeError, domain.NoticeClipboardWriteFailed, nil)
		c.publishLocked()
		return fmt.Errorf("%w: %v", domain.ErrClipboardWrite, err)
	}

	c.copiedSeq++
	seq := c.copiedSeq
	c.copiedID = id
	c.copiedTimer.Schedule(c.copiedTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.copiedSeq != seq {
			return
		}
		c.copiedID = ""
		c.publishLocked()
	})
	c.publishLocked()
	return nil
}

func (c *Controller) promptLocked(id string) (string, bool) {
	for _, job := range c.jobs {
		if job.ID == id {
			return job.Prompt, true
		}
	}
	return "", false
}
