package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates the lifecycle of one prompt in a batch.
// Pending is the only non-terminal state.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// AspectRatio is the output shape applied to every job of a batch.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectClassic   AspectRatio = "4:3"
	AspectTall      AspectRatio = "3:4"

	DefaultAspectRatio = AspectSquare
)

// AspectRatios lists the supported ratios in display order.
func AspectRatios() []AspectRatio {
	return []AspectRatio{AspectSquare, AspectLandscape, AspectPortrait, AspectClassic, AspectTall}
}

// ParseAspectRatio validates user input. An empty value selects the default.
func ParseAspectRatio(raw string) (AspectRatio, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return DefaultAspectRatio, nil
	}
	for _, r := range AspectRatios() {
		if string(r) == v {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAspectRatio, raw)
}

// ImageReference is an opaque handle to generated image content: a URL or a
// data URI that a browser can render and download.
type ImageReference = string

// Job is one prompt's generation request and its resolved outcome.
type Job struct {
	ID          string         `json:"id"`
	Index       int            `json:"index"`
	Prompt      string         `json:"prompt"`
	Status      JobStatus      `json:"status"`
	Result      ImageReference `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// JobID derives the stable identifier of the job at index for a batch created at createdAt.
func JobID(createdAt time.Time, index int) string {
	return fmt.Sprintf("%d-%d", createdAt.UnixMilli(), index)
}

// Batch is an ordered set of jobs created from one submission.
type Batch struct {
	ID          string      `json:"id"`
	AspectRatio AspectRatio `json:"aspect_ratio"`
	CreatedAt   time.Time   `json:"created_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}
