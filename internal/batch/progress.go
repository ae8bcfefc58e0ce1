package batch

import (
	"math"

	"promptbatch/internal/domain"
)

// Progress aggregates job outcomes for a progress bar.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Percent   int `json:"percent"`
}

// ComputeProgress counts resolved jobs. Percent is round(100*completed/total)
// and 0 for an empty batch.
func ComputeProgress(jobs []domain.Job) Progress {
	p := Progress{Total: len(jobs)}
	for _, job := range jobs {
		switch job.Status {
		case domain.JobStatusDone:
			p.Succeeded++
		case domain.JobStatusFailed:
			p.Failed++
		}
	}
	p.Completed = p.Succeeded + p.Failed
	if p.Total > 0 {
		p.Percent = int(math.Round(100 * float64(p.Completed) / float64(p.Total)))
	}
	return p
}
