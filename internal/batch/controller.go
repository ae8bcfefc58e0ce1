// Package batch owns the panel state: the current batch, its jobs, the draft
// prompt input and the transient notice and copied indicators. Every
// mutation goes through Controller, and a single worker goroutine drains the
// active batch one prompt at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"promptbatch/internal/domain"
	"promptbatch/internal/i18n"
	"promptbatch/internal/infra"
	"promptbatch/internal/schedule"
)

// Generator turns one prompt into an image reference.
type Generator interface {
	Generate(ctx context.Context, prompt string, aspect domain.AspectRatio) (domain.ImageReference, error)
}

// Clipboard writes text to the host clipboard.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Publisher receives every state change. Publish must not block.
type Publisher interface {
	Publish(Snapshot)
}

// Options configures a Controller.
type Options struct {
	Generator Generator
	// Clipboard may be nil when the host has no clipboard.
	Clipboard Clipboard
	Publisher Publisher
	Logger    *infra.Logger
	// JobTimeout bounds a single generation call. Zero disables it.
	JobTimeout time.Duration
	NoticeTTL  time.Duration
	CopiedTTL  time.Duration
	Now        func() time.Time
}

const (
	defaultNoticeTTL = 3 * time.Second
	defaultCopiedTTL = 2 * time.Second
)

// Controller serialises panel operations.
type Controller struct {
	gen        Generator
	clipboard  Clipboard
	publisher  Publisher
	log        zerolog.Logger
	jobTimeout time.Duration
	noticeTTL  time.Duration
	copiedTTL  time.Duration
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	version   uint64
	batch     *domain.Batch
	jobs      []domain.Job
	active    bool
	current   int
	input     string
	notice    *domain.Notice
	noticeSeq uint64
	copiedID  string
	copiedSeq uint64
	closed    bool

	noticeTimer schedule.Timer
	copiedTimer schedule.Timer
}

// NewController builds an idle controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Generator == nil {
		return nil, errors.New("batch: generator is required")
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	noticeTTL := opts.NoticeTTL
	if noticeTTL <= 0 {
		noticeTTL = defaultNoticeTTL
	}
	copiedTTL := opts.CopiedTTL
	if copiedTTL <= 0 {
		copiedTTL = defaultCopiedTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		gen:        opts.Generator,
		clipboard:  opts.Clipboard,
		publisher:  opts.Publisher,
		log:        logger.With().Str("component", "batch").Logger(),
		jobTimeout: opts.JobTimeout,
		noticeTTL:  noticeTTL,
		copiedTTL:  copiedTTL,
		now:        now,
		ctx:        ctx,
		cancel:     cancel,
		current:    -1,
	}, nil
}

// Submit parses raw multi-line input and starts a batch from it. Blank raw
// input falls back to the stored draft.
func (c *Controller) Submit(raw, aspect string) (Snapshot, error) {
	if strings.TrimSpace(raw) == "" {
		c.mu.Lock()
		raw = c.input
		c.mu.Unlock()
	}
	return c.StartBatch(ParsePrompts(raw), aspect)
}

// StartBatch replaces the finished batch with a new one built from prompts
// and starts processing it. It is rejected while another batch is active.
func (c *Controller) StartBatch(prompts []string, aspect string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.snapshotLocked(), context.Canceled
	}
	if c.active {
		c.setNoticeLocked(domain.NoticeInfo, domain.NoticeBatchActive, nil)
		c.publishLocked()
		return c.snapshotLocked(), domain.ErrBatchActive
	}
	prompts = cleanPrompts(prompts)
	if len(prompts) == 0 {
		c.setNoticeLocked(domain.NoticeError, domain.NoticeInputEmpty, nil)
		c.publishLocked()
		return c.snapshotLocked(), domain.ErrInputEmpty
	}
	ratio, err := domain.ParseAspectRatio(aspect)
	if err != nil {
		return c.snapshotLocked(), err
	}

	createdAt := c.now()
	b := &domain.Batch{
		ID:          uuid.NewString(),
		AspectRatio: ratio,
		CreatedAt:   createdAt,
	}
	jobs := make([]domain.Job, len(prompts))
	for i, p := range prompts {
		jobs[i] = domain.Job{
			ID:     domain.JobID(createdAt, i),
			Index:  i,
			Prompt: p,
			Status: domain.JobStatusPending,
		}
	}

	c.batch = b
	c.jobs = jobs
	c.active = true
	c.current = 0
	c.clearCopiedLocked()

	c.log.Info().
		Str("batch_id", b.ID).
		Int("jobs", len(jobs)).
		Str("aspect_ratio", string(ratio)).
		Msg("batch started")

	c.wg.Add(1)
	go c.run(b, jobs)

	c.publishLocked()
	return c.snapshotLocked(), nil
}

// run drains the batch strictly in order. Job n+1 is dispatched only after
// job n has resolved.
func (c *Controller) run(b *domain.Batch, jobs []domain.Job) {
	defer c.wg.Done()
	for i, job := range jobs {
		var (
			ref domain.ImageReference
			err error
		)
		if ctxErr := c.ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else {
			ref, err = c.generate(job.Prompt, b.AspectRatio)
		}

		log := c.log.With().Str("batch_id", b.ID).Str("job_id", job.ID).Int("index", i).Logger()
		if err != nil {
			log.Warn().Err(err).Msg("job failed")
		} else {
			log.Debug().Msg("job done")
		}
		c.resolve(i, ref, err)
	}
}

func (c *Controller) generate(prompt string, aspect domain.AspectRatio) (ref domain.ImageReference, err error) {
	ctx := c.ctx
	if c.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.jobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			ref = ""
			err = fmt.Errorf("%w: %v", domain.ErrGenerationFailed, r)
		}
	}()
	ref, err = c.gen.Generate(ctx, prompt, aspect)
	if err == nil && strings.TrimSpace(ref) == "" {
		err = fmt.Errorf("%w: empty image reference", domain.ErrGenerationFailed)
	}
	return ref, err
}

// resolve records the outcome of job i and points current at the next job,
// so the published snapshot already names the job being dispatched. For the
// last job it finishes the batch in the same critical section.
func (c *Controller) resolve(i int, ref domain.ImageReference, genErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	completedAt := c.now()
	jobs := make([]domain.Job, len(c.jobs))
	copy(jobs, c.jobs)
	job := jobs[i]
	job.CompletedAt = &completedAt
	if genErr != nil {
		job.Status = domain.JobStatusFailed
		job.Result = ""
		job.Error = errorMessage(genErr)
	} else {
		job.Status = domain.JobStatusDone
		job.Result = ref
		job.Error = ""
	}
	jobs[i] = job
	c.jobs = jobs
	c.current = i + 1

	if i == len(jobs)-1 {
		c.active = false
		c.current = -1
		finished := *c.batch
		finished.FinishedAt = &completedAt
		c.batch = &finished

		p := ComputeProgress(jobs)
		c.setNoticeLocked(domain.NoticeSuccess, domain.NoticeBatchFinished, map[string]any{
			"succeeded": p.Succeeded,
			"failed":    p.Failed,
		})
		c.log.Info().
			Str("batch_id", finished.ID).
			Int("succeeded", p.Succeeded).
			Int("failed", p.Failed).
			Msg("batch finished")
	}
	c.publishLocked()
}

func errorMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return domain.ErrGenerationFailed.Error()
	}
	return msg
}

// IsActive reports whether a batch is still being processed.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ClearResults drops the finished batch.
func (c *Controller) ClearResults() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.setNoticeLocked(domain.NoticeInfo, domain.NoticeResultsLocked, nil)
		c.publishLocked()
		return domain.ErrBatchLocked
	}
	c.batch = nil
	c.jobs = nil
	c.clearCopiedLocked()
	c.publishLocked()
	return nil
}

// SetInput stores the draft prompt text.
func (c *Controller) SetInput(text string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
	c.publishLocked()
	return c.snapshotLocked()
}

// ClearInput empties the draft. It is rejected while a batch is active.
func (c *Controller) ClearInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.setNoticeLocked(domain.NoticeInfo, domain.NoticeInputLocked, nil)
		c.publishLocked()
		return domain.ErrBatchLocked
	}
	c.input = ""
	c.publishLocked()
	return nil
}

// DismissNotice clears the banner if id is still the one displayed.
func (c *Controller) DismissNotice(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil || c.notice.ID != id {
		return
	}
	c.noticeTimer.Cancel()
	c.notice = nil
	c.publishLocked()
}

// Job returns a copy of the job with id.
func (c *Controller) Job(id string) (domain.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, job := range c.jobs {
		if job.ID == id {
			return job, nil
		}
	}
	return domain.Job{}, domain.ErrNotFound
}

// JobAt returns a copy of the job at index.
func (c *Controller) JobAt(index int) (domain.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.jobs) {
		return domain.Job{}, domain.ErrNotFound
	}
	return c.jobs[index], nil
}

// Wait blocks until the worker goroutine has drained the current batch.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight generation, fails the remaining jobs and stops
// every pending timer.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.noticeTimer.Stop()
	c.copiedTimer.Stop()
}

// setNoticeLocked replaces the banner and schedules its dismissal.
func (c *Controller) setNoticeLocked(kind domain.NoticeKind, code domain.NoticeCode, params map[string]any) {
	c.noticeSeq++
	seq := c.noticeSeq
	c.notice = &domain.Notice{
		ID:        seq,
		Kind:      kind,
		Code:      code,
		Message:   i18n.Default().Render(i18n.English, code, params),
		Params:    params,
		CreatedAt: c.now(),
	}
	c.noticeTimer.Schedule(c.noticeTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.noticeSeq != seq || c.notice == nil {
			return
		}
		c.notice = nil
		c.publishLocked()
	})
}

func (c *Controller) clearCopiedLocked() {
	c.copiedSeq++
	c.copiedID = ""
	c.copiedTimer.Cancel()
}

func (c *Controller) publishLocked() {
	c.version++
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(c.snapshotLocked())
}
