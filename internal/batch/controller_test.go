package batch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"promptbatch/internal/domain"
)

type genResult struct {
	ref string
	err error
}

type stubGenerator struct {
	mu       sync.Mutex
	results  map[string]genResult
	calls    []string
	inFlight int
	maxSeen  int
	block    chan struct{}
	started  chan struct{}
	panicOn  string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, aspect domain.AspectRatio) (domain.ImageReference, error) {
	s.mu.Lock()
	s.calls = append(s.calls, prompt)
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	block := s.block
	s.mu.Unlock()

	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if prompt == s.panicOn {
		panic("provider exploded")
	}
	if r, ok := s.results[prompt]; ok {
		return r.ref, r.err
	}
	return "img://" + prompt, nil
}

func (s *stubGenerator) prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubClipboard struct {
	mu   sync.Mutex
	text []string
	err  error
}

func (s *stubClipboard) WriteText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.text = append(s.text, text)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (p *recordingPublisher) Publish(s Snapshot) {
	p.mu.Lock()
	p.snapshots = append(p.snapshots, s)
	p.mu.Unlock()
}

func (p *recordingPublisher) all() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Snapshot(nil), p.snapshots...)
}

func newTestController(t *testing.T, opts Options) *Controller {
	t.Helper()
	if opts.Generator == nil {
		opts.Generator = &stubGenerator{}
	}
	c, err := NewController(opts)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewControllerRequiresGenerator(t *testing.T) {
	if _, err := NewController(Options{}); err == nil {
		t.Fatalf("expected error without generator")
	}
}

func TestParsePrompts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "blank lines dropped", raw: "a cat\n\nb dog\n", want: []string{"a cat", "b dog"}},
		{name: "trimmed", raw: "  one  \n\ttwo\t", want: []string{"one", "two"}},
		{name: "crlf", raw: "x\r\ny\rz", want: []string{"x", "y", "z"}},
		{name: "empty", raw: "", want: []string{}},
		{name: "whitespace only", raw: " \n\t\n ", want: []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParsePrompts(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParsePrompts(%q) = %#v, want %#v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParsePromptsIdempotent(t *testing.T) {
	inputs := []string{"a cat\n\nb dog\n", "  x \r\n y", "single"}
	for _, raw := range inputs {
		once := ParsePrompts(raw)
		joined := ""
		for i, p := range once {
			if i > 0 {
				joined += "\n"
			}
			joined += p
		}
		twice := ParsePrompts(joined)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("not idempotent for %q: %#v vs %#v", raw, once, twice)
		}
	}
}

func TestComputeProgress(t *testing.T) {
	jobs := []domain.Job{
		{Status: domain.JobStatusDone},
		{Status: domain.JobStatusFailed},
		{Status: domain.JobStatusPending},
	}
	p := ComputeProgress(jobs)
	if p.Total != 3 || p.Completed != 2 || p.Succeeded != 1 || p.Failed != 1 || p.Percent != 67 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if empty := ComputeProgress(nil); empty.Percent != 0 || empty.Total != 0 {
		t.Fatalf("unexpected empty progress: %+v", empty)
	}
}

func TestSubmitCreatesPendingJobsInOrder(t *testing.T) {
	gen := &stubGenerator{block: make(chan struct{})}
	c := newTestController(t, Options{Generator: gen})

	snap, err := c.Submit("a cat\n\nb dog\n", "1:1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(snap.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(snap.Jobs))
	}
	for i, want := range []string{"a cat", "b dog"} {
		job := snap.Jobs[i]
		if job.Prompt != want || job.Index != i || job.Status != domain.JobStatusPending {
			t.Fatalf("job %d = %+v", i, job)
		}
	}
	if snap.Jobs[0].ID == snap.Jobs[1].ID {
		t.Fatalf("job ids must be unique")
	}
	if !snap.Active || snap.Batch == nil || snap.Batch.AspectRatio != domain.AspectSquare {
		t.Fatalf("unexpected batch state: %+v", snap)
	}
	close(gen.block)
	c.Wait()
}

func TestBatchFailSoftContinuation(t *testing.T) {
	gen := &stubGenerator{results: map[string]genResult{
		"a cat": {ref: "img://1"},
		"b dog": {err: errors.New("timeout")},
	}}
	c := newTestController(t, Options{Generator: gen})

	if _, err := c.Submit("a cat\nb dog", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Wait()

	snap := c.Snapshot()
	if snap.Active || c.IsActive() {
		t.Fatalf("batch should be inactive after completion")
	}
	if got := snap.Jobs[0]; got.Status != domain.JobStatusDone || got.Result != "img://1" || got.Error != "" {
		t.Fatalf("job 0 = %+v", got)
	}
	if got := snap.Jobs[1]; got.Status != domain.JobStatusFailed || got.Error != "timeout" || got.Result != "" {
		t.Fatalf("job 1 = %+v", got)
	}
	if snap.Progress.Percent != 100 || snap.Progress.Completed != 2 {
		t.Fatalf("progress = %+v", snap.Progress)
	}
	if snap.Batch.FinishedAt == nil {
		t.Fatalf("expected FinishedAt to be set")
	}
	if snap.Notice == nil || snap.Notice.Code != domain.NoticeBatchFinished {
		t.Fatalf("expected batch_finished notice, got %+v", snap.Notice)
	}
	if snap.Notice.Params["succeeded"] != 1 || snap.Notice.Params["failed"] != 1 {
		t.Fatalf("unexpected notice params: %+v", snap.Notice.Params)
	}
	if snap.CurrentIndex != -1 {
		t.Fatalf("CurrentIndex = %d, want -1", snap.CurrentIndex)
	}
}

func TestBatchIsSequentialAndOrdered(t *testing.T) {
	gen := &stubGenerator{}
	pub := &recordingPublisher{}
	c := newTestController(t, Options{Generator: gen, Publisher: pub})

	prompts := []string{"p1", "p2", "p3", "p4", "p5"}
	if _, err := c.StartBatch(prompts, "16:9"); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	c.Wait()

	if !reflect.DeepEqual(gen.prompts(), prompts) {
		t.Fatalf("dispatch order = %v", gen.prompts())
	}
	if gen.maxSeen != 1 {
		t.Fatalf("expected at most one generation in flight, saw %d", gen.maxSeen)
	}

	last := -1
	var lastVersion uint64
	for _, s := range pub.all() {
		if s.Progress.Completed > s.Progress.Total {
			t.Fatalf("completed exceeds total: %+v", s.Progress)
		}
		if s.Progress.Completed < last {
			t.Fatalf("progress went backwards: %d after %d", s.Progress.Completed, last)
		}
		if s.Version <= lastVersion {
			t.Fatalf("version not increasing: %d after %d", s.Version, lastVersion)
		}
		wantCurrent := s.Progress.Completed
		if !s.Active {
			wantCurrent = -1
		}
		if s.CurrentIndex != wantCurrent {
			t.Fatalf("current_index = %d with %d completed (active=%v), want %d", s.CurrentIndex, s.Progress.Completed, s.Active, wantCurrent)
		}
		last = s.Progress.Completed
		lastVersion = s.Version
	}
	if last != len(prompts) {
		t.Fatalf("final completed = %d, want %d", last, len(prompts))
	}
}

func TestStartBatchWhileActiveLeavesJobsUnchanged(t *testing.T) {
	gen := &stubGenerator{block: make(chan struct{})}
	c := newTestController(t, Options{Generator: gen})

	first, err := c.StartBatch([]string{"one", "two"}, "")
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}

	snap, err := c.StartBatch([]string{"three"}, "")
	if !errors.Is(err, domain.ErrBatchActive) {
		t.Fatalf("expected ErrBatchActive, got %v", err)
	}
	if snap.Batch.ID != first.Batch.ID || len(snap.Jobs) != 2 || snap.Jobs[0].Prompt != "one" {
		t.Fatalf("active batch was modified: %+v", snap)
	}
	if snap.Notice == nil || snap.Notice.Code != domain.NoticeBatchActive || snap.Notice.Kind != domain.NoticeInfo {
		t.Fatalf("expected batch_active notice, got %+v", snap.Notice)
	}

	close(gen.block)
	c.Wait()
	if got := gen.prompts(); !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Fatalf("generator saw %v", got)
	}
}

func TestEmptyInputKeepsPriorBatch(t *testing.T) {
	c := newTestController(t, Options{})

	if _, err := c.Submit("keep me", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Wait()
	before := c.Snapshot()

	for _, raw := range []string{"", "   \n\t "} {
		snap, err := c.StartBatch(ParsePrompts(raw), "")
		if !errors.Is(err, domain.ErrInputEmpty) {
			t.Fatalf("expected ErrInputEmpty for %q, got %v", raw, err)
		}
		if snap.Batch.ID != before.Batch.ID || !reflect.DeepEqual(snap.Jobs, before.Jobs) {
			t.Fatalf("prior batch changed")
		}
		if snap.Notice == nil || snap.Notice.Code != domain.NoticeInputEmpty || snap.Notice.Kind != domain.NoticeError {
			t.Fatalf("expected input_empty notice, got %+v", snap.Notice)
		}
	}
}

func TestSubmitFallsBackToDraftInput(t *testing.T) {
	c := newTestController(t, Options{})
	c.SetInput("from draft\nsecond")

	snap, err := c.Submit("  ", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(snap.Jobs) != 2 || snap.Jobs[0].Prompt != "from draft" {
		t.Fatalf("unexpected jobs: %+v", snap.Jobs)
	}
	c.Wait()
}

func TestStartBatchRejectsUnknownAspect(t *testing.T) {
	c := newTestController(t, Options{})
	if _, err := c.StartBatch([]string{"x"}, "2:1"); !errors.Is(err, domain.ErrUnsupportedAspectRatio) {
		t.Fatalf("expected ErrUnsupportedAspectRatio, got %v", err)
	}
	if c.IsActive() {
		t.Fatalf("no batch should start")
	}
}

func TestGeneratorPanicAndEmptyReferenceFailJob(t *testing.T) {
	gen := &stubGenerator{
		panicOn: "boom",
		results: map[string]genResult{"blank": {ref: ""}},
	}
	c := newTestController(t, Options{Generator: gen})

	if _, err := c.StartBatch([]string{"boom", "blank", "fine"}, ""); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	c.Wait()

	snap := c.Snapshot()
	for i, want := range []domain.JobStatus{domain.JobStatusFailed, domain.JobStatusFailed, domain.JobStatusDone} {
		if snap.Jobs[i].Status != want {
			t.Fatalf("job %d status = %s, want %s", i, snap.Jobs[i].Status, want)
		}
	}
	if snap.Jobs[0].Error == "" {
		t.Fatalf("expected an error message for the panicking job")
	}
}

func TestJobTimeoutFailsSlowJob(t *testing.T) {
	gen := &stubGenerator{block: make(chan struct{})}
	c := newTestController(t, Options{Generator: gen, JobTimeout: 20 * time.Millisecond})

	if _, err := c.StartBatch([]string{"slow"}, ""); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	c.Wait()
	job, err := c.JobAt(0)
	if err != nil {
		t.Fatalf("JobAt: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
}

func TestCloseFailsRemainingJobs(t *testing.T) {
	gen := &stubGenerator{block: make(chan struct{}), started: make(chan struct{}, 1)}
	c, err := NewController(Options{Generator: gen})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if _, err := c.StartBatch([]string{"a", "b", "c"}, ""); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first job never reached the generator")
	}
	c.Close()

	snap := c.Snapshot()
	if snap.Active {
		t.Fatalf("batch should not be active after Close")
	}
	for _, job := range snap.Jobs {
		if job.Status != domain.JobStatusFailed {
			t.Fatalf("job %d status = %s, want failed", job.Index, job.Status)
		}
	}
	if len(gen.prompts()) != 1 {
		t.Fatalf("only the in-flight job should reach the generator, got %v", gen.prompts())
	}
	if _, err := c.StartBatch([]string{"later"}, ""); err == nil {
		t.Fatalf("expected StartBatch to fail after Close")
	}
}

func TestClearOperationsLockedWhileActive(t *testing.T) {
	gen := &stubGenerator{block: make(chan struct{})}
	c := newTestController(t, Options{Generator: gen})
	c.SetInput("one")

	if _, err := c.Submit("", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := c.ClearResults(); !errors.Is(err, domain.ErrBatchLocked) {
		t.Fatalf("ClearResults: expected ErrBatchLocked, got %v", err)
	}
	if n := c.Snapshot().Notice; n == nil || n.Code != domain.NoticeResultsLocked {
		t.Fatalf("expected results_locked notice, got %+v", n)
	}
	if err := c.ClearInput(); !errors.Is(err, domain.ErrBatchLocked) {
		t.Fatalf("ClearInput: expected ErrBatchLocked, got %v", err)
	}
	if got := c.SetInput("edited").Input; got != "edited" {
		t.Fatalf("SetInput while active = %q", got)
	}

	close(gen.block)
	c.Wait()

	if err := c.ClearResults(); err != nil {
		t.Fatalf("ClearResults: %v", err)
	}
	if err := c.ClearInput(); err != nil {
		t.Fatalf("ClearInput: %v", err)
	}
	snap := c.Snapshot()
	if snap.Batch != nil || len(snap.Jobs) != 0 || snap.Input != "" {
		t.Fatalf("expected cleared panel, got %+v", snap)
	}
	if snap.Jobs == nil {
		t.Fatalf("Jobs must be non-nil")
	}
}

func TestNoticeAutoDismiss(t *testing.T) {
	c := newTestController(t, Options{NoticeTTL: 30 * time.Millisecond})

	if _, err := c.Submit("", ""); !errors.Is(err, domain.ErrInputEmpty) {
		t.Fatalf("expected ErrInputEmpty, got %v", err)
	}
	if c.Snapshot().Notice == nil {
		t.Fatalf("expected a notice")
	}
	waitFor(t, time.Second, func() bool { return c.Snapshot().Notice == nil })
}

func TestNewNoticeReplacesOld(t *testing.T) {
	c := newTestController(t, Options{NoticeTTL: time.Hour})

	_, _ = c.Submit("", "")
	first := c.Snapshot().Notice
	_ = c.CopyPrompt(context.Background(), "missing")
	second := c.Snapshot().Notice
	if first == nil || second == nil || first.ID == second.ID {
		t.Fatalf("expected the notice to be replaced: %+v then %+v", first, second)
	}

	c.DismissNotice(first.ID)
	if c.Snapshot().Notice == nil {
		t.Fatalf("dismissing a stale id must not clear the newer notice")
	}
	c.DismissNotice(second.ID)
	if c.Snapshot().Notice != nil {
		t.Fatalf("expected notice dismissed")
	}
}

func TestCopyPromptWithoutClipboard(t *testing.T) {
	c := newTestController(t, Options{})

	err := c.CopyPrompt(context.Background(), "x")
	if !errors.Is(err, domain.ErrClipboardUnavailable) {
		t.Fatalf("expected ErrClipboardUnavailable, got %v", err)
	}
	snap := c.Snapshot()
	if snap.CopiedPromptID != "" {
		t.Fatalf("CopiedPromptID = %q, want unset", snap.CopiedPromptID)
	}
	if snap.Notice == nil || snap.Notice.Code != domain.NoticeClipboardUnavailable {
		t.Fatalf("expected clipboard_unavailable notice, got %+v", snap.Notice)
	}
}

func TestCopyPromptSetsIndicatorThenClears(t *testing.T) {
	cb := &stubClipboard{}
	c := newTestController(t, Options{Clipboard: cb, CopiedTTL: 30 * time.Millisecond})

	snap, err := c.StartBatch([]string{"a cat"}, "")
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	c.Wait()
	id := snap.Jobs[0].ID

	if err := c.CopyPrompt(context.Background(), id); err != nil {
		t.Fatalf("CopyPrompt: %v", err)
	}
	if got := c.Snapshot().CopiedPromptID; got != id {
		t.Fatalf("CopiedPromptID = %q, want %q", got, id)
	}
	if len(cb.text) != 1 || cb.text[0] != "a cat" {
		t.Fatalf("clipboard got %v", cb.text)
	}
	waitFor(t, time.Second, func() bool { return c.Snapshot().CopiedPromptID == "" })
}

func TestCopyPromptRecopyExtendsIndicator(t *testing.T) {
	cb := &stubClipboard{}
	c := newTestController(t, Options{Clipboard: cb, CopiedTTL: 80 * time.Millisecond})

	snap, _ := c.StartBatch([]string{"one", "two"}, "")
	c.Wait()

	if err := c.CopyPrompt(context.Background(), snap.Jobs[0].ID); err != nil {
		t.Fatalf("CopyPrompt: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := c.CopyPrompt(context.Background(), snap.Jobs[1].ID); err != nil {
		t.Fatalf("CopyPrompt: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := c.Snapshot().CopiedPromptID; got != snap.Jobs[1].ID {
		t.Fatalf("CopiedPromptID = %q, want %q", got, snap.Jobs[1].ID)
	}
}

func TestCopyPromptFailures(t *testing.T) {
	cb := &stubClipboard{err: errors.New("xclip missing")}
	c := newTestController(t, Options{Clipboard: cb})

	if err := c.CopyPrompt(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := c.Snapshot().Notice; n == nil || n.Code != domain.NoticePromptNotFound {
		t.Fatalf("expected prompt_not_found notice, got %+v", n)
	}

	snap, _ := c.StartBatch([]string{"p"}, "")
	c.Wait()
	err := c.CopyPrompt(context.Background(), snap.Jobs[0].ID)
	if !errors.Is(err, domain.ErrClipboardWrite) {
		t.Fatalf("expected ErrClipboardWrite, got %v", err)
	}
	after := c.Snapshot()
	if after.CopiedPromptID != "" {
		t.Fatalf("CopiedPromptID should stay unset on failure")
	}
	if after.Notice == nil || after.Notice.Code != domain.NoticeClipboardWriteFailed {
		t.Fatalf("expected clipboard_write_failed notice, got %+v", after.Notice)
	}
}

func TestJobLookup(t *testing.T) {
	c := newTestController(t, Options{})
	snap, _ := c.StartBatch([]string{"a", "b"}, "")
	c.Wait()

	job, err := c.Job(snap.Jobs[1].ID)
	if err != nil || job.Prompt != "b" {
		t.Fatalf("Job = %+v, %v", job, err)
	}
	if _, err := c.Job("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.JobAt(5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
