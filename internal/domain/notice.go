package domain

import "time"

// NoticeKind is the severity of a transient banner.
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
)

// NoticeCode identifies a banner message so the presentation layer can
// render it in the caller's language.
type NoticeCode string

const (
	NoticeInputEmpty           NoticeCode = "input_empty"
	NoticeBatchActive          NoticeCode = "batch_active"
	NoticeClipboardUnavailable NoticeCode = "clipboard_unavailable"
	NoticeClipboardWriteFailed NoticeCode = "clipboard_write_failed"
	NoticePromptNotFound       NoticeCode = "prompt_not_found"
	NoticeInputLocked          NoticeCode = "input_locked"
	NoticeResultsLocked        NoticeCode = "results_locked"
	NoticeBatchFinished        NoticeCode = "batch_finished"
)

// Notice is a transient, auto-dismissed banner.
type Notice struct {
	ID        uint64         `json:"id"`
	Kind      NoticeKind     `json:"kind"`
	Code      NoticeCode     `json:"code"`
	Message   string         `json:"message"`
	Params    map[string]any `json:"params,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
