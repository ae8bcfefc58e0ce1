package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInputEmpty             = errors.New("at least one prompt is required")
	ErrBatchActive            = errors.New("a batch is already in progress")
	ErrBatchLocked            = errors.New("not allowed while a batch is in progress")
	ErrClipboardUnavailable   = errors.New("clipboard unavailable")
	ErrClipboardWrite         = errors.New("clipboard write failed")
	ErrUnsupportedAspectRatio = errors.New("unsupported aspect ratio")
	ErrJobNotReady            = errors.New("job has no image yet")
	ErrGenerationFailed       = errors.New("generation failed")
)
