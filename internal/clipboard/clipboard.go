// Package clipboard exposes the host clipboard as a batch.Clipboard.
package clipboard

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// System writes to the operating system clipboard.
type System struct {
	write func(string) error
}

// New returns the system clipboard, or nil when disabled or when the host has
// no clipboard utility. Callers treat nil as "capability absent".
func New(enabled bool) *System {
	if !enabled || clipboard.Unsupported {
		return nil
	}
	return &System{write: clipboard.WriteAll}
}

// WriteText copies text to the clipboard.
func (s *System) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.write(text); err != nil {
		return fmt.Errorf("clipboard: write: %w", err)
	}
	return nil
}
