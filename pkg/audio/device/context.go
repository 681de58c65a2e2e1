// Package device adapts the host sound hardware to the capture and playback
// interfaces via miniaudio. The microphone and the speaker are opened as two
// independent devices so either side can be released without touching the
// other.
package device

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/malgo"
)

// Context owns the miniaudio backend context shared by all devices. Create
// one per process and Close it after every device is released.
type Context struct {
	mctx *malgo.AllocatedContext
	log  *slog.Logger
}

// NewContext initializes the platform audio backend.
func NewContext(log *slog.Logger) (*Context, error) {
	if log == nil {
		log = slog.Default()
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("device: init audio context: %w", err)
	}
	return &Context{mctx: mctx, log: log}, nil
}

// Close releases the backend context. All devices must be closed first.
func (c *Context) Close() error {
	if c.mctx == nil {
		return nil
	}
	err := c.mctx.Uninit()
	c.mctx.Free()
	c.mctx = nil
	if err != nil {
		return fmt.Errorf("device: uninit audio context: %w", err)
	}
	return nil
}
