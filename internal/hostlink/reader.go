package hostlink

import (
	"context"
	"errors"
	"io"

	"github.com/danmuck/layermirror/internal/protocol/frame"
)

// ReadAll dispatches every frame in r to h until r is exhausted or ctx is
// done. Acks are dropped; resync requests stay pending in the returned
// dispatcher so the caller can report them.
func ReadAll(ctx context.Context, r io.Reader, h Handler, limits frame.Limits) (*Dispatcher, error) {
	if limits.MaxPayloadBytes == 0 {
		limits = frame.DefaultLimits()
	}
	disp := NewDispatcher(h, 0)
	for {
		if err := ctx.Err(); err != nil {
			return disp, err
		}
		f, err := frame.ReadFrame(r, limits)
		if errors.Is(err, io.EOF) {
			return disp, nil
		}
		if err != nil {
			return disp, err
		}
		if err := disp.Dispatch(f); err != nil {
			return disp, err
		}
	}
}
