package codec

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jpfielding/pixeldata.go/pkg/pixel"
)

const msgFrameOverflow = "compressed frame exceeds uncompressed size"

var errFrameOverflow = errors.New(msgFrameOverflow)

// geometry is the per-frame description handed to an adapter.
type geometry struct {
	Width       int
	Height      int
	Components  int
	Bits        int
	Signed      bool
	Photometric pixel.Photometric
	Log         *slog.Logger
}

func (g geometry) logger() *slog.Logger {
	if g.Log != nil {
		return g.Log
	}
	return slog.Default()
}

// adapter bridges component planes and one engine's contract. encode output
// must fit in limit bytes.
type adapter interface {
	encode(ctx context.Context, g geometry, planes [][]int32, limit int) ([]byte, error)
	// decode returns the planes and whether they hold signed samples.
	decode(ctx context.Context, g geometry, data []byte) ([][]int32, bool, error)
}

// boundedWriter collects engine output up to a fixed size.
type boundedWriter struct {
	data  []byte
	limit int
}

func newBoundedWriter(limit int) *boundedWriter {
	return &boundedWriter{data: make([]byte, 0, limit), limit: limit}
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	if len(w.data)+len(p) > w.limit {
		return 0, errFrameOverflow
	}
	w.data = append(w.data, p...)
	return len(p), nil
}

func overflowError() *Error {
	return newError(ErrCodecEngine, msgFrameOverflow, nil)
}

// maskPlanes keeps the low bits of every sample, dropping anything stored
// above the high bit.
func maskPlanes(planes [][]int32, bits int) {
	if bits >= 32 {
		return
	}
	m := int32(1)<<bits - 1
	for _, p := range planes {
		for i := range p {
			p[i] &= m
		}
	}
}

// checkPlanes verifies decoded planes against the frame geometry.
func checkPlanes(g geometry, width, height int, planes [][]int32) error {
	if width != g.Width || height != g.Height || len(planes) != g.Components {
		return newError(ErrCodecEngine, "decoded frame geometry does not match the pixel data", nil)
	}
	n := g.Width * g.Height
	for _, p := range planes {
		if len(p) < n {
			return newError(ErrCodecEngine, "decoded frame is short", nil)
		}
	}
	return nil
}
