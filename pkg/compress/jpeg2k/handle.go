package jpeg2k

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrInvalidFormat = errors.New("jpeg2k: invalid codestream")
	ErrInvalidParams = errors.New("jpeg2k: invalid parameters")
	ErrUnsupported   = errors.New("jpeg2k: unsupported codestream feature")
	ErrReleased      = errors.New("jpeg2k: handle already released")
	ErrNotSetup      = errors.New("jpeg2k: codec not set up")
	ErrStreamFull    = errors.New("jpeg2k: output stream limit exceeded")
)

var live atomic.Int64

// LiveHandles reports the number of acquired and not yet released handles.
func LiveHandles() int64 {
	return live.Load()
}

type handle struct {
	released atomic.Bool
}

func (h *handle) acquire() {
	live.Add(1)
}

// release returns false when the handle was already released.
func (h *handle) release() bool {
	if h.released.CompareAndSwap(false, true) {
		live.Add(-1)
		return true
	}
	return false
}

func (h *handle) check() error {
	if h.released.Load() {
		return ErrReleased
	}
	return nil
}

// EventHandler receives one diagnostic message.
type EventHandler func(msg string)

// EventManager routes engine diagnostics. Nil handlers drop the event.
type EventManager struct {
	Error   EventHandler
	Warning EventHandler
	Info    EventHandler
}

func (em EventManager) errorf(format string, args ...any) {
	if em.Error != nil {
		em.Error(fmt.Sprintf(format, args...))
	}
}

func (em EventManager) warnf(format string, args ...any) {
	if em.Warning != nil {
		em.Warning(fmt.Sprintf(format, args...))
	}
}

func (em EventManager) infof(format string, args ...any) {
	if em.Info != nil {
		em.Info(fmt.Sprintf(format, args...))
	}
}

// fail reports err on the error channel and returns it.
func (em EventManager) fail(err error) error {
	em.errorf("%v", err)
	return err
}

// ColorSpace is informational; the codestream itself carries none.
type ColorSpace int

const (
	ColorUnknown ColorSpace = iota
	ColorUnspecified
	ColorSRGB
	ColorGray
	ColorSYCC
)

func (c ColorSpace) String() string {
	switch c {
	case ColorUnspecified:
		return "unspecified"
	case ColorSRGB:
		return "sRGB"
	case ColorGray:
		return "gray"
	case ColorSYCC:
		return "sYCC"
	default:
		return "unknown"
	}
}

// ComponentParams describes one image component.
type ComponentParams struct {
	Width     int
	Height    int
	Precision int
	Signed    bool
}

// Component is one plane of samples in row-major order.
type Component struct {
	ComponentParams
	Data []int32
}

// Image is a handle over planar component data.
type Image struct {
	handle
	Width      int
	Height     int
	Color      ColorSpace
	Components []Component
}

// NewImage acquires an image handle with zeroed component planes. Every
// component must share the image geometry.
func NewImage(params []ComponentParams, color ColorSpace) (*Image, error) {
	if len(params) == 0 || len(params) > 16384 {
		return nil, fmt.Errorf("%w: %d components", ErrInvalidParams, len(params))
	}
	w, h := params[0].Width, params[0].Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: image %dx%d", ErrInvalidParams, w, h)
	}
	img := &Image{Width: w, Height: h, Color: color}
	for i, p := range params {
		if p.Width != w || p.Height != h {
			return nil, fmt.Errorf("%w: component %d is %dx%d, image is %dx%d", ErrUnsupported, i, p.Width, p.Height, w, h)
		}
		if p.Precision < 1 || p.Precision > 16 {
			return nil, fmt.Errorf("%w: component %d precision %d", ErrInvalidParams, i, p.Precision)
		}
		img.Components = append(img.Components, Component{ComponentParams: p, Data: make([]int32, w*h)})
	}
	img.acquire()
	return img, nil
}

// Release frees the image. Further releases are no-ops.
func (img *Image) Release() {
	if img.release() {
		img.Components = nil
	}
}

// Stream is a bounded in-memory byte stream. Output streams implement
// io.Writer and refuse writes past their limit.
type Stream struct {
	handle
	data  []byte
	limit int
}

// NewInputStream acquires a stream reading data.
func NewInputStream(data []byte) *Stream {
	s := &Stream{data: data}
	s.acquire()
	return s
}

// NewOutputStream acquires an empty stream accepting at most limit bytes;
// limit <= 0 is unbounded.
func NewOutputStream(limit int) *Stream {
	s := &Stream{limit: limit}
	if limit > 0 {
		s.data = make([]byte, 0, limit)
	}
	s.acquire()
	return s
}

func (s *Stream) Write(p []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if s.limit > 0 && len(s.data)+len(p) > s.limit {
		return 0, ErrStreamFull
	}
	s.data = append(s.data, p...)
	return len(p), nil
}

// Bytes returns the stream contents.
func (s *Stream) Bytes() []byte {
	return s.data
}

// Len returns the number of bytes in the stream.
func (s *Stream) Len() int {
	return len(s.data)
}

// Release frees the stream. Further releases are no-ops.
func (s *Stream) Release() {
	if s.release() {
		s.data = nil
	}
}
