package pixel

import (
	"errors"
	"fmt"
)

// ErrFrameIndex is returned for frame indices outside the store.
var ErrFrameIndex = errors.New("frame index out of range")

// FrameStore supplies the bytes of each frame. Stores may be backed by memory,
// a dataset element or a lazily read file.
type FrameStore interface {
	Len() int
	Frame(i int) ([]byte, error)
}

// Releaser is implemented by stores that can drop a frame's backing memory
// once the caller is done with it.
type Releaser interface {
	Release(i int)
}

// MemStore keeps whole frames in memory. Destination buffers use it.
type MemStore struct {
	frames [][]byte
}

// NewMemStore wraps the given frames without copying.
func NewMemStore(frames ...[]byte) *MemStore {
	return &MemStore{frames: frames}
}

func (m *MemStore) Len() int { return len(m.frames) }

func (m *MemStore) Frame(i int) ([]byte, error) {
	if i < 0 || i >= len(m.frames) {
		return nil, fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, len(m.frames))
	}
	return m.frames[i], nil
}

// Append adds a frame at the end of the store.
func (m *MemStore) Append(frame []byte) {
	m.frames = append(m.frames, frame)
}

// Frames returns the backing frames.
func (m *MemStore) Frames() [][]byte {
	return m.frames
}

// NativeStore slices fixed-size frames out of one contiguous native pixel
// data value, the way uncompressed multi-frame pixel data is laid out.
type NativeStore struct {
	data      []byte
	frameSize int
	frames    int
}

// NewNativeStore splits data into frames of frameSize bytes. A trailing
// partial frame (odd-length padding) is ignored.
func NewNativeStore(data []byte, frameSize, frames int) *NativeStore {
	if frameSize > 0 && frames*frameSize > len(data) {
		frames = len(data) / frameSize
	}
	return &NativeStore{data: data, frameSize: frameSize, frames: frames}
}

func (n *NativeStore) Len() int { return n.frames }

func (n *NativeStore) Frame(i int) ([]byte, error) {
	if i < 0 || i >= n.frames {
		return nil, fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, n.frames)
	}
	off := i * n.frameSize
	return n.data[off : off+n.frameSize], nil
}
