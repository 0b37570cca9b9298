package dicom

import (
	"fmt"
	"strconv"

	"github.com/jpfielding/pixeldata.go/pkg/dicom/tag"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/vr"
	"github.com/jpfielding/pixeldata.go/pkg/pixel"
)

// PixelBuffer builds a pixel.Buffer over the pixel data of ds. Frames are
// sliced out of the dataset lazily.
func PixelBuffer(ds *Dataset) (*pixel.Buffer, error) {
	elem, ok := ds.FindElement(tag.PixelData)
	if !ok {
		return nil, fmt.Errorf("no pixel data element found")
	}
	pd, ok := elem.GetPixelData()
	if !ok {
		raw, isBytes := elem.Value.([]byte)
		if !isBytes {
			return nil, fmt.Errorf("pixel data element has unexpected type: %T", elem.Value)
		}
		pd = &PixelData{Native: raw}
	}

	buf := pixel.NewBuffer(ds.TransferSyntax())
	buf.Width = ds.GetInt(tag.Columns, 0)
	buf.Height = ds.GetInt(tag.Rows, 0)
	buf.SamplesPerPixel = ds.GetInt(tag.SamplesPerPixel, 1)
	buf.BitsAllocated = ds.GetInt(tag.BitsAllocated, 8)
	buf.BitsStored = ds.GetInt(tag.BitsStored, buf.BitsAllocated)
	buf.HighBit = ds.GetInt(tag.HighBit, buf.BitsStored-1)
	buf.PixelRepresentation = ds.GetInt(tag.PixelRepresentation, 0)
	buf.PlanarConfiguration = ds.GetInt(tag.PlanarConfiguration, 0)
	buf.Photometric = pixel.ParsePhotometric(ds.GetString(tag.PhotometricInterpretation))
	buf.IsLossy = ds.GetString(tag.LossyImageCompression) == "01"
	buf.LossyCompressionRatio = ds.GetString(tag.LossyImageCompressionRatio)
	buf.LossyCompressionMethod = ds.GetString(tag.LossyImageCompressionMethod)
	frames := ds.GetInt(tag.NumberOfFrames, 1)

	if buf.Width == 0 || buf.Height == 0 {
		return nil, fmt.Errorf("invalid dimensions for pixel data: %dx%d", buf.Width, buf.Height)
	}

	if !pd.IsEncapsulated {
		buf.WithStore(pixel.NewNativeStore(pd.Native, buf.UncompressedFrameSize(), frames))
		return buf, nil
	}
	store, err := newFragmentStore(pd, frames)
	if err != nil {
		return nil, err
	}
	buf.WithStore(store)
	return buf, nil
}

// SetPixelBuffer writes the geometry, lossy attributes, transfer syntax and
// frames of buf into ds, replacing any existing pixel data.
func SetPixelBuffer(ds *Dataset, buf *pixel.Buffer) error {
	n := buf.NumberOfFrames()
	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		f, err := buf.Store().Frame(i)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, f)
	}

	ds.Set(tag.TransferSyntaxUID, string(buf.Syntax))
	ds.Set(tag.Rows, uint16(buf.Height))
	ds.Set(tag.Columns, uint16(buf.Width))
	ds.Set(tag.SamplesPerPixel, uint16(buf.SamplesPerPixel))
	ds.Set(tag.PhotometricInterpretation, buf.Photometric.String())
	if buf.SamplesPerPixel > 1 {
		ds.Set(tag.PlanarConfiguration, uint16(buf.PlanarConfiguration))
	} else {
		ds.Delete(tag.PlanarConfiguration)
	}
	ds.Set(tag.BitsAllocated, uint16(buf.BitsAllocated))
	ds.Set(tag.BitsStored, uint16(buf.BitsStored))
	ds.Set(tag.HighBit, uint16(buf.HighBit))
	ds.Set(tag.PixelRepresentation, uint16(buf.PixelRepresentation))
	ds.Set(tag.NumberOfFrames, strconv.Itoa(n))
	if buf.IsLossy {
		ds.Set(tag.LossyImageCompression, "01")
		if buf.LossyCompressionMethod != "" {
			ds.Set(tag.LossyImageCompressionMethod, buf.LossyCompressionMethod)
		}
		if buf.LossyCompressionRatio != "" {
			ds.Set(tag.LossyImageCompressionRatio, buf.LossyCompressionRatio)
		}
	}

	if !buf.Syntax.IsEncapsulated() {
		var native []byte
		for _, f := range frames {
			native = append(native, f...)
		}
		pixelVR := vr.OB
		if buf.BitsAllocated > 8 {
			pixelVR = vr.OW
		}
		ds.SetVR(tag.PixelData, pixelVR, &PixelData{Native: native})
		return nil
	}

	pd := &PixelData{IsEncapsulated: true, Fragments: frames}
	var pos uint32
	for _, f := range frames {
		pd.Offsets = append(pd.Offsets, pos)
		pos += 8 + uint32(len(f)+len(f)%2)
	}
	ds.SetVR(tag.PixelData, vr.OB, pd)
	return nil
}

// fragmentStore maps encapsulated fragments onto frames. Frames spanning
// several fragments are joined on load and dropped on Release.
type fragmentStore struct {
	fragments [][]byte
	spans     [][2]int // fragment range [start, end) per frame
	joined    map[int][]byte
}

func newFragmentStore(pd *PixelData, frames int) (*fragmentStore, error) {
	s := &fragmentStore{fragments: pd.Fragments, joined: map[int][]byte{}}
	nf := len(pd.Fragments)
	switch {
	case nf == 0:
	case len(pd.Offsets) > 0:
		// item positions relative to the first fragment item
		pos := make([]uint32, nf+1)
		for i, f := range pd.Fragments {
			pos[i+1] = pos[i] + 8 + uint32(len(f))
		}
		start := 0
		for k := range pd.Offsets {
			end := nf
			if k+1 < len(pd.Offsets) {
				end = start
				for end < nf && pos[end] < pd.Offsets[k+1] {
					end++
				}
			}
			if end <= start {
				return nil, fmt.Errorf("offset table entry %d does not start a fragment", k)
			}
			s.spans = append(s.spans, [2]int{start, end})
			start = end
		}
	case frames <= 1:
		s.spans = [][2]int{{0, nf}}
	case frames == nf:
		for i := range pd.Fragments {
			s.spans = append(s.spans, [2]int{i, i + 1})
		}
	default:
		return nil, fmt.Errorf("cannot map %d fragments to %d frames without an offset table", nf, frames)
	}
	return s, nil
}

func (s *fragmentStore) Len() int { return len(s.spans) }

func (s *fragmentStore) Frame(i int) ([]byte, error) {
	if i < 0 || i >= len(s.spans) {
		return nil, fmt.Errorf("%w: %d of %d", pixel.ErrFrameIndex, i, len(s.spans))
	}
	sp := s.spans[i]
	if sp[1]-sp[0] == 1 {
		return s.fragments[sp[0]], nil
	}
	if f, ok := s.joined[i]; ok {
		return f, nil
	}
	var f []byte
	for _, frag := range s.fragments[sp[0]:sp[1]] {
		f = append(f, frag...)
	}
	s.joined[i] = f
	return f, nil
}

func (s *fragmentStore) Release(i int) {
	delete(s.joined, i)
}

var _ pixel.Releaser = (*fragmentStore)(nil)

// IsEncapsulated reports whether ds stores its pixel data as fragments.
func IsEncapsulated(ds *Dataset) bool {
	return ds.TransferSyntax().IsEncapsulated()
}
