package dicom

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/flate"

	"github.com/jpfielding/pixeldata.go/pkg/dicom/tag"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/transfer"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/vr"
)

const undefinedLength = 0xFFFFFFFF

var (
	// ErrNotDICOM is returned when the DICM magic is missing.
	ErrNotDICOM = errors.New("invalid DICOM file: missing DICM magic")
	// ErrUnsupportedSyntax is returned for data set encodings the reader cannot parse.
	ErrUnsupportedSyntax = errors.New("unsupported data set transfer syntax")
)

// Reader reads DICOM Part 10 files
type Reader struct {
	r          io.Reader
	syntax     transfer.Syntax
	explicitVR bool
}

// NewReader creates a new reader
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, explicitVR: true}
}

// ReadFile reads a Part 10 file from disk
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a complete Part 10 stream
func Parse(r io.Reader) (*Dataset, error) {
	return NewReader(r).ReadDataset()
}

// Syntax is the transfer syntax of the data set, known once the meta group is read.
func (r *Reader) Syntax() transfer.Syntax {
	return r.syntax
}

// ReadDataset reads the preamble, the file meta group and the data set.
func (r *Reader) ReadDataset() (*Dataset, error) {
	br := bufio.NewReader(r.r)
	r.r = br

	preamble := make([]byte, 132)
	if _, err := io.ReadFull(br, preamble); err != nil {
		return nil, fmt.Errorf("failed to read preamble: %w", err)
	}
	if string(preamble[128:]) != "DICM" {
		return nil, ErrNotDICOM
	}

	ds, err := r.readMeta(br)
	if err != nil {
		return nil, err
	}

	r.syntax = ds.TransferSyntax()
	switch {
	case !r.syntax.IsLittleEndian():
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSyntax, r.syntax.Name())
	case r.syntax.IsDeflated():
		fr := flate.NewReader(br)
		defer fr.Close()
		r.r = fr
	}
	r.explicitVR = r.syntax.IsExplicitVR()

	body, err := r.readElements(false)
	if err != nil {
		return nil, err
	}
	for t, e := range body.Elements {
		ds.Elements[t] = e
	}
	return ds, nil
}

// readMeta reads group 0002, bounded by its group length when present and
// otherwise by peeking at the next group number.
func (r *Reader) readMeta(br *bufio.Reader) (*Dataset, error) {
	ds := NewDataset()
	// Group 0002 is always Explicit VR Little Endian
	r.explicitVR = true
	for {
		peek, err := br.Peek(2)
		if err == io.EOF {
			return ds, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read meta group: %w", err)
		}
		if binary.LittleEndian.Uint16(peek) != 0x0002 {
			return ds, nil
		}
		t, err := r.readTag()
		if err != nil {
			return nil, fmt.Errorf("failed to read tag: %w", err)
		}
		elem, err := r.readElementWithTag(t)
		if err != nil {
			return nil, fmt.Errorf("failed to read element %v: %w", t, err)
		}
		ds.Elements[t] = elem

		if t != tag.FileMetaInformationGroupLength {
			continue
		}
		if n, ok := elem.GetInt(); ok {
			sub := &Reader{r: io.LimitReader(br, int64(n)), explicitVR: true}
			rest, err := sub.readElements(false)
			if err != nil {
				return nil, err
			}
			for t, e := range rest.Elements {
				ds.Elements[t] = e
			}
			return ds, nil
		}
	}
}

// readElements reads elements until EOF, or until an item delimiter when
// inItem is set.
func (r *Reader) readElements(inItem bool) (*Dataset, error) {
	ds := NewDataset()
	for {
		t, err := r.readTag()
		if err == io.EOF {
			return ds, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tag: %w", err)
		}
		if t == tag.ItemDelimitationItem {
			if _, err := r.readUint32(); err != nil {
				return nil, err
			}
			if inItem {
				return ds, nil
			}
			continue
		}
		elem, err := r.readElementWithTag(t)
		if err != nil {
			return nil, fmt.Errorf("failed to read element %v: %w", t, err)
		}
		ds.Elements[t] = elem
	}
}

// readElementWithTag reads a DICOM element after the tag has been read
func (r *Reader) readElementWithTag(t Tag) (*Element, error) {
	var v vr.VR
	var vl uint32

	if r.explicitVR {
		var vrBytes [2]byte
		if _, err := io.ReadFull(r.r, vrBytes[:]); err != nil {
			return nil, err
		}
		v = vr.VR(vrBytes[:])
		if v.IsLongLength() {
			var reserved [2]byte
			if _, err := io.ReadFull(r.r, reserved[:]); err != nil {
				return nil, err
			}
			l, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			vl = l
		} else {
			var vl16 uint16
			if err := binary.Read(r.r, binary.LittleEndian, &vl16); err != nil {
				return nil, err
			}
			vl = uint32(vl16)
		}
	} else {
		l, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		vl = l
		v = t.VR()
	}

	value, err := r.readValue(t, v, vl)
	if err != nil {
		return nil, err
	}
	if _, ok := value.([]*Dataset); ok {
		v = vr.SQ
	}
	return &Element{Tag: t, VR: v, Value: value}, nil
}

func (r *Reader) readTag() (Tag, error) {
	var raw [4]byte
	n, err := io.ReadFull(r.r, raw[:])
	if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
		return Tag{}, io.EOF
	}
	if err != nil {
		return Tag{}, err
	}
	return Tag{
		Group:   binary.LittleEndian.Uint16(raw[0:]),
		Element: binary.LittleEndian.Uint16(raw[2:]),
	}, nil
}

func (r *Reader) readUint32() (uint32, error) {
	var u uint32
	err := binary.Read(r.r, binary.LittleEndian, &u)
	return u, err
}

// readValue reads the value based on VR and VL
func (r *Reader) readValue(t Tag, v vr.VR, vl uint32) (any, error) {
	if t == tag.PixelData {
		if vl == undefinedLength {
			return r.readEncapsulatedPixelData()
		}
		data := make([]byte, vl)
		if _, err := io.ReadFull(r.r, data); err != nil {
			return nil, err
		}
		return &PixelData{Native: data}, nil
	}

	// undefined length outside pixel data is a sequence, whatever the VR claims
	if v == vr.SQ || vl == undefinedLength {
		return r.readSequence(vl)
	}

	data := make([]byte, vl)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, err
	}
	return parseValue(v, data), nil
}

// readSequence reads the items of a sequence, nested elements use the
// enclosing VR encoding.
func (r *Reader) readSequence(vl uint32) ([]*Dataset, error) {
	src := r.r
	if vl != undefinedLength {
		src = io.LimitReader(r.r, int64(vl))
		defer io.Copy(io.Discard, src)
	}
	sub := &Reader{r: src, syntax: r.syntax, explicitVR: r.explicitVR}
	items := []*Dataset{}
	for {
		t, err := sub.readTag()
		if err == io.EOF && vl != undefinedLength {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading sequence item tag: %w", err)
		}
		length, err := sub.readUint32()
		if err != nil {
			return nil, fmt.Errorf("reading item length: %w", err)
		}
		switch t {
		case tag.SequenceDelimitationItem:
			return items, nil
		case tag.Item:
			item, err := sub.readItem(length)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		default:
			return nil, fmt.Errorf("expected item tag, got %v", t)
		}
	}
}

func (r *Reader) readItem(length uint32) (*Dataset, error) {
	if length == undefinedLength {
		return r.readElements(true)
	}
	lr := io.LimitReader(r.r, int64(length))
	defer io.Copy(io.Discard, lr)
	sub := &Reader{r: lr, syntax: r.syntax, explicitVR: r.explicitVR}
	return sub.readElements(false)
}

// readEncapsulatedPixelData reads the Basic Offset Table and fragments of
// encapsulated pixel data
func (r *Reader) readEncapsulatedPixelData() (*PixelData, error) {
	pd := &PixelData{IsEncapsulated: true}

	botTag, err := r.readTag()
	if err != nil {
		return nil, err
	}
	if botTag != tag.Item {
		return nil, fmt.Errorf("expected BOT item tag, got %v", botTag)
	}
	botLength, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if botLength > 0 {
		pd.Offsets = make([]uint32, botLength/4)
		if err := binary.Read(r.r, binary.LittleEndian, pd.Offsets); err != nil {
			return nil, err
		}
	}

	for {
		itemTag, err := r.readTag()
		if err != nil {
			return nil, err
		}
		itemLength, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		if itemTag == tag.SequenceDelimitationItem {
			break
		}
		if itemTag != tag.Item {
			return nil, fmt.Errorf("expected item tag, got %v", itemTag)
		}
		fragment := make([]byte, itemLength)
		if _, err := io.ReadFull(r.r, fragment); err != nil {
			return nil, err
		}
		pd.Fragments = append(pd.Fragments, fragment)
	}
	return pd, nil
}

// parseValue converts raw bytes to typed value based on VR
func parseValue(v vr.VR, data []byte) any {
	if v.IsString() {
		s := string(data)
		for len(s) > 0 && (s[len(s)-1] == 0 || s[len(s)-1] == ' ') {
			s = s[:len(s)-1]
		}
		return s
	}
	switch v {
	case vr.US:
		if len(data) == 2 {
			return binary.LittleEndian.Uint16(data)
		}
		values := make([]uint16, len(data)/2)
		for i := range values {
			values[i] = binary.LittleEndian.Uint16(data[i*2:])
		}
		return values
	case vr.UL:
		if len(data) == 4 {
			return binary.LittleEndian.Uint32(data)
		}
		values := make([]uint32, len(data)/4)
		for i := range values {
			values[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
		return values
	case vr.SS:
		if len(data) == 2 {
			return int16(binary.LittleEndian.Uint16(data))
		}
	case vr.SL:
		if len(data) == 4 {
			return int32(binary.LittleEndian.Uint32(data))
		}
	case vr.FL:
		if len(data) == 4 {
			return math.Float32frombits(binary.LittleEndian.Uint32(data))
		}
	case vr.FD:
		if len(data) == 8 {
			return math.Float64frombits(binary.LittleEndian.Uint64(data))
		}
	}
	return data
}
