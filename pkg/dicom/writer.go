package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/flate"

	"github.com/jpfielding/pixeldata.go/pkg/dicom/tag"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/vr"
)

// ImplementationClassUID identifies files written by this package.
const ImplementationClassUID = "2.25.173483298403542474938591834327406190617"

// ImplementationVersionName is written to (0002,0013).
const ImplementationVersionName = "PIXELDATA_GO"

// WriteFile writes a dataset to a Part 10 file
func WriteFile(path string, ds *Dataset) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := Write(f, ds)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Write writes the preamble, an Explicit VR Little Endian meta group and the
// data set in the dataset's transfer syntax.
func Write(w io.Writer, ds *Dataset) (int64, error) {
	cw := &CountingWriter{Writer: w}

	if _, err := cw.Write(make([]byte, 128)); err != nil {
		return cw.Count.Load(), err
	}
	if _, err := cw.Write([]byte("DICM")); err != nil {
		return cw.Count.Load(), err
	}
	if err := writeMeta(cw, ds); err != nil {
		return cw.Count.Load(), err
	}

	syntax := ds.TransferSyntax()
	if !syntax.IsLittleEndian() {
		return cw.Count.Load(), fmt.Errorf("%w: %s", ErrUnsupportedSyntax, syntax.Name())
	}
	ew := elementWriter{explicitVR: syntax.IsExplicitVR()}
	if !syntax.IsDeflated() {
		err := ew.writeBody(cw, ds, true)
		return cw.Count.Load(), err
	}

	fw, err := flate.NewWriter(cw, flate.DefaultCompression)
	if err != nil {
		return cw.Count.Load(), err
	}
	if err := ew.writeBody(fw, ds, true); err != nil {
		return cw.Count.Load(), err
	}
	err = fw.Close()
	return cw.Count.Load(), err
}

// writeMeta writes group 0002 with its group length, filling in the
// mandatory elements the dataset lacks.
func writeMeta(w io.Writer, ds *Dataset) error {
	meta := NewDataset()
	for t, e := range ds.Elements {
		if t.IsMeta() && t != tag.FileMetaInformationGroupLength {
			meta.Elements[t] = e
		}
	}
	defaults := []struct {
		t Tag
		v any
	}{
		{tag.FileMetaInformationVersion, []byte{0x00, 0x01}},
		{tag.MediaStorageSOPClassUID, ds.GetString(tag.SOPClassUID)},
		{tag.MediaStorageSOPInstanceUID, ds.GetString(tag.SOPInstanceUID)},
		{tag.TransferSyntaxUID, string(ds.TransferSyntax())},
		{tag.ImplementationClassUID, ImplementationClassUID},
		{tag.ImplementationVersionName, ImplementationVersionName},
	}
	for _, d := range defaults {
		if _, ok := meta.Elements[d.t]; !ok {
			meta.Set(d.t, d.v)
		}
	}

	var buf bytes.Buffer
	ew := elementWriter{explicitVR: true}
	if err := ew.writeBody(&buf, meta, false); err != nil {
		return err
	}
	if err := ew.writeElement(w, &Element{Tag: tag.FileMetaInformationGroupLength, VR: vr.UL, Value: uint32(buf.Len())}); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

type elementWriter struct {
	explicitVR bool
}

// writeBody writes the elements of ds in tag order, leaving out group 0002
// when skipMeta is set.
func (ew elementWriter) writeBody(w io.Writer, ds *Dataset, skipMeta bool) error {
	for _, t := range ds.Tags() {
		if skipMeta && t.IsMeta() {
			continue
		}
		if err := ew.writeElement(w, ds.Elements[t]); err != nil {
			return fmt.Errorf("failed to write element %v: %w", t, err)
		}
	}
	return nil
}

func (ew elementWriter) writeElement(w io.Writer, elem *Element) error {
	cw := &CountingWriter{Writer: w}

	if err := binary.Write(cw, binary.LittleEndian, [2]uint16{elem.Tag.Group, elem.Tag.Element}); err != nil {
		return err
	}

	v := elem.VR
	if len(v) != 2 {
		slog.Warn("Invalid VR length, defaulting to UN", "vr", v, "tag", elem.Tag)
		v = vr.UN
	}

	valBytes, undefined, err := ew.encodeValue(elem.Value, v)
	if err != nil {
		return err
	}
	length := uint32(len(valBytes))
	if undefined {
		length = undefinedLength
	}

	switch {
	case !ew.explicitVR:
		if err := binary.Write(cw, binary.LittleEndian, length); err != nil {
			return err
		}
	case v.IsLongLength():
		if _, err := cw.Write([]byte{v[0], v[1], 0, 0}); err != nil {
			return err
		}
		if err := binary.Write(cw, binary.LittleEndian, length); err != nil {
			return err
		}
	default:
		if undefined {
			return fmt.Errorf("undefined length not supported for short VR %s", v)
		}
		if len(valBytes) > math.MaxUint16 {
			return fmt.Errorf("value of %d bytes too long for VR %s", len(valBytes), v)
		}
		if _, err := cw.Write([]byte{v[0], v[1]}); err != nil {
			return err
		}
		if err := binary.Write(cw, binary.LittleEndian, uint16(length)); err != nil {
			return err
		}
	}

	_, err = cw.Write(valBytes)
	return err
}

// encodeValue returns encoded bytes and whether the value uses undefined length
func (ew elementWriter) encodeValue(value any, v vr.VR) ([]byte, bool, error) {
	if value == nil {
		return []byte{}, false, nil
	}
	switch val := value.(type) {
	case *PixelData:
		if val.IsEncapsulated {
			return encodeEncapsulatedPixelData(val), true, nil
		}
		return pad(val.Native, 0), false, nil
	case []*Dataset:
		b, err := ew.encodeSequence(val)
		return b, true, err
	case string:
		return pad([]byte(val), v.PadByte()), false, nil
	case []string:
		return pad([]byte(strings.Join(val, `\`)), v.PadByte()), false, nil
	case uint16:
		return binary.LittleEndian.AppendUint16(nil, val), false, nil
	case []uint16:
		b := make([]byte, 0, len(val)*2)
		for _, u := range val {
			b = binary.LittleEndian.AppendUint16(b, u)
		}
		return b, false, nil
	case uint32:
		return binary.LittleEndian.AppendUint32(nil, val), false, nil
	case []uint32:
		b := make([]byte, 0, len(val)*4)
		for _, u := range val {
			b = binary.LittleEndian.AppendUint32(b, u)
		}
		return b, false, nil
	case int16:
		return binary.LittleEndian.AppendUint16(nil, uint16(val)), false, nil
	case int32:
		return binary.LittleEndian.AppendUint32(nil, uint32(val)), false, nil
	case int:
		switch v {
		case vr.UL, vr.SL:
			return binary.LittleEndian.AppendUint32(nil, uint32(val)), false, nil
		case vr.IS:
			return pad([]byte(strconv.Itoa(val)), ' '), false, nil
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(val)), false, nil
	case float32:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(val)), false, nil
	case float64:
		switch v {
		case vr.DS:
			return pad([]byte(strconv.FormatFloat(val, 'g', -1, 64)), ' '), false, nil
		case vr.FL:
			return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(val))), false, nil
		case vr.FD:
			return binary.LittleEndian.AppendUint64(nil, math.Float64bits(val)), false, nil
		}
		return nil, false, fmt.Errorf("float64 for VR %s not implemented", v)
	case []byte:
		return pad(val, 0), false, nil
	}
	return nil, false, fmt.Errorf("unsupported value type %T for VR %s", value, v)
}

func (ew elementWriter) encodeSequence(items []*Dataset) ([]byte, error) {
	var buf bytes.Buffer
	for _, item := range items {
		var body bytes.Buffer
		for _, t := range item.Tags() {
			if err := ew.writeElement(&body, item.Elements[t]); err != nil {
				return nil, fmt.Errorf("failed to encode sequence item: %w", err)
			}
		}
		writeItemHeader(&buf, tag.Item, uint32(body.Len()))
		buf.Write(body.Bytes())
	}
	writeItemHeader(&buf, tag.SequenceDelimitationItem, 0)
	return buf.Bytes(), nil
}

// encodeEncapsulatedPixelData writes the Basic Offset Table, one item per
// fragment and the sequence delimiter. Odd fragments are padded with a zero.
func encodeEncapsulatedPixelData(pd *PixelData) []byte {
	var buf bytes.Buffer
	writeItemHeader(&buf, tag.Item, uint32(len(pd.Offsets)*4))
	for _, off := range pd.Offsets {
		buf.Write(binary.LittleEndian.AppendUint32(nil, off))
	}
	for _, frag := range pd.Fragments {
		frag = pad(frag, 0)
		writeItemHeader(&buf, tag.Item, uint32(len(frag)))
		buf.Write(frag)
	}
	writeItemHeader(&buf, tag.SequenceDelimitationItem, 0)
	return buf.Bytes()
}

func writeItemHeader(buf *bytes.Buffer, t Tag, length uint32) {
	var h [8]byte
	binary.LittleEndian.PutUint16(h[0:], t.Group)
	binary.LittleEndian.PutUint16(h[2:], t.Element)
	binary.LittleEndian.PutUint32(h[4:], length)
	buf.Write(h[:])
}

func pad(b []byte, with byte) []byte {
	if len(b)%2 == 0 {
		return b
	}
	out := make([]byte, len(b)+1)
	copy(out, b)
	out[len(b)] = with
	return out
}

// CountingWriter counts the bytes written through it
type CountingWriter struct {
	Count  atomic.Int64
	Writer io.Writer
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.Writer.Write(p)
	c.Count.Add(int64(n))
	return n, err
}
