// Package dicom reads and writes DICOM Part 10 files and bridges their pixel
// data to pixel.Buffer.
package dicom

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jpfielding/pixeldata.go/pkg/dicom/tag"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/transfer"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/vr"
)

// Tag alias to avoid duplication
type Tag = tag.Tag

// Dataset represents a complete DICOM dataset
type Dataset struct {
	Elements map[Tag]*Element
}

// Element represents a single DICOM element
type Element struct {
	Tag   Tag
	VR    vr.VR
	Value any // string, uint16, []uint16, uint32, []uint32, int16, int32, float32, float64, []byte, []*Dataset, *PixelData
}

// PixelData is the value of (7FE0,0010). Native data keeps the whole value in
// Native; encapsulated data keeps the Basic Offset Table and the fragments.
type PixelData struct {
	IsEncapsulated bool
	Native         []byte
	Offsets        []uint32
	Fragments      [][]byte
}

// NewDataset returns an empty dataset
func NewDataset() *Dataset {
	return &Dataset{Elements: make(map[Tag]*Element)}
}

// FindElement returns an element by tag
func (ds *Dataset) FindElement(t Tag) (*Element, bool) {
	elem, ok := ds.Elements[t]
	return elem, ok
}

// Set stores a value under the dictionary VR of t.
func (ds *Dataset) Set(t Tag, value any) {
	ds.SetVR(t, t.VR(), value)
}

// SetVR stores a value with an explicit VR.
func (ds *Dataset) SetVR(t Tag, v vr.VR, value any) {
	if ds.Elements == nil {
		ds.Elements = make(map[Tag]*Element)
	}
	ds.Elements[t] = &Element{Tag: t, VR: v, Value: value}
}

// Delete removes t if present.
func (ds *Dataset) Delete(t Tag) {
	delete(ds.Elements, t)
}

// Tags returns the element tags in ascending order.
func (ds *Dataset) Tags() []Tag {
	tags := make([]Tag, 0, len(ds.Elements))
	for t := range ds.Elements {
		tags = append(tags, t)
	}
	slices.SortFunc(tags, func(a, b Tag) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return tags
}

// GetString returns the string value of t, or "" when absent.
func (ds *Dataset) GetString(t Tag) string {
	if e, ok := ds.FindElement(t); ok {
		if s, ok := e.GetString(); ok {
			return s
		}
	}
	return ""
}

// GetInt returns the first integer value of t, or def when absent or not numeric.
func (ds *Dataset) GetInt(t Tag, def int) int {
	if e, ok := ds.FindElement(t); ok {
		if i, ok := e.GetInt(); ok {
			return i
		}
	}
	return def
}

// TransferSyntax returns the file's transfer syntax, defaulting to Implicit
// VR Little Endian when the meta group has none.
func (ds *Dataset) TransferSyntax() transfer.Syntax {
	if s := ds.GetString(tag.TransferSyntaxUID); s != "" {
		return transfer.FromUID(s)
	}
	return transfer.ImplicitVRLittleEndian
}

// GetString returns a string value from an element
func (elem *Element) GetString() (string, bool) {
	if s, ok := elem.Value.(string); ok {
		return s, true
	}
	return "", false
}

// GetInt returns an int value from an element
func (elem *Element) GetInt() (int, bool) {
	switch v := elem.Value.(type) {
	case uint16:
		return int(v), true
	case []uint16:
		if len(v) > 0 {
			return int(v[0]), true
		}
	case uint32:
		return int(v), true
	case []uint32:
		if len(v) > 0 {
			return int(v[0]), true
		}
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int:
		return v, true
	case string:
		s := strings.TrimSpace(strings.Split(v, `\`)[0])
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
	case []byte:
		if len(v) == 2 {
			return int(binary.LittleEndian.Uint16(v)), true
		}
		if len(v) == 4 {
			return int(binary.LittleEndian.Uint32(v)), true
		}
	}
	return 0, false
}

// GetFloat returns a float value from a DS/FL/FD element
func (elem *Element) GetFloat() (float64, bool) {
	switch v := elem.Value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.Split(v, `\`)[0]), 64)
		return f, err == nil
	}
	return 0, false
}

// GetPixelData returns pixel data from an element
func (elem *Element) GetPixelData() (*PixelData, bool) {
	if pd, ok := elem.Value.(*PixelData); ok {
		return pd, true
	}
	return nil, false
}

// GetSequence returns the items of an SQ element
func (elem *Element) GetSequence() ([]*Dataset, bool) {
	items, ok := elem.Value.([]*Dataset)
	return items, ok
}

func (elem *Element) String() string {
	switch v := elem.Value.(type) {
	case []byte:
		return fmt.Sprintf("%s %s [%d bytes]", elem.Tag, elem.VR, len(v))
	case *PixelData:
		if v.IsEncapsulated {
			return fmt.Sprintf("%s %s [%d fragments]", elem.Tag, elem.VR, len(v.Fragments))
		}
		return fmt.Sprintf("%s %s [%d bytes]", elem.Tag, elem.VR, len(v.Native))
	case []*Dataset:
		return fmt.Sprintf("%s %s [%d items]", elem.Tag, elem.VR, len(v))
	}
	return fmt.Sprintf("%s %s %v", elem.Tag, elem.VR, elem.Value)
}
