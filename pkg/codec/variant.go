// Package codec transcodes pixel data between native and compressed transfer
// syntaxes. A Registry maps each supported syntax to a Variant; Select binds
// a variant to a precision class; a Transcoder runs the frame loop and
// reconciles the destination attributes.
package codec

import (
	"fmt"
	"slices"

	"github.com/jpfielding/pixeldata.go/pkg/compress/jpeg"
	"github.com/jpfielding/pixeldata.go/pkg/compress/jpeg2k"
	"github.com/jpfielding/pixeldata.go/pkg/compress/jpegls"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/transfer"
)

// Tag names one supported compressed syntax.
type Tag int

const (
	JPEGProcess1 Tag = iota + 1
	JPEGProcess2_4
	JPEGProcess14
	JPEGProcess14SV1
	JPEGLSLossless
	JPEGLSNearLossless
	JPEG2000Lossless
	JPEG2000Lossy
)

func (t Tag) String() string {
	switch t {
	case JPEGProcess1:
		return "JPEGProcess1"
	case JPEGProcess2_4:
		return "JPEGProcess2_4"
	case JPEGProcess14:
		return "JPEGProcess14"
	case JPEGProcess14SV1:
		return "JPEGProcess14SV1"
	case JPEGLSLossless:
		return "JPEGLSLossless"
	case JPEGLSNearLossless:
		return "JPEGLSNearLossless"
	case JPEG2000Lossless:
		return "JPEG2000Lossless"
	case JPEG2000Lossy:
		return "JPEG2000Lossy"
	}
	return fmt.Sprintf("Tag(%d)", int(t))
}

// Variant describes how one syntax is encoded and decoded.
type Variant struct {
	Tag    Tag
	Syntax transfer.Syntax
	Family Family
	Lossy  bool
	// LossyMethod is written to LossyImageCompressionMethod.
	LossyMethod string

	defaults func() Params
	bind     func(bitsStored int, p Params) (binding, error)
	scan     func(frame []byte) (int, error)
}

// binding is what a variant's bind returns: the precision class, the mode
// name and a fresh adapter.
type binding struct {
	class   int
	mode    string
	adapter adapter
	// signed selects sign extension when samples are marshaled for encode.
	signed bool
}

// Defaults returns a new copy of the variant's default parameters.
func (v Variant) Defaults() Params {
	return v.defaults()
}

// ScanPrecision reads the sample precision from a compressed frame header.
func (v Variant) ScanPrecision(frame []byte) (int, error) {
	bits, err := v.scan(frame)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrHeaderScan, v.Tag, err)
	}
	if bits < 1 || bits > 16 {
		return 0, fmt.Errorf("%w: %s: precision %d", ErrHeaderScan, v.Tag, bits)
	}
	return bits, nil
}

func (v Variant) String() string {
	return fmt.Sprintf("%s(%s)", v.Tag, v.Syntax)
}

// Variants returns the full variant table in tag order.
func Variants() []Variant {
	return []Variant{
		dctVariant(JPEGProcess1, transfer.JPEGBaseline, true),
		dctVariant(JPEGProcess2_4, transfer.JPEGExtended, true),
		dctVariant(JPEGProcess14, transfer.JPEGLossless, false),
		dctVariant(JPEGProcess14SV1, transfer.JPEGLosslessFirstOrder, false),
		predictiveVariant(JPEGLSLossless, transfer.JPEGLSLossless, false),
		predictiveVariant(JPEGLSNearLossless, transfer.JPEGLSNearLossless, true),
		waveletVariant(JPEG2000Lossless, transfer.JPEG2000Lossless, false),
		waveletVariant(JPEG2000Lossy, transfer.JPEG2000, true),
	}
}

func dctVariant(tag Tag, syntax transfer.Syntax, lossy bool) Variant {
	v := Variant{
		Tag:      tag,
		Syntax:   syntax,
		Family:   FamilyDCT,
		Lossy:    lossy,
		defaults: func() Params { return NewJPEGParams() },
		scan:     jpeg.ScanPrecision,
	}
	if lossy {
		v.LossyMethod = "ISO_10918_1"
	}
	v.bind = func(bits int, p Params) (binding, error) {
		jp := p.(*JPEGParams)
		mode, class := jpeg.ModeLossless, 0
		predictor, pt := jp.Predictor, jp.PointTransform
		switch tag {
		case JPEGProcess1:
			mode, class = jpeg.ModeBaseline, 8
			if bits != 8 {
				class = 0
			}
		case JPEGProcess2_4:
			mode, class = jpeg.ModeSequential, 12
			if bits != 12 {
				class = 0
			}
		case JPEGProcess14SV1:
			predictor = 1
			fallthrough
		case JPEGProcess14:
			switch {
			case bits < 1:
			case bits <= 8:
				class = 8
			case bits <= 12:
				class = 12
			case bits <= 16:
				class = 16
			}
		}
		if class == 0 {
			return binding{}, newError(ErrUnsupportedPrecision, fmt.Sprintf("%d bits stored for %s", bits, tag), nil)
		}
		c, err := jpeg.New(mode, class, predictor, pt)
		if err != nil {
			return binding{}, newError(ErrCodecParameter, "", err)
		}
		return binding{class: class, mode: mode.String(), adapter: &dctAdapter{codec: c, params: *jp}}, nil
	}
	return v
}

func predictiveVariant(tag Tag, syntax transfer.Syntax, lossy bool) Variant {
	v := Variant{
		Tag:      tag,
		Syntax:   syntax,
		Family:   FamilyPredictive,
		Lossy:    lossy,
		defaults: func() Params { return NewJPEGLSParams() },
		scan: func(frame []byte) (int, error) {
			p, code := jpegls.ReadHeader(frame)
			if code != jpegls.OK {
				return 0, fmt.Errorf("jpeg-ls header: %s", code)
			}
			return p.BitsPerSample, nil
		},
	}
	if lossy {
		v.LossyMethod = "ISO_14495_1"
	}
	v.bind = func(bits int, p Params) (binding, error) {
		if bits < 1 || bits > 16 {
			return binding{}, newError(ErrUnsupportedPrecision, fmt.Sprintf("%d bits stored for %s", bits, tag), nil)
		}
		lp := *p.(*JPEGLSParams)
		mode := "lossless"
		if !lossy {
			lp.AllowedError = 0
		} else if lp.AllowedError > 0 {
			mode = "near-lossless"
		}
		return binding{class: bits, mode: mode, adapter: &predictiveAdapter{params: lp}}, nil
	}
	return v
}

func waveletVariant(tag Tag, syntax transfer.Syntax, lossy bool) Variant {
	v := Variant{
		Tag:      tag,
		Syntax:   syntax,
		Family:   FamilyWavelet,
		Lossy:    lossy,
		defaults: func() Params { return NewJ2KParams() },
		scan: func(frame []byte) (int, error) {
			h, err := jpeg2k.DecodeHeader(frame)
			if err != nil {
				return 0, err
			}
			return h.Precision(), nil
		},
	}
	if lossy {
		v.LossyMethod = "ISO_15444_1"
	}
	v.bind = func(bits int, p Params) (binding, error) {
		if bits < 1 || bits > 16 {
			return binding{}, newError(ErrUnsupportedPrecision, fmt.Sprintf("%d bits stored for %s", bits, tag), nil)
		}
		jp := p.(*J2KParams)
		a := &waveletAdapter{
			params:       *jp,
			irreversible: lossy && jp.Irreversible,
			rates:        jp.layerRates(!lossy),
		}
		mode := "reversible"
		if a.irreversible {
			mode = "irreversible"
		}
		return binding{class: bits, mode: mode, adapter: a, signed: !jp.EncodeSignedPixelValuesAsUnsigned}, nil
	}
	return v
}

// Registry is an immutable syntax to variant table.
type Registry struct {
	variants []Variant
	bySyntax map[transfer.Syntax]int
}

// NewRegistry builds a registry from vs. It panics when two variants claim
// the same syntax.
func NewRegistry(vs ...Variant) *Registry {
	r := &Registry{
		variants: slices.Clone(vs),
		bySyntax: make(map[transfer.Syntax]int, len(vs)),
	}
	for i, v := range r.variants {
		if _, dup := r.bySyntax[v.Syntax]; dup {
			panic(fmt.Sprintf("codec: duplicate variant for %s", v.Syntax))
		}
		r.bySyntax[v.Syntax] = i
	}
	return r
}

// DefaultRegistry returns a registry holding every variant.
func DefaultRegistry() *Registry {
	return NewRegistry(Variants()...)
}

// Lookup returns the variant registered for syntax.
func (r *Registry) Lookup(syntax transfer.Syntax) (Variant, bool) {
	i, ok := r.bySyntax[syntax]
	if !ok {
		return Variant{}, false
	}
	return r.variants[i], true
}

// Variants returns the registered variants in registration order.
func (r *Registry) Variants() []Variant {
	return slices.Clone(r.variants)
}

// Syntaxes returns the registered syntaxes in registration order.
func (r *Registry) Syntaxes() []transfer.Syntax {
	out := make([]transfer.Syntax, len(r.variants))
	for i, v := range r.variants {
		out[i] = v.Syntax
	}
	return out
}
