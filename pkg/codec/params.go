package codec

import (
	"fmt"
	"slices"

	"github.com/jpfielding/pixeldata.go/pkg/compress/jpeg"
	"github.com/jpfielding/pixeldata.go/pkg/compress/jpegls"
)

// Family groups the variants sharing one engine.
type Family int

const (
	FamilyDCT Family = iota
	FamilyPredictive
	FamilyWavelet
)

func (f Family) String() string {
	switch f {
	case FamilyDCT:
		return "dct"
	case FamilyPredictive:
		return "predictive"
	case FamilyWavelet:
		return "wavelet"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Params configures one transcode call. It is read-only for the duration of
// the call; Select takes a copy.
type Params interface {
	Family() Family
	Validate() error
	clone() Params
}

var (
	_ Params = (*JPEGParams)(nil)
	_ Params = (*JPEGLSParams)(nil)
	_ Params = (*J2KParams)(nil)
)

// JPEGParams configures the DCT family.
type JPEGParams struct {
	Quality                int // lossy processes, 0..100
	SmoothingFactor        int // 0..100
	ConvertColorspaceToRGB bool
	SampleFactor           jpeg.SampleFactor
	Predictor              int // lossless, 1..7
	PointTransform         int // lossless, 0..15
}

// NewJPEGParams returns the default DCT parameters.
func NewJPEGParams() *JPEGParams {
	return &JPEGParams{
		Quality:        90,
		SampleFactor:   jpeg.SF444,
		Predictor:      1,
		PointTransform: 0,
	}
}

func (p *JPEGParams) Family() Family { return FamilyDCT }

func (p *JPEGParams) Validate() error {
	switch {
	case p.Quality < 0 || p.Quality > 100:
		return paramError("quality %d outside 0..100", p.Quality)
	case p.SmoothingFactor < 0 || p.SmoothingFactor > 100:
		return paramError("smoothing factor %d outside 0..100", p.SmoothingFactor)
	case p.SampleFactor != jpeg.SF444 && p.SampleFactor != jpeg.SF422:
		return paramError("sample factor %d", p.SampleFactor)
	case p.Predictor < 1 || p.Predictor > 7:
		return paramError("predictor %d outside 1..7", p.Predictor)
	case p.PointTransform < 0 || p.PointTransform > 15:
		return paramError("point transform %d outside 0..15", p.PointTransform)
	}
	return nil
}

func (p *JPEGParams) clone() Params { c := *p; return &c }

func (p *JPEGParams) WithQuality(q int) *JPEGParams {
	p.Quality = q
	return p
}

func (p *JPEGParams) WithSmoothingFactor(s int) *JPEGParams {
	p.SmoothingFactor = s
	return p
}

func (p *JPEGParams) WithConvertColorspaceToRGB(v bool) *JPEGParams {
	p.ConvertColorspaceToRGB = v
	return p
}

func (p *JPEGParams) WithSampleFactor(sf jpeg.SampleFactor) *JPEGParams {
	p.SampleFactor = sf
	return p
}

func (p *JPEGParams) WithPredictor(predictor int) *JPEGParams {
	p.Predictor = predictor
	return p
}

func (p *JPEGParams) WithPointTransform(pt int) *JPEGParams {
	p.PointTransform = pt
	return p
}

// JPEGLSParams configures the predictive family. AllowedError only applies
// to the near-lossless syntax.
type JPEGLSParams struct {
	AllowedError   int
	InterleaveMode jpegls.InterleaveMode
	ColorTransform jpegls.ColorTransform
}

// NewJPEGLSParams returns the default predictive parameters.
func NewJPEGLSParams() *JPEGLSParams {
	return &JPEGLSParams{
		AllowedError:   3,
		InterleaveMode: jpegls.InterleaveLine,
		ColorTransform: jpegls.TransformHP1,
	}
}

func (p *JPEGLSParams) Family() Family { return FamilyPredictive }

func (p *JPEGLSParams) Validate() error {
	switch {
	case p.AllowedError < 0 || p.AllowedError > 255:
		return paramError("allowed error %d outside 0..255", p.AllowedError)
	case p.InterleaveMode < jpegls.InterleaveNone || p.InterleaveMode > jpegls.InterleaveSample:
		return paramError("interleave mode %d", p.InterleaveMode)
	case p.ColorTransform < jpegls.TransformNone || p.ColorTransform > jpegls.TransformHP3:
		return paramError("color transform %d", p.ColorTransform)
	}
	return nil
}

func (p *JPEGLSParams) clone() Params { c := *p; return &c }

func (p *JPEGLSParams) WithAllowedError(near int) *JPEGLSParams {
	p.AllowedError = near
	return p
}

func (p *JPEGLSParams) WithInterleaveMode(m jpegls.InterleaveMode) *JPEGLSParams {
	p.InterleaveMode = m
	return p
}

func (p *JPEGLSParams) WithColorTransform(t jpegls.ColorTransform) *JPEGLSParams {
	p.ColorTransform = t
	return p
}

// J2KParams configures the wavelet family. Rate and RateLevels are
// compression ratios; each level above Rate adds a quality layer.
type J2KParams struct {
	Irreversible                      bool
	Rate                              int
	RateLevels                        []int
	IsVerbose                         bool
	AllowMCT                          bool
	UpdatePhotometricInterpretation   bool
	EncodeSignedPixelValuesAsUnsigned bool
}

// NewJ2KParams returns the default wavelet parameters.
func NewJ2KParams() *J2KParams {
	return &J2KParams{
		Irreversible:                      true,
		Rate:                              20,
		RateLevels:                        []int{1280, 640, 320, 160, 80, 40, 20, 10, 5},
		AllowMCT:                          true,
		UpdatePhotometricInterpretation:   true,
		EncodeSignedPixelValuesAsUnsigned: true,
	}
}

func (p *J2KParams) Family() Family { return FamilyWavelet }

func (p *J2KParams) Validate() error {
	if p.Rate < 0 {
		return paramError("rate %d is negative", p.Rate)
	}
	for i, r := range p.RateLevels {
		if r <= 0 {
			return paramError("rate level %d is %d", i, r)
		}
		if i > 0 && r >= p.RateLevels[i-1] {
			return paramError("rate levels must strictly decrease, got %v", p.RateLevels)
		}
	}
	return nil
}

func (p *J2KParams) clone() Params {
	c := *p
	c.RateLevels = slices.Clone(p.RateLevels)
	return &c
}

func (p *J2KParams) WithIrreversible(v bool) *J2KParams {
	p.Irreversible = v
	return p
}

func (p *J2KParams) WithRate(rate int) *J2KParams {
	p.Rate = rate
	return p
}

func (p *J2KParams) WithRateLevels(levels ...int) *J2KParams {
	p.RateLevels = levels
	return p
}

func (p *J2KParams) WithVerbose(v bool) *J2KParams {
	p.IsVerbose = v
	return p
}

func (p *J2KParams) WithAllowMCT(v bool) *J2KParams {
	p.AllowMCT = v
	return p
}

func (p *J2KParams) WithUpdatePhotometricInterpretation(v bool) *J2KParams {
	p.UpdatePhotometricInterpretation = v
	return p
}

func (p *J2KParams) WithEncodeSignedPixelValuesAsUnsigned(v bool) *J2KParams {
	p.EncodeSignedPixelValuesAsUnsigned = v
	return p
}

// layerRates builds the quality layer table: every level above Rate, then
// Rate, then a lossless layer when the syntax must stay lossless.
func (p *J2KParams) layerRates(lossless bool) []float64 {
	var rates []float64
	for _, r := range p.RateLevels {
		if r <= p.Rate {
			break
		}
		rates = append(rates, float64(r))
	}
	rates = append(rates, float64(p.Rate))
	if lossless && p.Rate > 0 {
		rates = append(rates, 0)
	}
	return rates
}

func paramError(format string, args ...any) *Error {
	return newError(ErrCodecParameter, fmt.Sprintf(format, args...), nil)
}

// resolve returns a private copy of p, or the variant defaults when p is nil
// or belongs to another family.
func resolve(v Variant, p Params) Params {
	if isNil(p) || p.Family() != v.Family {
		return v.Defaults()
	}
	return p.clone()
}

func isNil(p Params) bool {
	switch t := p.(type) {
	case nil:
		return true
	case *JPEGParams:
		return t == nil
	case *JPEGLSParams:
		return t == nil
	case *J2KParams:
		return t == nil
	}
	return false
}
