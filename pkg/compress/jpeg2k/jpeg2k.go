package jpeg2k

import (
	"errors"
	"fmt"
	"math"
)

const guardBits = 2

// EncoderParams configures a Compressor.
type EncoderParams struct {
	// Irreversible selects the 9/7 transform and ICT; otherwise 5/3 and RCT.
	Irreversible bool
	// Rates lists one compression ratio per quality layer, non-increasing.
	// A trailing 0 makes the last layer carry every remaining bit.
	Rates []float64
	// MCT decorrelates the first three components.
	MCT bool
	// Resolutions is the number of resolution levels (decompositions + 1).
	Resolutions int
	Progression ProgressionOrder
	// Comment is written in a COM segment when not empty.
	Comment string
}

// DefaultEncoderParams returns a single lossless layer over six resolutions.
func DefaultEncoderParams() EncoderParams {
	return EncoderParams{
		Rates:       []float64{0},
		Resolutions: 6,
		Progression: ProgressionLRCP,
	}
}

func (p EncoderParams) validate(img *Image) error {
	if len(p.Rates) == 0 || len(p.Rates) > 0xFFFF {
		return fmt.Errorf("%w: %d quality layers", ErrInvalidParams, len(p.Rates))
	}
	for i, r := range p.Rates {
		if r < 0 || math.IsNaN(r) {
			return fmt.Errorf("%w: layer %d rate %v", ErrInvalidParams, i, r)
		}
		if i > 0 && (p.Rates[i-1] == 0 || r > p.Rates[i-1]) {
			return fmt.Errorf("%w: layer rates must decrease, got %v", ErrInvalidParams, p.Rates)
		}
	}
	if p.Resolutions < 1 || p.Resolutions > 33 {
		return fmt.Errorf("%w: %d resolutions", ErrInvalidParams, p.Resolutions)
	}
	if p.MCT {
		if len(img.Components) < 3 {
			return fmt.Errorf("%w: MCT needs 3 components, image has %d", ErrInvalidParams, len(img.Components))
		}
		c0 := img.Components[0].ComponentParams
		for _, c := range img.Components[1:3] {
			if c.Precision != c0.Precision || c.Signed != c0.Signed {
				return fmt.Errorf("%w: MCT components differ in precision or sign", ErrInvalidParams)
			}
		}
	}
	return nil
}

// Compressor encodes images into codestreams.
type Compressor struct {
	handle
	events EventManager
	params EncoderParams
	ready  bool
}

// NewCompressor acquires a compressor handle.
func NewCompressor() *Compressor {
	c := &Compressor{}
	c.acquire()
	return c
}

// SetEventManager installs diagnostic callbacks.
func (c *Compressor) SetEventManager(em EventManager) {
	c.events = em
}

// Setup validates p against img and arms the compressor.
func (c *Compressor) Setup(p EncoderParams, img *Image) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := img.check(); err != nil {
		return c.events.fail(err)
	}
	if err := p.validate(img); err != nil {
		return c.events.fail(err)
	}
	c.params = p
	c.params.Rates = append([]float64(nil), p.Rates...)
	c.ready = true
	return nil
}

// Release frees the compressor. Further releases are no-ops.
func (c *Compressor) Release() {
	c.release()
}

// Encode writes img to out as a single-tile codestream.
func (c *Compressor) Encode(img *Image, out *Stream) error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.ready {
		return c.events.fail(ErrNotSetup)
	}
	for _, h := range []*handle{&img.handle, &out.handle} {
		if err := h.check(); err != nil {
			return c.events.fail(err)
		}
	}
	if err := c.params.validate(img); err != nil {
		return c.events.fail(err)
	}
	p := c.params
	w, h := img.Width, img.Height
	levels := p.Resolutions - 1
	prec0 := img.Components[0].Precision
	c.events.infof("encoding %dx%d, %d components, %s transform, %d layers",
		w, h, len(img.Components), transformOf(p.Irreversible), len(p.Rates))

	var qcd *QCDMarker
	var quant [][]int32
	if p.Irreversible {
		qcd = BuildScalarQCD(guardBits, prec0+1, 0)
		quant = forwardIrreversible(img, p.MCT, levels, qcd.StepSize(prec0))
	} else {
		qcd = BuildDefaultQCD(levels, guardBits, prec0)
		quant = forwardReversible(img, p.MCT, levels)
	}

	rawBits := 0
	for _, comp := range img.Components {
		rawBits += comp.Precision * w * h
	}
	top, layers := packLayers(quant, p.Rates, (rawBits+7)/8, c.events)
	tile := appendTile(nil, top, layers)

	comps := make([]ComponentInfo, len(img.Components))
	for i, comp := range img.Components {
		comps[i] = ComponentInfo{Precision: comp.Precision, Signed: comp.Signed, XRsiz: 1, YRsiz: 1}
	}
	cod := BuildDefaultCOD(levels, len(layers), p.Progression, p.MCT)
	if p.Irreversible {
		cod.Transform = TransformIrreversible97
	}

	cw := NewCodestreamWriter(out)
	err := errors.Join(
		cw.WriteSOC(),
		cw.WriteSIZ(BuildSIZ(w, h, comps, 0, 0)),
		cw.WriteCOD(cod),
		cw.WriteQCD(qcd),
	)
	if err == nil && p.Comment != "" {
		err = cw.WriteCOM(&COMMarker{Registration: 1, Data: []byte(p.Comment)})
	}
	if err == nil {
		err = errors.Join(
			cw.WriteSOT(&SOTMarker{TilePartLen: uint32(12 + 2 + len(tile)), NumTileParts: 1}),
			cw.WriteSOD(),
			cw.WriteBytes(tile),
			cw.WriteEOC(),
			cw.Flush(),
		)
	}
	if err != nil {
		return c.events.fail(fmt.Errorf("writing codestream: %w", err))
	}
	c.events.infof("wrote %d bytes", out.Len())
	return nil
}

func transformOf(irreversible bool) TransformType {
	if irreversible {
		return TransformIrreversible97
	}
	return TransformReversible53
}

// dcShift is the level shift applied to unsigned components.
func dcShift(c ComponentParams) int {
	if c.Signed {
		return 0
	}
	return 1 << (c.Precision - 1)
}

func forwardReversible(img *Image, mct bool, levels int) [][]int32 {
	n := img.Width * img.Height
	planes := make([][]int, len(img.Components))
	for ci, comp := range img.Components {
		plane := make([]int, n)
		shift := dcShift(comp.ComponentParams)
		for i, v := range comp.Data[:n] {
			plane[i] = int(v) - shift
		}
		planes[ci] = plane
	}
	if mct {
		ForwardRCT(planes[0], planes[1], planes[2])
	}
	quant := make([][]int32, len(planes))
	for ci, plane := range planes {
		ForwardMultiLevel(plane, img.Width, img.Height, levels)
		q := make([]int32, n)
		for i, v := range plane {
			q[i] = int32(v)
		}
		quant[ci] = q
	}
	return quant
}

func forwardIrreversible(img *Image, mct bool, levels int, step float64) [][]int32 {
	n := img.Width * img.Height
	planes := make([][]float64, len(img.Components))
	for ci, comp := range img.Components {
		plane := make([]float64, n)
		shift := dcShift(comp.ComponentParams)
		for i, v := range comp.Data[:n] {
			plane[i] = float64(int(v) - shift)
		}
		planes[ci] = plane
	}
	if mct {
		ForwardICT(planes[0], planes[1], planes[2])
	}
	quant := make([][]int32, len(planes))
	for ci, plane := range planes {
		ForwardMultiLevel97(plane, img.Width, img.Height, levels)
		q := make([]int32, n)
		for i, v := range plane {
			m := int32(math.Floor(math.Abs(v) / step))
			if v < 0 {
				m = -m
			}
			q[i] = m
		}
		quant[ci] = q
	}
	return quant
}

// DecoderParams configures a Decompressor.
type DecoderParams struct {
	// Layer limits decoding to the first Layer quality layers; 0 decodes all.
	Layer int
	// Reduce discards resolution levels. Only 0 is supported.
	Reduce int
}

// Decompressor decodes codestreams into images.
type Decompressor struct {
	handle
	events EventManager
	params DecoderParams
	ready  bool
	cs     *Codestream
	src    *Stream
}

// NewDecompressor acquires a decompressor handle.
func NewDecompressor() *Decompressor {
	d := &Decompressor{}
	d.acquire()
	return d
}

// SetEventManager installs diagnostic callbacks.
func (d *Decompressor) SetEventManager(em EventManager) {
	d.events = em
}

// Setup validates and stores decoding parameters.
func (d *Decompressor) Setup(p DecoderParams) error {
	if err := d.check(); err != nil {
		return err
	}
	if p.Reduce != 0 {
		return d.events.fail(fmt.Errorf("%w: resolution reduction %d", ErrUnsupported, p.Reduce))
	}
	if p.Layer < 0 {
		return d.events.fail(fmt.Errorf("%w: layer %d", ErrInvalidParams, p.Layer))
	}
	d.params = p
	d.ready = true
	return nil
}

// Release frees the decompressor. Further releases are no-ops.
func (d *Decompressor) Release() {
	if d.release() {
		d.cs, d.src = nil, nil
	}
}

// ReadHeader parses the codestream in src and acquires an Image handle
// describing it. The caller releases the image.
func (d *Decompressor) ReadHeader(src *Stream) (*Image, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if !d.ready {
		return nil, d.events.fail(ErrNotSetup)
	}
	if err := src.check(); err != nil {
		return nil, d.events.fail(err)
	}
	cs, err := ParseCodestream(src.Bytes())
	if err != nil {
		return nil, d.events.fail(err)
	}
	if err := checkSupported(cs); err != nil {
		return nil, d.events.fail(err)
	}
	params := make([]ComponentParams, len(cs.SIZ.Components))
	for i, ci := range cs.SIZ.Components {
		params[i] = ComponentParams{
			Width:     int(cs.SIZ.XSiz),
			Height:    int(cs.SIZ.YSiz),
			Precision: ci.Precision,
			Signed:    ci.Signed,
		}
	}
	color := ColorUnspecified
	switch {
	case len(params) == 1:
		color = ColorGray
	case len(params) >= 3 && cs.COD.MCT != 0:
		color = ColorSRGB
	}
	img, err := NewImage(params, color)
	if err != nil {
		return nil, d.events.fail(err)
	}
	d.cs, d.src = cs, src
	d.events.infof("codestream %dx%d, %d components, %s transform, %d layers, %d levels",
		img.Width, img.Height, len(params), cs.COD.Transform, cs.COD.NumLayers, cs.COD.DecompLevels)
	return img, nil
}

func checkSupported(cs *Codestream) error {
	siz := &cs.SIZ
	if siz.XSiz == 0 || siz.YSiz == 0 || siz.XSiz > 1<<16 || siz.YSiz > 1<<16 {
		return fmt.Errorf("%w: image %dx%d", ErrInvalidFormat, siz.XSiz, siz.YSiz)
	}
	if siz.XOsiz != 0 || siz.YOsiz != 0 || siz.XTOsiz != 0 || siz.YTOsiz != 0 || siz.NumTiles() != 1 {
		return fmt.Errorf("%w: image offsets or multiple tiles", ErrUnsupported)
	}
	for i, c := range siz.Components {
		if c.XRsiz != 1 || c.YRsiz != 1 {
			return fmt.Errorf("%w: component %d subsampled %dx%d", ErrUnsupported, i, c.XRsiz, c.YRsiz)
		}
		if c.Precision > 16 {
			return fmt.Errorf("%w: component %d precision %d", ErrUnsupported, i, c.Precision)
		}
	}
	if cs.COD.Transform != TransformReversible53 && cs.COD.Transform != TransformIrreversible97 {
		return fmt.Errorf("%w: transform %d", ErrInvalidFormat, cs.COD.Transform)
	}
	if cs.COD.MCT != 0 && len(siz.Components) < 3 {
		return fmt.Errorf("%w: MCT with %d components", ErrInvalidFormat, len(siz.Components))
	}
	if cs.COD.NumLayers == 0 || cs.COD.DecompLevels > 32 {
		return fmt.Errorf("%w: %d layers, %d levels", ErrInvalidFormat, cs.COD.NumLayers, cs.COD.DecompLevels)
	}
	if (cs.QCD.Style() == QuantizationNone) != (cs.COD.Transform == TransformReversible53) {
		return fmt.Errorf("%w: quantization style %d with %s transform", ErrInvalidFormat, cs.QCD.Style(), cs.COD.Transform)
	}
	if len(cs.Tiles[0]) == 0 {
		return fmt.Errorf("%w: missing tile 0", ErrInvalidFormat)
	}
	return nil
}

// Decode fills img, obtained from ReadHeader on the same stream.
func (d *Decompressor) Decode(src *Stream, img *Image) error {
	if err := d.check(); err != nil {
		return err
	}
	for _, h := range []*handle{&src.handle, &img.handle} {
		if err := h.check(); err != nil {
			return d.events.fail(err)
		}
	}
	if d.cs == nil || d.src != src {
		return d.events.fail(fmt.Errorf("%w: header not read from this stream", ErrNotSetup))
	}
	cs := d.cs
	if len(img.Components) != len(cs.SIZ.Components) || img.Width != int(cs.SIZ.XSiz) || img.Height != int(cs.SIZ.YSiz) {
		return d.events.fail(fmt.Errorf("%w: image does not match codestream", ErrInvalidParams))
	}
	top, layers, err := parseTile(cs.Tiles[0], int(cs.COD.NumLayers))
	if err != nil {
		return d.events.fail(err)
	}
	use := len(layers)
	if d.params.Layer > 0 && d.params.Layer < use {
		use = d.params.Layer
		d.events.infof("decoding %d of %d layers", use, len(layers))
	}

	n := img.Width * img.Height
	quant := make([][]int32, len(img.Components))
	for i := range quant {
		quant[i] = make([]int32, n)
	}
	shift, err := unpackLayers(quant, top, layers[:use])
	if err != nil {
		return d.events.fail(err)
	}
	levels := int(cs.COD.DecompLevels)
	mct := cs.COD.MCT != 0
	if cs.COD.Transform == TransformIrreversible97 {
		inverseIrreversible(img, quant, shift, mct, levels, cs.QCD.StepSize(img.Components[0].Precision))
	} else {
		inverseReversible(img, quant, shift, mct, levels)
	}
	return nil
}

func clampTo(v int, c ComponentParams) int32 {
	lo, hi := 0, 1<<c.Precision-1
	if c.Signed {
		lo, hi = -(1 << (c.Precision - 1)), 1<<(c.Precision-1)-1
	}
	return int32(min(max(v, lo), hi))
}

func inverseReversible(img *Image, quant [][]int32, shift int, mct bool, levels int) {
	n := img.Width * img.Height
	planes := make([][]int, len(quant))
	for ci, q := range quant {
		plane := make([]int, n)
		for i, v := range q {
			plane[i] = int(reconstruct(v, shift, false))
		}
		InverseMultiLevel(plane, img.Width, img.Height, levels)
		planes[ci] = plane
	}
	if mct {
		InverseRCT(planes[0], planes[1], planes[2])
	}
	for ci := range img.Components {
		comp := &img.Components[ci]
		off := dcShift(comp.ComponentParams)
		for i, v := range planes[ci] {
			comp.Data[i] = clampTo(v+off, comp.ComponentParams)
		}
	}
}

func inverseIrreversible(img *Image, quant [][]int32, shift int, mct bool, levels int, step float64) {
	n := img.Width * img.Height
	planes := make([][]float64, len(quant))
	for ci, q := range quant {
		plane := make([]float64, n)
		for i, v := range q {
			plane[i] = reconstruct(v, shift, true) * step
		}
		InverseMultiLevel97(plane, img.Width, img.Height, levels)
		planes[ci] = plane
	}
	if mct {
		InverseICT(planes[0], planes[1], planes[2])
	}
	for ci := range img.Components {
		comp := &img.Components[ci]
		off := dcShift(comp.ComponentParams)
		for i, v := range planes[ci] {
			comp.Data[i] = clampTo(int(math.Round(v))+off, comp.ComponentParams)
		}
	}
}

// Header summarises a codestream main header.
type Header struct {
	Width      int
	Height     int
	Components []ComponentInfo
	Layers     int
	Levels     int
	Transform  TransformType
	MCT        bool
}

// Precision returns the bit depth of the first component.
func (h Header) Precision() int {
	if len(h.Components) == 0 {
		return 0
	}
	return h.Components[0].Precision
}

// DecodeHeader parses only the main header of a codestream.
func DecodeHeader(data []byte) (Header, error) {
	siz, cod, _, err := ParseCodestreamHeader(data)
	if err != nil {
		return Header{}, err
	}
	return Header{
		Width:      int(siz.XSiz),
		Height:     int(siz.YSiz),
		Components: siz.Components,
		Layers:     int(cod.NumLayers),
		Levels:     int(cod.DecompLevels),
		Transform:  cod.Transform,
		MCT:        cod.MCT != 0,
	}, nil
}
