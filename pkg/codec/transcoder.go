package codec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jpfielding/pixeldata.go/pkg/dicom/transfer"
	"github.com/jpfielding/pixeldata.go/pkg/logging"
	"github.com/jpfielding/pixeldata.go/pkg/pixel"
	"github.com/jpfielding/pixeldata.go/pkg/util"
)

// Transcoder runs frame loops against a registry. It holds no per-call state
// and is safe for concurrent use; each call binds its own engine instance.
type Transcoder struct {
	reg *Registry
	log *slog.Logger
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithLogger sets the logger; the default is slog.Default() at call time.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transcoder) { t.log = l }
}

// NewTranscoder returns a transcoder over reg, or over DefaultRegistry when
// reg is nil.
func NewTranscoder(reg *Registry, opts ...Option) *Transcoder {
	if reg == nil {
		reg = DefaultRegistry()
	}
	t := &Transcoder{reg: reg}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Registry returns the variant table the transcoder uses.
func (t *Transcoder) Registry() *Registry { return t.reg }

func (t *Transcoder) logger() *slog.Logger {
	if t.log != nil {
		return t.log
	}
	return slog.Default()
}

func (t *Transcoder) lookup(syntax transfer.Syntax) (Variant, error) {
	v, ok := t.reg.Lookup(syntax)
	if !ok {
		e := newError(ErrUnsupportedSyntax, string(syntax), nil)
		e.Syntax = syntax
		return Variant{}, e
	}
	return v, nil
}

// narrow drops a 16-bit allocation the engines cannot carry for 8-bit data.
func narrow(b *pixel.Buffer) {
	if b.BitsAllocated == 16 && b.BitsStored <= 8 {
		b.BitsAllocated = 8
	}
}

// commit moves the frames and attributes built in work into dst, so a call
// that fails part way leaves dst as it was.
func commit(dst, work *pixel.Buffer) error {
	m, ok := dst.Store().(*pixel.MemStore)
	if !ok {
		return fmt.Errorf("buffer store %T does not accept frames", dst.Store())
	}
	for _, f := range work.Store().(*pixel.MemStore).Frames() {
		m.Append(f)
	}
	*dst = *work
	dst.WithStore(m)
	return nil
}

// Encode compresses every frame of the native src into dst, whose Syntax
// selects the variant. dst must be empty and backed by an in-memory store.
// dst is only modified when every frame encodes.
func (t *Transcoder) Encode(ctx context.Context, src, dst *pixel.Buffer, p Params) error {
	ctx = logging.AppendCtx(ctx,
		slog.String("call", util.CallID()),
		slog.String("op", "encode"),
		slog.String("syntax", string(dst.Syntax)))
	log := t.logger()

	v, err := t.lookup(dst.Syntax)
	if err != nil {
		return err
	}
	if src.Photometric.IsSubsampled() {
		e := newError(ErrUnsupportedPhotometricInterpretation,
			fmt.Sprintf("photometric interpretation '%s' not supported by the %s encoder", src.Photometric, v.Family), nil)
		e.Syntax = v.Syntax
		return e
	}
	frames := src.NumberOfFrames()
	if frames == 0 {
		return nil
	}
	if err := src.Validate(); err != nil {
		return annotate(newError(ErrCodecParameter, "", err), v.Syntax, -1)
	}
	work := dst.Shell(dst.Syntax)
	narrow(work)

	b, err := Select(v, src.BitsStored, p)
	if err != nil {
		return err
	}
	layout := pixel.LayoutOf(src)
	layout.Signed = b.signed
	g := geometry{
		Width:       src.Width,
		Height:      src.Height,
		Components:  src.SamplesPerPixel,
		Bits:        src.BitsStored,
		Signed:      b.signed,
		Photometric: src.Photometric,
		Log:         log,
	}
	limit := src.UncompressedFrameSize()
	log.DebugContext(ctx, "encoding",
		slog.String("variant", v.Tag.String()),
		slog.String("mode", b.Mode()),
		slog.Int("class", b.PrecisionClass()),
		slog.Int("frames", frames))

	for i := 0; i < frames; i++ {
		raw, err := src.GetFrameDataU8(i)
		if err != nil {
			src.Unload()
			return annotate(fmt.Errorf("loading frame: %w", err), v.Syntax, i)
		}
		planes, err := pixel.Pack(raw, layout)
		if err != nil {
			src.Unload()
			return annotate(fmt.Errorf("marshaling frame: %w", err), v.Syntax, i)
		}
		if !layout.Signed {
			maskPlanes(planes, src.BitsStored)
		}
		data, err := b.adapter.encode(ctx, g, planes, limit)
		src.Unload()
		if err != nil {
			return annotate(err, v.Syntax, i)
		}
		if err := work.AddFrame(data); err != nil {
			return annotate(err, v.Syntax, i)
		}
		log.DebugContext(ctx, "encoded frame", slog.Int("frame", i), slog.Int("bytes", len(data)))
	}
	if err := reconcileEncode(b, src, work); err != nil {
		return annotate(err, v.Syntax, -1)
	}
	if err := commit(dst, work); err != nil {
		return annotate(err, v.Syntax, -1)
	}
	return nil
}

// Decode decompresses every frame of src, whose Syntax selects the variant,
// into the native dst. dst is only modified when every frame decodes.
func (t *Transcoder) Decode(ctx context.Context, src, dst *pixel.Buffer, p Params) error {
	ctx = logging.AppendCtx(ctx,
		slog.String("call", util.CallID()),
		slog.String("op", "decode"),
		slog.String("syntax", string(src.Syntax)))
	log := t.logger()

	v, err := t.lookup(src.Syntax)
	if err != nil {
		return err
	}
	frames := src.NumberOfFrames()
	if frames == 0 {
		return nil
	}
	work := dst.Shell(dst.Syntax)
	narrow(work)

	first, err := src.GetFrameDataU8(0)
	if err != nil {
		src.Unload()
		return annotate(fmt.Errorf("loading frame: %w", err), v.Syntax, 0)
	}
	precision, err := v.ScanPrecision(first)
	if err != nil {
		log.DebugContext(ctx, "header scan failed, using bits stored",
			slog.Int("bitsStored", src.BitsStored),
			slog.Any("error", err))
		precision = src.BitsStored
	}
	if work.BitsStored <= 8 && precision > 8 {
		work.BitsAllocated = 16
	}

	b, err := Select(v, precision, p)
	if err != nil {
		src.Unload()
		return err
	}
	reconcileDecode(b, work)
	layout := pixel.LayoutOf(work)
	g := geometry{
		Width:       src.Width,
		Height:      src.Height,
		Components:  src.SamplesPerPixel,
		Bits:        precision,
		Photometric: src.Photometric,
		Log:         log,
	}
	log.DebugContext(ctx, "decoding",
		slog.String("variant", v.Tag.String()),
		slog.String("mode", b.Mode()),
		slog.Int("precision", precision),
		slog.Int("frames", frames))

	for i := 0; i < frames; i++ {
		data, err := src.GetFrameDataU8(i)
		if err != nil {
			src.Unload()
			return annotate(fmt.Errorf("loading frame: %w", err), v.Syntax, i)
		}
		planes, signed, err := b.adapter.decode(ctx, g, data)
		src.Unload()
		if err != nil {
			return annotate(err, v.Syntax, i)
		}
		layout.Signed = signed
		frame, err := pixel.Unpack(planes, layout)
		if err != nil {
			return annotate(fmt.Errorf("marshaling frame: %w", err), v.Syntax, i)
		}
		if err := work.AddFrame(frame); err != nil {
			return annotate(err, v.Syntax, i)
		}
		log.DebugContext(ctx, "decoded frame", slog.Int("frame", i), slog.Int("bytes", len(data)))
	}
	if err := commit(dst, work); err != nil {
		return annotate(err, v.Syntax, -1)
	}
	return nil
}

// Transcode converts src to the target syntax and returns the new buffer.
// Compressed to compressed conversions decode to Explicit VR Little Endian
// first; p applies to whichever step shares its family.
func (t *Transcoder) Transcode(ctx context.Context, src *pixel.Buffer, target transfer.Syntax, p Params) (*pixel.Buffer, error) {
	srcEnc, dstEnc := src.Syntax.IsEncapsulated(), target.IsEncapsulated()
	switch {
	case !srcEnc && !dstEnc:
		if !src.Syntax.IsLittleEndian() || !target.IsLittleEndian() {
			e := newError(ErrUnsupportedSyntax, "big endian pixel data", nil)
			e.Syntax = target
			return nil, e
		}
		dst := src.Shell(target)
		for i := 0; i < src.NumberOfFrames(); i++ {
			f, err := src.GetFrameDataU8(i)
			if err != nil {
				return nil, annotate(fmt.Errorf("loading frame: %w", err), src.Syntax, i)
			}
			if err := dst.AddFrame(f); err != nil {
				return nil, annotate(err, target, i)
			}
			src.Unload()
		}
		return dst, nil
	case !srcEnc:
		dst := src.Shell(target)
		if err := t.Encode(ctx, src, dst, p); err != nil {
			return nil, err
		}
		return dst, nil
	case !dstEnc:
		dst := src.Shell(target)
		if err := t.Decode(ctx, src, dst, p); err != nil {
			return nil, err
		}
		return dst, nil
	}
	mid := src.Shell(transfer.ExplicitVRLittleEndian)
	if err := t.Decode(ctx, src, mid, p); err != nil {
		return nil, err
	}
	dst := mid.Shell(target)
	if err := t.Encode(ctx, mid, dst, p); err != nil {
		return nil, err
	}
	return dst, nil
}
