package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jpfielding/pixeldata.go/pkg/codec"
	"github.com/jpfielding/pixeldata.go/pkg/dicom"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/tag"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/transfer"
	"github.com/jpfielding/pixeldata.go/pkg/util"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var syntaxAliases = map[string]transfer.Syntax{
	"explicit":          transfer.ExplicitVRLittleEndian,
	"implicit":          transfer.ImplicitVRLittleEndian,
	"deflated":          transfer.DeflatedExplicitVR,
	"jpeg-baseline":     transfer.JPEGBaseline,
	"jpeg-extended":     transfer.JPEGExtended,
	"jpeg-lossless":     transfer.JPEGLossless,
	"jpeg-sv1":          transfer.JPEGLosslessFirstOrder,
	"jpeg-ls":           transfer.JPEGLSLossless,
	"jpeg-ls-near":      transfer.JPEGLSNearLossless,
	"jpeg2000":          transfer.JPEG2000,
	"jpeg2000-lossless": transfer.JPEG2000Lossless,
}

// parseSyntax accepts a transfer syntax UID or one of the short aliases.
func parseSyntax(s string) (transfer.Syntax, error) {
	if ts, ok := syntaxAliases[strings.ToLower(s)]; ok {
		return ts, nil
	}
	ts := transfer.FromUID(s)
	if !ts.Known() {
		return "", fmt.Errorf("unknown transfer syntax %q", s)
	}
	return ts, nil
}

// transcodeParams maps the command flags onto the parameters of the family
// doing the work: the target's when encoding, the source's when decoding to a
// native syntax. Flags that were not set keep the family defaults.
func transcodeParams(cmd *cobra.Command, source, target transfer.Syntax) codec.Params {
	flags := cmd.Flags()
	if !target.IsEncapsulated() {
		target = source
	}
	switch {
	case target.IsJPEGLS():
		p := codec.NewJPEGLSParams()
		if flags.Changed("near") {
			near, _ := flags.GetInt("near")
			p.WithAllowedError(near)
		}
		return p
	case target.IsJPEG2000():
		p := codec.NewJ2KParams()
		if flags.Changed("rate") {
			rate, _ := flags.GetInt("rate")
			p.WithRate(rate)
		}
		if flags.Changed("irreversible") {
			irr, _ := flags.GetBool("irreversible")
			p.WithIrreversible(irr)
		}
		if flags.Changed("signed") {
			signed, _ := flags.GetBool("signed")
			p.WithEncodeSignedPixelValuesAsUnsigned(!signed)
		}
		verbose, _ := flags.GetBool("verbose")
		return p.WithVerbose(verbose)
	case target.IsJPEG():
		p := codec.NewJPEGParams()
		if flags.Changed("quality") {
			q, _ := flags.GetInt("quality")
			p.WithQuality(q)
		}
		if flags.Changed("predictor") {
			pred, _ := flags.GetInt("predictor")
			p.WithPredictor(pred)
		}
		rgb, _ := flags.GetBool("rgb")
		return p.WithConvertColorspaceToRGB(rgb)
	}
	return nil
}

func NewTranscodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcode",
		Short: "convert pixel data to another transfer syntax",
		Long:  "Reads a DICOM file, re-encodes its pixel data in the requested transfer syntax and writes the result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			out, _ := cmd.Flags().GetString("out")
			syntaxFlag, _ := cmd.Flags().GetString("syntax")
			if in == "" || out == "" {
				return fmt.Errorf("--in and --out are required")
			}
			target, err := parseSyntax(syntaxFlag)
			if err != nil {
				return err
			}

			ds, err := dicom.ReadFile(in)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", in, err)
			}
			src, err := dicom.PixelBuffer(ds)
			if err != nil {
				return fmt.Errorf("failed to load pixel data: %w", err)
			}
			slog.InfoContext(ctx, "transcoding",
				slog.String("in", in),
				slog.String("from", src.Syntax.Name()),
				slog.String("to", target.Name()),
				slog.Int("frames", src.NumberOfFrames()))

			if target.IsJPEG2000() {
				slog.WarnContext(ctx, "JPEG 2000 tile data is coded with the built-in coefficient coder, other JPEG 2000 decoders cannot read it",
					slog.String("syntax", string(target)),
					slog.String("out", out))
			}

			dst, err := codec.NewTranscoder(nil).Transcode(ctx, src, target, transcodeParams(cmd, src.Syntax, target))
			if err != nil {
				return err
			}
			if err := dicom.SetPixelBuffer(ds, dst); err != nil {
				return fmt.Errorf("failed to store pixel data: %w", err)
			}
			// a lossy result is a new instance
			if dst.IsLossy && !src.IsLossy {
				uid := util.NewUID()
				if stable, _ := cmd.Flags().GetBool("stable-uid"); stable {
					uid = util.HashUID([]string{ds.GetString(tag.SOPInstanceUID), string(target)})
				}
				ds.Set(tag.SOPInstanceUID, uid)
				ds.Set(tag.MediaStorageSOPInstanceUID, uid)
			}
			n, err := dicom.WriteFile(out, ds)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			p := message.NewPrinter(language.English)
			p.Fprintf(cmd.OutOrStdout(), "%s: %d frames, %d bytes, %s\n", out, dst.NumberOfFrames(), n, target.Name())
			if dst.IsLossy {
				p.Fprintf(cmd.OutOrStdout(), "lossy %s, ratio %s\n", dst.LossyCompressionMethod, dst.LossyCompressionRatio)
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("in", "i", "", "source DICOM file")
	pf.StringP("out", "o", "", "destination DICOM file")
	pf.StringP("syntax", "s", string(transfer.JPEGLSLossless), "target transfer syntax UID or alias (jpeg-ls, jpeg2000, ...)")
	pf.Int("quality", 90, "JPEG quality 0..100")
	pf.Int("predictor", 1, "JPEG lossless predictor 1..7")
	pf.Bool("rgb", false, "convert YBR to RGB when decoding JPEG")
	pf.Int("near", 3, "JPEG-LS near-lossless allowed error")
	pf.Int("rate", 20, "JPEG 2000 target compression ratio, 0 for lossless")
	pf.Bool("irreversible", true, "JPEG 2000 irreversible 9/7 wavelet for the lossy syntax")
	pf.Bool("signed", false, "JPEG 2000 encode signed samples as signed components")
	pf.Bool("verbose", false, "log JPEG 2000 engine warnings and info")
	pf.Bool("stable-uid", false, "derive the new SOP Instance UID from the old one instead of a random one")
	return cmd
}
