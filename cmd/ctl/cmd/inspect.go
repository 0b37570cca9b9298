package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jpfielding/pixeldata.go/pkg/codec"
	"github.com/jpfielding/pixeldata.go/pkg/dicom"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/tag"
	"github.com/jpfielding/pixeldata.go/pkg/pixel"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NewInspectCmd creates the inspect cobra command
func NewInspectCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Describe the pixel data of a DICOM file",
		Long:  "Prints the pixel module, transfer syntax, per-frame sizes, the precision found in each compressed frame header and the compression ratio.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath, _ := cmd.Flags().GetString("file")
			maxFrames, _ := cmd.Flags().GetInt("frames")
			dumpFrame, _ := cmd.Flags().GetInt("dump-frame")
			out, _ := cmd.Flags().GetString("out")

			if filePath == "" && len(args) > 0 {
				filePath = args[0]
			}
			if filePath == "" {
				return fmt.Errorf("file path is required. Use --file flag or provide as argument")
			}

			ds, err := dicom.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("parse error: %w", err)
			}
			buf, err := dicom.PixelBuffer(ds)
			if err != nil {
				return err
			}
			if dumpFrame >= 0 {
				return dumpFrameTo(ctx, buf, dumpFrame, out)
			}
			return runInspect(cmd.OutOrStdout(), ds, buf, maxFrames)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("file", "f", "", "DICOM file path to inspect")
	pf.Int("frames", 3, "number of frames to list, -1 for all")
	pf.Int("dump-frame", -1, "Index of frame to dump to disk")
	pf.String("out", "", "Output path for dumped frame")
	return cmd
}

func runInspect(w io.Writer, ds *dicom.Dataset, buf *pixel.Buffer, maxFrames int) error {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "SOPInstanceUID: %s\n", ds.GetString(tag.SOPInstanceUID))
	p.Fprintf(w, "TransferSyntax: %s (%s)\n", buf.Syntax, buf.Syntax.Name())
	p.Fprintf(w, "Geometry: %dx%d, %d samples, %s\n", buf.Width, buf.Height, buf.SamplesPerPixel, buf.Photometric)
	p.Fprintf(w, "Bits: allocated %d, stored %d, high %d, signed %v\n",
		buf.BitsAllocated, buf.BitsStored, buf.HighBit, buf.IsSigned())
	p.Fprintf(w, "PlanarConfiguration: %d\n", buf.PlanarConfiguration)
	if buf.IsLossy {
		p.Fprintf(w, "Lossy: %s, ratio %s\n", buf.LossyCompressionMethod, buf.LossyCompressionRatio)
	}
	if err := buf.Validate(); err != nil {
		p.Fprintf(w, "Invalid: %v\n", err)
	}

	frames := buf.NumberOfFrames()
	native := buf.UncompressedFrameSize()
	p.Fprintf(w, "Frames: %d of %d bytes native\n", frames, native)

	v, known := codec.DefaultRegistry().Lookup(buf.Syntax)
	if maxFrames < 0 || maxFrames > frames {
		maxFrames = frames
	}
	var total int
	for i := 0; i < frames; i++ {
		size, err := buf.FrameSize(i)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		total += size
		if i >= maxFrames {
			continue
		}
		p.Fprintf(w, "  frame %d: %d bytes", i, size)
		if known {
			f, err := buf.GetFrameDataU8(i)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			if bits, err := v.ScanPrecision(f); err != nil {
				p.Fprintf(w, ", header: %v", err)
			} else {
				p.Fprintf(w, ", precision %d", bits)
			}
			p.Fprintf(w, ", ratio %s", codec.FormatRatio(native, size))
			buf.Unload()
		}
		fmt.Fprintln(w)
	}
	if frames > 0 {
		p.Fprintf(w, "Total: %d bytes, ratio %s\n", total, codec.FormatRatio(native*frames, total))
	}
	return nil
}

func dumpFrameTo(ctx context.Context, buf *pixel.Buffer, frame int, outPath string) error {
	if frame >= buf.NumberOfFrames() {
		return fmt.Errorf("frame index %d out of bounds (0-%d)", frame, buf.NumberOfFrames()-1)
	}
	data, err := buf.GetFrameDataU8(frame)
	if err != nil {
		return err
	}
	defer buf.Unload()
	if outPath == "" {
		outPath = fmt.Sprintf("frame_%d.bin", frame)
	}
	slog.InfoContext(ctx, "dumping frame", slog.Int("frame", frame), slog.Int("bytes", len(data)), slog.String("out", outPath))
	return os.WriteFile(outPath, data, 0644)
}
