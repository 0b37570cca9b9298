package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jpfielding/pixeldata.go/pkg/dicom/transfer"
)

var (
	ErrUnsupportedPhotometricInterpretation = errors.New("unsupported photometric interpretation")
	ErrUnsupportedPrecision                 = errors.New("unsupported precision")
	ErrCodecParameter                       = errors.New("invalid codec parameter")
	ErrCodecEngine                          = errors.New("codec engine failure")
	// ErrHeaderScan is recovered by the driver and never returned from a
	// transcode call.
	ErrHeaderScan        = errors.New("header scan failed")
	ErrUnsupportedSyntax = errors.New("unsupported transfer syntax")
)

// Error is the failure of one transcode call. Kind is one of the package
// sentinels; Code is the engine's own error code when it has one.
type Error struct {
	Kind    error
	Syntax  transfer.Syntax
	Frame   int // -1 when the failure is not tied to a frame
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("codec")
	if e.Syntax != "" {
		fmt.Fprintf(&sb, " %s", e.Syntax.Name())
	}
	if e.Frame >= 0 {
		fmt.Fprintf(&sb, " frame %d", e.Frame)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, msg string, err error) *Error {
	return &Error{Kind: kind, Frame: -1, Message: msg, Err: err}
}

// annotate stamps the syntax and frame on err, wrapping foreign errors as
// engine failures.
func annotate(err error, syntax transfer.Syntax, frame int) error {
	var ce *Error
	if !errors.As(err, &ce) {
		ce = newError(ErrCodecEngine, "", err)
	}
	if ce.Syntax == "" {
		ce.Syntax = syntax
	}
	if ce.Frame < 0 {
		ce.Frame = frame
	}
	return ce
}
