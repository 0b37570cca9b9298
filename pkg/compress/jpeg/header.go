package jpeg

import (
	"encoding/binary"
	"fmt"
)

// isSOF reports whether m is a start-of-frame marker (DHT, JPG and DAC share
// the range).
func isSOF(m byte) bool {
	return m >= 0xC0 && m <= 0xCF && m != 0xC4 && m != 0xC8 && m != 0xCC
}

// findSOF walks the marker segments and returns the offset of the first
// frame header's marker byte.
func findSOF(data []byte) (int, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return 0, fmt.Errorf("%w: missing SOI", ErrInvalidFormat)
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return 0, fmt.Errorf("%w: expected marker at %d", ErrInvalidFormat, pos)
		}
		m := data[pos+1]
		switch {
		case m == 0xFF:
			pos++ // fill byte
			continue
		case isSOF(m):
			return pos, nil
		case m == 0xD8 || (m >= 0xD0 && m <= 0xD7) || m == 0x01:
			pos += 2
			continue
		case m == 0xD9 || m == 0xDA:
			return 0, fmt.Errorf("%w: no frame header before 0x%02X", ErrInvalidFormat, m)
		}
		pos += 2 + int(binary.BigEndian.Uint16(data[pos+2:]))
	}
	return 0, fmt.Errorf("%w: no frame header", ErrInvalidFormat)
}

// ScanPrecision returns the sample precision from the first frame header.
func ScanPrecision(data []byte) (int, error) {
	pos, err := findSOF(data)
	if err != nil {
		return 0, err
	}
	if pos+4 >= len(data) {
		return 0, fmt.Errorf("%w: short frame header", ErrInvalidFormat)
	}
	return int(data[pos+4]), nil
}

// rewriteSOF changes the frame marker and precision in place.
func rewriteSOF(data []byte, marker, precision byte) error {
	pos, err := findSOF(data)
	if err != nil {
		return err
	}
	if pos+4 >= len(data) {
		return fmt.Errorf("%w: short frame header", ErrInvalidFormat)
	}
	data[pos+1] = marker
	data[pos+4] = precision
	return nil
}
