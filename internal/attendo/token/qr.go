package token

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the edge length in pixels of rendered codes.
const DefaultQRSize = 300

// RenderPNG draws the encoded token as a QR code with the highest error
// correction level, which keeps it scannable from a projector.
func RenderPNG(t AttendanceToken, size int) ([]byte, error) {
	raw, err := Encode(t.ClassID, t.IssuedAt, t.ValidMinutes)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(raw, qrcode.Highest, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
