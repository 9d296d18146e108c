package qr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"battery-passport/internal/scan"
)

// FormatQRCode is the only barcode format the detector decodes.
const FormatQRCode = "qr_code"

// Detector decodes QR codes with gozxing.
type Detector struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewDetector creates a QR detector tuned for camera frames.
func NewDetector() *Detector {
	return &Detector{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Detect returns the QR payload found in frame. A frame without a code yields
// no candidates and no error.
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]scan.Barcode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, errors.New("nil frame")
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return nil, fmt.Errorf("binarize frame: %w", err)
	}

	result, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		var notFound gozxing.NotFoundException
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode qr: %w", err)
	}

	return []scan.Barcode{{RawValue: result.GetText(), Format: FormatQRCode}}, nil
}

// CheckFormats reports scan.ErrUnsupported unless every requested format can be decoded.
func CheckFormats(formats []string) error {
	if len(formats) == 0 {
		return fmt.Errorf("%w: no barcode formats configured", scan.ErrUnsupported)
	}
	for _, format := range formats {
		if normalizeFormat(format) != FormatQRCode {
			return fmt.Errorf("%w: barcode format %q", scan.ErrUnsupported, format)
		}
	}
	return nil
}

// NewDetectorFactory returns the capability check used at session start.
func NewDetectorFactory(formats []string) scan.DetectorFactory {
	requested := append([]string(nil), formats...)
	return func() (scan.Detector, error) {
		if err := CheckFormats(requested); err != nil {
			return nil, err
		}
		return NewDetector(), nil
	}
}

func normalizeFormat(format string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(format)), "-", "_")
}
