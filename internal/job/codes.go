package job

import (
	"errors"
	"fmt"
	"image"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/skip2/go-qrcode"
)

// DotsPerMM is the print head resolution generated codes are sized for (203 dpi)
const DotsPerMM = 8

var errEmptyCode = errors.New("code content is empty")

// Barcode encodes content as CODE128 sized to a w x h mm box
func Barcode(content string, w, h float64) (image.Image, error) {
	if content == "" {
		return nil, errEmptyCode
	}

	bc, err := code128.Encode(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode barcode: %w", err)
	}

	width := max(int(w*DotsPerMM), bc.Bounds().Dx())
	height := max(int(h*DotsPerMM), 1)

	scaled, err := barcode.Scale(bc, width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to scale barcode: %w", err)
	}
	return scaled, nil
}

// QRCode encodes content as a square QR code fitting a w x h mm box
func QRCode(content string, w, h float64) (image.Image, error) {
	if content == "" {
		return nil, errEmptyCode
	}

	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	qr.DisableBorder = true

	size := int(min(w, h) * DotsPerMM)
	if size <= 0 {
		size = 64
	}
	return qr.Image(size), nil
}
