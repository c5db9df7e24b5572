package render

import (
	"image"
	"image/color"
)

// DefaultThreshold separates dark from light gray levels
const DefaultThreshold = 128

// Bitmap is a packed 1-bit image, MSB first, 1 = dark
type Bitmap struct {
	Width      int
	Height     int
	WidthBytes int
	Data       []byte
}

// Monochrome packs img into a bitmap whose width is padded to a whole byte
func Monochrome(img image.Image, threshold uint8) *Bitmap {
	b := img.Bounds()
	widthBytes := (b.Dx() + 7) / 8

	bm := &Bitmap{
		Width:      b.Dx(),
		Height:     b.Dy(),
		WidthBytes: widthBytes,
		Data:       make([]byte, widthBytes*b.Dy()),
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if gray(img.At(b.Min.X+x, b.Min.Y+y)) < threshold {
				bm.Data[y*widthBytes+x/8] |= 1 << (7 - x%8)
			}
		}
	}
	return bm
}

// Inverted returns a copy with every bit flipped
func (bm *Bitmap) Inverted() []byte {
	out := make([]byte, len(bm.Data))
	for i, v := range bm.Data {
		out[i] = ^v
	}
	return out
}

// Dark reports whether the pixel at x, y is set
func (bm *Bitmap) Dark(x, y int) bool {
	return bm.Data[y*bm.WidthBytes+x/8]&(1<<(7-x%8)) != 0
}

// Image converts the bitmap back to a viewable grayscale image
func (bm *Bitmap) Image() image.Image {
	img := image.NewGray(image.Rect(0, 0, bm.Width, bm.Height))
	for y := 0; y < bm.Height; y++ {
		for x := 0; x < bm.Width; x++ {
			if bm.Dark(x, y) {
				img.SetGray(x, y, color.Gray{0})
			} else {
				img.SetGray(x, y, color.Gray{255})
			}
		}
	}
	return img
}

// gray converts a color to a luminance value, treating transparency as white
func gray(c color.Color) uint8 {
	r, g, b, a := c.RGBA()
	if a == 0 {
		return 255
	}
	lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256
	return uint8(lum)
}
