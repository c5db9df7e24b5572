// Package render rasterizes normalized label pages for printers that take
// bitmaps rather than draw lists
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/thereceipt/label-engine/internal/job"
)

// Renderer draws pages at a fixed print head resolution
type Renderer struct {
	dotsPerMM float64
	fonts     *fontCache
}

// Label is one rendered page and how many times it repeats within a copy
type Label struct {
	Image image.Image
	Count int
}

// New creates a renderer; dotsPerMM <= 0 uses job.DotsPerMM
func New(dotsPerMM float64) *Renderer {
	if dotsPerMM <= 0 {
		dotsPerMM = job.DotsPerMM
	}
	return &Renderer{
		dotsPerMM: dotsPerMM,
		fonts:     newFontCache(),
	}
}

// DotsPerMM returns the renderer's resolution
func (r *Renderer) DotsPerMM() float64 {
	return r.dotsPerMM
}

func (r *Renderer) dots(mm float64) float64 {
	return mm * r.dotsPerMM
}

// RenderJob renders every label of j, turned by the job's vendor rotation
func (r *Renderer) RenderJob(j *job.PrintJob) ([]Label, error) {
	var labels []Label

	switch j.Mode {
	case job.ModeRaster:
		w := max(int(r.dots(float64(j.LabelWidth))), 1)
		h := max(int(r.dots(float64(j.LabelHeight))), 1)
		for _, img := range j.Images {
			fitted := fitCanvas(img, w, h)
			labels = append(labels, Label{Image: Rotate(fitted, job.QuarterTurns(j.VendorRotation)), Count: 1})
		}

	default:
		for i, page := range j.Pages {
			img, err := r.RenderPage(page)
			if err != nil {
				return nil, fmt.Errorf("failed to render page %d: %w", i, err)
			}
			labels = append(labels, Label{Image: Rotate(img, job.QuarterTurns(j.VendorRotation)), Count: page.Repeat})
		}
	}

	return labels, nil
}

// RenderPage draws one page on a white canvas
func (r *Renderer) RenderPage(p job.Page) (image.Image, error) {
	w := max(int(r.dots(float64(p.Width))), 1)
	h := max(int(r.dots(float64(p.Height))), 1)

	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()

	for i, item := range p.Items {
		var err error
		switch it := item.(type) {
		case *job.Text:
			err = r.drawText(dc, it)
		case *job.Image:
			r.drawImage(dc, it)
		default:
			err = fmt.Errorf("unsupported item %T", item)
		}
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	return dc.Image(), nil
}

func (r *Renderer) box(p job.Placement) (x, y, w, h float64) {
	return r.dots(p.X), r.dots(p.Y), r.dots(p.Width), r.dots(p.Height)
}

func (r *Renderer) drawImage(dc *gg.Context, it *job.Image) {
	x, y, w, h := r.box(it.Placement)
	if w < 1 || h < 1 {
		return
	}

	img := imaging.Resize(it.Pixels, int(w), int(h), imaging.NearestNeighbor)
	if it.Inverted {
		img = imaging.Invert(img)
	}
	dc.DrawImage(img, int(x), int(y))
}

// Rotate turns img clockwise by quarter turns
func Rotate(img image.Image, quarterTurns int) image.Image {
	switch quarterTurns % 4 {
	case 1:
		return imaging.Rotate270(img)
	case 2:
		return imaging.Rotate180(img)
	case 3:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// fitCanvas scales img into a w x h white canvas, keeping aspect ratio
func fitCanvas(img image.Image, w, h int) image.Image {
	canvas := imaging.New(w, h, color.White)

	b := img.Bounds()
	scale := min(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	fw := max(int(float64(b.Dx())*scale), 1)
	fh := max(int(float64(b.Dy())*scale), 1)

	fitted := imaging.Resize(img, fw, fh, imaging.Lanczos)
	return imaging.Paste(canvas, fitted, image.Pt(0, 0))
}
