package tspl

import (
	"fmt"
	"math"

	"github.com/thereceipt/label-engine/internal/job"
	"github.com/thereceipt/label-engine/internal/render"
)

// Density maps the job's 1-5 darkness scale onto TSPL's 0-15
func Density(level int) int {
	return min(max(level*3, 0), 15)
}

// Encode renders j and returns the complete TSPL program, one entry per
// label buffer so callers can stop between labels
func Encode(j *job.PrintJob, r *render.Renderer) ([][]byte, error) {
	labels, err := r.RenderJob(j)
	if err != nil {
		return nil, fmt.Errorf("failed to render job: %w", err)
	}
	if len(labels) == 0 {
		return nil, nil
	}

	dpmm := r.DotsPerMM()
	size := func(i int) (float64, float64) {
		b := labels[i].Image.Bounds()
		return round1(float64(b.Dx()) / dpmm), round1(float64(b.Dy()) / dpmm)
	}

	w, h := size(0)
	setup := New().Size(w, h)
	switch j.PaperType {
	case PaperBlackMark:
		setup.BlackMark(float64(j.Gap), 0)
	case PaperContinuous:
		setup.Gap(0, 0)
	default:
		setup.Gap(float64(j.Gap), 0)
	}
	setup.Direction(0, 0).
		Reference(int(float64(j.HorizontalOffset)*dpmm), int(float64(j.VerticalOffset)*dpmm)).
		Density(Density(j.Density))

	bitmaps := make([]*render.Bitmap, len(labels))
	for i, l := range labels {
		bitmaps[i] = render.Monochrome(l.Image, render.DefaultThreshold)
	}

	program := [][]byte{setup.Bytes()}
	emit := func(i, n int) {
		// Pages may differ in size; the printer keeps the last SIZE
		cmd := New()
		if lw, lh := size(i); lw != w || lh != h {
			w, h = lw, lh
			cmd.Size(w, h)
		}

		bm := bitmaps[i]
		cmd.CLS().
			Bitmap(0, 0, bm.WidthBytes, bm.Height, bm.Inverted()).
			Print(n)
		program = append(program, cmd.Bytes())
	}

	if j.OneByOne {
		// Every copy of a label before the next label
		for i, l := range labels {
			emit(i, l.Count*j.Copies)
		}
	} else {
		// Collated: the whole set once per copy
		for c := 0; c < j.Copies; c++ {
			for i, l := range labels {
				emit(i, l.Count)
			}
		}
	}

	if j.TailLength > 0 {
		program = append(program, New().Feed(int(float64(j.TailLength)*dpmm)).Bytes())
	}

	return program, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
