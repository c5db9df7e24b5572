// Package job turns a label print request into a validated, normalized
// PrintJob ready for a printer driver.
package job

import (
	"image"
)

// Mode selects how a job is handed to the transport
type Mode int

const (
	// ModeVector submits each page as a list of draw items
	ModeVector Mode = iota
	// ModeRaster submits pre-rendered label bitmaps
	ModeRaster
)

func (m Mode) String() string {
	switch m {
	case ModeVector:
		return "vector"
	case ModeRaster:
		return "raster"
	default:
		return "unknown"
	}
}

// Font style bits carried by text items
const (
	StyleBold = 1 << iota
	StyleItalic
	StyleUnderline
)

// PrintJob is a normalized print request. All dimensions are in mm.
type PrintJob struct {
	LabelWidth       int
	LabelHeight      int
	Copies           int
	Density          int
	Rotate           int // logical quarter turns, 0..3
	VendorRotation   int // Rotate + 1
	HorizontalOffset int
	VerticalOffset   int
	PaperType        int
	Gap              int
	OneByOne         bool
	TailLength       int

	Pages  []Page
	Images []image.Image

	// HasGraphicsContent is true when any page carries draw items
	HasGraphicsContent bool
	Mode               Mode
}

// Labels returns how many labels the job produces
func (j *PrintJob) Labels() int {
	per := 0
	if j.Mode == ModeRaster {
		per = len(j.Images)
	} else {
		for _, p := range j.Pages {
			per += p.Repeat
		}
	}
	return per * j.Copies
}

// Page is one label layout
type Page struct {
	Width  int
	Height int
	Repeat int
	Items  []Item
}

// Placement positions an item on its page
type Placement struct {
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Inverted bool
}

// Item is a draw item: either *Text or *Image
type Item interface {
	Place() Placement
	isItem()
}

// Text is a run of text drawn inside its placement box
type Text struct {
	Placement
	Content   string
	FontName  string
	FontSize  int
	FontStyle int
}

// Image is decoded pixel data scaled into its placement box
type Image struct {
	Placement
	Pixels image.Image
}

func (t *Text) Place() Placement  { return t.Placement }
func (i *Image) Place() Placement { return i.Placement }

func (*Text) isItem()  {}
func (*Image) isItem() {}

// PixelSize returns the decoded image's dimensions in pixels
func (i *Image) PixelSize() (int, int) {
	b := i.Pixels.Bounds()
	return b.Dx(), b.Dy()
}
