package job

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	"github.com/thereceipt/label-engine/internal/parser"
	"github.com/thereceipt/label-engine/pkg/labelformat"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultFontName is used for text items that name no font
const DefaultFontName = "黑体"

var errNoImageBytes = errors.New("image item has no imageBytes")

// Builder normalizes print requests
type Builder struct {
	FallbackFont string
}

// NewBuilder creates a builder using DefaultFontName as the fallback font
func NewBuilder() *Builder {
	return &Builder{FallbackFont: DefaultFontName}
}

// Build validates spec and applies defaults to every omitted field.
// No partially built job is returned on error.
func (b *Builder) Build(spec *labelformat.Job) (*PrintJob, error) {
	if spec == nil || len(spec.Pages) == 0 {
		return nil, ErrNoPages
	}
	if err := labelformat.Validate(spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	spec = parser.Resolve(spec)

	j := &PrintJob{
		LabelWidth:       intOr(spec.LabelWidth, labelformat.DefaultLabelWidth),
		LabelHeight:      intOr(spec.LabelHeight, labelformat.DefaultLabelHeight),
		Copies:           intOr(spec.Copies, labelformat.DefaultCopies),
		Density:          intOr(spec.Density, labelformat.DefaultDensity),
		Rotate:           intOr(spec.Rotate, labelformat.DefaultRotate),
		HorizontalOffset: intOr(spec.HorizontalOffset, labelformat.DefaultHorizontalOffset),
		VerticalOffset:   intOr(spec.VerticalOffset, labelformat.DefaultVerticalOffset),
		PaperType:        intOr(spec.PaperType, labelformat.DefaultPaperType),
		Gap:              intOr(spec.Gap, labelformat.DefaultGap),
		OneByOne:         boolOr(spec.OneByOne, labelformat.DefaultOneByOne),
		TailLength:       intOr(spec.TailLength, labelformat.DefaultTailLength),
	}
	j.VendorRotation = VendorRotation(j.Rotate)

	for pi, ps := range spec.Pages {
		page := Page{
			Width:  intOr(ps.Width, j.LabelWidth),
			Height: intOr(ps.Height, j.LabelHeight),
			Repeat: intOr(ps.Repeat, labelformat.DefaultPageRepeat),
		}

		for ii := range ps.Items {
			item, err := b.buildItem(&ps.Items[ii])
			if err != nil {
				return nil, &ItemError{Page: pi, Item: ii, Err: err}
			}
			page.Items = append(page.Items, item)
		}

		if len(page.Items) > 0 {
			j.HasGraphicsContent = true
		}
		j.Pages = append(j.Pages, page)
	}

	for i, data := range spec.Images {
		img, err := decodeImage(data)
		if err != nil {
			return nil, &PageError{Page: i, Err: err}
		}
		j.Images = append(j.Images, img)
	}

	switch {
	case j.HasGraphicsContent:
		j.Mode = ModeVector
	case len(j.Images) > 0:
		j.Mode = ModeRaster
	default:
		j.Mode = ModeVector
	}

	log.Debug().
		Int("pages", len(j.Pages)).
		Int("images", len(j.Images)).
		Str("mode", j.Mode.String()).
		Msg("print job built")

	return j, nil
}

func (b *Builder) buildItem(it *labelformat.Item) (Item, error) {
	place := Placement{
		X:        floatOr(it.X, labelformat.DefaultItemX),
		Y:        floatOr(it.Y, labelformat.DefaultItemY),
		Width:    floatOr(it.Width, labelformat.DefaultItemWidth),
		Height:   floatOr(it.Height, labelformat.DefaultItemHeight),
		Inverted: it.AntiColor,
	}

	switch it.Format {
	case "", labelformat.FormatText:
		font := it.FontName
		if font == "" {
			font = b.FallbackFont
		}
		return &Text{
			Placement: place,
			Content:   it.Content,
			FontName:  font,
			FontSize:  intOr(it.FontSize, labelformat.DefaultItemFontSize),
			FontStyle: intOr(it.FontStyle, labelformat.DefaultItemFontStyle),
		}, nil

	case labelformat.FormatImage:
		img, err := decodeImage(it.ImageBytes)
		if err != nil {
			return nil, err
		}
		return &Image{Placement: place, Pixels: img}, nil

	case labelformat.FormatBarcode:
		img, err := Barcode(it.Content, place.Width, place.Height)
		if err != nil {
			return nil, err
		}
		return &Image{Placement: place, Pixels: img}, nil

	case labelformat.FormatQRCode:
		img, err := QRCode(it.Content, place.Width, place.Height)
		if err != nil {
			return nil, err
		}
		return &Image{Placement: place, Pixels: img}, nil

	default:
		return nil, fmt.Errorf("unknown format: %s", it.Format)
	}
}

// VendorRotation maps a logical quarter-turn index to the printer's
// 1-based encoding
func VendorRotation(rotate int) int {
	return rotate + 1
}

// QuarterTurns is the inverse of VendorRotation; an unset encoding means
// no rotation
func QuarterTurns(vendor int) int {
	if vendor < 1 {
		return 0
	}
	return (vendor - 1) % 4
}

func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errNoImageBytes
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
