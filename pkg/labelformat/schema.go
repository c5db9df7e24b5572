// Package labelformat defines the wire format of a label print request
package labelformat

// Item formats accepted in a page's items list
const (
	FormatText    = "TEXT"
	FormatImage   = "IMAGE"
	FormatBarcode = "BARCODE"
	FormatQRCode  = "QRCODE"
)

// Defaults applied to every omitted field
const (
	DefaultLabelWidth       = 40
	DefaultLabelHeight      = 30
	DefaultCopies           = 1
	DefaultDensity          = 3
	DefaultRotate           = 0
	DefaultHorizontalOffset = 0
	DefaultVerticalOffset   = 0
	DefaultPaperType        = 1
	DefaultGap              = 3
	DefaultOneByOne         = true
	DefaultTailLength       = 0

	DefaultPageRepeat = 1

	DefaultItemX         = 0
	DefaultItemY         = 0
	DefaultItemWidth     = 10
	DefaultItemHeight    = 5
	DefaultItemFontSize  = 3
	DefaultItemFontStyle = 0
)

// Job is the root of a print request. Optional fields are pointers so an
// explicit zero can be told apart from an omitted value.
type Job struct {
	LabelWidth       *int  `json:"labelWidth,omitempty"`  // mm
	LabelHeight      *int  `json:"labelHeight,omitempty"` // mm
	Copies           *int  `json:"copies,omitempty"`
	Density          *int  `json:"density,omitempty"`
	Rotate           *int  `json:"rotate,omitempty"` // 0..3 quarter turns
	HorizontalOffset *int  `json:"horizontalOffset,omitempty"`
	VerticalOffset   *int  `json:"verticalOffset,omitempty"`
	PaperType        *int  `json:"paperType,omitempty"`
	Gap              *int  `json:"gap,omitempty"`
	OneByOne         *bool `json:"oneByOne,omitempty"`
	TailLength       *int  `json:"tailLength,omitempty"`

	Pages []Page `json:"pages"`

	// Images are pre-rendered label bitmaps (PNG, JPEG, GIF, BMP or WebP)
	// sent as-is when no page carries draw items.
	Images [][]byte `json:"images,omitempty"`

	// Variables declare the names items may reference through dynamicValue;
	// Data supplies their values for this print
	Variables []Variable             `json:"variables,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Variable is a template value filled in at print time
type Variable struct {
	Let          string      `json:"let"`
	DefaultValue interface{} `json:"defaultValue,omitempty"`
	Prefix       string      `json:"prefix,omitempty"`
	Suffix       string      `json:"suffix,omitempty"`
}

// Page is one label layout
type Page struct {
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
	Repeat *int   `json:"repeat,omitempty"`
	Items  []Item `json:"items,omitempty"`
}

// Item is one placed element on a page
type Item struct {
	Format string `json:"format,omitempty"` // TEXT (default), IMAGE, BARCODE, QRCODE

	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`

	// Text content, or the encoded data for BARCODE and QRCODE
	Content      string `json:"content,omitempty"`
	// DynamicValue names a variable whose value replaces Content
	DynamicValue string `json:"dynamicValue,omitempty"`

	FontName  string `json:"fontName,omitempty"`
	FontSize  *int   `json:"fontSize,omitempty"`
	FontStyle *int   `json:"fontStyle,omitempty"`
	AntiColor bool   `json:"antiColor,omitempty"`

	// Encoded image payload for IMAGE items (base64 in JSON)
	ImageBytes []byte `json:"imageBytes,omitempty"`
}

// Int returns a pointer to v, for building jobs in code
func Int(v int) *int { return &v }

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v
func Bool(v bool) *bool { return &v }
