package render

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/thereceipt/label-engine/internal/job"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
)

// Directories searched for a font named by a text item
var fontDirs = []string{
	"/usr/share/fonts/truetype",
	"/usr/share/fonts/TTF",
	"/usr/local/share/fonts",
	"/Library/Fonts",
	"/System/Library/Fonts/Supplemental",
}

type fontKey struct {
	name  string
	style int
	size  float64
}

// fontCache parses each font once and keeps one face per size
type fontCache struct {
	mu     sync.Mutex
	parsed map[string]*truetype.Font
	faces  map[fontKey]font.Face
}

func newFontCache() *fontCache {
	return &fontCache{
		parsed: make(map[string]*truetype.Font),
		faces:  make(map[fontKey]font.Face),
	}
}

func (c *fontCache) face(name string, style int, size float64) (font.Face, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := fontKey{name: name, style: style & (job.StyleBold | job.StyleItalic), size: size}
	if f, ok := c.faces[key]; ok {
		return f, nil
	}

	ttf, err := c.load(name, key.style)
	if err != nil {
		return nil, err
	}

	f := truetype.NewFace(ttf, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
	c.faces[key] = f
	return f, nil
}

// load resolves a named font file, falling back to the built-in Go fonts
func (c *fontCache) load(name string, style int) (*truetype.Font, error) {
	if path := findFont(name); path != "" {
		if f, ok := c.parsed[path]; ok {
			return f, nil
		}
		if data, err := os.ReadFile(path); err == nil {
			if f, err := truetype.Parse(data); err == nil {
				c.parsed[path] = f
				return f, nil
			}
		}
	}

	builtin := fmt.Sprintf("builtin:%d", style)
	if f, ok := c.parsed[builtin]; ok {
		return f, nil
	}

	var data []byte
	switch style {
	case job.StyleBold:
		data = gobold.TTF
	case job.StyleItalic:
		data = goitalic.TTF
	case job.StyleBold | job.StyleItalic:
		data = gobolditalic.TTF
	default:
		data = goregular.TTF
	}

	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in font: %w", err)
	}
	c.parsed[builtin] = f
	return f, nil
}

func findFont(name string) string {
	if name == "" {
		return ""
	}
	if strings.HasSuffix(strings.ToLower(name), ".ttf") {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	for _, dir := range fontDirs {
		for _, candidate := range []string{
			filepath.Join(dir, name+".ttf"),
			filepath.Join(dir, strings.ToLower(name), name+".ttf"),
		} {
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// drawText draws a text item wrapped inside its box; font size is in mm
func (r *Renderer) drawText(dc *gg.Context, it *job.Text) error {
	x, y, w, h := r.box(it.Placement)

	size := r.dots(float64(it.FontSize))
	if size <= 0 {
		return nil
	}

	face, err := r.fonts.face(it.FontName, it.FontStyle, size)
	if err != nil {
		return err
	}
	dc.SetFontFace(face)

	fg, bg := color.Color(color.Black), color.Color(color.White)
	if it.Inverted {
		fg, bg = bg, fg
		dc.SetColor(bg)
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()
	}

	dc.SetColor(fg)
	lines := dc.WordWrap(it.Content, w)
	lineHeight := dc.FontHeight() * 1.1
	for i, line := range lines {
		baseline := y + float64(i+1)*lineHeight - (lineHeight - dc.FontHeight())
		if baseline > y+h+lineHeight {
			break
		}
		dc.DrawString(line, x, baseline)

		if it.FontStyle&job.StyleUnderline != 0 {
			lw, _ := dc.MeasureString(line)
			dc.SetLineWidth(max(size/12, 1))
			dc.DrawLine(x, baseline+2, x+lw, baseline+2)
			dc.Stroke()
		}
	}
	return nil
}
