package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/thereceipt/label-engine/pkg/labelformat"
)

// createComposedLabel parses compose arguments and writes a temporary label
// file. Each item starts with its format (text:, barcode:, qrcode:, image:)
// and is followed by properties such as x:2 y:4 size:5. A label:WxH argument
// sets the label size and copies:N the copy count.
func createComposedLabel(composeArgs []string) (string, error) {
	j, err := composeLabel(composeArgs)
	if err != nil {
		return "", err
	}

	tmpFile, err := os.CreateTemp("", "label-composed-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %v", err)
	}
	defer tmpFile.Close()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(j); err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to write label JSON: %v", err)
	}

	return tmpFile.Name(), nil
}

func composeLabel(composeArgs []string) (*labelformat.Job, error) {
	if len(composeArgs) == 0 {
		return nil, fmt.Errorf("no compose arguments provided")
	}

	j := &labelformat.Job{}
	page := labelformat.Page{}
	var current *labelformat.Item

	flush := func() {
		if current != nil {
			page.Items = append(page.Items, *current)
			current = nil
		}
	}

	for _, arg := range composeArgs {
		switch {
		case strings.HasPrefix(arg, "label:"):
			w, h, err := parseSize(strings.TrimPrefix(arg, "label:"))
			if err != nil {
				return nil, err
			}
			j.LabelWidth, j.LabelHeight = labelformat.Int(w), labelformat.Int(h)
		case strings.HasPrefix(arg, "copies:"):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "copies:"))
			if err != nil {
				return nil, fmt.Errorf("invalid copies value: %s", arg)
			}
			j.Copies = labelformat.Int(n)
		case isItemStart(arg):
			flush()
			item, err := parseItemStart(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to parse item '%s': %v", arg, err)
			}
			current = item
		case current != nil:
			if err := parseItemProperty(current, arg); err != nil {
				return nil, fmt.Errorf("failed to parse property '%s': %v", arg, err)
			}
		default:
			return nil, fmt.Errorf("unexpected argument '%s' (expected an item)", arg)
		}
	}
	flush()

	if len(page.Items) == 0 {
		return nil, fmt.Errorf("compose needs at least one item")
	}
	j.Pages = []labelformat.Page{page}
	return j, nil
}

func parseSize(s string) (int, int, error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("label size must be WxH in mm, got: %s", s)
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("label size must be WxH in mm, got: %s", s)
	}
	return w, h, nil
}

var itemFormats = map[string]string{
	"text":    labelformat.FormatText,
	"barcode": labelformat.FormatBarcode,
	"qrcode":  labelformat.FormatQRCode,
	"image":   labelformat.FormatImage,
}

func isItemStart(arg string) bool {
	i := strings.Index(arg, ":")
	if i == -1 {
		return false
	}
	_, ok := itemFormats[arg[:i]]
	return ok
}

func parseItemStart(arg string) (*labelformat.Item, error) {
	i := strings.Index(arg, ":")
	kind := arg[:i]
	value := strings.Trim(arg[i+1:], `"'`)

	item := &labelformat.Item{Format: itemFormats[kind]}
	if kind == "image" {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, err
		}
		item.ImageBytes = data
		return item, nil
	}
	item.Content = value
	return item, nil
}

func parseItemProperty(item *labelformat.Item, arg string) error {
	i := strings.Index(arg, ":")
	if i == -1 {
		return fmt.Errorf("property must be in format 'name:value', got: %s", arg)
	}
	name, value := arg[:i], strings.Trim(arg[i+1:], `"'`)

	switch name {
	case "x", "y", "width", "height":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number of mm", name)
		}
		switch name {
		case "x":
			item.X = labelformat.Float(f)
		case "y":
			item.Y = labelformat.Float(f)
		case "width":
			item.Width = labelformat.Float(f)
		default:
			item.Height = labelformat.Float(f)
		}
	case "size", "style":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer", name)
		}
		if name == "size" {
			item.FontSize = labelformat.Int(n)
		} else {
			item.FontStyle = labelformat.Int(n)
		}
	case "font":
		item.FontName = value
	case "invert":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invert must be true or false")
		}
		item.AntiColor = b
	default:
		return fmt.Errorf("unknown property %q", name)
	}
	return nil
}
