package labelformat

import (
	"fmt"
)

// Validate checks the structural rules of a print request. Image payloads
// are not decoded here; that happens when the job is built.
func Validate(j *Job) error {
	if len(j.Pages) == 0 {
		return fmt.Errorf("at least one page is required")
	}

	if err := nonNegative("labelWidth", j.LabelWidth); err != nil {
		return err
	}
	if err := nonNegative("labelHeight", j.LabelHeight); err != nil {
		return err
	}
	if err := nonNegative("horizontalOffset", j.HorizontalOffset); err != nil {
		return err
	}
	if err := nonNegative("verticalOffset", j.VerticalOffset); err != nil {
		return err
	}
	if err := nonNegative("gap", j.Gap); err != nil {
		return err
	}
	if err := nonNegative("tailLength", j.TailLength); err != nil {
		return err
	}

	if j.Copies != nil && *j.Copies < 1 {
		return fmt.Errorf("copies must be at least 1, got %d", *j.Copies)
	}
	if j.Rotate != nil && (*j.Rotate < 0 || *j.Rotate > 3) {
		return fmt.Errorf("invalid rotate: %d (must be 0..3)", *j.Rotate)
	}

	vars := make(map[string]bool, len(j.Variables))
	for i, v := range j.Variables {
		if v.Let == "" {
			return fmt.Errorf("variables[%d]: let is required", i)
		}
		if vars[v.Let] {
			return fmt.Errorf("variables[%d]: duplicate variable %q", i, v.Let)
		}
		vars[v.Let] = true
	}

	for i, page := range j.Pages {
		if err := validatePage(&page, vars); err != nil {
			return fmt.Errorf("page[%d]: %w", i, err)
		}
	}

	return nil
}

func validatePage(p *Page, vars map[string]bool) error {
	if err := nonNegative("width", p.Width); err != nil {
		return err
	}
	if err := nonNegative("height", p.Height); err != nil {
		return err
	}
	if p.Repeat != nil && *p.Repeat < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", *p.Repeat)
	}

	for i, item := range p.Items {
		if err := validateItem(&item, vars); err != nil {
			return fmt.Errorf("item[%d]: %w", i, err)
		}
	}
	return nil
}

func validateItem(it *Item, vars map[string]bool) error {
	switch it.Format {
	case "", FormatText, FormatImage, FormatBarcode, FormatQRCode:
	default:
		return fmt.Errorf("unknown format: %s", it.Format)
	}

	if it.DynamicValue != "" {
		if it.Format == FormatImage {
			return fmt.Errorf("dynamicValue is not allowed on IMAGE items")
		}
		if !vars[it.DynamicValue] {
			return fmt.Errorf("undefined variable: %s", it.DynamicValue)
		}
	}

	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"x", it.X}, {"y", it.Y}, {"width", it.Width}, {"height", it.Height},
	} {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be >= 0, got %g", f.name, *f.v)
		}
	}

	if it.FontSize != nil && *it.FontSize < 0 {
		return fmt.Errorf("fontSize must be >= 0, got %d", *it.FontSize)
	}

	return nil
}

func nonNegative(name string, v *int) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%s must be >= 0, got %d", name, *v)
	}
	return nil
}
