// Package parser resolves template variables in a label job
package parser

import (
	"fmt"

	"github.com/thereceipt/label-engine/pkg/labelformat"
)

// Resolve returns a copy of spec where every item with a dynamicValue has
// its content replaced by the variable's value from spec.Data, or its
// default when no value was supplied. References to undeclared variables
// are left untouched for validation to report. spec is not modified.
func Resolve(spec *labelformat.Job) *labelformat.Job {
	if spec == nil || len(spec.Variables) == 0 {
		return spec
	}

	defs := make(map[string]*labelformat.Variable, len(spec.Variables))
	for i := range spec.Variables {
		defs[spec.Variables[i].Let] = &spec.Variables[i]
	}

	resolved := *spec
	resolved.Pages = make([]labelformat.Page, len(spec.Pages))
	for pi, page := range spec.Pages {
		items := make([]labelformat.Item, len(page.Items))
		for ii, item := range page.Items {
			items[ii] = resolveItem(item, defs, spec.Data)
		}
		page.Items = items
		resolved.Pages[pi] = page
	}

	return &resolved
}

func resolveItem(item labelformat.Item, defs map[string]*labelformat.Variable, data map[string]interface{}) labelformat.Item {
	if item.DynamicValue == "" {
		return item
	}

	varDef := defs[item.DynamicValue]
	if varDef == nil {
		return item
	}

	// Get value from data or use default
	value := data[item.DynamicValue]
	if value == nil {
		value = varDef.DefaultValue
	}

	item.Content = formatValue(value, varDef.Prefix, varDef.Suffix)
	item.DynamicValue = ""
	return item
}

func formatValue(value interface{}, prefix string, suffix string) string {
	if value == nil {
		return ""
	}

	return fmt.Sprintf("%s%v%s", prefix, value, suffix)
}
