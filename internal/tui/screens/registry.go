package screens

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thereceipt/label-engine/internal/registry"
)

// RegistryEditor is a screen for naming remembered printers
type RegistryEditor struct {
	app              *tview.Application
	known            *registry.Registry
	form             *tview.Form
	list             *tview.List
	details          *tview.TextView
	layout           *tview.Flex
	entries          []*registry.Entry
	currentPrinterID string
}

// NewRegistryEditor creates a new registry editor screen. known may be nil.
func NewRegistryEditor(app *tview.Application, known *registry.Registry) *RegistryEditor {
	r := &RegistryEditor{
		app:   app,
		known: known,
	}

	r.setupUI()
	return r
}

func (r *RegistryEditor) setupUI() {
	// Printer list
	r.list = tview.NewList()
	r.list.SetBorder(true)
	r.list.SetTitle("Known Printers")
	r.list.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		r.selectPrinter(index)
	})

	// Details view
	r.details = tview.NewTextView()
	r.details.SetBorder(true)
	r.details.SetTitle("Printer Details")
	r.details.SetDynamicColors(true)

	// Form for editing
	r.form = tview.NewForm()
	r.form.SetBorder(true)
	r.form.SetTitle("Edit Alias")
	r.form.AddInputField("Alias", "", 30, nil, nil)
	r.form.AddButton("Save", func() {
		r.saveAlias()
	})
	r.form.AddButton("Cancel", func() {
		r.app.SetFocus(r.list)
	})

	// Layout: List | Details + Form
	rightPanel := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(r.details, 0, 1, false).
		AddItem(r.form, 0, 1, true)

	r.layout = tview.NewFlex().
		AddItem(r.list, 0, 1, true).
		AddItem(rightPanel, 0, 2, false)

	// Key bindings
	r.list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			return event // Let parent handle
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r':
				r.Refresh()
				return nil
			case 'e':
				if len(r.entries) > 0 {
					r.selectPrinter(r.list.GetCurrentItem())
					r.app.SetFocus(r.form)
				}
				return nil
			case 'd':
				r.removeCurrent()
				return nil
			}
		}
		return event
	})

	r.Refresh()
}

// Refresh reloads the list from the registry
func (r *RegistryEditor) Refresh() {
	r.list.Clear()

	if r.known == nil {
		r.list.AddItem("Registry disabled", "", 0, nil)
		return
	}

	r.entries = r.known.All()
	if len(r.entries) == 0 {
		r.list.AddItem("No printers remembered yet", "connect to one first", 0, nil)
		return
	}

	for _, e := range r.entries {
		details := fmt.Sprintf("%s • %s", strings.ToUpper(e.Transport), e.ID)
		r.list.AddItem(e.DisplayName(), details, 0, nil)
	}
}

func (r *RegistryEditor) selectPrinter(index int) {
	if index < 0 || index >= len(r.entries) {
		return
	}
	e := r.entries[index]

	details := fmt.Sprintf(`[yellow]ID:[white] %s
[yellow]Transport:[white] %s
[yellow]Advertised name:[white] %s
[yellow]Alias:[white] %s
[yellow]First seen:[white] %s
[yellow]Last connected:[white] %s

[yellow]Press 'e' to edit alias, 'd' to forget`,
		e.ID,
		strings.ToUpper(e.Transport),
		e.Name,
		e.Alias,
		e.FirstSeen.Format("2006-01-02 15:04"),
		e.LastConnected.Format("2006-01-02 15:04"))

	// Show details
	r.details.SetText(details)

	// Update form
	r.form.GetFormItem(0).(*tview.InputField).SetText(e.Alias)
	r.currentPrinterID = e.ID
}

func (r *RegistryEditor) saveAlias() {
	if r.currentPrinterID == "" || r.known == nil {
		r.details.SetText("[red]✗ No printer selected[white]")
		return
	}

	alias := strings.TrimSpace(r.form.GetFormItem(0).(*tview.InputField).GetText())
	if !r.known.SetAlias(r.currentPrinterID, alias) {
		r.details.SetText(fmt.Sprintf("[red]✗ Printer not found: %s[white]\n\n[yellow]Try refreshing the list[white]", r.currentPrinterID))
		return
	}

	r.Refresh()
	for i, e := range r.entries {
		if e.ID == r.currentPrinterID {
			r.list.SetCurrentItem(i)
			break
		}
	}
	r.app.SetFocus(r.list)
	r.details.SetText(fmt.Sprintf("[green]✓ Alias saved[white]\n\n[yellow]Alias:[white] %s\n[yellow]Printer ID:[white] %s", alias, r.currentPrinterID))
}

func (r *RegistryEditor) removeCurrent() {
	index := r.list.GetCurrentItem()
	if r.known == nil || index < 0 || index >= len(r.entries) {
		return
	}

	id := r.entries[index].ID
	r.known.Remove(id)
	r.currentPrinterID = ""
	r.Refresh()
	r.details.SetText(fmt.Sprintf("[green]✓ Forgot %s[white]", id))
}

// GetRoot returns the root primitive for this screen
func (r *RegistryEditor) GetRoot() tview.Primitive {
	return r.layout
}
