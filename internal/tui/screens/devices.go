package screens

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/printer"
)

// DevicesView lists the current scan session and connects to a selection
type DevicesView struct {
	app     *tview.Application
	manager *printer.Manager
	list    *tview.List
	details *tview.TextView
	layout  *tview.Flex
	devices []device.Device
}

// NewDevicesView creates a new devices view screen
func NewDevicesView(app *tview.Application, manager *printer.Manager) *DevicesView {
	d := &DevicesView{
		app:     app,
		manager: manager,
	}

	d.setupUI()
	return d
}

func (d *DevicesView) setupUI() {
	// Device list
	d.list = tview.NewList()
	d.list.SetBorder(true)
	d.list.SetTitle("Discovered Printers")
	d.list.SetChangedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		d.showDetails(index)
	})
	d.list.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		d.connect(index, false)
	})

	// Details view
	d.details = tview.NewTextView()
	d.details.SetBorder(true)
	d.details.SetTitle("Device Details")
	d.details.SetDynamicColors(true)

	// Layout: List | Details
	d.layout = tview.NewFlex().
		AddItem(d.list, 0, 1, true).
		AddItem(d.details, 0, 2, false)

	// Key bindings
	d.list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			return event // Let parent handle
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r':
				d.Refresh()
				return nil
			case 's':
				d.startScan()
				return nil
			case 'x':
				d.manager.StopScan()
				d.Refresh()
				return nil
			case 'b':
				d.connect(d.list.GetCurrentItem(), true)
				return nil
			}
		}
		return event
	})

	d.Refresh()
}

func (d *DevicesView) startScan() {
	if err := d.manager.StartScan(); err != nil {
		d.details.SetText(fmt.Sprintf("[red]✗ Scan failed: %v[white]", err))
		return
	}
	d.Refresh()
}

// Refresh reloads the list from the scan session
func (d *DevicesView) Refresh() {
	current := d.list.GetCurrentItem()
	d.list.Clear()
	d.devices = d.manager.Devices()

	title := "Discovered Printers"
	if d.manager.Scanning() {
		title += " (scanning)"
	}
	d.list.SetTitle(title)

	if len(d.devices) == 0 {
		d.list.AddItem("No printers found", "press 's' to scan", 0, nil)
		d.details.SetText("[yellow]Press 's' to start scanning[white]")
		return
	}

	connectedID := ""
	if snap := d.manager.State(); snap.Device != nil {
		connectedID = snap.Device.ID
	}

	for _, dev := range d.devices {
		status := "⚪"
		if dev.ID == connectedID {
			status = "🟢"
		}
		secondary := dev.ID
		if dev.SignalStrength != nil {
			secondary = fmt.Sprintf("%s • %d dBm", dev.ID, *dev.SignalStrength)
		}
		d.list.AddItem(fmt.Sprintf("%s %s", status, dev.Name), secondary, 0, nil)
	}

	if current >= 0 && current < len(d.devices) {
		d.list.SetCurrentItem(current)
	}
	d.showDetails(d.list.GetCurrentItem())
}

func (d *DevicesView) showDetails(index int) {
	if index < 0 || index >= len(d.devices) {
		return
	}
	dev := d.devices[index]

	var details strings.Builder
	details.WriteString(fmt.Sprintf("[yellow]ID:[white] %s\n", dev.ID))
	details.WriteString(fmt.Sprintf("[yellow]Name:[white] %s\n", dev.Name))
	if dev.SignalStrength != nil {
		details.WriteString(fmt.Sprintf("[yellow]Signal:[white] %d dBm\n", *dev.SignalStrength))
	}
	if known := d.manager.Known(); known != nil {
		if entry := known.Get(dev.ID); entry != nil {
			details.WriteString(fmt.Sprintf("[yellow]Known as:[white] %s\n", entry.DisplayName()))
			details.WriteString(fmt.Sprintf("[yellow]Last connected:[white] %s\n", entry.LastConnected.Format("2006-01-02 15:04")))
		}
	}

	snap := d.manager.State()
	details.WriteString(fmt.Sprintf("\n[yellow]Connection:[white] %s\n", snap.State))
	details.WriteString("\n[yellow]Enter[white] connect  [yellow]b[white] connect (bypass)  [yellow]s[white] scan  [yellow]x[white] stop  [yellow]r[white] refresh")

	d.details.SetText(details.String())
}

func (d *DevicesView) connect(index int, bypass bool) {
	if index < 0 || index >= len(d.devices) {
		return
	}
	dev := d.devices[index]

	if err := d.manager.Connect(dev.ID, bypass); err != nil {
		d.details.SetText(fmt.Sprintf("[red]✗ %v[white]\n\n[yellow]Code:[white] %s", err, printer.Code(err)))
		return
	}
	d.details.SetText(fmt.Sprintf("[green]Connecting to %s...[white]", dev.Name))
}

// GetRoot returns the root primitive for this screen
func (d *DevicesView) GetRoot() tview.Primitive {
	return d.layout
}
