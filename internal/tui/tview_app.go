// Package tui provides the operator console for the label server and the
// event watcher used by the CLI
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thereceipt/label-engine/internal/command"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/printer"
	"github.com/thereceipt/label-engine/internal/tui/screens"
)

// TViewApp is the main TUI application using tview
type TViewApp struct {
	App      *tview.Application
	manager  *printer.Manager
	executor *command.Executor
	port     string

	// Main layout
	flex *tview.Flex

	// Panels
	devicesList  *tview.List
	jobsTable    *tview.Table
	statusBox    *tview.TextView
	logsArea     *tview.TextView
	commandInput *tview.InputField

	// State
	maxLogs   int
	startTime time.Time

	// Screens
	currentScreen  string // "main", "registry", "devices", "jobs", "print"
	registryScreen *screens.RegistryEditor
	devicesScreen  *screens.DevicesView
	jobsScreen     *screens.JobsView
	printScreen    *screens.PrintBuilder
}

// NewTViewApp creates a new tview-based TUI and subscribes it to manager
// events
func NewTViewApp(manager *printer.Manager, port string) *TViewApp {
	app := tview.NewApplication()

	t := &TViewApp{
		App:           app,
		manager:       manager,
		executor:      command.NewExecutor(manager),
		port:          port,
		maxLogs:       500,
		startTime:     time.Now(),
		currentScreen: "main",
	}

	t.setupUI()
	t.setupScreens()

	manager.OnDeviceFound(t.onDeviceFound)
	manager.OnConnectionChange(t.onConnectionChange)
	return t
}

func (t *TViewApp) setupScreens() {
	t.registryScreen = screens.NewRegistryEditor(t.App, t.manager.Known())
	t.devicesScreen = screens.NewDevicesView(t.App, t.manager)
	t.jobsScreen = screens.NewJobsView(t.App, t.manager.History())
	t.printScreen = screens.NewPrintBuilder(t.App, t.manager)
}

func (t *TViewApp) setupUI() {
	// Create panels
	t.devicesList = tview.NewList()
	t.devicesList.SetBorder(true)
	t.devicesList.SetTitle("Printers")

	t.jobsTable = tview.NewTable()
	t.jobsTable.SetBorder(true)
	t.jobsTable.SetTitle("Print History")

	t.statusBox = tview.NewTextView()
	t.statusBox.SetBorder(true)
	t.statusBox.SetTitle("Connection")
	t.statusBox.SetDynamicColors(true)

	t.logsArea = tview.NewTextView()
	t.logsArea.SetBorder(true)
	t.logsArea.SetTitle("Server Logs")
	t.logsArea.SetDynamicColors(true)
	t.logsArea.SetScrollable(true)
	t.logsArea.SetMaxLines(t.maxLogs)
	t.logsArea.SetChangedFunc(func() {
		t.App.Draw()
	})

	t.commandInput = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0).
		SetPlaceholder("Type a command (e.g., 'help')").
		SetDoneFunc(func(key tcell.Key) {
			if key == tcell.KeyEnter {
				t.executeCommand(t.commandInput.GetText())
				t.commandInput.SetText("")
			}
		})

	// Top row: Printers, History, Connection
	topRow := tview.NewFlex().
		AddItem(t.devicesList, 0, 1, false).
		AddItem(t.jobsTable, 0, 1, false).
		AddItem(t.statusBox, 0, 1, false)

	// Bottom: Logs and command
	bottom := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(t.logsArea, 0, 3, false).
		AddItem(t.commandInput, 1, 0, true)

	// Main layout
	t.flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 1, false).
		AddItem(bottom, 0, 1, false)

	// Set up key bindings
	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Handle screen navigation
		if t.currentScreen != "main" {
			if event.Key() == tcell.KeyEsc {
				t.showMainScreen()
				return nil
			}
			return event
		}

		// Shortcuts are plain letters, so they only apply outside the input
		if t.commandInput.HasFocus() {
			if event.Key() == tcell.KeyEsc {
				t.App.SetFocus(t.devicesList)
				return nil
			}
			return event
		}

		// Main screen key bindings (when command input doesn't have focus)
		switch event.Key() {
		case tcell.KeyCtrlC, tcell.KeyEsc:
			t.App.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case ':':
				t.App.SetFocus(t.commandInput)
				return nil
			case 'q':
				t.App.Stop()
				return nil
			case 'r':
				t.showScreen("registry")
				return nil
			case 'd':
				t.showScreen("devices")
				return nil
			case 'j':
				t.showScreen("jobs")
				return nil
			case 'p':
				t.showScreen("print")
				return nil
			}
		}
		return event
	})

	t.App.SetRoot(t.flex, true)
}

// Run starts the TUI
func (t *TViewApp) Run() error {
	// Initial refresh
	t.refreshAll()

	// Start refresh ticker
	go t.refreshTicker()

	// Initial log
	t.AddLog("🖨️  Label Engine starting...", "info")

	return t.App.Run()
}

func (t *TViewApp) refreshTicker() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		t.App.QueueUpdateDraw(func() {
			t.refreshAll()
		})
	}
}

// Listeners run on the manager goroutine, so UI work is handed off
func (t *TViewApp) onDeviceFound(dev device.Device) {
	go t.App.QueueUpdateDraw(func() {
		t.refreshDevices()
		if t.currentScreen == "devices" {
			t.devicesScreen.Refresh()
		}
	})
}

func (t *TViewApp) onConnectionChange(ev printer.ConnectionEvent) {
	msg := fmt.Sprintf("Connection: %s", ev.State)
	if ev.Device != nil {
		msg = fmt.Sprintf("%s (%s)", msg, ev.Device.ID)
	}
	level := "info"
	if ev.Reason != nil {
		msg = fmt.Sprintf("%s: %v", msg, ev.Reason)
		level = "warning"
	}
	t.AddLog(msg, level)

	go t.App.QueueUpdateDraw(func() {
		t.refreshAll()
		if t.currentScreen == "devices" {
			t.devicesScreen.Refresh()
		}
	})
}

func (t *TViewApp) refreshAll() {
	t.refreshDevices()
	t.refreshJobs()
	t.refreshStatus()
}

func (t *TViewApp) refreshDevices() {
	t.devicesList.Clear()

	devices := t.manager.Devices()
	title := "Printers"
	if t.manager.Scanning() {
		title = "Printers (scanning)"
	}
	t.devicesList.SetTitle(title)

	if len(devices) == 0 {
		t.devicesList.AddItem("No printers discovered", "type 'scan' to search", 0, nil)
		return
	}

	connectedID := ""
	if snap := t.manager.State(); snap.Device != nil {
		connectedID = snap.Device.ID
	}

	for _, d := range devices {
		status := "⚪"
		if d.ID == connectedID {
			status = "🟢"
		}
		details := d.ID
		if d.SignalStrength != nil {
			details = fmt.Sprintf("%s • %d dBm", d.ID, *d.SignalStrength)
		}
		t.devicesList.AddItem(fmt.Sprintf("%s %s", status, d.Name), details, 0, nil)
	}
}

func (t *TViewApp) refreshJobs() {
	t.jobsTable.Clear()

	// Header
	t.jobsTable.SetCell(0, 0, tview.NewTableCell("Status").SetAlign(tview.AlignCenter).SetSelectable(false))
	t.jobsTable.SetCell(0, 1, tview.NewTableCell("Printer").SetAlign(tview.AlignCenter).SetSelectable(false))
	t.jobsTable.SetCell(0, 2, tview.NewTableCell("Labels").SetAlign(tview.AlignCenter).SetSelectable(false))
	t.jobsTable.SetCell(0, 3, tview.NewTableCell("Time").SetAlign(tview.AlignCenter).SetSelectable(false))

	jobs := t.manager.History().GetAll()

	// Count stats
	printing, completed, failed := 0, 0, 0
	for i, job := range jobs {
		row := i + 1

		t.jobsTable.SetCell(row, 0, tview.NewTableCell(screens.StatusIcon(job.Status)+" "+job.Status))
		t.jobsTable.SetCell(row, 1, tview.NewTableCell(job.DeviceID))
		t.jobsTable.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", job.Labels)))
		t.jobsTable.SetCell(row, 3, tview.NewTableCell(time.Since(job.CreatedAt).Truncate(time.Second).String()))

		switch job.Status {
		case printer.JobPrinting:
			printing++
		case printer.JobCompleted:
			completed++
		case printer.JobFailed:
			failed++
		}
	}

	// Add summary row
	if len(jobs) > 0 {
		summaryRow := len(jobs) + 1
		summary := fmt.Sprintf("[%d] Printing [%d] Completed [%d] Failed", printing, completed, failed)
		t.jobsTable.SetCell(summaryRow, 0, tview.NewTableCell(summary).SetSelectable(false))
	}
}

func (t *TViewApp) refreshStatus() {
	uptime := time.Since(t.startTime)
	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60

	snap := t.manager.State()
	color := "red"
	switch snap.State {
	case printer.StateConnected:
		color = "green"
	case printer.StateConnecting, printer.StateDisconnecting:
		color = "yellow"
	}

	printerLine := "none"
	if snap.Device != nil {
		printerLine = snap.Device.ID
		if snap.Device.Name != "" {
			printerLine = fmt.Sprintf("%s (%s)", snap.Device.Name, snap.Device.ID)
		}
	}

	status := fmt.Sprintf(`[%s]● %s[white]

Printer: %s
Driver: %s
Uptime: %dh %dm
API: :%s`, color, snap.State, printerLine, t.manager.Driver().Name(), hours, minutes, t.port)

	t.statusBox.SetText(status)
}

func (t *TViewApp) executeCommand(cmd string) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}

	t.AddLog(fmt.Sprintf("> %s", cmd), "command")

	// Console-only commands; the rest go to the shared command surface
	switch strings.ToLower(parts[0]) {
	case "registry", "r":
		t.showScreen("registry")
		return
	case "d":
		t.showScreen("devices")
		return
	case "j":
		t.showScreen("jobs")
		return
	case "p":
		t.showScreen("print")
		return
	case "clear":
		t.logsArea.Clear()
		return
	case "refresh":
		t.refreshAll()
		return
	case "quit", "q":
		t.App.Stop()
		return
	}

	result := t.executor.Execute(cmd)
	if !result.Success {
		t.AddLog(result.Error, "error")
		return
	}
	if result.Message != "" {
		t.AddLog(result.Message, "info")
	}
	t.refreshAll()
}

func (t *TViewApp) showScreen(screenName string) {
	t.currentScreen = screenName

	switch screenName {
	case "registry":
		t.registryScreen.Refresh()
		t.App.SetRoot(t.registryScreen.GetRoot(), true)
		t.App.SetFocus(t.registryScreen.GetRoot())
	case "devices":
		t.devicesScreen.Refresh()
		t.App.SetRoot(t.devicesScreen.GetRoot(), true)
		t.App.SetFocus(t.devicesScreen.GetRoot())
	case "jobs":
		t.jobsScreen.Refresh()
		t.App.SetRoot(t.jobsScreen.GetRoot(), true)
		t.App.SetFocus(t.jobsScreen.GetRoot())
	case "print":
		t.App.SetRoot(t.printScreen.GetRoot(), true)
		t.App.SetFocus(t.printScreen.GetRoot())
	case "main":
		t.showMainScreen()
	}
}

func (t *TViewApp) showMainScreen() {
	t.currentScreen = "main"
	t.refreshAll()
	t.App.SetRoot(t.flex, true)
	t.App.SetFocus(t.commandInput)
}

// AddLog adds a log entry. Safe from any goroutine.
func (t *TViewApp) AddLog(message string, level string) {
	var color string
	var icon string

	switch level {
	case "error":
		color = "[red]"
		icon = "❌"
	case "warning":
		color = "[yellow]"
		icon = "⚠️"
	case "command":
		color = "[cyan]"
		icon = ">"
	default:
		color = "[white]"
		icon = "ℹ️"
	}

	timeStr := time.Now().Format("15:04:05")
	// Update logs area
	fmt.Fprintf(t.logsArea, "%s[%s] %s %s[white]\n", color, timeStr, icon, tview.Escape(message))

	// Auto-scroll to bottom
	t.logsArea.ScrollToEnd()
}

// LogWriter creates an io.Writer that writes to the logs panel. Each write
// is one formatted log line.
func (t *TViewApp) LogWriter() io.Writer {
	return &tviewLogWriter{app: t}
}

type tviewLogWriter struct {
	app *TViewApp
}

func (w *tviewLogWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message == "" {
		return len(p), nil
	}

	level := "info"
	switch {
	case strings.Contains(message, " ERR ") || strings.Contains(message, " FTL "):
		level = "error"
	case strings.Contains(message, " WRN "):
		level = "warning"
	}
	w.app.AddLog(message, level)
	return len(p), nil
}
