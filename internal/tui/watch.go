package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

// Event is one message from the server's /ws stream
type Event struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

type eventMsg Event
type streamErrMsg struct{ err error }

type watchedDevice struct {
	id, name string
	rssi     *int
}

type logEntry struct {
	time    time.Time
	message string
	level   string
}

// Watcher is a Bubble Tea model that follows scan and connection events
type Watcher struct {
	url    string
	conn   *websocket.Conn
	events chan Event
	errs   chan error

	width    int
	quitting bool
	err      error

	spinner spinner.Model
	state   string
	device  string
	devices []watchedDevice
	logs    []logEntry
	maxLogs int
}

// NewWatcher creates a watcher for the websocket endpoint at url
func NewWatcher(url string) *Watcher {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &Watcher{
		url:     url,
		events:  make(chan Event, 64),
		errs:    make(chan error, 1),
		spinner: s,
		state:   "unknown",
		maxLogs: 12,
	}
}

// Dial opens the websocket and starts reading events
func (w *Watcher) Dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", w.url, err)
	}
	w.conn = conn

	go func() {
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				w.errs <- err
				return
			}
			w.events <- ev
		}
	}()
	return nil
}

// Send issues a text command over the stream; the reply arrives as a
// response event
func (w *Watcher) Send(command string) error {
	return w.conn.WriteJSON(Event{Event: "command", Data: map[string]interface{}{"command": command}})
}

func (w *Watcher) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-w.events:
			return eventMsg(ev)
		case err := <-w.errs:
			return streamErrMsg{err}
		}
	}
}

func (w *Watcher) Init() tea.Cmd {
	return tea.Batch(w.spinner.Tick, w.listen())
}

func (w *Watcher) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.width = msg.Width
		return w, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			w.quitting = true
			return w, tea.Quit
		case "s":
			w.send("scan")
		case "x":
			w.send("stop")
		case "d":
			w.send("disconnect")
		case "c":
			w.devices = nil
		}
		return w, nil

	case eventMsg:
		w.apply(Event(msg))
		return w, w.listen()

	case streamErrMsg:
		w.err = msg.err
		return w, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(msg)
		return w, cmd
	}

	return w, nil
}

func (w *Watcher) send(command string) {
	if err := w.Send(command); err != nil {
		w.addLog(fmt.Sprintf("%s failed: %v", command, err), "error")
		return
	}
	w.addLog("> "+command, "command")
}

// apply folds one server event into the model
func (w *Watcher) apply(ev Event) {
	switch ev.Event {
	case "scan":
		id, _ := ev.Data["id"].(string)
		name, _ := ev.Data["name"].(string)
		dev := watchedDevice{id: id, name: name}
		if v, ok := ev.Data["signalStrength"].(float64); ok {
			rssi := int(v)
			dev.rssi = &rssi
		}
		for _, d := range w.devices {
			if d.id == id {
				return
			}
		}
		w.devices = append(w.devices, dev)
		w.addLog(fmt.Sprintf("found %s (%s)", name, id), "info")

	case "connection":
		state, _ := ev.Data["state"].(string)
		w.state = state
		w.device = ""
		if dev, ok := ev.Data["device"].(map[string]interface{}); ok {
			id, _ := dev["id"].(string)
			name, _ := dev["name"].(string)
			w.device = strings.TrimSpace(name + " " + id)
		}

		msg := state
		if w.device != "" {
			msg += " " + w.device
		}
		level := "success"
		if reason, ok := ev.Data["reason"].(string); ok && reason != "" {
			msg += " (" + reason + ")"
			level = "error"
		} else if state != "connected" {
			level = "info"
		}
		w.addLog(msg, level)

	case "response":
		if ok, _ := ev.Data["success"].(bool); !ok {
			errText, _ := ev.Data["error"].(string)
			w.addLog(errText, "error")
		} else if m, _ := ev.Data["message"].(string); m != "" {
			w.addLog(m, "info")
		}

	case "error":
		errText, _ := ev.Data["error"].(string)
		w.addLog(errText, "error")
	}
}

func (w *Watcher) addLog(message, level string) {
	w.logs = append(w.logs, logEntry{time: time.Now(), message: message, level: level})
	if len(w.logs) > w.maxLogs {
		w.logs = w.logs[1:]
	}
}

func (w *Watcher) View() string {
	if w.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Label Engine • " + w.url))
	b.WriteString("\n")

	state := StatusIcon(w.state) + " " + w.state
	if w.state == "connecting" || w.state == "disconnecting" {
		state = w.spinner.View() + " " + w.state
	}
	if w.device != "" {
		state += TextMuted.Render("  " + w.device)
	}
	b.WriteString(CardStyle.Render(CardTitleStyle.Render("Connection") + "\n" + state))
	b.WriteString("\n")

	var devs strings.Builder
	devs.WriteString(CardTitleStyle.Render(fmt.Sprintf("Discovered (%d)", len(w.devices))))
	if len(w.devices) == 0 {
		devs.WriteString("\n" + TextMuted.Render("press s to scan"))
	}
	for _, d := range w.devices {
		line := fmt.Sprintf("%-20s %s", Truncate(d.name, 20), d.id)
		if d.rssi != nil {
			line += TextMuted.Render(fmt.Sprintf("  %d dBm", *d.rssi))
		}
		devs.WriteString("\n" + TextNormal.Render(line))
	}
	b.WriteString(CardStyle.Render(devs.String()))
	b.WriteString("\n")

	for _, l := range w.logs {
		ts := TextMuted.Render(l.time.Format("15:04:05"))
		var text string
		switch l.level {
		case "error":
			text = ErrorStyle.Render(l.message)
		case "success":
			text = SuccessStyle.Render(l.message)
		case "command":
			text = WarningStyle.Render(l.message)
		default:
			text = TextNormal.Render(l.message)
		}
		b.WriteString(ts + " " + text + "\n")
	}

	help := strings.Join([]string{
		RenderHelp("s", "scan"),
		RenderHelp("x", "stop"),
		RenderHelp("d", "disconnect"),
		RenderHelp("c", "clear"),
		RenderHelp("q", "quit"),
	}, "  ")
	bar := HelpBarStyle
	if w.width > 0 {
		bar = bar.Width(w.width)
	}
	b.WriteString(lipgloss.NewStyle().MarginTop(1).Render(bar.Render(help)))

	return b.String()
}

// Err returns the stream error that ended the watcher, if any
func (w *Watcher) Err() error {
	return w.err
}

// Run dials the server and blocks until the user quits or the stream ends
func (w *Watcher) Run() error {
	if err := w.Dial(); err != nil {
		return err
	}
	defer w.conn.Close()

	p := tea.NewProgram(w, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	if w.err != nil && !websocket.IsCloseError(w.err, websocket.CloseNormalClosure) {
		return w.err
	}
	return nil
}
