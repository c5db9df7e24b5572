package command

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/thereceipt/label-engine/internal/printer"
	"github.com/thereceipt/label-engine/pkg/labelformat"
)

const printTimeout = 2 * time.Minute

// handleScan starts a new discovery session
// Usage: scan
func (e *Executor) handleScan(args []string) *Result {
	if err := e.manager.StartScan(); err != nil {
		return failure(err)
	}
	return &Result{
		Success: true,
		Message: "Scanning for printers",
	}
}

// Usage: stop
func (e *Executor) handleStop(args []string) *Result {
	if err := e.manager.StopScan(); err != nil {
		return failure(err)
	}
	return &Result{
		Success: true,
		Message: "Scan stopped",
	}
}

// handleDevices lists the current scan session
// Usage: devices
func (e *Executor) handleDevices(args []string) *Result {
	devices := e.manager.Devices()

	list := make([]map[string]interface{}, len(devices))
	for i, d := range devices {
		list[i] = map[string]interface{}{
			"id":   d.ID,
			"name": d.Name,
		}
		if d.SignalStrength != nil {
			list[i]["signalStrength"] = *d.SignalStrength
		}
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Found %d device(s)", len(devices)),
		Data: map[string]interface{}{
			"devices": list,
		},
	}
}

// handleConnect starts a connection attempt
// Usage: connect <device-id> [--bypass]
func (e *Executor) handleConnect(args []string) *Result {
	var id string
	bypass := false
	for _, arg := range args {
		switch {
		case arg == "--bypass":
			bypass = true
		case id == "":
			id = arg
		}
	}
	if id == "" {
		return usage("connect <device-id> [--bypass]")
	}

	if err := e.manager.Connect(id, bypass); err != nil {
		return failure(err)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Connecting to %s", id),
		Data: map[string]interface{}{
			"device_id": id,
		},
	}
}

// Usage: disconnect
func (e *Executor) handleDisconnect(args []string) *Result {
	ok := e.manager.Disconnect()

	msg := "Not connected"
	if ok {
		msg = "Disconnecting"
	}
	return &Result{
		Success: true,
		Message: msg,
		Data: map[string]interface{}{
			"result": ok,
		},
	}
}

// Usage: state
func (e *Executor) handleState(args []string) *Result {
	snap := e.manager.State()

	data := map[string]interface{}{
		"state": snap.State.String(),
	}
	msg := snap.State.String()
	if snap.Device != nil {
		data["device"] = snap.Device
		msg = fmt.Sprintf("%s (%s)", msg, snap.Device.ID)
	}
	return &Result{
		Success: true,
		Message: msg,
		Data:    data,
	}
}

// Usage: status
func (e *Executor) handleStatus(args []string) *Result {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	code, err := e.manager.Status(ctx)
	if err != nil {
		return failure(err)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Printer status: %d", code),
		Data: map[string]interface{}{
			"status": code,
		},
	}
}

// handlePrint prints a label job read from a file or URL
// Usage: print <job-path|job-url> [--var key=value]...
func (e *Executor) handlePrint(args []string) *Result {
	if len(args) < 1 {
		return usage("print <job-path|job-url> [--var key=value]...")
	}

	vars, err := parseVars(args[1:])
	if err != nil {
		return usage("print <job-path|job-url> [--var key=value]...")
	}

	spec, err := loadJob(args[0])
	if err != nil {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("failed to load job: %v", err),
			Code:    printer.Code(printer.ErrInvalidArgument),
		}
	}
	if len(vars) > 0 {
		if spec.Data == nil {
			spec.Data = make(map[string]interface{}, len(vars))
		}
		for k, v := range vars {
			spec.Data[k] = v
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), printTimeout)
	defer cancel()

	jobID, err := e.manager.Print(ctx, spec)
	if err != nil {
		res := failure(err)
		if jobID != "" {
			res.Data = map[string]interface{}{"job_id": jobID}
		}
		return res
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Print job sent: %s", jobID),
		Data: map[string]interface{}{
			"job_id": jobID,
		},
	}
}

// Usage: cancel
func (e *Executor) handleCancel(args []string) *Result {
	e.manager.CancelPrint()
	return &Result{
		Success: true,
		Message: "Cancel requested",
	}
}

// handleJobs lists the print history
// Usage: jobs [clear]
func (e *Executor) handleJobs(args []string) *Result {
	history := e.manager.History()

	if len(args) > 0 {
		if args[0] != "clear" {
			return usage("jobs [clear]")
		}
		history.ClearCompleted()
		return &Result{
			Success: true,
			Message: "Cleared finished jobs",
		}
	}

	jobs := history.GetAll()
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Found %d job(s)", len(jobs)),
		Data: map[string]interface{}{
			"jobs": jobs,
		},
	}
}

// Usage: job <id>
func (e *Executor) handleJob(args []string) *Result {
	if len(args) < 1 {
		return usage("job <id>")
	}

	entry := e.manager.History().Get(args[0])
	if entry == nil {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("job not found: %s", args[0]),
			Code:    "NOT_FOUND",
		}
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("%s: %s", entry.ID, entry.Status),
		Data: map[string]interface{}{
			"job": entry,
		},
	}
}

// Usage: known
func (e *Executor) handleKnown(args []string) *Result {
	known := e.manager.Known()
	if known == nil {
		return &Result{
			Success: true,
			Message: "No printer registry configured",
		}
	}

	entries := known.All()
	return &Result{
		Success: true,
		Message: fmt.Sprintf("%d known printer(s)", len(entries)),
		Data: map[string]interface{}{
			"printers": entries,
		},
	}
}

// handleName sets an operator alias for a known printer
// Usage: name <device-id> <alias>
func (e *Executor) handleName(args []string) *Result {
	if len(args) < 2 {
		return usage("name <device-id> <alias>")
	}

	known := e.manager.Known()
	if known == nil || !known.SetAlias(args[0], args[1]) {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("printer not known: %s", args[0]),
			Code:    "NOT_FOUND",
		}
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Named printer %s %q", args[0], args[1]),
	}
}

func (e *Executor) handleHelp(args []string) *Result {
	helpText := `Available Commands:

  scan                      Start discovering printers (clears the device list)
  stop                      Stop discovery
  devices                   List printers found by the current scan
  connect <id> [--bypass]   Connect to a printer; --bypass skips the pairing check
  disconnect                Disconnect from the current printer
  state                     Show the connection state
  status                    Query the connected printer's status code
  print <path|url> [--var k=v]  Print a label job (JSON)
  cancel                    Cancel the current print
  jobs [clear]              List print history, or clear finished entries
  job <id>                  Show one print history entry
  known                     List remembered printers
  name <id> <alias>         Set an alias for a remembered printer
  help                      Show this help message

Examples:
  connect 00:11:22:33:44:55
  connect 00:11:22:33:44:55 --bypass
  print ./labels/shipping.json
  name 00:11:22:33:44:55 "Shipping Desk"
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}

// parseVars reads --var key=value pairs
func parseVars(args []string) (map[string]string, error) {
	vars := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if args[i] != "--var" || i+1 >= len(args) {
			return nil, fmt.Errorf("unexpected argument: %s", args[i])
		}
		i++
		key, value, ok := strings.Cut(args[i], "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--var needs key=value, got %s", args[i])
		}
		vars[key] = value
	}
	return vars, nil
}

// loadJob reads a label job from a local path or an http(s) URL. The job
// is validated when it is printed.
func loadJob(pathOrURL string) (*labelformat.Job, error) {
	if !strings.HasPrefix(pathOrURL, "http://") && !strings.HasPrefix(pathOrURL, "https://") {
		data, err := os.ReadFile(pathOrURL)
		if err != nil {
			return nil, fmt.Errorf("failed to read job file: %w", err)
		}
		return labelformat.Decode(data)
	}

	resp, err := http.Get(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job from URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch job: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read job from URL: %w", err)
	}
	return labelformat.Decode(data)
}
